package catalog

import (
	"fmt"

	"github.com/vulntor/assessor/pkg/distro"
)

// Entry pairs a key with its command text.
type Entry struct {
	Key     FactKey `json:"key" yaml:"key"`
	Command string  `json:"command" yaml:"command"`
}

// Catalog is an ordered, read-only mapping of keys to commands for one
// family. Every method returns copies; a Catalog never changes after Build.
type Catalog struct {
	family    distro.Family
	entries   []Entry
	index     map[FactKey]int
	templates map[FactKey]string
}

func newCatalog(family distro.Family, entries []Entry, templates map[FactKey]string) Catalog {
	c := Catalog{
		family:    family,
		entries:   make([]Entry, 0, len(entries)),
		index:     make(map[FactKey]int, len(entries)),
		templates: make(map[FactKey]string, len(templates)),
	}
	for _, e := range entries {
		c = c.put(e)
	}
	for k, v := range templates {
		c.templates[k] = v
	}
	return c
}

// New returns an ad-hoc catalog from entries, used for follow-up commands
// whose text depends on earlier output.
func New(family distro.Family, entries ...Entry) Catalog {
	return newCatalog(family, entries, nil)
}

// put mutates c in place; only used while a catalog is being built.
func (c Catalog) put(e Entry) Catalog {
	if i, ok := c.index[e.Key]; ok {
		c.entries[i] = e
		return c
	}
	c.index[e.Key] = len(c.entries)
	c.entries = append(c.entries, e)
	return c
}

// Overlay returns a new catalog for family with deltas replacing existing
// entries in place and new keys appended. Keys are never removed.
func (c Catalog) Overlay(family distro.Family, deltas ...Entry) Catalog {
	out := newCatalog(family, c.entries, c.templates)
	for _, d := range deltas {
		out = out.put(d)
	}
	return out
}

// Only returns a catalog restricted to keys, in the order given. Unknown
// keys are skipped.
func (c Catalog) Only(keys ...FactKey) Catalog {
	var entries []Entry
	for _, k := range keys {
		if cmd, ok := c.Command(k); ok {
			entries = append(entries, Entry{Key: k, Command: cmd})
		}
	}
	return newCatalog(c.family, entries, c.templates)
}

// Family is the family the catalog was built for.
func (c Catalog) Family() distro.Family {
	return c.family
}

// Len is the number of keyed commands.
func (c Catalog) Len() int {
	return len(c.entries)
}

// Keys lists keys in catalog order.
func (c Catalog) Keys() []FactKey {
	keys := make([]FactKey, len(c.entries))
	for i, e := range c.entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries lists entries in catalog order.
func (c Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Has reports whether key is part of the catalog.
func (c Catalog) Has(key FactKey) bool {
	_, ok := c.index[key]
	return ok
}

// Command returns the command registered for key.
func (c Catalog) Command(key FactKey) (string, bool) {
	i, ok := c.index[key]
	if !ok {
		return "", false
	}
	return c.entries[i].Command, true
}

// Render formats the template registered for key with args.
func (c Catalog) Render(key FactKey, args ...any) (string, bool) {
	tmpl, ok := c.templates[key]
	if !ok {
		return "", false
	}
	return fmt.Sprintf(tmpl, args...), true
}

// Build returns the catalog for family. It is pure: the same family always
// yields an identical catalog. Unknown families get the Unix base.
func Build(family distro.Family) Catalog {
	switch family {
	case distro.FamilyDebian:
		return unixBase().Overlay(family, debianDelta...)
	case distro.FamilyRedHat:
		return unixBase().Overlay(family, redhatDelta...)
	case distro.FamilySUSE:
		return unixBase().Overlay(family, suseDelta...)
	case distro.FamilyAIX:
		return unixBase().Overlay(family, aixDelta...)
	case distro.FamilyHPUX:
		return unixBase().Overlay(family, hpuxDelta...)
	case distro.FamilySolaris:
		return unixBase().Overlay(family, solarisDelta...)
	case distro.FamilyWindows:
		return windowsBase()
	default:
		return unixBase().Overlay(family)
	}
}

// Base returns the shared Unix-like catalog.
func Base() Catalog {
	return unixBase()
}

// Delta lists the entries family adds or replaces on top of the base.
func Delta(family distro.Family) []Entry {
	switch family {
	case distro.FamilyDebian:
		return append([]Entry(nil), debianDelta...)
	case distro.FamilyRedHat:
		return append([]Entry(nil), redhatDelta...)
	case distro.FamilySUSE:
		return append([]Entry(nil), suseDelta...)
	case distro.FamilyAIX:
		return append([]Entry(nil), aixDelta...)
	case distro.FamilyHPUX:
		return append([]Entry(nil), hpuxDelta...)
	case distro.FamilySolaris:
		return append([]Entry(nil), solarisDelta...)
	default:
		return nil
	}
}
