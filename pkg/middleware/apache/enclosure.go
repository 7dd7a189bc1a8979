package apache

import (
	"strings"

	"github.com/vulntor/assessor/pkg/middleware"
)

type frame struct {
	typ   string
	key   string
	open  string
	lines []string
}

// walker tracks open enclosures for one file. Each enclosure keeps its
// own directive lines; a closed inner enclosure is copied into its parent
// verbatim so that outer blocks stay complete.
type walker struct {
	inst  *Instance
	stack []*frame
}

func newWalker(inst *Instance) *walker {
	return &walker{inst: inst}
}

// walk consumes enclosure tags and records directive lines in the
// innermost open enclosure. It reports whether line was a tag.
func (w *walker) walk(line string) bool {
	if strings.HasPrefix(line, "</") {
		typ := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "</"), ">"))
		w.close(canonical(typ), line)
		return true
	}
	if strings.HasPrefix(line, "<") && strings.HasSuffix(line, ">") {
		typ, key := directive(strings.TrimSpace(line[1 : len(line)-1]))
		w.stack = append(w.stack, &frame{typ: canonical(typ), key: unquote(key), open: line})
		return true
	}
	if top := w.top(); top != nil {
		top.lines = append(top.lines, line)
	}
	return false
}

func (w *walker) top() *frame {
	if len(w.stack) == 0 {
		return nil
	}
	return w.stack[len(w.stack)-1]
}

func (w *walker) inside(typ string) bool {
	for _, f := range w.stack {
		if f.typ == typ {
			return true
		}
	}
	return false
}

func (w *walker) unclosed() string {
	if top := w.top(); top != nil {
		return top.typ
	}
	return ""
}

func (w *walker) close(typ, line string) {
	f := w.top()
	if f == nil {
		w.inst.warn("unexpected %s", line)
		return
	}
	w.stack = w.stack[:len(w.stack)-1]
	if f.typ != typ {
		w.inst.warn("%s closes <%s>", line, f.typ)
	}
	if parent := w.top(); parent != nil {
		parent.lines = append(parent.lines, f.open)
		parent.lines = append(parent.lines, f.lines...)
		parent.lines = append(parent.lines, line)
	}
	w.store(f)
}

// store keeps blocks of known types. Repeated keys accumulate lines.
func (w *walker) store(f *frame) {
	if !storedTypes[f.typ] {
		return
	}
	blocks := w.inst.Enclosures[f.typ]
	if blocks == nil {
		blocks = map[string][]string{}
		w.inst.Enclosures[f.typ] = blocks
	}
	blocks[f.key] = append(blocks[f.key], f.lines...)

	if f.typ == VirtualHost {
		w.inst.Hosts = append(w.inst.Hosts, newHost(f))
		for _, addr := range strings.Fields(f.key) {
			if port, err := listenPort(addr); err == nil {
				w.inst.Listen = middleware.AppendPort(w.inst.Listen, port)
			}
		}
	}
}

func newHost(f *frame) Host {
	h := Host{Address: f.key, Lines: f.lines}
	var cert bool
	for _, line := range f.lines {
		name, args := directive(line)
		switch {
		case name == "ServerName" && h.ServerName == "":
			h.ServerName = unquote(args)
		case name == "DocumentRoot" && h.DocumentRoot == "":
			h.DocumentRoot = unquote(args)
		case name == "SSLEngine":
			h.SSL = strings.EqualFold(args, "on")
		case strings.HasPrefix(name, "SSLCertificate"):
			cert = true
		}
	}
	h.SSL = h.SSL && cert
	return h
}

// canonical maps enclosure names case-insensitively to the stored
// spelling.
func canonical(typ string) string {
	for known := range storedTypes {
		if strings.EqualFold(known, typ) {
			return known
		}
	}
	return typ
}
