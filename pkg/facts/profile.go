package facts

import (
	"context"
	"sync"

	"github.com/vulntor/assessor/pkg/catalog"
	"github.com/vulntor/assessor/pkg/distro"
)

// Profile is the ordered parser set for one family. Steps run in order;
// later steps may read facts filled by earlier ones (ulimits needs users).
type Profile struct {
	Family distro.Family
	Steps  []Step
}

// Categories lists the categories of p in run order.
func (p Profile) Categories() []Category {
	out := make([]Category, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Category
	}
	return out
}

// With returns a copy of p whose steps for the given categories are
// replaced. Unknown categories are appended.
func (p Profile) With(family distro.Family, overrides ...Step) Profile {
	out := Profile{Family: family, Steps: append([]Step(nil), p.Steps...)}
	for _, o := range overrides {
		replaced := false
		for i := range out.Steps {
			if out.Steps[i].Category == o.Category {
				out.Steps[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			out.Steps = append(out.Steps, o)
		}
	}
	return out
}

// Without returns a copy of p without the given categories.
func (p Profile) Without(cats ...Category) Profile {
	drop := make(map[Category]bool, len(cats))
	for _, c := range cats {
		drop[c] = true
	}
	out := Profile{Family: p.Family}
	for _, s := range p.Steps {
		if !drop[s.Category] {
			out.Steps = append(out.Steps, s)
		}
	}
	return out
}

// Registry maps families to profiles. The zero value is not usable; use
// NewRegistry or DefaultRegistry.
type Registry struct {
	mu       sync.RWMutex
	base     Profile
	profiles map[distro.Family]Profile
}

// NewRegistry returns a registry falling back to base for unregistered
// families.
func NewRegistry(base Profile) *Registry {
	return &Registry{base: base, profiles: map[distro.Family]Profile{}}
}

// Register adds or replaces the profile for p.Family.
func (r *Registry) Register(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Family] = p
}

// Lookup returns the profile for family. ok is false when the base
// profile was returned instead.
func (r *Registry) Lookup(family distro.Family) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.profiles[family]; ok {
		return p, true
	}
	return r.base, false
}

// Base returns the fallback profile.
func (r *Registry) Base() Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.base
}

// Families lists registered families.
func (r *Registry) Families() []distro.Family {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []distro.Family
	for _, f := range distro.Families() {
		if _, ok := r.profiles[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// UnixProfile is the generic Unix parser set.
func UnixProfile() Profile {
	return Profile{Family: distro.FamilyUnknown, Steps: unixSteps()}
}

// DefaultRegistry returns a registry with a profile for every known family.
func DefaultRegistry() *Registry {
	base := UnixProfile()
	r := NewRegistry(base)

	r.Register(base.With(distro.FamilyDebian))
	r.Register(base.With(distro.FamilySUSE))
	r.Register(base.With(distro.FamilyRedHat, Step{Category: CategoryDaemons, Parse: parseDaemons(true)}))

	// Non-Linux Unix has no DMI sysfs, LVM vgs or iptables.
	unix := base.Without(CategoryHardware, CategoryVolumeGroups, CategoryFirewall)
	r.Register(unix.With(distro.FamilyAIX, daemonsFrom(ParseLssrc)))
	r.Register(unix.With(distro.FamilySolaris, daemonsFrom(ParseSvcs)))
	r.Register(unix.With(distro.FamilyHPUX).Without(CategoryDaemons))

	r.Register(WindowsProfile())
	return r
}

// WindowsProfile parses the PowerShell catalog.
func WindowsProfile() Profile {
	return Profile{Family: distro.FamilyWindows, Steps: []Step{
		fromText(CategoryArchitecture, catalog.Architecture, func(out *AssessmentResult, s string) error {
			out.Architecture = singleLine(s)
			return nil
		}),
		fromText(CategoryHostname, catalog.Hostname, func(out *AssessmentResult, s string) error {
			out.Hostname = singleLine(s)
			return nil
		}),
		fromText(CategoryKernel, catalog.Kernel, func(out *AssessmentResult, s string) error {
			out.Kernel = singleLine(s)
			return nil
		}),
		fromText(CategoryCPU, catalog.CPUFacts, func(out *AssessmentResult, s string) (err error) {
			out.CPU, err = ParseWindowsCPU(s)
			return err
		}),
		fromText(CategoryMemory, catalog.MemoryFacts, func(out *AssessmentResult, s string) (err error) {
			out.Memory, err = ParseWindowsMemory(s)
			return err
		}),
		fromText(CategoryPartitions, catalog.Partitions, func(out *AssessmentResult, s string) (err error) {
			out.Partitions, err = ParseWindowsPartitions(s)
			return err
		}),
		{Category: CategoryInterfaces, Parse: func(_ context.Context, in *Input, out *AssessmentResult, c *Collector) error {
			addrs, err := in.Output(catalog.Interfaces)
			if err != nil {
				c.Add(string(CategoryInterfaces), err)
				return nil
			}
			gateways, _ := in.Output(catalog.InterfacesDefaultGateway)
			out.Interfaces, err = ParseWindowsInterfaces(addrs, gateways)
			c.Add(string(CategoryInterfaces), err)
			return nil
		}},
		fromText(CategoryPorts, catalog.NetListenPort, func(out *AssessmentResult, s string) (err error) {
			out.Ports.Listen, err = ParseWindowsListenPorts(s)
			return err
		}),
		fromText(CategoryDNS, catalog.DNS, func(out *AssessmentResult, s string) error {
			out.DNS = DNS{Nameservers: ParseNames(s)}
			return nil
		}),
		fromText(CategoryHosts, catalog.Hosts, func(out *AssessmentResult, s string) error {
			out.Hosts = ParseHosts(s)
			return nil
		}),
		fromText(CategoryUsers, catalog.UserList, func(out *AssessmentResult, s string) error {
			out.Users = map[string]User{}
			for _, name := range ParseNames(s) {
				out.Users[name] = User{}
			}
			return nil
		}),
		fromText(CategoryGroups, catalog.Groups, func(out *AssessmentResult, s string) error {
			out.Groups = map[string]Group{}
			for _, name := range ParseNames(s) {
				out.Groups[name] = Group{}
			}
			return nil
		}),
		fromText(CategoryProcesses, catalog.Processes, func(out *AssessmentResult, s string) error {
			out.Processes = ParseWindowsProcesses(s)
			return nil
		}),
		fromText(CategoryDaemons, catalog.DaemonList, func(out *AssessmentResult, s string) error {
			out.Daemons = ParseWindowsServices(s)
			return nil
		}),
		fromText(CategoryPackages, catalog.Packages, func(out *AssessmentResult, s string) (err error) {
			out.Packages, err = ParsePackages(s)
			return err
		}),
		fromText(CategoryLocale, catalog.Locale, func(out *AssessmentResult, s string) error {
			out.Locale = map[string]string{"LANG": singleLine(s)}
			return nil
		}),
		fromText(CategoryEnv, catalog.Env, func(out *AssessmentResult, s string) error {
			out.Env = ParseKeyValues(s)
			return nil
		}),
		fromText(CategoryTimezone, catalog.Timezone1, func(out *AssessmentResult, s string) (err error) {
			out.Timezone, err = ParseTimezone(s)
			return err
		}),
		fromText(CategoryUptime, catalog.Uptime, func(out *AssessmentResult, s string) error {
			boot, err := ParseBootInstant(s)
			if err != nil {
				return err
			}
			out.BootTime = &boot
			return nil
		}),
	}}
}
