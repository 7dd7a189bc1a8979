package facts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vulntor/assessor/pkg/catalog"
	"github.com/vulntor/assessor/pkg/conn"
	"go.uber.org/multierr"
)

// Category names a group of facts. Categories are the keys of the error
// map, so one failing category yields exactly one entry however many
// commands feed it.
type Category string

const (
	CategoryArchitecture Category = "architecture"
	CategoryHostname     Category = "hostname"
	CategoryKernel       Category = "kernel"
	CategoryHardware     Category = "hardware"
	CategoryCPU          Category = "cpu"
	CategoryMemory       Category = "memory"
	CategoryPartitions   Category = "partitions"
	CategoryFSTab        Category = "fstab"
	CategoryVolumeGroups Category = "volume_groups"
	CategoryKernelParams Category = "kernel_params"
	CategoryInterfaces   Category = "interfaces"
	CategoryRoutes       Category = "routes"
	CategoryPorts        Category = "ports"
	CategoryFirewall     Category = "firewall"
	CategoryDNS          Category = "dns"
	CategoryHosts        Category = "hosts"
	CategoryUsers        Category = "users"
	CategoryGroups       Category = "groups"
	CategoryShadows      Category = "shadows"
	CategoryCrontabs     Category = "crontabs"
	CategoryLoginDefs    Category = "login_defs"
	CategoryUlimits      Category = "ulimits"
	CategoryProcesses    Category = "processes"
	CategoryDaemons      Category = "daemons"
	CategoryPackages     Category = "packages"
	CategoryLocale       Category = "locale"
	CategoryEnv          Category = "env"
	CategoryTimezone     Category = "timezone"
	CategoryUptime       Category = "uptime"

	// CategoryFamily is recorded when no profile matches the host.
	CategoryFamily Category = "family"
)

// ParseFunc fills one category of out from in. Parse problems go to c;
// the returned error is reserved for conditions that end the whole
// assessment (lost connectivity, cancellation).
type ParseFunc func(ctx context.Context, in *Input, out *AssessmentResult, c *Collector) error

// Step binds a parser to the category it reports under.
type Step struct {
	Category Category
	Parse    ParseFunc
}

const cpuModelFallback catalog.FactKey = "CPU_MODEL"

// fromText builds a step for the common case of one command feeding one
// category.
func fromText(cat Category, key catalog.FactKey, apply func(out *AssessmentResult, text string) error) Step {
	return Step{Category: cat, Parse: func(_ context.Context, in *Input, out *AssessmentResult, c *Collector) error {
		text, err := in.Output(key)
		if err != nil {
			c.Add(string(cat), err)
			return nil
		}
		c.Add(string(cat), apply(out, text))
		return nil
	}}
}

func followUpFailed(c *Collector, cat Category, err error) error {
	if errors.Is(err, errNoFollowUp) {
		c.Add(string(cat), err)
		return nil
	}
	return err
}

func unixSteps() []Step {
	return []Step{
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
		{Category: CategoryHardware, Parse: parseHardware},
		{Category: CategoryCPU, Parse: parseUnixCPU},
		fromText(CategoryMemory, catalog.MemoryFacts, func(out *AssessmentResult, s string) (err error) {
			out.Memory, err = ParseMemory(s)
			return err
		}),
		fromText(CategoryPartitions, catalog.Partitions, func(out *AssessmentResult, s string) (err error) {
			out.Partitions, err = ParsePartitions(s)
			return err
		}),
		fromText(CategoryFSTab, catalog.FSTab, func(out *AssessmentResult, s string) (err error) {
			out.FSTab, err = ParseFSTab(s)
			return err
		}),
		fromText(CategoryVolumeGroups, catalog.LVMVolumeGroups, func(out *AssessmentResult, s string) error {
			out.VolumeGroups = ParseVolumeGroups(s)
			return nil
		}),
		fromText(CategoryKernelParams, catalog.KernelParam, func(out *AssessmentResult, s string) error {
			out.KernelParams = ParseKernelParams(s)
			return nil
		}),
		{Category: CategoryInterfaces, Parse: parseUnixInterfaces},
		fromText(CategoryRoutes, catalog.RouteTable, func(out *AssessmentResult, s string) error {
			out.Routes = ParseRoutes(s)
			return nil
		}),
		{Category: CategoryPorts, Parse: parseUnixPorts},
		{Category: CategoryFirewall, Parse: parseFirewall},
		fromText(CategoryDNS, catalog.DNS, func(out *AssessmentResult, s string) error {
			out.DNS = ParseDNS(s)
			return nil
		}),
		fromText(CategoryHosts, catalog.Hosts, func(out *AssessmentResult, s string) error {
			out.Hosts = ParseHosts(s)
			return nil
		}),
		fromText(CategoryUsers, catalog.Users, func(out *AssessmentResult, s string) error {
			out.Users = ParseUsers(s)
			return nil
		}),
		fromText(CategoryGroups, catalog.Groups, func(out *AssessmentResult, s string) (err error) {
			out.Groups, err = ParseGroups(s)
			return err
		}),
		fromText(CategoryShadows, catalog.Shadow, func(out *AssessmentResult, s string) error {
			out.Shadows = ParseShadow(s)
			return nil
		}),
		{Category: CategoryCrontabs, Parse: parseCrontabs},
		fromText(CategoryLoginDefs, catalog.LoginDefs, func(out *AssessmentResult, s string) error {
			out.LoginDefs = ParseLoginDefs(s)
			return nil
		}),
		{Category: CategoryUlimits, Parse: parseUlimits},
		fromText(CategoryProcesses, catalog.Processes, func(out *AssessmentResult, s string) error {
			out.Processes = ParseProcesses(s)
			return nil
		}),
		{Category: CategoryDaemons, Parse: parseDaemons(false)},
		fromText(CategoryPackages, catalog.Packages, func(out *AssessmentResult, s string) (err error) {
			out.Packages, err = ParsePackages(s)
			return err
		}),
		fromText(CategoryLocale, catalog.Locale, func(out *AssessmentResult, s string) error {
			out.Locale = ParseKeyValues(s)
			return nil
		}),
		fromText(CategoryEnv, catalog.Env, func(out *AssessmentResult, s string) error {
			out.Env = ParseKeyValues(s)
			return nil
		}),
		{Category: CategoryTimezone, Parse: parseTimezone},
		{Category: CategoryUptime, Parse: func(_ context.Context, in *Input, out *AssessmentResult, c *Collector) error {
			text, err := in.Output(catalog.Uptime)
			if err != nil {
				c.Add(string(CategoryUptime), err)
				return nil
			}
			boot, err := BootTime(text, in.Now)
			if err != nil {
				c.Add(string(CategoryUptime), err)
				return nil
			}
			out.BootTime = &boot
			return nil
		}},
	}
}

// parseHardware reads DMI values. Families without sysfs carry no DMI
// keys and are skipped silently.
func parseHardware(_ context.Context, in *Input, out *AssessmentResult, c *Collector) error {
	fields := []struct {
		key    catalog.FactKey
		target *string
	}{
		{catalog.BIOSVersion, &out.Hardware.BIOSVersion},
		{catalog.SystemVendor, &out.Hardware.SystemVendor},
		{catalog.ProductName, &out.Hardware.ProductName},
	}
	for _, f := range fields {
		if !in.Catalog.Has(f.key) {
			continue
		}
		text, err := in.Output(f.key)
		if err != nil {
			c.Add(string(CategoryHardware), err)
			continue
		}
		*f.target = singleLine(text)
	}
	return nil
}

func parseUnixCPU(ctx context.Context, in *Input, out *AssessmentResult, c *Collector) error {
	text, err := in.Output(catalog.CPUFacts)
	if err != nil {
		c.Add(string(CategoryCPU), err)
		return nil
	}
	cpu, err := ParseCPU(text)
	if err != nil {
		c.Add(string(CategoryCPU), err)
	}
	out.CPU = cpu
	if cpu.Model != "" {
		return nil
	}

	// Older lscpu builds print no model name.
	res, err := in.FollowUp(ctx, catalog.Entry{
		Key:     cpuModelFallback,
		Command: `cat /proc/cpuinfo | grep "model name" | uniq | awk -F: '{print $2}'`,
	})
	if err != nil {
		return followUpFailed(c, CategoryCPU, err)
	}
	if model, ok := res.Stdout(cpuModelFallback); ok {
		out.CPU.Model = singleLine(strings.SplitN(model, "\n", 2)[0])
	}
	return nil
}

func parseUnixInterfaces(_ context.Context, in *Input, out *AssessmentResult, c *Collector) error {
	addrs, err := in.Output(catalog.Interfaces)
	if err != nil {
		c.Add(string(CategoryInterfaces), err)
		return nil
	}
	// A missing default route is not an error; the host may have none.
	gateways, _ := in.Output(catalog.InterfacesDefaultGateway)
	ifaces, err := ParseInterfaces(addrs, gateways)
	c.Add(string(CategoryInterfaces), err)
	out.Interfaces = ifaces
	return nil
}

func parseUnixPorts(_ context.Context, in *Input, out *AssessmentResult, c *Collector) error {
	listen, err := in.Output(catalog.NetListenPort)
	if err != nil {
		c.Add(string(CategoryPorts), err)
	} else {
		out.Ports.Listen, err = ParseListenPorts(listen)
		c.Add(string(CategoryPorts), err)
	}

	traffic, err := in.Output(catalog.NetTraffics)
	if err != nil {
		c.Add(string(CategoryPorts), err)
		return nil
	}
	c.Add(string(CategoryPorts), ParseTraffic(traffic, &out.Ports))
	return nil
}

func parseFirewall(_ context.Context, in *Input, out *AssessmentResult, c *Collector) error {
	if text, err := in.Output(catalog.FirewallRule); err != nil {
		c.Add(string(CategoryFirewall), err)
	} else {
		out.Firewall.Rules = ParseFirewall(text)
	}
	if text, err := in.Output(catalog.FirewallExtraRule); err != nil {
		c.Add(string(CategoryFirewall), err)
	} else {
		out.Firewall.ExtraRules = ParseFirewall(text)
	}
	return nil
}

// parseCrontabs lists crontab files from both spool locations and reads
// each one. Only when both listings fail is the category an error; one
// location is routinely absent.
func parseCrontabs(ctx context.Context, in *Input, out *AssessmentResult, c *Collector) error {
	var (
		paths  []string
		failed error
		ok     bool
	)
	for _, key := range []catalog.FactKey{catalog.Crontab1, catalog.Crontab2} {
		text, err := in.Output(key)
		if err != nil {
			failed = multierr.Append(failed, err)
			continue
		}
		ok = true
		paths = append(paths, ParseCrontabList(text)...)
	}
	if !ok {
		c.Add(string(CategoryCrontabs), failed)
		return nil
	}

	paths = uniqueSorted(paths)
	if len(paths) == 0 {
		return nil
	}

	keys := make(map[catalog.FactKey]string, len(paths))
	entries := make([]catalog.Entry, 0, len(paths))
	for _, p := range paths {
		command, found := in.Catalog.Render(catalog.CrontabContent, conn.ShellQuote(p))
		if !found {
			c.Addf(string(CategoryCrontabs), "no %s template", catalog.CrontabContent)
			return nil
		}
		key := catalog.FactKey(fmt.Sprintf("%s:%s", catalog.CrontabContent, p))
		keys[key] = p
		entries = append(entries, catalog.Entry{Key: key, Command: command})
	}

	res, err := in.FollowUp(ctx, entries...)
	if err != nil {
		return followUpFailed(c, CategoryCrontabs, err)
	}
	out.Crontabs = map[string]string{}
	for key, p := range keys {
		text, ok := res.Stdout(key)
		if !ok {
			c.Addf(string(CategoryCrontabs), "%w: %s: %s", ErrCommandFailed, p, res[key].Message)
			continue
		}
		out.Crontabs[p] = text
	}
	return nil
}

// parseUlimits reads resource limits of every account with a login shell.
// Switching to another user needs root, so unprivileged runs skip it.
func parseUlimits(ctx context.Context, in *Input, out *AssessmentResult, c *Collector) error {
	if !in.Privilege.Effective() || len(out.Users) == 0 {
		return nil
	}

	var names []string
	for name, u := range out.Users {
		if u.CanLogin() {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	entries := make([]catalog.Entry, 0, len(names))
	for _, name := range names {
		command, found := in.Catalog.Render(catalog.Ulimit, conn.ShellQuote(name))
		if !found {
			return nil
		}
		entries = append(entries, catalog.Entry{Key: catalog.FactKey(fmt.Sprintf("%s:%s", catalog.Ulimit, name)), Command: command})
	}
	if len(entries) == 0 {
		return nil
	}

	res, err := in.FollowUp(ctx, entries...)
	if err != nil {
		return followUpFailed(c, CategoryUlimits, err)
	}
	out.Ulimits = map[string]map[string]string{}
	for i, name := range names {
		text, ok := res.Stdout(entries[i].Key)
		if !ok {
			c.Addf(string(CategoryUlimits), "%w: %s: %s", ErrCommandFailed, name, res[entries[i].Key].Message)
			continue
		}
		out.Ulimits[name] = ParseUlimit(text)
	}
	return nil
}

// parseDaemons prefers the systemd listing. legacyFirst switches to
// chkconfig for releases that predate systemd.
func parseDaemons(legacyFirst bool) ParseFunc {
	return func(_ context.Context, in *Input, out *AssessmentResult, c *Collector) error {
		modern := func() (map[string]Daemon, error) {
			text, err := in.Output(catalog.DaemonList)
			if err != nil {
				return nil, err
			}
			return ParseSystemdUnits(text), nil
		}
		legacy := func() (map[string]Daemon, error) {
			text, err := in.Output(catalog.DaemonListLegacy)
			if err != nil {
				return nil, err
			}
			return ParseChkconfig(text), nil
		}

		order := []func() (map[string]Daemon, error){modern, legacy}
		if legacyFirst && in.Distribution.MajorBelow(7) {
			order = []func() (map[string]Daemon, error){legacy, modern}
		}

		var errs error
		for _, source := range order {
			daemons, err := source()
			if err == nil {
				out.Daemons = daemons
				return nil
			}
			errs = multierr.Append(errs, err)
		}
		c.Add(string(CategoryDaemons), errs)
		return nil
	}
}

func daemonsFrom(parse func(string) map[string]Daemon) Step {
	return fromText(CategoryDaemons, catalog.DaemonList, func(out *AssessmentResult, s string) error {
		out.Daemons = parse(s)
		return nil
	})
}

func parseTimezone(_ context.Context, in *Input, out *AssessmentResult, c *Collector) error {
	var errs error
	for _, key := range []catalog.FactKey{catalog.Timezone1, catalog.Timezone2} {
		text, err := in.Output(key)
		if err == nil {
			var zone string
			if zone, err = ParseTimezone(text); err == nil {
				out.Timezone = zone
				return nil
			}
		}
		errs = multierr.Append(errs, err)
	}
	c.Add(string(CategoryTimezone), errs)
	return nil
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
