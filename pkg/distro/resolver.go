package distro

import (
	"bufio"
	"context"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/logging"
)

// Distribution is the resolved identity of one host.
type Distribution struct {
	Name    string `json:"name"`
	ID      string `json:"id,omitempty"`
	Like    string `json:"like,omitempty"`
	Release string `json:"release,omitempty"`
	Pretty  string `json:"pretty,omitempty"`
	Family  Family `json:"family"`
	Marker  string `json:"marker,omitempty"`
}

// Known reports whether a family was resolved.
func (d Distribution) Known() bool {
	return d.Family != FamilyUnknown
}

var versionToken = regexp.MustCompile(`\d+(?:\.\d+){0,2}`)

// Version parses the first version-looking token of Release.
func (d Distribution) Version() (*semver.Version, bool) {
	token := versionToken.FindString(d.Release)
	if token == "" {
		return nil, false
	}
	v, err := semver.NewVersion(token)
	if err != nil {
		return nil, false
	}
	return v, true
}

// MajorBelow reports whether the release's major version is lower than
// major. Unparseable releases are never considered below.
func (d Distribution) MajorBelow(major uint64) bool {
	v, ok := d.Version()
	if !ok {
		return false
	}
	return v.Major() < major
}

type marker struct {
	name    string
	command string
	parse   func(out string) (Distribution, bool)
}

// Resolver probes well-known release markers in priority order.
type Resolver struct {
	markers []marker
	logger  zerolog.Logger
}

// NewResolver returns a resolver with the default marker order.
func NewResolver() *Resolver {
	return &Resolver{
		markers: []marker{
			{name: "os-release", command: "cat /etc/os-release", parse: parseOSRelease},
			{name: "lsb_release", command: "lsb_release -a", parse: parseLSBRelease},
			{name: "redhat-release", command: "cat /etc/redhat-release", parse: parseReleaseLine},
			{name: "system-release", command: "cat /etc/system-release", parse: parseReleaseLine},
			{name: "SuSE-release", command: "cat /etc/SuSE-release", parse: parseSuSERelease},
			{name: "debian_version", command: "cat /etc/debian_version", parse: parseDebianVersion},
			{name: "uname", command: "uname -sr", parse: parseUname},
			{name: "proc-version", command: "cat /proc/version", parse: parseProcVersion},
		},
		logger: logging.Component("distro"),
	}
}

// Resolve returns the first definitive match. A host matching no marker
// yields a Distribution with an unknown family and no error; transport
// failures and cancellation are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, runner conn.Runner, elevate bool) (Distribution, error) {
	for _, m := range r.markers {
		if err := ctx.Err(); err != nil {
			return Distribution{}, err
		}

		command := m.command
		if elevate {
			command = conn.Elevate(command)
		}

		out, err := runner.Execute(ctx, command)
		if err != nil {
			return Distribution{}, err
		}
		if out.Failed() || strings.TrimSpace(out.Stdout) == "" {
			continue
		}

		d, ok := m.parse(out.Stdout)
		if !ok {
			continue
		}
		d.Marker = m.name
		if d.Family == FamilyUnknown {
			d.Family = familyFromFields(d)
		}
		r.logger.Debug().Str("marker", m.name).Str("name", d.Name).Str("family", string(d.Family)).Msg("distribution resolved")
		return d, nil
	}

	r.logger.Warn().Msg("no release marker matched")
	return Distribution{}, nil
}

// ResolveWindows reads the OS caption over a PowerShell session.
func (r *Resolver) ResolveWindows(ctx context.Context, runner conn.Runner) (Distribution, error) {
	out, err := runner.Execute(ctx, `$os = Get-CimInstance Win32_OperatingSystem; $os.Caption + '|' + $os.Version`)
	if err != nil {
		return Distribution{}, err
	}

	d := Distribution{Name: "Windows", ID: "windows", Family: FamilyWindows, Marker: "win32_operatingsystem"}
	if out.Failed() {
		return d, nil
	}
	caption, version, _ := strings.Cut(strings.TrimSpace(out.Stdout), "|")
	if caption != "" {
		d.Name = strings.TrimSpace(caption)
		d.Pretty = d.Name
	}
	d.Release = strings.TrimSpace(version)
	return d, nil
}

func familyFromFields(d Distribution) Family {
	if f, ok := FamilyOf(d.ID); ok {
		return f
	}
	for _, like := range strings.Fields(d.Like) {
		if f, ok := FamilyOf(like); ok {
			return f
		}
	}
	if f, ok := FamilyOf(d.Name); ok {
		return f
	}
	if f, ok := FamilyOf(d.Pretty); ok {
		return f
	}
	return FamilyUnknown
}

func parseKeyValues(out, sep string) map[string]string {
	values := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, sep)
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	return values
}

func parseOSRelease(out string) (Distribution, bool) {
	kv := parseKeyValues(out, "=")
	if kv["NAME"] == "" && kv["ID"] == "" {
		return Distribution{}, false
	}
	return Distribution{
		Name:    kv["NAME"],
		ID:      kv["ID"],
		Like:    kv["ID_LIKE"],
		Release: firstNonEmpty(kv["VERSION_ID"], kv["VERSION"]),
		Pretty:  kv["PRETTY_NAME"],
	}, true
}

func parseLSBRelease(out string) (Distribution, bool) {
	kv := parseKeyValues(out, ":")
	id := kv["Distributor ID"]
	if id == "" || strings.EqualFold(id, "n/a") {
		return Distribution{}, false
	}
	return Distribution{
		Name:    id,
		ID:      strings.ToLower(id),
		Release: kv["Release"],
		Pretty:  kv["Description"],
	}, true
}

// parseReleaseLine handles "CentOS Linux release 7.9.2009 (Core)" style files.
func parseReleaseLine(out string) (Distribution, bool) {
	line := firstLine(out)
	if line == "" {
		return Distribution{}, false
	}
	name := line
	release := ""
	if idx := strings.Index(line, " release "); idx > 0 {
		name = line[:idx]
		release = versionToken.FindString(line[idx:])
	}
	return Distribution{Name: strings.TrimSpace(name), Release: release, Pretty: line}, true
}

func parseSuSERelease(out string) (Distribution, bool) {
	name := firstLine(out)
	if name == "" {
		return Distribution{}, false
	}
	kv := parseKeyValues(out, "=")
	release := kv["VERSION"]
	if patch := kv["PATCHLEVEL"]; patch != "" && release != "" {
		release += "." + patch
	}
	return Distribution{Name: name, ID: "sles", Release: release, Pretty: name, Family: FamilySUSE}, true
}

func parseDebianVersion(out string) (Distribution, bool) {
	release := firstLine(out)
	if release == "" {
		return Distribution{}, false
	}
	return Distribution{Name: "Debian", ID: "debian", Release: release, Family: FamilyDebian}, true
}

func parseUname(out string) (Distribution, bool) {
	fields := strings.Fields(firstLine(out))
	if len(fields) == 0 || strings.EqualFold(fields[0], "Linux") {
		return Distribution{}, false
	}
	f, ok := FamilyOf(fields[0])
	if !ok {
		return Distribution{}, false
	}
	d := Distribution{Name: fields[0], ID: strings.ToLower(fields[0]), Family: f}
	if len(fields) > 1 {
		d.Release = fields[1]
	}
	return d, true
}

func parseProcVersion(out string) (Distribution, bool) {
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "red hat"):
		return Distribution{Name: "Red Hat", ID: "rhel", Family: FamilyRedHat}, true
	case strings.Contains(lower, "ubuntu"):
		return Distribution{Name: "Ubuntu", ID: "ubuntu", Family: FamilyDebian}, true
	case strings.Contains(lower, "debian"):
		return Distribution{Name: "Debian", ID: "debian", Family: FamilyDebian}, true
	case strings.Contains(lower, "suse"):
		return Distribution{Name: "SUSE", ID: "sles", Family: FamilySUSE}, true
	}
	return Distribution{}, false
}

func firstLine(out string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(line)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
