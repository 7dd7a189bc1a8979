// Package facts turns raw command output into the typed fact tree of one
// host. Parsing never aborts the assessment: every fact that cannot be
// derived ends up in the result's error map.
package facts

import (
	"strings"
	"time"

	"github.com/vulntor/assessor/pkg/distro"
	"github.com/vulntor/assessor/pkg/privilege"
)

// AssessmentResult is the root fact tree for one host. It is always
// returned, possibly with a non-empty ErrorMap; callers must check it.
type AssessmentResult struct {
	Target       string              `json:"target" yaml:"target"`
	Distribution distro.Distribution `json:"distribution" yaml:"distribution"`
	Privilege    privilege.Decision  `json:"privilege" yaml:"privilege"`
	CollectedAt  time.Time           `json:"collected_at" yaml:"collected_at"`

	Architecture string   `json:"architecture,omitempty" yaml:"architecture,omitempty"`
	Hostname     string   `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Kernel       string   `json:"kernel,omitempty" yaml:"kernel,omitempty"`
	Hardware     Hardware `json:"hardware" yaml:"hardware"`

	CPU          CPU                  `json:"cpu" yaml:"cpu"`
	Memory       Memory               `json:"memory" yaml:"memory"`
	Partitions   map[string]Partition `json:"partitions,omitempty" yaml:"partitions,omitempty"`
	FSTab        []FSTabEntry         `json:"fstab,omitempty" yaml:"fstab,omitempty"`
	VolumeGroups []VolumeGroup        `json:"volume_groups,omitempty" yaml:"volume_groups,omitempty"`

	Interfaces map[string]*Interface `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	Routes     []Route               `json:"routes,omitempty" yaml:"routes,omitempty"`
	Ports      PortList              `json:"ports" yaml:"ports"`
	Firewall   Firewall              `json:"firewall" yaml:"firewall"`
	DNS        DNS                   `json:"dns" yaml:"dns"`
	Hosts      Hosts                 `json:"hosts" yaml:"hosts"`

	Users     map[string]User              `json:"users,omitempty" yaml:"users,omitempty"`
	Groups    map[string]Group             `json:"groups,omitempty" yaml:"groups,omitempty"`
	Shadows   map[string]Shadow            `json:"shadows,omitempty" yaml:"shadows,omitempty"`
	Crontabs  map[string]string            `json:"crontabs,omitempty" yaml:"crontabs,omitempty"`
	Ulimits   map[string]map[string]string `json:"ulimits,omitempty" yaml:"ulimits,omitempty"`
	LoginDefs LoginDefs                    `json:"login_defs" yaml:"login_defs"`

	Processes    []Process         `json:"processes,omitempty" yaml:"processes,omitempty"`
	Daemons      map[string]Daemon `json:"daemons,omitempty" yaml:"daemons,omitempty"`
	Packages     []Package         `json:"packages,omitempty" yaml:"packages,omitempty"`
	KernelParams map[string]string `json:"kernel_params,omitempty" yaml:"kernel_params,omitempty"`
	Locale       map[string]string `json:"locale,omitempty" yaml:"locale,omitempty"`
	Env          map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Timezone     string            `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	BootTime     *time.Time        `json:"boot_time,omitempty" yaml:"boot_time,omitempty"`

	ErrorMap map[string]string `json:"error_map" yaml:"error_map"`
}

// Partial reports whether some facts could not be derived.
func (r *AssessmentResult) Partial() bool {
	return len(r.ErrorMap) > 0
}

type Hardware struct {
	BIOSVersion  string `json:"bios_version,omitempty" yaml:"bios_version,omitempty"`
	SystemVendor string `json:"system_vendor,omitempty" yaml:"system_vendor,omitempty"`
	ProductName  string `json:"product_name,omitempty" yaml:"product_name,omitempty"`
}

type CPU struct {
	Model          string `json:"model,omitempty" yaml:"model,omitempty"`
	Sockets        int    `json:"sockets,omitempty" yaml:"sockets,omitempty"`
	CoresPerSocket int    `json:"cores_per_socket,omitempty" yaml:"cores_per_socket,omitempty"`
	ThreadsPerCore int    `json:"threads_per_core,omitempty" yaml:"threads_per_core,omitempty"`
	LogicalCPUs    int    `json:"logical_cpus,omitempty" yaml:"logical_cpus,omitempty"`
}

// Memory sizes are in MiB.
type Memory struct {
	TotalMB     int64 `json:"total_mb" yaml:"total_mb"`
	FreeMB      int64 `json:"free_mb" yaml:"free_mb"`
	SwapTotalMB int64 `json:"swap_total_mb" yaml:"swap_total_mb"`
	SwapFreeMB  int64 `json:"swap_free_mb" yaml:"swap_free_mb"`
}

// Partition sizes are in MiB.
type Partition struct {
	Device string `json:"device" yaml:"device"`
	FSType string `json:"fs_type" yaml:"fs_type"`
	SizeMB int64  `json:"size_mb" yaml:"size_mb"`
	UsedMB int64  `json:"used_mb" yaml:"used_mb"`
	FreeMB int64  `json:"free_mb" yaml:"free_mb"`
	Mount  string `json:"mount" yaml:"mount"`
}

type FSTabEntry struct {
	Device  string `json:"device" yaml:"device"`
	Mount   string `json:"mount" yaml:"mount"`
	Type    string `json:"type" yaml:"type"`
	Options string `json:"options" yaml:"options"`
	Dump    string `json:"dump,omitempty" yaml:"dump,omitempty"`
	Pass    string `json:"pass,omitempty" yaml:"pass,omitempty"`
}

type VolumeGroup struct {
	Name    string `json:"name" yaml:"name"`
	PVCount int    `json:"pv_count" yaml:"pv_count"`
	LVCount int    `json:"lv_count" yaml:"lv_count"`
	Attr    string `json:"attr" yaml:"attr"`
	Size    string `json:"size" yaml:"size"`
	Free    string `json:"free" yaml:"free"`
}

type Interface struct {
	Device  string        `json:"device" yaml:"device"`
	MAC     string        `json:"mac,omitempty" yaml:"mac,omitempty"`
	Gateway string        `json:"gateway,omitempty" yaml:"gateway,omitempty"`
	IPv4    []IPv4Address `json:"ipv4,omitempty" yaml:"ipv4,omitempty"`
	IPv6    []IPv6Address `json:"ipv6,omitempty" yaml:"ipv6,omitempty"`
}

type IPv4Address struct {
	Address   string `json:"address" yaml:"address"`
	Prefix    int    `json:"prefix" yaml:"prefix"`
	Netmask   string `json:"netmask" yaml:"netmask"`
	Broadcast string `json:"broadcast,omitempty" yaml:"broadcast,omitempty"`
}

type IPv6Address struct {
	Address string `json:"address" yaml:"address"`
	Prefix  int    `json:"prefix" yaml:"prefix"`
	Scope   string `json:"scope,omitempty" yaml:"scope,omitempty"`
}

type Route struct {
	Destination string `json:"destination" yaml:"destination"`
	Gateway     string `json:"gateway" yaml:"gateway"`
	Genmask     string `json:"genmask" yaml:"genmask"`
	Flags       string `json:"flags" yaml:"flags"`
	Iface       string `json:"iface" yaml:"iface"`
}

type ListenPort struct {
	Protocol string `json:"protocol" yaml:"protocol"`
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`
	Port     int    `json:"port" yaml:"port"`
	PID      string `json:"pid,omitempty" yaml:"pid,omitempty"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
}

type Traffic struct {
	Protocol    string `json:"protocol" yaml:"protocol"`
	LocalAddr   string `json:"local_addr" yaml:"local_addr"`
	LocalPort   int    `json:"local_port" yaml:"local_port"`
	ForeignAddr string `json:"foreign_addr" yaml:"foreign_addr"`
	ForeignPort int    `json:"foreign_port" yaml:"foreign_port"`
	Status      string `json:"status" yaml:"status"`
	PID         string `json:"pid,omitempty" yaml:"pid,omitempty"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Direction splits connections by whether the local side is a listening
// port (inbound) or not (outbound).
type Direction struct {
	Inbound  []Traffic `json:"inbound,omitempty" yaml:"inbound,omitempty"`
	Outbound []Traffic `json:"outbound,omitempty" yaml:"outbound,omitempty"`
}

type PortList struct {
	Listen      []ListenPort `json:"listen,omitempty" yaml:"listen,omitempty"`
	Established Direction    `json:"established" yaml:"established"`
	Wait        Direction    `json:"wait" yaml:"wait"`
}

type Rule struct {
	Target      string `json:"target" yaml:"target"`
	Protocol    string `json:"protocol" yaml:"protocol"`
	Options     string `json:"options" yaml:"options"`
	Source      string `json:"source" yaml:"source"`
	Destination string `json:"destination" yaml:"destination"`
	Extra       string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

type Firewall struct {
	Rules      map[string][]Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
	ExtraRules map[string][]Rule `json:"extra_rules,omitempty" yaml:"extra_rules,omitempty"`
}

type DNS struct {
	Nameservers []string `json:"nameservers,omitempty" yaml:"nameservers,omitempty"`
	Search      []string `json:"search,omitempty" yaml:"search,omitempty"`
}

type Hosts struct {
	Contents string              `json:"contents,omitempty" yaml:"contents,omitempty"`
	Mappings map[string][]string `json:"mappings,omitempty" yaml:"mappings,omitempty"`
}

type User struct {
	UID     string `json:"uid" yaml:"uid"`
	GID     string `json:"gid" yaml:"gid"`
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`
	Home    string `json:"home" yaml:"home"`
	Shell   string `json:"shell" yaml:"shell"`
}

// CanLogin reports whether the account has an interactive shell.
func (u User) CanLogin() bool {
	return u.Shell != "" && !strings.HasSuffix(u.Shell, "nologin") && !strings.HasSuffix(u.Shell, "/false")
}

type Group struct {
	GID     string   `json:"gid" yaml:"gid"`
	Members []string `json:"members,omitempty" yaml:"members,omitempty"`
}

// Shadow keeps password aging data. The hash itself is reduced to its
// algorithm marker.
type Shadow struct {
	Algorithm  string `json:"algorithm" yaml:"algorithm"`
	LastChange string `json:"last_change,omitempty" yaml:"last_change,omitempty"`
	MinDays    string `json:"min_days,omitempty" yaml:"min_days,omitempty"`
	MaxDays    string `json:"max_days,omitempty" yaml:"max_days,omitempty"`
	WarnDays   string `json:"warn_days,omitempty" yaml:"warn_days,omitempty"`
}

type LoginDefs struct {
	UIDMin      string `json:"uid_min,omitempty" yaml:"uid_min,omitempty"`
	UIDMax      string `json:"uid_max,omitempty" yaml:"uid_max,omitempty"`
	GIDMin      string `json:"gid_min,omitempty" yaml:"gid_min,omitempty"`
	GIDMax      string `json:"gid_max,omitempty" yaml:"gid_max,omitempty"`
	PassMaxDays string `json:"pass_max_days,omitempty" yaml:"pass_max_days,omitempty"`
	PassMinDays string `json:"pass_min_days,omitempty" yaml:"pass_min_days,omitempty"`
	PassWarnAge string `json:"pass_warn_age,omitempty" yaml:"pass_warn_age,omitempty"`
}

type Process struct {
	User string   `json:"user" yaml:"user"`
	PID  string   `json:"pid" yaml:"pid"`
	PPID string   `json:"ppid,omitempty" yaml:"ppid,omitempty"`
	Name string   `json:"name" yaml:"name"`
	Cmd  []string `json:"cmd,omitempty" yaml:"cmd,omitempty"`
}

type Daemon struct {
	Load        string            `json:"load,omitempty" yaml:"load,omitempty"`
	Active      string            `json:"active,omitempty" yaml:"active,omitempty"`
	Sub         string            `json:"sub,omitempty" yaml:"sub,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Runlevels   map[string]string `json:"runlevels,omitempty" yaml:"runlevels,omitempty"`
}

type Package struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}
