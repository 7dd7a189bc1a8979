// Package catalog maps fact keys to the shell commands that collect them
// for each operating-system family.
package catalog

// FactKey names one diagnostic command. Keys are stable: downstream
// consumers depend on them, so new facts add keys and never rename.
type FactKey string

const (
	Architecture             FactKey = "ARCHITECTURE"
	Hostname                 FactKey = "HOSTNAME"
	Kernel                   FactKey = "KERNEL"
	KernelParam              FactKey = "KERNEL_PARAM"
	CPUFacts                 FactKey = "CPU_FACTS"
	MemoryFacts              FactKey = "MEMORY_FACTS"
	Partitions               FactKey = "PARTITIONS"
	FSTab                    FactKey = "FSTAB"
	LVMVolumeGroups          FactKey = "LVM_VGS"
	Interfaces               FactKey = "INTERFACES"
	InterfacesDefaultGateway FactKey = "INTERFACES_DEFAULT_GATEWAY"
	RouteTable               FactKey = "ROUTE_TABLE"
	NetListenPort            FactKey = "NET_LISTEN_PORT"
	NetTraffics              FactKey = "NET_TRAFFICS"
	FirewallRule             FactKey = "FIREWALL_RULE"
	FirewallExtraRule        FactKey = "FIREWALL_EXTRA_RULE"
	DNS                      FactKey = "DNS"
	Hosts                    FactKey = "HOSTS"
	Users                    FactKey = "USERS"
	UserList                 FactKey = "USER_LIST"
	Groups                   FactKey = "GROUPS"
	Shadow                   FactKey = "SHADOW"
	Crontab1                 FactKey = "CRONTAB1"
	Crontab2                 FactKey = "CRONTAB2"
	Processes                FactKey = "PROCESSES"
	DaemonList               FactKey = "DAEMON_LIST"
	DaemonListLegacy         FactKey = "DAEMON_LIST_LOWER_7"
	Timezone1                FactKey = "TIMEZONE1"
	Timezone2                FactKey = "TIMEZONE2"
	Uptime                   FactKey = "UPTIME"
	Env                      FactKey = "ENV"
	Locale                   FactKey = "LOCALE"
	LoginDefs                FactKey = "LOGIN_DEF"
	Packages                 FactKey = "PACKAGES"
	CheckAdministrator       FactKey = "CHECK_ADMINISTRATOR"
	BIOSVersion              FactKey = "BIOS_VERSION"
	SystemVendor             FactKey = "SYSTEM_VENDOR"
	ProductName              FactKey = "PRODUCT_NAME"

	// Ulimit is a template taking the user name.
	Ulimit FactKey = "ULIMIT"
	// CrontabContent is a template taking a crontab file path.
	CrontabContent FactKey = "CRONTAB_CONTENT"
)
