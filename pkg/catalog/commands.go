package catalog

import "github.com/vulntor/assessor/pkg/distro"

func unixBase() Catalog {
	return newCatalog(distro.FamilyUnknown, []Entry{
		{Architecture, "uname -m"},
		{Hostname, "uname -n"},
		{Kernel, "uname -r"},
		{KernelParam, "/sbin/sysctl -a"},
		{CPUFacts, "lscpu"},
		{MemoryFacts, "vmstat -s"},
		{Partitions, "df -PTm | tail -n+2"},
		{FSTab, "cat /etc/fstab"},
		{LVMVolumeGroups, "vgs | tail -n+2"},
		{Interfaces, "/sbin/ip addr"},
		{InterfacesDefaultGateway, "/sbin/ip route | grep default"},
		{RouteTable, "netstat -rn | tail -n+3"},
		{NetListenPort, "netstat -nap | grep LISTEN | grep -v LISTENING"},
		{NetTraffics, "netstat -nap | tail -n+3 | grep -v LISTEN | egrep 'tcp|udp'"},
		{FirewallRule, "/sbin/iptables -L -n"},
		{FirewallExtraRule, "/sbin/iptables -t nat -L -n"},
		{DNS, "cat /etc/resolv.conf | egrep -v '^#'"},
		{Hosts, "cat /etc/hosts"},
		{Users, "cat /etc/passwd | egrep -v '^#'"},
		{UserList, "cut -f1 -d: /etc/passwd"},
		{Groups, "cat /etc/group | egrep -v '^#'"},
		{Shadow, "cat /etc/shadow"},
		{Crontab1, "find /var/spool/cron -type f"},
		{Crontab2, "find /var/spool/cron/crontabs -type f"},
		{Processes, "ps -ef"},
		{DaemonList, "systemctl list-units --type service | tail -n+2 | head -n-6"},
		{DaemonListLegacy, "chkconfig --list"},
		{Timezone1, `timedatectl | grep "Time zone"`},
		{Timezone2, "cat /etc/sysconfig/clock | grep ZONE"},
		{Uptime, "uptime"},
		{Env, "env"},
		{Locale, "locale"},
		{LoginDefs, "cat /etc/login.defs"},
	}, map[FactKey]string{
		Ulimit:         "su - %s --shell /bin/bash -c 'ulimit -a'",
		CrontabContent: "cat %s",
	})
}

// dmi is read from sysfs, which only Linux kernels expose.
var dmi = []Entry{
	{BIOSVersion, "cat /sys/class/dmi/id/bios_version"},
	{SystemVendor, "cat /sys/class/dmi/id/sys_vendor"},
	{ProductName, "cat /sys/class/dmi/id/product_name"},
}

var debianDelta = append([]Entry{
	{Packages, `dpkg-query -W -f='${Package} ${Version}\n'`},
	{Timezone2, "cat /etc/timezone"},
}, dmi...)

var redhatDelta = append([]Entry{
	{Packages, `rpm -qa --qf '%{NAME} %{VERSION}-%{RELEASE}\n'`},
}, dmi...)

var suseDelta = append([]Entry{
	{Packages, `rpm -qa --qf '%{NAME} %{VERSION}-%{RELEASE}\n'`},
	{FirewallRule, "/usr/sbin/iptables -L -n"},
	{FirewallExtraRule, "/usr/sbin/iptables -t nat -L -n"},
	{Timezone2, "cat /etc/sysconfig/clock | grep TIMEZONE"},
}, dmi...)

var aixDelta = []Entry{
	{Architecture, "getconf KERNEL_BITMODE"},
	{Hostname, "/usr/bin/hostname"},
	{Kernel, "oslevel -s"},
	{Processes, "/usr/bin/ps -ef"},
	{DaemonList, "/usr/bin/lssrc -a | grep -v PID"},
	{Packages, `lslpp -lc | egrep -v '^#' | awk -F':' '{print $2, $3}'`},
}

var hpuxDelta = []Entry{
	{Architecture, "getconf KERNEL_BITS"},
	{Hostname, "/usr/bin/hostname"},
	{Kernel, "uname -r"},
	{Processes, "/usr/bin/ps -ef"},
	{Packages, `swlist | egrep -v '^#' | awk '{print $1, $2}'`},
}

var solarisDelta = []Entry{
	{Kernel, "uname -v"},
	{Processes, "LANG=C && export LANG && ps -ef"},
	{DaemonList, "LANG=C && export LANG && svcs -a | tail +2"},
	{Uptime, "LANG=C && export LANG && uptime"},
	{Packages, `pkginfo -l | awk '/PKGINST/ {n=$2} /VERSION/ {print n, $2}'`},
}

// windowsBase is PowerShell executed over WinRM. Multi-column output is
// tab separated so the Unix line parsers can be reused.
func windowsBase() Catalog {
	return newCatalog(distro.FamilyWindows, []Entry{
		{Architecture, "(Get-CimInstance Win32_OperatingSystem).OSArchitecture"},
		{Hostname, "hostname"},
		{Kernel, "(Get-CimInstance Win32_OperatingSystem).Version"},
		{CPUFacts, "Get-CimInstance Win32_Processor | ForEach-Object { $_.Name + [char]9 + $_.NumberOfCores + [char]9 + $_.NumberOfLogicalProcessors }"},
		{MemoryFacts, "$os = Get-CimInstance Win32_OperatingSystem; [string]$os.TotalVisibleMemorySize + [char]9 + [string]$os.FreePhysicalMemory"},
		{Partitions, "Get-CimInstance Win32_LogicalDisk -Filter 'DriveType=3' | ForEach-Object { $_.DeviceID + [char]9 + $_.FileSystem + [char]9 + [math]::Floor($_.Size/1MB) + [char]9 + [math]::Floor($_.FreeSpace/1MB) }"},
		{Interfaces, "Get-NetIPAddress | ForEach-Object { $_.InterfaceAlias + [char]9 + $_.AddressFamily + [char]9 + $_.IPAddress + [char]9 + $_.PrefixLength }"},
		{InterfacesDefaultGateway, "Get-NetRoute -DestinationPrefix '0.0.0.0/0' | ForEach-Object { $_.InterfaceAlias + [char]9 + $_.NextHop }"},
		{NetListenPort, "Get-NetTCPConnection -State Listen | ForEach-Object { $_.LocalAddress + [char]9 + $_.LocalPort + [char]9 + $_.OwningProcess }"},
		{DNS, "Get-DnsClientServerAddress -AddressFamily IPv4 | ForEach-Object { $_.ServerAddresses } | Sort-Object -Unique"},
		{Hosts, `Get-Content C:\Windows\System32\drivers\etc\hosts`},
		{UserList, "Get-LocalUser | ForEach-Object { $_.Name }"},
		{Groups, "Get-LocalGroup | ForEach-Object { $_.Name }"},
		{Processes, "Get-Process | ForEach-Object { [string]$_.Id + [char]9 + $_.ProcessName }"},
		{DaemonList, "Get-Service | ForEach-Object { $_.Name + [char]9 + $_.Status + [char]9 + $_.StartType }"},
		{Timezone1, "(Get-TimeZone).Id"},
		{Uptime, "(Get-CimInstance Win32_OperatingSystem).LastBootUpTime.ToUniversalTime().ToString('o')"},
		{Env, "Get-ChildItem Env: | ForEach-Object { $_.Name + '=' + $_.Value }"},
		{Locale, "(Get-Culture).Name"},
		{Packages, `Get-ItemProperty HKLM:\Software\Microsoft\Windows\CurrentVersion\Uninstall\*, HKLM:\Software\Wow6432Node\Microsoft\Windows\CurrentVersion\Uninstall\* | Where-Object { $_.DisplayName -and $_.DisplayVersion } | ForEach-Object { $_.DisplayName + [char]9 + $_.DisplayVersion }`},
		{CheckAdministrator, "([Security.Principal.WindowsPrincipal][Security.Principal.WindowsIdentity]::GetCurrent()).IsInRole([Security.Principal.WindowsBuiltInRole]::Administrator)"},
	}, nil)
}
