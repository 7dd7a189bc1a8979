package facts

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUptime(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Duration
	}{
		{"clock only", "5:02pm up 6:04, 2 users, load average: 0.00, 0.01, 0.05", 6*time.Hour + 4*time.Minute},
		{"minutes", " 17:02:33 up 58 min,  3 users,  load average: 0.10, 0.08, 0.01", 58 * time.Minute},
		{"days and clock", " 17:02:33 up 33 days,  8:13,  3 users,  load average: 0.00", 33*24*time.Hour + 8*time.Hour + 13*time.Minute},
		{"solaris day(s)", " 10:22am  up 1 day(s), 14:11,  1 user,  load average: 0.01", 24*time.Hour + 14*time.Hour + 11*time.Minute},
		{"hp-ux hr(s)", "  4:59pm  up 6 hr(s),  3 users,  load average: 0.40", 6 * time.Hour},
		{"day and minutes", "up 2 days, 5 min", 48*time.Hour + 5*time.Minute},
		{"seconds", "up 20 secs", 20 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUptime(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUptime_Unsupported(t *testing.T) {
	for _, in := range []string{
		"",
		"load average: 0.00",
		"backup finished",
		"up 2.5 days, 3 users",
		"up, 3 users",
	} {
		_, err := ParseUptime(in)
		assert.ErrorIs(t, err, ErrUnsupportedUptime, in)
	}
}

func TestBootTime(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	boot, err := BootTime("up 1 day, 2:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC), boot)
}

func TestParsePackages(t *testing.T) {
	pkgs, err := ParsePackages("bash 5.0\n\nvim 8.1\n")
	require.NoError(t, err)
	assert.Equal(t, []Package{{Name: "bash", Version: "5.0"}, {Name: "vim", Version: "8.1"}}, pkgs)

	pkgs, err = ParsePackages("Microsoft Edge\t118.0.2088.46\nbroken\nopenssl 3.0.2-0ubuntu1.10\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.Equal(t, []Package{
		{Name: "Microsoft Edge", Version: "118.0.2088.46"},
		{Name: "openssl", Version: "3.0.2-0ubuntu1.10"},
	}, pkgs)
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	c.Add("uptime", nil)
	assert.Equal(t, 0, c.Len())
	assert.NoError(t, c.Err())

	c.Add("uptime", errors.New("first"))
	c.Addf("uptime", "second %d", 2)
	c.Add("cpu", errors.New("no lscpu"))

	assert.True(t, c.Has("uptime"))
	assert.False(t, c.Has("memory"))
	assert.Equal(t, 2, c.Len())

	m := c.Map()
	assert.Equal(t, "first; second 2", m["uptime"])
	assert.Equal(t, "cpu: no lscpu; uptime: first; second 2", c.Err().Error())
}

func TestParseCPU(t *testing.T) {
	cpu, err := ParseCPU(`Architecture:        x86_64
CPU(s):              8
Thread(s) per core:  2
Core(s) per socket:  4
Socket(s):           1
Model name:          Intel(R) Xeon(R) CPU E5-2680 v4 @ 2.40GHz
`)
	require.NoError(t, err)
	assert.Equal(t, CPU{Model: "Intel(R) Xeon(R) CPU E5-2680 v4 @ 2.40GHz", Sockets: 1, CoresPerSocket: 4, ThreadsPerCore: 2, LogicalCPUs: 8}, cpu)

	_, err = ParseCPU("")
	assert.Error(t, err)
}

func TestParseMemory(t *testing.T) {
	mem, err := ParseMemory(`      8009416 K total memory
      2150300 K used memory
      4096000 K free memory
      2097148 K total swap
      1048576 K free swap
`)
	require.NoError(t, err)
	assert.Equal(t, Memory{TotalMB: 7821, FreeMB: 4000, SwapTotalMB: 2047, SwapFreeMB: 1024}, mem)

	_, err = ParseMemory("nothing useful")
	assert.Error(t, err)
}

func TestParsePartitions(t *testing.T) {
	parts, err := ParsePartitions(`/dev/sda1      xfs       1014   150   865      15% /boot
tmpfs          tmpfs      783     0   783       0% /run/user/0
/dev/mapper/rl ext4      40960 12000 28960      30% /
`)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, Partition{Device: "/dev/sda1", FSType: "xfs", SizeMB: 1014, UsedMB: 150, FreeMB: 865, Mount: "/boot"}, parts["/boot"])
	assert.Equal(t, int64(28960), parts["/"].FreeMB)
}

func TestParseFSTab(t *testing.T) {
	entries, err := ParseFSTab(`# /etc/fstab
UUID=1234 /     xfs  defaults 0 0
/dev/sdb1 /data ext4 noatime
broken
`)
	require.Error(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, FSTabEntry{Device: "UUID=1234", Mount: "/", Type: "xfs", Options: "defaults", Dump: "0", Pass: "0"}, entries[0])
	assert.Empty(t, entries[1].Pass)
}

func TestParseVolumeGroups(t *testing.T) {
	vgs := ParseVolumeGroups("  centos   1   2   0 wz--n- <19.00g    0 \n")
	require.Len(t, vgs, 1)
	assert.Equal(t, VolumeGroup{Name: "centos", PVCount: 1, LVCount: 2, Attr: "wz--n-", Size: "<19.00g", Free: "0"}, vgs[0])
}

func TestParseKernelParams(t *testing.T) {
	params := ParseKernelParams("net.ipv4.ip_forward = 0\nkernel.sem = 250\t32000\nempty =\nnet.ipv4.ip_forward = 1\nno separator\n")
	assert.Equal(t, map[string]string{
		"net.ipv4.ip_forward": "0,1",
		"kernel.sem":          "250 32000",
	}, params)
}

func TestParseKeyValues(t *testing.T) {
	values := ParseKeyValues("LANG=en_US.UTF-8\nLC_ALL=\"C\"\nMULTI=first\n  continued\n")
	assert.Equal(t, "en_US.UTF-8", values["LANG"])
	assert.Equal(t, "C", values["LC_ALL"])
	assert.Equal(t, "first continued", values["MULTI"])
}

func TestParseTimezone(t *testing.T) {
	for in, want := range map[string]string{
		"       Time zone: Asia/Seoul (KST, +0900)\n": "Asia/Seoul",
		`ZONE="America/New_York"`:                     "America/New_York",
		`TIMEZONE="Europe/Berlin"`:                    "Europe/Berlin",
		"Etc/UTC\n":                                   "Etc/UTC",
	} {
		got, err := ParseTimezone(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseTimezone("  \n")
	assert.Error(t, err)
}

const ipAddr = `1: lo: <LOOPBACK,UP,LOWER_UP> mtu 65536 qdisc noqueue state UNKNOWN group default qlen 1000
    link/loopback 00:00:00:00:00:00 brd 00:00:00:00:00:00
    inet 127.0.0.1/8 scope host lo
       valid_lft forever preferred_lft forever
    inet6 ::1/128 scope host
2: eth0: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc fq_codel state UP group default qlen 1000
    link/ether 52:54:00:12:34:56 brd ff:ff:ff:ff:ff:ff
    inet 10.0.2.15/24 brd 10.0.2.255 scope global dynamic eth0
    inet6 fe80::5054:ff:fe12:3456/64 scope link
3: docker0@if4: <NO-CARRIER,BROADCAST,MULTICAST,UP> mtu 1500 qdisc noqueue state DOWN group default
    inet 172.17.0.1/16 scope global docker0
`

func TestParseInterfaces(t *testing.T) {
	ifaces, err := ParseInterfaces(ipAddr, "default via 10.0.2.2 dev eth0 proto dhcp metric 100\n")
	require.NoError(t, err)
	require.Len(t, ifaces, 3)

	lo := ifaces["lo"]
	require.Len(t, lo.IPv4, 1)
	assert.Equal(t, IPv4Address{Address: "127.0.0.1", Prefix: 8, Netmask: "255.0.0.0", Broadcast: "127.255.255.255"}, lo.IPv4[0])
	assert.Empty(t, lo.MAC)

	eth0 := ifaces["eth0"]
	assert.Equal(t, "52:54:00:12:34:56", eth0.MAC)
	assert.Equal(t, "10.0.2.2", eth0.Gateway)
	assert.Equal(t, IPv4Address{Address: "10.0.2.15", Prefix: 24, Netmask: "255.255.255.0", Broadcast: "10.0.2.255"}, eth0.IPv4[0])
	assert.Equal(t, []IPv6Address{{Address: "fe80::5054:ff:fe12:3456", Prefix: 64, Scope: "link"}}, eth0.IPv6)

	docker := ifaces["docker0"]
	require.NotNil(t, docker)
	assert.Equal(t, "255.255.0.0", docker.IPv4[0].Netmask)
	assert.Equal(t, "172.17.255.255", docker.IPv4[0].Broadcast)
	assert.Empty(t, docker.Gateway)
}

func TestParseInterfaces_BadAddress(t *testing.T) {
	ifaces, err := ParseInterfaces("2: eth0: <UP>\n    inet not-an-ip scope global\n", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eth0")
	assert.Empty(t, ifaces["eth0"].IPv4)
}

func TestParseRoutes(t *testing.T) {
	routes := ParseRoutes(`0.0.0.0         10.0.2.2        0.0.0.0         UG        0 0          0 eth0
10.0.2.0        0.0.0.0         255.255.255.0   U         0 0          0 eth0
short line
`)
	require.Len(t, routes, 2)
	assert.Equal(t, Route{Destination: "0.0.0.0", Gateway: "10.0.2.2", Genmask: "0.0.0.0", Flags: "UG", Iface: "eth0"}, routes[0])
}

func TestParsePorts(t *testing.T) {
	listen, err := ParseListenPorts(`tcp        0      0 0.0.0.0:22              0.0.0.0:*               LISTEN      1020/sshd
tcp6       0      0 :::80                   :::*                    LISTEN      2210/nginx: master
tcp        0      0 10.0.0.1:http           0.0.0.0:*               LISTEN      -
`)
	require.Error(t, err)
	require.Len(t, listen, 2)
	assert.Equal(t, ListenPort{Protocol: "tcp", BindAddr: "0.0.0.0", Port: 22, PID: "1020", Name: "sshd"}, listen[0])
	assert.Equal(t, ListenPort{Protocol: "tcp6", BindAddr: "::", Port: 80, PID: "2210", Name: "nginx"}, listen[1])

	ports := PortList{Listen: listen}
	err = ParseTraffic(`tcp        0     36 10.0.2.15:22            10.0.2.2:51234          ESTABLISHED 3012/sshd: vagrant
tcp        0      0 10.0.2.15:41000         93.184.216.34:443       TIME_WAIT   -
tcp        0      0 127.0.0.1:5432          127.0.0.1:40000         ESTABLISHED 900/postgres
udp        0      0 10.0.2.15:68            10.0.2.2:67             ESTABLISHED 700/dhclient
`, &ports)
	require.NoError(t, err)

	require.Len(t, ports.Established.Inbound, 1)
	assert.Equal(t, 51234, ports.Established.Inbound[0].ForeignPort)
	assert.Equal(t, "sshd", ports.Established.Inbound[0].Name)
	assert.Empty(t, ports.Established.Outbound)

	require.Len(t, ports.Wait.Outbound, 1)
	assert.Equal(t, "93.184.216.34", ports.Wait.Outbound[0].ForeignAddr)
	assert.Empty(t, ports.Wait.Outbound[0].PID)
}

func TestParseFirewall(t *testing.T) {
	rules := ParseFirewall(`Chain INPUT (policy ACCEPT)
target     prot opt source               destination
ACCEPT     tcp  --  0.0.0.0/0            0.0.0.0/0            tcp dpt:22
DROP       all  --  10.0.0.0/8           0.0.0.0/0

Chain FORWARD (policy DROP)
target     prot opt source               destination
`)
	require.Len(t, rules["INPUT"], 2)
	assert.Equal(t, Rule{Target: "ACCEPT", Protocol: "tcp", Options: "--", Source: "0.0.0.0/0", Destination: "0.0.0.0/0", Extra: "tcp dpt:22"}, rules["INPUT"][0])
	assert.Empty(t, rules["INPUT"][1].Extra)
	assert.Contains(t, rules, "FORWARD")
	assert.Empty(t, rules["FORWARD"])
}

func TestParseFirewall_TruncatedChainHeader(t *testing.T) {
	rules := ParseFirewall("Chain \nACCEPT     all  --  0.0.0.0/0            0.0.0.0/0\nChain OUTPUT (policy ACCEPT)\nDROP       all  --  0.0.0.0/0            10.0.0.0/8\n")
	require.Len(t, rules, 1)
	require.Len(t, rules["OUTPUT"], 1)
	assert.Equal(t, "DROP", rules["OUTPUT"][0].Target)
}

func TestParseDNSAndHosts(t *testing.T) {
	dns := ParseDNS("# Generated by NetworkManager\nsearch corp.example lab.example\nnameserver 10.0.0.2\nnameserver 10.0.0.3\n")
	assert.Equal(t, DNS{Nameservers: []string{"10.0.0.2", "10.0.0.3"}, Search: []string{"corp.example", "lab.example"}}, dns)

	hosts := ParseHosts("127.0.0.1 localhost localhost.localdomain # loopback\n# comment\n10.0.0.5 db01\n10.0.0.5 db01.corp\n")
	assert.Equal(t, []string{"localhost", "localhost.localdomain"}, hosts.Mappings["127.0.0.1"])
	assert.Equal(t, []string{"db01", "db01.corp"}, hosts.Mappings["10.0.0.5"])
	assert.Contains(t, hosts.Contents, "# comment")
}

func TestParseAccounts(t *testing.T) {
	users := ParseUsers("root:x:0:0:root:/root:/bin/bash\nsshd:x:74:74:Privilege-separated SSH:/var/empty/sshd:/sbin/nologin\nbroken:x:1\n")
	require.Len(t, users, 2)
	assert.True(t, users["root"].CanLogin())
	assert.False(t, users["sshd"].CanLogin())
	assert.Equal(t, "74", users["sshd"].UID)

	groups, err := ParseGroups("wheel:x:10:alice,bob\nusers:x:100:\nbad line\n")
	require.Error(t, err)
	assert.Equal(t, Group{GID: "10", Members: []string{"alice", "bob"}}, groups["wheel"])
	assert.Empty(t, groups["users"].Members)

	shadows := ParseShadow("root:$6$salt$hash:19000:0:99999:7:::\nbin:*:18000:0:99999:7:::\nold:!$1$x$y:1:2:3:4:::\nsvc:!!:19000::::::\n")
	require.Len(t, shadows, 2)
	assert.Equal(t, Shadow{Algorithm: "sha512", LastChange: "19000", MinDays: "0", MaxDays: "99999", WarnDays: "7"}, shadows["root"])
	assert.Equal(t, "locked:md5", shadows["old"].Algorithm)
	for _, s := range shadows {
		assert.NotContains(t, s.Algorithm, "$")
	}

	defs := ParseLoginDefs("# comment\nPASS_MAX_DAYS\t99999\nUID_MIN 1000\nUID_MAX 60000\nGID_MIN 1000\n")
	assert.Equal(t, LoginDefs{UIDMin: "1000", UIDMax: "60000", GIDMin: "1000", PassMaxDays: "99999"}, defs)
}

func TestParseUlimit(t *testing.T) {
	limits := ParseUlimit(`core file size          (blocks, -c) 0
open files                      (-n) 1024
max user processes              (-u) unlimited
garbage
`)
	assert.Equal(t, map[string]string{
		"core file size":     "0",
		"open files":         "1024",
		"max user processes": "unlimited",
	}, limits)
}

func TestParseProcesses(t *testing.T) {
	procs := ParseProcesses(`UID        PID  PPID  C STIME TTY          TIME CMD
root         1     0  0 Oct18 ?        00:00:03 /sbin/init splash
root         2     0  0 Oct18 ?        00:00:00 [kthreadd]
www-data  1201  1200  0 Oct 18 ?       00:00:00 nginx: worker process
oracle    4400     1  0 09:12 ?     1-02:03:04 ora_pmon_ORCL
root      1300     1  0 09:12 ?        00:00:00 [sh] <defunct>
`)
	require.Len(t, procs, 3)
	assert.Equal(t, Process{User: "root", PID: "1", PPID: "0", Name: "/sbin/init", Cmd: []string{"/sbin/init", "splash"}}, procs[0])
	assert.Equal(t, "nginx:", procs[1].Name)
	assert.Equal(t, "ora_pmon_ORCL", procs[2].Name)
}

func TestParseDaemons(t *testing.T) {
	units := ParseSystemdUnits(`  sshd.service                 loaded active running OpenSSH server daemon
● postfix.service              loaded failed failed  Postfix Mail Transport Agent
`)
	require.Len(t, units, 2)
	assert.Equal(t, Daemon{Load: "loaded", Active: "active", Sub: "running", Description: "OpenSSH server daemon"}, units["sshd.service"])
	assert.Equal(t, "failed", units["postfix.service"].Active)

	sysv := ParseChkconfig(`network         0:off   1:off   2:on    3:on    4:on    5:on    6:off
kdump           0:off   1:off   2:off   3:off   4:off   5:off   6:off

xinetd based services:
        rsync:          off
`)
	require.Len(t, sysv, 3)
	assert.Equal(t, "on", sysv["network"].Active)
	assert.Equal(t, "off", sysv["kdump"].Active)
	assert.Equal(t, "on", sysv["network"].Runlevels["2"])
	assert.Equal(t, Daemon{Load: "xinetd", Active: "off"}, sysv["rsync"])

	src := ParseLssrc(" sendmail         mail             3866   active\n lpd              spooler                 inoperative\n")
	assert.Equal(t, Daemon{Load: "src", Active: "active", Sub: "mail"}, src["sendmail"])
	assert.Equal(t, "inoperative", src["lpd"].Active)

	smf := ParseSvcs("online         Jan_01   svc:/network/ssh:default\ndisabled       Jan_01   svc:/network/telnet:default\n")
	assert.Equal(t, "online", smf["svc:/network/ssh:default"].Active)
	assert.Len(t, smf, 2)
}

func TestParseWindows(t *testing.T) {
	cpu, err := ParseWindowsCPU("Intel Xeon Gold\t4\t8\nIntel Xeon Gold\t4\t8\n")
	require.NoError(t, err)
	assert.Equal(t, CPU{Model: "Intel Xeon Gold", Sockets: 2, CoresPerSocket: 4, ThreadsPerCore: 2, LogicalCPUs: 16}, cpu)

	mem, err := ParseWindowsMemory("16777216\t8388608\r\n")
	require.NoError(t, err)
	assert.Equal(t, Memory{TotalMB: 16384, FreeMB: 8192}, mem)

	parts, err := ParseWindowsPartitions("C:\tNTFS\t102400\t40960\n")
	require.NoError(t, err)
	assert.Equal(t, int64(61440), parts["C:"].UsedMB)

	ifaces, err := ParseWindowsInterfaces("Ethernet 2\tIPv4\t10.0.0.20\t24\nEthernet 2\tIPv6\tfe80::1\t64\n", "Ethernet 2\t10.0.0.1\n")
	require.NoError(t, err)
	assert.Equal(t, "255.255.255.0", ifaces["Ethernet 2"].IPv4[0].Netmask)
	assert.Equal(t, "10.0.0.1", ifaces["Ethernet 2"].Gateway)
	assert.Len(t, ifaces["Ethernet 2"].IPv6, 1)

	ports, err := ParseWindowsListenPorts("0.0.0.0\t3389\t1100\n::\t445\t4\n")
	require.NoError(t, err)
	assert.Equal(t, ListenPort{Protocol: "tcp", BindAddr: "0.0.0.0", Port: 3389, PID: "1100"}, ports[0])

	services := ParseWindowsServices("WinRM\tRunning\tAutomatic\n")
	assert.Equal(t, Daemon{Active: "Running", Load: "Automatic"}, services["WinRM"])

	boot, err := ParseBootInstant("2026-10-18T08:00:00.0000000Z\r\n")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC), boot)

	_, err = ParseBootInstant("yesterday")
	assert.ErrorIs(t, err, ErrUnsupportedUptime)
}
