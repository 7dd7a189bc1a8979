package facts

import (
	"fmt"
	"net"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

var ifaceHeader = regexp.MustCompile(`^\d+:\s`)

// ParseInterfaces reads "ip addr" output and attaches default gateways
// from "ip route | grep default" output.
func ParseInterfaces(addrs, gateways string) (map[string]*Interface, error) {
	ifaces := map[string]*Interface{}
	var (
		cur  *Interface
		errs error
	)
	for _, line := range lines(addrs) {
		if ifaceHeader.MatchString(line) {
			f := strings.Fields(line)
			name := strings.TrimSuffix(f[1], ":")
			if at := strings.Index(name, "@"); at > 0 {
				name = name[:at]
			}
			cur = &Interface{Device: name}
			ifaces[name] = cur
			continue
		}
		if cur == nil {
			continue
		}

		f := strings.Fields(line)
		if len(f) < 2 {
			continue
		}
		switch f[0] {
		case "link/ether":
			cur.MAC = f[1]
		case "inet":
			addr, err := parseIPv4(f)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", cur.Device, err))
				continue
			}
			cur.IPv4 = append(cur.IPv4, addr)
		case "inet6":
			prefix, err := netip.ParsePrefix(f[1])
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", cur.Device, err))
				continue
			}
			cur.IPv6 = append(cur.IPv6, IPv6Address{
				Address: prefix.Addr().String(),
				Prefix:  prefix.Bits(),
				Scope:   valueAfter(f, "scope"),
			})
		}
	}

	for _, line := range lines(gateways) {
		f := strings.Fields(line)
		if len(f) < 5 || f[0] != "default" || f[1] != "via" {
			continue
		}
		if iface, ok := ifaces[valueAfter(f, "dev")]; ok {
			iface.Gateway = f[2]
		}
	}
	return ifaces, errs
}

func parseIPv4(f []string) (IPv4Address, error) {
	prefix, err := netip.ParsePrefix(f[1])
	if err != nil {
		// Point-to-point and some legacy outputs omit the prefix length.
		a, aerr := netip.ParseAddr(f[1])
		if aerr != nil {
			return IPv4Address{}, err
		}
		prefix = netip.PrefixFrom(a, 32)
	}
	mask := net.CIDRMask(prefix.Bits(), 32)
	addr := IPv4Address{
		Address:   prefix.Addr().String(),
		Prefix:    prefix.Bits(),
		Netmask:   net.IP(mask).String(),
		Broadcast: valueAfter(f, "brd"),
	}
	if addr.Broadcast == "" && prefix.Bits() < 31 {
		ip := prefix.Addr().As4()
		for i := range ip {
			ip[i] |= ^mask[i]
		}
		addr.Broadcast = netip.AddrFrom4(ip).String()
	}
	return addr, nil
}

func valueAfter(f []string, key string) string {
	for i := 0; i < len(f)-1; i++ {
		if f[i] == key {
			return f[i+1]
		}
	}
	return ""
}

// ParseRoutes reads "netstat -rn" rows without headers.
func ParseRoutes(text string) []Route {
	var routes []Route
	for _, line := range lines(text) {
		f := strings.Fields(line)
		if len(f) < 8 {
			continue
		}
		routes = append(routes, Route{
			Destination: f[0],
			Gateway:     f[1],
			Genmask:     f[2],
			Flags:       f[3],
			Iface:       f[len(f)-1],
		})
	}
	return routes
}

// splitHostPort splits at the last ':' so IPv6 listeners keep their address.
func splitHostPort(s string) (string, int, error) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return "", 0, fmt.Errorf("no port in %q", s)
	}
	port, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("bad port in %q", s)
	}
	return s[:i], port, nil
}

func splitProgram(s string) (pid, name string) {
	if s == "-" {
		return "", ""
	}
	pid, name, _ = strings.Cut(s, "/")
	return pid, strings.TrimSuffix(name, ":")
}

// ParseListenPorts reads "netstat -nap | grep LISTEN" output.
func ParseListenPorts(text string) ([]ListenPort, error) {
	var (
		ports []ListenPort
		errs  error
	)
	for _, line := range lines(text) {
		f := strings.Fields(line)
		if len(f) < 4 || !(strings.HasPrefix(f[0], "tcp") || strings.HasPrefix(f[0], "udp")) {
			continue
		}
		addr, port, err := splitHostPort(f[3])
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		lp := ListenPort{Protocol: f[0], BindAddr: addr, Port: port}
		if len(f) > 6 {
			lp.PID, lp.Name = splitProgram(f[6])
		}
		ports = append(ports, lp)
	}
	return ports, errs
}

// ParseTraffic reads "netstat -nap" connection rows and fills the
// established and wait directions of ports. A connection is inbound when
// its local port is one of ports.Listen.
func ParseTraffic(text string, ports *PortList) error {
	listening := map[int]bool{}
	for _, lp := range ports.Listen {
		listening[lp.Port] = true
	}

	var errs error
	for _, line := range lines(text) {
		f := strings.Fields(line)
		if len(f) < 7 || !strings.HasPrefix(f[0], "tcp") {
			continue
		}
		status := strings.ToLower(f[5])
		established := strings.Contains(status, "established")
		if !established && !strings.Contains(status, "wait") {
			continue
		}

		localAddr, localPort, err := splitHostPort(f[3])
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		foreignAddr, foreignPort, err := splitHostPort(f[4])
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if localAddr == "127.0.0.1" && foreignAddr == "127.0.0.1" {
			continue
		}

		t := Traffic{
			Protocol:    f[0],
			LocalAddr:   localAddr,
			LocalPort:   localPort,
			ForeignAddr: foreignAddr,
			ForeignPort: foreignPort,
			Status:      f[5],
		}
		t.PID, t.Name = splitProgram(f[6])

		dir := &ports.Wait
		if established {
			dir = &ports.Established
		}
		if listening[localPort] {
			dir.Inbound = append(dir.Inbound, t)
		} else {
			dir.Outbound = append(dir.Outbound, t)
		}
	}
	return errs
}

// ParseFirewall reads "iptables -nL" output into rules per chain.
func ParseFirewall(text string) map[string][]Rule {
	rules := map[string][]Rule{}
	chain := ""
	for _, line := range lines(text) {
		if strings.HasPrefix(line, "Chain ") {
			if f := strings.Fields(line); len(f) > 1 {
				chain = f[1]
				rules[chain] = nil
			} else {
				chain = ""
			}
			continue
		}
		if chain == "" || strings.HasPrefix(line, "target ") {
			continue
		}
		f := strings.Fields(line)
		if len(f) < 5 {
			continue
		}
		r := Rule{Target: f[0], Protocol: f[1], Options: f[2], Source: f[3], Destination: f[4]}
		if len(f) > 5 {
			r.Extra = strings.Join(f[5:], " ")
		}
		rules[chain] = append(rules[chain], r)
	}
	return rules
}

// ParseDNS reads /etc/resolv.conf.
func ParseDNS(text string) DNS {
	var dns DNS
	for _, line := range contentLines(text) {
		f := strings.Fields(line)
		if len(f) < 2 {
			continue
		}
		switch f[0] {
		case "nameserver":
			dns.Nameservers = append(dns.Nameservers, f[1])
		case "search", "domain":
			dns.Search = append(dns.Search, f[1:]...)
		}
	}
	return dns
}

// ParseHosts reads /etc/hosts, keeping the raw text alongside the
// address to names mapping.
func ParseHosts(text string) Hosts {
	hosts := Hosts{Contents: text, Mappings: map[string][]string{}}
	for _, line := range lines(text) {
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		f := strings.Fields(line)
		if len(f) < 2 {
			continue
		}
		hosts.Mappings[f[0]] = append(hosts.Mappings[f[0]], f[1:]...)
	}
	return hosts
}
