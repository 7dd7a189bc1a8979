package bind

import (
	"bytes"
	"fmt"
	"net"
	"strings"

	"github.com/spf13/cast"
)

// maxExpanded bounds the hosts one inventory address may expand to.
const maxExpanded = 4096

// ExpandAddress turns a CIDR ("10.0.0.0/29"), a last octet range
// ("10.0.0.10-20") or a full range ("10.0.0.10-10.0.0.20") into single
// addresses. Anything else, host names included, is returned unchanged.
// Network and broadcast addresses of IPv4 CIDRs up to /30 are skipped.
func ExpandAddress(address string) ([]string, error) {
	address = strings.TrimSpace(address)
	switch {
	case strings.Contains(address, "/"):
		return expandCIDR(address)
	case strings.Contains(address, "-"):
		start, end, _ := strings.Cut(address, "-")
		start, end = strings.TrimSpace(start), strings.TrimSpace(end)
		if net.ParseIP(start) == nil {
			// host-name-with-dashes
			return []string{address}, nil
		}
		if net.ParseIP(end) == nil {
			return expandOctetRange(address, start, end)
		}
		return expandRange(address, net.ParseIP(start), net.ParseIP(end))
	default:
		return []string{address}, nil
	}
}

func expandCIDR(address string) ([]string, error) {
	ip, ipNet, err := net.ParseCIDR(address)
	if err != nil {
		return nil, fmt.Errorf("parse CIDR %q: %w", address, err)
	}
	ones, bits := ipNet.Mask.Size()
	if bits-ones > 12 {
		return nil, fmt.Errorf("CIDR %q expands beyond %d hosts", address, maxExpanded)
	}

	skipEdges := ip.To4() != nil && ones > 0 && ones < 31
	network := ipNet.IP.Mask(ipNet.Mask)
	broadcast := make(net.IP, len(network))
	for i := range network {
		broadcast[i] = network[i] | ^ipNet.Mask[i]
	}

	var out []string
	for cur := cloneIP(network); ipNet.Contains(cur); incIP(cur) {
		if skipEdges && (cur.Equal(network) || cur.Equal(broadcast)) {
			continue
		}
		out = append(out, cur.String())
		if cur.Equal(broadcast) {
			break
		}
	}
	return out, nil
}

func expandOctetRange(address, start, end string) ([]string, error) {
	parts := strings.Split(start, ".")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid range %q", address)
	}
	from, errFrom := cast.ToIntE(parts[3])
	to, errTo := cast.ToIntE(end)
	if errFrom != nil || errTo != nil || to < from || to > 255 {
		return nil, fmt.Errorf("invalid range %q", address)
	}
	base := strings.Join(parts[:3], ".")
	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("%s.%d", base, i))
	}
	return out, nil
}

func expandRange(address string, start, end net.IP) ([]string, error) {
	if (start.To4() == nil) != (end.To4() == nil) {
		return nil, fmt.Errorf("mixed IP versions in range %q", address)
	}
	if v4 := start.To4(); v4 != nil {
		start, end = v4, end.To4()
	}
	if bytes.Compare(start, end) > 0 {
		return nil, fmt.Errorf("range %q starts after it ends", address)
	}

	var out []string
	for cur := cloneIP(start); ; incIP(cur) {
		out = append(out, cur.String())
		if cur.Equal(end) {
			return out, nil
		}
		if len(out) >= maxExpanded {
			return nil, fmt.Errorf("range %q expands beyond %d hosts", address, maxExpanded)
		}
	}
}

func cloneIP(ip net.IP) net.IP {
	out := make(net.IP, len(ip))
	copy(out, ip)
	return out
}

// incIP increments an IP address (works for IPv4 and IPv6).
func incIP(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}
