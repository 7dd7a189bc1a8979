package policy

import (
	"strconv"
	"strings"
)

// Endpoint is a hard coded address found in a line.
type Endpoint struct {
	Kind     Kind   `json:"kind" yaml:"kind"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	Protocol string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
}

// Endpoints extracts URLs, IPv4 literals and localhost references from
// text. An address reported by several categories is returned once, with
// the URL form preferred and portless duplicates dropped.
func (s *Set) Endpoints(text string) []Endpoint {
	var out []Endpoint
	seen := map[string]bool{}
	hosts := map[string]bool{}
	add := func(eps []Endpoint) {
		for _, ep := range eps {
			key := ep.Host + ":" + strconv.Itoa(ep.Port)
			if seen[key] || (ep.Port == 0 && hosts[ep.Host]) {
				continue
			}
			seen[key] = true
			hosts[ep.Host] = true
			out = append(out, ep)
		}
	}
	add(httpEndpoints(text))
	add(ipv4Endpoints(text, false))
	if strings.Contains(text, "localhost") {
		add(localhostEndpoints(text))
	}
	return out
}

// ipv4Endpoints scans for dotted quads that are not followed by another
// digit. Lines holding five or more dotted groups carry no address. With
// withPort only addresses followed by a valid port are returned.
func ipv4Endpoints(text string, withPort bool) []Endpoint {
	if fiveGroupsRe.MatchString(text) {
		return nil
	}
	var out []Endpoint
	for pos := 0; pos < len(text); {
		loc := ipv4PortRe.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[2], pos+loc[3]
		if end < len(text) && isDigit(text[end]) {
			pos += loc[0] + 1
			continue
		}
		ep := Endpoint{Kind: KindIPv4, Host: text[start:end]}
		if loc[4] >= 0 {
			if port, ok := parsePort(text[pos+loc[4] : pos+loc[5]]); ok {
				ep.Kind = KindIPv4Port
				ep.Port = port
			}
		}
		if !withPort || ep.Port > 0 {
			out = append(out, ep)
		}
		pos += loc[1]
	}
	return out
}

func httpEndpoints(text string) []Endpoint {
	var out []Endpoint
	for _, m := range httpRe.FindAllStringSubmatch(text, -1) {
		scheme := strings.ToLower(m[1])
		_, rest, _ := strings.Cut(m[0], "://")
		host, _, _ := strings.Cut(rest, ":")
		ep := Endpoint{Kind: KindHTTP, Host: host, Protocol: strings.ToUpper(scheme)}
		if port, ok := parsePort(m[2]); ok {
			ep.Port = port
		} else if scheme == "https" || scheme == "wss" {
			ep.Port = 443
		} else {
			ep.Port = 80
		}
		out = append(out, ep)
	}
	return out
}

func localhostEndpoints(text string) []Endpoint {
	var out []Endpoint
	for _, m := range localhostPortRe.FindAllStringSubmatch(text, -1) {
		ep := Endpoint{Kind: KindLocalhostPort, Host: "localhost"}
		if port, ok := parsePort(m[1]); ok {
			ep.Port = port
		}
		out = append(out, ep)
	}
	return out
}

// parsePort accepts 1..65535 without leading zeros.
func parsePort(s string) (int, bool) {
	if s == "" || len(s) > 5 || s[0] == '0' {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return 0, false
	}
	return n, true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
