// Package middleware holds what the middleware parsers share: the Source
// abstraction over configuration artifacts, the normalized discovery
// Record and the runtime helpers used to fill it.
package middleware

import (
	"fmt"
	"strings"
)

// Kind names a middleware product.
type Kind string

const (
	KindApache    Kind = "apache"
	KindNginx     Kind = "nginx"
	KindTomcat    Kind = "tomcat"
	KindWebSphere Kind = "websphere"
)

// Kinds lists supported kinds in display order.
func Kinds() []Kind {
	return []Kind{KindApache, KindNginx, KindTomcat, KindWebSphere}
}

// ParseKind resolves a user supplied kind name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "apache", "httpd", "apache2":
		return KindApache, nil
	case "nginx":
		return KindNginx, nil
	case "tomcat":
		return KindTomcat, nil
	case "websphere", "was":
		return KindWebSphere, nil
	}
	return "", WithErrorCode(fmt.Errorf("%w: %q", ErrUnsupportedKind, s), errorCodeUnsupportedKind)
}

// Instance is an assembled middleware tree.
type Instance interface {
	Kind() Kind
	// Records maps the instance to its discovery records. It must not
	// modify the instance.
	Records() []Record
}

// ConfigFile is one configuration file read during parsing.
type ConfigFile struct {
	Path    string `json:"path" yaml:"path"`
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
}

// Runtime carries process level facts that configuration files cannot
// tell: who runs the server, whether it runs and which versions it uses.
type Runtime struct {
	RunUser     string `json:"run_user,omitempty" yaml:"run_user,omitempty"`
	Running     bool   `json:"running" yaml:"running"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	JavaVersion string `json:"java_version,omitempty" yaml:"java_version,omitempty"`
	JavaVendor  string `json:"java_vendor,omitempty" yaml:"java_vendor,omitempty"`
}

// Record is the normalized discovery record used to compare instances of
// different products.
type Record struct {
	Kind           Kind     `json:"kind" yaml:"kind"`
	Name           string   `json:"name" yaml:"name"`
	Path           string   `json:"path" yaml:"path"`
	Detail         string   `json:"detail,omitempty" yaml:"detail,omitempty"`
	Ports          []int    `json:"ports" yaml:"ports"`
	Protocols      []string `json:"protocols" yaml:"protocols"`
	RunUser        string   `json:"run_user,omitempty" yaml:"run_user,omitempty"`
	EngineVersion  string   `json:"engine_version,omitempty" yaml:"engine_version,omitempty"`
	RuntimeVersion string   `json:"runtime_version,omitempty" yaml:"runtime_version,omitempty"`
	Running        bool     `json:"running" yaml:"running"`
}

// WebProtocol labels a web listener port. Ports ending in 443 are SSL.
func WebProtocol(port int) string {
	if port%1000 == 443 {
		return "SSL"
	}
	return "HTTP"
}

// AppendPort appends port to ports unless present or out of range.
func AppendPort(ports []int, port int) []int {
	if port < 1 || port > 65535 {
		return ports
	}
	for _, p := range ports {
		if p == port {
			return ports
		}
	}
	return append(ports, port)
}
