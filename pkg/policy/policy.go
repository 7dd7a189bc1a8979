// Package policy classifies source text lines into migration relevant
// categories such as legacy API usage, JDBC URLs and hard coded addresses.
//
// A Set is immutable once built and safe for concurrent use. Caller
// supplied substrings live in a separate Custom value attached with
// WithCustom, which returns a new Set.
package policy

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Kind names a classification category.
type Kind string

const (
	KindAPI           Kind = "api"
	KindServlet       Kind = "servlet"
	KindJDBC          Kind = "jdbc"
	KindJNDI          Kind = "jndi"
	KindIPv4          Kind = "ipv4"
	KindIPv4Port      Kind = "ipv4_port"
	KindHTTP          Kind = "http"
	KindLocalhostPort Kind = "localhost_port"
	KindCustom        Kind = "custom"
)

// Kinds returns every category in classification order.
func Kinds() []Kind {
	return []Kind{KindAPI, KindServlet, KindJDBC, KindJNDI, KindIPv4, KindIPv4Port, KindHTTP, KindLocalhostPort, KindCustom}
}

// ParseKind validates a category name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Kinds(), k) {
		return k, nil
	}
	return "", fmt.Errorf("unknown policy kind %q", s)
}

var (
	apiPatterns = []string{
		`javax\.ejb\.`,
		`javax\.resource\.`,
		`javax\.jms\.`,
		`javax\.naming\.`,
		`javax\.persistence\.`,
		`javax\.transaction\.`,
		`java\.sql\.`,
		`org\.springframework\.ejb\.`,
		`org\.springframework\.jndi\.`,
		`weblogic\.`,
		`com\.ibm\.websphere\.`,
		`com\.ibm\.wsspi\.`,
		`org\.jboss\.`,
		`jeus\.`,
	}
	servletPatterns = []string{
		`extends HttpServlet`,
		`extends javax\.servlet\.http\.HttpServlet`,
		`@Controller`,
		`@RestController`,
	}
	jdbcPatterns = []string{`jdbc:`}
	jndiPatterns = []string{
		`DataSource.*\.lookup`,
		`name.*jndiName.*value`,
		`\.getDataSource\(`,
	}
)

const octet = `(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)`

var (
	ipv4PortRe      = regexp.MustCompile(`((?:` + octet + `\.){3}` + octet + `)(?::([0-9]+))?`)
	fiveGroupsRe    = regexp.MustCompile(`.*(?:` + octet + `\.){4}.*`)
	notJNDIRe       = regexp.MustCompile(`.*\.getDataSource\(\).*`)
	httpRe          = regexp.MustCompile(`(https?|wss?)://(?:www\.)?[-a-zA-Z0-9@:%._\+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b(?::([0-9]+))?`)
	localhostPortRe = regexp.MustCompile(`localhost(?::([0-9]+))?`)
)

// alternation joins sub-patterns into one expression matching anywhere
// in a line.
func alternation(subs []string) *regexp.Regexp {
	return regexp.MustCompile(`.*(?:` + strings.Join(subs, "|") + `).*`)
}

// Set is the compiled classification policy.
type Set struct {
	api     *regexp.Regexp
	servlet *regexp.Regexp
	jdbc    *regexp.Regexp
	jndi    *regexp.Regexp
	custom  *Custom
}

// NewSet compiles the built-in categories.
func NewSet() *Set {
	return &Set{
		api:     alternation(apiPatterns),
		servlet: alternation(servletPatterns),
		jdbc:    alternation(jdbcPatterns),
		jndi:    alternation(jndiPatterns),
	}
}

// WithCustom returns a copy of s that also classifies KindCustom with c.
func (s *Set) WithCustom(c *Custom) *Set {
	cp := *s
	cp.custom = c
	return &cp
}

// Custom returns the attached custom category, or nil.
func (s *Set) Custom() *Custom { return s.custom }

// Matches reports whether text falls into the category kind.
func (s *Set) Matches(kind Kind, text string) bool {
	switch kind {
	case KindAPI:
		return s.api.MatchString(text)
	case KindServlet:
		return s.servlet.MatchString(text)
	case KindJDBC:
		return s.jdbc.MatchString(text)
	case KindJNDI:
		return s.jndi.MatchString(text) && !notJNDIRe.MatchString(text)
	case KindIPv4:
		return len(ipv4Endpoints(text, false)) > 0
	case KindIPv4Port:
		return len(ipv4Endpoints(text, true)) > 0
	case KindHTTP:
		return httpRe.MatchString(text)
	case KindLocalhostPort:
		return strings.Contains(text, "localhost")
	case KindCustom:
		return s.custom.Matches(text)
	default:
		return false
	}
}

// Classify returns every category text falls into, in Kinds order.
func (s *Set) Classify(text string) []Kind {
	var out []Kind
	for _, k := range Kinds() {
		if s.Matches(k, text) {
			out = append(out, k)
		}
	}
	return out
}

// Custom is a caller supplied category of literal substrings.
type Custom struct {
	patterns []string
	re       *regexp.Regexp
}

// NewCustom escapes every pattern and compiles them into one alternation.
// Empty strings are ignored. A Custom built from an empty list has no
// matcher and matches nothing; callers expecting a match from it get none.
func NewCustom(patterns []string) *Custom {
	c := &Custom{}
	var subs []string
	for _, p := range patterns {
		if p == "" {
			continue
		}
		c.patterns = append(c.patterns, p)
		subs = append(subs, regexp.QuoteMeta(p))
	}
	if len(subs) > 0 {
		c.re = alternation(subs)
	}
	return c
}

// Patterns returns the literal substrings of c.
func (c *Custom) Patterns() []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.patterns)
}

// Matches reports whether text contains one of the patterns. A nil or
// empty Custom matches nothing.
func (c *Custom) Matches(text string) bool {
	if c == nil || c.re == nil {
		return false
	}
	return c.re.MatchString(text)
}
