package middleware

import (
	"regexp"
	"strings"
)

// SystemProperties extracts -Dkey=value pairs from JVM arguments. Quotes
// around an argument are ignored.
func SystemProperties(options []string) map[string]string {
	props := map[string]string{}
	for _, opt := range options {
		opt = strings.Trim(opt, `"'`)
		if !strings.HasPrefix(opt, "-D") {
			continue
		}
		key, value, _ := strings.Cut(opt[2:], "=")
		if key != "" {
			props[key] = value
		}
	}
	return props
}

// JDBCDatabase extracts the database from common JDBC URL layouts:
// jdbc:mysql://host:3306/db?x, jdbc:oracle:thin:@host:1521:SID and
// jdbc:oracle:thin:@//host:1521/service.
func JDBCDatabase(url string) string {
	if !strings.HasPrefix(url, "jdbc:") {
		return ""
	}
	rest := url
	if i := strings.IndexAny(rest, "?;"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.Index(rest, "//"); i >= 0 {
		rest = rest[i+2:]
		if j := strings.LastIndex(rest, "/"); j >= 0 {
			return rest[j+1:]
		}
		return ""
	}
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		return rest[i+1:]
	}
	return ""
}

// InterfaceType classifies a datasource reference. A jdbc: URL under a
// plain name is JDBC; names that look like JNDI lookups are JNDI.
func InterfaceType(name, url string) string {
	if strings.Contains(url, "jdbc:") && !strings.Contains(strings.ToLower(name), "jndi") && !strings.Contains(name, "/") {
		return "JDBC"
	}
	return "JNDI"
}

var credentialAttrRe = regexp.MustCompile(`(?i)((?:password|keystorePass|truststorePass)\s*=\s*)("[^"]*"|'[^']*')`)

// Redact masks credential attributes in XML content before it is kept.
func Redact(content string) string {
	return credentialAttrRe.ReplaceAllString(content, `$1"****"`)
}
