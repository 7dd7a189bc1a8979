package middleware

import (
	"bufio"
	"context"
	"regexp"
	"strings"

	"github.com/vulntor/assessor/pkg/conn"
)

var (
	javaVersionRe   = regexp.MustCompile(`version "([^"]+)"`)
	serverVersionRe = regexp.MustCompile(`(?i)^(?:server )?version:\s*(.+)$`)
	versionNumberRe = regexp.MustCompile(`\d+(?:[.-]\d+)*`)
)

// ParseServerVersion reads the "Server version: Apache/2.4.57 (Unix)"
// banner printed by httpd -v, nginx -v and Tomcat's version.sh.
func ParseServerVersion(text string) (name, version string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if i := strings.Index(strings.ToLower(line), "version:"); i > 0 {
			line = strings.TrimSpace(line[i:])
		}
		m := serverVersionRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[1])
		n, v, ok := strings.Cut(value, "/")
		if !ok {
			return "", versionNumberRe.FindString(value)
		}
		return strings.TrimSpace(n), versionNumberRe.FindString(v)
	}
	return "", ""
}

// ParseJavaVersion reads java -version output.
func ParseJavaVersion(text string) (version, vendor string) {
	m := javaVersionRe.FindStringSubmatch(text)
	if m == nil {
		return "", ""
	}
	version = m[1]
	switch {
	case strings.Contains(text, "IBM J9"), strings.Contains(text, "IBM Semeru"):
		vendor = "IBM"
	case strings.Contains(text, "OpenJDK"):
		vendor = "OpenJDK"
	default:
		vendor = "Oracle"
	}
	return version, vendor
}

// ParseProperties reads a Java properties file. Continuation lines, '='
// and ':' separators and '#' or '!' comments are supported; escapes are
// kept as written.
func ParseProperties(text string) map[string]string {
	props := map[string]string{}
	sc := bufio.NewScanner(strings.NewReader(text))
	var pending string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if pending == "" && (line == "" || line[0] == '#' || line[0] == '!') {
			continue
		}
		if strings.HasSuffix(line, `\`) {
			pending += strings.TrimSuffix(line, `\`)
			continue
		}
		line = pending + line
		pending = ""

		i := strings.IndexAny(line, "=:")
		if i < 0 {
			props[line] = ""
			continue
		}
		props[strings.TrimSpace(line[:i])] = strings.TrimSpace(line[i+1:])
	}
	return props
}

// Expand replaces ${name} references in s with values from props. Unknown
// references are kept.
func Expand(s string, props map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			break
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			break
		}
		name := strings.TrimSpace(s[start+2 : start+end])
		b.WriteString(s[:start])
		if v, ok := props[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[start : start+end+1])
		}
		s = s[start+end+1:]
	}
	b.WriteString(s)
	return b.String()
}

// ProbeProcess looks for a process whose command line contains marker
// and reports its user. The grep itself is excluded.
func ProbeProcess(ctx context.Context, runner conn.Runner, marker string) (Runtime, error) {
	out, err := runner.Execute(ctx, "ps -eo user,args")
	if err != nil {
		return Runtime{}, err
	}
	return ParseProcessList(out.Stdout, marker), nil
}

// ParseProcessList finds the first "user args" row containing marker.
func ParseProcessList(text, marker string) Runtime {
	for _, line := range strings.Split(text, "\n") {
		f := strings.Fields(line)
		if len(f) < 2 || f[0] == "USER" {
			continue
		}
		args := strings.Join(f[1:], " ")
		if strings.Contains(args, marker) && !strings.HasPrefix(args, "grep ") {
			return Runtime{RunUser: f[0], Running: true}
		}
	}
	return Runtime{}
}
