package facts

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ParseUsers reads /etc/passwd. Lines with fewer than seven fields are
// skipped.
func ParseUsers(text string) map[string]User {
	users := map[string]User{}
	for _, line := range contentLines(text) {
		f := strings.Split(line, ":")
		if len(f) < 7 {
			continue
		}
		users[f[0]] = User{UID: f[2], GID: f[3], Comment: f[4], Home: f[5], Shell: strings.TrimSpace(f[6])}
	}
	return users
}

// ParseGroups reads /etc/group.
func ParseGroups(text string) (map[string]Group, error) {
	groups := map[string]Group{}
	var errs error
	for _, line := range contentLines(text) {
		f := strings.SplitN(line, ":", 4)
		if len(f) < 4 {
			errs = multierr.Append(errs, fmt.Errorf("malformed group line %q", line))
			continue
		}
		g := Group{GID: f[2]}
		for _, m := range strings.Split(strings.TrimSpace(f[3]), ",") {
			if m != "" {
				g.Members = append(g.Members, m)
			}
		}
		groups[f[0]] = g
	}
	return groups, errs
}

// ParseShadow reads /etc/shadow. Accounts without a usable password
// ("*", "!!", "!" or "!*") are skipped.
func ParseShadow(text string) map[string]Shadow {
	shadows := map[string]Shadow{}
	for _, line := range contentLines(text) {
		f := strings.Split(line, ":")
		if len(f) < 2 {
			continue
		}
		switch f[1] {
		case "", "*", "!!", "!", "!*":
			continue
		}
		s := Shadow{Algorithm: hashAlgorithm(f[1])}
		field := func(i int) string {
			if i < len(f) {
				return f[i]
			}
			return ""
		}
		s.LastChange, s.MinDays, s.MaxDays, s.WarnDays = field(2), field(3), field(4), field(5)
		shadows[f[0]] = s
	}
	return shadows
}

func hashAlgorithm(hash string) string {
	locked := strings.HasPrefix(hash, "!")
	hash = strings.TrimLeft(hash, "!")

	alg := "des"
	if strings.HasPrefix(hash, "$") {
		id, _, _ := strings.Cut(hash[1:], "$")
		switch id {
		case "1":
			alg = "md5"
		case "2a", "2b", "2y":
			alg = "bcrypt"
		case "5":
			alg = "sha256"
		case "6":
			alg = "sha512"
		case "y":
			alg = "yescrypt"
		default:
			alg = "unknown"
		}
	}
	if locked {
		return "locked:" + alg
	}
	return alg
}

// ParseLoginDefs reads the UID/GID ranges and password aging defaults
// from /etc/login.defs.
func ParseLoginDefs(text string) LoginDefs {
	var defs LoginDefs
	for _, line := range contentLines(text) {
		f := strings.Fields(line)
		if len(f) < 2 {
			continue
		}
		switch f[0] {
		case "UID_MIN":
			defs.UIDMin = f[1]
		case "UID_MAX":
			defs.UIDMax = f[1]
		case "GID_MIN":
			defs.GIDMin = f[1]
		case "GID_MAX":
			defs.GIDMax = f[1]
		case "PASS_MAX_DAYS":
			defs.PassMaxDays = f[1]
		case "PASS_MIN_DAYS":
			defs.PassMinDays = f[1]
		case "PASS_WARN_AGE":
			defs.PassWarnAge = f[1]
		}
	}
	return defs
}

// ParseUlimit reads "ulimit -a" output. Lines look like
// "open files                      (-n) 1024".
func ParseUlimit(text string) map[string]string {
	limits := map[string]string{}
	for _, line := range lines(text) {
		i := strings.Index(line, "(")
		if i <= 0 {
			continue
		}
		f := strings.Fields(line)
		item := strings.TrimSpace(line[:i])
		if item == "" || len(f) == 0 {
			continue
		}
		limits[item] = f[len(f)-1]
	}
	return limits
}

// ParseCrontabList reads the list of crontab files, one path per line.
func ParseCrontabList(text string) []string {
	var paths []string
	for _, line := range lines(text) {
		if p := strings.TrimSpace(line); p != "" && !strings.HasSuffix(p, ":") {
			paths = append(paths, p)
		}
	}
	return paths
}
