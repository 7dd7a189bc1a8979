package facts

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var cpuTime = regexp.MustCompile(`^(\d+-)?(\d+:)+\d+$`)

// ParseProcesses reads "ps -ef" output. STIME may span one or two
// columns, so the command starts right after the first TIME-shaped column
// at index 6 or 7. Defunct entries and kernel threads are skipped.
func ParseProcesses(text string) []Process {
	var procs []Process
	for _, line := range lines(text) {
		if strings.Contains(line, "<defunct>") {
			continue
		}
		f := strings.Fields(line)
		if len(f) < 8 || f[0] == "UID" {
			continue
		}

		var cmd []string
		switch {
		case len(f) > 8 && cpuTime.MatchString(f[7]):
			cmd = f[8:]
		case cpuTime.MatchString(f[6]):
			cmd = f[7:]
			if strings.HasPrefix(cmd[0], "[") && strings.HasSuffix(cmd[len(cmd)-1], "]") {
				continue
			}
		default:
			continue
		}
		procs = append(procs, Process{User: f[0], PID: f[1], PPID: f[2], Name: cmd[0], Cmd: cmd})
	}
	return procs
}

// ParseSystemdUnits reads "systemctl list-units --type service" rows.
// Failed units are prefixed with a bullet which shifts the columns.
func ParseSystemdUnits(text string) map[string]Daemon {
	daemons := map[string]Daemon{}
	for _, line := range lines(text) {
		f := strings.Fields(line)
		if len(f) == 0 {
			continue
		}
		if r, _ := utf8.DecodeRuneInString(f[0]); !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			f = f[1:]
		}
		if len(f) < 5 || !strings.Contains(f[0], ".") {
			continue
		}
		daemons[f[0]] = Daemon{
			Load:        f[1],
			Active:      f[2],
			Sub:         f[3],
			Description: strings.Join(f[4:], " "),
		}
	}
	return daemons
}

// ParseChkconfig reads "chkconfig --list", including the xinetd section.
// A SysV service counts as active when runlevel 3 or 5 is on.
func ParseChkconfig(text string) map[string]Daemon {
	daemons := map[string]Daemon{}
	for _, line := range lines(text) {
		f := strings.Fields(line)
		switch {
		case len(f) == 2 && strings.HasSuffix(f[0], ":"):
			daemons[strings.TrimSuffix(f[0], ":")] = Daemon{Load: "xinetd", Active: f[1]}
		case len(f) > 2 && strings.Contains(f[1], ":"):
			d := Daemon{Load: "sysv", Active: "off", Runlevels: map[string]string{}}
			for _, rl := range f[1:] {
				level, state, ok := strings.Cut(rl, ":")
				if !ok {
					continue
				}
				d.Runlevels[level] = state
				if (level == "3" || level == "5") && state == "on" {
					d.Active = "on"
				}
			}
			daemons[f[0]] = d
		}
	}
	return daemons
}

// ParseLssrc reads AIX "lssrc -a" rows: subsystem, optional group,
// optional PID, status.
func ParseLssrc(text string) map[string]Daemon {
	daemons := map[string]Daemon{}
	for _, line := range lines(text) {
		f := strings.Fields(line)
		if len(f) < 2 || f[0] == "Subsystem" {
			continue
		}
		d := Daemon{Load: "src", Active: f[len(f)-1]}
		if len(f) > 2 && !isDigits(f[1]) {
			d.Sub = f[1]
		}
		daemons[f[0]] = d
	}
	return daemons
}

// ParseSvcs reads Solaris "svcs -a" rows: STATE STIME FMRI.
func ParseSvcs(text string) map[string]Daemon {
	daemons := map[string]Daemon{}
	for _, line := range lines(text) {
		f := strings.Fields(line)
		if len(f) < 3 || f[0] == "STATE" {
			continue
		}
		daemons[f[len(f)-1]] = Daemon{Load: "smf", Active: f[0]}
	}
	return daemons
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
