package facts

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	upMarker    = regexp.MustCompile(`\bup\b`)
	clockPart   = regexp.MustCompile(`^(\d+):(\d{1,2})$`)
	unitPart    = regexp.MustCompile(`^(\d+)\s*([a-z()]+)$`)
	fractionNum = regexp.MustCompile(`^\d+\.\d+`)
)

// ParseUptime reads the elapsed time from "uptime" output. Day, hour and
// minute components may appear in any combination; missing ones count as
// zero. Layouts other than whole numbers with a unit or H:MM, fractional
// days included, are reported as ErrUnsupportedUptime.
//
//	"5:02pm up 6:04, 2 users, load average: ..."   -> 6h4m
//	"17:02:33 up 33 days, 8:13, 3 users, ..."     -> 33d8h13m
//	"17:02:33 up 58 min, 3 users, ..."            -> 58m
//	"4:59pm up 6 hr(s), 3 users, ..."             -> 6h
func ParseUptime(text string) (time.Duration, error) {
	lower := strings.ToLower(text)
	loc := upMarker.FindStringIndex(lower)
	if loc == nil {
		return 0, fmt.Errorf("%w: no \"up\" marker in %q", ErrUnsupportedUptime, strings.TrimSpace(text))
	}

	var (
		elapsed time.Duration
		parsed  bool
	)
	for _, segment := range strings.Split(lower[loc[1]:], ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		if strings.Contains(segment, "user") || strings.Contains(segment, "load") {
			break
		}

		d, err := parseUptimeSegment(segment)
		if err != nil {
			return 0, err
		}
		elapsed += d
		parsed = true
	}

	if !parsed {
		return 0, fmt.Errorf("%w: no duration in %q", ErrUnsupportedUptime, strings.TrimSpace(text))
	}
	return elapsed, nil
}

func parseUptimeSegment(segment string) (time.Duration, error) {
	if m := clockPart.FindStringSubmatch(segment); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		return time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute, nil
	}
	if fractionNum.MatchString(segment) {
		return 0, fmt.Errorf("%w: fractional value %q", ErrUnsupportedUptime, segment)
	}

	m := unitPart.FindStringSubmatch(segment)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedUptime, segment)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedUptime, segment)
	}

	unit := m[2]
	switch {
	case strings.HasPrefix(unit, "d"):
		return time.Duration(n) * 24 * time.Hour, nil
	case strings.HasPrefix(unit, "h"):
		return time.Duration(n) * time.Hour, nil
	case strings.HasPrefix(unit, "m"):
		return time.Duration(n) * time.Minute, nil
	case strings.HasPrefix(unit, "s"):
		return time.Duration(n) * time.Second, nil
	default:
		return 0, fmt.Errorf("%w: unit %q", ErrUnsupportedUptime, unit)
	}
}

// BootTime converts uptime output to the absolute instant the host started.
func BootTime(text string, now time.Time) (time.Time, error) {
	elapsed, err := ParseUptime(text)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(-elapsed), nil
}
