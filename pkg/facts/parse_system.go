package facts

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/multierr"
)

// lines splits command output, dropping carriage returns and blank lines.
func lines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// contentLines is lines without '#' comments.
func contentLines(text string) []string {
	var out []string
	for _, line := range lines(text) {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func singleLine(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(text, "\r", ""), "\n", ""))
}

// ParseCPU reads lscpu output.
func ParseCPU(text string) (CPU, error) {
	var cpu CPU
	for _, line := range lines(text) {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Model name":
			cpu.Model = value
		case "Socket(s)", "CPU socket(s)":
			cpu.Sockets = cast.ToInt(value)
		case "Core(s) per socket":
			cpu.CoresPerSocket = cast.ToInt(value)
		case "Thread(s) per core":
			cpu.ThreadsPerCore = cast.ToInt(value)
		case "CPU(s)":
			cpu.LogicalCPUs = cast.ToInt(value)
		}
	}
	if cpu == (CPU{}) {
		return cpu, errors.New("no processor fields in lscpu output")
	}
	return cpu, nil
}

// ParseMemory reads "vmstat -s" output (KiB) into MiB values.
func ParseMemory(text string) (Memory, error) {
	var (
		mem   Memory
		errs  error
		found bool
	)
	for _, line := range lines(text) {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		var target *int64
		switch {
		case strings.Contains(line, "total memory"):
			target = &mem.TotalMB
		case strings.Contains(line, "free memory"):
			target = &mem.FreeMB
		case strings.Contains(line, "total swap"):
			target = &mem.SwapTotalMB
		case strings.Contains(line, "free swap"):
			target = &mem.SwapFreeMB
		default:
			continue
		}

		kb, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("parse %q: %w", strings.TrimSpace(line), err))
			continue
		}
		*target = kb / 1024
		found = true
	}
	if !found && errs == nil {
		errs = errors.New("no memory totals in vmstat output")
	}
	return mem, errs
}

var pseudoFilesystems = map[string]bool{"tmpfs": true, "devtmpfs": true}

// ParsePartitions reads "df -PTm" rows without header.
func ParsePartitions(text string) (map[string]Partition, error) {
	partitions := map[string]Partition{}
	var errs error
	for _, line := range lines(text) {
		f := strings.Fields(line)
		if len(f) != 7 {
			continue
		}
		if pseudoFilesystems[f[0]] || pseudoFilesystems[f[1]] {
			continue
		}
		size, err1 := strconv.ParseInt(f[2], 10, 64)
		used, err2 := strconv.ParseInt(f[3], 10, 64)
		free, err3 := strconv.ParseInt(f[4], 10, 64)
		if err := multierr.Combine(err1, err2, err3); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("partition %s: %w", f[6], err))
			continue
		}
		partitions[f[6]] = Partition{Device: f[0], FSType: f[1], SizeMB: size, UsedMB: used, FreeMB: free, Mount: f[6]}
	}
	return partitions, errs
}

// ParseFSTab reads /etc/fstab.
func ParseFSTab(text string) ([]FSTabEntry, error) {
	var (
		entries []FSTabEntry
		errs    error
	)
	for _, line := range contentLines(text) {
		f := strings.Fields(line)
		if len(f) < 4 {
			errs = multierr.Append(errs, fmt.Errorf("short fstab line %q", strings.TrimSpace(line)))
			continue
		}
		e := FSTabEntry{Device: f[0], Mount: f[1], Type: f[2], Options: f[3]}
		if len(f) > 4 {
			e.Dump = f[4]
		}
		if len(f) > 5 {
			e.Pass = f[5]
		}
		entries = append(entries, e)
	}
	return entries, errs
}

// ParseVolumeGroups reads "vgs" rows without header:
// VG #PV #LV #SN Attr VSize VFree.
func ParseVolumeGroups(text string) []VolumeGroup {
	var vgs []VolumeGroup
	for _, line := range lines(text) {
		f := strings.Fields(line)
		if len(f) < 7 {
			continue
		}
		vgs = append(vgs, VolumeGroup{
			Name:    f[0],
			PVCount: cast.ToInt(f[1]),
			LVCount: cast.ToInt(f[2]),
			Attr:    f[4],
			Size:    f[5],
			Free:    f[6],
		})
	}
	return vgs
}

// ParseKernelParams reads "sysctl -a". Repeated keys are joined with ','.
func ParseKernelParams(text string) map[string]string {
	params := map[string]string{}
	for _, line := range lines(text) {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(strings.ReplaceAll(value, "\t", " "))
		if key == "" || value == "" {
			continue
		}
		if prev, ok := params[key]; ok {
			params[key] = prev + "," + value
			continue
		}
		params[key] = value
	}
	return params
}

// ParseKeyValues reads KEY=VALUE lines, stripping double quotes. Lines
// without '=' continue the previous value.
func ParseKeyValues(text string) map[string]string {
	values := map[string]string{}
	last := ""
	for _, line := range lines(text) {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			if last != "" {
				values[last] += " " + strings.TrimSpace(line)
			}
			continue
		}
		last = key
		values[key] = strings.ReplaceAll(value, `"`, "")
	}
	return values
}

// ParseTimezone reads either "Time zone: Asia/Seoul (KST, +0900)",
// ZONE="Asia/Seoul" or a bare zone name.
func ParseTimezone(text string) (string, error) {
	line := singleLine(text)
	switch {
	case strings.Contains(line, "Time zone:"):
		_, rest, _ := strings.Cut(line, ":")
		if f := strings.Fields(rest); len(f) > 0 {
			return f[0], nil
		}
	case strings.Contains(line, "="):
		_, rest, _ := strings.Cut(line, "=")
		if zone := strings.Trim(strings.TrimSpace(rest), `"'`); zone != "" {
			return zone, nil
		}
	case line != "":
		return line, nil
	}
	return "", fmt.Errorf("no timezone in %q", line)
}
