package facts

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/multierr"
)

// The Windows catalog emits tab separated rows; tabs keep values with
// spaces (process names, interface aliases) intact.
func tabFields(line string) []string {
	f := strings.Split(line, "\t")
	for i := range f {
		f[i] = strings.TrimSpace(f[i])
	}
	return f
}

// ParseWindowsCPU reads "name, cores, logical processors" rows, one per
// socket.
func ParseWindowsCPU(text string) (CPU, error) {
	var cpu CPU
	for _, line := range lines(text) {
		f := tabFields(line)
		if len(f) < 3 {
			continue
		}
		cpu.Sockets++
		cpu.Model = f[0]
		cpu.CoresPerSocket = cast.ToInt(f[1])
		cpu.LogicalCPUs += cast.ToInt(f[2])
	}
	if cpu.Sockets == 0 {
		return cpu, errors.New("no processor rows")
	}
	if cpu.CoresPerSocket > 0 {
		cpu.ThreadsPerCore = cpu.LogicalCPUs / (cpu.CoresPerSocket * cpu.Sockets)
	}
	return cpu, nil
}

// ParseWindowsMemory reads "total, free" in KiB.
func ParseWindowsMemory(text string) (Memory, error) {
	f := tabFields(singleLine(text))
	if len(f) < 2 {
		return Memory{}, fmt.Errorf("unexpected memory row %q", singleLine(text))
	}
	total, err1 := strconv.ParseInt(f[0], 10, 64)
	free, err2 := strconv.ParseInt(f[1], 10, 64)
	if err := multierr.Combine(err1, err2); err != nil {
		return Memory{}, err
	}
	return Memory{TotalMB: total / 1024, FreeMB: free / 1024}, nil
}

// ParseWindowsPartitions reads "drive, filesystem, size MiB, free MiB".
func ParseWindowsPartitions(text string) (map[string]Partition, error) {
	partitions := map[string]Partition{}
	var errs error
	for _, line := range lines(text) {
		f := tabFields(line)
		if len(f) < 4 {
			continue
		}
		size, err1 := strconv.ParseInt(f[2], 10, 64)
		free, err2 := strconv.ParseInt(f[3], 10, 64)
		if err := multierr.Combine(err1, err2); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("drive %s: %w", f[0], err))
			continue
		}
		partitions[f[0]] = Partition{Device: f[0], FSType: f[1], SizeMB: size, FreeMB: free, UsedMB: size - free, Mount: f[0]}
	}
	return partitions, errs
}

// ParseWindowsInterfaces reads "alias, family, address, prefix" rows and
// "alias, next hop" gateway rows.
func ParseWindowsInterfaces(addrs, gateways string) (map[string]*Interface, error) {
	ifaces := map[string]*Interface{}
	var errs error
	for _, line := range lines(addrs) {
		f := tabFields(line)
		if len(f) < 4 {
			continue
		}
		prefix, err := strconv.Atoi(f[3])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: bad prefix %q", f[0], f[3]))
			continue
		}
		iface, ok := ifaces[f[0]]
		if !ok {
			iface = &Interface{Device: f[0]}
			ifaces[f[0]] = iface
		}
		if strings.EqualFold(f[1], "IPv6") {
			iface.IPv6 = append(iface.IPv6, IPv6Address{Address: f[2], Prefix: prefix})
			continue
		}
		iface.IPv4 = append(iface.IPv4, IPv4Address{
			Address: f[2],
			Prefix:  prefix,
			Netmask: net.IP(net.CIDRMask(prefix, 32)).String(),
		})
	}
	for _, line := range lines(gateways) {
		f := tabFields(line)
		if len(f) < 2 {
			continue
		}
		if iface, ok := ifaces[f[0]]; ok {
			iface.Gateway = f[1]
		}
	}
	return ifaces, errs
}

// ParseWindowsListenPorts reads "address, port, pid" rows.
func ParseWindowsListenPorts(text string) ([]ListenPort, error) {
	var (
		ports []ListenPort
		errs  error
	)
	for _, line := range lines(text) {
		f := tabFields(line)
		if len(f) < 3 {
			continue
		}
		port, err := strconv.Atoi(f[1])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("bad port %q", f[1]))
			continue
		}
		ports = append(ports, ListenPort{Protocol: "tcp", BindAddr: f[0], Port: port, PID: f[2]})
	}
	return ports, errs
}

// ParseWindowsProcesses reads "pid, name" rows.
func ParseWindowsProcesses(text string) []Process {
	var procs []Process
	for _, line := range lines(text) {
		f := tabFields(line)
		if len(f) < 2 {
			continue
		}
		procs = append(procs, Process{PID: f[0], Name: f[1], Cmd: []string{f[1]}})
	}
	return procs
}

// ParseWindowsServices reads "name, status, start type" rows.
func ParseWindowsServices(text string) map[string]Daemon {
	daemons := map[string]Daemon{}
	for _, line := range lines(text) {
		f := tabFields(line)
		if len(f) < 2 {
			continue
		}
		d := Daemon{Active: f[1]}
		if len(f) > 2 {
			d.Load = f[2]
		}
		daemons[f[0]] = d
	}
	return daemons
}

// ParseNames reads one name per line (local users, local groups,
// DNS servers).
func ParseNames(text string) []string {
	var names []string
	for _, line := range lines(text) {
		names = append(names, strings.TrimSpace(line))
	}
	return names
}

// ParseBootInstant reads an ISO 8601 boot instant.
func ParseBootInstant(text string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, singleLine(text))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrUnsupportedUptime, err)
	}
	return t.UTC(), nil
}
