package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/vulntor/assessor/pkg/assessexec"
	"github.com/vulntor/assessor/pkg/middleware"
	"github.com/vulntor/assessor/pkg/stringutil"
)

const (
	maxErrorsToShow = 5
	maxErrorWidth   = 120
)

var boxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	Padding(0, 1)

var labelStyle = lipgloss.NewStyle().Bold(true).Width(14)

// PrintHostSummary renders one host run as a bordered block in table mode
// and as the full result otherwise.
func PrintHostSummary(f Formatter, res *assessexec.Result) error {
	if f.Mode() != ModeTable {
		return f.Print(res)
	}
	ff := f.(*formatter)

	lines := [][2]string{
		{"Target", res.Target},
		{"Run", res.RunID},
		{"Status", ff.status(res.Status)},
	}
	if a := res.Assessment; a != nil {
		dist := strings.TrimSpace(a.Distribution.Name + " " + a.Distribution.Release)
		lines = append(lines,
			[2]string{"Hostname", a.Hostname},
			[2]string{"System", dist},
			[2]string{"Family", string(a.Distribution.Family)},
			[2]string{"Privilege", privilegeLabel(a.Privilege.Privileged, a.Privilege.Elevate, string(a.Privilege.Method))},
			[2]string{"Packages", strconv.Itoa(len(a.Packages))},
			[2]string{"Listen ports", strconv.Itoa(len(a.Ports.Listen))},
			[2]string{"Fact errors", strconv.Itoa(len(a.ErrorMap))},
		)
	}
	if res.Error != "" {
		lines = append(lines, [2]string{"Error", res.Error})
	}

	var sb strings.Builder
	for i, l := range lines {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(labelStyle.Render(l[0]) + l[1])
	}
	if _, err := fmt.Fprintln(ff.stdout, boxStyle.Render(sb.String())); err != nil {
		return err
	}

	if a := res.Assessment; a != nil && len(a.ErrorMap) > 0 {
		keys := make([]string, 0, len(a.ErrorMap))
		for k := range a.ErrorMap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rows := make([][]string, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, []string{k, a.ErrorMap[k]})
		}
		if err := f.PrintTable([]string{"fact", "error"}, rows); err != nil {
			return err
		}
	}

	var records []middleware.Record
	for _, mw := range res.Middleware {
		records = append(records, mw.Records...)
		if mw.Error != "" {
			if err := f.PrintSummary(fmt.Sprintf("%s %s: %s", mw.Kind, mw.Path, mw.Error)); err != nil {
				return err
			}
		}
	}
	if len(records) > 0 {
		return PrintRecords(f, records)
	}
	return nil
}

// PrintRecords lists discovery records.
func PrintRecords(f Formatter, records []middleware.Record) error {
	if f.Mode() != ModeTable {
		return f.Print(records)
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		ports := make([]string, 0, len(r.Ports))
		for i, p := range r.Ports {
			label := strconv.Itoa(p)
			if i < len(r.Protocols) {
				label += "/" + r.Protocols[i]
			}
			ports = append(ports, label)
		}
		rows = append(rows, []string{
			string(r.Kind), r.Name, r.Path, strings.Join(ports, ","),
			r.EngineVersion, r.RuntimeVersion, strconv.FormatBool(r.Running), r.RunUser,
		})
	}
	return f.PrintTable([]string{"kind", "name", "path", "ports", "engine", "runtime", "running", "user"}, rows)
}

// PrintBatchSummary prints per status counts and the first failed hosts.
func PrintBatchSummary(f Formatter, results []*assessexec.Result) error {
	counts := map[assessexec.Status]int{}
	var failed []*assessexec.Result
	skipped := 0
	for _, r := range results {
		if r == nil {
			skipped++
			continue
		}
		counts[r.Status]++
		if r.Status == assessexec.StatusFailed {
			failed = append(failed, r)
		}
	}

	if f.Mode() != ModeTable {
		return f.Print(map[string]any{
			"completed": counts[assessexec.StatusCompleted],
			"partial":   counts[assessexec.StatusPartial],
			"failed":    counts[assessexec.StatusFailed],
			"skipped":   skipped,
			"results":   results,
		})
	}
	ff := f.(*formatter)
	if ff.quiet {
		return nil
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		rows = append(rows, []string{r.Target, ff.status(r.Status), r.RunID})
	}
	if err := f.PrintTable([]string{"target", "status", "run"}, rows); err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("\nSummary:\n")
	sb.WriteString(ff.paint(color.FgGreen, "  ✓ Completed: %d\n", counts[assessexec.StatusCompleted]))
	if n := counts[assessexec.StatusPartial]; n > 0 {
		sb.WriteString(ff.paint(color.FgYellow, "  ⚠ Partial:   %d\n", n))
	}
	if n := counts[assessexec.StatusFailed]; n > 0 {
		sb.WriteString(ff.paint(color.FgRed, "  ✗ Failed:    %d\n", n))
	}
	if skipped > 0 {
		sb.WriteString(fmt.Sprintf("  - Skipped:   %d\n", skipped))
	}
	if len(failed) > 0 {
		sb.WriteString("\nFailed hosts:\n")
		for i, r := range failed {
			if i >= maxErrorsToShow {
				sb.WriteString(fmt.Sprintf("  ... and %d more (use --output json for full list)\n", len(failed)-maxErrorsToShow))
				break
			}
			sb.WriteString(fmt.Sprintf("  - %s: %s\n", r.Target, stringutil.Ellipsis(r.Error, maxErrorWidth)))
		}
	}
	_, err := fmt.Fprint(ff.stdout, sb.String())
	return err
}

func (f *formatter) status(s assessexec.Status) string {
	switch s {
	case assessexec.StatusCompleted:
		return f.paint(color.FgGreen, "%s", s)
	case assessexec.StatusPartial:
		return f.paint(color.FgYellow, "%s", s)
	default:
		return f.paint(color.FgRed, "%s", s)
	}
}

func (f *formatter) paint(attr color.Attribute, format string, args ...any) string {
	if !f.color {
		return fmt.Sprintf(format, args...)
	}
	return color.New(attr).Sprintf(format, args...)
}

func privilegeLabel(privileged, elevate bool, method string) string {
	switch {
	case privileged:
		return "root login"
	case elevate:
		return "elevated via " + method
	default:
		return "unprivileged"
	}
}
