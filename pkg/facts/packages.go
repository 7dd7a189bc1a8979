package facts

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ParsePackages reads one "name version" pair per line. Tab separated
// lines keep spaces inside the name. Blank lines are skipped; a line
// without a version is a per-line error and parsing continues.
func ParsePackages(text string) ([]Package, error) {
	var (
		packages []Package
		errs     error
	)
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		var fields []string
		if strings.Contains(line, "\t") {
			for _, f := range strings.Split(line, "\t") {
				if f = strings.TrimSpace(f); f != "" {
					fields = append(fields, f)
				}
			}
		} else {
			fields = strings.Fields(line)
		}

		if len(fields) < 2 {
			errs = multierr.Append(errs, fmt.Errorf("line %d: missing version in %q", i+1, strings.TrimSpace(line)))
			continue
		}
		packages = append(packages, Package{Name: fields[0], Version: fields[1]})
	}
	return packages, errs
}
