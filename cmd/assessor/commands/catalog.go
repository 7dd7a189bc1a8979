package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vulntor/assessor/pkg/catalog"
	"github.com/vulntor/assessor/pkg/distro"
)

func newCatalogCommand() *cobra.Command {
	var (
		family string
		delta  bool
	)

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the commands run against a distribution family",
		Example: `  # Everything run on a RedHat host
  assessor catalog --family redhat

  # Only what Solaris changes on top of the Unix base
  assessor catalog --family solaris --delta -o json`,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []catalog.Entry
			if family == "" {
				entries = catalog.Base().Entries()
			} else {
				fam, ok := distro.ParseFamily(family)
				if !ok {
					return report(cmd, fmt.Errorf("unknown family %q (valid: %s)", family, familyList()))
				}
				if delta {
					entries = catalog.Delta(fam)
				} else {
					entries = catalog.Build(fam).Entries()
				}
			}

			f := getFormatter(cmd)
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{string(e.Key), e.Command})
			}
			return f.PrintTable([]string{"key", "command"}, rows)
		},
	}

	cmd.Flags().StringVar(&family, "family", "", fmt.Sprintf("Distribution family (%s); empty prints the Unix base", familyList()))
	cmd.Flags().BoolVar(&delta, "delta", false, "Only print entries the family adds or replaces")

	return cmd
}

func familyList() string {
	families := distro.Families()
	names := make([]string, len(families))
	for i, f := range families {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
