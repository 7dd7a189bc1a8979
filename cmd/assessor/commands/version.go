package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vulntor/assessor/cmd/assessor/internal/format"
	"github.com/vulntor/assessor/pkg/version"
)

func newVersionCommand() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:     "version",
		Short:   "Print version information",
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()
			if short {
				_, err := fmt.Fprintln(out, info.Version)
				return err
			}

			f := getFormatter(cmd)
			if f.Mode() != format.ModeTable {
				return f.Print(info)
			}
			fmt.Fprintf(out, "%s version: %s\n", cliExecutable, info.Version)
			if info.Tag != "" {
				fmt.Fprintf(out, "Tag: %s\n", info.Tag)
			}
			fmt.Fprintf(out, "Commit: %s\n", info.Commit)
			fmt.Fprintf(out, "Build Date: %s\n", info.BuildDate)
			fmt.Fprintf(out, "Go Version: %s\n", info.GoVersion)
			fmt.Fprintf(out, "Compiler: %s\n", info.Compiler)
			_, err := fmt.Fprintf(out, "Platform: %s\n", info.Platform)
			return err
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version number")

	return cmd
}
