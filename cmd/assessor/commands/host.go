package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vulntor/assessor/cmd/assessor/internal/bind"
	"github.com/vulntor/assessor/cmd/assessor/internal/format"
	"github.com/vulntor/assessor/pkg/assessexec"
)

func newHostCommand() *cobra.Command {
	var (
		save     bool
		progress bool
	)

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Assess a single host",
		Long: `Log in to one host, collect its system facts and optionally parse the
middleware installations given with --middleware.

A run that collected facts but lost some of them, or could not gain root,
is reported as partially completed.`,
		Example: `  # Assess a Linux host with a key
  assessor host --host 10.0.0.5 --user audit --key ~/.ssh/id_ed25519

  # Include a Tomcat instance and print JSON
  assessor host --host 10.0.0.5 --user root --password secret \
    --middleware tomcat=/opt/tomcat -o json

  # Windows over WinRM
  assessor host --host 10.0.0.9 --user Administrator --password secret --transport winrm`,
		GroupID: "assess",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			logger := log.With().Str("command", "host").Logger()

			target, err := bind.BindTarget(cmd)
			if err != nil {
				return report(cmd, err)
			}
			specs, err := bind.BindMiddlewareSpecs(cmd)
			if err != nil {
				return report(cmd, err)
			}

			svc := newService(ctx, loadedConfig(ctx))
			if progress {
				svc = svc.WithProgressSink(&progressLogger{logger: logger})
			}

			res, runErr := svc.Run(ctx, assessexec.Params{Target: target, Middleware: specs})
			if save {
				saveResults(ctx, logger, res)
			}

			f := getFormatter(cmd)
			if runErr != nil {
				if f.Mode() == format.ModeTable {
					if err := format.PrintHostSummary(f, res); err != nil {
						return err
					}
				}
				return report(cmd, runErr)
			}
			return format.PrintHostSummary(f, res)
		},
	}

	bind.AddTargetFlags(cmd)
	cmd.Flags().StringArray("middleware", nil, "Middleware to parse as kind=path (repeatable; kinds: apache, nginx, tomcat, websphere)")
	cmd.Flags().BoolVar(&save, "save", false, "Store the result in the workspace runs directory")
	cmd.Flags().BoolVar(&progress, "progress", false, "Log progress events")

	return cmd
}
