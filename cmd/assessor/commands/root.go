package commands

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vulntor/assessor/cmd/assessor/internal/format"
	"github.com/vulntor/assessor/pkg/appctx"
	"github.com/vulntor/assessor/pkg/config"
	"github.com/vulntor/assessor/pkg/logging"
	"github.com/vulntor/assessor/pkg/paths"
	"github.com/vulntor/assessor/pkg/workspace"
)

const cliExecutable = "assessor"

// NewCommand constructs the top-level assessor CLI command, wiring global
// flags, configuration loading, logging and workspace preparation.
func NewCommand() *cobra.Command {
	var (
		configFile        string
		workspaceDir      string
		workspaceDisabled bool
		output            string
		logCloser         io.Closer
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "Assessor collects system facts and middleware configuration from remote hosts",
		Long: `Assessor logs in to Unix and Windows hosts over SSH or WinRM, runs a
catalog of read-only commands, and turns the output into a structured
assessment. Apache, Nginx, Tomcat and WebSphere installations can be parsed
alongside.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := format.ValidateMode(output); err != nil {
				return err
			}

			if configFile == "" {
				configFile = paths.DefaultConfigFile()
			}
			mgr := config.NewManager()
			if err := mgr.Load(cmd.Flags(), configFile); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			closer, err := logging.ConfigureGlobalLogging(mgr.Get().LogOptions())
			if err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}
			logCloser = closer

			ctx := appctx.WithConfig(cmd.Context(), mgr)
			if !workspaceDisabled {
				prepared, err := workspace.Prepare(workspaceDir)
				if err != nil {
					return fmt.Errorf("prepare workspace: %w", err)
				}
				ctx = workspace.WithContext(ctx, prepared)
				log.Debug().Str("workspace", prepared).Msg("workspace ready")
			}

			cmd.SetContext(ctx)
			if root := cmd.Root(); root != nil && root != cmd {
				root.SetContext(ctx)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path (default: $XDG_CONFIG_HOME/assessor/config.yaml when present)")
	cmd.PersistentFlags().StringVar(&workspaceDir, "workspace-dir", "", "Override workspace root directory")
	cmd.PersistentFlags().BoolVar(&workspaceDisabled, "no-workspace", false, "Disable workspace persistence for this run")
	cmd.PersistentFlags().StringVarP(&output, "output", "o", string(format.ModeTable), "Output format (table, json, yaml)")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress summaries")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddGroup(&cobra.Group{ID: "assess", Title: "Assessment Commands"})
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands"})

	cmd.AddCommand(newHostCommand())
	cmd.AddCommand(newBatchCommand())
	cmd.AddCommand(newMiddlewareCommand())
	cmd.AddCommand(newClassifyCommand())
	cmd.AddCommand(newCatalogCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}
