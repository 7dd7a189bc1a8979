package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vulntor/assessor/cmd/assessor/internal/bind"
	"github.com/vulntor/assessor/cmd/assessor/internal/format"
	"github.com/vulntor/assessor/pkg/assessexec"
	"github.com/vulntor/assessor/pkg/reach"
	"github.com/vulntor/assessor/pkg/scheduler"
)

func newBatchCommand() *cobra.Command {
	var (
		ping       bool
		privileged bool
		save       bool
		progress   bool
	)

	cmd := &cobra.Command{
		Use:   "batch <inventory.yaml>",
		Short: "Assess every host of an inventory file on a bounded worker pool",
		Long: `Assess the hosts listed in an inventory file. Hosts run on a worker pool
sized by the scheduler.* settings; a monitor samples the pool while the
batch runs.

With --ping every host is sent an ICMP echo first and hosts that do not
answer are reported as failed without being dialed.`,
		Example: `  # Four hosts at a time, results stored in the workspace
  assessor batch hosts.yaml --scheduler.core_workers 4 --scheduler.max_workers 4 --save

  # Skip hosts that do not answer ping
  assessor batch hosts.yaml --ping -o json`,
		GroupID: "assess",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			logger := log.With().Str("command", "batch").Logger()

			hosts, err := bind.LoadInventory(args[0])
			if err != nil {
				return report(cmd, err)
			}

			cfg := loadedConfig(ctx)
			svc := newService(ctx, cfg)
			if progress {
				svc = svc.WithProgressSink(&progressLogger{logger: logger})
			}

			bp := assessexec.BatchParams{
				Hosts:         hosts,
				Pool:          cfg.PoolOptions(),
				MonitorPeriod: cfg.Scheduler.MonitorPeriod,
				MonitorSink: func(s scheduler.Snapshot) {
					logger.Debug().Str("pool", s.String()).Msg("pool snapshot")
				},
			}
			if ping {
				opts := reach.DefaultOptions()
				opts.Privileged = privileged
				bp.Reach = reach.NewProber(opts)
			}

			logger.Info().Int("hosts", len(hosts)).Bool("ping", ping).Msg("Starting batch")
			results, runErr := svc.RunBatch(ctx, bp)
			if save {
				saveResults(ctx, logger, results...)
			}

			if err := format.PrintBatchSummary(getFormatter(cmd), results); err != nil {
				return err
			}
			return report(cmd, runErr)
		},
	}

	cmd.Flags().BoolVar(&ping, "ping", false, "Skip hosts that do not answer an ICMP echo")
	cmd.Flags().BoolVar(&privileged, "ping-privileged", false, "Use raw ICMP sockets for --ping (requires root)")
	cmd.Flags().BoolVar(&save, "save", false, "Store every result in the workspace runs directory")
	cmd.Flags().BoolVar(&progress, "progress", false, "Log progress events")

	return cmd
}
