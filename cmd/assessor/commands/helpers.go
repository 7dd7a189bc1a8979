package commands

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vulntor/assessor/cmd/assessor/internal/format"
	"github.com/vulntor/assessor/pkg/appctx"
	"github.com/vulntor/assessor/pkg/assess"
	"github.com/vulntor/assessor/pkg/assessexec"
	"github.com/vulntor/assessor/pkg/config"
	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/executor"
)

// ReportedError marks an error already printed through the formatter so
// main only has to pick the exit code.
type ReportedError struct {
	Err error
}

func (e *ReportedError) Error() string { return e.Err.Error() }
func (e *ReportedError) Unwrap() error { return e.Err }

// getFormatter creates a formatter from command flags
func getFormatter(cmd *cobra.Command) format.Formatter {
	outputMode := format.ParseMode(cmd.Flag("output").Value.String())
	quiet, _ := cmd.Flags().GetBool("quiet")
	noColor, _ := cmd.Flags().GetBool("no-color")
	return format.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), outputMode, quiet, !noColor)
}

// report prints err with its code and suggestions and returns it wrapped
// as a ReportedError.
func report(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	var done *ReportedError
	if errors.As(err, &done) {
		return err
	}
	if printErr := getFormatter(cmd).PrintError(err, assessexec.ErrorCode(err), assessexec.Suggestions(err)); printErr != nil {
		log.Debug().Err(printErr).Msg("Failed to print error")
	}
	return &ReportedError{Err: err}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	if root := cmd.Root(); root != nil && root.Context() != nil {
		return root.Context()
	}
	return context.Background()
}

// loadedConfig returns the configuration loaded by the root command, or
// the defaults when the command runs standalone.
func loadedConfig(ctx context.Context) config.Config {
	if mgr, ok := appctx.Config(ctx); ok {
		return mgr.Get()
	}
	return config.DefaultConfig()
}

func dialer(ctx context.Context, cfg config.Config) conn.Dialer {
	return appctx.Dialer(ctx, conn.NewDialer(cfg.ConnOptions()))
}

// newService wires the assessment service with configured transports
// and command execution limits.
func newService(ctx context.Context, cfg config.Config) *assessexec.Service {
	d := dialer(ctx, cfg)
	a := assess.New(d).WithExecutor(executor.New(cfg.ExecutorOptions()))
	return assessexec.NewService(d).WithAssessor(a)
}

// progressLogger forwards progress events to the log.
type progressLogger struct {
	logger zerolog.Logger
}

func (p *progressLogger) OnEvent(ev assessexec.ProgressEvent) {
	p.logger.Info().
		Str("phase", ev.Phase).
		Str("run_id", ev.RunID).
		Str("target", ev.Target).
		Str("status", ev.Status).
		Str("message", ev.Message).
		Msg("progress")
}
