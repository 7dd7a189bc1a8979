package commands

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/vulntor/assessor/pkg/assessexec"
	"github.com/vulntor/assessor/pkg/workspace"
)

// saveResults writes every result to the workspace. Persistence problems
// are logged and never fail the run.
func saveResults(ctx context.Context, logger zerolog.Logger, results ...*assessexec.Result) {
	root, ok := workspace.FromContext(ctx)
	if !ok {
		logger.Warn().Msg("Workspace disabled, results are not saved")
		return
	}
	lock, err := workspace.Lock(root)
	if err != nil {
		logger.Warn().Err(err).Str("workspace", root).Msg("Cannot lock workspace, results are not saved")
		return
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Debug().Err(err).Msg("Failed to release workspace lock")
		}
	}()

	for _, res := range results {
		if res == nil {
			continue
		}
		path, err := workspace.WriteRun(root, res.RunID, res)
		if err != nil {
			logger.Warn().Err(err).Str("run_id", res.RunID).Msg("Failed to save result")
			continue
		}
		logger.Info().Str("run_id", res.RunID).Str("path", path).Msg("Result saved")
	}
}
