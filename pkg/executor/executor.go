// Package executor runs a command catalog against one host. Individual
// command failures never abort the batch; only connectivity loss and
// cancellation do.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vulntor/assessor/pkg/catalog"
	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/logging"
	"github.com/vulntor/assessor/pkg/privilege"
	"golang.org/x/sync/errgroup"
)

// CommandResult is the outcome of one catalog entry. Err marks a
// command-level failure and Message explains it.
type CommandResult struct {
	Key      catalog.FactKey `json:"key"`
	Command  string          `json:"command"`
	Output   string          `json:"output"`
	Stderr   string          `json:"stderr,omitempty"`
	ExitCode int             `json:"exit_code"`
	Err      bool            `json:"error"`
	Message  string          `json:"message,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// Results holds exactly one CommandResult per requested key.
type Results map[catalog.FactKey]CommandResult

// Stdout returns the output for key when the command succeeded.
func (r Results) Stdout(key catalog.FactKey) (string, bool) {
	res, ok := r[key]
	if !ok || res.Err {
		return "", false
	}
	return res.Output, true
}

// Failed reports whether key is missing or errored.
func (r Results) Failed(key catalog.FactKey) bool {
	res, ok := r[key]
	return !ok || res.Err
}

// Errors returns key -> message for every errored result.
func (r Results) Errors() map[catalog.FactKey]string {
	out := map[catalog.FactKey]string{}
	for k, res := range r {
		if res.Err {
			out[k] = res.Message
		}
	}
	return out
}

// Options tune a batch run.
type Options struct {
	CommandTimeout time.Duration
	Parallelism    int
}

// DefaultOptions runs commands one at a time with a 60s limit each.
func DefaultOptions() Options {
	return Options{CommandTimeout: 60 * time.Second, Parallelism: 1}
}

// Executor runs catalogs.
type Executor struct {
	opts   Options
	logger zerolog.Logger
}

// New returns an executor. Zero values in opts fall back to defaults.
func New(opts Options) *Executor {
	def := DefaultOptions()
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = def.CommandTimeout
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = def.Parallelism
	}
	return &Executor{opts: opts, logger: logging.Component("executor")}
}

// Run attempts every entry of cat on runner. The returned Results always
// contain one entry per catalog key unless an error is returned, in which
// case the host is lost (connectivity) or ctx ended and no results are
// returned at all.
func (e *Executor) Run(ctx context.Context, runner conn.Runner, cat catalog.Catalog, decision privilege.Decision, target conn.Target) (Results, error) {
	results := make(Results, cat.Len())
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)

	for _, entry := range cat.Entries() {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.runOne(gctx, runner, entry, decision, target)
			if err != nil {
				return err
			}
			mu.Lock()
			results[entry.Key] = res
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.logger.Warn().Err(err).Object("target", target).Msg("batch aborted")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	for _, res := range results {
		if res.Err {
			failed++
		}
	}
	e.logger.Debug().
		Object("target", target).
		Int("commands", len(results)).
		Int("failed", failed).
		Msg("batch finished")
	return results, nil
}

func (e *Executor) runOne(ctx context.Context, runner conn.Runner, entry catalog.Entry, decision privilege.Decision, target conn.Target) (res CommandResult, fatal error) {
	command := entry.Command
	if !target.IsWindows() && !target.IsRoot() {
		command = decision.Wrap(command)
	}
	res = CommandResult{Key: entry.Key, Command: command}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res.Err = true
			res.Message = fmt.Sprintf("panic: %v", r)
			fatal = nil
			e.logger.Error().Str("key", string(entry.Key)).Interface("panic", r).Msg("command panicked")
		}
		res.Duration = time.Since(start)
	}()

	cmdCtx, cancel := context.WithTimeout(ctx, e.opts.CommandTimeout)
	defer cancel()

	var (
		out conn.Output
		err error
	)
	if su, ok := runner.(conn.SwitchUserRunner); ok && decision.Elevate && decision.Method == privilege.MethodSwitchUser {
		out, err = su.ExecuteAsRoot(cmdCtx, target.RootPassword, command)
	} else {
		out, err = runner.Execute(cmdCtx, command)
	}

	if err != nil {
		switch {
		case ctx.Err() != nil:
			return res, ctx.Err()
		case errors.Is(err, conn.ErrConnectivity):
			return res, err
		case errors.Is(cmdCtx.Err(), context.DeadlineExceeded):
			res.Err = true
			res.Message = fmt.Sprintf("timed out after %s", e.opts.CommandTimeout)
		default:
			res.Err = true
			res.Message = err.Error()
		}
		e.logger.Debug().Str("key", string(entry.Key)).Str("message", res.Message).Msg("command failed")
		return res, nil
	}

	res.Output = out.Stdout
	res.Stderr = out.Stderr
	res.ExitCode = out.ExitCode
	if out.Failed() {
		res.Err = true
		res.Message = out.Message()
	}
	return res, nil
}
