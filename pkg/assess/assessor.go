// Package assess runs one complete host assessment: privilege probe,
// distribution resolution, batch execution and fact parsing.
package assess

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vulntor/assessor/pkg/catalog"
	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/distro"
	"github.com/vulntor/assessor/pkg/executor"
	"github.com/vulntor/assessor/pkg/facts"
	"github.com/vulntor/assessor/pkg/logging"
	"github.com/vulntor/assessor/pkg/privilege"
)

// Assessor produces an AssessmentResult for one target at a time. It is
// safe for concurrent use; every call opens its own sessions.
type Assessor struct {
	dialer   conn.Dialer
	prober   *privilege.Prober
	resolver *distro.Resolver
	executor *executor.Executor
	registry *facts.Registry
	now      func() time.Time
	logger   zerolog.Logger
}

// New returns an assessor with default collaborators.
func New(dialer conn.Dialer) *Assessor {
	return &Assessor{
		dialer:   dialer,
		prober:   privilege.NewProber(dialer),
		resolver: distro.NewResolver(),
		executor: executor.New(executor.DefaultOptions()),
		registry: facts.DefaultRegistry(),
		now:      time.Now,
		logger:   logging.Component("assessor"),
	}
}

// WithExecutor replaces the batch executor.
func (a *Assessor) WithExecutor(e *executor.Executor) *Assessor {
	a.executor = e
	return a
}

// WithRegistry replaces the profile registry.
func (a *Assessor) WithRegistry(r *facts.Registry) *Assessor {
	a.registry = r
	return a
}

// WithResolver replaces the distribution resolver.
func (a *Assessor) WithResolver(r *distro.Resolver) *Assessor {
	a.resolver = r
	return a
}

// WithClock overrides the time source (useful for tests).
func (a *Assessor) WithClock(now func() time.Time) *Assessor {
	a.now = now
	return a
}

// WithLogger replaces the logger.
func (a *Assessor) WithLogger(logger zerolog.Logger) *Assessor {
	a.logger = logger
	a.prober.WithLogger(logger)
	return a
}

// Assess collects every fact the host's profile knows about. A returned
// error means the host could not be assessed at all (invalid target,
// authentication, lost connectivity, cancellation); otherwise the result
// is complete or partial with its ErrorMap describing what is missing.
func (a *Assessor) Assess(ctx context.Context, target conn.Target) (*facts.AssessmentResult, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	log := a.logger.With().Object("target", target).Logger()
	start := a.now()

	decision, err := a.prober.Probe(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("probe privileges: %w", err)
	}
	log.Debug().Bool("privileged", decision.Privileged).Str("method", string(decision.Method)).Msg("privilege decided")

	session, err := a.dialer.Dial(ctx, target)
	if err != nil {
		return nil, conn.WrapConnectivity(target, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Debug().Err(cerr).Msg("close session")
		}
	}()

	var d distro.Distribution
	if target.IsWindows() {
		d, err = a.resolver.ResolveWindows(ctx, session)
	} else {
		d, err = a.resolver.Resolve(ctx, session, decision.Elevate && decision.Method == privilege.MethodSudo)
	}
	if err != nil {
		return nil, conn.WrapConnectivity(target, err)
	}

	collector := facts.NewCollector()
	profile, found := a.registry.Lookup(d.Family)
	if !found {
		collector.Add(string(facts.CategoryFamily), fmt.Errorf("%w: %q", facts.ErrUnknownFamily, d.Name))
	}

	cat := catalog.Build(d.Family)
	results, err := a.executor.Run(ctx, session, cat, decision, target)
	if err != nil {
		return nil, err
	}

	run := func(ctx context.Context, c catalog.Catalog) (executor.Results, error) {
		return a.executor.Run(ctx, session, c, decision, target)
	}
	in := facts.NewInput(results, d, cat, decision, start, run)

	out := &facts.AssessmentResult{
		Target:       target.String(),
		Distribution: d,
		Privilege:    decision,
		CollectedAt:  start.UTC(),
	}
	for _, step := range profile.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := runStep(ctx, step, in, out, collector); err != nil {
			return nil, err
		}
	}

	out.ErrorMap = collector.Map()
	log.Info().
		Str("distribution", d.Name).
		Str("family", string(d.Family)).
		Int("errors", len(out.ErrorMap)).
		Dur("elapsed", a.now().Sub(start)).
		Msg("assessment finished")
	return out, nil
}

// runStep runs one parse step. A panic in a parser is recorded under the
// step's category so the remaining categories are still collected.
func runStep(ctx context.Context, step facts.Step, in *facts.Input, out *facts.AssessmentResult, c *facts.Collector) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.Add(string(step.Category), fmt.Errorf("parser panic: %v", r))
			err = nil
		}
	}()
	return step.Parse(ctx, in, out, c)
}
