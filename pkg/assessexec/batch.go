package assessexec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/scheduler"
	"go.uber.org/multierr"
)

// BatchParams describes a run over many hosts.
type BatchParams struct {
	Hosts         []Params
	Pool          scheduler.Options
	MonitorPeriod time.Duration
	// MonitorSink receives every pool snapshot.
	MonitorSink func(scheduler.Snapshot)
	// Reach, when set, pings every address first. Hosts that do not answer
	// fail with ErrUnreachable and are never dialed.
	Reach Reachability
}

// Reachability reports which addresses answered; *reach.Prober
// implements it.
type Reachability interface {
	Filter(ctx context.Context, addrs []string) map[string]bool
}

// RunBatch assesses every host on a bounded pool observed by a monitor.
// Each worker runs one host to completion before taking the next. When
// the queue is full the host runs on the calling goroutine. Results keep
// the order of Hosts, with nil for hosts never started after cancellation;
// per host failures are combined into the error.
func (s *Service) RunBatch(ctx context.Context, bp BatchParams) ([]*Result, error) {
	if len(bp.Hosts) == 0 {
		return nil, ErrNoHosts
	}

	pool := scheduler.NewPool(bp.Pool)
	mon := scheduler.NewMonitor("assessment", pool, bp.MonitorPeriod)
	if bp.MonitorSink != nil {
		mon.WithSink(bp.MonitorSink)
	}
	mon.Start(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, pool.ShutdownNow)
	defer stop()

	results := make([]*Result, len(bp.Hosts))
	errs := make([]error, len(bp.Hosts))
	live := s.preflight(ctx, bp)
	var wg sync.WaitGroup
	for i, host := range bp.Hosts {
		if ctx.Err() != nil {
			break
		}
		if live != nil && !live[host.Target.Address] {
			results[i], errs[i] = s.unreachable(host)
			continue
		}
		run := func(context.Context) {
			defer wg.Done()
			results[i], errs[i] = s.Run(ctx, host)
		}
		wg.Add(1)
		err := pool.Submit(run)
		switch {
		case errors.Is(err, scheduler.ErrQueueFull):
			run(ctx)
		case err != nil:
			wg.Done()
			errs[i] = err
		}
	}

	pool.Shutdown()
	wg.Wait()
	if err := pool.AwaitTermination(context.Background()); err != nil {
		return results, err
	}
	<-mon.Done()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	var combined error
	for i, err := range errs {
		if err != nil {
			combined = multierr.Append(combined, fmt.Errorf("%s: %w", bp.Hosts[i].Target.String(), err))
		}
	}
	s.logger.Info().
		Int("hosts", len(bp.Hosts)).
		Int("failed", len(multierr.Errors(combined))).
		Msg("Batch finished")
	return results, combined
}

func (s *Service) preflight(ctx context.Context, bp BatchParams) map[string]bool {
	if bp.Reach == nil {
		return nil
	}
	addrs := make([]string, 0, len(bp.Hosts))
	for _, h := range bp.Hosts {
		addrs = append(addrs, h.Target.Address)
	}
	return bp.Reach.Filter(ctx, addrs)
}

func (s *Service) unreachable(host Params) (*Result, error) {
	if host.RunID == "" {
		host.RunID = uuid.NewString()
	}
	err := conn.WrapConnectivity(host.Target, ErrUnreachable)
	now := s.now().UTC()
	s.emit("run", host, string(StatusFailed), err.Error())
	return &Result{
		RunID:      host.RunID,
		Target:     host.Target.String(),
		Status:     StatusFailed,
		StartedAt:  now,
		FinishedAt: now,
		Error:      err.Error(),
	}, err
}
