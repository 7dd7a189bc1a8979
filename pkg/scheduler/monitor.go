package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/vulntor/assessor/pkg/logging"
)

// DefaultPeriod is the sampling period of a Monitor.
const DefaultPeriod = 5 * time.Second

// ErrMonitorStarted is returned by Run on a monitor that already ran.
var ErrMonitorStarted = errors.New("monitor already started")

// Observed is what a Monitor samples. *Pool implements it.
type Observed interface {
	Stats() PoolStats
}

// State is the lifecycle of a Monitor.
type State int32

const (
	StateIdle State = iota
	StateSampling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSampling:
		return "sampling"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MemoryStats is the heap usage of the process.
type MemoryStats struct {
	HeapUsed      uint64 `json:"heap_used"`
	HeapCommitted uint64 `json:"heap_committed"`
	Sys           uint64 `json:"sys"`
	NumGC         uint32 `json:"num_gc"`
}

// GoroutineStats counts goroutines of the process. Peak is the highest
// live count seen by the monitor.
type GoroutineStats struct {
	Live int `json:"live"`
	Peak int `json:"peak"`
}

// Snapshot is one sample.
type Snapshot struct {
	Name       string         `json:"name,omitempty"`
	Time       time.Time      `json:"time"`
	Pool       PoolStats      `json:"pool"`
	Memory     MemoryStats    `json:"memory"`
	Goroutines GoroutineStats `json:"goroutines"`
}

// String renders the snapshot as one log line.
func (s Snapshot) String() string {
	return fmt.Sprintf("pool=%d core=%d max=%d active=%d completed=%d total=%d queued=%d remaining=%d terminated=%t heap=%dKiB goroutines=%d/%d",
		s.Pool.PoolSize, s.Pool.CoreSize, s.Pool.MaxSize, s.Pool.Active, s.Pool.Completed, s.Pool.Total,
		s.Pool.Queued, s.Pool.RemainingCapacity, s.Pool.Terminated, s.Memory.HeapUsed/1024,
		s.Goroutines.Live, s.Goroutines.Peak)
}

// Monitor samples an Observed pool every period until the pool reports
// terminated. The terminal check runs after each sample, so the final
// state is always captured and nothing is sampled after it.
type Monitor struct {
	name   string
	pool   Observed
	period time.Duration
	sink   func(Snapshot)
	logger zerolog.Logger

	state atomic.Int32
	peak  int
	once  sync.Once
	done  chan struct{}
	err   error
}

// NewMonitor returns an idle monitor. A non-positive period selects
// DefaultPeriod.
func NewMonitor(name string, pool Observed, period time.Duration) *Monitor {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Monitor{
		name:   name,
		pool:   pool,
		period: period,
		logger: logging.Component("scheduler.monitor"),
		done:   make(chan struct{}),
	}
}

// WithSink delivers every snapshot to fn. fn runs on the monitor goroutine.
func (m *Monitor) WithSink(fn func(Snapshot)) *Monitor {
	m.sink = fn
	return m
}

// WithLogger replaces the monitor logger.
func (m *Monitor) WithLogger(logger zerolog.Logger) *Monitor {
	m.logger = logger
	return m
}

// State returns the current lifecycle state.
func (m *Monitor) State() State { return State(m.state.Load()) }

// Start runs the sampling loop in the background. Only the first call has
// an effect.
func (m *Monitor) Start(ctx context.Context) {
	m.once.Do(func() {
		go func() {
			m.err = m.run(ctx)
			close(m.done)
		}()
	})
}

// Run samples in the calling goroutine until the pool terminates, ctx is
// done, or a sample fails.
func (m *Monitor) Run(ctx context.Context) error {
	err := ErrMonitorStarted
	m.once.Do(func() {
		m.err = m.run(ctx)
		err = m.err
		close(m.done)
	})
	return err
}

// Done is closed when the monitor stops.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Err returns why the loop stopped once Done is closed. It is nil when the
// pool terminated.
func (m *Monitor) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

func (m *Monitor) run(ctx context.Context) error {
	m.state.Store(int32(StateSampling))
	defer m.state.Store(int32(StateStopped))

	timer := time.NewTimer(m.period)
	defer timer.Stop()

	for {
		snap, err := m.sample()
		if err != nil {
			m.logger.Error().Err(err).Str("pool", m.name).Msg("Pool sampling failed, monitor stopping")
			return err
		}
		if m.sink != nil {
			m.sink(snap)
		}
		m.logger.Debug().
			Str("pool", m.name).
			Int("pool_size", snap.Pool.PoolSize).
			Int("active", snap.Pool.Active).
			Int64("completed", snap.Pool.Completed).
			Int("queued", snap.Pool.Queued).
			Uint64("heap_used", snap.Memory.HeapUsed).
			Int("goroutines", snap.Goroutines.Live).
			Msg(snap.String())

		if snap.Pool.Terminated {
			return nil
		}

		timer.Reset(m.period)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// sample converts a panic of the observed pool into an error.
func (m *Monitor) sample() (snap Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sample panicked: %v", r)
		}
	}()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	live := runtime.NumGoroutine()
	m.peak = max(m.peak, live)

	return Snapshot{
		Name: m.name,
		Time: time.Now(),
		Pool: m.pool.Stats(),
		Memory: MemoryStats{
			HeapUsed:      ms.HeapAlloc,
			HeapCommitted: ms.HeapSys,
			Sys:           ms.Sys,
			NumGC:         ms.NumGC,
		},
		Goroutines: GoroutineStats{Live: live, Peak: m.peak},
	}, nil
}
