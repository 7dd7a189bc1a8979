package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestOptionsNormalized(t *testing.T) {
	o := Options{CoreWorkers: 0, MaxWorkers: -1, QueueCapacity: -3}.normalized()
	assert.Equal(t, 1, o.CoreWorkers)
	assert.Equal(t, 1, o.MaxWorkers)
	assert.Equal(t, 0, o.QueueCapacity)
	assert.Equal(t, DefaultOptions().KeepAlive, o.KeepAlive)
}

func TestPool_GrowsCoreThenQueueThenMax(t *testing.T) {
	pool := NewPool(Options{CoreWorkers: 2, MaxWorkers: 4, QueueCapacity: 2})
	release := make(chan struct{})
	block := func(ctx context.Context) { <-release }

	for range 2 {
		require.NoError(t, pool.Submit(block))
	}
	assert.Equal(t, 2, pool.Stats().PoolSize)

	for range 2 {
		require.NoError(t, pool.Submit(block))
	}
	st := pool.Stats()
	assert.Equal(t, 2, st.PoolSize)
	assert.Equal(t, 2, st.Queued)
	assert.Equal(t, 0, st.RemainingCapacity)

	require.NoError(t, pool.Submit(block))
	require.NoError(t, pool.Submit(block))
	assert.Equal(t, 4, pool.Stats().PoolSize)
	require.ErrorIs(t, pool.Submit(block), ErrQueueFull)

	require.Eventually(t, func() bool { return pool.Stats().Active == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(6), pool.Stats().Total)

	close(release)
	pool.Shutdown()
	require.NoError(t, pool.AwaitTermination(waitCtx(t)))

	st = pool.Stats()
	assert.True(t, st.Terminated)
	assert.True(t, st.Shutdown)
	assert.Equal(t, 0, st.PoolSize)
	assert.Equal(t, 0, st.Active)
	assert.Equal(t, int64(6), st.Completed)
	assert.Equal(t, int64(4), st.WorkersStarted)
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewPool(DefaultOptions())
	pool.Shutdown()
	pool.Shutdown()

	assert.True(t, pool.Terminated())
	require.ErrorIs(t, pool.Submit(func(context.Context) {}), ErrShutdown)
	require.Error(t, pool.Submit(nil))
}

func TestPool_QueuedTasksRunAfterShutdown(t *testing.T) {
	pool := NewPool(Options{CoreWorkers: 1, MaxWorkers: 1, QueueCapacity: 8})
	var ran atomic.Int32
	for range 5 {
		require.NoError(t, pool.Submit(func(context.Context) { ran.Add(1) }))
	}
	pool.Shutdown()
	require.NoError(t, pool.AwaitTermination(waitCtx(t)))
	assert.Equal(t, int32(5), ran.Load())
}

func TestPool_PanicIsContained(t *testing.T) {
	pool := NewPool(Options{CoreWorkers: 1, MaxWorkers: 1, QueueCapacity: 2})
	var ran atomic.Bool
	require.NoError(t, pool.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, pool.Submit(func(context.Context) { ran.Store(true) }))
	pool.Shutdown()
	require.NoError(t, pool.AwaitTermination(waitCtx(t)))
	assert.True(t, ran.Load())
	assert.Equal(t, int64(2), pool.Stats().Completed)
}

func TestPool_ShutdownNowCancelsTasks(t *testing.T) {
	pool := NewPool(Options{CoreWorkers: 1, MaxWorkers: 1})
	started := make(chan struct{})
	var canceled atomic.Bool
	require.NoError(t, pool.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		canceled.Store(true)
	}))
	<-started
	pool.ShutdownNow()
	require.NoError(t, pool.AwaitTermination(waitCtx(t)))
	assert.True(t, canceled.Load())
}

func TestPool_IdleWorkersAboveCoreRetire(t *testing.T) {
	pool := NewPool(Options{CoreWorkers: 1, MaxWorkers: 3, QueueCapacity: 0, KeepAlive: 20 * time.Millisecond})
	release := make(chan struct{})
	for range 3 {
		require.NoError(t, pool.Submit(func(context.Context) { <-release }))
	}
	assert.Equal(t, 3, pool.Stats().PoolSize)
	close(release)

	require.Eventually(t, func() bool { return pool.Stats().PoolSize == 1 }, 2*time.Second, 10*time.Millisecond)
	pool.Shutdown()
	require.NoError(t, pool.AwaitTermination(waitCtx(t)))
}

func TestPool_AwaitTerminationTimeout(t *testing.T) {
	pool := NewPool(DefaultOptions())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, pool.AwaitTermination(ctx), context.DeadlineExceeded)
	pool.Shutdown()
}

// scripted replays a fixed sequence of stats.
type scripted struct {
	mu    sync.Mutex
	stats []PoolStats
	calls int
}

func (s *scripted) Stats() PoolStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats[min(s.calls, len(s.stats)-1)]
	s.calls++
	return st
}

func TestMonitor_StopsAfterTerminatedSample(t *testing.T) {
	obs := &scripted{stats: []PoolStats{
		{CoreSize: 2, MaxSize: 4, PoolSize: 2, Active: 1, Total: 1},
		{CoreSize: 2, MaxSize: 4, PoolSize: 2, Active: 2, Queued: 1, Total: 3},
		{CoreSize: 2, MaxSize: 4, Completed: 3, Total: 3, Shutdown: true, Terminated: true},
		{CoreSize: 2, MaxSize: 4, Terminated: true},
	}}
	var snaps []Snapshot
	mon := NewMonitor("test", obs, time.Millisecond).WithSink(func(s Snapshot) { snaps = append(snaps, s) })
	assert.Equal(t, StateIdle, mon.State())

	require.NoError(t, mon.Run(waitCtx(t)))

	assert.Equal(t, StateStopped, mon.State())
	require.Len(t, snaps, 3)
	assert.Equal(t, 1, snaps[0].Pool.Active)
	assert.Equal(t, 2, snaps[1].Pool.Active)
	assert.Equal(t, 1, snaps[1].Pool.Queued)
	assert.True(t, snaps[2].Pool.Terminated)
	assert.Equal(t, 3, obs.calls)
	assert.Equal(t, "test", snaps[0].Name)
	assert.Positive(t, snaps[0].Goroutines.Live)
	assert.GreaterOrEqual(t, snaps[2].Goroutines.Peak, snaps[2].Goroutines.Live)
	assert.NotZero(t, snaps[0].Memory.HeapUsed)

	require.ErrorIs(t, mon.Run(context.Background()), ErrMonitorStarted)
}

type panicking struct{}

func (panicking) Stats() PoolStats { panic("corrupted") }

func TestMonitor_SampleFailureStops(t *testing.T) {
	var sunk int
	mon := NewMonitor("bad", panicking{}, time.Millisecond).WithSink(func(Snapshot) { sunk++ })

	err := mon.Run(waitCtx(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupted")
	assert.Equal(t, StateStopped, mon.State())
	assert.Zero(t, sunk)
	assert.Equal(t, err, mon.Err())
}

func TestMonitor_ContextCancel(t *testing.T) {
	obs := &scripted{stats: []PoolStats{{PoolSize: 1}}}
	ctx, cancel := context.WithCancel(context.Background())
	mon := NewMonitor("", obs, time.Hour)
	mon.Start(ctx)
	require.Eventually(t, func() bool { return mon.State() == StateSampling }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-mon.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}
	require.ErrorIs(t, mon.Err(), context.Canceled)
	assert.Equal(t, StateStopped, mon.State())
}

func TestMonitor_ObservesLivePool(t *testing.T) {
	pool := NewPool(Options{CoreWorkers: 2, MaxWorkers: 4, QueueCapacity: 4})
	var mu sync.Mutex
	var snaps []Snapshot
	mon := NewMonitor("assess", pool, 2*time.Millisecond).WithSink(func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})
	mon.Start(context.Background())

	release := make(chan struct{})
	for range 4 {
		require.NoError(t, pool.Submit(func(context.Context) { <-release }))
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range snaps {
			if s.Pool.Active == 2 && s.Pool.Queued == 2 {
				return true
			}
		}
		return false
	}, 2*time.Second, 2*time.Millisecond)

	close(release)
	pool.Shutdown()
	require.NoError(t, pool.AwaitTermination(waitCtx(t)))
	<-mon.Done()
	require.NoError(t, mon.Err())

	mu.Lock()
	defer mu.Unlock()
	last := snaps[len(snaps)-1]
	assert.True(t, last.Pool.Terminated)
	assert.Equal(t, int64(4), last.Pool.Completed)
	for _, s := range snaps[:len(snaps)-1] {
		assert.False(t, s.Pool.Terminated)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "sampling", StateSampling.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "State(9)", State(9).String())
}
