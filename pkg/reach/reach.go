// Package reach checks with ICMP echo requests whether hosts answer before
// a batch spends a login attempt on them.
package reach

import (
	"context"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/go-ping/ping"
	"github.com/rs/zerolog"
	"github.com/vulntor/assessor/pkg/logging"
)

// Pinger is the part of ping.Pinger a Prober drives.
type Pinger interface {
	Run() error
	Stop()
	Statistics() *ping.Statistics

	SetPrivileged(bool)
	SetCount(int)
	SetInterval(time.Duration)
	SetTimeout(time.Duration)
	GetTimeout() time.Duration
}

type pingerFactoryFunc func(addr string) (Pinger, error)

// Options tune the echo requests sent to one host.
type Options struct {
	Count      int
	Interval   time.Duration
	Timeout    time.Duration
	Privileged bool
	// Concurrency bounds Filter.
	Concurrency int
}

func DefaultOptions() Options {
	return Options{
		Count:       1,
		Interval:    time.Second,
		Timeout:     2 * time.Second,
		Concurrency: 16,
	}
}

// Prober sends echo requests with go-ping.
type Prober struct {
	opts          Options
	pingerFactory pingerFactoryFunc
	logger        zerolog.Logger
}

// NewProber normalizes opts. Privileged mode needs root outside Windows
// and silently falls back to unprivileged UDP pings otherwise.
func NewProber(opts Options) *Prober {
	def := DefaultOptions()
	if opts.Count < 1 {
		opts.Count = def.Count
	}
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = def.Concurrency
	}
	logger := logging.Component("reach")
	if opts.Privileged && runtime.GOOS != "windows" && os.Geteuid() != 0 {
		logger.Warn().Msg("privileged ping needs root, falling back to unprivileged ping")
		opts.Privileged = false
	}
	return &Prober{
		opts:   opts,
		logger: logger,
		pingerFactory: func(addr string) (Pinger, error) {
			p, err := ping.NewPinger(addr)
			if err != nil {
				return nil, err
			}
			return &realPingerAdapter{p: p}, nil
		},
	}
}

// Reachable reports whether addr answered at least one echo request.
// Loopback addresses are always reachable. A host that cannot be resolved
// is not.
func (p *Prober) Reachable(ctx context.Context, addr string) bool {
	if ip := net.ParseIP(addr); ip != nil && ip.IsLoopback() {
		return true
	}
	if ctx.Err() != nil {
		return false
	}

	pinger, err := p.pingerFactory(addr)
	if err != nil {
		p.logger.Debug().Err(err).Str("address", addr).Msg("create pinger")
		return false
	}
	pinger.SetPrivileged(p.opts.Privileged)
	pinger.SetCount(p.opts.Count)
	pinger.SetInterval(p.opts.Interval)
	pinger.SetTimeout(p.opts.Timeout)

	opCtx, cancel := context.WithTimeout(ctx, pinger.GetTimeout()+500*time.Millisecond)
	defer cancel()
	stop := context.AfterFunc(opCtx, pinger.Stop)
	defer stop()

	if err := pinger.Run(); err != nil {
		p.logger.Debug().Err(err).Str("address", addr).Msg("ping failed")
	}
	stats := pinger.Statistics()
	return stats != nil && stats.PacketsRecv > 0
}

// Filter probes every address with bounded concurrency and returns the
// set of addresses that answered.
func (p *Prober) Filter(ctx context.Context, addrs []string) map[string]bool {
	live := make(map[string]bool, len(addrs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.opts.Concurrency)

	for _, addr := range addrs {
		if ctx.Err() != nil {
			break
		}
		mu.Lock()
		_, seen := live[addr]
		if !seen {
			live[addr] = false
		}
		mu.Unlock()
		if seen {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(addr string) {
			defer wg.Done()
			defer func() { <-sem }()
			ok := p.Reachable(ctx, addr)
			mu.Lock()
			live[addr] = ok
			mu.Unlock()
		}(addr)
	}
	wg.Wait()

	p.logger.Info().Int("hosts", len(live)).Msg("Reachability probe finished")
	return live
}

type realPingerAdapter struct {
	p *ping.Pinger
}

func (r *realPingerAdapter) Run() error                   { return r.p.Run() }
func (r *realPingerAdapter) Stop()                        { r.p.Stop() }
func (r *realPingerAdapter) Statistics() *ping.Statistics { return r.p.Statistics() }

func (r *realPingerAdapter) SetPrivileged(v bool)        { r.p.SetPrivileged(v) }
func (r *realPingerAdapter) SetCount(c int)              { r.p.Count = c }
func (r *realPingerAdapter) SetInterval(i time.Duration) { r.p.Interval = i }
func (r *realPingerAdapter) SetTimeout(t time.Duration)  { r.p.Timeout = t }
func (r *realPingerAdapter) GetTimeout() time.Duration   { return r.p.Timeout }
