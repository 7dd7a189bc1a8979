package conn

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/vulntor/assessor/pkg/logging"
)

// Options bundles the per-transport settings used by NewDialer.
type Options struct {
	SSH   SSHOptions
	WinRM WinRMOptions
}

// DefaultOptions returns ports and timeouts matching the config defaults.
func DefaultOptions() Options {
	return Options{
		SSH:   SSHOptions{Port: 22, Timeout: 10 * time.Second},
		WinRM: WinRMOptions{Port: 5985, Insecure: true, Timeout: 60 * time.Second},
	}
}

// NetDialer dials real hosts over SSH or WinRM.
type NetDialer struct {
	opts   Options
	logger zerolog.Logger
}

// NewDialer builds a dialer for opts.
func NewDialer(opts Options) *NetDialer {
	return &NetDialer{opts: opts, logger: logging.Component("conn")}
}

// Dial validates target and opens a session on the matching transport.
func (d *NetDialer) Dial(ctx context.Context, target Target) (Session, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	switch target.TransportOrDefault() {
	case TransportSSH:
		return dialSSH(ctx, target, d.opts.SSH, d.logger)
	case TransportWinRM:
		return dialWinRM(ctx, target, d.opts.WinRM, d.logger)
	default:
		return nil, NewUnsupportedTransportError(target.Transport)
	}
}
