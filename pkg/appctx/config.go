// Package appctx carries process wide collaborators on a context so cobra
// commands can share them.
package appctx

import (
	"context"

	"github.com/vulntor/assessor/pkg/config"
	"github.com/vulntor/assessor/pkg/conn"
)

type key string

const (
	configKey key = "assessor.config.manager"
	dialerKey key = "assessor.conn.dialer"
)

// WithConfig stores the shared config manager on context.
func WithConfig(ctx context.Context, manager *config.Manager) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, configKey, manager)
}

// Config retrieves the shared config manager from context.
func Config(ctx context.Context) (*config.Manager, bool) {
	if ctx == nil {
		return nil, false
	}
	mgr, ok := ctx.Value(configKey).(*config.Manager)
	return mgr, ok && mgr != nil
}

// WithDialer overrides the dialer commands use to reach hosts.
func WithDialer(ctx context.Context, dialer conn.Dialer) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, dialerKey, dialer)
}

// Dialer returns the dialer stored with WithDialer, or fallback.
func Dialer(ctx context.Context, fallback conn.Dialer) conn.Dialer {
	if ctx != nil {
		if d, ok := ctx.Value(dialerKey).(conn.Dialer); ok && d != nil {
			return d
		}
	}
	return fallback
}
