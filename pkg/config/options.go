package config

import (
	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/executor"
	"github.com/vulntor/assessor/pkg/logging"
	"github.com/vulntor/assessor/pkg/scheduler"
)

// ConnOptions returns the transport settings for conn.NewDialer.
func (c Config) ConnOptions() conn.Options {
	return conn.Options{
		SSH: conn.SSHOptions{
			Port:       c.SSH.Port,
			Timeout:    c.SSH.Timeout,
			KnownHosts: c.SSH.KnownHosts,
		},
		WinRM: conn.WinRMOptions{
			Port:     c.WinRM.Port,
			HTTPS:    c.WinRM.HTTPS,
			Insecure: c.WinRM.Insecure,
			Timeout:  c.WinRM.Timeout,
		},
	}
}

func (c Config) ExecutorOptions() executor.Options {
	return executor.Options{
		CommandTimeout: c.Executor.CommandTimeout,
		Parallelism:    c.Executor.Parallelism,
	}
}

// PoolOptions keeps the scheduler default keep-alive.
func (c Config) PoolOptions() scheduler.Options {
	opts := scheduler.DefaultOptions()
	opts.CoreWorkers = c.Scheduler.CoreWorkers
	opts.MaxWorkers = c.Scheduler.MaxWorkers
	opts.QueueCapacity = c.Scheduler.QueueCapacity
	return opts
}

func (c Config) LogOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, Format: c.Log.Format, File: c.Log.File}
}
