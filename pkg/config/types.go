package config

import "time"

// Config is the root configuration of the assessor.
type Config struct {
	Log       LogConfig       `description:"Logging configuration" koanf:"log"`
	SSH       SSHConfig       `description:"SSH transport" koanf:"ssh"`
	WinRM     WinRMConfig     `description:"WinRM transport" koanf:"winrm"`
	Executor  ExecutorConfig  `description:"Command batch execution" koanf:"executor"`
	Scheduler SchedulerConfig `description:"Host pool and monitor" koanf:"scheduler"`
	Policy    PolicyConfig    `description:"Classification policy" koanf:"policy"`
}

// LogConfig holds logging related configuration. An unknown level falls
// back to error when logging is configured.
type LogConfig struct {
	Level  string `description:"Log level (debug, info, warn, error)" koanf:"level"`
	Format string `description:"Log format: json | text" koanf:"format" validate:"oneof=json text"`
	File   string `description:"Log file path" koanf:"file"`
}

type SSHConfig struct {
	Port       int           `description:"Default SSH port" koanf:"port" validate:"min=1,max=65535"`
	Timeout    time.Duration `description:"Dial and handshake timeout" koanf:"timeout" validate:"gt=0"`
	KnownHosts string        `description:"known_hosts file; empty skips host key checks" koanf:"known_hosts"`
}

type WinRMConfig struct {
	Port     int           `description:"Default WinRM port" koanf:"port" validate:"min=1,max=65535"`
	HTTPS    bool          `description:"Use HTTPS" koanf:"https"`
	Insecure bool          `description:"Skip TLS verification" koanf:"insecure"`
	Timeout  time.Duration `description:"Operation timeout" koanf:"timeout" validate:"gt=0"`
}

type ExecutorConfig struct {
	CommandTimeout time.Duration `description:"Limit for one remote command" koanf:"command_timeout" validate:"gt=0"`
	Parallelism    int           `description:"Commands in flight per host" koanf:"parallelism" validate:"min=1,max=64"`
}

// SchedulerConfig sizes the batch pool. MaxWorkers may not be below
// CoreWorkers.
type SchedulerConfig struct {
	CoreWorkers   int           `description:"Workers kept alive" koanf:"core_workers" validate:"min=1"`
	MaxWorkers    int           `description:"Upper bound of workers" koanf:"max_workers" validate:"gtefield=CoreWorkers"`
	QueueCapacity int           `description:"Hosts waiting for a worker" koanf:"queue_capacity" validate:"min=0"`
	MonitorPeriod time.Duration `description:"Pool sampling period" koanf:"monitor_period" validate:"gt=0"`
}

type PolicyConfig struct {
	CustomPatterns []string `description:"Extra literal patterns for the custom category" koanf:"custom_patterns"`
}
