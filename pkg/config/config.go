package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/executor"
	"github.com/vulntor/assessor/pkg/logging"
	"github.com/vulntor/assessor/pkg/scheduler"
)

// ErrInvalidConfig marks a merged configuration that failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// Manager merges the configuration sources and holds the result.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	mu            sync.RWMutex
}

// NewManager creates a Manager with an empty koanf tree.
func NewManager() *Manager {
	return &Manager{koanfInstance: koanf.New("."), currentConfig: DefaultConfig()}
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	connDefaults := conn.DefaultOptions()
	execDefaults := executor.DefaultOptions()
	poolDefaults := scheduler.DefaultOptions()
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		SSH: SSHConfig{
			Port:    connDefaults.SSH.Port,
			Timeout: connDefaults.SSH.Timeout,
		},
		WinRM: WinRMConfig{
			Port:     connDefaults.WinRM.Port,
			HTTPS:    connDefaults.WinRM.HTTPS,
			Insecure: connDefaults.WinRM.Insecure,
			Timeout:  connDefaults.WinRM.Timeout,
		},
		Executor: ExecutorConfig{
			CommandTimeout: execDefaults.CommandTimeout,
			Parallelism:    execDefaults.Parallelism,
		},
		Scheduler: SchedulerConfig{
			CoreWorkers:   poolDefaults.CoreWorkers,
			MaxWorkers:    poolDefaults.MaxWorkers,
			QueueCapacity: poolDefaults.QueueCapacity,
			MonitorPeriod: scheduler.DefaultPeriod,
		},
		Policy: PolicyConfig{CustomPatterns: []string{}},
	}
}

// Load merges the default sources: built-in defaults, the optional YAML
// file at configPath, ASSESSOR_ variables and flags. A set --debug flag
// forces log.level to debug.
func (m *Manager) Load(flags *pflag.FlagSet, configPath string) error {
	debug := false
	if flags != nil {
		if f := flags.Lookup("debug"); f != nil {
			debug = cast.ToBool(f.Value.String())
		}
	}
	return m.LoadWithSources(DefaultSources(configPath, flags, debug))
}

// LoadWithSources applies sources in priority order, unmarshals the merged
// tree and validates it. The previous configuration is kept on failure.
func (m *Manager) LoadWithSources(sources []ConfigSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := make([]ConfigSource, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	logger := logging.Component("config")
	k := koanf.New(".")
	for _, src := range ordered {
		if err := src.Load(k); err != nil {
			return err
		}
		logger.Debug().Str("source", src.Name()).Int("priority", src.Priority()).Msg("config source loaded")
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	postProcess(&cfg)
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	m.koanfInstance = k
	m.currentConfig = cfg
	return nil
}

// postProcess trims the custom pattern list and drops empty entries.
func postProcess(cfg *Config) {
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	patterns := cfg.Policy.CustomPatterns[:0]
	for _, p := range cfg.Policy.CustomPatterns {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	cfg.Policy.CustomPatterns = patterns
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := m.currentConfig
	cfg.Policy.CustomPatterns = slices.Clone(cfg.Policy.CustomPatterns)
	return cfg
}

// GetString returns the raw value at key coerced to a string.
func (m *Manager) GetString(key string) string {
	return cast.ToString(m.raw(key))
}

func (m *Manager) GetInt(key string) int {
	return cast.ToInt(m.raw(key))
}

func (m *Manager) GetBool(key string) bool {
	return cast.ToBool(m.raw(key))
}

// GetDuration accepts durations, "90s" style strings and plain
// nanosecond counts.
func (m *Manager) GetDuration(key string) time.Duration {
	return cast.ToDuration(m.raw(key))
}

func (m *Manager) GetStringSlice(key string) []string {
	return cast.ToStringSlice(m.raw(key))
}

func (m *Manager) raw(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.koanfInstance.Get(key)
}

// DefaultConfigAsMap flattens DefaultConfig into dotted keys for
// confmap.Provider.
func DefaultConfigAsMap() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		"ssh.port":        def.SSH.Port,
		"ssh.timeout":     def.SSH.Timeout,
		"ssh.known_hosts": def.SSH.KnownHosts,

		"winrm.port":     def.WinRM.Port,
		"winrm.https":    def.WinRM.HTTPS,
		"winrm.insecure": def.WinRM.Insecure,
		"winrm.timeout":  def.WinRM.Timeout,

		"executor.command_timeout": def.Executor.CommandTimeout,
		"executor.parallelism":     def.Executor.Parallelism,

		"scheduler.core_workers":   def.Scheduler.CoreWorkers,
		"scheduler.max_workers":    def.Scheduler.MaxWorkers,
		"scheduler.queue_capacity": def.Scheduler.QueueCapacity,
		"scheduler.monitor_period": def.Scheduler.MonitorPeriod,

		"policy.custom_patterns": def.Policy.CustomPatterns,
	}
}

// BindFlags defines the flags that override config values. Flag names
// equal the koanf keys so posflag can map them directly.
func BindFlags(flags *pflag.FlagSet) {
	def := DefaultConfig()

	flags.String("log.level", def.Log.Level, "Log level (debug, info, warn, error)")
	flags.String("log.format", def.Log.Format, "Log format (text, json)")
	flags.String("log.file", def.Log.File, "Path to log file (optional, leave empty for stderr)")
	flags.Bool("debug", false, "Enable debug logging")

	flags.Int("ssh.port", def.SSH.Port, "Default SSH port")
	flags.Duration("ssh.timeout", def.SSH.Timeout, "SSH dial timeout")
	flags.String("ssh.known_hosts", def.SSH.KnownHosts, "known_hosts file used to verify host keys")

	flags.Int("winrm.port", def.WinRM.Port, "Default WinRM port")
	flags.Bool("winrm.https", def.WinRM.HTTPS, "Use HTTPS for WinRM")
	flags.Bool("winrm.insecure", def.WinRM.Insecure, "Skip WinRM TLS verification")
	flags.Duration("winrm.timeout", def.WinRM.Timeout, "WinRM operation timeout")

	flags.Duration("executor.command_timeout", def.Executor.CommandTimeout, "Timeout of one remote command")
	flags.Int("executor.parallelism", def.Executor.Parallelism, "Commands run concurrently per host")

	flags.Int("scheduler.core_workers", def.Scheduler.CoreWorkers, "Pool workers kept alive")
	flags.Int("scheduler.max_workers", def.Scheduler.MaxWorkers, "Maximum pool workers")
	flags.Int("scheduler.queue_capacity", def.Scheduler.QueueCapacity, "Hosts queued before the pool grows")
	flags.Duration("scheduler.monitor_period", def.Scheduler.MonitorPeriod, "Pool monitor sampling period")

	flags.StringSlice("policy.custom_patterns", def.Policy.CustomPatterns, "Literal patterns for the custom category")
}
