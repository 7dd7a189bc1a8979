package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/executor"
)

func newTestFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	return flags
}

func TestDefaultConfig_ReturnsExpectedDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "", cfg.Log.File)
	assert.Equal(t, 22, cfg.SSH.Port)
	assert.Equal(t, 10*time.Second, cfg.SSH.Timeout)
	assert.Equal(t, 5985, cfg.WinRM.Port)
	assert.True(t, cfg.WinRM.Insecure)
	assert.Equal(t, 60*time.Second, cfg.Executor.CommandTimeout)
	assert.Equal(t, 1, cfg.Executor.Parallelism)
	assert.Equal(t, 2, cfg.Scheduler.CoreWorkers)
	assert.Equal(t, 4, cfg.Scheduler.MaxWorkers)
	assert.Equal(t, 64, cfg.Scheduler.QueueCapacity)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.MonitorPeriod)
	assert.Empty(t, cfg.Policy.CustomPatterns)
}

func TestDefaultConfigAsMap_CoversEveryKey(t *testing.T) {
	m := DefaultConfigAsMap()
	flags := newTestFlagSet()
	for key := range m {
		assert.NotNil(t, flags.Lookup(key), "flag for %s", key)
	}
}

func TestManager_Load_LoadsDefaultsWhenNoFlags(t *testing.T) {
	manager := NewManager()
	err := manager.Load(nil, "")
	require.NoError(t, err)

	cfg := manager.Get()
	assert.Equal(t, DefaultConfig().SSH, cfg.SSH)
	assert.Equal(t, DefaultConfig().Scheduler, cfg.Scheduler)
}

func TestManager_Load_OverridesWithFlags(t *testing.T) {
	manager := NewManager()
	flags := newTestFlagSet()
	require.NoError(t, flags.Parse([]string{
		"--log.format", "json",
		"--ssh.timeout", "30s",
		"--scheduler.max_workers", "8",
		"--policy.custom_patterns", "LegacyBridge,  ,OrderFeed",
	}))

	err := manager.Load(flags, "")
	require.NoError(t, err)

	cfg := manager.Get()
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 30*time.Second, cfg.SSH.Timeout)
	assert.Equal(t, 8, cfg.Scheduler.MaxWorkers)
	assert.Equal(t, 2, cfg.Scheduler.CoreWorkers, "unchanged flags keep defaults")
	assert.Equal(t, []string{"LegacyBridge", "OrderFeed"}, cfg.Policy.CustomPatterns)
}

func TestManager_Load_DebugFlag(t *testing.T) {
	manager := NewManager()
	flags := newTestFlagSet()
	require.NoError(t, flags.Parse([]string{"--debug"}))

	require.NoError(t, manager.Load(flags, ""))
	assert.Equal(t, "debug", manager.Get().Log.Level)
}

func TestManager_Load_Precedence(t *testing.T) {
	path := writeConfig(t, `
log:
  level: warn
ssh:
  port: 2200
scheduler:
  core_workers: 3
  max_workers: 6
`)
	t.Setenv("ASSESSOR_SSH_PORT", "2201")

	flags := newTestFlagSet()
	require.NoError(t, flags.Parse([]string{"--scheduler.max_workers", "9"}))

	manager := NewManager()
	require.NoError(t, manager.Load(flags, path))

	cfg := manager.Get()
	assert.Equal(t, "warn", cfg.Log.Level, "file over defaults")
	assert.Equal(t, 2201, cfg.SSH.Port, "env over file")
	assert.Equal(t, 3, cfg.Scheduler.CoreWorkers)
	assert.Equal(t, 9, cfg.Scheduler.MaxWorkers, "flags over file")
}

func TestManager_Load_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"max below core", "scheduler:\n  core_workers: 4\n  max_workers: 2\n"},
		{"port out of range", "ssh:\n  port: 70000\n"},
		{"zero timeout", "executor:\n  command_timeout: 0s\n"},
		{"unknown format", "log:\n  format: xml\n"},
		{"no workers", "scheduler:\n  core_workers: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager()
			err := manager.Load(nil, writeConfig(t, tt.yaml))
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Equal(t, DefaultConfig(), manager.Get(), "failed load keeps previous config")
		})
	}
}

func TestManager_Getters(t *testing.T) {
	t.Setenv("ASSESSOR_EXECUTOR_PARALLELISM", "4")
	t.Setenv("ASSESSOR_WINRM_HTTPS", "true")

	manager := NewManager()
	require.NoError(t, manager.Load(nil, ""))

	assert.Equal(t, 4, manager.GetInt("executor.parallelism"))
	assert.Equal(t, "4", manager.GetString("executor.parallelism"))
	assert.True(t, manager.GetBool("winrm.https"))
	assert.Equal(t, 10*time.Second, manager.GetDuration("ssh.timeout"))
	assert.Empty(t, manager.GetStringSlice("policy.custom_patterns"))
	assert.Equal(t, 4, manager.Get().Executor.Parallelism)
}

func TestManager_Get_ReturnsCopy(t *testing.T) {
	manager := NewManager()
	flags := newTestFlagSet()
	require.NoError(t, flags.Parse([]string{"--policy.custom_patterns", "A"}))
	require.NoError(t, manager.Load(flags, ""))

	cfg := manager.Get()
	cfg.Policy.CustomPatterns[0] = "changed"
	assert.Equal(t, []string{"A"}, manager.Get().Policy.CustomPatterns)
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SSH.KnownHosts = "/etc/ssh/ssh_known_hosts"
	cfg.Scheduler.QueueCapacity = 3

	assert.Equal(t, conn.SSHOptions{Port: 22, Timeout: 10 * time.Second, KnownHosts: "/etc/ssh/ssh_known_hosts"}, cfg.ConnOptions().SSH)
	assert.Equal(t, conn.DefaultOptions().WinRM, cfg.ConnOptions().WinRM)
	assert.Equal(t, executor.DefaultOptions(), cfg.ExecutorOptions())

	pool := cfg.PoolOptions()
	assert.Equal(t, 2, pool.CoreWorkers)
	assert.Equal(t, 4, pool.MaxWorkers)
	assert.Equal(t, 3, pool.QueueCapacity)
	assert.Positive(t, pool.KeepAlive)

	assert.Equal(t, "info", cfg.LogOptions().Level)
}
