package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWithWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("executor", zerolog.DebugLevel, &buf)

	logger.Debug().Msg("command finished")
	assert.Contains(t, buf.String(), "command finished")
	assert.Contains(t, buf.String(), `"component":"executor"`)
	assert.Contains(t, buf.String(), `"level":"debug"`)
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("test", zerolog.InfoLevel, &buf)

	logger.Debug().Msg("debug message")
	assert.NotContains(t, buf.String(), "debug message")

	logger.Warn().Msg("warn message")
	assert.Contains(t, buf.String(), "warn message")
}

func TestConfigureGlobal(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.ErrorLevel)

	var buf bytes.Buffer
	ConfigureGlobal(zerolog.InfoLevel, &buf)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	logger := Component("scheduler")
	logger.Info().Msg("pool started")
	assert.Contains(t, buf.String(), `"component":"scheduler"`)
	assert.Contains(t, buf.String(), "pool started")
}

func TestConfigureGlobalLogging_File(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.ErrorLevel)

	path := filepath.Join(t.TempDir(), "assessor.log")
	closer, err := ConfigureGlobalLogging(Options{Level: "warn", Format: "json", File: path})
	require.NoError(t, err)

	log.Warn().Msg("written to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.ErrorLevel, parseLogLevel(""))
	assert.Equal(t, zerolog.DebugLevel, parseLogLevel("DEBUG"))
	assert.Equal(t, zerolog.ErrorLevel, parseLogLevel("loud"))
}
