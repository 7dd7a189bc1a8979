// pkg/logging/logging.go
package logging

import (
	"fmt"
	"io"
	stdLog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// logWriter stores the current log writer globally
var logWriter io.Writer

// Options mirrors the log section of the assessor configuration.
type Options struct {
	Level  string
	Format string // "text" or "json"
	File   string
}

// stdLogWriter forwards output written through the standard library logger
// (used by some transports) into zerolog at debug level.
type stdLogWriter struct {
	logger zerolog.Logger
}

func (w *stdLogWriter) Write(p []byte) (int, error) {
	w.logger.Debug().Str("source", "stdlog").Msg(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// init hides logs emitted before the CLI configures logging.
func init() {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	logWriter = zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// ConfigureGlobalLogging configures the global logger from opts. When a file
// is given, the returned closer must be closed on shutdown.
func ConfigureGlobalLogging(opts Options) (io.Closer, error) {
	var closer io.Closer = nopCloser{}

	w := getLogWriter()
	if strings.EqualFold(opts.Format, "json") {
		w = os.Stderr
	}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", opts.File, err)
		}
		w = f
		closer = f
	}

	ConfigureGlobal(parseLogLevel(opts.Level), w)
	return closer, nil
}

// ConfigureGlobal sets the global level and writer. A nil writer keeps the
// current one.
func ConfigureGlobal(level zerolog.Level, w ...io.Writer) {
	zerolog.SetGlobalLevel(level)

	out := getLogWriter()
	if len(w) > 0 && w[0] != nil {
		out = w[0]
	}

	logContext := zerolog.New(out).With().Timestamp()
	if level <= zerolog.DebugLevel {
		logContext = logContext.Caller()
	}

	log.Logger = logContext.Logger().Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	stdLog.SetFlags(0)
	stdLog.SetOutput(&stdLogWriter{logger: log.Logger})
}

// NewLogger returns a component logger writing to the global writer.
func NewLogger(component string, level zerolog.Level) zerolog.Logger {
	return NewLoggerWithWriter(component, level, getLogWriter())
}

// NewLoggerWithWriter returns a component logger writing JSON lines to w.
func NewLoggerWithWriter(component string, level zerolog.Level, w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Str("component", component).Logger()
}

// Component derives a child of the global logger tagged with component.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// parseLogLevel converts a string log level to zerolog.Level
func parseLogLevel(levelString string) zerolog.Level {
	if levelString == "" {
		levelString = "error"
	}

	level, err := zerolog.ParseLevel(strings.ToLower(levelString))
	if err != nil {
		log.Error().Err(err).
			Str("logLevel", levelString).
			Msg("Invalid log level provided. Defaulting to error level.")
		return zerolog.ErrorLevel
	}
	return level
}

func getLogWriter() io.Writer {
	return logWriter
}

// SetLogWriter sets the global log writer
func SetLogWriter(w io.Writer) {
	logWriter = w
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
