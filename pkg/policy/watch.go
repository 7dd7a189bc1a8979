package policy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/vulntor/assessor/pkg/logging"
)

// ParseCustom reads one literal pattern per line. Blank lines and lines
// starting with # are skipped; surrounding whitespace is trimmed.
func ParseCustom(r io.Reader) (*Custom, error) {
	sc := bufio.NewScanner(r)
	var patterns []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewCustom(patterns), nil
}

// LoadCustomFile reads a pattern file with ParseCustom.
func LoadCustomFile(path string) (*Custom, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open custom patterns: %w", err)
	}
	defer f.Close()

	c, err := ParseCustom(f)
	if err != nil {
		return nil, fmt.Errorf("read custom patterns %s: %w", path, err)
	}
	return c, nil
}

// CustomWatcher keeps a Custom in sync with a pattern file. Each reload
// builds a new Custom; values handed out earlier are never modified.
type CustomWatcher struct {
	path    string
	current atomic.Pointer[Custom]
	watcher *fsnotify.Watcher

	// debounceDelay coalesces bursts of writes into one reload.
	debounceDelay time.Duration
	onChange      func(*Custom)
	logger        zerolog.Logger

	mu            sync.Mutex
	debounceTimer *time.Timer
}

// NewCustomWatcher loads path once and prepares a watcher for it.
func NewCustomWatcher(path string) (*CustomWatcher, error) {
	c, err := LoadCustomFile(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &CustomWatcher{
		path:          path,
		watcher:       watcher,
		debounceDelay: 100 * time.Millisecond,
		logger:        logging.Component("policy.watcher"),
	}
	w.current.Store(c)
	return w, nil
}

// WithDebounce overrides the reload delay.
func (w *CustomWatcher) WithDebounce(d time.Duration) *CustomWatcher {
	w.debounceDelay = d
	return w
}

// OnChange registers fn to run after every successful reload. Set it
// before Start.
func (w *CustomWatcher) OnChange(fn func(*Custom)) *CustomWatcher {
	w.onChange = fn
	return w
}

// Current returns the latest loaded Custom.
func (w *CustomWatcher) Current() *Custom {
	return w.current.Load()
}

// Start watches the pattern file until ctx is canceled. It blocks. The
// parent directory is watched so editors that replace the file are seen.
func (w *CustomWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	name := filepath.Base(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info().Str("file", w.path).Dur("debounce", w.debounceDelay).Msg("Watching custom patterns")

	defer func() {
		w.mu.Lock()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
		}
		w.mu.Unlock()
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("Error closing watcher")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (w *CustomWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.reload)
}

// reload keeps the previous patterns when the file cannot be read.
func (w *CustomWatcher) reload() {
	c, err := LoadCustomFile(w.path)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to reload custom patterns")
		return
	}
	w.current.Store(c)
	w.logger.Info().Int("patterns", len(c.Patterns())).Msg("Custom patterns reloaded")
	if w.onChange != nil {
		w.onChange(c)
	}
}

// Close releases the watcher without Start.
func (w *CustomWatcher) Close() error {
	return w.watcher.Close()
}
