package facts

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
)

var (
	// ErrCommandFailed marks a fact whose command reported a failure.
	ErrCommandFailed = errors.New("command failed")

	// ErrUnsupportedUptime marks uptime text the parser cannot read.
	ErrUnsupportedUptime = errors.New("unsupported uptime format")

	// ErrUnknownFamily marks a host whose distribution maps to no profile.
	ErrUnknownFamily = errors.New("unknown os family")
)

// Collector gathers per-field errors for one assessment. It is created by
// the caller and passed explicitly to every parser.
type Collector struct {
	mu   sync.Mutex
	errs map[string]error
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{errs: map[string]error{}}
}

// Add records err against field. Several errors for one field are combined.
func (c *Collector) Add(field string, err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[field] = multierr.Append(c.errs[field], err)
}

// Addf records a formatted error against field.
func (c *Collector) Addf(field, format string, args ...any) {
	c.Add(field, fmt.Errorf(format, args...))
}

// Has reports whether field has an error.
func (c *Collector) Has(field string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.errs[field]
	return ok
}

// Len is the number of fields with errors.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

// Map renders the error map: field -> message.
func (c *Collector) Map() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.errs))
	for field, err := range c.errs {
		out[field] = err.Error()
	}
	return out
}

// Err combines every recorded error, ordered by field, or returns nil.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fields := make([]string, 0, len(c.errs))
	for f := range c.errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var err error
	for _, f := range fields {
		err = multierr.Append(err, fmt.Errorf("%s: %w", f, c.errs[f]))
	}
	return err
}
