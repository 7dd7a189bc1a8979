// Package conntest provides an in-memory session for exercising code that
// talks to remote hosts.
package conntest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vulntor/assessor/pkg/conn"
)

// Session answers commands from a table. Unknown commands succeed with empty
// output unless Strict is set.
type Session struct {
	mu        sync.Mutex
	outputs   map[string]conn.Output
	errs      map[string]error
	panics    map[string]bool
	rootShell map[string]conn.Output
	executed  []string
	closed    bool

	// Strict makes unknown commands fail at the connectivity level.
	Strict bool
	// RootSecret is the password accepted by ExecuteAsRoot.
	RootSecret string
}

// NewSession returns an empty fake session.
func NewSession() *Session {
	return &Session{
		outputs:   map[string]conn.Output{},
		errs:      map[string]error{},
		panics:    map[string]bool{},
		rootShell: map[string]conn.Output{},
	}
}

// On registers stdout for command.
func (s *Session) On(command, stdout string) *Session {
	return s.OnOutput(command, conn.Output{Stdout: stdout})
}

// OnOutput registers a full output for command.
func (s *Session) OnOutput(command string, out conn.Output) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[command] = out
	return s
}

// OnFail registers a command-level failure.
func (s *Session) OnFail(command, stderr string) *Session {
	return s.OnOutput(command, conn.Output{Stderr: stderr, ExitCode: 1})
}

// OnError registers a transport error for command.
func (s *Session) OnError(command string, err error) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[command] = err
	return s
}

// OnPanic makes command panic inside Execute.
func (s *Session) OnPanic(command string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panics[command] = true
	return s
}

// OnRoot registers the output of command when run through ExecuteAsRoot.
func (s *Session) OnRoot(command, stdout string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rootShell[command] = conn.Output{Stdout: stdout}
	return s
}

// Execute implements conn.Runner.
func (s *Session) Execute(ctx context.Context, command string) (conn.Output, error) {
	if err := ctx.Err(); err != nil {
		return conn.Output{}, err
	}

	s.mu.Lock()
	s.executed = append(s.executed, command)
	out, ok := s.outputs[command]
	err := s.errs[command]
	shouldPanic := s.panics[command]
	strict := s.Strict
	s.mu.Unlock()

	if shouldPanic {
		panic(fmt.Sprintf("fake panic for %q", command))
	}
	if err != nil {
		return conn.Output{}, err
	}
	if !ok && strict {
		return conn.Output{}, fmt.Errorf("%w: unexpected command %q", conn.ErrConnectivity, command)
	}
	return out, nil
}

// ExecuteAsRoot implements conn.SwitchUserRunner.
func (s *Session) ExecuteAsRoot(ctx context.Context, secret, command string) (conn.Output, error) {
	if err := ctx.Err(); err != nil {
		return conn.Output{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed = append(s.executed, "su:"+command)
	if s.RootSecret == "" || secret != s.RootSecret {
		return conn.Output{Stderr: "su: Authentication failure", ExitCode: 1}, nil
	}
	if out, ok := s.rootShell[command]; ok {
		return out, nil
	}
	return s.outputs[command], nil
}

// Close implements io.Closer.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Executed returns the commands run so far, in order.
func (s *Session) Executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.executed...)
}

// Count returns how many times a command containing needle ran.
func (s *Session) Count(needle string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.executed {
		if strings.Contains(c, needle) {
			n++
		}
	}
	return n
}

// Commands lists every registered command, sorted.
func (s *Session) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.outputs))
	for c := range s.outputs {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Dialer hands out a fixed session, or fails with Err.
type Dialer struct {
	Session *Session
	Err     error

	mu    sync.Mutex
	dials int
}

// Dial implements conn.Dialer.
func (d *Dialer) Dial(ctx context.Context, _ conn.Target) (conn.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Session, nil
}

// Dials reports how many sessions were requested.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}
