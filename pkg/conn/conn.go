package conn

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Output is the raw result of one remote command.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Failed reports a command-level failure: something on stderr or a non-zero
// exit status while stdout stayed empty. Commands that print useful output
// and also complain on stderr are treated as successful.
func (o Output) Failed() bool {
	if strings.TrimSpace(o.Stdout) != "" {
		return false
	}
	return strings.TrimSpace(o.Stderr) != "" || o.ExitCode != 0
}

// Message describes a failed command for the error map.
func (o Output) Message() string {
	if msg := strings.TrimSpace(o.Stderr); msg != "" {
		return msg
	}
	if o.ExitCode != 0 {
		return fmt.Sprintf("exit status %d", o.ExitCode)
	}
	return ""
}

// Runner executes one command on an open connection. A returned error means
// the channel itself could not be used (connectivity) or ctx ended; command
// failures are reported through Output.
type Runner interface {
	Execute(ctx context.Context, command string) (Output, error)
}

// Session is a Runner bound to one open connection.
type Session interface {
	Runner
	io.Closer
}

// SwitchUserRunner is implemented by sessions able to run a command through
// an interactive switch-user with the target's root password.
type SwitchUserRunner interface {
	ExecuteAsRoot(ctx context.Context, secret, command string) (Output, error)
}

// Dialer opens sessions to targets.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Session, error)
}

// Elevate strips an existing sudo prefix and adds exactly one.
func Elevate(command string) string {
	return "sudo " + StripSudo(command)
}

// StripSudo removes a leading "sudo " from command.
func StripSudo(command string) string {
	trimmed := strings.TrimSpace(command)
	for strings.HasPrefix(trimmed, "sudo ") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "sudo "))
	}
	return trimmed
}

// ShellQuote wraps s in single quotes for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
