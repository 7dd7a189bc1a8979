// Package privilege decides, once per host, whether the batch already runs
// with administrative rights or has to escalate.
package privilege

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vulntor/assessor/pkg/catalog"
	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/distro"
	"github.com/vulntor/assessor/pkg/logging"
)

// Method is the escalation technique chosen for a batch.
type Method string

const (
	MethodNone       Method = "none"
	MethodSudo       Method = "sudo"
	MethodSwitchUser Method = "su"
)

// Decision is the outcome of one probe. It is computed once and applies to
// every command of the batch.
type Decision struct {
	Privileged bool   `json:"privileged"`
	Elevate    bool   `json:"elevate"`
	Method     Method `json:"method"`
	User       string `json:"user"`
}

// Effective reports whether privileged commands will run with root rights.
func (d Decision) Effective() bool {
	return d.Privileged || d.Elevate
}

// Wrap returns command as it has to be sent. Only sudo rewrites the text;
// switch-user runs the command unchanged through an interactive shell.
func (d Decision) Wrap(command string) string {
	if d.Elevate && d.Method == MethodSudo {
		return conn.Elevate(command)
	}
	return command
}

// Prober tests elevation without running anything destructive.
type Prober struct {
	dialer conn.Dialer
	logger zerolog.Logger
}

// NewProber returns a prober opening its transient sessions through dialer.
func NewProber(dialer conn.Dialer) *Prober {
	return &Prober{dialer: dialer, logger: logging.Component("privilege")}
}

// WithLogger replaces the prober's logger.
func (p *Prober) WithLogger(logger zerolog.Logger) *Prober {
	p.logger = logger
	return p
}

// Probe opens a transient session, decides, and closes it again.
func (p *Prober) Probe(ctx context.Context, target conn.Target) (Decision, error) {
	var decision Decision
	err := p.withSession(ctx, target, func(runner conn.Runner) error {
		var err error
		decision, err = p.ProbeSession(ctx, runner, target)
		return err
	})
	return decision, err
}

// IsAlreadyPrivileged reports whether target logs in with administrative
// rights.
func (p *Prober) IsAlreadyPrivileged(ctx context.Context, target conn.Target) (bool, error) {
	var ok bool
	err := p.withSession(ctx, target, func(runner conn.Runner) error {
		var err error
		ok, err = isPrivileged(ctx, runner, target)
		return err
	})
	return ok, err
}

// CanElevate reports whether target can escalate through sudo or su.
func (p *Prober) CanElevate(ctx context.Context, target conn.Target) (bool, error) {
	var method Method
	err := p.withSession(ctx, target, func(runner conn.Runner) error {
		var err error
		method, err = p.elevationMethod(ctx, runner, target)
		return err
	})
	return method != MethodNone, err
}

// ProbeSession decides on an already open session.
func (p *Prober) ProbeSession(ctx context.Context, runner conn.Runner, target conn.Target) (Decision, error) {
	decision := Decision{Method: MethodNone, User: target.Username}

	privileged, err := isPrivileged(ctx, runner, target)
	if err != nil {
		return decision, err
	}
	if privileged {
		decision.Privileged = true
		p.logger.Debug().Object("target", target).Msg("already privileged")
		return decision, nil
	}
	if target.IsWindows() {
		return decision, nil
	}

	method, err := p.elevationMethod(ctx, runner, target)
	if err != nil {
		return decision, err
	}
	decision.Method = method
	decision.Elevate = method != MethodNone

	p.logger.Debug().
		Object("target", target).
		Str("method", string(method)).
		Bool("elevate", decision.Elevate).
		Msg("privilege probed")
	return decision, nil
}

func (p *Prober) withSession(ctx context.Context, target conn.Target, fn func(conn.Runner) error) error {
	session, err := p.dialer.Dial(ctx, target)
	if err != nil {
		return conn.WrapConnectivity(target, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			p.logger.Debug().Err(cerr).Msg("closing probe session")
		}
	}()
	return fn(session)
}

func isPrivileged(ctx context.Context, runner conn.Runner, target conn.Target) (bool, error) {
	if target.IsWindows() {
		command, _ := catalog.Build(distro.FamilyWindows).Command(catalog.CheckAdministrator)
		out, err := runner.Execute(ctx, command)
		if err != nil {
			return false, conn.WrapConnectivity(target, err)
		}
		return strings.EqualFold(strings.TrimSpace(out.Stdout), "true"), nil
	}

	if target.IsRoot() {
		return true, nil
	}
	out, err := runner.Execute(ctx, "id -u")
	if err != nil {
		return false, conn.WrapConnectivity(target, err)
	}
	return !out.Failed() && strings.TrimSpace(out.Stdout) == "0", nil
}

func (p *Prober) elevationMethod(ctx context.Context, runner conn.Runner, target conn.Target) (Method, error) {
	out, err := runner.Execute(ctx, "sudo -n echo "+conn.ShellQuote(target.Username))
	if err != nil {
		return MethodNone, conn.WrapConnectivity(target, err)
	}
	if !out.Failed() && strings.HasSuffix(strings.TrimSpace(out.Stdout), target.Username) {
		return MethodSudo, nil
	}

	if target.RootPassword == "" {
		return MethodNone, nil
	}
	su, ok := runner.(conn.SwitchUserRunner)
	if !ok {
		p.logger.Debug().Object("target", target).Msg("session cannot switch user")
		return MethodNone, nil
	}
	out, err = su.ExecuteAsRoot(ctx, target.RootPassword, "whoami")
	if err != nil {
		return MethodNone, conn.WrapConnectivity(target, err)
	}
	if lastLine(out.Stdout) == "root" {
		return MethodSwitchUser, nil
	}
	return MethodNone, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
