package conn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHOptions configures the SSH transport.
type SSHOptions struct {
	Port       int
	Timeout    time.Duration
	KnownHosts string // empty disables host key verification
}

type sshSession struct {
	client *ssh.Client
	target Target
	logger zerolog.Logger
}

func dialSSH(ctx context.Context, target Target, opts SSHOptions, logger zerolog.Logger) (Session, error) {
	auth, err := sshAuthMethods(target)
	if err != nil {
		return nil, NewInvalidTargetError(err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in verification through KnownHosts
	if opts.KnownHosts != "" {
		hostKeyCallback, err = knownhosts.New(opts.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts %s: %w", opts.KnownHosts, err)
		}
	}

	cfg := &ssh.ClientConfig{
		User:            target.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         opts.Timeout,
	}

	addr := target.HostPort(opts.Port)
	dialer := net.Dialer{Timeout: opts.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, WrapConnectivity(target, err)
	}

	if opts.Timeout > 0 {
		_ = netConn.SetDeadline(time.Now().Add(opts.Timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(netConn, addr, cfg)
	if err != nil {
		_ = netConn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, NewAuthenticationError(target, err)
		}
		return nil, WrapConnectivity(target, err)
	}
	_ = netConn.SetDeadline(time.Time{})

	logger.Debug().Object("target", target).Msg("ssh session opened")
	return &sshSession{client: ssh.NewClient(c, chans, reqs), target: target, logger: logger}, nil
}

func sshAuthMethods(target Target) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if len(target.PrivateKey) > 0 {
		var (
			signer ssh.Signer
			err    error
		)
		if target.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(target.PrivateKey, []byte(target.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(target.PrivateKey)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if target.Password != "" {
		password := target.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(methods) == 0 {
		return nil, errors.New("no authentication method available")
	}
	return methods, nil
}

// Execute opens a fresh channel for command and always closes it.
func (s *sshSession) Execute(ctx context.Context, command string) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	session, err := s.client.NewSession()
	if err != nil {
		return Output{}, WrapConnectivity(s.target, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return Output{}, ctx.Err()
	case err = <-done:
	}

	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}

	var exitErr *ssh.ExitError
	var missing *ssh.ExitMissingError
	switch {
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitStatus()
		return out, nil
	case errors.As(err, &missing):
		out.ExitCode = -1
		return out, nil
	default:
		return Output{}, WrapConnectivity(s.target, err)
	}
}

// ExecuteAsRoot runs command through "su -" on a pseudo terminal, answering
// the password prompt with secret.
func (s *sshSession) ExecuteAsRoot(ctx context.Context, secret, command string) (Output, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return Output{}, WrapConnectivity(s.target, err)
	}
	defer session.Close()

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm", 80, 200, modes); err != nil {
		return Output{}, WrapConnectivity(s.target, err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		return Output{}, WrapConnectivity(s.target, err)
	}
	buf := &lockedBuffer{}
	session.Stdout = buf
	session.Stderr = buf

	if err := session.Start("LANG=C su - -c " + ShellQuote(command)); err != nil {
		return Output{}, WrapConnectivity(s.target, err)
	}

	if err := waitForPrompt(ctx, buf, "assword", 10*time.Second); err != nil {
		_ = session.Signal(ssh.SIGKILL)
		if IsCanceled(err) {
			return Output{}, err
		}
		return Output{Stderr: "su password prompt not received", ExitCode: -1}, nil
	}
	mark := buf.Len()
	if _, err := io.WriteString(stdin, secret+"\n"); err != nil {
		return Output{}, WrapConnectivity(s.target, err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return Output{}, ctx.Err()
	case err = <-done:
	}

	out := Output{Stdout: strings.TrimLeft(buf.StringFrom(mark), "\r\n")}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitStatus()
		out.Stderr = out.Stdout
		out.Stdout = ""
	}
	return out, nil
}

func (s *sshSession) Close() error {
	s.logger.Debug().Object("target", s.target).Msg("ssh session closed")
	return s.client.Close()
}

func waitForPrompt(ctx context.Context, buf *lockedBuffer, needle string, timeout time.Duration) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)

	for {
		if strings.Contains(buf.String(), needle) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return errors.New("prompt timeout")
		case <-ticker.C:
		}
	}
}

// lockedBuffer is written by the ssh library goroutine and read by the
// prompt watcher.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *lockedBuffer) StringFrom(offset int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := b.buf.Bytes()
	if offset > len(data) {
		return ""
	}
	return string(data[offset:])
}
