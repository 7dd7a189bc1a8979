package conn

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/masterzen/winrm"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/unicode"
)

// WinRMOptions configures the Windows remote shell transport.
type WinRMOptions struct {
	Port     int
	HTTPS    bool
	Insecure bool
	Timeout  time.Duration
	Domain   string
}

type winrmSession struct {
	client *winrm.Client
	target Target
	logger zerolog.Logger
}

func dialWinRM(_ context.Context, target Target, opts WinRMOptions, logger zerolog.Logger) (Session, error) {
	port := target.Port
	if port == 0 {
		port = opts.Port
	}

	endpoint := winrm.NewEndpoint(target.Address, port, opts.HTTPS, opts.Insecure, nil, nil, nil, opts.Timeout)

	var (
		client *winrm.Client
		err    error
	)
	if opts.Domain != "" {
		params := winrm.DefaultParameters
		params.TransportDecorator = func() winrm.Transporter { return &winrm.ClientNTLM{} }
		client, err = winrm.NewClientWithParameters(endpoint, fmt.Sprintf("%s\\%s", opts.Domain, target.Username), target.Password, params)
	} else {
		client, err = winrm.NewClient(endpoint, target.Username, target.Password)
	}
	if err != nil {
		return nil, WrapConnectivity(target, err)
	}

	logger.Debug().Object("target", target).Msg("winrm client ready")
	return &winrmSession{client: client, target: target, logger: logger}, nil
}

// Execute runs command as a PowerShell script passed through -EncodedCommand.
func (s *winrmSession) Execute(ctx context.Context, command string) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	encoded, err := EncodePowerShell(command)
	if err != nil {
		return Output{}, err
	}

	stdout, stderr, code, err := s.client.RunWithContextWithString(ctx, "powershell -NoProfile -NonInteractive -ExecutionPolicy Bypass -EncodedCommand "+encoded, "")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Output{}, ctxErr
		}
		if strings.Contains(err.Error(), "401") {
			return Output{}, NewAuthenticationError(s.target, err)
		}
		return Output{}, WrapConnectivity(s.target, err)
	}

	return Output{Stdout: stdout, Stderr: cleanCLIXML(stderr), ExitCode: code}, nil
}

// Close is a no-op: every WinRM command runs on its own shell.
func (s *winrmSession) Close() error {
	return nil
}

// EncodePowerShell converts script to the base64 UTF-16LE form PowerShell
// expects for -EncodedCommand.
func EncodePowerShell(script string) (string, error) {
	utf16 := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	encoded, err := utf16.NewEncoder().String(script)
	if err != nil {
		return "", fmt.Errorf("encode powershell script: %w", err)
	}
	return base64.StdEncoding.EncodeToString([]byte(encoded)), nil
}

// cleanCLIXML drops the progress records PowerShell writes to stderr on
// every remote invocation so they do not flag a command as failed.
func cleanCLIXML(stderr string) string {
	trimmed := strings.TrimSpace(stderr)
	if !strings.HasPrefix(trimmed, "#< CLIXML") {
		return stderr
	}
	if !strings.Contains(trimmed, `S="Error"`) {
		return ""
	}
	return trimmed
}
