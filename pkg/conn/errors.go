package conn

import (
	"context"
	"errors"
	"fmt"
)

const (
	errorCodeConnectivity         = "CONNECTIVITY_FAILED"
	errorCodeAuthentication       = "AUTHENTICATION_FAILED"
	errorCodeInvalidTarget        = "INVALID_TARGET"
	errorCodeUnsupportedTransport = "UNSUPPORTED_TRANSPORT"
	errorCodeCanceled             = "CANCELED"
)

var (
	// ErrConnectivity indicates that no session or channel could be opened.
	// It aborts the assessment of the affected host.
	ErrConnectivity = errors.New("connectivity failure")

	// ErrAuthentication indicates the remote side rejected the credentials.
	ErrAuthentication = errors.New("authentication failed")

	// ErrInvalidTarget indicates incomplete connection data.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrUnsupportedTransport indicates an unknown transport name.
	ErrUnsupportedTransport = errors.New("unsupported transport")
)

type errorCoder interface {
	error
	Code() string
}

type withCodeError struct {
	error
	code string
}

func (e *withCodeError) Code() string {
	return e.code
}

func (e *withCodeError) Unwrap() error {
	return e.error
}

// WithErrorCode annotates err with a connection error code.
func WithErrorCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &withCodeError{error: err, code: code}
}

// WrapConnectivity marks err as a connectivity failure for target. Context
// errors are returned untouched so cancellation keeps propagating as such.
func WrapConnectivity(target Target, err error) error {
	if err == nil {
		return nil
	}
	if IsCanceled(err) || errors.Is(err, ErrConnectivity) {
		return err
	}
	return WithErrorCode(fmt.Errorf("%w: %s: %w", ErrConnectivity, target.HostPort(0), err), errorCodeConnectivity)
}

// NewAuthenticationError reports rejected credentials; it is also a
// connectivity failure because no session exists afterwards.
func NewAuthenticationError(target Target, err error) error {
	return WithErrorCode(fmt.Errorf("%w: %w: %s: %w", ErrConnectivity, ErrAuthentication, target.String(), err), errorCodeAuthentication)
}

// NewInvalidTargetError formats a precondition failure on the target.
func NewInvalidTargetError(err error) error {
	return WithErrorCode(fmt.Errorf("%w: %w", ErrInvalidTarget, err), errorCodeInvalidTarget)
}

// NewUnsupportedTransportError formats an unknown transport error.
func NewUnsupportedTransportError(t Transport) error {
	return WithErrorCode(fmt.Errorf("%w: %q (use ssh or winrm)", ErrUnsupportedTransport, t), errorCodeUnsupportedTransport)
}

// IsCanceled reports whether err stems from context cancellation or deadline.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ErrorCode resolves err to its connection error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var coded errorCoder
	if errors.As(err, &coded) {
		if code := coded.Code(); code != "" {
			return code
		}
	}

	switch {
	case IsCanceled(err):
		return errorCodeCanceled
	case errors.Is(err, ErrAuthentication):
		return errorCodeAuthentication
	case errors.Is(err, ErrInvalidTarget):
		return errorCodeInvalidTarget
	case errors.Is(err, ErrUnsupportedTransport):
		return errorCodeUnsupportedTransport
	default:
		return errorCodeConnectivity
	}
}

// ExitCode maps connection errors to CLI exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch {
	case errors.Is(err, ErrInvalidTarget), errors.Is(err, ErrUnsupportedTransport):
		return 2
	case errors.Is(err, ErrAuthentication):
		return 3
	case errors.Is(err, ErrConnectivity):
		return 4
	case IsCanceled(err):
		return 130
	default:
		return 1
	}
}

// Suggestions provides CLI hints for connection errors.
func Suggestions(err error) []string {
	if err == nil {
		return nil
	}

	switch ErrorCode(err) {
	case errorCodeAuthentication:
		return []string{
			"Check the username and password or private key",
			"Make sure password authentication is enabled on the host",
		}
	case errorCodeConnectivity:
		return []string{
			"Verify the address and port are reachable from this machine",
			"Raise --ssh.timeout or --winrm.timeout for slow links",
		}
	case errorCodeInvalidTarget:
		return []string{
			"Provide --host, --user and either --password or --key",
		}
	case errorCodeUnsupportedTransport:
		return []string{
			"Use --transport ssh for Unix-like hosts or --transport winrm for Windows",
		}
	default:
		return nil
	}
}
