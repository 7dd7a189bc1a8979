package middleware

import (
	"errors"
	"fmt"

	"github.com/vulntor/assessor/pkg/conn"
)

var (
	// ErrInsufficientInput indicates that a required path or artifact was
	// not supplied. It is raised before any remote access takes place.
	ErrInsufficientInput = errors.New("insufficient input")

	// ErrRead marks a configuration file that was requested from the host
	// and could not be read.
	ErrRead = errors.New("read failed")

	// ErrUnsupportedKind indicates an unknown middleware kind.
	ErrUnsupportedKind = errors.New("unsupported middleware kind")

	// ErrMalformed marks a configuration artifact that could not be decoded.
	ErrMalformed = errors.New("malformed configuration")
)

const (
	errorCodeInsufficientInput = "INSUFFICIENT_INPUT"
	errorCodeUnsupportedKind   = "UNSUPPORTED_MIDDLEWARE"
	errorCodeMalformed         = "MALFORMED_CONFIG"
	errorCodeRead              = "READ_FAILED"
	errorCodeMiddleware        = "MIDDLEWARE_FAILURE"
)

type codedError struct {
	error
	code string
}

func (e *codedError) Unwrap() error {
	return e.error
}

func (e *codedError) Code() string {
	return e.code
}

// WithErrorCode wraps err with a specific error code.
func WithErrorCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &codedError{error: err, code: code}
}

// NewInsufficientInputError reports a missing precondition such as an
// empty install path or an unreadable root configuration file.
func NewInsufficientInputError(what string, cause error) error {
	err := fmt.Errorf("%w: %s", ErrInsufficientInput, what)
	if cause != nil {
		err = fmt.Errorf("%w: %s: %w", ErrInsufficientInput, what, cause)
	}
	return WithErrorCode(err, errorCodeInsufficientInput)
}

// NewReadError reports a failed read of path. Lost connectivity and
// cancellation keep their own codes.
func NewReadError(path string, cause error) error {
	err := fmt.Errorf("%w: %s: %w", ErrRead, path, cause)
	if errors.Is(cause, conn.ErrConnectivity) || conn.IsCanceled(cause) {
		return err
	}
	return WithErrorCode(err, errorCodeRead)
}

// NewMalformedError reports a configuration file that could not be decoded.
func NewMalformedError(path string, cause error) error {
	return WithErrorCode(fmt.Errorf("%w: %s: %w", ErrMalformed, path, cause), errorCodeMalformed)
}

// ErrorCode resolves err into a middleware error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := coded.Code(); code != "" {
			return code
		}
	}

	switch {
	case errors.Is(err, ErrInsufficientInput):
		return errorCodeInsufficientInput
	case errors.Is(err, ErrUnsupportedKind):
		return errorCodeUnsupportedKind
	case errors.Is(err, ErrMalformed):
		return errorCodeMalformed
	case errors.Is(err, ErrRead):
		return errorCodeRead
	}
	return errorCodeMiddleware
}

// ExitCode maps middleware errors to CLI exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch ErrorCode(err) {
	case errorCodeInsufficientInput, errorCodeUnsupportedKind:
		return 2
	default:
		return 1
	}
}

// Suggestions provides CLI hints for middleware errors.
func Suggestions(err error) []string {
	if err == nil {
		return nil
	}

	switch ErrorCode(err) {
	case errorCodeInsufficientInput:
		return []string{
			"Pass the install or config path:  assessor middleware apache --path /etc/httpd/conf/httpd.conf",
			"Check the file is readable by the connecting user or use --sudo",
		}
	case errorCodeUnsupportedKind:
		return []string{
			"Supported kinds: apache, nginx, tomcat, websphere",
		}
	case errorCodeMalformed:
		return []string{
			"Verify the file on the host is complete and well formed",
		}
	case errorCodeRead:
		return []string{
			"Check the path exists on the host",
			"Check the file is readable by the connecting user or use --sudo",
		}
	default:
		return nil
	}
}
