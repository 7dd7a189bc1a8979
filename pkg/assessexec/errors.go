package assessexec

import (
	"errors"

	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/middleware"
)

var (
	// ErrNoHosts indicates an empty inventory.
	ErrNoHosts = errors.New("no hosts to assess")

	// ErrUnreachable marks a host skipped by the ICMP preflight.
	ErrUnreachable = errors.New("no reply to ICMP echo")
)

// Error codes used by the CLI suggestion system.
const (
	errorCodeNoHosts           = "NO_HOSTS"
	errorCodeAssessmentFailure = "ASSESSMENT_FAILURE"
)

// codedError wraps an error with an explicit error code.
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

// WithErrorCode wraps err with a specific CLI error code.
func WithErrorCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &codedError{error: err, code: code}
}

// ErrorCode resolves an assessment error into a CLI error code. Errors
// from the connection and middleware layers keep their own codes.
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
	case errors.Is(err, ErrNoHosts):
		return errorCodeNoHosts
	case conn.IsCanceled(err),
		errors.Is(err, conn.ErrConnectivity),
		errors.Is(err, conn.ErrInvalidTarget),
		errors.Is(err, conn.ErrUnsupportedTransport):
		return conn.ErrorCode(err)
	case errors.Is(err, middleware.ErrInsufficientInput),
		errors.Is(err, middleware.ErrUnsupportedKind),
		errors.Is(err, middleware.ErrMalformed),
		errors.Is(err, middleware.ErrRead):
		return middleware.ErrorCode(err)
	}

	return errorCodeAssessmentFailure
}

// ExitCode maps assessment errors to CLI exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch {
	case errors.Is(err, ErrNoHosts):
		return 2
	case conn.IsCanceled(err),
		errors.Is(err, conn.ErrConnectivity),
		errors.Is(err, conn.ErrInvalidTarget),
		errors.Is(err, conn.ErrUnsupportedTransport):
		return conn.ExitCode(err)
	case errors.Is(err, middleware.ErrInsufficientInput),
		errors.Is(err, middleware.ErrUnsupportedKind),
		errors.Is(err, middleware.ErrMalformed),
		errors.Is(err, middleware.ErrRead):
		return middleware.ExitCode(err)
	default:
		return 1
	}
}

// Suggestions provides CLI hints for assessment errors.
func Suggestions(err error) []string {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrNoHosts):
		return []string{
			"List hosts in the inventory file:  hosts: [{address: 10.0.0.5, username: root}]",
			"Assess a single host instead:      assessor host --host 10.0.0.5 --user root",
		}
	case errors.Is(err, ErrUnreachable):
		return []string{
			"Hosts behind firewalls may drop ICMP; rerun without --ping",
		}
	case conn.IsCanceled(err), errors.Is(err, conn.ErrConnectivity):
		return conn.Suggestions(err)
	case errors.Is(err, middleware.ErrInsufficientInput),
		errors.Is(err, middleware.ErrUnsupportedKind),
		errors.Is(err, middleware.ErrMalformed),
		errors.Is(err, middleware.ErrRead):
		return middleware.Suggestions(err)
	}
	if hints := conn.Suggestions(err); len(hints) > 0 {
		return hints
	}
	return []string{
		"Retry with verbose logs:           assessor host <flags> --log.level debug",
	}
}
