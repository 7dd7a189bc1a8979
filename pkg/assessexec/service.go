// Package assessexec drives host assessments for the CLI: one host with
// its middleware, or many hosts on a monitored worker pool.
package assessexec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vulntor/assessor/pkg/assess"
	"github.com/vulntor/assessor/pkg/conn"
	"github.com/vulntor/assessor/pkg/facts"
	"github.com/vulntor/assessor/pkg/logging"
	"github.com/vulntor/assessor/pkg/middleware"
	"github.com/vulntor/assessor/pkg/privilege"
)

// Status summarizes how a host assessment ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partially_completed"
	StatusFailed    Status = "failed"
)

// Assessor produces the fact tree of one host.
type Assessor interface {
	Assess(ctx context.Context, target conn.Target) (*facts.AssessmentResult, error)
}

type ProgressSink interface {
	OnEvent(ProgressEvent)
}

type ProgressEvent struct {
	Phase     string
	RunID     string
	Target    string
	Status    string
	Message   string
	Timestamp time.Time
}

// Params describes one host run.
type Params struct {
	RunID      string           `yaml:"run_id" json:"run_id"`
	Target     conn.Target      `yaml:",inline" json:"target"`
	Middleware []MiddlewareSpec `yaml:"middleware" json:"middleware,omitempty"`
}

// Result is the outcome of one host run. It is returned even when the run
// failed so batch callers can report every host.
type Result struct {
	RunID      string                   `json:"run_id" yaml:"run_id"`
	Target     string                   `json:"target" yaml:"target"`
	Status     Status                   `json:"status" yaml:"status"`
	StartedAt  time.Time                `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time                `json:"finished_at" yaml:"finished_at"`
	Assessment *facts.AssessmentResult  `json:"assessment,omitempty" yaml:"assessment,omitempty"`
	Middleware []MiddlewareResult       `json:"middleware,omitempty" yaml:"middleware,omitempty"`
	Error      string                   `json:"error,omitempty" yaml:"error,omitempty"`
}

// MiddlewareResult holds one parsed installation or why it failed.
type MiddlewareResult struct {
	Kind     middleware.Kind     `json:"kind" yaml:"kind"`
	Path     string              `json:"path" yaml:"path"`
	Instance middleware.Instance `json:"instance,omitempty" yaml:"instance,omitempty"`
	Records  []middleware.Record `json:"records,omitempty" yaml:"records,omitempty"`
	Error    string              `json:"error,omitempty" yaml:"error,omitempty"`
}

type Service struct {
	dialer       conn.Dialer
	assessor     Assessor
	progressSink ProgressSink
	now          func() time.Time
	logger       zerolog.Logger
}

// NewService builds a Service assessing hosts reached through dialer.
func NewService(dialer conn.Dialer) *Service {
	return &Service{
		dialer:   dialer,
		assessor: assess.New(dialer),
		now:      time.Now,
		logger:   logging.Component("assessexec"),
	}
}

// WithAssessor replaces the host assessor (useful for tests).
func (s *Service) WithAssessor(a Assessor) *Service {
	s.assessor = a
	return s
}

// WithProgressSink attaches a sink to receive progress notifications.
func (s *Service) WithProgressSink(sink ProgressSink) *Service {
	s.progressSink = sink
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run assesses one host and then parses its middleware. Middleware specs
// are validated before any remote call. The returned Result is never nil;
// the error is the one that made the run fail.
func (s *Service) Run(ctx context.Context, params Params) (*Result, error) {
	if params.RunID == "" {
		params.RunID = uuid.NewString()
	}
	res := &Result{RunID: params.RunID, Target: params.Target.String(), StartedAt: s.now().UTC()}
	fail := func(err error) (*Result, error) {
		res.Status = StatusFailed
		res.Error = err.Error()
		res.FinishedAt = s.now().UTC()
		s.emit("run", params, string(StatusFailed), err.Error())
		return res, err
	}

	for _, spec := range params.Middleware {
		if err := spec.Validate(); err != nil {
			return fail(err)
		}
	}

	s.emit("assess", params, "start", "")
	assessment, err := s.assessor.Assess(ctx, params.Target)
	if err != nil {
		return fail(err)
	}
	res.Assessment = assessment
	s.emit("assess", params, "completed", fmt.Sprintf("errors=%d", len(assessment.ErrorMap)))

	if len(params.Middleware) > 0 {
		mw, err := s.runMiddleware(ctx, params, assessment.Privilege)
		res.Middleware = mw
		if err != nil {
			return fail(err)
		}
	}

	res.Status = statusOf(res)
	res.FinishedAt = s.now().UTC()
	s.emit("run", params, string(res.Status), "")
	s.logger.Info().
		Str("run_id", res.RunID).
		Object("target", params.Target).
		Str("status", string(res.Status)).
		Msg("Host run finished")
	return res, nil
}

func (s *Service) runMiddleware(ctx context.Context, params Params, decision privilege.Decision) ([]MiddlewareResult, error) {
	session, err := s.dialer.Dial(ctx, params.Target)
	if err != nil {
		return nil, conn.WrapConnectivity(params.Target, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			s.logger.Debug().Err(cerr).Msg("close middleware session")
		}
	}()

	src := middleware.Remote(session).WithElevation(decision.Elevate && decision.Method == privilege.MethodSudo)
	out := make([]MiddlewareResult, 0, len(params.Middleware))
	for _, spec := range params.Middleware {
		s.emit("middleware", params, "start", string(spec.Kind)+" "+spec.Path)
		mr := MiddlewareResult{Kind: spec.Kind, Path: spec.Path}
		inst, err := ParseMiddleware(ctx, src, session, spec)
		switch {
		case conn.IsCanceled(err) || errors.Is(err, conn.ErrConnectivity):
			return out, err
		case err != nil:
			mr.Error = err.Error()
		default:
			mr.Instance = inst
			mr.Records = inst.Records()
		}
		out = append(out, mr)
	}
	return out, nil
}

// statusOf is partial when facts are missing, the login is unprivileged
// or a middleware installation could not be read.
func statusOf(res *Result) Status {
	if res.Assessment.Partial() || !res.Assessment.Privilege.Effective() {
		return StatusPartial
	}
	for _, mw := range res.Middleware {
		if mw.Error != "" {
			return StatusPartial
		}
	}
	return StatusCompleted
}

func (s *Service) emit(phase string, params Params, status, msg string) {
	if s.progressSink == nil {
		return
	}
	s.progressSink.OnEvent(ProgressEvent{
		Phase:     phase,
		RunID:     params.RunID,
		Target:    params.Target.String(),
		Status:    status,
		Message:   msg,
		Timestamp: s.now(),
	})
}
