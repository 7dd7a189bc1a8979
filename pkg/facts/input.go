package facts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vulntor/assessor/pkg/catalog"
	"github.com/vulntor/assessor/pkg/distro"
	"github.com/vulntor/assessor/pkg/executor"
	"github.com/vulntor/assessor/pkg/privilege"
)

var errNoFollowUp = errors.New("follow-up commands are not available")

// RunFunc executes a follow-up catalog on the session of the running
// assessment.
type RunFunc func(ctx context.Context, cat catalog.Catalog) (executor.Results, error)

// Input is everything a parser may read: the batch results plus the
// context they were collected in.
type Input struct {
	Results      executor.Results
	Distribution distro.Distribution
	Catalog      catalog.Catalog
	Privilege    privilege.Decision
	Now          time.Time

	run RunFunc
}

// NewInput builds parser input. run may be nil, in which case follow-up
// commands fail.
func NewInput(results executor.Results, d distro.Distribution, cat catalog.Catalog, decision privilege.Decision, now time.Time, run RunFunc) *Input {
	return &Input{Results: results, Distribution: d, Catalog: cat, Privilege: decision, Now: now, run: run}
}

// Output returns the stdout of key, or an ErrCommandFailed error carrying
// the command's failure message.
func (in *Input) Output(key catalog.FactKey) (string, error) {
	res, ok := in.Results[key]
	if !ok {
		return "", fmt.Errorf("%w: %s was not collected", ErrCommandFailed, key)
	}
	if res.Err {
		return "", fmt.Errorf("%w: %s: %s", ErrCommandFailed, key, res.Message)
	}
	return res.Output, nil
}

// FollowUp runs commands whose text depends on earlier output. Only
// connectivity loss and cancellation are returned as errors.
func (in *Input) FollowUp(ctx context.Context, entries ...catalog.Entry) (executor.Results, error) {
	if in.run == nil {
		return nil, errNoFollowUp
	}
	return in.run(ctx, catalog.New(in.Catalog.Family(), entries...))
}
