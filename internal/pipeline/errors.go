package pipeline

import (
	"errors"
	"fmt"

	"transcript-pipeline/internal/align"
	"transcript-pipeline/internal/llm"
	"transcript-pipeline/internal/prompt"
	"transcript-pipeline/internal/provider"
)

// Kind classifies pipeline failures so callers can decide on retry and
// reporting per class instead of catching a generic error.
type Kind string

const (
	// KindConfig covers missing credentials, malformed profiles and bad
	// prompt templates. Fatal, never retried.
	KindConfig Kind = "config"
	// KindTransient covers rate limits, timeouts and upstream 5xx. Retried
	// once with backoff inside the stage runner.
	KindTransient Kind = "transient"
	// KindStage is a stage execution failure after any retry; it fails the
	// owning job at that stage.
	KindStage Kind = "stage"
	// KindAlignment is malformed transcript/diarization input; it fails the
	// job before any stage runs.
	KindAlignment Kind = "alignment"
)

// Error is a classified pipeline failure, optionally tied to a stage.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s error in stage %q: %v", e.Kind, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the classification from an error chain, defaulting to
// KindStage for unclassified failures.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindStage
}

// classify wraps an underlying error with its taxonomy kind for a stage.
func classify(stage string, err error) *Error {
	var (
		ncErr   *provider.NotConfiguredError
		npErr   *provider.NoProviderError
		missErr *prompt.MissingValueError
		valErr  *align.ValidationError
	)
	switch {
	case errors.As(err, &ncErr), errors.As(err, &npErr), errors.As(err, &missErr):
		return &Error{Kind: KindConfig, Stage: stage, Err: err}
	case errors.As(err, &valErr):
		return &Error{Kind: KindAlignment, Stage: stage, Err: err}
	case llm.IsTransient(err):
		return &Error{Kind: KindTransient, Stage: stage, Err: err}
	default:
		return &Error{Kind: KindStage, Stage: stage, Err: err}
	}
}
