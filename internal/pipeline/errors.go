package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrRunInProgress is returned when Start or Reset is called while a run
	// is still executing on the same orchestrator.
	ErrRunInProgress = errors.New("pipeline run already in progress")
	// ErrEmptyDataset is wrapped in a ParseError when a parser yields no records.
	ErrEmptyDataset = errors.New("parsed dataset is empty")
)

// ValidationError rejects upload input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// ParseError reports a parser failure or an unusable parse result.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("parse failed: %v", e.Err)
	}
	return fmt.Sprintf("parse failed (%s): %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StageError wraps any other failure inside a stage, including panics.
type StageError struct {
	Stage StageID
	Err   error
	Panic bool
}

func (e *StageError) Error() string {
	if e.Panic {
		return fmt.Sprintf("stage %s panicked: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// CollaboratorError is an insight provider failure. The AI-Analysis stage
// records it and falls back instead of failing the run.
type CollaboratorError struct {
	Provider string
	Err      error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("insight provider %s failed: %v", e.Provider, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// errorType names the taxonomy entry of err for ErrorInfo.
func errorType(err error) string {
	var (
		ve *ValidationError
		pe *ParseError
		ce *CollaboratorError
	)
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &pe):
		return "parse"
	case errors.As(err, &ce):
		return "collaborator"
	default:
		return "stage"
	}
}
