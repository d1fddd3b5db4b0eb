package batch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUpload       = errors.New("upload failed")
	ErrSubmission   = errors.New("submission failed")
	ErrStatusCheck  = errors.New("status check failed")
	ErrCancellation = errors.New("cancellation failed")
	ErrDownload     = errors.New("download failed")

	ErrNotCompleted  = errors.New("job not completed")
	ErrNoOutput      = errors.New("job has no output file")
	ErrNoExternalID  = errors.New("job has no external batch id")
	ErrInvalidState  = errors.New("invalid job state")
	ErrJobNotFound   = errors.New("job not found")
	ErrUnknownSchema = errors.New("unknown job record schema version")

	ErrMalformedCorrelationID = errors.New("malformed correlation id")

	// ErrQuotaExceeded indicates the provider returned a quota/limit error (HTTP 429 or similar).
	ErrQuotaExceeded = errors.New("provider quota exceeded")
)

// ValidationError is a bad argument combination.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// NotFoundError is returned when no stored job matches an identifier.
type NotFoundError struct {
	Input string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no job found matching %q", e.Input)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrJobNotFound }

const maxAmbiguousShown = 3

// AmbiguousIdentifierError lists candidates for a prefix matching several jobs.
type AmbiguousIdentifierError struct {
	Input   string
	Matches []JobID
}

// Shown returns the first few candidates and how many were left out.
func (e *AmbiguousIdentifierError) Shown() ([]JobID, int) {
	if len(e.Matches) > maxAmbiguousShown {
		return e.Matches[:maxAmbiguousShown], len(e.Matches) - maxAmbiguousShown
	}
	return e.Matches, 0
}

func (e *AmbiguousIdentifierError) Error() string {
	shown, rest := e.Shown()
	ids := make([]string, len(shown))
	for i, m := range shown {
		ids[i] = string(m)
	}
	msg := fmt.Sprintf("ambiguous job id %q matches %d jobs: %s", e.Input, len(e.Matches), strings.Join(ids, ", "))
	if rest > 0 {
		msg += fmt.Sprintf(" (and %d more)", rest)
	}
	return msg
}

// UnsupportedProcessorError is returned for an unknown processor type.
type UnsupportedProcessorError struct {
	Type ProcessorType
}

func (e *UnsupportedProcessorError) Error() string {
	return fmt.Sprintf("unsupported processor type %q", e.Type)
}

// NoItemsError distinguishes an unknown item from an empty repo or org.
type NoItemsError struct {
	Scope Scope
}

func (e *NoItemsError) Error() string {
	s := e.Scope
	switch {
	case s.Number > 0:
		return fmt.Sprintf("item %s/%s#%d not found", s.Org, s.Repo, s.Number)
	case s.Repo != "":
		return fmt.Sprintf("repository %s/%s has no items", s.Org, s.Repo)
	case s.Org != "":
		return fmt.Sprintf("organization %s has no items", s.Org)
	}
	return "no items found"
}

// ExternalServiceError wraps a failed provider call. errors.Is matches
// both the operation sentinel (ErrUpload, ...) and the cause.
type ExternalServiceError struct {
	Op  error
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%v: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() []error { return []error{e.Op, e.Err} }

// NewExternalError builds an ExternalServiceError for op.
func NewExternalError(op error, err error) error {
	return &ExternalServiceError{Op: op, Err: err}
}
