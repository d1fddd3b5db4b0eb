package batch

import (
	"context"
	"encoding/json"
)

// Repository port (interface untuk persistence job record)
type Repository interface {
	Save(ctx context.Context, j *Job) error
	// Get returns ErrJobNotFound when no record exists for id.
	Get(ctx context.Context, id JobID) (*Job, error)
	Exists(ctx context.Context, id JobID) (bool, error)
	ListIDs(ctx context.Context) ([]JobID, error)
	List(ctx context.Context) ([]*Job, error)
	Delete(ctx context.Context, id JobID) error
}

// Provider port for the external batch service. Each method is a single
// call with no retry.
type Provider interface {
	Upload(ctx context.Context, path string) (string, error)
	Submit(ctx context.Context, inputID string, cfg ModelConfig) (string, error)
	Poll(ctx context.Context, batchID string) (PollResult, error)
	Cancel(ctx context.Context, batchID string) error
	Download(ctx context.Context, fileID, destPath string) error
	// Parse skips malformed lines instead of failing.
	Parse(path string) ([]RawOutcome, error)
}

// InputBuilder writes the newline-delimited request payload for a job.
type InputBuilder interface {
	Build(id JobID, items []Item, pt ProcessorType, cfg ModelConfig) (string, error)
}

// Processor describes one kind of analysis request.
type Processor interface {
	Type() ProcessorType
	Version() string
	SystemPrompt() string
	UserPrompt(it Item) string
	// Schema is the structured-output JSON schema for the response.
	Schema() (json.Marshaler, error)
	// Decode validates model output and returns the canonical payload.
	Decode(content string) (json.RawMessage, error)
}

// ProcessorRegistry resolves processor types.
type ProcessorRegistry interface {
	// Lookup returns *UnsupportedProcessorError for unknown types.
	Lookup(pt ProcessorType) (Processor, error)
}

// ItemSource finds the domain items a scope covers.
type ItemSource interface {
	Find(ctx context.Context, scope Scope) ([]Item, error)
}

// ArtifactStore port (interface untuk penyimpanan artefak)
type ArtifactStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// QuestionKind tells a non-interactive Confirmer which check is asked.
type QuestionKind string

const (
	// QuestionRemoveActive is asked first when the job is still active.
	QuestionRemoveActive QuestionKind = "remove_active"
	QuestionRemove       QuestionKind = "remove"
)

type Question struct {
	Kind QuestionKind
	Text string
}

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, q Question) (bool, error)
}
