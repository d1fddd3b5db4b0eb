package batch

import (
	"fmt"
	"time"
)

// JobID identifier type
type JobID string

// Status is the provider's own status vocabulary plus two local values.
type Status string

const (
	// local only, before the first successful submission
	StatusPending Status = "pending"

	StatusValidating Status = "validating"
	StatusInProgress Status = "in_progress"
	StatusFinalizing Status = "finalizing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelling Status = "cancelling"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
)

// IsTerminal reports whether no further provider-driven transition is expected.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the job is still in flight.
func (s Status) IsActive() bool {
	switch s {
	case StatusPending, StatusValidating, StatusInProgress, StatusFinalizing, StatusCancelling:
		return true
	}
	return false
}

// IsCancellable reports whether a cancel request may be sent for s.
func (s Status) IsCancellable() bool {
	switch s {
	case StatusPending, StatusValidating, StatusInProgress, StatusFinalizing, StatusCancelling:
		return true
	}
	return false
}

// ReportsCounts reports whether provider request counts are meaningful for s.
func (s Status) ReportsCounts() bool {
	switch s {
	case StatusInProgress, StatusFinalizing, StatusCompleted:
		return true
	}
	return false
}

// ProcessorType enum
type ProcessorType string

const (
	ProcessorProductLabeling ProcessorType = "product-labeling"
	ProcessorSecurityReview  ProcessorType = "security-review"
)

// ItemKind enum
type ItemKind string

const (
	KindIssue ItemKind = "issue"
	KindPull  ItemKind = "pull"
)

// Valid reports whether k is a known item kind.
func (k ItemKind) Valid() bool {
	return k == KindIssue || k == KindPull
}

// Scope narrows which domain items were included in a job.
type Scope struct {
	Org    string `json:"org" yaml:"org"`
	Repo   string `json:"repo,omitempty" yaml:"repo,omitempty"`
	Number int    `json:"number,omitempty" yaml:"number,omitempty"`
}

// Validate checks argument combinations.
func (s Scope) Validate() error {
	if s.Number < 0 {
		return &ValidationError{Field: "number", Msg: "must be positive"}
	}
	if s.Number > 0 && (s.Org == "" || s.Repo == "") {
		return &ValidationError{Field: "number", Msg: "an item number requires both org and repo"}
	}
	if s.Repo != "" && s.Org == "" {
		return &ValidationError{Field: "repo", Msg: "a repository requires an org"}
	}
	return nil
}

func (s Scope) String() string {
	switch {
	case s.Number > 0:
		return fmt.Sprintf("%s/%s#%d", s.Org, s.Repo, s.Number)
	case s.Repo != "":
		return s.Org + "/" + s.Repo
	case s.Org != "":
		return s.Org
	}
	return "*"
}

// Item is one domain item (issue or pull request) to analyze.
type Item struct {
	Org    string   `json:"org" yaml:"org"`
	Repo   string   `json:"repo" yaml:"repo"`
	Kind   ItemKind `json:"kind" yaml:"kind"`
	Number int      `json:"number" yaml:"number"`
	Title  string   `json:"title" yaml:"title"`
	Body   string   `json:"body,omitempty" yaml:"body,omitempty"`
	Labels []string `json:"labels,omitempty" yaml:"labels,omitempty"`
	State  string   `json:"state,omitempty" yaml:"state,omitempty"`
	URL    string   `json:"url,omitempty" yaml:"url,omitempty"`
}

// ItemRef is the reconstructable identity of an item.
type ItemRef struct {
	Org    string   `json:"org"`
	Repo   string   `json:"repo"`
	Kind   ItemKind `json:"kind"`
	Number int      `json:"number"`
}

// Ref returns the identity part of the item.
func (it Item) Ref() ItemRef {
	return ItemRef{Org: it.Org, Repo: it.Repo, Kind: it.Kind, Number: it.Number}
}

// JobError is one partial-failure record.
type JobError struct {
	CorrelationID string `json:"correlation_id"`
	Code          string `json:"error_code"`
	Message       string `json:"error_message"`
}

// Aggregate Root: Job
type Job struct {
	ID             JobID         `json:"job_id"`
	ProcessorType  ProcessorType `json:"processor_type"`
	Scope          Scope         `json:"scope"`
	ConfigSnapshot ModelConfig   `json:"config_snapshot"`

	ExternalInputID  string `json:"external_input_id"`
	ExternalBatchID  string `json:"external_batch_id"`
	ExternalOutputID string `json:"external_output_id"`
	ExternalErrorID  string `json:"external_error_id"`

	Status         Status     `json:"status"`
	TotalItems     int        `json:"total_items"`
	ProcessedItems int        `json:"processed_items"`
	FailedItems    int        `json:"failed_items"`
	Errors         []JobError `json:"errors"`

	CreatedAt   time.Time  `json:"created_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	CompletedAt *time.Time `json:"completed_at"`

	LocalInputPath  string `json:"local_input_path"`
	LocalOutputPath string `json:"local_output_path"`
}

// AddError appends; partial failures never replace earlier entries.
func (j *Job) AddError(correlationID, code, msg string) {
	j.Errors = append(j.Errors, JobError{CorrelationID: correlationID, Code: code, Message: msg})
}

// Elapsed returns the provider processing time, zero when unknown.
func (j *Job) Elapsed() time.Duration {
	if j.SubmittedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.SubmittedAt)
}

// Result is a point-in-time summary of a collected job.
type Result struct {
	JobID           JobID         `json:"job_id"`
	TotalItems      int           `json:"total_items"`
	SuccessfulItems int           `json:"successful_items"`
	FailedItems     int           `json:"failed_items"`
	Elapsed         time.Duration `json:"elapsed_ns"`
	ResultsDir      string        `json:"results_dir"`
	Errors          []JobError    `json:"errors"`
}

// RemoveResult reports what a removal actually did.
type RemoveResult struct {
	JobID        JobID    `json:"job_id"`
	Deleted      bool     `json:"deleted"`
	RemovedFiles []string `json:"removed_files,omitempty"`
}

// PollResult is what the provider reports for a batch.
type PollResult struct {
	Status           Status
	Total            int
	Completed        int
	Failed           int
	ExternalOutputID string
	ExternalErrorID  string
	Errors           []JobError
}

// OutcomeError is a provider-level per-item error.
type OutcomeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RawOutcome is one parsed output line.
type RawOutcome struct {
	CorrelationID string
	Model         string
	// message contents of the response choices, in order
	Choices []string
	Error   *OutcomeError
}
