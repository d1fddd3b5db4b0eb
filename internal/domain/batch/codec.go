package batch

import (
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion of the persisted job record.
const SchemaVersion = 1

type record struct {
	SchemaVersion int `json:"schema_version"`
	*Job
}

// EncodeJob serializes a job as its persisted record. Timestamps are
// written in UTC as RFC 3339 with nanoseconds.
func EncodeJob(j *Job) ([]byte, error) {
	c := *j
	c.CreatedAt = c.CreatedAt.UTC()
	c.SubmittedAt = utcPtr(c.SubmittedAt)
	c.CompletedAt = utcPtr(c.CompletedAt)
	if c.Errors == nil {
		c.Errors = []JobError{}
	}
	b, err := json.MarshalIndent(record{SchemaVersion: SchemaVersion, Job: &c}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", j.ID, err)
	}
	return append(b, '\n'), nil
}

// DecodeJob parses a persisted record.
func DecodeJob(data []byte) (*Job, error) {
	r := record{Job: &Job{}}
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	if r.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSchema, r.SchemaVersion)
	}
	if r.Job.ID == "" {
		return nil, fmt.Errorf("decode job: missing job_id")
	}
	if r.Job.Errors == nil {
		r.Job.Errors = []JobError{}
	}
	return r.Job, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
