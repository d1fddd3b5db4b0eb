package batch

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
)

// canonical uuid text form, e.g. 123e4567-e89b-12d3-a456-426614174000
const fullIDLength = 36

// Resolver maps a full or partial job id to exactly one stored job.
// It has no side effects.
type Resolver struct {
	Repo domain.Repository
}

// IsFullID reports whether s is a syntactically complete job id.
func IsFullID(s string) bool {
	if len(s) != fullIDLength {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// Resolve returns the id of the single job whose id starts with input.
func (r *Resolver) Resolve(ctx context.Context, input string) (domain.JobID, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return "", &domain.ValidationError{Field: "job_id", Msg: "must not be empty"}
	}

	// exact id: skip the scan
	if IsFullID(input) {
		ok, err := r.Repo.Exists(ctx, domain.JobID(input))
		if err != nil {
			return "", err
		}
		if ok {
			return domain.JobID(input), nil
		}
	}

	ids, err := r.Repo.ListIDs(ctx)
	if err != nil {
		return "", err
	}
	var matches []domain.JobID
	for _, id := range ids {
		if strings.HasPrefix(string(id), input) {
			matches = append(matches, id)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })

	switch len(matches) {
	case 0:
		return "", &domain.NotFoundError{Input: input}
	case 1:
		return matches[0], nil
	default:
		return "", &domain.AmbiguousIdentifierError{Input: input, Matches: matches}
	}
}
