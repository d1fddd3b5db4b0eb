package middleware

import (
	"fmt"
	"regexp"
	"strings"

	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
)

// Input validation and sanitization utilities

var jobRefPattern = regexp.MustCompile(`^[a-fA-F0-9-]{1,36}$`)

// ValidateProcessor checks pt against the registered processor types.
func ValidateProcessor(pt domain.ProcessorType, allowed []domain.ProcessorType) error {
	for _, a := range allowed {
		if a == pt {
			return nil
		}
	}
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	return &domain.ValidationError{Field: "processor", Msg: fmt.Sprintf("invalid processor %q (allowed: %s)", pt, strings.Join(names, ", "))}
}

// ValidateScope checks name formats and argument combinations.
func ValidateScope(s domain.Scope) error {
	if s.Org != "" && !domain.ValidOrg(s.Org) {
		return &domain.ValidationError{Field: "org", Msg: "invalid organization name"}
	}
	if s.Repo != "" && !domain.ValidRepo(s.Repo) {
		return &domain.ValidationError{Field: "repo", Msg: "invalid repository name"}
	}
	return s.Validate()
}

// ValidateJobRef checks a full or partial job id.
func ValidateJobRef(ref string) error {
	if ref == "" {
		return &domain.ValidationError{Field: "job_id", Msg: "must not be empty"}
	}
	if !jobRefPattern.MatchString(ref) {
		return &domain.ValidationError{Field: "job_id", Msg: "invalid job id format"}
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
