package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
)

// LabelSuggestion is the product-labeling response payload.
type LabelSuggestion struct {
	Summary  string           `json:"summary"`
	Category string           `json:"category"`
	Labels   []SuggestedLabel `json:"labels"`
}

type SuggestedLabel struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

var categories = []string{"bug", "feature", "docs", "question", "chore"}

// ProductLabeling suggests product labels and a category for an issue or PR.
type ProductLabeling struct{}

func (ProductLabeling) Type() domain.ProcessorType { return domain.ProcessorProductLabeling }
func (ProductLabeling) Version() string            { return "1.0.0" }

func (ProductLabeling) SystemPrompt() string {
	return `You are a product triage assistant for a software project. For the issue or pull request given, produce one valid JSON object only (no markdown, no commentary).

Requirements:
- summary: one or two sentences describing the item.
- category: one of ` + strings.Join(categories, ", ") + `.
- labels: up to 5 suggested product labels, lowercase, kebab-case. Reuse current labels when they still apply.
- confidence is a number between 0 and 1.
- reason is a short justification for each label.`
}

func (ProductLabeling) UserPrompt(it domain.Item) string {
	return fmt.Sprintf("Suggest labels for this item.\n\n%s\n%s", itemHeader(it), clip(it.Body, maxBodyChars))
}

func (ProductLabeling) Schema() (json.Marshaler, error) {
	return schemaFor(LabelSuggestion{})
}

func (ProductLabeling) Decode(content string) (json.RawMessage, error) {
	var out LabelSuggestion
	return decodeStrict(content, &out, func() error {
		if !contains(categories, out.Category) {
			return fmt.Errorf("invalid payload: unknown category %q", out.Category)
		}
		for i, l := range out.Labels {
			if strings.TrimSpace(l.Name) == "" {
				return fmt.Errorf("invalid payload: label %d has no name", i)
			}
			if l.Confidence < 0 || l.Confidence > 1 {
				return fmt.Errorf("invalid payload: label %q confidence %v out of range", l.Name, l.Confidence)
			}
		}
		if out.Labels == nil {
			out.Labels = []SuggestedLabel{}
		}
		return nil
	})
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
