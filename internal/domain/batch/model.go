package batch

import "strings"

const (
	DefaultModel            = "gpt-4.1-mini"
	DefaultMaxTokens        = 2048
	DefaultCompletionWindow = "24h"
)

// ModelConfig is the fully-resolved model/processing configuration a job
// was created with. Build it with NewModelConfig; the derived fields are
// stored in the job snapshot so reruns do not depend on current defaults.
type ModelConfig struct {
	Model            string  `json:"model" yaml:"model"`
	Temperature      float32 `json:"temperature" yaml:"temperature"`
	ReasoningEffort  string  `json:"reasoning_effort,omitempty" yaml:"reasoning_effort,omitempty"`
	MaxTokens        int     `json:"max_tokens" yaml:"max_tokens"`
	CompletionWindow string  `json:"completion_window" yaml:"completion_window"`

	// derived
	Reasoning bool `json:"reasoning" yaml:"-"`
}

// IsReasoningModel reports whether model belongs to a reasoning family
// (o1/o3/o4/gpt-5*), which take max_completion_tokens and reasoning_effort.
func IsReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// NewModelConfig applies defaults and derives the reasoning settings once.
// Reasoning models drop temperature; other models drop reasoning effort.
func NewModelConfig(model string, temperature float32, reasoningEffort string, maxTokens int, window string) ModelConfig {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if window == "" {
		window = DefaultCompletionWindow
	}
	c := ModelConfig{
		Model:            model,
		MaxTokens:        maxTokens,
		CompletionWindow: window,
		Reasoning:        IsReasoningModel(model),
	}
	if c.Reasoning {
		c.ReasoningEffort = strings.ToLower(reasoningEffort)
		if c.ReasoningEffort == "" {
			c.ReasoningEffort = "medium"
		}
	} else {
		c.Temperature = temperature
	}
	return c
}
