package openai

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sashabaranov/go-openai"

	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
)

// InputBuilder writes one chat completion request per item to
// {Dir}/{job_id}.jsonl. It does no network I/O.
type InputBuilder struct {
	Dir        string
	Processors domain.ProcessorRegistry
}

func (b *InputBuilder) Build(id domain.JobID, items []domain.Item, pt domain.ProcessorType, cfg domain.ModelConfig) (string, error) {
	proc, err := b.Processors.Lookup(pt)
	if err != nil {
		return "", err
	}
	schema, err := proc.Schema()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create inputs dir: %w", err)
	}
	path := filepath.Join(b.Dir, string(id)+".jsonl")

	tmp, err := os.CreateTemp(b.Dir, ".input-*")
	if err != nil {
		return "", fmt.Errorf("create input file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { tmp.Close(); os.Remove(tmpName) }

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if err := checkItem(it); err != nil {
			cleanup()
			return "", err
		}
		cid := domain.CorrelationID(it.Ref())
		if seen[cid] {
			cleanup()
			return "", &domain.ValidationError{Field: "items", Msg: fmt.Sprintf("duplicate item %s", cid)}
		}
		seen[cid] = true
		line := openai.BatchChatCompletionRequest{
			CustomID: cid,
			Method:   "POST",
			URL:      openai.BatchEndpointChatCompletions,
			Body:     chatRequest(proc, it, cfg, schema),
		}
		if err := enc.Encode(line); err != nil {
			cleanup()
			return "", fmt.Errorf("encode request %s: %w", cid, err)
		}
	}
	if err := w.Flush(); err != nil {
		cleanup()
		return "", fmt.Errorf("write input file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close input file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("replace input file: %w", err)
	}
	return path, nil
}

func chatRequest(proc domain.Processor, it domain.Item, cfg domain.ModelConfig, schema json.Marshaler) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model: cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: proc.SystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: proc.UserPrompt(it)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName(proc.Type()),
				Schema: schema,
				Strict: true,
			},
		},
	}
	// reasoning models (o1/o3/o4/gpt-5*) take max_completion_tokens
	if cfg.Reasoning {
		req.MaxCompletionTokens = cfg.MaxTokens
		req.ReasoningEffort = cfg.ReasoningEffort
	} else {
		req.MaxTokens = cfg.MaxTokens
		req.Temperature = cfg.Temperature
	}
	return req
}

// checkItem rejects items whose correlation id would not parse back.
func checkItem(it domain.Item) error {
	switch {
	case !domain.ValidOrg(it.Org):
		return &domain.ValidationError{Field: "items", Msg: fmt.Sprintf("invalid org %q", it.Org)}
	case !domain.ValidRepo(it.Repo):
		return &domain.ValidationError{Field: "items", Msg: fmt.Sprintf("invalid repo %q", it.Repo)}
	case !it.Kind.Valid():
		return &domain.ValidationError{Field: "items", Msg: fmt.Sprintf("invalid item kind %q", it.Kind)}
	case it.Number <= 0:
		return &domain.ValidationError{Field: "items", Msg: fmt.Sprintf("invalid item number %d", it.Number)}
	}
	return nil
}

func schemaName(pt domain.ProcessorType) string {
	b := []byte(pt)
	for i, c := range b {
		ok := c == '_' || c == '-' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !ok {
			b[i] = '_'
		}
	}
	return string(b)
}
