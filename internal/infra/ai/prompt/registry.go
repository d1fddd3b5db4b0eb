package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai/jsonschema"

	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
)

// Registry resolves processor types to their definitions.
type Registry struct {
	procs map[domain.ProcessorType]domain.Processor
}

// NewRegistry returns a registry with the built-in processors.
func NewRegistry() *Registry {
	r := &Registry{procs: map[domain.ProcessorType]domain.Processor{}}
	r.Register(ProductLabeling{})
	r.Register(SecurityReview{})
	return r
}

func (r *Registry) Register(p domain.Processor) {
	r.procs[p.Type()] = p
}

func (r *Registry) Lookup(pt domain.ProcessorType) (domain.Processor, error) {
	p, ok := r.procs[pt]
	if !ok {
		return nil, &domain.UnsupportedProcessorError{Type: pt}
	}
	return p, nil
}

// Types lists registered processor types, sorted.
func (r *Registry) Types() []domain.ProcessorType {
	out := make([]domain.ProcessorType, 0, len(r.procs))
	for t := range r.procs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// schemaFor generates a strict structured-output schema from a payload type.
func schemaFor(v any) (json.Marshaler, error) {
	def, err := jsonschema.GenerateSchemaForType(v)
	if err != nil {
		return nil, fmt.Errorf("generate schema: %w", err)
	}
	return def, nil
}

// decodeStrict parses content into v, rejecting unknown fields and trailing
// data, runs check and returns v re-marshalled.
func decodeStrict(content string, v any, check func() error) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	dec := json.NewDecoder(strings.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid payload: trailing data after JSON object")
	}
	if err := check(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func itemHeader(it domain.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s/%s\n", it.Org, it.Repo)
	fmt.Fprintf(&b, "%s #%d: %s\n", kindLabel(it.Kind), it.Number, it.Title)
	if it.State != "" {
		fmt.Fprintf(&b, "State: %s\n", it.State)
	}
	if len(it.Labels) > 0 {
		fmt.Fprintf(&b, "Current labels: %s\n", strings.Join(it.Labels, ", "))
	}
	if it.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", it.URL)
	}
	return b.String()
}

func kindLabel(k domain.ItemKind) string {
	if k == domain.KindPull {
		return "Pull request"
	}
	return "Issue"
}

// maxBodyChars caps the item body embedded in a prompt.
const maxBodyChars = 12000

// clip cuts s to at most n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n[truncated]"
}
