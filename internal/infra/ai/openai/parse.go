package openai

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
)

// maxLineBytes bounds one output line.
const maxLineBytes = 16 << 20

type outputLine struct {
	ID       string          `json:"id"`
	CustomID string          `json:"custom_id"`
	Response *outputResponse `json:"response"`
	Error    *apiErrorBody   `json:"error"`
}

type outputResponse struct {
	StatusCode int             `json:"status_code"`
	RequestID  string          `json:"request_id"`
	Body       json.RawMessage `json:"body"`
}

type apiErrorBody struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

type completionBody struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiErrorBody `json:"error"`
}

// Parse reads a batch output or error file. Lines that are not valid JSON
// or carry no custom_id are skipped and logged.
func (c *Client) Parse(path string) ([]domain.RawOutcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var out []domain.RawOutcome
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		o, err := parseLine([]byte(raw))
		if err != nil {
			c.log.Warn("skipping malformed output line",
				zap.String("path", path), zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		out = append(out, o)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

func parseLine(b []byte) (domain.RawOutcome, error) {
	var l outputLine
	if err := json.Unmarshal(b, &l); err != nil {
		return domain.RawOutcome{}, err
	}
	if l.CustomID == "" {
		return domain.RawOutcome{}, fmt.Errorf("missing custom_id")
	}
	o := domain.RawOutcome{CorrelationID: l.CustomID}
	if l.Error != nil {
		o.Error = l.Error.outcome("request_error")
		return o, nil
	}
	if l.Response == nil {
		return o, nil
	}

	var body completionBody
	if len(l.Response.Body) > 0 {
		if err := json.Unmarshal(l.Response.Body, &body); err != nil && l.Response.StatusCode < 400 {
			return domain.RawOutcome{}, fmt.Errorf("response body: %w", err)
		}
	}
	if l.Response.StatusCode >= 400 {
		fallback := fmt.Sprintf("http_%d", l.Response.StatusCode)
		if body.Error != nil {
			o.Error = body.Error.outcome(fallback)
		} else {
			o.Error = &domain.OutcomeError{Code: fallback, Message: fmt.Sprintf("request failed with status %d", l.Response.StatusCode)}
		}
		return o, nil
	}

	o.Model = body.Model
	for _, ch := range body.Choices {
		if ch.Message.Content == "" && ch.Message.Refusal != "" {
			o.Error = &domain.OutcomeError{Code: "refusal", Message: ch.Message.Refusal}
			return o, nil
		}
		o.Choices = append(o.Choices, ch.Message.Content)
	}
	return o, nil
}

func (e *apiErrorBody) outcome(fallback string) *domain.OutcomeError {
	code := fallback
	switch v := e.Code.(type) {
	case string:
		if v != "" {
			code = v
		}
	case float64:
		code = fmt.Sprintf("%d", int(v))
	}
	return &domain.OutcomeError{Code: code, Message: e.Message}
}
