package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
)

// SecurityReport is the security-review response payload.
type SecurityReport struct {
	Counts   SeverityCounts `json:"counts"`
	Findings []Finding      `json:"findings"`
	Advice   string         `json:"advice"`
}

type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

type Finding struct {
	Title          string `json:"title"`
	Severity       string `json:"severity"`
	Summary        string `json:"summary"`
	Recommendation string `json:"recommendation"`
}

var severities = []string{"critical", "high", "medium", "low", "info"}

// SecurityReview asks the model for a security assessment of an issue or PR.
// Local secret detectors run first and their hits are passed as hints.
type SecurityReview struct{}

func (SecurityReview) Type() domain.ProcessorType { return domain.ProcessorSecurityReview }
func (SecurityReview) Version() string            { return "1.1.0" }

func (SecurityReview) SystemPrompt() string {
	return `You are a senior application security analyst. You must produce one valid JSON object only (no markdown, no commentary). Do not include code fences.

Requirements:
- Use lowercase severity values: critical, high, medium, low, info.
- counts.total must equal counts.critical + counts.high + counts.medium + counts.low (info is not counted).
- findings is an array; each has a title, severity, summary and recommendation. Keep items concise.
- Pre-scan hints come from pattern matching and may be false positives; confirm or dismiss them.
- If nothing security relevant is present, return empty findings with zero counts.`
}

func (SecurityReview) UserPrompt(it domain.Item) string {
	var b strings.Builder
	b.WriteString("Review this item for security risks.\n\n")
	b.WriteString(itemHeader(it))
	if hints := Scan(it.Title + "\n" + it.Body); len(hints) > 0 {
		b.WriteString("\nPre-scan hints:\n")
		for _, h := range hints {
			fmt.Fprintf(&b, "- [%s] %s (%s)\n", h.Severity, h.Title, h.Sample)
		}
	}
	b.WriteString("\n")
	b.WriteString(clip(it.Body, maxBodyChars))
	return b.String()
}

func (SecurityReview) Schema() (json.Marshaler, error) {
	return schemaFor(SecurityReport{})
}

func (SecurityReview) Decode(content string) (json.RawMessage, error) {
	var out SecurityReport
	return decodeStrict(content, &out, func() error {
		var c SeverityCounts
		for i, f := range out.Findings {
			sev := strings.ToLower(f.Severity)
			if !contains(severities, sev) {
				return fmt.Errorf("invalid payload: finding %d has unknown severity %q", i, f.Severity)
			}
			out.Findings[i].Severity = sev
			switch sev {
			case "critical":
				c.Critical++
			case "high":
				c.High++
			case "medium":
				c.Medium++
			case "low":
				c.Low++
			}
		}
		c.Total = c.Critical + c.High + c.Medium + c.Low
		// model-reported counts are not trusted
		out.Counts = c
		if out.Findings == nil {
			out.Findings = []Finding{}
		}
		return nil
	})
}
