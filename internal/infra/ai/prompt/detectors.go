package prompt

import (
	"regexp"
	"strings"
)

// Hint is a local pattern match passed to the model as context.
type Hint struct {
	Title    string
	Severity string
	Sample   string
}

type detector struct {
	re    *regexp.Regexp
	title string
}

var detectors = []detector{
	// Private keys
	{regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`), "Private key material"},
	// AWS
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "AWS access key"},
	{regexp.MustCompile(`(?i)aws_secret_access_key\s*[:=]\s*["']?[A-Za-z0-9/+=]{20,}`), "AWS secret access key"},
	// GitHub
	{regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{20,}`), "GitHub token"},
	{regexp.MustCompile(`github_pat_[A-Za-z0-9_]{20,}`), "GitHub PAT"},
	// Google
	{regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`), "Google API key"},
	// Slack
	{regexp.MustCompile(`xox[baprs]-[A-Za-z0-9\-]{10,}`), "Slack token"},
	// Stripe
	{regexp.MustCompile(`sk_(?:live|test)_[0-9A-Za-z]{10,}`), "Stripe secret key"},
	// OpenAI
	{regexp.MustCompile(`(?i)\bsk-[a-z0-9\-_]{20,}`), "OpenAI API key"},
	// JWT / bearer
	{regexp.MustCompile(`[A-Za-z0-9-_]{8,}\.eyJ[A-Za-z0-9-_]{5,}\.[A-Za-z0-9-_]{10,}`), "JWT token"},
	{regexp.MustCompile(`(?i)authorization\s*[:=]\s*["']?bearer\s+[A-Za-z0-9\-\._~\+\/]+=*`), "Bearer token"},
	// URL with basic auth
	{regexp.MustCompile(`://[^\s/:@]+:[^\s/@]+@`), "Credentials embedded in URL"},
}

// Scan runs the secret detectors over text. Each detector reports at most once.
func Scan(text string) []Hint {
	var hints []Hint
	for _, d := range detectors {
		if m := d.re.FindString(text); m != "" {
			hints = append(hints, Hint{Title: d.title, Severity: "critical", Sample: redact(m)})
		}
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "http://") && strings.Contains(lower, "api") {
		hints = append(hints, Hint{Title: "Insecure HTTP reference", Severity: "medium", Sample: "http://"})
	}
	return hints
}

// redact keeps the first few characters of a match.
func redact(s string) string {
	const keep = 6
	if len(s) <= keep {
		return strings.Repeat("*", len(s))
	}
	return s[:keep] + strings.Repeat("*", min(len(s)-keep, 12))
}
