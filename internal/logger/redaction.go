package logger

import (
	"io"
	"regexp"
)

// Credential shapes that must never reach a log line. Identities in
// this system are phone numbers, so those are masked rather than
// removed outright: the country code and last digits stay visible for
// correlating a conversation without exposing the full number.
var secretPatterns = []string{
	// Anthropic / OpenAI API keys
	`sk-ant-[a-zA-Z0-9_-]{20,}`,
	`sk-[a-zA-Z0-9_-]{20,}`,

	// Meta Graph API access tokens
	`EAA[a-zA-Z0-9]{20,}`,

	// Bearer tokens
	`Bearer\s+[a-zA-Z0-9._-]+`,

	// Inline password/secret/token assignments
	`password["\s:=]+[^\s"]+`,
	`secret["\s:=]+[^\s"]+`,
	`token["\s:=]+[a-zA-Z0-9._-]{20,}`,
}

// phonePattern matches canonical identities: a plus sign followed by
// the full international number. Bare digit runs are deliberately not
// matched, so epoch timestamps survive untouched.
var phonePattern = regexp.MustCompile(`\+[0-9]{7,15}`)

// Redactor scrubs credentials and masks phone identities in log
// output.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with the default credential and
// phone-number rules.
func NewRedactor() *Redactor {
	patterns := make([]*regexp.Regexp, 0, len(secretPatterns))
	for _, p := range secretPatterns {
		patterns = append(patterns, regexp.MustCompile(p))
	}
	return &Redactor{patterns: patterns}
}

// AddPattern adds a custom redaction pattern.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact replaces credentials with [REDACTED] and masks phone
// identities.
func (r *Redactor) Redact(s string) string {
	result := s
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return phonePattern.ReplaceAllStringFunc(result, maskPhone)
}

// maskPhone keeps the leading "+", the country code, and the last
// three digits: "+5491122334455" becomes "+54...455".
func maskPhone(number string) string {
	digits := number[1:]
	return "+" + digits[:2] + "..." + digits[len(digits)-3:]
}

// Wrap wraps an io.Writer so everything written through it is
// redacted.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

func (w *redactingWriter) Write(p []byte) (n int, err error) {
	redacted := w.redactor.Redact(string(p))
	return w.writer.Write([]byte(redacted))
}
