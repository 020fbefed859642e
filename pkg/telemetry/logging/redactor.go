package logging

import (
	"strings"
)

// defaultRedactedHeaders are always masked regardless of configuration,
// matching SPEC_FULL.md's ambient logging section.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Set-Cookie",
	"Proxy-Authorization",
}

// Redactor masks sensitive HTTP header values in header maps and in
// slog-style key/value argument lists. Logger applies it to log arguments
// when Config.RedactHeaders is set; no other package uses it, so recorded
// RequestRecords and published events carry headers as captured. It never
// inspects bodies.
type Redactor struct {
	names map[string]struct{}
}

// NewRedactor builds a Redactor from the built-in header set plus
// extraHeaderNames.
func NewRedactor(extraHeaderNames []string) *Redactor {
	r := &Redactor{names: make(map[string]struct{})}
	for _, n := range defaultRedactedHeaders {
		r.names[strings.ToLower(n)] = struct{}{}
	}
	for _, n := range extraHeaderNames {
		r.names[strings.ToLower(n)] = struct{}{}
	}
	return r
}

// ShouldRedact reports whether header is in the redaction set.
func (r *Redactor) ShouldRedact(header string) bool {
	_, ok := r.names[strings.ToLower(header)]
	return ok
}

// RedactHeaders returns a copy of headers with every redacted name's value
// replaced by a fixed placeholder. The input map is never mutated.
func (r *Redactor) RedactHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return headers
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if r.ShouldRedact(k) {
			out[k] = "***"
			continue
		}
		out[k] = v
	}
	return out
}

// RedactArgs masks the value following any key whose name is in the
// redaction set, for slog-style key/value argument lists.
func (r *Redactor) RedactArgs(args ...any) []any {
	if len(args) < 2 {
		return args
	}
	redacted := make([]any, len(args))
	copy(redacted, args)
	for i := 1; i < len(redacted); i += 2 {
		if key, ok := redacted[i-1].(string); ok && r.ShouldRedact(key) {
			redacted[i] = "***"
		}
	}
	return redacted
}
