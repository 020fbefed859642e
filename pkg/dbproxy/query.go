package dbproxy

import (
	"strings"
)

// Simple and extended query protocol tags (frontend -> backend).
const (
	tagSimpleQuery   = 'Q'
	tagParse         = 'P'
	tagStartupPort   = 0 // sentinel, startup has no tag byte
)

// Backend -> frontend tags used for status classification.
const (
	tagCommandComplete = 'C'
	tagErrorResponse   = 'E'
	tagReadyForQuery   = 'Z'
	tagRowDescription  = 'T'
	tagDataRow         = 'D'
	tagAuthentication  = 'R'
)

// ExtractQuery pulls the query text out of a frontend message, if it
// carries one. Simple Query messages carry the text directly; Parse
// messages (extended protocol) carry a prepared statement name followed by
// the query text and a parameter-type count.
func ExtractQuery(tag byte, payload []byte) (string, bool) {
	switch tag {
	case tagSimpleQuery:
		text, _ := cString(payload)
		return text, true
	case tagParse:
		_, rest := cString(payload) // statement name, discarded
		text, _ := cString(rest)
		return text, true
	default:
		return "", false
	}
}

// Normalize collapses whitespace and case for dedup/health-check matching.
// It is not a SQL parser: it only folds runs of whitespace, trims ends and
// upper-cases the result.
func Normalize(query string) string {
	fields := strings.Fields(query)
	return strings.ToUpper(strings.Join(fields, " "))
}

// healthCheckQueries is the static set of known health-check probes that
// drivers and connection poolers issue (spec §4.8).
var healthCheckQueries = map[string]struct{}{
	"SELECT NOW()": {},
	"SELECT 1":     {},
	"":             {}, // empty Ping
}

// IsHealthCheck reports whether the normalized query is a recognized
// health-check probe.
func IsHealthCheck(normalized string) bool {
	_, ok := healthCheckQueries[normalized]
	return ok
}

// ServerStatus is the outcome classification derived from a backend
// message stream for one query (spec §4.8: "classify status/duration from
// server→client frames").
type ServerStatus struct {
	Tag          string
	Success      bool
	ErrorMessage string
}

// ClassifyServerMessage inspects one backend message and, if it is
// terminal for the current query (CommandComplete or ErrorResponse),
// returns the resulting status.
func ClassifyServerMessage(tag byte, payload []byte) (ServerStatus, bool) {
	switch tag {
	case tagCommandComplete:
		text, _ := cString(payload)
		return ServerStatus{Tag: text, Success: true}, true
	case tagErrorResponse:
		return ServerStatus{Tag: "error", Success: false, ErrorMessage: parseErrorFields(payload)}, true
	default:
		return ServerStatus{}, false
	}
}

// parseErrorFields decodes the field:value pairs of an ErrorResponse
// message and extracts the human-readable message field ('M').
func parseErrorFields(payload []byte) string {
	for len(payload) > 0 && payload[0] != 0 {
		fieldType := payload[0]
		text, rest := cString(payload[1:])
		if fieldType == 'M' {
			return text
		}
		payload = rest
	}
	return "unknown error"
}
