// Package pattern normalizes URL paths into templates and decides whether a
// request should be served live or blocked from creating a duplicate mock.
package pattern

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var uuidV4Segment = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// Of returns the pattern for a URL: path segments with query/fragment
// dropped, numeric segments replaced with "{id}", and UUID-v4 segments
// replaced with "{uuid}". It is idempotent: Of(Of(u)) == Of(u).
func Of(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	} else if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		path = rawURL[:i]
	}

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		switch {
		case seg == "{id}" || seg == "{uuid}":
			// already templated; keep as-is for idempotence
		case isNumeric(seg):
			segments[i] = "{id}"
		case uuidV4Segment.MatchString(seg):
			segments[i] = "{uuid}"
		}
	}
	return strings.Join(segments, "/")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// ExistingMock is the minimal shape pattern matching needs from a Mock;
// callers copy these fields out of their Mock values.
type ExistingMock struct {
	Method  string
	URL     string
	Port    int
	Enabled bool
}

// Decision is the result of ShouldMock.
type Decision struct {
	ShouldMock bool
	Reason     string
	Existing   *ExistingMock
}

// ShouldMock implements §4.3's exact-then-pattern blocking decision for the
// admin "add mock" operation. With pattern matching disabled every request
// is allowed. Otherwise a new mock request is denied if an identical
// (method, url) mock already exists, or if an existing mock shares
// (method, pattern_of(url)) or matches it through a "*" wildcard segment.
func ShouldMock(method, reqURL string, port int, existing []ExistingMock, patternMatchingEnabled bool) Decision {
	if !patternMatchingEnabled {
		return Decision{ShouldMock: true, Reason: "pattern matching disabled"}
	}

	for i := range existing {
		m := existing[i]
		if m.Port != port || m.Method != method {
			continue
		}
		if m.URL == reqURL {
			return Decision{ShouldMock: false, Reason: "Mock already exists for " + method + " " + reqURL, Existing: &existing[i]}
		}
	}

	targetPattern := Of(reqURL)
	for i := range existing {
		m := existing[i]
		if m.Port != port || m.Method != method {
			continue
		}
		if matchesPatternOrWildcard(m.URL, reqURL, targetPattern) {
			return Decision{ShouldMock: false, Reason: "Mock already exists for pattern " + Of(m.URL), Existing: &existing[i]}
		}
	}

	return Decision{ShouldMock: true, Reason: "no matching mock"}
}

// matchesPatternOrWildcard reports whether an existing mock's stored URL
// (which may itself be a "{id}"/"{uuid}" template, or a "*" single-segment
// wildcard template) matches the incoming request.
func matchesPatternOrWildcard(storedURL, reqURL, reqPattern string) bool {
	if Of(storedURL) == reqPattern {
		return true
	}
	return matchesWildcardSegments(storedURL, reqURL)
}

// matchesWildcardSegments compares path segments one at a time, treating a
// literal "*" segment in storedURL as matching any single segment of reqURL.
func matchesWildcardSegments(storedURL, reqURL string) bool {
	storedPath := pathOnly(storedURL)
	reqPath := pathOnly(reqURL)

	storedSegs := strings.Split(storedPath, "/")
	reqSegs := strings.Split(reqPath, "/")
	if len(storedSegs) != len(reqSegs) {
		return false
	}
	for i := range storedSegs {
		if storedSegs[i] == "*" {
			continue
		}
		if storedSegs[i] != reqSegs[i] {
			return false
		}
	}
	return true
}

func pathOnly(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Path
	}
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
