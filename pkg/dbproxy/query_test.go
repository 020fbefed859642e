package dbproxy

import "testing"

func TestExtractQuery_SimpleQuery(t *testing.T) {
	payload := append([]byte("SELECT 1"), 0)
	query, ok := ExtractQuery(tagSimpleQuery, payload)
	if !ok || query != "SELECT 1" {
		t.Errorf("ExtractQuery() = %q, %v, want %q, true", query, ok, "SELECT 1")
	}
}

func TestExtractQuery_Parse(t *testing.T) {
	var payload []byte
	payload = append(payload, "stmt1"...)
	payload = append(payload, 0)
	payload = append(payload, "SELECT * FROM users"...)
	payload = append(payload, 0)
	payload = append(payload, 0, 0) // zero parameter types

	query, ok := ExtractQuery(tagParse, payload)
	if !ok || query != "SELECT * FROM users" {
		t.Errorf("ExtractQuery() = %q, %v", query, ok)
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"select   1":           "SELECT 1",
		"  SELECT 1  ":         "SELECT 1",
		"select\n* from users": "SELECT * FROM USERS",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsHealthCheck(t *testing.T) {
	if !IsHealthCheck("SELECT NOW()") {
		t.Error("expected SELECT NOW() to be a health check")
	}
	if !IsHealthCheck("") {
		t.Error("expected empty query to be a health check")
	}
	if IsHealthCheck("SELECT * FROM USERS") {
		t.Error("did not expect a real query to be classified as a health check")
	}
}

func TestClassifyServerMessage_CommandComplete(t *testing.T) {
	payload := append([]byte("SELECT 3"), 0)
	status, ok := ClassifyServerMessage(tagCommandComplete, payload)
	if !ok || !status.Success || status.Tag != "SELECT 3" {
		t.Errorf("unexpected status: %+v, ok=%v", status, ok)
	}
}

func TestClassifyServerMessage_Error(t *testing.T) {
	var payload []byte
	payload = append(payload, 'S')
	payload = append(payload, "ERROR"...)
	payload = append(payload, 0)
	payload = append(payload, 'M')
	payload = append(payload, "syntax error"...)
	payload = append(payload, 0)
	payload = append(payload, 0)

	status, ok := ClassifyServerMessage(tagErrorResponse, payload)
	if !ok || status.Success || status.ErrorMessage != "syntax error" {
		t.Errorf("unexpected status: %+v, ok=%v", status, ok)
	}
}
