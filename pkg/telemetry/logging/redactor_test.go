package logging

import "testing"

func TestNewRedactor_DefaultHeaders(t *testing.T) {
	r := NewRedactor(nil)

	for _, h := range []string{"Authorization", "authorization", "COOKIE", "Set-Cookie", "proxy-authorization"} {
		if !r.ShouldRedact(h) {
			t.Errorf("expected %q to be redacted by default", h)
		}
	}

	if r.ShouldRedact("Content-Type") {
		t.Error("Content-Type should not be redacted")
	}
}

func TestNewRedactor_ExtraHeaders(t *testing.T) {
	r := NewRedactor([]string{"X-Api-Key"})

	if !r.ShouldRedact("x-api-key") {
		t.Error("expected configured extra header to be redacted case-insensitively")
	}
	if !r.ShouldRedact("Authorization") {
		t.Error("built-in headers should still be redacted alongside extras")
	}
}

func TestRedactor_RedactHeaders(t *testing.T) {
	r := NewRedactor(nil)

	in := map[string]string{
		"Authorization": "Bearer abc123",
		"Content-Type":  "application/json",
		"Cookie":        "session=xyz",
	}

	out := r.RedactHeaders(in)

	if out["Authorization"] != "***" {
		t.Errorf("Authorization not redacted: %q", out["Authorization"])
	}
	if out["Cookie"] != "***" {
		t.Errorf("Cookie not redacted: %q", out["Cookie"])
	}
	if out["Content-Type"] != "application/json" {
		t.Errorf("Content-Type should pass through unchanged, got %q", out["Content-Type"])
	}

	if in["Authorization"] != "Bearer abc123" {
		t.Error("RedactHeaders must not mutate its input map")
	}
}

func TestRedactor_RedactHeaders_Empty(t *testing.T) {
	r := NewRedactor(nil)
	if out := r.RedactHeaders(nil); out != nil {
		t.Errorf("expected nil passthrough for empty input, got %v", out)
	}
}

func TestRedactor_RedactArgs(t *testing.T) {
	r := NewRedactor(nil)

	tests := []struct {
		name string
		args []any
		want []any
	}{
		{
			name: "redacts configured key",
			args: []any{"Authorization", "Bearer abc123"},
			want: []any{"Authorization", "***"},
		},
		{
			name: "preserves unrelated key",
			args: []any{"proxy_port", 8080},
			want: []any{"proxy_port", 8080},
		},
		{
			name: "mixed pairs",
			args: []any{"Cookie", "session=xyz", "request_id", "abc"},
			want: []any{"Cookie", "***", "request_id", "abc"},
		},
		{
			name: "odd length passthrough",
			args: []any{"lonekey"},
			want: []any{"lonekey"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.RedactArgs(tt.args...)
			if len(got) != len(tt.want) {
				t.Fatalf("length mismatch: got %v want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("index %d: got %v want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRedactor_RedactArgs_DoesNotMutateInput(t *testing.T) {
	r := NewRedactor(nil)
	args := []any{"Authorization", "Bearer abc123"}
	_ = r.RedactArgs(args...)
	if args[1] != "Bearer abc123" {
		t.Error("RedactArgs must not mutate the caller's slice")
	}
}
