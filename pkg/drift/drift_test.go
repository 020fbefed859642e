package drift

import (
	"testing"

	"wiretap/pkg/model"
)

func TestCompare_NoDifferences(t *testing.T) {
	mock := model.Mock{StatusCode: 200, Body: `{"u":1}`}
	live := model.Response{StatusCode: 200, Body: `{"u":1}`}

	report := Compare(mock, live, nil)
	if report.HasDifferences {
		t.Errorf("expected no differences, got %+v", report.Differences)
	}
}

func TestCompare_ValueDifference(t *testing.T) {
	mock := model.Mock{StatusCode: 200, Body: `{"u":1}`}
	live := model.Response{StatusCode: 200, Body: `{"u":2}`}

	report := Compare(mock, live, nil)
	if !report.HasDifferences {
		t.Fatal("expected differences")
	}
	if len(report.Differences) != 1 {
		t.Fatalf("expected 1 difference, got %d: %+v", len(report.Differences), report.Differences)
	}
	d := report.Differences[0]
	if d.Path != "$.u" || d.Kind != model.DifferenceValue {
		t.Errorf("unexpected difference: %+v", d)
	}
}

func TestCompare_StatusDifference(t *testing.T) {
	mock := model.Mock{StatusCode: 200, Body: "hi"}
	live := model.Response{StatusCode: 500, Body: "hi"}

	report := Compare(mock, live, nil)
	if !report.HasDifferences {
		t.Fatal("expected differences")
	}
	found := false
	for _, d := range report.Differences {
		if d.Kind == model.DifferenceStatus {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a status difference, got %+v", report.Differences)
	}
}

func TestCompare_IgnoredHeaders(t *testing.T) {
	mock := model.Mock{StatusCode: 200, Headers: map[string]string{"Date": "a"}}
	live := model.Response{StatusCode: 200, Headers: map[string]string{"Date": "b"}}

	report := Compare(mock, live, nil)
	if report.HasDifferences {
		t.Errorf("expected Date header to be ignored by default, got %+v", report.Differences)
	}
}

func TestCompare_ArrayByIndex(t *testing.T) {
	mock := model.Mock{StatusCode: 200, Body: `{"items":[1,2,3]}`}
	live := model.Response{StatusCode: 200, Body: `{"items":[1,9,3]}`}

	report := Compare(mock, live, nil)
	if !report.HasDifferences {
		t.Fatal("expected differences")
	}
	if report.Differences[0].Path != "$.items[1]" {
		t.Errorf("path = %q, want $.items[1]", report.Differences[0].Path)
	}
}
