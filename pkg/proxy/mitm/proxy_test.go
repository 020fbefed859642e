package mitm

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"wiretap/pkg/eventbus"
	"wiretap/pkg/mockstore"
	"wiretap/pkg/model"
)

func newTestProxy(t *testing.T) *Proxy {
	t.Helper()
	mocks := mockstore.New(0)
	bus := eventbus.New(16, 16)
	stats := &model.Stats{}
	var mu sync.Mutex

	cfg := Config{Port: 0, PatternMatchingEnabled: true, DedupWindow: 50 * time.Millisecond}
	p := New(cfg, nil, mocks, bus, stats, &mu)
	return p
}

func TestBuildResponse_InitGate(t *testing.T) {
	p := newTestProxy(t)
	req := httptest.NewRequest(http.MethodGet, "https://example.com/a", nil)

	resp := p.buildResponse(req)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 while not ready", resp.StatusCode)
	}
}

func TestBuildResponse_DedupDropsSecondFiring(t *testing.T) {
	p := newTestProxy(t)
	p.SetReady(true)

	req1 := httptest.NewRequest(http.MethodGet, "https://example.com/a", nil)
	req2 := httptest.NewRequest(http.MethodGet, "https://example.com/a", nil)

	p.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return textResponse(200, "ok"), nil
	})}

	_ = p.buildResponse(req1)
	resp := p.buildResponse(req2)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected dedup drop response, got %d", resp.StatusCode)
	}
}

func TestBuildResponse_ServesMockWhenTestingModeAndMockingEnabled(t *testing.T) {
	p := newTestProxy(t)
	p.SetReady(true)
	p.SetTestingMode(true)
	p.SetMockingEnabled(true)

	p.mocks.Add(model.Mock{
		ProxyPort:  p.cfg.Port,
		Method:     http.MethodGet,
		URL:        "https://example.com/mocked",
		StatusCode: 201,
		Body:       "canned",
		Enabled:    true,
	})

	req := httptest.NewRequest(http.MethodGet, "https://example.com/mocked", nil)
	resp := p.buildResponse(req)
	if resp.StatusCode != 201 {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	if resp.Header.Get(MockHeader) != "true" {
		t.Error("expected mock header to be set")
	}
}

func TestBuildResponse_ForwardsLiveWhenMockingDisabled(t *testing.T) {
	p := newTestProxy(t)
	p.SetReady(true)
	p.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return textResponse(200, "live"), nil
	})}

	req := httptest.NewRequest(http.MethodGet, "https://example.com/live", nil)
	resp := p.buildResponse(req)
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "live" {
		t.Errorf("body = %q, want live", body)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
