package server

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"wiretap/pkg/config"
	"wiretap/pkg/eventbus"
	"wiretap/pkg/mockstore"
	"wiretap/pkg/model"
	"wiretap/pkg/persistence"
	"wiretap/pkg/registry"
	"wiretap/pkg/telemetry/health"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func newTestServer(t *testing.T) (*Server, *mockstore.Store) {
	t.Helper()
	store, err := persistence.New(t.TempDir(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("persistence.New() error: %v", err)
	}
	mocks := mockstore.New(0)
	bus := eventbus.New(16, 16)

	cfg := config.ProxiesConfig{
		GlobalAutoStart:           true,
		MaxRequestHistory:         100,
		StalePendingSweepInterval: time.Second,
		StalePendingTimeout:       time.Second,
		PortProbeTimeout:          200 * time.Millisecond,
	}
	reg := registry.New(cfg, mocks, bus, store, nil)

	srv := NewServer(config.ServerConfig{
		WriteTimeout: 5 * time.Second,
	}, config.LicensingConfig{}, reg, mocks, store, bus, health.New(time.Second), nil)

	return srv, mocks
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response body: %v (body: %s)", err, rr.Body.String())
	}
}

func TestHealthAndReadyEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/health status = %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/ready status = %d, want 200", rr.Code)
	}
}

func TestCreateListStartStopDeleteProxy(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer upstream.Close()
	upstreamAddr := upstream.Listener.Addr().(*net.TCPAddr)

	port := freePort(t)
	body, _ := json.Marshal(createProxyRequest{
		Kind:       model.KindNormal,
		Port:       port,
		Name:       "test",
		TargetHost: "127.0.0.1",
		TargetPort: upstreamAddr.Port,
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/proxies", bytes.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201 (body: %s)", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/proxies", nil))
	var list []model.ProxyConfig
	decodeBody(t, rr, &list)
	if len(list) != 1 {
		t.Fatalf("list returned %d proxies, want 1", len(list))
	}

	startPath := "/api/proxies/normal/" + strconv.Itoa(port) + "/start"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, startPath, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("start status = %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}

	stopPath := "/api/proxies/normal/" + strconv.Itoa(port) + "/stop"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, stopPath, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("stop status = %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}

	deletePath := "/api/proxies/normal/" + strconv.Itoa(port)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, deletePath, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
}

func TestAddListToggleRemoveMock(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	body, _ := json.Marshal(model.Mock{ProxyPort: 8080, Method: "GET", URL: "/users", StatusCode: 200, Body: `{"ok":true}`, Enabled: true})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/mocks", bytes.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("add mock status = %d, want 201 (body: %s)", rr.Code, rr.Body.String())
	}
	var added mockstore.AddResult
	decodeBody(t, rr, &added)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/mocks?port=8080", nil))
	var list []model.Mock
	decodeBody(t, rr, &list)
	if len(list) != 1 {
		t.Fatalf("list mocks returned %d, want 1", len(list))
	}

	togglePath := "/api/mocks/" + added.Mock.ID + "/toggle"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, togglePath, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("toggle status = %d, want 200", rr.Code)
	}

	removePath := "/api/mocks/" + added.Mock.ID
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, removePath, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("remove status = %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/mocks?port=8080", nil))
	decodeBody(t, rr, &list)
	if len(list) != 0 {
		t.Fatalf("expected no mocks after remove, got %d", len(list))
	}
}

func TestTestingModeToggle(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	body, _ := json.Marshal(testingModeRequest{Enabled: true})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/settings/testing_mode", bytes.NewReader(body)))
	if rr.Code != http.StatusOK {
		t.Fatalf("testing_mode status = %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
}

func TestLicenseGateOpenByDefault(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/license", nil))
	var resp licenseResponse
	decodeBody(t, rr, &resp)
	if !resp.Licensed {
		t.Error("license gate should default to open when no licensing API is configured")
	}
}

