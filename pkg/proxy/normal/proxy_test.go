package normal

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"wiretap/pkg/eventbus"
	"wiretap/pkg/mockstore"
	"wiretap/pkg/model"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestProxy_ForwardsLiveRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "hello")
	}))
	defer upstream.Close()

	host, portStr, _ := net.SplitHostPort(upstream.Listener.Addr().String())
	targetPort, _ := strconv.Atoi(portStr)

	port := freePort(t)
	mocks := mockstore.New(0)
	bus := eventbus.New(16, 16)
	stats := &model.Stats{}
	var mu sync.Mutex

	cfg := Config{Port: port, TargetHost: host, TargetPort: targetPort, PatternMatchingEnabled: true}
	p := New(cfg, mocks, bus, stats, &mu)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		p.Stop(ctx)
	}()
	time.Sleep(20 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/anything")
	if err != nil {
		t.Fatalf("GET via proxy: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello" {
		t.Errorf("body = %q, want hello", body)
	}
	if stats.Total != 1 || stats.Success != 1 {
		t.Errorf("stats = %+v, want Total=1 Success=1", stats)
	}
}

func TestProxy_ServesEnabledMock(t *testing.T) {
	port := freePort(t)
	mocks := mockstore.New(0)
	bus := eventbus.New(16, 16)
	stats := &model.Stats{}
	var mu sync.Mutex

	added := mocks.Add(model.Mock{
		ProxyPort:  port,
		Method:     http.MethodGet,
		URL:        "/mocked",
		StatusCode: 201,
		Body:       `{"ok":true}`,
		Enabled:    true,
	})
	if !added.Created {
		t.Fatal("expected mock to be created")
	}

	cfg := Config{Port: port, TargetHost: "127.0.0.1", TargetPort: 1, PatternMatchingEnabled: true}
	p := New(cfg, mocks, bus, stats, &mu)
	p.SetTestingMode(true)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		p.Stop(ctx)
	}()
	time.Sleep(20 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/mocked")
	if err != nil {
		t.Fatalf("GET via proxy: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 201 {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	if resp.Header.Get(MockHeader) != "true" {
		t.Errorf("expected %s header to be set", MockHeader)
	}
	if stats.MocksServed != 1 {
		t.Errorf("MocksServed = %d, want 1", stats.MocksServed)
	}
}

func TestProxy_IgnoresMockWhenTestingModeOff(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "live")
	}))
	defer upstream.Close()

	host, portStr, _ := net.SplitHostPort(upstream.Listener.Addr().String())
	targetPort, _ := strconv.Atoi(portStr)

	port := freePort(t)
	mocks := mockstore.New(0)
	bus := eventbus.New(16, 16)
	stats := &model.Stats{}
	var mu sync.Mutex

	mocks.Add(model.Mock{ProxyPort: port, Method: http.MethodGet, URL: "/mocked", StatusCode: 201, Body: `{"ok":true}`, Enabled: true})

	cfg := Config{Port: port, TargetHost: host, TargetPort: targetPort, PatternMatchingEnabled: true}
	p := New(cfg, mocks, bus, stats, &mu)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		p.Stop(ctx)
	}()
	time.Sleep(20 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/mocked")
	if err != nil {
		t.Fatalf("GET via proxy: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "live" {
		t.Errorf("body = %q, want live (testing mode off should bypass mock)", body)
	}
	if resp.Header.Get(MockHeader) == "true" {
		t.Error("did not expect mock header when testing mode is off")
	}
}

func TestProxy_UpstreamUnreachable(t *testing.T) {
	port := freePort(t)
	mocks := mockstore.New(0)
	bus := eventbus.New(16, 16)
	stats := &model.Stats{}
	var mu sync.Mutex

	unreachablePort := freePort(t)
	cfg := Config{Port: port, TargetHost: "127.0.0.1", TargetPort: unreachablePort, PatternMatchingEnabled: true}
	p := New(cfg, mocks, bus, stats, &mu)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		p.Stop(ctx)
	}()
	time.Sleep(20 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/unreachable")
	if err != nil {
		t.Fatalf("GET via proxy: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
}
