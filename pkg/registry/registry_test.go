package registry

import (
	"context"
	"net"
	"testing"
	"time"

	"wiretap/pkg/config"
	"wiretap/pkg/eventbus"
	"wiretap/pkg/mockstore"
	"wiretap/pkg/model"
	"wiretap/pkg/persistence"
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

func newTestRegistry(t *testing.T) *Registry {
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
	return New(cfg, mocks, bus, store, nil)
}

func TestRegistry_CreateStartsAutoStartProxy(t *testing.T) {
	r := newTestRegistry(t)
	port := freePort(t)

	cfg := model.ProxyConfig{
		Kind:       model.KindNormal,
		Port:       port,
		Name:       "test",
		TargetHost: "127.0.0.1",
		TargetPort: freePort(t),
		AutoStart:  true,
	}

	created, err := r.Create(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	_, runtime, ok := r.Get(model.KindNormal, port)
	if !ok {
		t.Fatal("expected entry to exist after Create")
	}
	if !runtime.IsRunning {
		t.Error("expected auto_start proxy to be running after Create")
	}
	if created.Port != port {
		t.Errorf("created.Port = %d, want %d", created.Port, port)
	}

	if err := r.Stop(context.Background(), model.KindNormal, port); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}

func TestRegistry_CreateDuplicatePortRejected(t *testing.T) {
	r := newTestRegistry(t)
	port := freePort(t)

	cfg := model.ProxyConfig{Kind: model.KindNormal, Port: port, TargetHost: "127.0.0.1", TargetPort: freePort(t)}
	if _, err := r.Create(context.Background(), cfg); err != nil {
		t.Fatalf("first Create() error: %v", err)
	}
	if _, err := r.Create(context.Background(), cfg); err == nil {
		t.Error("expected second Create() on same kind:port to fail")
	}
}

func TestRegistry_DisableStopsRunningProxy(t *testing.T) {
	r := newTestRegistry(t)
	port := freePort(t)

	cfg := model.ProxyConfig{
		Kind:       model.KindNormal,
		Port:       port,
		TargetHost: "127.0.0.1",
		TargetPort: freePort(t),
		AutoStart:  true,
	}
	if _, err := r.Create(context.Background(), cfg); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := r.Disable(context.Background(), model.KindNormal, port); err != nil {
		t.Fatalf("Disable() error: %v", err)
	}

	gotCfg, runtime, ok := r.Get(model.KindNormal, port)
	if !ok {
		t.Fatal("expected entry to still exist after Disable")
	}
	if runtime.IsRunning {
		t.Error("expected proxy to be stopped after Disable")
	}
	if !gotCfg.Disabled {
		t.Error("expected config.Disabled = true after Disable")
	}
}

func TestRegistry_DeleteRemovesEntry(t *testing.T) {
	r := newTestRegistry(t)
	port := freePort(t)

	cfg := model.ProxyConfig{Kind: model.KindNormal, Port: port, TargetHost: "127.0.0.1", TargetPort: freePort(t)}
	if _, err := r.Create(context.Background(), cfg); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := r.Delete(context.Background(), model.KindNormal, port); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	if _, _, ok := r.Get(model.KindNormal, port); ok {
		t.Error("expected entry to be gone after Delete")
	}
}

func TestRegistry_BootStartsPersistedAutoStartProxies(t *testing.T) {
	r := newTestRegistry(t)
	port := freePort(t)

	cfg := model.ProxyConfig{
		Kind:       model.KindNormal,
		Port:       port,
		TargetHost: "127.0.0.1",
		TargetPort: freePort(t),
		AutoStart:  true,
	}
	if _, err := r.Create(context.Background(), cfg); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := r.Stop(context.Background(), model.KindNormal, port); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	// A fresh registry against the same persistence store simulates a
	// process restart: Boot should rediscover and start the config.
	r2 := &Registry{
		entries: make(map[string]*entry),
		mocks:   r.mocks,
		bus:     r.bus,
		store:   r.store,
		cfg:     r.cfg,
		logger:  r.logger,
	}

	if errs := r2.Boot(context.Background()); len(errs) != 0 {
		t.Fatalf("Boot() errors: %v", errs)
	}

	_, runtime, ok := r2.Get(model.KindNormal, port)
	if !ok {
		t.Fatal("expected boot to recreate the entry")
	}
	if !runtime.IsRunning {
		t.Error("expected boot to start the auto_start proxy")
	}

	r2.Stop(context.Background(), model.KindNormal, port)
}
