// Package registry implements the Proxy Registry & Lifecycle (C9): the
// exclusive owner of every ProxyConfig and RuntimeProxy, boot
// orchestration, and the per-port-serialized create/start/stop/update/
// enable/disable/delete/restart-all operations of §6.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wiretap/pkg/config"
	"wiretap/pkg/dbproxy"
	"wiretap/pkg/eventbus"
	"wiretap/pkg/mockstore"
	"wiretap/pkg/model"
	"wiretap/pkg/persistence"
	"wiretap/pkg/probe"
	"wiretap/pkg/proxy/mitm"
	"wiretap/pkg/proxy/normal"
	"wiretap/pkg/recorder"
	"wiretap/pkg/tlsca"
	"wiretap/pkg/wireerr"
)

const component = "registry"

// transportProxy is the shape shared by the normal, outgoing, and db wire
// proxies: every transport is started, stopped, and exposes its request
// history the same way.
type transportProxy interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Recorder() *recorder.Recorder
}

// entry is the registry's internal bookkeeping for one (kind, port) proxy.
type entry struct {
	mu      sync.Mutex // per-port serialization of lifecycle operations
	config  model.ProxyConfig
	runtime model.RuntimeProxy
	statsMu sync.Mutex
	proxy   transportProxy
}

// Registry owns every ProxyConfig/RuntimeProxy and is the only component
// allowed to mutate either (spec §3 Ownership).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry // key: kind:port

	mocks *mockstore.Store
	bus   *eventbus.Bus
	store *persistence.Store
	ca    *tlsca.Manager
	cfg   config.ProxiesConfig

	testingMode bool

	logger *slog.Logger
}

// New creates a Registry. mocks and bus are shared collaborators used by
// every proxy instance this registry creates.
func New(cfg config.ProxiesConfig, mocks *mockstore.Store, bus *eventbus.Bus, store *persistence.Store, ca *tlsca.Manager) *Registry {
	return &Registry{
		entries:     make(map[string]*entry),
		mocks:       mocks,
		bus:         bus,
		store:       store,
		ca:          ca,
		cfg:         cfg,
		testingMode: cfg.TestingMode,
		logger:      slog.Default().With("component", component),
	}
}

func entryKey(kind model.ProxyKind, port int) string {
	return fmt.Sprintf("%s:%d", kind, port)
}

// SetTestingMode toggles the process-wide testing-mode switch and
// propagates it to every running proxy of all three kinds (OQ-1: uniform
// gating across normal/outgoing/db).
func (r *Registry) SetTestingMode(on bool) {
	r.mu.Lock()
	r.testingMode = on
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		switch p := e.proxy.(type) {
		case *normal.Proxy:
			p.SetTestingMode(on)
		case *mitm.Proxy:
			p.SetTestingMode(on)
		case *dbproxy.Proxy:
			p.SetTestingMode(on)
		}
	}
}

// List returns a snapshot of every RuntimeProxy's config and stats.
func (r *Registry) List() []model.ProxyConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.ProxyConfig, 0, len(r.entries))
	for _, e := range r.entries {
		e.mu.Lock()
		out = append(out, e.config)
		e.mu.Unlock()
	}
	return out
}

// Get returns the config and runtime stats for one proxy.
func (r *Registry) Get(kind model.ProxyKind, port int) (model.ProxyConfig, model.RuntimeProxy, bool) {
	r.mu.RLock()
	e, ok := r.entries[entryKey(kind, port)]
	r.mu.RUnlock()
	if !ok {
		return model.ProxyConfig{}, model.RuntimeProxy{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config, e.runtime, true
}

// Recorder returns the request history recorder for a running proxy, or
// false if the proxy doesn't exist or isn't running.
func (r *Registry) Recorder(kind model.ProxyKind, port int) (*recorder.Recorder, bool) {
	r.mu.RLock()
	e, ok := r.entries[entryKey(kind, port)]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proxy == nil {
		return nil, false
	}
	return e.proxy.Recorder(), true
}

// Create registers a new ProxyConfig, persists it immediately, and starts
// it if boot conditions are met.
func (r *Registry) Create(ctx context.Context, cfg model.ProxyConfig) (model.ProxyConfig, error) {
	if cfg.Kind == model.KindNormal && cfg.TargetHost == "" && cfg.TargetPort == cfg.Port {
		return model.ProxyConfig{}, wireerr.New(component, wireerr.ConfigInvalid, "proxy cannot forward to its own port")
	}

	key := entryKey(cfg.Kind, cfg.Port)

	r.mu.Lock()
	if _, exists := r.entries[key]; exists {
		r.mu.Unlock()
		return model.ProxyConfig{}, wireerr.New(component, wireerr.ConfigInvalid, "port already has a proxy of this kind")
	}
	cfg.CreatedAt = time.Now()
	e := &entry{config: cfg, runtime: model.RuntimeProxy{Port: cfg.Port}}
	r.entries[key] = e
	r.mu.Unlock()

	if err := r.persistConfigs(cfg.Kind); err != nil {
		r.logger.Error("persist new config failed", "error", err)
	}
	r.bus.Publish("proxy-created", key, cfg)

	if cfg.AutoStart && !cfg.Disabled && r.cfg.GlobalAutoStart {
		if err := r.Start(ctx, cfg.Kind, cfg.Port); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// Start instantiates and starts the RuntimeProxy for (kind, port),
// following the boot orchestration sequence of §4.9 steps c-h.
func (r *Registry) Start(ctx context.Context, kind model.ProxyKind, port int) error {
	e, err := r.entryFor(kind, port)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runtime.IsRunning {
		return nil
	}

	// (c) probe target — informational only, never blocks start.
	if e.config.TargetHost != "" && e.config.TargetPort != 0 {
		reachable := probe.IsReachable(e.config.TargetHost, e.config.TargetPort, 10*time.Second)
		if !reachable {
			r.logger.Warn("target unreachable at start (informational)", "port", port, "target_host", e.config.TargetHost, "target_port", e.config.TargetPort)
		}
	}

	// (d) instantiate the RuntimeProxy.
	p, err := r.buildProxy(e.config)
	if err != nil {
		return err
	}
	e.proxy = p

	// (e) persisted mocks are restored once on process boot by the run
	// command (loadPersistedMocks in cmd/wiretap), not per start, since
	// mocks outlive individual start/stop cycles. Request history is not
	// reloaded.

	// (g) start with a bounded timeout.
	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := p.Start(startCtx); err != nil {
		return err
	}

	// (h) verify the port is now held: a fresh bind attempt on it must fail.
	if !probe.IsBound(port, 5*time.Second) {
		p.Stop(ctx)
		return wireerr.New(component, wireerr.Internal, "proxy failed self-connect verification after start").
			WithDetails(map[string]any{"port": port})
	}

	switch tp := p.(type) {
	case *normal.Proxy:
		tp.SetTestingMode(r.testingMode)
	case *mitm.Proxy:
		tp.SetReady(true)
		tp.SetTestingMode(r.testingMode)
		tp.SetMockingEnabled(r.cfg.Outgoing.MockingEnabled)
	case *dbproxy.Proxy:
		tp.SetTestingMode(r.testingMode)
		tp.SetMockingEnabled(r.cfg.DB.MockingEnabled)
	}

	e.runtime.IsRunning = true
	e.config.RunningAtLastShutdown = true
	r.bus.Publish("proxy-started", entryKey(kind, port), e.config)
	return nil
}

// Stop stops the running proxy for (kind, port), if any.
func (r *Registry) Stop(ctx context.Context, kind model.ProxyKind, port int) error {
	e, err := r.entryFor(kind, port)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.runtime.IsRunning || e.proxy == nil {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := e.proxy.Stop(stopCtx); err != nil {
		return err
	}

	e.runtime.IsRunning = false
	e.config.RunningAtLastShutdown = false
	r.bus.Publish("proxy-stopped", entryKey(kind, port), e.config)
	return nil
}

// Update replaces a stopped proxy's configuration. If the port changes,
// the old entry is removed and a new one created in its place.
func (r *Registry) Update(ctx context.Context, kind model.ProxyKind, port int, next model.ProxyConfig) (model.ProxyConfig, error) {
	e, err := r.entryFor(kind, port)
	if err != nil {
		return model.ProxyConfig{}, err
	}

	e.mu.Lock()
	if e.runtime.IsRunning {
		e.mu.Unlock()
		return model.ProxyConfig{}, wireerr.New(component, wireerr.ConfigInvalid, "proxy must be stopped before update")
	}
	e.mu.Unlock()

	if next.Port != port {
		if err := r.Delete(ctx, kind, port); err != nil {
			return model.ProxyConfig{}, err
		}
		return r.Create(ctx, next)
	}

	e.mu.Lock()
	next.CreatedAt = e.config.CreatedAt
	e.config = next
	e.mu.Unlock()

	if err := r.persistConfigs(kind); err != nil {
		r.logger.Error("persist updated config failed", "error", err)
	}
	r.bus.Publish("proxy-updated", entryKey(kind, port), next)
	return next, nil
}

// Enable clears a proxy's disabled flag; Disable sets it and stops the
// proxy if running.
func (r *Registry) Enable(ctx context.Context, kind model.ProxyKind, port int) error {
	return r.setDisabled(ctx, kind, port, false)
}

func (r *Registry) Disable(ctx context.Context, kind model.ProxyKind, port int) error {
	if err := r.Stop(ctx, kind, port); err != nil {
		return err
	}
	return r.setDisabled(ctx, kind, port, true)
}

func (r *Registry) setDisabled(ctx context.Context, kind model.ProxyKind, port int, disabled bool) error {
	e, err := r.entryFor(kind, port)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.config.Disabled = disabled
	e.mu.Unlock()
	return r.persistConfigs(kind)
}

// Delete stops and removes a proxy, along with its mocks and requests.
func (r *Registry) Delete(ctx context.Context, kind model.ProxyKind, port int) error {
	if err := r.Stop(ctx, kind, port); err != nil {
		return err
	}

	key := entryKey(kind, port)
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()

	r.mocks.RemoveForPort(port)
	r.store.Delete(persistence.MocksKey(string(kind), port))
	r.store.Delete(persistence.RequestsKey(string(kind), port))

	if err := r.persistConfigs(kind); err != nil {
		r.logger.Error("persist configs after delete failed", "error", err)
	}
	r.bus.Publish("proxy-deleted", key, map[string]any{"kind": kind, "port": port})
	return nil
}

// RestartAll stops every proxy, clears the runtime map, and re-runs boot
// orchestration from the persisted configs. Errors are collected, not
// raised (spec §4.9).
func (r *Registry) RestartAll(ctx context.Context) []error {
	r.mu.RLock()
	configs := make([]model.ProxyConfig, 0, len(r.entries))
	for _, e := range r.entries {
		e.mu.Lock()
		configs = append(configs, e.config)
		e.mu.Unlock()
	}
	r.mu.RUnlock()

	var errs []error
	for _, cfg := range configs {
		if err := r.Stop(ctx, cfg.Kind, cfg.Port); err != nil {
			errs = append(errs, err)
		}
	}

	r.mu.Lock()
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, cfg := range configs {
		if _, err := r.Create(ctx, cfg); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// Boot runs boot orchestration over every persisted ProxyConfig of every
// kind, in order, per §4.9 steps (a)-(h).
func (r *Registry) Boot(ctx context.Context) []error {
	var errs []error

	for _, kind := range []model.ProxyKind{model.KindNormal, model.KindOutgoing, model.KindDB} {
		var configs []model.ProxyConfig
		if err := r.store.Load(persistence.ConfigsKey(string(kind)), &configs); err != nil {
			continue
		}

		for _, cfg := range configs {
			key := entryKey(cfg.Kind, cfg.Port)
			r.mu.Lock()
			r.entries[key] = &entry{config: cfg, runtime: model.RuntimeProxy{Port: cfg.Port}}
			r.mu.Unlock()

			shouldStart := cfg.AutoStart && !cfg.Disabled && r.cfg.GlobalAutoStart
			if !shouldStart {
				continue
			}

			if probe.IsBound(cfg.Port, r.probeTimeout()) {
				r.logger.Warn("port already bound, marking proxy failed to start", "port", cfg.Port)
				errs = append(errs, wireerr.New(component, wireerr.PortInUse, "port in use at boot").WithDetails(map[string]any{"port": cfg.Port}))
				continue
			}

			if err := r.Start(ctx, cfg.Kind, cfg.Port); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errs
}

func (r *Registry) probeTimeout() time.Duration {
	if r.cfg.PortProbeTimeout > 0 {
		return r.cfg.PortProbeTimeout
	}
	return 5 * time.Second
}

func (r *Registry) entryFor(kind model.ProxyKind, port int) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[entryKey(kind, port)]
	r.mu.RUnlock()
	if !ok {
		return nil, wireerr.New(component, wireerr.ConfigInvalid, "no such proxy").
			WithDetails(map[string]any{"kind": kind, "port": port})
	}
	return e, nil
}

func (r *Registry) persistConfigs(kind model.ProxyKind) error {
	r.mu.RLock()
	var configs []model.ProxyConfig
	for _, e := range r.entries {
		e.mu.Lock()
		if e.config.Kind == kind {
			configs = append(configs, e.config)
		}
		e.mu.Unlock()
	}
	r.mu.RUnlock()

	return r.store.Save(persistence.ConfigsKey(string(kind)), configs)
}

// buildProxy constructs the transport-specific proxy instance for cfg's
// kind, wiring in the registry's shared mockstore, event bus, and (for
// outgoing proxies) CA manager.
func (r *Registry) buildProxy(cfg model.ProxyConfig) (transportProxy, error) {
	switch cfg.Kind {
	case model.KindNormal:
		return normal.New(normal.Config{
			Port:                      cfg.Port,
			TargetHost:                cfg.TargetHost,
			TargetPort:                cfg.TargetPort,
			MaxRequestHistory:         r.cfg.MaxRequestHistory,
			StalePendingSweepInterval: r.cfg.StalePendingSweepInterval,
			StalePendingTimeout:       r.cfg.StalePendingTimeout,
			PatternMatchingEnabled:    r.cfg.PatternMatchingEnabled,
			AutoSaveAsMocks:           r.cfg.AutoSaveAsMocks,
			UpstreamIdleTimeout:       r.cfg.UpstreamIdleTimeout,
		}, r.mocks, r.bus, r.statsFor(cfg), r.statsMuFor(cfg)), nil

	case model.KindOutgoing:
		if r.ca == nil {
			return nil, wireerr.New(component, wireerr.ConfigInvalid, "outgoing proxy requires a CA manager")
		}
		return mitm.New(mitm.Config{
			Port:                      cfg.Port,
			MaxRequestHistory:         r.cfg.MaxRequestHistory,
			StalePendingSweepInterval: r.cfg.StalePendingSweepInterval,
			StalePendingTimeout:       r.cfg.StalePendingTimeout,
			PatternMatchingEnabled:    r.cfg.PatternMatchingEnabled,
			AutoSaveAsMocks:           r.cfg.AutoSaveAsMocks,
			DedupWindow:               r.cfg.Outgoing.DedupWindow,
			MaxCapturedBodyBytes:      r.cfg.Outgoing.MaxCapturedBodyBytes,
			UpstreamIdleTimeout:       r.cfg.UpstreamIdleTimeout,
		}, r.ca, r.mocks, r.bus, r.statsFor(cfg), r.statsMuFor(cfg)), nil

	case model.KindDB:
		return dbproxy.New(dbproxy.Config{
			Port:                      cfg.Port,
			TargetHost:                cfg.TargetHost,
			TargetPort:                cfg.TargetPort,
			Protocol:                  cfg.Protocol,
			MaxRequestHistory:         r.cfg.MaxRequestHistory,
			StalePendingSweepInterval: r.cfg.StalePendingSweepInterval,
			StalePendingTimeout:       r.cfg.StalePendingTimeout,
			FilterHealthChecks:        r.cfg.DB.FilterHealthChecks,
			DedupWindow:               r.cfg.DB.DedupWindow,
		}, r.mocks, r.bus, r.statsFor(cfg), r.statsMuFor(cfg)), nil

	default:
		return nil, wireerr.New(component, wireerr.ConfigInvalid, "unknown proxy kind: "+string(cfg.Kind))
	}
}

func (r *Registry) statsFor(cfg model.ProxyConfig) *model.Stats {
	e, _ := r.entryFor(cfg.Kind, cfg.Port)
	if e == nil {
		return &model.Stats{}
	}
	return &e.runtime.Stats
}

func (r *Registry) statsMuFor(cfg model.ProxyConfig) *sync.Mutex {
	e, _ := r.entryFor(cfg.Kind, cfg.Port)
	if e == nil {
		return &sync.Mutex{}
	}
	return &e.statsMu
}
