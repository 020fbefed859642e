package dbproxy

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"wiretap/pkg/eventbus"
	"wiretap/pkg/mockstore"
	"wiretap/pkg/model"
	"wiretap/pkg/recorder"
	"wiretap/pkg/wireerr"
)

// Config controls one DB wire proxy instance.
type Config struct {
	Port       int
	TargetHost string
	TargetPort int
	Protocol   model.DBProtocol

	MaxRequestHistory         int
	StalePendingSweepInterval time.Duration
	StalePendingTimeout       time.Duration

	FilterHealthChecks bool
	DedupWindow        time.Duration
}

// Proxy is one running DB wire proxy instance. Only the PostgreSQL simple
// and extended query sub-protocols are observed; other configured
// protocols are forwarded as opaque bytes with query extraction disabled.
type Proxy struct {
	cfg Config

	mocks   *mockstore.Store
	rec     *recorder.Recorder
	bus     *eventbus.Bus
	stats   *model.Stats
	statsMu *sync.Mutex
	logger  *slog.Logger

	listener net.Listener

	testingMode    atomic.Bool
	mockingEnabled atomic.Bool

	healthChecksFiltered atomic.Int64

	wg sync.WaitGroup
}

// New creates a Proxy.
func New(cfg Config, mocks *mockstore.Store, bus *eventbus.Bus, stats *model.Stats, statsMu *sync.Mutex) *Proxy {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = time.Second
	}

	p := &Proxy{
		cfg:     cfg,
		mocks:   mocks,
		bus:     bus,
		stats:   stats,
		statsMu: statsMu,
		logger:  slog.Default().With("component", "dbproxy", "proxy_port", cfg.Port),
	}

	sweepInterval := cfg.StalePendingSweepInterval
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Second
	}
	staleTimeout := cfg.StalePendingTimeout
	if staleTimeout <= 0 {
		staleTimeout = 30 * time.Second
	}
	p.rec = recorder.New(cfg.Port, cfg.MaxRequestHistory, sweepInterval, staleTimeout, bus, stats, statsMu)

	return p
}

// SetTestingMode toggles the process-wide testing-mode switch as observed
// by this proxy.
func (p *Proxy) SetTestingMode(on bool) { p.testingMode.Store(on) }

// SetMockingEnabled toggles DB-specific mock fabrication.
func (p *Proxy) SetMockingEnabled(on bool) { p.mockingEnabled.Store(on) }

// Recorder exposes the request history for the admin API's list operation.
func (p *Proxy) Recorder() *recorder.Recorder { return p.rec }

// HealthChecksFiltered reports the debug counter of queries skipped by the
// health-check filter (§4.8).
func (p *Proxy) HealthChecksFiltered() int64 { return p.healthChecksFiltered.Load() }

// Start binds the listener and begins accepting connections.
func (p *Proxy) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(p.cfg.Port))
	if err != nil {
		return wireerr.Wrap("dbproxy", wireerr.PortInUse, "bind listener", err).
			WithDetails(map[string]any{"port": p.cfg.Port})
	}
	p.listener = ln

	p.wg.Add(1)
	go p.acceptLoop()

	p.logger.Info("db proxy started", "protocol", p.cfg.Protocol, "target_host", p.cfg.TargetHost, "target_port", p.cfg.TargetPort)
	return nil
}

// Stop closes the listener and waits for in-flight connections to drain.
func (p *Proxy) Stop(ctx context.Context) error {
	defer p.rec.Close()
	if p.listener == nil {
		return nil
	}
	if err := p.listener.Close(); err != nil {
		return wireerr.Wrap("dbproxy", wireerr.Internal, "close listener", err)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	p.logger.Info("db proxy stopped")
	return nil
}

func (p *Proxy) acceptLoop() {
	defer p.wg.Done()
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			return
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.handleConn(conn)
		}()
	}
}

func (p *Proxy) handleConn(client net.Conn) {
	defer client.Close()

	target := net.JoinHostPort(p.cfg.TargetHost, strconv.Itoa(p.cfg.TargetPort))
	upstream, err := net.DialTimeout("tcp", target, 10*time.Second)
	if err != nil {
		p.logger.Warn("upstream unreachable", "error", err)
		rec := p.rec.Begin("", target, nil, "")
		p.rec.Complete(rec.ID, nil, model.StatusFailed, false, err.Error(), nil)
		p.bus.Publish("response", rec.ID, *rec)
		return
	}
	defer upstream.Close()

	if p.cfg.Protocol != "" && p.cfg.Protocol != model.ProtocolPostgres {
		var relay sync.WaitGroup
		relay.Add(2)
		go func() { defer relay.Done(); io.Copy(upstream, client); upstream.Close() }()
		go func() { defer relay.Done(); io.Copy(client, upstream); client.Close() }()
		relay.Wait()
		return
	}

	startup, err := readStartupMessage(client)
	if err != nil {
		return
	}
	if err := writeStartupMessage(upstream, startup); err != nil {
		return
	}

	sess := &session{proxy: p, client: client, upstream: upstream}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); sess.relayClientToServer() }()
	go func() { defer wg.Done(); sess.relayServerToClient() }()
	wg.Wait()
}

func writeStartupMessage(w io.Writer, payload []byte) error {
	length := uint32(4 + len(payload))
	header := make([]byte, 4)
	header[0] = byte(length >> 24)
	header[1] = byte(length >> 16)
	header[2] = byte(length >> 8)
	header[3] = byte(length)
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
