// Package normal implements the plain HTTP forward proxy (C6): no TLS MITM,
// one listener per ProxyConfig, every accepted request run through the
// record → mock-check → forward-or-mock → drift → auto-mock pipeline
// described in spec §4.6.
package normal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"wiretap/pkg/codec"
	"wiretap/pkg/drift"
	"wiretap/pkg/eventbus"
	"wiretap/pkg/mockstore"
	"wiretap/pkg/model"
	"wiretap/pkg/pattern"
	"wiretap/pkg/recorder"
	"wiretap/pkg/wireerr"
)

const component = "proxy.normal"

// MockHeader marks a response as served from the mock library rather than
// forwarded live.
const MockHeader = "X-Wiretap-Mock"

// Config controls one normal-proxy instance.
type Config struct {
	Port       int
	TargetHost string
	TargetPort int

	MaxRequestHistory        int
	StalePendingSweepInterval time.Duration
	StalePendingTimeout       time.Duration

	PatternMatchingEnabled bool
	AutoSaveAsMocks        bool
	IgnoredDriftHeaders    []string

	UpstreamIdleTimeout time.Duration
}

// Proxy is one running normal-proxy instance bound to a single port.
type Proxy struct {
	cfg Config

	mocks    *mockstore.Store
	rec      *recorder.Recorder
	bus      *eventbus.Bus
	stats    *model.Stats
	statsMu  *sync.Mutex
	client   *http.Client
	logger   *slog.Logger

	listener net.Listener
	server   *http.Server

	testingMode atomic.Bool
}

// New creates a Proxy. mocks and bus are shared collaborators owned by the
// registry; stats/statsMu are the RuntimeProxy's own counters.
func New(cfg Config, mocks *mockstore.Store, bus *eventbus.Bus, stats *model.Stats, statsMu *sync.Mutex) *Proxy {
	idle := cfg.UpstreamIdleTimeout
	if idle <= 0 {
		idle = 30 * time.Second
	}

	p := &Proxy{
		cfg:     cfg,
		mocks:   mocks,
		bus:     bus,
		stats:   stats,
		statsMu: statsMu,
		client: &http.Client{
			Timeout: idle,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: slog.Default().With("component", component, "proxy_port", cfg.Port),
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

// Start binds the listener and begins serving. It returns once the
// listener is bound; serving happens on a background goroutine.
func (p *Proxy) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(p.cfg.Port))
	if err != nil {
		return wireerr.Wrap(component, wireerr.PortInUse, "bind listener", err).
			WithDetails(map[string]any{"port": p.cfg.Port})
	}
	p.listener = ln

	p.server = &http.Server{
		Handler: http.HandlerFunc(p.handle),
	}

	go func() {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("serve exited unexpectedly", "error", err)
		}
	}()

	p.logger.Info("normal proxy started", "target_host", p.cfg.TargetHost, "target_port", p.cfg.TargetPort)
	return nil
}

// Stop gracefully shuts the proxy down within the given context deadline,
// then stops the recorder's sweeper.
func (p *Proxy) Stop(ctx context.Context) error {
	defer p.rec.Close()
	if p.server == nil {
		return nil
	}
	if err := p.server.Shutdown(ctx); err != nil {
		return wireerr.Wrap(component, wireerr.Internal, "graceful shutdown", err)
	}
	p.logger.Info("normal proxy stopped")
	return nil
}

// Recorder exposes the request history for the admin API's list operation.
func (p *Proxy) Recorder() *recorder.Recorder { return p.rec }

// SetTestingMode toggles the process-wide testing-mode switch on this
// proxy (OQ-1: testing_mode gates mock serving uniformly across all three
// transports; unlike outgoing/db, normal has no separate mocking_enabled
// sub-flag).
func (p *Proxy) SetTestingMode(on bool) { p.testingMode.Store(on) }

func (p *Proxy) handle(w http.ResponseWriter, r *http.Request) {
	headers := flattenHeaders(r.Header)
	reqBody := readBody(r.Body)
	decodedBody := codec.Decompress(reqBody, r.Header.Get("Content-Encoding"), r.Header.Get("Content-Type"))

	rec := p.rec.Begin(r.Method, r.URL.String(), headers, decodedBody)

	if p.testingMode.Load() {
		if mock, ok := p.mocks.FindForRequest(p.cfg.Port, r.Method, r.URL.String(), p.cfg.PatternMatchingEnabled); ok && mock.Enabled {
			p.serveMock(w, rec, mock)
			return
		}
	}

	p.forward(w, r, rec, reqBody)
}

// serveMock writes mock's canned response, honoring its configured delay,
// and records the exchange as status=mocked.
func (p *Proxy) serveMock(w http.ResponseWriter, rec *model.RequestRecord, mock model.Mock) {
	if mock.DelayMs > 0 {
		time.Sleep(time.Duration(mock.DelayMs) * time.Millisecond)
	}

	for k, v := range mock.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set(MockHeader, "true")
	w.WriteHeader(statusOrDefault(mock.StatusCode))
	io.WriteString(w, mock.Body)

	resp := &model.Response{StatusCode: statusOrDefault(mock.StatusCode), Headers: mock.Headers, Body: mock.Body}
	p.rec.Complete(rec.ID, resp, model.StatusMocked, true, "", nil)

	p.bus.Publish("mock-served", mock.ID, mock)
	p.bus.Publish("response", rec.ID, *rec)
}

// forward streams the request to the configured target, then runs drift
// detection and auto-mock synthesis against the live response.
func (p *Proxy) forward(w http.ResponseWriter, r *http.Request, rec *model.RequestRecord, reqBody []byte) {
	target := net.JoinHostPort(p.cfg.TargetHost, strconv.Itoa(p.cfg.TargetPort))

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, "http://"+target+r.URL.RequestURI(), newBodyReader(reqBody))
	if err != nil {
		p.fail(w, rec, err)
		return
	}
	outReq.Header = r.Header.Clone()
	outReq.Header.Del("Host")
	outReq.Host = target

	resp, err := p.client.Do(outReq)
	if err != nil {
		p.fail(w, rec, err)
		return
	}
	defer resp.Body.Close()

	respBodyRaw, _ := io.ReadAll(resp.Body)
	respBody := codec.Decompress(respBodyRaw, resp.Header.Get("Content-Encoding"), resp.Header.Get("Content-Type"))
	respHeaders := flattenHeaders(resp.Header)

	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(respBodyRaw)

	liveResp := model.Response{StatusCode: resp.StatusCode, Headers: respHeaders, Body: respBody}

	var report *model.DriftReport
	if mock, ok := p.mocks.FindForRequest(p.cfg.Port, r.Method, r.URL.String(), p.cfg.PatternMatchingEnabled); ok {
		d := drift.Compare(mock, liveResp, p.cfg.IgnoredDriftHeaders)
		report = &d
		if d.HasDifferences {
			p.bus.Publish("mock-difference-detected", rec.ID, d)
		}
	}

	p.rec.Complete(rec.ID, &liveResp, model.StatusSuccess, false, "", report)
	p.bus.Publish("response", rec.ID, *rec)

	if p.cfg.AutoSaveAsMocks && resp.StatusCode >= 200 && resp.StatusCode < 400 {
		p.autoMock(r, liveResp)
	}
}

func (p *Proxy) autoMock(r *http.Request, resp model.Response) {
	candidate := model.Mock{
		ProxyPort:     p.cfg.Port,
		Method:        r.Method,
		URL:           r.URL.String(),
		StatusCode:    resp.StatusCode,
		Headers:       resp.Headers,
		Body:          resp.Body,
		Enabled:       false,
		AutoGenerated: true,
	}
	result := p.mocks.Add(candidate)
	if result.Created {
		p.bus.Publish("mock-auto-created", result.Mock.ID, result.Mock)
	}
}

func (p *Proxy) fail(w http.ResponseWriter, rec *model.RequestRecord, err error) {
	p.logger.Warn("upstream forward failed", "request_id", rec.ID, "error", err)
	http.Error(w, "Bad Gateway", http.StatusBadGateway)
	p.rec.Complete(rec.ID, nil, model.StatusFailed, false, err.Error(), nil)
	p.bus.Publish("response", rec.ID, *rec)
}

func flattenHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func readBody(r io.ReadCloser) []byte {
	if r == nil {
		return nil
	}
	defer r.Close()
	b, _ := io.ReadAll(r)
	return b
}

func newBodyReader(b []byte) io.Reader {
	if len(b) == 0 {
		return nil
	}
	return &byteReader{b: b}
}

type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

func statusOrDefault(code int) int {
	if code == 0 {
		return http.StatusOK
	}
	return code
}
