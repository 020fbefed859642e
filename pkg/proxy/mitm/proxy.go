// Package mitm implements the outgoing HTTP(S) proxy (C7): an HTTP
// CONNECT-capable forward proxy that terminates TLS with a leaf certificate
// signed by a local root (pkg/tlsca), then runs the same record →
// mock-check → forward-or-mock → drift → auto-mock pipeline as the normal
// proxy, plus an initialization gate, request dedup, and body capture caps
// (spec §4.7).
package mitm

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
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
	"wiretap/pkg/recorder"
	"wiretap/pkg/tlsca"
	"wiretap/pkg/wireerr"
)

const component = "proxy.mitm"

// MockHeader marks a response as served from the mock library.
const MockHeader = "X-Wiretap-Mock"

const initializingBody = "Service Unavailable - Wiretap Initializing"

// Config controls one outgoing-proxy instance.
type Config struct {
	Port int

	MaxRequestHistory         int
	StalePendingSweepInterval time.Duration
	StalePendingTimeout       time.Duration

	PatternMatchingEnabled bool
	AutoSaveAsMocks        bool
	IgnoredDriftHeaders    []string

	DedupWindow          time.Duration
	MaxCapturedBodyBytes int

	UpstreamIdleTimeout time.Duration
}

// Proxy is one running outgoing MITM proxy instance.
type Proxy struct {
	cfg Config

	ca      *tlsca.Manager
	mocks   *mockstore.Store
	rec     *recorder.Recorder
	bus     *eventbus.Bus
	stats   *model.Stats
	statsMu *sync.Mutex
	client  *http.Client
	logger  *slog.Logger

	listener net.Listener
	server   *http.Server

	ready          atomic.Bool
	testingMode    atomic.Bool
	mockingEnabled atomic.Bool

	dedup *dedupTracker
}

// New creates a Proxy. ca supplies the leaf certificates presented during
// the CONNECT TLS handshake.
func New(cfg Config, ca *tlsca.Manager, mocks *mockstore.Store, bus *eventbus.Bus, stats *model.Stats, statsMu *sync.Mutex) *Proxy {
	idle := cfg.UpstreamIdleTimeout
	if idle <= 0 {
		idle = 30 * time.Second
	}
	dedupWindow := cfg.DedupWindow
	if dedupWindow <= 0 {
		dedupWindow = 1000 * time.Millisecond
	}
	maxBody := cfg.MaxCapturedBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	cfg.DedupWindow = dedupWindow
	cfg.MaxCapturedBodyBytes = maxBody

	p := &Proxy{
		cfg:     cfg,
		ca:      ca,
		mocks:   mocks,
		bus:     bus,
		stats:   stats,
		statsMu: statsMu,
		client:  &http.Client{Timeout: idle},
		logger:  slog.Default().With("component", component, "proxy_port", cfg.Port),
		dedup:   newDedupTracker(dedupWindow),
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

// SetReady lifts or reinstates the initialization gate. While not ready,
// every forwarded request gets a 503 and no events are emitted (§4.7).
func (p *Proxy) SetReady(ready bool) { p.ready.Store(ready) }

// SetTestingMode toggles the process-wide testing-mode switch as observed
// by this proxy.
func (p *Proxy) SetTestingMode(on bool) { p.testingMode.Store(on) }

// SetMockingEnabled toggles outgoing-specific mock serving.
func (p *Proxy) SetMockingEnabled(on bool) { p.mockingEnabled.Store(on) }

// Recorder exposes the request history for the admin API's list operation.
func (p *Proxy) Recorder() *recorder.Recorder { return p.rec }

// Start binds the listener and begins accepting CONNECT tunnels.
func (p *Proxy) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(p.cfg.Port))
	if err != nil {
		return wireerr.Wrap(component, wireerr.PortInUse, "bind listener", err).
			WithDetails(map[string]any{"port": p.cfg.Port})
	}
	p.listener = ln

	p.server = &http.Server{Handler: http.HandlerFunc(p.handle)}

	go func() {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("serve exited unexpectedly", "error", err)
		}
	}()

	p.logger.Info("outgoing proxy started")
	return nil
}

// Stop gracefully shuts the proxy down and stops the recorder sweeper.
func (p *Proxy) Stop(ctx context.Context) error {
	defer p.rec.Close()
	if p.server == nil {
		return nil
	}
	if err := p.server.Shutdown(ctx); err != nil {
		return wireerr.Wrap(component, wireerr.Internal, "graceful shutdown", err)
	}
	p.logger.Info("outgoing proxy stopped")
	return nil
}

func (p *Proxy) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		p.handleConnect(w, r)
		return
	}
	p.serveRequest(w, r)
}

// handleConnect hijacks the client connection, completes a TLS handshake
// using a leaf certificate for the requested host, then serves every
// decrypted request that arrives on the tunnel until it closes.
func (p *Proxy) handleConnect(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		host = r.Host
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijack unsupported", http.StatusInternalServerError)
		return
	}
	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		p.logger.Error("hijack failed", "error", err)
		return
	}
	defer clientConn.Close()

	if _, err := io.WriteString(clientConn, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		return
	}

	leaf, err := p.ca.LeafFor(host)
	if err != nil {
		p.logger.Error("leaf certificate generation failed", "host", host, "error", err)
		return
	}

	tlsConn := tls.Server(clientConn, &tls.Config{Certificates: []tls.Certificate{*leaf}})
	defer tlsConn.Close()
	if err := tlsConn.Handshake(); err != nil {
		p.logger.Debug("tls handshake failed", "host", host, "error", err)
		return
	}

	reader := bufio.NewReader(tlsConn)
	for {
		req, err := http.ReadRequest(reader)
		if err != nil {
			return
		}
		req.URL.Scheme = "https"
		req.URL.Host = host

		resp := p.buildResponse(req)
		if err := resp.Write(tlsConn); err != nil {
			return
		}
	}
}

// serveRequest handles a plain (non-CONNECT) request sent directly to the
// proxy, writing straight to the ResponseWriter.
func (p *Proxy) serveRequest(w http.ResponseWriter, r *http.Request) {
	resp := p.buildResponse(r)
	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != nil {
		io.Copy(w, resp.Body)
		resp.Body.Close()
	}
}

// buildResponse runs the full C7 pipeline for one request and returns the
// response to deliver to the client, whether that's a 503 gate response, a
// mock, or a live forward.
func (p *Proxy) buildResponse(r *http.Request) *http.Response {
	if !p.ready.Load() {
		return textResponse(http.StatusServiceUnavailable, initializingBody)
	}

	reqBody := readBody(r.Body)
	decodedBody := codec.Decompress(reqBody, r.Header.Get("Content-Encoding"), r.Header.Get("Content-Type"))
	capturedBody := capBody(decodedBody, p.cfg.MaxCapturedBodyBytes)

	dedupKey := r.Method + " " + r.URL.String()
	if p.dedup.shouldDrop(dedupKey) {
		p.bus.Publish("outgoing-dedup-dropped", dedupKey, map[string]any{"method": r.Method, "url": r.URL.String()})
		return textResponse(http.StatusServiceUnavailable, "duplicate request coalesced")
	}

	headers := flattenHeaders(r.Header)
	rec := p.rec.Begin(r.Method, r.URL.String(), headers, capturedBody)

	if p.testingMode.Load() && p.mockingEnabled.Load() {
		if mock, ok := p.mocks.FindForRequest(p.cfg.Port, r.Method, r.URL.String(), p.cfg.PatternMatchingEnabled); ok && mock.Enabled {
			return p.respondFromMock(rec, mock)
		}
	}

	return p.forward(r, rec, reqBody)
}

func (p *Proxy) respondFromMock(rec *model.RequestRecord, mock model.Mock) *http.Response {
	if mock.DelayMs > 0 {
		time.Sleep(time.Duration(mock.DelayMs) * time.Millisecond)
	}

	status := mock.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	resp := textResponse(status, mock.Body)
	for k, v := range mock.Headers {
		resp.Header.Set(k, v)
	}
	resp.Header.Set(MockHeader, "true")

	modelResp := &model.Response{StatusCode: status, Headers: mock.Headers, Body: mock.Body}
	p.rec.Complete(rec.ID, modelResp, model.StatusMocked, true, "", nil)
	p.bus.Publish("mock-served", mock.ID, mock)
	p.bus.Publish("response", rec.ID, *rec)

	return resp
}

func (p *Proxy) forward(r *http.Request, rec *model.RequestRecord, reqBody []byte) *http.Response {
	outReq, err := http.NewRequest(r.Method, r.URL.String(), newBodyReader(reqBody))
	if err != nil {
		return p.fail(rec, err)
	}
	outReq.Header = r.Header.Clone()

	upstreamResp, err := p.client.Do(outReq)
	if err != nil {
		return p.fail(rec, err)
	}
	defer upstreamResp.Body.Close()

	rawBody, _ := io.ReadAll(upstreamResp.Body)
	decodedBody := codec.Decompress(rawBody, upstreamResp.Header.Get("Content-Encoding"), upstreamResp.Header.Get("Content-Type"))
	capturedBody := capBody(decodedBody, p.cfg.MaxCapturedBodyBytes)

	liveResp := model.Response{
		StatusCode: upstreamResp.StatusCode,
		Headers:    flattenHeaders(upstreamResp.Header),
		Body:       capturedBody,
	}

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

	if p.cfg.AutoSaveAsMocks && upstreamResp.StatusCode >= 200 && upstreamResp.StatusCode < 400 {
		p.autoMock(r, liveResp)
	}

	out := &http.Response{
		StatusCode: upstreamResp.StatusCode,
		Header:     upstreamResp.Header.Clone(),
		Body:       io.NopCloser(newBodyReader(rawBody)),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
	}
	return out
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

func (p *Proxy) fail(rec *model.RequestRecord, err error) *http.Response {
	p.logger.Warn("upstream forward failed", "request_id", rec.ID, "error", err)
	p.rec.Complete(rec.ID, nil, model.StatusFailed, false, err.Error(), nil)
	p.bus.Publish("response", rec.ID, *rec)
	return textResponse(http.StatusBadGateway, "Bad Gateway")
}

func textResponse(status int, body string) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", "text/plain; charset=utf-8")
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(newBodyReader([]byte(body))),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		ContentLength: int64(len(body)),
	}
}

func capBody(body string, max int) string {
	if max <= 0 || len(body) <= max {
		return body
	}
	return fmt.Sprintf("[Body omitted: %d bytes]", len(body))
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
