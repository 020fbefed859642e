// Package recorder is the per-proxy request history: a bounded FIFO deque
// with newest at the head, trimmed from the tail once max_request_history
// is exceeded. Every append emits a "request" event before the response is
// known, then a "response" event once the record completes. A background
// sweeper fails any record left pending too long so no RequestRecord
// lingers forever.
package recorder

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"wiretap/pkg/eventbus"
	"wiretap/pkg/model"
)

const (
	requestTimedOutError = "Request timed out"
)

// Recorder owns the RequestRecord history for one proxy port.
type Recorder struct {
	mu              sync.Mutex
	port            int
	history         []model.RequestRecord // head = newest, tail = oldest
	maxHistory      int
	sweepInterval   time.Duration
	staleTimeout    time.Duration
	bus             *eventbus.Bus
	stats           *model.Stats
	statsMu         *sync.Mutex
	logger          *slog.Logger
	stopSweep       chan struct{}
	sweepWG         sync.WaitGroup
}

// New creates a Recorder for one proxy. stats is a shared pointer owned by
// the proxy's RuntimeProxy so the sweeper can bump Failed directly.
func New(port, maxHistory int, sweepInterval, staleTimeout time.Duration, bus *eventbus.Bus, stats *model.Stats, statsMu *sync.Mutex) *Recorder {
	r := &Recorder{
		port:          port,
		maxHistory:    maxHistory,
		sweepInterval: sweepInterval,
		staleTimeout:  staleTimeout,
		bus:           bus,
		stats:         stats,
		statsMu:       statsMu,
		logger:        slog.Default().With("component", "recorder", "proxy_port", port),
		stopSweep:     make(chan struct{}),
	}
	r.sweepWG.Add(1)
	go r.sweepLoop()
	return r
}

// Begin creates a pending RequestRecord, appends it to the head of the
// history (evicting from the tail if over capacity), and emits a "request"
// event.
func (r *Recorder) Begin(method, url string, headers map[string]string, body string) *model.RequestRecord {
	rec := model.RequestRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		StartTime: time.Now(),
		ProxyPort: r.port,
		Method:    method,
		URL:       url,
		Headers:   headers,
		Body:      body,
		Status:    model.StatusPending,
	}

	r.mu.Lock()
	r.history = append([]model.RequestRecord{rec}, r.history...)
	r.trimLocked()
	r.mu.Unlock()

	r.bumpTotal()
	r.bus.Publish("request", rec.ID, rec)

	return &rec
}

func (r *Recorder) trimLocked() {
	if r.maxHistory <= 0 {
		return
	}
	if len(r.history) > r.maxHistory {
		r.history = r.history[:r.maxHistory]
	}
}

func (r *Recorder) bumpTotal() {
	r.statsMu.Lock()
	r.stats.Total++
	r.statsMu.Unlock()
}

// Complete finalizes rec with a response and status, computes duration_ms
// exactly once, updates the stored copy, bumps the matching stats counter,
// and emits a "response" event.
func (r *Recorder) Complete(id string, resp *model.Response, status model.RequestStatus, servedFromMock bool, errMsg string, drift *model.DriftReport) {
	r.mu.Lock()
	var completed *model.RequestRecord
	for i := range r.history {
		if r.history[i].ID == id {
			r.history[i].Response = resp
			r.history[i].Status = status
			r.history[i].ServedFromMock = servedFromMock
			r.history[i].Error = errMsg
			r.history[i].MockComparison = drift
			r.history[i].DurationMs = time.Since(r.history[i].StartTime).Milliseconds()
			completed = &r.history[i]
			break
		}
	}
	r.mu.Unlock()

	if completed == nil {
		return
	}

	r.statsMu.Lock()
	switch status {
	case model.StatusSuccess:
		r.stats.Success++
	case model.StatusFailed, model.StatusTimeout:
		r.stats.Failed++
	case model.StatusMocked:
		r.stats.MocksServed++
	}
	r.statsMu.Unlock()

	r.bus.Publish("response", completed.ID, *completed)
}

// List returns a snapshot of the current history, newest first.
func (r *Recorder) List() []model.RequestRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.RequestRecord, len(r.history))
	copy(out, r.history)
	return out
}

// Clear discards all recorded history for this proxy. Stats are left
// untouched since they are cumulative counters, not a history view.
func (r *Recorder) Clear() {
	r.mu.Lock()
	r.history = nil
	r.mu.Unlock()
}

// Close stops the stale-pending sweeper.
func (r *Recorder) Close() {
	close(r.stopSweep)
	r.sweepWG.Wait()
}

func (r *Recorder) sweepLoop() {
	defer r.sweepWG.Done()
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopSweep:
			return
		case <-ticker.C:
			r.sweepStale()
		}
	}
}

// sweepStale fails any record still pending after staleTimeout (§4.5).
func (r *Recorder) sweepStale() {
	cutoff := time.Now().Add(-r.staleTimeout)

	r.mu.Lock()
	var toFail []string
	for i := range r.history {
		if r.history[i].Status == model.StatusPending && r.history[i].StartTime.Before(cutoff) {
			r.history[i].Status = model.StatusFailed
			r.history[i].Error = requestTimedOutError
			r.history[i].DurationMs = time.Since(r.history[i].StartTime).Milliseconds()
			toFail = append(toFail, r.history[i].ID)
		}
	}
	snapshot := make(map[string]model.RequestRecord, len(toFail))
	for _, id := range toFail {
		for i := range r.history {
			if r.history[i].ID == id {
				snapshot[id] = r.history[i]
			}
		}
	}
	r.mu.Unlock()

	if len(toFail) == 0 {
		return
	}

	r.statsMu.Lock()
	r.stats.Failed += int64(len(toFail))
	r.statsMu.Unlock()

	for _, id := range toFail {
		rec := snapshot[id]
		r.logger.Warn("request swept as stale", "request_id", id)
		r.bus.Publish("response", id, rec)
	}
}
