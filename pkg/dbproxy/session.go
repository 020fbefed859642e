package dbproxy

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"wiretap/pkg/model"
)

// session is one accepted client<->upstream connection pair, tracking the
// in-flight query so the server->client relay can complete the matching
// RequestRecord once a terminal backend message arrives.
type session struct {
	proxy    *Proxy
	client   net.Conn
	upstream net.Conn

	mu          sync.Mutex
	pending     []string // record IDs awaiting a terminal backend message, FIFO
	lastQuery   map[string]time.Time
}

// relayClientToServer reads tagged frontend messages, applies the
// health-check filter, dedup window, and mock short-circuit, and forwards
// whatever isn't mocked upstream unmodified.
func (s *session) relayClientToServer() {
	defer s.upstream.Close()

	for {
		msg, err := readMessage(s.client)
		if err != nil {
			return
		}

		query, hasQuery := ExtractQuery(msg.tag, msg.payload)
		if !hasQuery {
			if err := writeMessage(s.upstream, msg.tag, msg.payload); err != nil {
				return
			}
			continue
		}

		normalized := Normalize(query)

		if s.proxy.cfg.FilterHealthChecks && IsHealthCheck(normalized) {
			s.proxy.healthChecksFiltered.Add(1)
			if err := writeMessage(s.upstream, msg.tag, msg.payload); err != nil {
				return
			}
			continue
		}

		if s.shouldDedup(normalized) {
			s.proxy.bus.Publish("database-dedup-dropped", normalized, map[string]any{"query": normalized})
			if err := writeMessage(s.upstream, msg.tag, msg.payload); err != nil {
				return
			}
			continue
		}

		rec := s.proxy.rec.Begin("QUERY", normalized, nil, query)

		if s.proxy.testingMode.Load() && s.proxy.mockingEnabled.Load() {
			if mock, ok := s.proxy.mocks.FindForQuery(s.proxy.cfg.Port, normalized); ok && mock.Enabled {
				frames, err := BuildMockFrames(mock.Body)
				if err == nil {
					if _, writeErr := s.client.Write(frames); writeErr != nil {
						return
					}
					resp := &model.Response{Body: mock.Body}
					s.proxy.rec.Complete(rec.ID, resp, model.StatusMocked, true, "", nil)
					s.proxy.bus.Publish("mock-served", mock.ID, mock)
					s.proxy.bus.Publish("response", rec.ID, *rec)
					continue
				}
				s.proxy.bus.Publish("mock-incompatible", mock.ID, map[string]any{"error": err.Error()})
			}
		}

		s.trackPending(rec.ID)
		if err := writeMessage(s.upstream, msg.tag, msg.payload); err != nil {
			return
		}
	}
}

// relayServerToClient forwards tagged backend messages to the client
// unmodified, completing the oldest pending RequestRecord whenever a
// terminal message (CommandComplete or ErrorResponse) arrives.
func (s *session) relayServerToClient() {
	defer s.client.Close()

	for {
		msg, err := readMessage(s.upstream)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.failPending(err)
			}
			return
		}

		if err := writeMessage(s.client, msg.tag, msg.payload); err != nil {
			return
		}

		if status, ok := ClassifyServerMessage(msg.tag, msg.payload); ok {
			s.completePending(status)
		}
	}
}

func (s *session) trackPending(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, id)
}

func (s *session) completePending(status ServerStatus) {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	id := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()

	if status.Success {
		resp := &model.Response{Body: status.Tag}
		s.proxy.rec.Complete(id, resp, model.StatusSuccess, false, "", nil)
	} else {
		s.proxy.rec.Complete(id, nil, model.StatusFailed, false, status.ErrorMessage, nil)
	}
	s.proxy.bus.Publish("response", id, id)
}

func (s *session) failPending(cause error) {
	s.mu.Lock()
	ids := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, id := range ids {
		s.proxy.rec.Complete(id, nil, model.StatusFailed, false, cause.Error(), nil)
		s.proxy.bus.Publish("response", id, id)
	}
}

// shouldDedup coalesces identical normalized queries seen within the
// configured dedup window on this same connection (§4.8).
func (s *session) shouldDedup(normalized string) bool {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastQuery == nil {
		s.lastQuery = make(map[string]time.Time)
	}
	if last, ok := s.lastQuery[normalized]; ok && now.Sub(last) < s.proxy.cfg.DedupWindow {
		return true
	}
	s.lastQuery[normalized] = now
	return false
}
