// Package mockstore holds the Mock library for every proxy: one keyed map
// per identity, oldest-first eviction once max_mock_history is exceeded,
// and an add operation that is idempotent on identity so callers never have
// to guard against duplicate-event emission themselves.
package mockstore

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"wiretap/pkg/model"
	"wiretap/pkg/pattern"
	"wiretap/pkg/wireerr"
)

const component = "mockstore"

// key is the internal identity tuple: (port, method, url) for HTTP,
// (port, "", queryNorm) for DB.
type key struct {
	port   int
	method string
	url    string
}

// Store is a thread-safe, in-process Mock library with bounded capacity.
// It is safe for concurrent use by multiple proxy goroutines.
type Store struct {
	mu       sync.RWMutex
	byKey    map[key]*model.Mock
	order    []key // insertion order, oldest first, for FIFO eviction
	capacity int
}

// New creates a Store capped at capacity entries. A non-positive capacity
// is treated as unbounded.
func New(capacity int) *Store {
	return &Store{
		byKey:    make(map[key]*model.Mock),
		capacity: capacity,
	}
}

func keyOf(m model.Mock) key {
	port, a, b := m.IdentityKey()
	return key{port: port, method: a, url: b}
}

// AddResult reports the outcome of Add.
type AddResult struct {
	Mock    model.Mock
	Created bool
}

// Add inserts m if no mock exists for its identity key, or returns the
// existing mock with Created=false otherwise (§4.4: "add is idempotent on
// identity"). On insert it assigns an ID, timestamps, and evicts the
// oldest entry if capacity is exceeded.
func (s *Store) Add(m model.Mock) AddResult {
	k := keyOf(m)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byKey[k]; ok {
		return AddResult{Mock: *existing, Created: false}
	}

	now := time.Now()
	m.ID = uuid.NewString()
	m.CreatedAt = now
	m.UpdatedAt = now

	s.byKey[k] = &m
	s.order = append(s.order, k)
	s.evictIfOverCapacity()

	return AddResult{Mock: m, Created: true}
}

func (s *Store) evictIfOverCapacity() {
	if s.capacity <= 0 {
		return
	}
	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.byKey, oldest)
	}
}

// Toggle flips Enabled for the mock identified by id, or returns a
// not-found *wireerr.Error if id is unknown.
func (s *Store) Toggle(id string) (model.Mock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, m := range s.byKey {
		if m.ID == id {
			m.Enabled = !m.Enabled
			m.UpdatedAt = time.Now()
			s.byKey[k] = m
			return *m, nil
		}
	}
	return model.Mock{}, wireerr.New(component, wireerr.ConfigInvalid, "no mock with id "+id)
}

// Update replaces the response fields of the mock identified by id,
// preserving its identity key, CreatedAt, and AutoGenerated flag.
func (s *Store) Update(id string, statusCode int, headers map[string]string, body string, delayMs int) (model.Mock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, m := range s.byKey {
		if m.ID == id {
			m.StatusCode = statusCode
			m.Headers = headers
			m.Body = body
			m.DelayMs = delayMs
			m.UpdatedAt = time.Now()
			s.byKey[k] = m
			return *m, nil
		}
	}
	return model.Mock{}, wireerr.New(component, wireerr.ConfigInvalid, "no mock with id "+id)
}

// Remove deletes the mock identified by id. A missing id is a no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, m := range s.byKey {
		if m.ID == id {
			delete(s.byKey, k)
			s.removeFromOrder(k)
			return
		}
	}
}

func (s *Store) removeFromOrder(k key) {
	for i, ok := range s.order {
		if ok == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// RemoveForPort deletes every mock belonging to port, for proxy deletion.
func (s *Store) RemoveForPort(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, m := range s.byKey {
		if m.ProxyPort == port {
			delete(s.byKey, k)
			s.removeFromOrder(k)
		}
	}
}

// ListForPort returns every mock for port, in insertion order.
func (s *Store) ListForPort(port int) []model.Mock {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Mock
	for _, k := range s.order {
		m := s.byKey[k]
		if m.ProxyPort == port {
			out = append(out, *m)
		}
	}
	return out
}

// FindForRequest implements §4.4's find_for_request: exact key first, then
// (if patternMatchingEnabled) a pattern_of / wildcard scan across mocks of
// the same method and port.
func (s *Store) FindForRequest(port int, method, url string, patternMatchingEnabled bool) (model.Mock, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.byKey[key{port: port, method: method, url: url}]; ok {
		return *m, true
	}
	if !patternMatchingEnabled {
		return model.Mock{}, false
	}

	reqPattern := pattern.Of(url)
	for _, k := range s.order {
		m := s.byKey[k]
		if m.ProxyPort != port || m.Method != method {
			continue
		}
		if pattern.Of(m.URL) == reqPattern {
			return *m, true
		}
		stored := []pattern.ExistingMock{{Method: m.Method, URL: m.URL, Port: m.ProxyPort}}
		if !pattern.ShouldMock(method, url, port, stored, true).ShouldMock {
			return *m, true
		}
	}
	return model.Mock{}, false
}

// FindForQuery looks up a kind=db mock by its normalized query text.
func (s *Store) FindForQuery(port int, queryNorm string) (model.Mock, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.byKey[key{port: port, method: "", url: queryNorm}]; ok {
		return *m, true
	}
	return model.Mock{}, false
}

// Export returns every mock currently stored, across all ports, for the
// admin API's export operation.
func (s *Store) Export() []model.Mock {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Mock, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.byKey[k])
	}
	return out
}

// Import re-adds a batch of mocks, preserving their Enabled state and
// timestamps (§4.4: "import preserves enabled and timestamps"). Mocks whose
// identity already exists are left untouched; id collisions are resolved by
// re-issuing an id.
func (s *Store) Import(mocks []model.Mock) []AddResult {
	results := make([]AddResult, 0, len(mocks))
	for _, m := range mocks {
		k := keyOf(m)

		s.mu.Lock()
		if existing, ok := s.byKey[k]; ok {
			results = append(results, AddResult{Mock: *existing, Created: false})
			s.mu.Unlock()
			continue
		}
		idTaken := m.ID == ""
		for _, other := range s.byKey {
			if other.ID == m.ID {
				idTaken = true
				break
			}
		}
		if idTaken {
			m.ID = uuid.NewString()
		}
		s.byKey[k] = &m
		s.order = append(s.order, k)
		s.evictIfOverCapacity()
		results = append(results, AddResult{Mock: m, Created: true})
		s.mu.Unlock()
	}
	return results
}

// Len reports the total number of mocks currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
