package server

import (
	"net/http"
	"strconv"

	"wiretap/pkg/model"
	"wiretap/pkg/persistence"
	"wiretap/pkg/wireerr"
)

// persistMocksForPort saves the current mock set for port under the
// persistence key of whichever kind owns that port. Best effort: a
// proxy-less port (already deleted) is simply not persisted.
func (s *Server) persistMocksForPort(port int) {
	for _, cfg := range s.registry.List() {
		if cfg.Port == port {
			_ = s.store.Save(persistence.MocksKey(string(cfg.Kind), port), s.mocks.ListForPort(port))
			return
		}
	}
}

func (s *Server) handleListMocks(w http.ResponseWriter, r *http.Request) {
	port, err := strconv.Atoi(r.URL.Query().Get("port"))
	if err != nil {
		writeError(w, wireerr.New(component, wireerr.ConfigInvalid, "port query parameter is required"))
		return
	}
	writeOK(w, s.mocks.ListForPort(port))
}

func (s *Server) handleAddMock(w http.ResponseWriter, r *http.Request) {
	var m model.Mock
	if err := decodeJSON(r, &m); err != nil {
		writeError(w, err)
		return
	}

	result := s.mocks.Add(m)
	s.persistMocksForPort(m.ProxyPort)

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

type updateMockRequest struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	DelayMs    int               `json:"delay_ms,omitempty"`
}

func (s *Server) handleUpdateMock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req updateMockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	updated, err := s.mocks.Update(id, req.StatusCode, req.Headers, req.Body, req.DelayMs)
	if err != nil {
		writeError(w, err)
		return
	}
	s.persistMocksForPort(updated.ProxyPort)
	writeOK(w, updated)
}

func (s *Server) handleRemoveMock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var port int
	for _, m := range s.mocks.Export() {
		if m.ID == id {
			port = m.ProxyPort
			break
		}
	}

	s.mocks.Remove(id)
	if port != 0 {
		s.persistMocksForPort(port)
	}
	writeOK(w, wireerr.Ok("mock removed"))
}

func (s *Server) handleToggleMock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	toggled, err := s.mocks.Toggle(id)
	if err != nil {
		writeError(w, err)
		return
	}
	s.persistMocksForPort(toggled.ProxyPort)
	writeOK(w, toggled)
}

func (s *Server) handleExportMocks(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.mocks.Export())
}

func (s *Server) handleImportMocks(w http.ResponseWriter, r *http.Request) {
	var mocks []model.Mock
	if err := decodeJSON(r, &mocks); err != nil {
		writeError(w, err)
		return
	}

	results := s.mocks.Import(mocks)

	touched := make(map[int]struct{})
	for _, res := range results {
		touched[res.Mock.ProxyPort] = struct{}{}
	}
	for port := range touched {
		s.persistMocksForPort(port)
	}

	writeOK(w, results)
}
