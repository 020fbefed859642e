package server

import (
	"net/http"
	"strconv"
	"time"

	"wiretap/pkg/config"
	"wiretap/pkg/model"
	"wiretap/pkg/probe"
	"wiretap/pkg/wireerr"
)

func pathKindPort(r *http.Request) (model.ProxyKind, int, error) {
	kind := model.ProxyKind(r.PathValue("kind"))
	switch kind {
	case model.KindNormal, model.KindOutgoing, model.KindDB:
	default:
		return "", 0, wireerr.New(component, wireerr.ConfigInvalid, "unknown proxy kind: "+string(kind))
	}

	port, err := strconv.Atoi(r.PathValue("port"))
	if err != nil {
		return "", 0, wireerr.New(component, wireerr.ConfigInvalid, "port must be numeric")
	}
	return kind, port, nil
}

func (s *Server) handleListProxies(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.registry.List())
}

// createProxyRequest is the wire shape for POST /api/proxies.
type createProxyRequest struct {
	Kind       model.ProxyKind  `json:"kind"`
	Port       int              `json:"port"`
	Name       string           `json:"name"`
	TargetHost string           `json:"target_host,omitempty"`
	TargetPort int              `json:"target_port,omitempty"`
	TargetURL  string           `json:"target_url,omitempty"`
	Protocol   model.DBProtocol `json:"protocol,omitempty"`
	AutoStart  bool             `json:"auto_start"`
	Disabled   bool             `json:"disabled"`
}

func (s *Server) handleCreateProxy(w http.ResponseWriter, r *http.Request) {
	var req createProxyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := config.ValidateProxyConfig(string(req.Kind), req.Port, req.Name, req.TargetHost, req.TargetPort, req.TargetURL); err != nil {
		writeError(w, wireerr.Wrap(component, wireerr.ConfigInvalid, err.Error(), err))
		return
	}

	cfg := model.ProxyConfig{
		Kind:       req.Kind,
		Port:       req.Port,
		Name:       req.Name,
		TargetHost: req.TargetHost,
		TargetPort: req.TargetPort,
		TargetURL:  req.TargetURL,
		Protocol:   req.Protocol,
		AutoStart:  req.AutoStart,
		Disabled:   req.Disabled,
	}

	created, err := s.registry.Create(r.Context(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateProxy(w http.ResponseWriter, r *http.Request) {
	kind, port, err := pathKindPort(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req createProxyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Kind == "" {
		req.Kind = kind
	}

	next := model.ProxyConfig{
		Kind:       req.Kind,
		Port:       req.Port,
		Name:       req.Name,
		TargetHost: req.TargetHost,
		TargetPort: req.TargetPort,
		TargetURL:  req.TargetURL,
		Protocol:   req.Protocol,
		AutoStart:  req.AutoStart,
		Disabled:   req.Disabled,
	}
	if next.Port == 0 {
		next.Port = port
	}

	updated, err := s.registry.Update(r.Context(), kind, port, next)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, updated)
}

func (s *Server) handleDeleteProxy(w http.ResponseWriter, r *http.Request) {
	kind, port, err := pathKindPort(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.registry.Delete(r.Context(), kind, port); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, wireerr.Ok("proxy deleted"))
}

func (s *Server) handleStartProxy(w http.ResponseWriter, r *http.Request) {
	kind, port, err := pathKindPort(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.registry.Start(r.Context(), kind, port); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, wireerr.Ok("proxy started"))
}

func (s *Server) handleStopProxy(w http.ResponseWriter, r *http.Request) {
	kind, port, err := pathKindPort(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.registry.Stop(r.Context(), kind, port); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, wireerr.Ok("proxy stopped"))
}

func (s *Server) handleEnableProxy(w http.ResponseWriter, r *http.Request) {
	kind, port, err := pathKindPort(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.registry.Enable(r.Context(), kind, port); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, wireerr.Ok("proxy enabled"))
}

func (s *Server) handleDisableProxy(w http.ResponseWriter, r *http.Request) {
	kind, port, err := pathKindPort(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.registry.Disable(r.Context(), kind, port); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, wireerr.Ok("proxy disabled"))
}

// handleForceStartProxy re-attempts Start even after a prior start attempt
// failed (e.g. the target was briefly unreachable). Start is already
// idempotent against a running proxy, so force_start is the same operation
// offered under a distinct name for a UI "retry" action.
func (s *Server) handleForceStartProxy(w http.ResponseWriter, r *http.Request) {
	s.handleStartProxy(w, r)
}

// verifyStatusResponse is the live, re-probed status of one proxy, as
// opposed to the cached IsRunning flag in model.RuntimeProxy.
type verifyStatusResponse struct {
	Port             int  `json:"port"`
	PortBound        bool `json:"port_bound"`
	TargetReachable  *bool `json:"target_reachable,omitempty"`
}

func (s *Server) handleVerifyStatus(w http.ResponseWriter, r *http.Request) {
	kind, port, err := pathKindPort(r)
	if err != nil {
		writeError(w, err)
		return
	}

	cfg, _, ok := s.registry.Get(kind, port)
	if !ok {
		writeError(w, wireerr.New(component, wireerr.ConfigInvalid, "no such proxy"))
		return
	}

	resp := verifyStatusResponse{Port: port, PortBound: probe.IsBound(port, 2*time.Second)}
	if cfg.TargetHost != "" && cfg.TargetPort != 0 {
		reachable := probe.IsReachable(cfg.TargetHost, cfg.TargetPort, 2*time.Second)
		resp.TargetReachable = &reachable
	}
	writeOK(w, resp)
}

func (s *Server) handleRestartAll(w http.ResponseWriter, r *http.Request) {
	errs := s.registry.RestartAll(r.Context())
	results := make([]wireerr.Result, 0, len(errs))
	for _, e := range errs {
		results = append(results, wireerr.FromError(e))
	}
	writeOK(w, map[string]any{"errors": results})
}
