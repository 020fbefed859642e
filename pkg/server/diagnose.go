package server

import (
	"net/http"
	"time"

	"wiretap/pkg/model"
	"wiretap/pkg/probe"
)

// proxyDiagnosis is one proxy's entry in the diagnose() report.
type proxyDiagnosis struct {
	Kind            model.ProxyKind `json:"kind"`
	Port            int             `json:"port"`
	Name            string          `json:"name"`
	IsRunning       bool            `json:"is_running"`
	PortBound       bool            `json:"port_bound"`
	TargetReachable *bool           `json:"target_reachable,omitempty"`
}

type diagnoseResponse struct {
	Proxies []proxyDiagnosis `json:"proxies"`
}

// handleDiagnose runs a live probe over every registered proxy, independent
// of its cached RuntimeProxy.IsRunning flag, so a stuck or crashed listener
// shows up as a mismatch between IsRunning and PortBound.
func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	configs := s.registry.List()
	out := make([]proxyDiagnosis, 0, len(configs))

	for _, cfg := range configs {
		_, runtime, _ := s.registry.Get(cfg.Kind, cfg.Port)

		d := proxyDiagnosis{
			Kind:      cfg.Kind,
			Port:      cfg.Port,
			Name:      cfg.Name,
			IsRunning: runtime.IsRunning,
			PortBound: probe.IsBound(cfg.Port, 2*time.Second),
		}
		if cfg.TargetHost != "" && cfg.TargetPort != 0 {
			reachable := probe.IsReachable(cfg.TargetHost, cfg.TargetPort, 2*time.Second)
			d.TargetReachable = &reachable
		}
		out = append(out, d)
	}

	writeOK(w, diagnoseResponse{Proxies: out})
}
