package server

import (
	"net/http"
	"time"

	"wiretap/pkg/wireerr"
)

type testingModeRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleTestingMode(w http.ResponseWriter, r *http.Request) {
	var req testingModeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.registry.SetTestingMode(req.Enabled)
	writeOK(w, wireerr.Ok("testing mode updated"))
}

type licenseResponse struct {
	Licensed bool `json:"licensed"`
}

// handleLicenseGate consumes the external licensing collaborator as a
// boolean gate only (§6): no entitlement details cross this boundary. With
// no licensing API configured, the gate is open — this build has no
// license-gated features.
func (s *Server) handleLicenseGate(w http.ResponseWriter, r *http.Request) {
	if s.licensing.APIURL == "" {
		writeOK(w, licenseResponse{Licensed: true})
		return
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(s.licensing.APIURL)
	if err != nil {
		writeOK(w, licenseResponse{Licensed: false})
		return
	}
	defer resp.Body.Close()

	writeOK(w, licenseResponse{Licensed: resp.StatusCode >= 200 && resp.StatusCode < 300})
}
