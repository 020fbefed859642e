package server

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"wiretap/pkg/model"
	"wiretap/pkg/wireerr"
)

func queryKindPort(r *http.Request) (model.ProxyKind, int, error) {
	kind := model.ProxyKind(r.URL.Query().Get("kind"))
	switch kind {
	case model.KindNormal, model.KindOutgoing, model.KindDB:
	default:
		return "", 0, wireerr.New(component, wireerr.ConfigInvalid, "unknown proxy kind: "+string(kind))
	}

	port, err := strconv.Atoi(r.URL.Query().Get("port"))
	if err != nil {
		return "", 0, wireerr.New(component, wireerr.ConfigInvalid, "port query parameter is required")
	}
	return kind, port, nil
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	kind, port, err := queryKindPort(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, ok := s.registry.Recorder(kind, port)
	if !ok {
		writeError(w, wireerr.New(component, wireerr.ConfigInvalid, "proxy is not running"))
		return
	}
	writeOK(w, rec.List())
}

func (s *Server) handleClearRequests(w http.ResponseWriter, r *http.Request) {
	kind, port, err := queryKindPort(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, ok := s.registry.Recorder(kind, port)
	if !ok {
		writeError(w, wireerr.New(component, wireerr.ConfigInvalid, "proxy is not running"))
		return
	}
	rec.Clear()
	writeOK(w, wireerr.Ok("request history cleared"))
}

// sendViaRequest is the wire shape for POST /api/requests/send_via: "inject
// a synthetic client call into the proxy's pipeline" (§6).
type sendViaRequest struct {
	Kind    model.ProxyKind   `json:"kind"`
	Port    int               `json:"port"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

type sendViaResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
}

// handleSendVia drives req.Method/req.URL through the already-listening
// proxy on 127.0.0.1:port, exactly as any other client would, so the call
// passes through recording, pattern matching, and mock lookup like a normal
// request. kind=db proxies speak a non-HTTP wire protocol and cannot be
// driven this way.
func (s *Server) handleSendVia(w http.ResponseWriter, r *http.Request) {
	var req sendViaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.Kind == model.KindDB {
		writeError(w, wireerr.New(component, wireerr.ConfigInvalid, "send_via does not support kind=db proxies"))
		return
	}

	if _, _, ok := s.registry.Get(req.Kind, req.Port); !ok {
		writeError(w, wireerr.New(component, wireerr.ConfigInvalid, "no such proxy"))
		return
	}

	target := req.URL
	if len(target) == 0 || target[0] == '/' {
		target = "http://127.0.0.1:" + strconv.Itoa(req.Port) + target
	}

	httpReq, err := http.NewRequestWithContext(r.Context(), req.Method, target, bytes.NewReader([]byte(req.Body)))
	if err != nil {
		writeError(w, wireerr.Wrap(component, wireerr.ConfigInvalid, "invalid send_via request", err))
		return
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		writeError(w, wireerr.Wrap(component, wireerr.UpstreamIO, "send_via request failed", err))
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(w, wireerr.Wrap(component, wireerr.UpstreamIO, "failed to read send_via response", err))
		return
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	writeOK(w, sendViaResponse{StatusCode: resp.StatusCode, Headers: headers, Body: string(body)})
}
