package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"wiretap/pkg/wireerr"
)

// handleEvents streams one event-bus channel to the client as Server-Sent
// Events until the client disconnects. This is the transport a UI shell
// attaches with to receive proxy-*, mock-*, and per-record events (§4.10).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		writeError(w, wireerr.New(component, wireerr.ConfigInvalid, "channel query parameter is required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, wireerr.New(component, wireerr.Internal, "streaming unsupported by this response writer"))
		return
	}

	sub := s.bus.Subscribe(channel)
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s\ndata: %s\n\n", ev.ID, payload)
			flusher.Flush()
		}
	}
}
