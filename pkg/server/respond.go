package server

import (
	"encoding/json"
	"net/http"

	"wiretap/pkg/wireerr"
)

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOK writes a 200 response carrying v, or a bare wireerr.Ok result if
// v is nil.
func writeOK(w http.ResponseWriter, v any) {
	if v == nil {
		writeJSON(w, http.StatusOK, wireerr.Ok("ok"))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// writeError maps err's wireerr.Kind to an HTTP status and writes a
// wireerr.Result body. Every admin handler funnels its errors through here
// so a Go error never crosses the external-interface boundary untranslated.
func writeError(w http.ResponseWriter, err error) {
	result := wireerr.FromError(err)
	writeJSON(w, statusForKind(result.Kind), result)
}

func statusForKind(k wireerr.Kind) int {
	switch k {
	case wireerr.ConfigInvalid, wireerr.DecodeError, wireerr.MockIncompatible:
		return http.StatusBadRequest
	case wireerr.PortInUse:
		return http.StatusConflict
	case wireerr.TargetUnreachable, wireerr.UpstreamIO:
		return http.StatusBadGateway
	case wireerr.Timeout:
		return http.StatusGatewayTimeout
	case wireerr.Cancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return wireerr.Wrap(component, wireerr.DecodeError, "malformed request body", err)
	}
	return nil
}
