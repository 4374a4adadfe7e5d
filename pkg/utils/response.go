package utils

import (
	"encoding/json"
	"net/http"

	"github.com/zhouzirui/care-portal/backend/pkg/logging"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// RespondJSON writes payload as JSON with the given status.
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Default().Warn("failed to encode response", "error", err)
	}
}

// RespondError writes {"error": message}.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorBody{Error: message})
}

// RespondErrorKind writes {"error": message, "kind": kind}.
func RespondErrorKind(w http.ResponseWriter, status int, message, kind string) {
	RespondJSON(w, status, ErrorBody{Error: message, Kind: kind})
}
