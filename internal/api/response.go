package api

import (
	"net/http"

	json "github.com/goccy/go-json"
)

// errorResponse is the flat error envelope every non-2xx JSON reply uses.
type errorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg, Status: "error"})
}
