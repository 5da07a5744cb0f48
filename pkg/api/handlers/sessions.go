package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/iec104d/pkg/adapter"
)

// SessionsHandler lists live IEC 104 sessions.
type SessionsHandler struct {
	source SessionSource
}

// NewSessionsHandler creates a sessions handler. A nil source lists nothing.
func NewSessionsHandler(source SessionSource) *SessionsHandler {
	return &SessionsHandler{source: source}
}

// List handles GET /sessions.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := []adapter.ConnInfo{}
	if h.source != nil {
		sessions = append(sessions, h.source.Sessions()...)
	}
	writeJSON(w, http.StatusOK, okResponse(sessions))
}

// Get handles GET /sessions/{id}.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid session id"))
		return
	}

	if h.source != nil {
		for _, s := range h.source.Sessions() {
			if s.ID == id {
				writeJSON(w, http.StatusOK, okResponse(s))
				return
			}
		}
	}
	writeJSON(w, http.StatusNotFound, errorResponse("session not found"))
}
