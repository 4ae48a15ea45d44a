package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/term"
	"github.com/go-chi/chi/v5"
)

type createSessionRequest struct {
	SessionID  string `json:"session_id,omitempty"`
	Cwd        string `json:"cwd,omitempty"`
	Persistent *bool  `json:"persistent,omitempty"`
}

// CreateTerminalSession pre-creates a detached session so the UI can open a
// tab before the WebSocket connects.
func CreateTerminalSession(w http.ResponseWriter, r *http.Request) {
	if Registry == nil {
		writeError(w, http.StatusServiceUnavailable, "Terminal registry not initialized")
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	persistent := true
	if req.Persistent != nil {
		persistent = *req.Persistent
	}

	s, err := Registry.Create(req.SessionID, req.Cwd, persistent, 80, 24)
	switch {
	case errors.Is(err, term.ErrSessionExists):
		writeError(w, http.StatusConflict, "Session ID already in use")
		return
	case errors.Is(err, term.ErrSessionLimit):
		writeError(w, http.StatusTooManyRequests, "Maximum number of sessions reached")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to start shell")
		return
	}

	writeJSON(w, http.StatusCreated, s.Info())
}

// ListTerminalSessions returns all tracked sessions, oldest first.
func ListTerminalSessions(w http.ResponseWriter, r *http.Request) {
	if Registry == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": []interface{}{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": Registry.List()})
}

// GetTerminalSession returns details for one session.
func GetTerminalSession(w http.ResponseWriter, r *http.Request) {
	if Registry == nil {
		writeError(w, http.StatusServiceUnavailable, "Terminal registry not initialized")
		return
	}
	s := Registry.Get(chi.URLParam(r, "sessionId"))
	if s == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, s.Info())
}

// DeleteTerminalSession destroys a session. Destroying an unknown (or
// already destroyed) session succeeds: the operation is idempotent.
func DeleteTerminalSession(w http.ResponseWriter, r *http.Request) {
	if Registry == nil {
		writeError(w, http.StatusServiceUnavailable, "Terminal registry not initialized")
		return
	}
	Registry.Destroy(chi.URLParam(r, "sessionId"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "destroyed"})
}
