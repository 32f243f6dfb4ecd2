// internal/server/handlers.go
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "geodialogue/internal/common/errors"
	dialoguemanager "geodialogue/internal/dialogue/dialogue-manager"
)

const maxChatBody = 1 << 20

type chatRequest struct {
	SessionID string    `json:"sessionId"`
	Utterance string    `json:"utterance"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody))
	if err := dec.Decode(&req); err != nil {
		apperrors.WriteHTTPError(w, apperrors.NewInvalidRequestError("body must be a JSON object: "+err.Error()))
		return
	}

	reply, err := s.dialogue.HandleTurn(r.Context(), dialoguemanager.Turn{
		SessionID: req.SessionID,
		Utterance: req.Utterance,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		s.logger.Error("chat turn failed", map[string]interface{}{
			"session_id": req.SessionID,
			"error":      err.Error(),
		})
		apperrors.WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	state, err := s.dialogue.Session(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		apperrors.WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.dialogue.Abandon(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		apperrors.WriteHTTPError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type analysisDescriptor struct {
	Kind            string                 `json:"kind"`
	DisplayName     string                 `json:"displayName"`
	Description     string                 `json:"description"`
	ParameterSchema map[string]interface{} `json:"parameterSchema"`
}

func (s *Server) handleAnalyses(w http.ResponseWriter, r *http.Request) {
	schemas := s.registry.Schemas()
	out := make([]analysisDescriptor, 0, len(schemas))
	for _, sc := range schemas {
		out = append(out, analysisDescriptor{
			Kind:            string(sc.Kind),
			DisplayName:     sc.DisplayName,
			Description:     sc.Description,
			ParameterSchema: sc.JSONSchema(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":  s.registry.Version(),
		"analyses": out,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("session store not ready", map[string]interface{}{"error": err.Error()})
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
