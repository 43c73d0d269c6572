package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/boovines/Nudge/internal/bouncer"
	"github.com/boovines/Nudge/internal/models"
	"github.com/boovines/Nudge/internal/pricing"
)

// chatHandler runs one conversation turn (POST /api/chat).
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.chatHandler: processing chat request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.chatHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.chatHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	// Browser widgets start without a session; mint one so the reply carries
	// the ID the client must echo on subsequent turns.
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
		slog.Debug("Server.chatHandler: minted session ID", "session_id", sessionID)
	}

	reply, err := s.agent.Chat(r.Context(), sessionID, req.Message)
	if err != nil {
		if errors.Is(err, models.ErrEmptyMessage) || errors.Is(err, models.ErrMessageTooLong) {
			slog.Warn("Server.chatHandler: rejected message", "error", err, "session_id", sessionID)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.chatHandler: failed to process chat turn", "error", err, "session_id", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	slog.Info("Server.chatHandler: chat turn completed", "session_id", sessionID, "state", reply.State, "discount_code", reply.DiscountCode != "")
	writeJSONResponse(w, http.StatusOK, models.ChatResponse{
		Response:       reply.Text,
		SessionID:      sessionID,
		State:          reply.State,
		DiscountCode:   reply.DiscountCode,
		ConsentRequest: reply.ConsentRequest,
	})
}

// sessionsHandler routes per-session operations (GET/DELETE /api/sessions/{id}
// and GET /api/sessions/{id}/negotiation).
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.sessionsHandler: processing session request", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.TrimPrefix(path, "/")
	segments := strings.Split(path, "/")

	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Session ID is required"))
		return
	}
	sessionID := segments[0]

	if len(segments) == 1 {
		// /api/sessions/{id}
		switch r.Method {
		case http.MethodGet:
			s.getSessionHandler(w, r, sessionID)
		case http.MethodDelete:
			s.resetSessionHandler(w, r, sessionID)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	if len(segments) == 2 && segments[1] == "negotiation" {
		// /api/sessions/{id}/negotiation
		switch r.Method {
		case http.MethodGet:
			s.getNegotiationHandler(w, r, sessionID)
		default:
			w.Header().Set("Allow", http.MethodGet)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown session endpoint"))
}

// getSessionHandler handles GET /api/sessions/{id}.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	snapshot, err := s.agent.SessionSnapshot(sessionID)
	if err != nil {
		if errors.Is(err, bouncer.ErrUnknownSession) {
			slog.Warn("Server.getSessionHandler: session not found", "session_id", sessionID)
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
			return
		}
		slog.Error("Server.getSessionHandler: failed to load session", "error", err, "session_id", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	slog.Debug("Server.getSessionHandler: returning snapshot", "session_id", sessionID, "turns", snapshot.Turns)
	writeJSONResponse(w, http.StatusOK, models.Success(snapshot))
}

// getNegotiationHandler handles GET /api/sessions/{id}/negotiation.
func (s *Server) getNegotiationHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	summary, err := s.agent.NegotiationInfo(sessionID)
	if err != nil {
		if errors.Is(err, pricing.ErrSessionNotFound) {
			slog.Warn("Server.getNegotiationHandler: no negotiation for session", "session_id", sessionID)
			writeJSONResponse(w, http.StatusNotFound, models.Error("No negotiation for this session"))
			return
		}
		slog.Error("Server.getNegotiationHandler: failed to load negotiation", "error", err, "session_id", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load negotiation"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(summary))
}

// resetSessionHandler handles DELETE /api/sessions/{id}. Resetting an unknown
// session is a no-op and still succeeds.
func (s *Server) resetSessionHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	s.agent.Reset(sessionID)
	slog.Info("Server.resetSessionHandler: session reset", "session_id", sessionID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session reset", nil))
}

// healthHandler reports liveness (GET /health). The payload is flat so
// uptime probes can match on it without unwrapping an envelope.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok", "service": "nudge"})
}
