package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"studyroom-backend/internal/middleware"
	"studyroom-backend/internal/models"
	"studyroom-backend/internal/repository"
)

const (
	defaultMetricsLimit = 1000
	maxMetricsLimit     = 5000
)

type SessionStore interface {
	FindSession(ctx context.Context, id uuid.UUID) (*models.StudySession, error)
	SetConsent(ctx context.Context, id uuid.UUID, consent bool) error
}

type SessionEnder interface {
	EndSession(ctx context.Context, sessionID, requesterID uuid.UUID) error
}

type RoomLookup interface {
	FindRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
}

type MetricLister interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.GazeMetric, error)
}

type StudySessionHandler struct {
	sessions SessionStore
	ender    SessionEnder
	rooms    RoomLookup
	metrics  MetricLister
	log      *zap.Logger
}

func NewStudySessionHandler(sessions SessionStore, ender SessionEnder, rooms RoomLookup, metrics MetricLister, log *zap.Logger) *StudySessionHandler {
	return &StudySessionHandler{sessions: sessions, ender: ender, rooms: rooms, metrics: metrics, log: log}
}

func (h *StudySessionHandler) End(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	if err := h.ender.EndSession(r.Context(), sessionID, middleware.GetUserID(r.Context())); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session ended successfully"})
}

func (h *StudySessionHandler) Consent(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	var req models.ConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	session, err := h.sessions.FindSession(r.Context(), sessionID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.log.Error("find session", zap.String("session_id", sessionID.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to record consent", r))
		return
	}
	if err != nil || session.StudentID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	if err := h.sessions.SetConsent(r.Context(), sessionID, req.Consented); err != nil {
		h.log.Error("set consent", zap.String("session_id", sessionID.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to record consent", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Consent recorded"})
}

// Metrics returns a session's samples in arrival order. Students see their
// own sessions, teachers the sessions of rooms they own.
func (h *StudySessionHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	limit := defaultMetricsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "limit must be a positive integer", r))
			return
		}
		if n > maxMetricsLimit {
			n = maxMetricsLimit
		}
		limit = n
	}

	session, err := h.sessions.FindSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Session not found", r))
			return
		}
		h.log.Error("find session", zap.String("session_id", sessionID.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load session", r))
		return
	}

	if !h.canReadMetrics(r, session) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	list, err := h.metrics.ListBySession(r.Context(), sessionID, limit)
	if err != nil {
		h.log.Error("list metrics", zap.String("session_id", sessionID.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list metrics", r))
		return
	}
	if list == nil {
		list = []*models.GazeMetric{}
	}

	writeJSON(w, http.StatusOK, list)
}

func (h *StudySessionHandler) canReadMetrics(r *http.Request, s *models.StudySession) bool {
	userID := middleware.GetUserID(r.Context())
	switch middleware.GetRole(r.Context()) {
	case models.RoleStudent:
		return s.StudentID == userID
	case models.RoleTeacher:
		room, err := h.rooms.FindRoom(r.Context(), s.RoomID)
		return err == nil && room.TeacherID == userID
	}
	return false
}
