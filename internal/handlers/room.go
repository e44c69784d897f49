package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"studyroom-backend/internal/middleware"
	"studyroom-backend/internal/models"
	"studyroom-backend/internal/repository"
)

type RoomStore interface {
	Create(ctx context.Context, room *models.Room) error
	FindRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetByCode(ctx context.Context, code string) (*models.Room, error)
	ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]*models.Room, error)
	ListActive(ctx context.Context) ([]*models.Room, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type RoomSessions interface {
	Create(ctx context.Context, s *models.StudySession) error
	ListActiveByRoom(ctx context.Context, roomID uuid.UUID) ([]*models.StudySession, error)
}

type SessionCloser interface {
	ForceEndSessions(ctx context.Context, roomID uuid.UUID) (int64, error)
}

type LiveSnapshots interface {
	Latest(ctx context.Context, roomID uuid.UUID) (map[uuid.UUID]*models.GazeMetric, error)
	Clear(ctx context.Context, roomID uuid.UUID) error
}

type RoomHandler struct {
	rooms    RoomStore
	sessions RoomSessions
	closer   SessionCloser
	live     LiveSnapshots
	log      *zap.Logger
}

func NewRoomHandler(rooms RoomStore, sessions RoomSessions, closer SessionCloser, live LiveSnapshots, log *zap.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, sessions: sessions, closer: closer, live: live, log: log}
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	fields := make(map[string]string)
	if strings.TrimSpace(req.Title) == "" {
		fields["title"] = "Title is required"
	}
	if strings.TrimSpace(req.Subject) == "" {
		fields["subject"] = "Subject is required"
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	room := &models.Room{
		TeacherID:   middleware.GetUserID(r.Context()),
		Title:       strings.TrimSpace(req.Title),
		Subject:     strings.TrimSpace(req.Subject),
		Description: req.Description,
	}
	if err := h.rooms.Create(r.Context(), room); err != nil {
		h.log.Error("create room", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create room", r))
		return
	}

	writeJSON(w, http.StatusCreated, room)
}

// List returns a teacher's own rooms, or every active room for students.
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		rooms []*models.Room
		err   error
	)
	if middleware.GetRole(r.Context()) == models.RoleTeacher {
		rooms, err = h.rooms.ListByTeacher(r.Context(), middleware.GetUserID(r.Context()))
	} else {
		rooms, err = h.rooms.ListActive(r.Context())
	}
	if err != nil {
		h.log.Error("list rooms", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list rooms", r))
		return
	}
	if rooms == nil {
		rooms = []*models.Room{}
	}

	writeJSON(w, http.StatusOK, rooms)
}

// Delete ends every live session of the room before removing it.
func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	room, ok := h.ownedRoom(w, r)
	if !ok {
		return
	}

	ended, err := h.closer.ForceEndSessions(r.Context(), room.ID)
	if err != nil {
		h.log.Error("end room sessions", zap.String("room_id", room.ID.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to end room sessions", r))
		return
	}

	if err := h.rooms.Delete(r.Context(), room.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.log.Error("delete room", zap.String("room_id", room.ID.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete room", r))
		return
	}

	if err := h.live.Clear(r.Context(), room.ID); err != nil {
		h.log.Warn("clear live snapshot", zap.String("room_id", room.ID.String()), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "Room deleted",
		"sessions_ended": ended,
	})
}

// Join opens a new study session for the calling student in the room with
// the given code.
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.GetByCode(r.Context(), models.NormalizeRoomCode(chi.URLParam(r, "code")))
	if err != nil || !room.IsActive {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			h.log.Error("find room by code", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to join room", r))
			return
		}
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Room not found", r))
		return
	}

	session := &models.StudySession{
		RoomID:    room.ID,
		StudentID: middleware.GetUserID(r.Context()),
	}
	if err := h.sessions.Create(r.Context(), session); err != nil {
		h.log.Error("create session", zap.String("room_id", room.ID.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to join room", r))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":    "Joined room successfully",
		"session_id": session.ID,
		"room_id":    room.ID,
		"session":    session,
	})
}

// Sessions lists the live sessions of a room.
func (h *RoomHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	room, ok := h.visibleRoom(w, r)
	if !ok {
		return
	}

	sessions, err := h.sessions.ListActiveByRoom(r.Context(), room.ID)
	if err != nil {
		h.log.Error("list room sessions", zap.String("room_id", room.ID.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list sessions", r))
		return
	}
	if sessions == nil {
		sessions = []*models.StudySession{}
	}

	writeJSON(w, http.StatusOK, sessions)
}

// Live lists the live sessions of a room together with the latest cached
// sample of each, so a dashboard can render before the next broadcast.
func (h *RoomHandler) Live(w http.ResponseWriter, r *http.Request) {
	room, ok := h.ownedRoom(w, r)
	if !ok {
		return
	}

	sessions, err := h.sessions.ListActiveByRoom(r.Context(), room.ID)
	if err != nil {
		h.log.Error("list room sessions", zap.String("room_id", room.ID.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list sessions", r))
		return
	}

	latest, err := h.live.Latest(r.Context(), room.ID)
	if err != nil {
		h.log.Warn("read live snapshot", zap.String("room_id", room.ID.String()), zap.Error(err))
	}

	out := make([]models.LiveSession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, models.LiveSession{Session: s, Latest: latest[s.ID]})
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *RoomHandler) findRoom(w http.ResponseWriter, r *http.Request) (*models.Room, bool) {
	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid room ID", r))
		return nil, false
	}

	room, err := h.rooms.FindRoom(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Room not found", r))
			return nil, false
		}
		h.log.Error("find room", zap.String("room_id", roomID.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load room", r))
		return nil, false
	}
	return room, true
}

// ownedRoom loads the room and requires the caller to be its teacher.
func (h *RoomHandler) ownedRoom(w http.ResponseWriter, r *http.Request) (*models.Room, bool) {
	room, ok := h.findRoom(w, r)
	if !ok {
		return nil, false
	}
	if room.TeacherID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return nil, false
	}
	return room, true
}

// visibleRoom lets students through and holds teachers to their own rooms.
func (h *RoomHandler) visibleRoom(w http.ResponseWriter, r *http.Request) (*models.Room, bool) {
	room, ok := h.findRoom(w, r)
	if !ok {
		return nil, false
	}
	if middleware.GetRole(r.Context()) == models.RoleTeacher && room.TeacherID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return nil, false
	}
	return room, true
}
