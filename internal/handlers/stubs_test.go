package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studyroom-backend/internal/middleware"
	"studyroom-backend/internal/models"
	"studyroom-backend/internal/repository"
)

type stubRoomStore struct {
	rooms   map[uuid.UUID]*models.Room
	deleted []uuid.UUID
}

func newStubRoomStore(rooms ...*models.Room) *stubRoomStore {
	s := &stubRoomStore{rooms: make(map[uuid.UUID]*models.Room)}
	for _, r := range rooms {
		s.rooms[r.ID] = r
	}
	return s
}

func (s *stubRoomStore) Create(ctx context.Context, room *models.Room) error {
	room.ID = uuid.New()
	room.RoomCode = "AB12CD34"
	room.IsActive = true
	room.CreatedAt = time.Now()
	s.rooms[room.ID] = room
	return nil
}

func (s *stubRoomStore) FindRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	r, ok := s.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r, nil
}

func (s *stubRoomStore) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	for _, r := range s.rooms {
		if r.RoomCode == code {
			return r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubRoomStore) ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]*models.Room, error) {
	var out []*models.Room
	for _, r := range s.rooms {
		if r.TeacherID == teacherID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubRoomStore) ListActive(ctx context.Context) ([]*models.Room, error) {
	var out []*models.Room
	for _, r := range s.rooms {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubRoomStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := s.rooms[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.rooms, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type stubSessionRepo struct {
	sessions map[uuid.UUID]*models.StudySession
	consent  map[uuid.UUID]bool
}

func newStubSessionRepo(sessions ...*models.StudySession) *stubSessionRepo {
	s := &stubSessionRepo{
		sessions: make(map[uuid.UUID]*models.StudySession),
		consent:  make(map[uuid.UUID]bool),
	}
	for _, sess := range sessions {
		s.sessions[sess.ID] = sess
	}
	return s
}

func (s *stubSessionRepo) Create(ctx context.Context, sess *models.StudySession) error {
	sess.ID = uuid.New()
	sess.IsActive = true
	sess.StartTime = time.Now()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *stubSessionRepo) ListActiveByRoom(ctx context.Context, roomID uuid.UUID) ([]*models.StudySession, error) {
	var out []*models.StudySession
	for _, sess := range s.sessions {
		if sess.RoomID == roomID && sess.Live() {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *stubSessionRepo) FindSession(ctx context.Context, id uuid.UUID) (*models.StudySession, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return sess, nil
}

func (s *stubSessionRepo) SetConsent(ctx context.Context, id uuid.UUID, consent bool) error {
	s.consent[id] = consent
	return nil
}

type stubCloser struct {
	rooms []uuid.UUID
	ended int64
}

func (s *stubCloser) ForceEndSessions(ctx context.Context, roomID uuid.UUID) (int64, error) {
	s.rooms = append(s.rooms, roomID)
	return s.ended, nil
}

type stubLive struct {
	latest  map[uuid.UUID]*models.GazeMetric
	cleared []uuid.UUID
	err     error
}

func (s *stubLive) Latest(ctx context.Context, roomID uuid.UUID) (map[uuid.UUID]*models.GazeMetric, error) {
	return s.latest, s.err
}

func (s *stubLive) Clear(ctx context.Context, roomID uuid.UUID) error {
	s.cleared = append(s.cleared, roomID)
	return s.err
}

type stubMetrics struct {
	list      []*models.GazeMetric
	lastLimit int
}

func (s *stubMetrics) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.GazeMetric, error) {
	s.lastLimit = limit
	return s.list, nil
}

// asUser attaches chi URL params and a verified identity to the request.
func asUser(req *http.Request, identity models.Identity, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	return req.WithContext(middleware.WithIdentity(ctx, identity))
}
