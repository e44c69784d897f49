package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"studyroom-backend/internal/models"
	"studyroom-backend/internal/repository"
)

type stubRooms map[uuid.UUID]*models.Room

func (s stubRooms) FindRoom(_ context.Context, id uuid.UUID) (*models.Room, error) {
	r, ok := s[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r, nil
}

type stubSessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.StudySession
	err      error
}

func newStubSessions(list ...*models.StudySession) *stubSessions {
	s := &stubSessions{sessions: make(map[uuid.UUID]*models.StudySession)}
	for _, sess := range list {
		s.sessions[sess.ID] = sess
	}
	return s
}

func (s *stubSessions) FindSession(_ context.Context, id uuid.UUID) (*models.StudySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *stubSessions) EndSession(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[id]
	sess.IsActive = false
	sess.EndTime = &at
	return nil
}

func (s *stubSessions) EndActiveSessionsInRoom(_ context.Context, roomID uuid.UUID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, sess := range s.sessions {
		if sess.RoomID == roomID && sess.Live() {
			end := at
			if end.Before(sess.StartTime) {
				end = sess.StartTime
			}
			sess.IsActive = false
			sess.EndTime = &end
			n++
		}
	}
	return n, nil
}

type stubBindings map[uuid.UUID]models.ConnectionBinding

func (s stubBindings) Binding(id uuid.UUID) (models.ConnectionBinding, bool) {
	b, ok := s[id]
	return b, ok
}

type stubMetricStore struct {
	mu      sync.Mutex
	metrics []*models.GazeMetric
	err     error
}

func (s *stubMetricStore) AppendMetric(ctx context.Context, m *models.GazeMetric) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	m.ID = int64(len(s.metrics) + 1)
	s.metrics = append(s.metrics, m)
	return nil
}

func (s *stubMetricStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.metrics)
}

type published struct {
	roomID uuid.UUID
	event  interface{}
}

type stubPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *stubPublisher) Publish(roomID uuid.UUID, event interface{}) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.events = append(p.events, published{roomID: roomID, event: event})
	return 1, nil
}

type stubCache struct {
	latest map[uuid.UUID]*models.GazeMetric
	err    error
}

func (c *stubCache) StoreLatest(_ context.Context, _ uuid.UUID, m *models.GazeMetric) error {
	if c.err != nil {
		return c.err
	}
	if c.latest == nil {
		c.latest = make(map[uuid.UUID]*models.GazeMetric)
	}
	c.latest[m.SessionID] = m
	return nil
}

var errBoom = errors.New("boom")
