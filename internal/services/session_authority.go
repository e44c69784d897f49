package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"studyroom-backend/internal/models"
	"studyroom-backend/internal/repository"
)

type RoomFinder interface {
	FindRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
}

type SessionStore interface {
	FindSession(ctx context.Context, id uuid.UUID) (*models.StudySession, error)
	EndSession(ctx context.Context, id uuid.UUID, at time.Time) error
	EndActiveSessionsInRoom(ctx context.Context, roomID uuid.UUID, at time.Time) (int64, error)
}

// SessionAuthority decides who may attach to a room or session and owns the
// session end transitions. Authorization checks are read-only.
type SessionAuthority struct {
	rooms            RoomFinder
	sessions         SessionStore
	enforceOwnership bool
	now              func() time.Time
}

// NewSessionAuthority builds the authority. With enforceOwnership set, teachers
// may only monitor their own rooms and students may only stream their own
// sessions; without it only room/session existence and liveness are checked.
func NewSessionAuthority(rooms RoomFinder, sessions SessionStore, enforceOwnership bool) *SessionAuthority {
	return &SessionAuthority{
		rooms:            rooms,
		sessions:         sessions,
		enforceOwnership: enforceOwnership,
		now:              time.Now,
	}
}

// AuthorizeJoin checks an explicit join request on the multiplexed transport.
func (a *SessionAuthority) AuthorizeJoin(ctx context.Context, who models.Identity, roomID, sessionID uuid.UUID) (models.ConnectionBinding, error) {
	switch who.Role {
	case models.RoleStudent:
		s, err := a.liveStudentSession(ctx, who, sessionID)
		if err != nil {
			return models.ConnectionBinding{}, err
		}
		if s.RoomID != roomID {
			return models.ConnectionBinding{}, ErrInvalidSession
		}
		return models.ConnectionBinding{RoomID: s.RoomID, SessionID: s.ID, Role: models.RoleStudent}, nil

	case models.RoleTeacher:
		if roomID == uuid.Nil {
			return models.ConnectionBinding{}, ErrInvalidSession
		}
		room, err := a.rooms.FindRoom(ctx, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return models.ConnectionBinding{}, ErrInvalidSession
			}
			return models.ConnectionBinding{}, realtimeErr(ErrStorage, err)
		}
		if a.enforceOwnership && room.TeacherID != who.UserID {
			return models.ConnectionBinding{}, ErrUnauthorized
		}
		return models.ConnectionBinding{RoomID: room.ID, Role: models.RoleTeacher}, nil
	}

	return models.ConnectionBinding{}, ErrUnauthorized
}

// AuthorizeSession is the join performed by the single-session transport,
// where the session id is part of the address and the room is implied by it.
func (a *SessionAuthority) AuthorizeSession(ctx context.Context, who models.Identity, sessionID uuid.UUID) (models.ConnectionBinding, error) {
	if who.Role != models.RoleStudent {
		return models.ConnectionBinding{}, ErrUnauthorized
	}
	s, err := a.liveStudentSession(ctx, who, sessionID)
	if err != nil {
		return models.ConnectionBinding{}, err
	}
	return models.ConnectionBinding{RoomID: s.RoomID, SessionID: s.ID, Role: models.RoleStudent}, nil
}

func (a *SessionAuthority) liveStudentSession(ctx context.Context, who models.Identity, sessionID uuid.UUID) (*models.StudySession, error) {
	if sessionID == uuid.Nil {
		return nil, ErrInvalidSession
	}
	s, err := a.sessions.FindSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, realtimeErr(ErrStorage, err)
	}
	if !s.Live() {
		return nil, ErrInvalidSession
	}
	if a.enforceOwnership && s.StudentID != who.UserID {
		return nil, ErrUnauthorized
	}
	return s, nil
}

// CheckLive re-validates, per inbound frame, that the session is still live
// and still belongs to the room the connection joined.
func (a *SessionAuthority) CheckLive(ctx context.Context, sessionID, roomID uuid.UUID) error {
	s, err := a.sessions.FindSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionEnded
		}
		return realtimeErr(ErrStorage, err)
	}
	if !s.Live() || s.RoomID != roomID {
		return ErrSessionEnded
	}
	return nil
}

// EndSession lets a student end their own session. Ending an already ended
// session succeeds without changing it.
func (a *SessionAuthority) EndSession(ctx context.Context, sessionID, requesterID uuid.UUID) error {
	s, err := a.sessions.FindSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Message: "Session not found"}
		}
		return err
	}
	if s.StudentID != requesterID {
		return &ForbiddenError{Message: "Access denied"}
	}
	if !s.Live() {
		return nil
	}
	return a.sessions.EndSession(ctx, sessionID, a.endTime(s.StartTime))
}

// ForceEndSessions ends every live session in the room as one batch.
func (a *SessionAuthority) ForceEndSessions(ctx context.Context, roomID uuid.UUID) (int64, error) {
	return a.sessions.EndActiveSessionsInRoom(ctx, roomID, a.now().UTC())
}

func (a *SessionAuthority) endTime(start time.Time) time.Time {
	now := a.now().UTC()
	if now.Before(start) {
		return start
	}
	return now
}
