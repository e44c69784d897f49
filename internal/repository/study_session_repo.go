package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyroom-backend/internal/models"
)

type StudySessionRepo struct {
	pool *pgxpool.Pool
}

func NewStudySessionRepo(pool *pgxpool.Pool) *StudySessionRepo {
	return &StudySessionRepo{pool: pool}
}

// Create opens a live session for the student in the room. Any session the
// same student still has live in that room is ended first so that only one
// streams at a time.
func (r *StudySessionRepo) Create(ctx context.Context, s *models.StudySession) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE study_sessions
		SET is_active = FALSE,
			end_time = GREATEST(NOW(), start_time)
		WHERE room_id = $1
		  AND student_id = $2
		  AND is_active
	`, s.RoomID, s.StudentID)
	if err != nil {
		return err
	}

	s.ID = uuid.New()
	s.IsActive = true
	err = tx.QueryRow(ctx, `
		INSERT INTO study_sessions (id, room_id, student_id, is_active, consent)
		VALUES ($1, $2, $3, TRUE, $4)
		RETURNING start_time
	`, s.ID, s.RoomID, s.StudentID, s.Consent).Scan(&s.StartTime)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindSession implements the session lookup used by the session authority.
func (r *StudySessionRepo) FindSession(ctx context.Context, id uuid.UUID) (*models.StudySession, error) {
	s := &models.StudySession{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, room_id, student_id, start_time, end_time, is_active, consent
		FROM study_sessions WHERE id = $1
	`, id).Scan(&s.ID, &s.RoomID, &s.StudentID, &s.StartTime, &s.EndTime, &s.IsActive, &s.Consent)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// EndSession is a no-op for sessions that already ended.
func (r *StudySessionRepo) EndSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE study_sessions
		SET is_active = FALSE,
			end_time = GREATEST($2::timestamptz, start_time)
		WHERE id = $1
		  AND is_active
	`, id, at)
	return err
}

func (r *StudySessionRepo) EndActiveSessionsInRoom(ctx context.Context, roomID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE study_sessions
		SET is_active = FALSE,
			end_time = GREATEST($2::timestamptz, start_time)
		WHERE room_id = $1
		  AND is_active
	`, roomID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *StudySessionRepo) SetConsent(ctx context.Context, id uuid.UUID, consent bool) error {
	_, err := r.pool.Exec(ctx, "UPDATE study_sessions SET consent = $2 WHERE id = $1", id, consent)
	return err
}

func (r *StudySessionRepo) ListActiveByRoom(ctx context.Context, roomID uuid.UUID) ([]*models.StudySession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.room_id, s.student_id, s.start_time, s.end_time, s.is_active, s.consent,
			COALESCE(u.name, 'Unknown')
		FROM study_sessions s
		LEFT JOIN users u ON u.id = s.student_id
		WHERE s.room_id = $1 AND s.is_active
		ORDER BY s.start_time
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.StudySession
	for rows.Next() {
		s := &models.StudySession{}
		if err := rows.Scan(&s.ID, &s.RoomID, &s.StudentID, &s.StartTime, &s.EndTime,
			&s.IsActive, &s.Consent, &s.StudentName); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
