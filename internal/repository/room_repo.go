package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyroom-backend/internal/models"
)

type RoomRepo struct {
	pool *pgxpool.Pool
}

func NewRoomRepo(pool *pgxpool.Pool) *RoomRepo {
	return &RoomRepo{pool: pool}
}

const roomColumns = `r.id, r.teacher_id, r.title, r.subject, r.description, r.room_code, r.is_active, r.created_at`

func (r *RoomRepo) Create(ctx context.Context, room *models.Room) error {
	room.ID = uuid.New()
	room.IsActive = true
	if room.RoomCode == "" {
		room.RoomCode = models.NewRoomCode()
	}

	query := `INSERT INTO rooms (id, teacher_id, title, subject, description, room_code, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		room.ID, room.TeacherID, room.Title, room.Subject, room.Description, room.RoomCode, room.IsActive,
	).Scan(&room.CreatedAt)
}

// FindRoom implements the room lookup used by the session authority.
func (r *RoomRepo) FindRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms r WHERE r.id = $1`, id)
	room, err := scanRoom(row)
	if err != nil {
		return nil, notFound(err)
	}
	return room, nil
}

func (r *RoomRepo) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms r WHERE r.room_code = $1`,
		models.NormalizeRoomCode(code))
	room, err := scanRoom(row)
	if err != nil {
		return nil, notFound(err)
	}
	return room, nil
}

func (r *RoomRepo) ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]*models.Room, error) {
	return r.list(ctx, `WHERE r.teacher_id = $1`, teacherID)
}

func (r *RoomRepo) ListActive(ctx context.Context) ([]*models.Room, error) {
	return r.list(ctx, `WHERE r.is_active`)
}

func (r *RoomRepo) list(ctx context.Context, where string, args ...interface{}) ([]*models.Room, error) {
	query := `SELECT ` + roomColumns + `,
			(SELECT COUNT(*) FROM study_sessions s WHERE s.room_id = r.id AND s.is_active)
		FROM rooms r ` + where + `
		ORDER BY r.created_at DESC
		LIMIT 100`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room := &models.Room{}
		if err := rows.Scan(
			&room.ID, &room.TeacherID, &room.Title, &room.Subject, &room.Description,
			&room.RoomCode, &room.IsActive, &room.CreatedAt, &room.StudentsCount,
		); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (r *RoomRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM rooms WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRoom(row pgx.Row) (*models.Room, error) {
	room := &models.Room{}
	err := row.Scan(
		&room.ID, &room.TeacherID, &room.Title, &room.Subject, &room.Description,
		&room.RoomCode, &room.IsActive, &room.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return room, nil
}
