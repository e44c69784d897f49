package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID          uuid.UUID `json:"id"`
	TeacherID   uuid.UUID `json:"teacher_id"`
	Title       string    `json:"title"`
	Subject     string    `json:"subject"`
	Description *string   `json:"description,omitempty"`
	RoomCode    string    `json:"room_code"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`

	// Populated by list endpoints only.
	StudentsCount int `json:"students_count"`
}

type CreateRoomRequest struct {
	Title       string  `json:"title"`
	Subject     string  `json:"subject"`
	Description *string `json:"description"`
}

// NewRoomCode returns the short code students type to join a room.
func NewRoomCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// NormalizeRoomCode makes user-typed codes comparable with stored ones.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
