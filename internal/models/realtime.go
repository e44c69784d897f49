package models

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionBinding is the runtime-only record tying a live transport
// connection to the room (and, for students, the session) it joined.
type ConnectionBinding struct {
	ConnectionID uuid.UUID
	RoomID       uuid.UUID
	SessionID    uuid.UUID
	Role         Role
}

// Producer reports whether the binding may push telemetry.
func (b ConnectionBinding) Producer() bool {
	return b.Role == RoleStudent && b.SessionID != uuid.Nil
}

// Realtime frame types
const (
	FrameJoin          = "join"
	FrameJoined        = "joined_room"
	FrameMetric        = "metric"
	FrameStudentUpdate = "student_update"
	FrameError         = "error"
)

type JoinRequest struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id"`
	SessionID string `json:"session_id"`
}

type JoinedEvent struct {
	Type      string    `json:"type"`
	RoomID    uuid.UUID `json:"room_id"`
	SessionID uuid.UUID `json:"session_id"`
}

// StudentUpdate is broadcast to everyone monitoring the session's room.
type StudentUpdate struct {
	Type      string      `json:"type"`
	SessionID uuid.UUID   `json:"session_id"`
	Metrics   *GazeMetric `json:"metrics"`
	Timestamp string      `json:"timestamp"`
}

func NewStudentUpdate(m *GazeMetric, at time.Time) StudentUpdate {
	return StudentUpdate{
		Type:      FrameStudentUpdate,
		SessionID: m.SessionID,
		Metrics:   m,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
	}
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ReceivedAck acknowledges each frame on the single-session transport.
type ReceivedAck struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Identity is the verified caller behind a realtime connection.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}
