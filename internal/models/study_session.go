package models

import (
	"time"

	"github.com/google/uuid"
)

type StudySession struct {
	ID        uuid.UUID  `json:"id"`
	RoomID    uuid.UUID  `json:"room_id"`
	StudentID uuid.UUID  `json:"student_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	IsActive  bool       `json:"is_active"`
	Consent   bool       `json:"consent"`

	StudentName string `json:"student_name,omitempty"`
}

// Live reports whether the session may still stream telemetry.
func (s *StudySession) Live() bool {
	return s.IsActive && s.EndTime == nil
}

type ConsentRequest struct {
	Consented bool `json:"consented"`
}

// LiveSession pairs a live session with the most recent sample seen for it.
type LiveSession struct {
	Session *StudySession `json:"session"`
	Latest  *GazeMetric   `json:"latest,omitempty"`
}
