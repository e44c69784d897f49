package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyroom-backend/internal/models"
)

// MetricRepo is the append-only telemetry store.
type MetricRepo struct {
	pool *pgxpool.Pool
}

func NewMetricRepo(pool *pgxpool.Pool) *MetricRepo {
	return &MetricRepo{pool: pool}
}

func (r *MetricRepo) AppendMetric(ctx context.Context, m *models.GazeMetric) error {
	headPose, err := json.Marshal(m.HeadPose)
	if err != nil {
		return fmt.Errorf("encode head pose: %w", err)
	}
	gazeDirection, err := json.Marshal(m.GazeDirection)
	if err != nil {
		return fmt.Errorf("encode gaze direction: %w", err)
	}

	query := `INSERT INTO gaze_metrics (session_id, client_timestamp, face_present, face_area_ratio,
			gaze_on_screen, attention_score, engagement_score, blink_rate, fatigue_level,
			head_pose, gaze_direction, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	return r.pool.QueryRow(ctx, query,
		m.SessionID, m.Timestamp, m.FacePresent, m.FaceAreaRatio,
		m.GazeOnScreen, m.AttentionScore, m.EngagementScore, m.BlinkRate, m.FatigueLevel,
		headPose, gazeDirection, m.ReceivedAt,
	).Scan(&m.ID)
}

// ListBySession returns samples in arrival order.
func (r *MetricRepo) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.GazeMetric, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, client_timestamp, face_present, face_area_ratio, gaze_on_screen,
			attention_score, engagement_score, blink_rate, fatigue_level,
			head_pose, gaze_direction, received_at
		FROM gaze_metrics
		WHERE session_id = $1
		ORDER BY id
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metrics := []*models.GazeMetric{}
	for rows.Next() {
		m := &models.GazeMetric{}
		var headPose, gazeDirection []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Timestamp, &m.FacePresent, &m.FaceAreaRatio,
			&m.GazeOnScreen, &m.AttentionScore, &m.EngagementScore, &m.BlinkRate, &m.FatigueLevel,
			&headPose, &gazeDirection, &m.ReceivedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(headPose, &m.HeadPose); err != nil {
			return nil, fmt.Errorf("decode head pose: %w", err)
		}
		if err := json.Unmarshal(gazeDirection, &m.GazeDirection); err != nil {
			return nil, fmt.Errorf("decode gaze direction: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
