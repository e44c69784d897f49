package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studyroom-backend/internal/models"
)

// LiveMetricCache keeps the newest sample of every session per room in a
// redis hash so a monitor that connects late can render a snapshot.
type LiveMetricCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewLiveMetricCache(client *redis.Client, ttl time.Duration) *LiveMetricCache {
	return &LiveMetricCache{redis: client, ttl: ttl}
}

func liveKey(roomID uuid.UUID) string {
	return "room_live:" + roomID.String()
}

func (c *LiveMetricCache) StoreLatest(ctx context.Context, roomID uuid.UUID, m *models.GazeMetric) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode live metric: %w", err)
	}

	pipe := c.redis.TxPipeline()
	pipe.HSet(ctx, liveKey(roomID), m.SessionID.String(), data)
	pipe.Expire(ctx, liveKey(roomID), c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *LiveMetricCache) Latest(ctx context.Context, roomID uuid.UUID) (map[uuid.UUID]*models.GazeMetric, error) {
	entries, err := c.redis.HGetAll(ctx, liveKey(roomID)).Result()
	if err != nil {
		return nil, err
	}

	latest := make(map[uuid.UUID]*models.GazeMetric, len(entries))
	for field, raw := range entries {
		sessionID, err := uuid.Parse(field)
		if err != nil {
			continue
		}
		var m models.GazeMetric
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		latest[sessionID] = &m
	}
	return latest, nil
}

func (c *LiveMetricCache) Clear(ctx context.Context, roomID uuid.UUID) error {
	return c.redis.Del(ctx, liveKey(roomID)).Err()
}
