package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studyroom-backend/internal/metrics"
	"studyroom-backend/internal/models"
)

type BindingLookup interface {
	Binding(connID uuid.UUID) (models.ConnectionBinding, bool)
}

type LivenessChecker interface {
	CheckLive(ctx context.Context, sessionID, roomID uuid.UUID) error
}

type MetricStore interface {
	AppendMetric(ctx context.Context, m *models.GazeMetric) error
}

// Publisher fans an event out to the subscribers of a room and reports how
// many deliveries were enqueued. Subscribers that had to be dropped are
// reported as an error matching ErrDeliveryFailure.
type Publisher interface {
	Publish(roomID uuid.UUID, event interface{}) (int, error)
}

type LatestMetricCache interface {
	StoreLatest(ctx context.Context, roomID uuid.UUID, m *models.GazeMetric) error
}

// IngestPipeline validates, persists and broadcasts inbound telemetry.
type IngestPipeline struct {
	bindings       BindingLookup
	liveness       LivenessChecker
	store          MetricStore
	publisher      Publisher
	cache          LatestMetricCache
	persistTimeout time.Duration
	stats          *metrics.Registry
	log            *zap.Logger
	now            func() time.Time
}

// NewIngestPipeline wires the pipeline. cache may be nil.
func NewIngestPipeline(
	bindings BindingLookup,
	liveness LivenessChecker,
	store MetricStore,
	publisher Publisher,
	cache LatestMetricCache,
	persistTimeout time.Duration,
	stats *metrics.Registry,
	log *zap.Logger,
) *IngestPipeline {
	if persistTimeout <= 0 {
		persistTimeout = 5 * time.Second
	}
	return &IngestPipeline{
		bindings:       bindings,
		liveness:       liveness,
		store:          store,
		publisher:      publisher,
		cache:          cache,
		persistTimeout: persistTimeout,
		stats:          stats,
		log:            log,
		now:            time.Now,
	}
}

// Ingest runs one inbound frame through bind lookup, parse, liveness check,
// append and broadcast. A failed broadcast never fails the ingest.
func (p *IngestPipeline) Ingest(ctx context.Context, connID uuid.UUID, raw []byte) (*models.GazeMetric, error) {
	m, roomID, err := p.accept(ctx, connID, raw)
	if err != nil {
		p.stats.IngestTotal.WithLabelValues(ErrorCode(err)).Inc()
		return nil, err
	}
	p.stats.IngestTotal.WithLabelValues("accepted").Inc()

	delivered, err := p.publisher.Publish(roomID, models.NewStudentUpdate(m, p.now()))
	switch {
	case errors.Is(err, ErrDeliveryFailure):
		p.log.Info("broadcast partially delivered",
			zap.String("room_id", roomID.String()),
			zap.Int("subscribers", delivered),
			zap.Error(err))
	case err != nil:
		p.log.Warn("broadcast failed", zap.String("room_id", roomID.String()), zap.Error(err))
	default:
		p.log.Debug("metric broadcast",
			zap.String("session_id", m.SessionID.String()),
			zap.Int("subscribers", delivered))
	}

	if p.cache != nil {
		cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.persistTimeout)
		if err := p.cache.StoreLatest(cacheCtx, roomID, m); err != nil {
			p.log.Warn("live snapshot update failed", zap.String("session_id", m.SessionID.String()), zap.Error(err))
		}
		cancel()
	}

	return m, nil
}

func (p *IngestPipeline) accept(ctx context.Context, connID uuid.UUID, raw []byte) (*models.GazeMetric, uuid.UUID, error) {
	b, ok := p.bindings.Binding(connID)
	if !ok || !b.Producer() {
		return nil, uuid.Nil, ErrNotJoined
	}

	m, err := models.ParseGazeMetric(raw, b.SessionID, p.now())
	if err != nil {
		return nil, uuid.Nil, realtimeErr(ErrMalformedPayload, err)
	}

	// The write is allowed to finish even if the connection goes away meanwhile.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.persistTimeout)
	defer cancel()

	if err := p.liveness.CheckLive(opCtx, b.SessionID, b.RoomID); err != nil {
		return nil, uuid.Nil, err
	}

	start := time.Now()
	err = p.store.AppendMetric(opCtx, m)
	p.stats.PersistDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, uuid.Nil, realtimeErr(ErrStorage, err)
	}

	return m, b.RoomID, nil
}
