package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studyroom-backend/internal/metrics"
	"studyroom-backend/internal/models"
	"studyroom-backend/internal/services"
)

// Sink is the outbound half of a connection as the hub sees it. Deliver must
// not block; Close must not call back into the hub.
type Sink interface {
	Deliver(frame []byte) error
	Close()
}

type entry struct {
	binding models.ConnectionBinding
	sink    Sink
}

// Hub is the connection registry and the room broadcast fanout. One mutex
// covers both so that a publish observes a consistent subscriber set and
// every subscriber receives a room's events in publish order.
type Hub struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*entry
	rooms map[uuid.UUID]map[uuid.UUID]*entry
	stats *metrics.Registry
	log   *zap.Logger
}

func NewHub(stats *metrics.Registry, log *zap.Logger) *Hub {
	return &Hub{
		conns: make(map[uuid.UUID]*entry),
		rooms: make(map[uuid.UUID]map[uuid.UUID]*entry),
		stats: stats,
		log:   log,
	}
}

// Register binds a connection. Registering an already bound connection id
// replaces its previous binding.
func (h *Hub) Register(b models.ConnectionBinding, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(b.ConnectionID)

	e := &entry{binding: b, sink: sink}
	h.conns[b.ConnectionID] = e
	if b.Role == models.RoleTeacher {
		subs := h.rooms[b.RoomID]
		if subs == nil {
			subs = make(map[uuid.UUID]*entry)
			h.rooms[b.RoomID] = subs
		}
		subs[b.ConnectionID] = e
	}
	h.stats.ConnectionsActive.WithLabelValues(b.Role.String()).Inc()

	h.log.Debug("connection registered",
		zap.String("conn_id", b.ConnectionID.String()),
		zap.String("room_id", b.RoomID.String()),
		zap.String("role", b.Role.String()))
}

// Unregister drops a connection's binding. It is safe to call more than once.
func (h *Hub) Unregister(connID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(connID)
}

func (h *Hub) removeLocked(connID uuid.UUID) bool {
	e, ok := h.conns[connID]
	if !ok {
		return false
	}
	delete(h.conns, connID)
	if subs, ok := h.rooms[e.binding.RoomID]; ok {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(h.rooms, e.binding.RoomID)
		}
	}
	h.stats.ConnectionsActive.WithLabelValues(e.binding.Role.String()).Dec()
	return true
}

func (h *Hub) Binding(connID uuid.UUID) (models.ConnectionBinding, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.conns[connID]
	if !ok {
		return models.ConnectionBinding{}, false
	}
	return e.binding, true
}

// SubscribersOf lists the monitoring connections of a room as of the call.
func (h *Hub) SubscribersOf(roomID uuid.UUID) []uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(h.rooms[roomID]))
	for id := range h.rooms[roomID] {
		ids = append(ids, id)
	}
	return ids
}

// Len reports the number of registered connections.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Publish delivers event to every subscriber of roomID. A subscriber whose
// sink rejects the frame is unregistered and closed; the rest still get it.
// Dropped subscribers are reported as an error matching
// services.ErrDeliveryFailure alongside the delivered count.
func (h *Hub) Publish(roomID uuid.UUID, event interface{}) (int, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("encode room event: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	type failure struct {
		*entry
		err error
	}
	var failed []failure
	for _, e := range h.rooms[roomID] {
		if err := e.sink.Deliver(data); err != nil {
			failed = append(failed, failure{entry: e, err: err})
			continue
		}
		delivered++
	}
	h.stats.FanoutDeliveries.WithLabelValues("delivered").Add(float64(delivered))

	if len(failed) == 0 {
		return delivered, nil
	}

	causes := make([]error, 0, len(failed))
	for _, e := range failed {
		h.stats.FanoutDeliveries.WithLabelValues("failed").Inc()
		h.log.Info("dropping subscriber after failed delivery",
			zap.String("conn_id", e.binding.ConnectionID.String()),
			zap.String("room_id", roomID.String()),
			zap.Error(e.err))
		h.removeLocked(e.binding.ConnectionID)
		e.sink.Close()
		causes = append(causes, e.err)
	}

	return delivered, fmt.Errorf("%w: %d of %d subscribers dropped: %w",
		services.ErrDeliveryFailure, len(failed), len(failed)+delivered, errors.Join(causes...))
}

// CloseAll closes every registered connection. Each connection unregisters
// itself once its loops have stopped.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.conns {
		e.sink.Close()
	}
}
