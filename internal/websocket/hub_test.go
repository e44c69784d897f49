package websocket

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studyroom-backend/internal/metrics"
	"studyroom-backend/internal/models"
	"studyroom-backend/internal/services"
)

type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
}

func (s *recordingSink) Deliver(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail || s.closed {
		return ErrSendBlocked
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *recordingSink) seqs(t *testing.T) []int {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.frames))
	for _, f := range s.frames {
		var ev struct{ Seq int }
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev.Seq)
	}
	return out
}

func newTestHub() (*Hub, *metrics.Registry) {
	stats := metrics.NewNop()
	return NewHub(stats, zap.NewNop()), stats
}

func teacherBinding(roomID uuid.UUID) models.ConnectionBinding {
	return models.ConnectionBinding{ConnectionID: uuid.New(), RoomID: roomID, Role: models.RoleTeacher}
}

func TestHub_SubscribersAreTeachersOnly(t *testing.T) {
	hub, _ := newTestHub()
	room := uuid.New()

	teacher := teacherBinding(room)
	student := models.ConnectionBinding{ConnectionID: uuid.New(), RoomID: room, SessionID: uuid.New(), Role: models.RoleStudent}
	hub.Register(teacher, &recordingSink{})
	hub.Register(student, &recordingSink{})

	assert.Equal(t, []uuid.UUID{teacher.ConnectionID}, hub.SubscribersOf(room))
	assert.Empty(t, hub.SubscribersOf(uuid.New()))

	b, ok := hub.Binding(student.ConnectionID)
	require.True(t, ok)
	assert.Equal(t, student, b)
	assert.Equal(t, 2, hub.Len())
}

func TestHub_RegisterReplacesBinding(t *testing.T) {
	hub, stats := newTestHub()
	roomA, roomB := uuid.New(), uuid.New()

	b := teacherBinding(roomA)
	hub.Register(b, &recordingSink{})
	b.RoomID = roomB
	hub.Register(b, &recordingSink{})

	assert.Empty(t, hub.SubscribersOf(roomA))
	assert.Equal(t, []uuid.UUID{b.ConnectionID}, hub.SubscribersOf(roomB))
	assert.Equal(t, 1, hub.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(stats.ConnectionsActive.WithLabelValues("teacher")))
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	hub, stats := newTestHub()
	b := teacherBinding(uuid.New())
	hub.Register(b, &recordingSink{})

	assert.True(t, hub.Unregister(b.ConnectionID))
	assert.False(t, hub.Unregister(b.ConnectionID))

	_, ok := hub.Binding(b.ConnectionID)
	assert.False(t, ok)
	assert.Empty(t, hub.SubscribersOf(b.RoomID))
	assert.Equal(t, 0.0, testutil.ToFloat64(stats.ConnectionsActive.WithLabelValues("teacher")))
}

func TestHub_PublishPreservesOrder(t *testing.T) {
	hub, _ := newTestHub()
	room := uuid.New()
	s1, s2 := &recordingSink{}, &recordingSink{}
	hub.Register(teacherBinding(room), s1)
	hub.Register(teacherBinding(room), s2)

	for i := 1; i <= 50; i++ {
		n, err := hub.Publish(room, map[string]int{"seq": i})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}

	want := make([]int, 50)
	for i := range want {
		want[i] = i + 1
	}
	assert.Equal(t, want, s1.seqs(t))
	assert.Equal(t, want, s2.seqs(t))
}

func TestHub_NoRetroactiveDelivery(t *testing.T) {
	hub, _ := newTestHub()
	room := uuid.New()
	early, late := &recordingSink{}, &recordingSink{}
	hub.Register(teacherBinding(room), early)

	_, err := hub.Publish(room, map[string]int{"seq": 1})
	require.NoError(t, err)
	hub.Register(teacherBinding(room), late)
	_, err = hub.Publish(room, map[string]int{"seq": 2})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, early.seqs(t))
	assert.Equal(t, []int{2}, late.seqs(t))
}

func TestHub_FailedSubscriberIsDropped(t *testing.T) {
	hub, stats := newTestHub()
	room := uuid.New()
	healthy := &recordingSink{}
	broken := &recordingSink{fail: true}
	brokenBinding := teacherBinding(room)
	hub.Register(teacherBinding(room), healthy)
	hub.Register(brokenBinding, broken)

	n, err := hub.Publish(room, map[string]int{"seq": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrDeliveryFailure)
	assert.ErrorIs(t, err, ErrSendBlocked)
	assert.Equal(t, services.CodeDeliveryFailure, services.ErrorCode(err))
	assert.Equal(t, 1, n)
	assert.True(t, broken.closed)
	_, ok := hub.Binding(brokenBinding.ConnectionID)
	assert.False(t, ok)

	n, err = hub.Publish(room, map[string]int{"seq": 2})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int{1, 2}, healthy.seqs(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(stats.FanoutDeliveries.WithLabelValues("failed")))
}

func TestHub_PublishToEmptyRoom(t *testing.T) {
	hub, _ := newTestHub()
	n, err := hub.Publish(uuid.New(), map[string]int{"seq": 1})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHub_PublishUnencodableEvent(t *testing.T) {
	hub, _ := newTestHub()
	_, err := hub.Publish(uuid.New(), make(chan int))
	assert.Error(t, err)
}

func TestHub_CloseAll(t *testing.T) {
	hub, _ := newTestHub()
	sinks := []*recordingSink{{}, {}}
	for _, s := range sinks {
		hub.Register(teacherBinding(uuid.New()), s)
	}

	hub.CloseAll()

	for _, s := range sinks {
		assert.True(t, s.closed)
	}
}
