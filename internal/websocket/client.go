package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"studyroom-backend/internal/logger"
	"studyroom-backend/internal/models"
	"studyroom-backend/internal/services"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	joinTimeout = 5 * time.Second
)

var (
	ErrClientClosed = errors.New("connection closed")
	ErrSendBlocked  = errors.New("send buffer full")
)

type connState int32

const (
	stateConnected connState = iota
	stateJoined
	stateClosed
)

// Client is one websocket connection. The reader pushes frames onto a bounded
// inbound queue, a single processing goroutine handles them in arrival order
// and the writer is the only goroutine that touches the socket for writes.
type Client struct {
	id       uuid.UUID
	identity models.Identity
	conn     *websocket.Conn
	h        *Handler

	// sessionMode marks the single-session transport: every inbound frame is
	// a metric and gets a received ack.
	sessionMode bool

	send    chan []byte
	inbound chan []byte
	done    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	state     atomic.Int32
	log       *zap.Logger
}

func newClient(h *Handler, conn *websocket.Conn, identity models.Identity, sessionMode bool) *Client {
	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:          id,
		identity:    identity,
		conn:        conn,
		h:           h,
		sessionMode: sessionMode,
		send:        make(chan []byte, h.opts.SendBuffer),
		inbound:     make(chan []byte, h.opts.InboundQueue),
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		log: logger.WithConnection(h.log, id.String(), identity.UserID.String()).
			With(zap.String("role", identity.Role.String())),
	}
}

// Deliver enqueues an outbound frame without blocking.
func (c *Client) Deliver(frame []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSendBlocked
	}
}

// Close stops the connection's loops. The writer flushes what is queued and
// sends a close frame before dropping the socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(stateClosed))
		c.cancel()
		close(c.done)
	})
}

func (c *Client) closed() bool {
	return connState(c.state.Load()) == stateClosed
}

// run drives the connection until the peer goes away or the client is closed.
// The binding is released only after the processing goroutine has stopped, so
// a join racing with the disconnect can never leave a stale registration.
func (c *Client) run(sessionID uuid.UUID) {
	go c.writePump()
	defer func() {
		if c.h.hub.Unregister(c.id) {
			c.log.Info("connection unregistered")
		}
	}()

	if c.sessionMode {
		c.joinSession(sessionID)
		if c.closed() {
			return
		}
	}

	processed := make(chan struct{})
	go func() {
		defer close(processed)
		c.processLoop()
	}()

	c.readPump()
	c.Close()
	<-processed
}

func (c *Client) readPump() {
	c.conn.SetReadLimit(c.h.opts.MaxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read failed", zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		select {
		case c.inbound <- data:
		default:
			c.h.stats.InboundDropped.Inc()
			c.replyError(services.ErrOverloaded)
		}
	}
}

func (c *Client) processLoop() {
	for {
		select {
		case <-c.done:
			return
		case raw := <-c.inbound:
			if c.closed() {
				return
			}
			c.handle(raw)
		}
	}
}

func (c *Client) handle(raw []byte) {
	if c.sessionMode {
		c.handleMetric(raw)
		return
	}

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.replyError(services.ErrMalformedPayload)
		return
	}

	switch envelope.Type {
	case models.FrameJoin:
		c.handleJoin(raw)
	case models.FrameMetric:
		c.handleMetric(raw)
	default:
		c.replyError(&services.RealtimeError{
			Code:    services.CodeMalformedPayload,
			Message: "unknown frame type " + envelope.Type,
		})
	}
}

func (c *Client) handleJoin(raw []byte) {
	var req models.JoinRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.replyError(services.ErrMalformedPayload)
		return
	}
	// Unparseable ids fall through as uuid.Nil and are rejected by the authority.
	roomID, _ := uuid.Parse(req.RoomID)
	sessionID, _ := uuid.Parse(req.SessionID)

	ctx, cancel := context.WithTimeout(c.ctx, joinTimeout)
	defer cancel()

	b, err := c.h.authorizer.AuthorizeJoin(ctx, c.identity, roomID, sessionID)
	if err != nil {
		c.rejectJoin(err)
		return
	}
	c.bind(b)
}

func (c *Client) joinSession(sessionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(c.ctx, joinTimeout)
	defer cancel()

	b, err := c.h.authorizer.AuthorizeSession(ctx, c.identity, sessionID)
	if err != nil {
		c.rejectJoin(err)
		c.Close()
		return
	}
	c.bind(b)
}

func (c *Client) rejectJoin(err error) {
	c.h.stats.JoinsTotal.WithLabelValues(c.identity.Role.String(), services.ErrorCode(err)).Inc()
	c.log.Info("join rejected", zap.Error(err))
	c.replyError(err)
}

func (c *Client) bind(b models.ConnectionBinding) {
	b.ConnectionID = c.id
	c.h.hub.Register(b, c)
	if c.closed() {
		c.h.hub.Unregister(c.id)
		return
	}
	c.state.Store(int32(stateJoined))
	c.h.stats.JoinsTotal.WithLabelValues(b.Role.String(), "ok").Inc()
	c.log.Info("joined room",
		zap.String("room_id", b.RoomID.String()),
		zap.String("session_id", b.SessionID.String()))

	c.reply(models.JoinedEvent{Type: models.FrameJoined, RoomID: b.RoomID, SessionID: b.SessionID})
}

func (c *Client) handleMetric(raw []byte) {
	if _, err := c.h.ingestor.Ingest(c.ctx, c.id, raw); err != nil {
		if errors.Is(err, services.ErrStorage) {
			c.log.Error("metric not persisted", zap.Error(err))
		}
		c.replyError(err)
		return
	}
	if c.sessionMode {
		c.reply(models.ReceivedAck{Status: "received", Timestamp: time.Now().UTC().Format(time.RFC3339Nano)})
	}
}

func (c *Client) replyError(err error) {
	ev := models.ErrorEvent{Type: models.FrameError, Error: services.ErrorCode(err)}
	var rt *services.RealtimeError
	if errors.As(err, &rt) {
		ev.Message = rt.Message
	}
	c.reply(ev)
}

func (c *Client) reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Error("encode reply", zap.Error(err))
		return
	}
	if err := c.Deliver(data); err != nil {
		c.log.Debug("reply dropped", zap.Error(err))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}
