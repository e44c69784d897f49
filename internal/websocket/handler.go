package websocket

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"studyroom-backend/internal/metrics"
	"studyroom-backend/internal/middleware"
	"studyroom-backend/internal/models"
)

type IdentityVerifier interface {
	VerifyIdentity(token string) (models.Identity, error)
}

type Authorizer interface {
	AuthorizeJoin(ctx context.Context, who models.Identity, roomID, sessionID uuid.UUID) (models.ConnectionBinding, error)
	AuthorizeSession(ctx context.Context, who models.Identity, sessionID uuid.UUID) (models.ConnectionBinding, error)
}

type Ingestor interface {
	Ingest(ctx context.Context, connID uuid.UUID, raw []byte) (*models.GazeMetric, error)
}

// Options sizes the per-connection buffers.
type Options struct {
	SendBuffer    int
	InboundQueue  int
	MaxFrameBytes int64
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.InboundQueue <= 0 {
		o.InboundQueue = 64
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 16 * 1024
	}
	return o
}

// Handler upgrades HTTP requests into realtime connections.
type Handler struct {
	hub        *Hub
	verifier   IdentityVerifier
	authorizer Authorizer
	ingestor   Ingestor
	opts       Options
	upgrader   websocket.Upgrader
	stats      *metrics.Registry
	log        *zap.Logger
}

func NewHandler(
	hub *Hub,
	verifier IdentityVerifier,
	authorizer Authorizer,
	ingestor Ingestor,
	opts Options,
	stats *metrics.Registry,
	log *zap.Logger,
) *Handler {
	return &Handler{
		hub:        hub,
		verifier:   verifier,
		authorizer: authorizer,
		ingestor:   ingestor,
		opts:       opts.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Connections authenticate with a bearer token, not cookies.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		stats: stats,
		log:   log,
	}
}

// ServeRooms is the multiplexed transport: clients send explicit join frames.
func (h *Handler) ServeRooms(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	newClient(h, conn, identity, false).run(uuid.Nil)
}

// ServeSession is the single-session transport addressed by /ws/sessions/{id}.
// The join happens right after the handshake.
func (h *Handler) ServeSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	sessionID, _ := uuid.Parse(chi.URLParam(r, "id"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	newClient(h, conn, identity, true).run(sessionID)
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	token := middleware.BearerToken(r)
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return models.Identity{}, false
	}
	identity, err := h.verifier.VerifyIdentity(token)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return models.Identity{}, false
	}
	return identity, true
}
