package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studyroom-backend/internal/handlers"
	"studyroom-backend/internal/middleware"
	"studyroom-backend/internal/models"
	"studyroom-backend/internal/websocket"
)

type Deps struct {
	JWTAuth      *middleware.JWTAuth
	AuthLimiter  *middleware.RateLimiter
	Auth         *handlers.AuthHandler
	Rooms        *handlers.RoomHandler
	StudySession *handlers.StudySessionHandler
	Realtime     *websocket.Handler
	Gatherer     prometheus.Gatherer
	FrontendURL  string
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(d.FrontendURL))

	if d.AuthLimiter == nil {
		// 10 req/min per IP
		d.AuthLimiter = middleware.NewRateLimiter(10, time.Minute)
	}

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes ────
		r.Route("/auth", func(r chi.Router) {
			r.With(d.AuthLimiter.Middleware).Post("/register", d.Auth.Register)
			r.With(d.AuthLimiter.Middleware).Post("/login", d.Auth.Login)
			r.With(d.JWTAuth.Middleware).Get("/me", d.Auth.Me)
		})

		// ──── Room Routes ────
		r.Route("/rooms", func(r chi.Router) {
			r.Use(d.JWTAuth.Middleware)
			r.Get("/", d.Rooms.List)
			r.Get("/{id}/sessions", d.Rooms.Sessions)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleTeacher))
				r.Post("/", d.Rooms.Create)
				r.Delete("/{id}", d.Rooms.Delete)
				r.Get("/{id}/live", d.Rooms.Live)
			})

			r.With(middleware.RequireRole(models.RoleStudent)).Post("/join/{code}", d.Rooms.Join)
		})

		// ──── Study Session Routes ────
		r.Route("/sessions", func(r chi.Router) {
			r.Use(d.JWTAuth.Middleware)
			r.Post("/{id}/end", d.StudySession.End)
			r.Post("/{id}/consent", d.StudySession.Consent)
			r.Get("/{id}/metrics", d.StudySession.Metrics)
		})

		// ──── WebSocket ────
		// Browsers cannot set headers on upgrade, so these verify the token themselves.
		r.Get("/ws/rooms", d.Realtime.ServeRooms)
		r.Get("/ws/sessions/{id}", d.Realtime.ServeSession)
	})

	return r
}
