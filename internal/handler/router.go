/*
Package handler provides the HTTP handlers and routing setup for the reference planning poker server.

This file defines the main Router: logging, CORS and recovery middleware, per-IP rate limits
on room creation/joining and on the polled read endpoints, the REST API under /api and the
hub endpoint at /hub.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"planpoker/internal/pkg/auth/jwt"
	"planpoker/internal/pkg/limiter"
	"planpoker/internal/pkg/logx"
	"planpoker/internal/pkg/resp"
)

const (
	CreateRate  = 0.5
	CreateBurst = 3
	ReadRate    = 10
	ReadBurst   = 20
	HubRate     = 1
	HubBurst    = 10
)

// Router builds the routing table of the reference server.
func Router(deps *AppDeps) http.Handler {
	createLimiter := limiter.NewIPRateLimiter(rate.Limit(CreateRate), CreateBurst, deps.Clock)
	readLimiter := limiter.NewIPRateLimiter(rate.Limit(ReadRate), ReadBurst, deps.Clock)
	hubLimiter := limiter.NewIPRateLimiter(rate.Limit(HubRate), HubBurst, deps.Clock)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || deps.Config.IsDevelopment() {
				return true
			}
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("Hub connection rejected: origin not allowed", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger(deps.Clock))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]string{
			"status":  "ok",
			"service": "planpoker",
		})
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.With(createLimiter.Middleware).Post("/rooms", HandleCreateRoom(deps))
		api.With(createLimiter.Middleware).Post("/rooms/join", HandleJoinRoom(deps))

		api.Route("/rooms/{room}", func(room chi.Router) {
			room.Get("/", HandleGetRoom(deps))
			room.With(createLimiter.Middleware).Post("/join", HandleJoinRoom(deps))
			room.With(readLimiter.Middleware).Get("/participants", HandleParticipants(deps))

			room.Get("/stories", HandleListStories(deps))
			room.Post("/stories", HandleCreateStory(deps))
			room.Post("/stories/{story}/select", HandleSelectStory(deps))
			room.With(readLimiter.Middleware).Get("/stories/{story}/votes", HandleRevealedVotes(deps))
			room.With(readLimiter.Middleware).Get("/stories/{story}/voting-status", HandleVotingStatus(deps))

			room.Get("/chat", HandleGetMessages(deps))
			room.Post("/chat", HandleSendMessage(deps))
		})

		api.Post("/stories/{story}/votes", HandleSubmitVote(deps))
		api.Post("/stories/{story}/reveal", HandleRevealVotes(deps))
	})

	r.Get("/hub", HandleHub(upgrader, hubLimiter, deps))

	return r
}
