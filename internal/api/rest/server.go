// Package rest provides the HTTP gateway of the karaoke session.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/osa030/karabox/internal/app/session"
	"github.com/osa030/karabox/internal/domain/user"
	"github.com/osa030/karabox/internal/infra/auth"
	"github.com/osa030/karabox/internal/infra/config"
	"github.com/osa030/karabox/internal/infra/metrics"
)

// Realtime serves the websocket connections of authenticated callers.
type Realtime interface {
	ServeFront(w http.ResponseWriter, r *http.Request, u user.User)
	ServeDevice(w http.ResponseWriter, r *http.Request, u user.User)
}

// Server serves the REST API.
type Server struct {
	session  *session.Manager
	config   *config.Config
	auth     *auth.Authority
	realtime Realtime
	validate *validator.Validate
}

// NewServer creates a new Server. realtime may be nil.
func NewServer(mgr *session.Manager, cfg *config.Config, authority *auth.Authority, realtime Realtime) *Server {
	return &Server{
		session:  mgr,
		config:   cfg,
		auth:     authority,
		realtime: realtime,
		validate: validator.New(),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, accessLog)
	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate(false))

		r.Get("/playlist/entries", s.handleListEntries)
		r.Post("/playlist/entries", s.handleEnqueue)
		r.Put("/playlist/entries/{id}", s.handleReorder)
		r.Delete("/playlist/entries/{id}", s.handleDeleteEntry)
		r.Get("/playlist/played-entries", s.handleListPlayed)

		r.Get("/playlist/karaoke", s.handleGetKaraoke)
		r.Patch("/playlist/karaoke", s.handlePatchKaraoke)

		r.Get("/playlist/player/status", s.handleGetStatus)
		r.Put("/playlist/player/status", s.handlePutStatus)
		r.Get("/playlist/player/command", s.handleGetCommand)
		r.Put("/playlist/player/command", s.handlePutCommand)
		r.Get("/playlist/player/errors", s.handleListErrors)
		r.Post("/playlist/player/errors", s.handlePostError)

		r.Get("/playlist/digest", s.handleDigest)
	})

	if s.realtime != nil {
		r.Group(func(r chi.Router) {
			r.Use(s.authenticate(true))
			r.Get("/ws/front", func(w http.ResponseWriter, r *http.Request) {
				s.realtime.ServeFront(w, r, userFrom(r.Context()))
			})
			r.Get("/ws/device", func(w http.ResponseWriter, r *http.Request) {
				s.realtime.ServeDevice(w, r, userFrom(r.Context()))
			})
		})
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "karabox",
	})
}
