// Package server wires handlers, middlewares and routes into the root
// http.Handler.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"

	"github.com/diewo77/go-messages/internal/auth"
	"github.com/diewo77/go-messages/internal/handlers"
	"github.com/diewo77/go-messages/internal/httpx"
	"github.com/diewo77/go-messages/internal/middleware"
	"github.com/diewo77/go-messages/internal/token"
)

// Options carries the collaborators the router wires together.
type Options struct {
	DB           *gorm.DB
	Tokens       *token.Service
	Auth         *auth.Service
	Google       *auth.GoogleProvider
	HomeURL      string
	CORSOrigins  []string
	CookieSecure bool
}

// New constructs the root http.Handler with all routes and middlewares applied.
func New(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := opts.DB.Exec("SELECT 1").Error; err != nil {
			httpx.JSONError(w, http.StatusServiceUnavailable, "degraded", nil)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	ah := handlers.NewAuthHandler(opts.Auth)
	mh := handlers.NewMessageHandler(opts.DB)
	sh := &handlers.SocialHandler{
		Auth:         opts.Auth,
		Provider:     opts.Google,
		HomeURL:      opts.HomeURL,
		CookieSecure: opts.CookieSecure,
	}

	r.Post("/register", ah.Register)
	r.Post("/login", ah.Login)
	// Outside the gate so an expired-within-grace token can still be
	// exchanged; the handler does its own extraction and error mapping.
	r.Post("/refresh", ah.Refresh)

	r.Get("/auth/{provider}/redirect", sh.Redirect)
	r.Get("/auth/{provider}/callback", sh.Callback)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(opts.Tokens))
		r.Post("/logout", ah.Logout)
		r.Get("/user", ah.Me)
		r.Route("/messages", func(r chi.Router) {
			r.Get("/", mh.List)
			r.Post("/", mh.Create)
			r.Get("/{id}", mh.Show)
			r.Put("/{id}", mh.Update)
			r.Delete("/{id}", mh.Delete)
		})
	})

	return r
}
