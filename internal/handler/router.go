package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sergiecode/gemini-chat-backend/internal/auth"
	"github.com/sergiecode/gemini-chat-backend/internal/config"
	chathandler "github.com/sergiecode/gemini-chat-backend/internal/handler/chat"
	"github.com/sergiecode/gemini-chat-backend/internal/handler/watch"
	"github.com/sergiecode/gemini-chat-backend/internal/middleware"
	chatservice "github.com/sergiecode/gemini-chat-backend/internal/service/chat"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg config.ServerConfig, provider auth.Provider, chatSvc *chatservice.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	if cfg.LogRequests {
		r.Use(chimiddleware.Logger)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	chatHandler := chathandler.New(chatSvc)
	watchHandler := watch.New(chatSvc)

	r.Route("/api", func(api chi.Router) {
		api.Group(func(g chi.Router) {
			g.Use(middleware.Auth(provider))
			chatHandler.RegisterRoutes(g)
			watchHandler.RegisterRoutes(g)
		})
	})

	return r
}
