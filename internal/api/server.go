package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/mediqo/clinisync/internal/services"
)

type Server struct {
	syncService *services.SyncService
	authService *services.AuthService
	resolver    ActorResolver
}

func NewServer(syncService *services.SyncService, authService *services.AuthService, resolver ActorResolver) *Server {
	return &Server{
		syncService: syncService,
		authService: authService,
		resolver:    resolver,
	}
}

// Routes mounts the v1 API. Everything under /v1/sync requires a resolved
// actor; enrollment and login are the only open endpoints.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/v1/auth/devices", s.handleEnrollDevice)
	r.Post("/v1/auth/login", s.handleLogin)

	r.Group(func(pr chi.Router) {
		pr.Use(RequireActor(s.resolver))
		pr.Post("/v1/auth/logout", s.handleLogout)
		pr.Post("/v1/sync/push", s.handleSyncPush)
		pr.Get("/v1/sync/pull", s.handleSyncPull)
		pr.Get("/v1/sync/status", s.handleSyncStatus)
	})

	return r
}
