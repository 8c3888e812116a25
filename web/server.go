package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mbocsi/moodsync/services"
)

// Server exposes the services over a JSON API and a websocket event feed
type Server struct {
	services *services.ServiceContainer
	hub      *Hub
}

func NewServer(serviceContainer *services.ServiceContainer) *Server {
	return &Server{
		services: serviceContainer,
		hub:      NewHub(),
	}
}

// Run forwards service events to websocket clients until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	unsubscribe := s.services.Events.Subscribe(func(ev services.Event) {
		s.hub.BroadcastJSON(ev)
	})
	defer unsubscribe()
	s.hub.Run(ctx)
}

// Routes returns the HTTP routes for the API
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.HandleHealth)
	r.Get("/ws", s.hub.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/moods", s.HandleMoods)
		r.Post("/moods", s.HandleNotifyMood)
		r.Get("/outcomes", s.HandleOutcomes)
		r.Get("/endpoints", s.HandleEndpoints)
		r.Get("/endpoints/{name}", s.HandleEndpointDetail)
		r.Post("/endpoints/{name}/connect", s.HandleConnect)
		r.Post("/endpoints/{name}/disconnect", s.HandleDisconnect)
	})
	return r
}
