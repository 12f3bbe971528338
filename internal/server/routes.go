package server

import "github.com/go-chi/chi/v5"

func (s *Server) registerRoutes(r chi.Router) {
	h := s.handlers

	r.Get("/health", h.Health)

	// Runs
	r.Get("/runs", h.ListRuns)
	r.Post("/trigger-tests", h.TriggerTests)
	r.Get("/results/{runId}", h.GetResult)

	// GitHub
	r.Post("/webhook", h.Webhook)
}
