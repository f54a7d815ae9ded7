package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers margin routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/simm", func(r chi.Router) {
		r.Post("/margin", h.HandleComputeMargin)
	})
}
