package analytics

import "github.com/go-chi/chi/v5"

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/api/analytics/{botId}", h.HandleReport)
}
