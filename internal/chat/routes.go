package chat

import "github.com/go-chi/chi/v5"

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/api/chat", h.HandleChat)
	r.Get("/api/chat/conversations/{id}", h.HandleConversation)
}
