package chat

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const maxChatRequestBytes = 1 << 20

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func NewHandler(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type userInfoPayload struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	IP        string `json:"ip"`
	UserAgent string `json:"userAgent"`
}

// chatRequest accepts the canonical widget shape and the older n8n-chat
// shape (action/chatInput/sessionId).
type chatRequest struct {
	BotID          string           `json:"botId"`
	Message        string           `json:"message"`
	ConversationID string           `json:"conversationId"`
	UserInfo       *userInfoPayload `json:"userInfo"`

	Action    string `json:"action"`
	ChatInput string `json:"chatInput"`
	SessionID string `json:"sessionId"`
	Metadata  *struct {
		BotID    string           `json:"botId"`
		UserInfo *userInfoPayload `json:"userInfo"`
	} `json:"metadata"`
}

func (p chatRequest) normalize(r *http.Request) InboundMessage {
	in := InboundMessage{
		BotID:          p.BotID,
		Message:        p.Message,
		ConversationID: p.ConversationID,
	}
	info := p.UserInfo

	if in.Message == "" {
		in.Message = p.ChatInput
	}
	if in.ConversationID == "" {
		in.ConversationID = p.SessionID
	}
	if p.Metadata != nil {
		if in.BotID == "" {
			in.BotID = p.Metadata.BotID
		}
		if info == nil {
			info = p.Metadata.UserInfo
		}
	}

	if info != nil {
		in.UserInfo = UserInfo{
			Name:      info.Name,
			Email:     info.Email,
			IP:        strings.TrimSpace(info.IP),
			UserAgent: strings.TrimSpace(info.UserAgent),
		}
	}
	if in.UserInfo.IP == "" {
		in.UserInfo.IP = clientIP(r)
	}
	if in.UserInfo.UserAgent == "" {
		in.UserInfo.UserAgent = r.UserAgent()
	}
	return in
}

// HandleChat accepts an inbound widget message.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxChatRequestBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	replies, err := h.svc.HandleMessage(r.Context(), payload.normalize(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, replies)
}

// HandleConversation returns a stored conversation so the widget can restore
// its history.
func (h *Handler) HandleConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.svc.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), ErrValidation.Error()+": "))
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("chat request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
