package chat

import (
	"context"
	"errors"
	"time"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

type BotStatus string

const (
	BotStatusActive   BotStatus = "active"
	BotStatusInactive BotStatus = "inactive"
	BotStatusDraft    BotStatus = "draft"
)

// BotSettings holds the owner configuration. Voice and appearance are opaque
// to the relay pipeline and only echoed back to the widget.
type BotSettings struct {
	WebhookURL      string         `json:"webhookUrl,omitempty" yaml:"webhook_url"`
	WelcomeMessage  string         `json:"welcomeMessage" yaml:"welcome_message"`
	FallbackMessage string         `json:"fallbackMessage" yaml:"fallback_message"`
	VoiceSettings   map[string]any `json:"voiceSettings,omitempty" yaml:"voice_settings"`
	Appearance      map[string]any `json:"appearance,omitempty" yaml:"appearance"`
}

type BotMetrics struct {
	TotalConversations  int64   `json:"totalConversations"`
	NewMessages24h      int64   `json:"newMessages24h"`
	AverageResponseTime float64 `json:"averageResponseTime"`
	HandoverRate        float64 `json:"handoverRate"`
}

type Bot struct {
	ID        string      `json:"id" yaml:"id"`
	Name      string      `json:"name" yaml:"name"`
	Status    BotStatus   `json:"status" yaml:"status"`
	Settings  BotSettings `json:"settings" yaml:"settings"`
	Metrics   BotMetrics  `json:"metrics" yaml:"-"`
	CreatedAt time.Time   `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time   `json:"updatedAt" yaml:"-"`
}

type ConversationStatus string

const (
	ConversationStatusNew    ConversationStatus = "new"
	ConversationStatusActive ConversationStatus = "active"
	ConversationStatusClosed ConversationStatus = "closed"
)

type Sender string

const (
	SenderUser  Sender = "user"
	SenderBot   Sender = "bot"
	SenderAgent Sender = "agent"
)

const MessageTypeText = "text"

// PendingPrompt records which question the bot is waiting on.
type PendingPrompt string

const (
	PromptNone PendingPrompt = ""
	PromptName PendingPrompt = "name"
)

type UserInfo struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	IP        string `json:"ip"`
	UserAgent string `json:"userAgent"`
}

type Message struct {
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
}

type Conversation struct {
	ID            string             `json:"id"`
	BotID         string             `json:"botId"`
	Status        ConversationStatus `json:"status"`
	UserInfo      UserInfo           `json:"userInfo"`
	Messages      []Message          `json:"messages"`
	Tags          []string           `json:"tags"`
	PendingPrompt PendingPrompt      `json:"pendingPrompt,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`

	// stored is how many leading messages are already persisted.
	stored int
}

// AppendMessage adds a message at the end of the log. Timestamps never go
// backwards even if the clock does.
func (c *Conversation) AppendMessage(sender Sender, content string, at time.Time) Message {
	at = at.UTC()
	if n := len(c.Messages); n > 0 && at.Before(c.Messages[n-1].Timestamp) {
		at = c.Messages[n-1].Timestamp
	}
	msg := Message{Content: content, Sender: sender, Timestamp: at, Type: MessageTypeText}
	c.Messages = append(c.Messages, msg)
	return msg
}

// Fingerprint re-associates a returning visitor with their open conversation.
type Fingerprint struct {
	IP        string
	UserAgent string
}

type InboundMessage struct {
	BotID          string
	Message        string
	ConversationID string
	UserInfo       UserInfo
}

type ReplyContent struct {
	Text string `json:"text"`
}

// Reply is one element of the array the widget expects back.
type Reply struct {
	Content        ReplyContent   `json:"content"`
	ConversationID string         `json:"_id"`
	Sender         Sender         `json:"sender"`
	Type           string         `json:"type"`
	CreatedAt      time.Time      `json:"createdAt"`
	VoiceSettings  map[string]any `json:"voiceSettings"`
	UserInfo       *UserInfo      `json:"userInfo,omitempty"`
}

// Repo persists bots and conversations.
type Repo interface {
	GetBot(ctx context.Context, id string) (Bot, error)
	UpsertBot(ctx context.Context, bot *Bot) error
	UpdateBotMetrics(ctx context.Context, botID string, totalConversations, newConversations24h int64) error

	GetConversation(ctx context.Context, id string) (*Conversation, error)
	FindOpenConversation(ctx context.Context, botID string, fp Fingerprint) (*Conversation, error)
	CreateConversation(ctx context.Context, c *Conversation) error
	SaveConversation(ctx context.Context, c *Conversation) error
	CountConversations(ctx context.Context, botID string, since time.Time) (int64, error)
	ListConversations(ctx context.Context, botID string, start, end time.Time) ([]Conversation, error)

	Close() error
}

// Relay sends a visitor message to the bot's automation endpoint.
type Relay interface {
	Relay(ctx context.Context, webhookURL, message, botID string) RelayResult
}

// Service handles inbound widget messages.
type Service interface {
	HandleMessage(ctx context.Context, in InboundMessage) ([]Reply, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
}
