package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Vovarama1992/widget-chat-bridge/internal/ai"
)

const (
	NamePrompt = "Before we continue, may I know your name?"

	defaultWelcomeMessage  = "Hi! How can I help you today?"
	defaultFallbackMessage = "Sorry, I can't answer right now. Please try again later."
)

type service struct {
	repo      Repo
	resolver  *Resolver
	relay     Relay
	assistant ai.AI
	names     NameGenerator
	logger    *slog.Logger
	now       func() time.Time
}

type ServiceOption func(*service)

func WithNameGenerator(gen NameGenerator) ServiceOption {
	return func(s *service) {
		if gen != nil {
			s.names = gen
		}
	}
}

// WithAssistant enables the AI reply for bots without a webhook.
func WithAssistant(assistant ai.AI) ServiceOption {
	return func(s *service) {
		s.assistant = assistant
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(repo Repo, resolver *Resolver, relay Relay, logger *slog.Logger, opts ...ServiceOption) Service {
	s := &service{
		repo:     repo,
		resolver: resolver,
		relay:    relay,
		names:    RandomNames(),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *service) HandleMessage(ctx context.Context, in InboundMessage) ([]Reply, error) {
	botID := strings.TrimSpace(in.BotID)
	if botID == "" || strings.TrimSpace(in.Message) == "" {
		return nil, fmt.Errorf("%w: botId and message are required", ErrValidation)
	}

	bot, err := s.repo.GetBot(ctx, botID)
	if err != nil {
		return nil, err
	}

	conv, err := s.resolver.Resolve(ctx, bot.ID, in.ConversationID, in.UserInfo)
	if err != nil {
		return nil, fmt.Errorf("resolve conversation: %w", err)
	}
	s.logger.Debug("inbound message", "bot_id", bot.ID, "conversation_id", conv.ID, "text", short(in.Message))

	conv.AppendMessage(SenderUser, in.Message, s.now())

	if awaitingName(conv) {
		conv.UserInfo.Name = NormalizeName(in.Message, s.names)
		conv.PendingPrompt = PromptNone
		s.logger.Info("visitor name captured", "conversation_id", conv.ID, "name", conv.UserInfo.Name)
	}

	if len(conv.Messages) == 1 {
		return s.greet(ctx, bot, conv)
	}

	// the user turn must be durable even if the relay never answers
	if err := s.repo.SaveConversation(ctx, conv); err != nil {
		return nil, err
	}

	text := s.generateReply(ctx, bot, conv, in.Message)

	msg := conv.AppendMessage(SenderBot, text, s.now())
	if conv.Status == ConversationStatusNew {
		conv.Status = ConversationStatusActive
	}
	if err := s.repo.SaveConversation(ctx, conv); err != nil {
		return nil, err
	}

	s.refreshBotMetrics(ctx, bot.ID)

	return []Reply{s.reply(bot, conv, msg)}, nil
}

func (s *service) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrValidation)
	}
	return s.repo.GetConversation(ctx, id)
}

// greet answers the first visitor message without calling the webhook.
func (s *service) greet(ctx context.Context, bot Bot, conv *Conversation) ([]Reply, error) {
	welcome := strings.TrimSpace(bot.Settings.WelcomeMessage)
	if welcome == "" {
		welcome = defaultWelcomeMessage
	}

	now := s.now()
	welcomeMsg := conv.AppendMessage(SenderBot, welcome, now)
	promptMsg := conv.AppendMessage(SenderBot, NamePrompt, now)
	if conv.UserInfo.Name == "" {
		conv.PendingPrompt = PromptName
	}

	if err := s.repo.SaveConversation(ctx, conv); err != nil {
		return nil, err
	}
	return []Reply{s.reply(bot, conv, welcomeMsg), s.reply(bot, conv, promptMsg)}, nil
}

// generateReply never fails: every relay or assistant problem degrades to the
// bot's fallback message.
func (s *service) generateReply(ctx context.Context, bot Bot, conv *Conversation, message string) string {
	res := s.relay.Relay(ctx, bot.Settings.WebhookURL, message, bot.ID)
	if res.Err == nil && strings.TrimSpace(res.Text) != "" {
		return res.Text
	}

	cause := res.Err
	if cause == nil {
		cause = ErrUnusableResponse
	}

	if errors.Is(cause, ErrNoEndpoint) && s.assistant != nil {
		text, err := s.assistant.GetReply(ctx, ai.AssistantPrompt(bot.Name, bot.Settings.WelcomeMessage), message)
		if err == nil {
			return text
		}
		cause = fmt.Errorf("%w; assistant: %v", cause, err)
	}

	s.logger.Warn("using fallback message",
		"bot_id", bot.ID,
		"conversation_id", conv.ID,
		"attempts", res.Attempts,
		"status", res.StatusCode,
		"cause", cause,
	)
	return fallbackMessage(bot)
}

// refreshBotMetrics is advisory; failures are logged and swallowed.
func (s *service) refreshBotMetrics(ctx context.Context, botID string) {
	total, err := s.repo.CountConversations(ctx, botID, time.Time{})
	if err != nil {
		s.logger.Warn("count conversations failed", "bot_id", botID, "error", err)
		return
	}
	recent, err := s.repo.CountConversations(ctx, botID, s.now().Add(-24*time.Hour))
	if err != nil {
		s.logger.Warn("count recent conversations failed", "bot_id", botID, "error", err)
		return
	}
	if err := s.repo.UpdateBotMetrics(ctx, botID, total, recent); err != nil {
		s.logger.Warn("update bot metrics failed", "bot_id", botID, "error", err)
	}
}

func (s *service) reply(bot Bot, conv *Conversation, msg Message) Reply {
	info := conv.UserInfo
	return Reply{
		Content:        ReplyContent{Text: msg.Content},
		ConversationID: conv.ID,
		Sender:         SenderBot,
		Type:           MessageTypeText,
		CreatedAt:      msg.Timestamp,
		VoiceSettings:  bot.Settings.VoiceSettings,
		UserInfo:       &info,
	}
}

func fallbackMessage(bot Bot) string {
	if msg := strings.TrimSpace(bot.Settings.FallbackMessage); msg != "" {
		return msg
	}
	return defaultFallbackMessage
}
