package chat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Vovarama1992/widget-chat-bridge/internal/lock"
)

// Resolver finds or creates the conversation an inbound message belongs to.
type Resolver struct {
	repo   Repo
	locker lock.Locker
	logger *slog.Logger
	now    func() time.Time
}

func NewResolver(repo Repo, locker lock.Locker, logger *slog.Logger) *Resolver {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &Resolver{
		repo:   repo,
		locker: locker,
		logger: logger,
		now:    time.Now,
	}
}

// Resolve looks the conversation up by id first, then by the open
// fingerprint, and creates a new one as a last resort. Find-then-create runs
// under a per-fingerprint lock and the store rejects a second open
// conversation for the same fingerprint.
func (r *Resolver) Resolve(ctx context.Context, botID, conversationID string, info UserInfo) (*Conversation, error) {
	if id := strings.TrimSpace(conversationID); id != "" {
		conv, err := r.repo.GetConversation(ctx, id)
		switch {
		case err == nil && conv.BotID == botID:
			return conv, nil
		case err == nil:
			r.logger.Warn("conversation belongs to another bot", "conversation_id", id, "bot_id", botID)
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}

	info = clipUserInfo(info)
	fp := Fingerprint{IP: info.IP, UserAgent: info.UserAgent}
	unlock, err := r.locker.Lock(ctx, fingerprintKey(botID, fp))
	if err != nil {
		return nil, fmt.Errorf("lock fingerprint: %w", err)
	}
	defer unlock()

	conv, err := r.repo.FindOpenConversation(ctx, botID, fp)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	conv = &Conversation{
		ID:        uuid.NewString(),
		BotID:     botID,
		Status:    ConversationStatusNew,
		UserInfo:  info,
		Messages:  []Message{},
		Tags:      []string{},
		CreatedAt: r.now().UTC(),
	}
	if err := r.repo.CreateConversation(ctx, conv); err != nil {
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		// another instance won the race
		r.logger.Info("open conversation created concurrently, reusing", "bot_id", botID)
		return r.repo.FindOpenConversation(ctx, botID, fp)
	}
	r.logger.Info("conversation created", "bot_id", botID, "conversation_id", conv.ID)
	return conv, nil
}

// Column widths of the conversations table.
const (
	maxIPLength        = 64
	maxUserAgentLength = 512
	maxEmailLength     = 191
	maxUserNameLength  = 191
)

// clipUserInfo fits visitor-supplied fields into their columns. The
// fingerprint is clipped too so lookups match what was stored.
func clipUserInfo(info UserInfo) UserInfo {
	return UserInfo{
		Name:      clip(strings.TrimSpace(info.Name), maxUserNameLength),
		Email:     clip(strings.TrimSpace(info.Email), maxEmailLength),
		IP:        clip(info.IP, maxIPLength),
		UserAgent: clip(info.UserAgent, maxUserAgentLength),
	}
}

// clip cuts s to at most max runes.
func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func fingerprintKey(botID string, fp Fingerprint) string {
	sum := sha256.Sum256([]byte(botID + "\x00" + fp.IP + "\x00" + fp.UserAgent))
	return "fingerprint:" + hex.EncodeToString(sum[:])
}
