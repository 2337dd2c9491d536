package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// At most one open conversation per fingerprint. Both sqlite and postgres
// support partial indexes.
const createOpenFingerprintIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_open_fingerprint
	ON conversations (bot_id, ip, user_agent) WHERE status <> 'closed'`

type repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) (Repo, error) {
	r := &repo{db: db}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *repo) migrate() error {
	if err := r.db.AutoMigrate(&botRow{}, &conversationRow{}, &messageRow{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := r.db.Exec(createOpenFingerprintIndex).Error; err != nil {
		return fmt.Errorf("create fingerprint index: %w", err)
	}
	return nil
}

func (r *repo) GetBot(ctx context.Context, id string) (Bot, error) {
	var row botRow
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Bot{}, fmt.Errorf("bot %q: %w", id, ErrNotFound)
		}
		return Bot{}, fmt.Errorf("get bot: %w", err)
	}
	return row.toRecord(), nil
}

func (r *repo) UpsertBot(ctx context.Context, bot *Bot) error {
	if strings.TrimSpace(bot.ID) == "" {
		return fmt.Errorf("%w: bot id is required", ErrValidation)
	}
	now := time.Now().UTC()
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = now
	}
	bot.UpdatedAt = now
	if bot.Status == "" {
		bot.Status = BotStatusActive
	}

	row := botRowFromRecord(*bot)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "status", "settings", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert bot: %w", err)
	}
	return nil
}

// UpdateBotMetrics writes only the cached counters, so concurrent intake calls
// never clobber the rest of the bot.
func (r *repo) UpdateBotMetrics(ctx context.Context, botID string, totalConversations, newConversations24h int64) error {
	res := r.db.WithContext(ctx).Model(&botRow{}).Where("id = ?", botID).Updates(map[string]any{
		"total_conversations": totalConversations,
		"new_messages_24h":    newConversations24h,
		"updated_at":          time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("update bot metrics: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("bot %q: %w", botID, ErrNotFound)
	}
	return nil
}

func (r *repo) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var row conversationRow
	err := r.withMessages(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("conversation %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return row.toRecord(), nil
}

func (r *repo) FindOpenConversation(ctx context.Context, botID string, fp Fingerprint) (*Conversation, error) {
	var row conversationRow
	err := r.withMessages(ctx).
		Where("bot_id = ? AND ip = ? AND user_agent = ? AND status <> ?",
			botID, fp.IP, fp.UserAgent, string(ConversationStatusClosed)).
		Order("created_at DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find open conversation: %w", err)
	}
	return row.toRecord(), nil
}

func (r *repo) CreateConversation(ctx context.Context, c *Conversation) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := conversationRowFromRecord(c)
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return err
		}
		return insertMessages(tx, c.ID, c.Messages)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create conversation: %w", ErrConflict)
		}
		return fmt.Errorf("create conversation: %w", err)
	}
	c.stored = len(c.Messages)
	return nil
}

// SaveConversation updates the conversation columns and appends messages not
// yet persisted. Stored messages are never rewritten.
func (r *repo) SaveConversation(ctx context.Context, c *Conversation) error {
	c.UpdatedAt = time.Now().UTC()
	row := conversationRowFromRecord(c)
	// map updates bypass field serializers
	tags, err := json.Marshal(row.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&conversationRow{}).Where("id = ?", c.ID).Updates(map[string]any{
			"status":         row.Status,
			"user_name":      row.UserName,
			"user_email":     row.UserEmail,
			"tags":           string(tags),
			"pending_prompt": row.PendingPrompt,
			"updated_at":     row.UpdatedAt,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("conversation %q: %w", c.ID, ErrNotFound)
		}
		if c.stored < len(c.Messages) {
			return insertMessages(tx, c.ID, c.Messages[c.stored:])
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	c.stored = len(c.Messages)
	return nil
}

func (r *repo) CountConversations(ctx context.Context, botID string, since time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Model(&conversationRow{}).Where("bot_id = ?", botID)
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since.UTC())
	}
	var n int64
	if err := query.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}

func (r *repo) ListConversations(ctx context.Context, botID string, start, end time.Time) ([]Conversation, error) {
	var rows []conversationRow
	err := r.withMessages(ctx).
		Where("bot_id = ? AND created_at >= ? AND created_at <= ?", botID, start.UTC(), end.UTC()).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := make([]Conversation, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toRecord())
	}
	return out, nil
}

func (r *repo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

func (r *repo) withMessages(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	})
}

func insertMessages(tx *gorm.DB, conversationID string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]messageRow, 0, len(msgs))
	for _, m := range msgs {
		msgType := m.Type
		if msgType == "" {
			msgType = MessageTypeText
		}
		rows = append(rows, messageRow{
			ConversationID: conversationID,
			Content:        m.Content,
			Sender:         string(m.Sender),
			Type:           msgType,
			Timestamp:      m.Timestamp.UTC(),
		})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
