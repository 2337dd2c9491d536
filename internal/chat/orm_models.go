package chat

import "time"

type botRow struct {
	ID                  string      `gorm:"primaryKey;size:64"`
	Name                string      `gorm:"size:191;not null"`
	Status              string      `gorm:"size:16;not null"`
	Settings            BotSettings `gorm:"serializer:json;type:text"`
	TotalConversations  int64       `gorm:"not null;default:0"`
	NewMessages24h      int64       `gorm:"column:new_messages_24h;not null;default:0"`
	AverageResponseTime float64     `gorm:"not null;default:0"`
	HandoverRate        float64     `gorm:"not null;default:0"`
	CreatedAt           time.Time   `gorm:"not null"`
	UpdatedAt           time.Time   `gorm:"not null"`
}

func (botRow) TableName() string {
	return "bots"
}

func (r botRow) toRecord() Bot {
	return Bot{
		ID:       r.ID,
		Name:     r.Name,
		Status:   BotStatus(r.Status),
		Settings: r.Settings,
		Metrics: BotMetrics{
			TotalConversations:  r.TotalConversations,
			NewMessages24h:      r.NewMessages24h,
			AverageResponseTime: r.AverageResponseTime,
			HandoverRate:        r.HandoverRate,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func botRowFromRecord(b Bot) botRow {
	return botRow{
		ID:                  b.ID,
		Name:                b.Name,
		Status:              string(b.Status),
		Settings:            b.Settings,
		TotalConversations:  b.Metrics.TotalConversations,
		NewMessages24h:      b.Metrics.NewMessages24h,
		AverageResponseTime: b.Metrics.AverageResponseTime,
		HandoverRate:        b.Metrics.HandoverRate,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
}

type conversationRow struct {
	ID            string       `gorm:"primaryKey;size:64"`
	BotID         string       `gorm:"size:64;not null;index:idx_conversations_bot_created,priority:1"`
	Status        string       `gorm:"size:16;not null"`
	UserName      string       `gorm:"size:191"`
	UserEmail     string       `gorm:"size:191"`
	IP            string       `gorm:"column:ip;size:64"`
	UserAgent     string       `gorm:"size:512"`
	Tags          []string     `gorm:"serializer:json;type:text"`
	PendingPrompt string       `gorm:"size:32"`
	CreatedAt     time.Time    `gorm:"not null;index:idx_conversations_bot_created,priority:2"`
	UpdatedAt     time.Time    `gorm:"not null"`
	Messages      []messageRow `gorm:"foreignKey:ConversationID"`
}

func (conversationRow) TableName() string {
	return "conversations"
}

func (r conversationRow) toRecord() *Conversation {
	c := &Conversation{
		ID:     r.ID,
		BotID:  r.BotID,
		Status: ConversationStatus(r.Status),
		UserInfo: UserInfo{
			Name:      r.UserName,
			Email:     r.UserEmail,
			IP:        r.IP,
			UserAgent: r.UserAgent,
		},
		Tags:          r.Tags,
		PendingPrompt: PendingPrompt(r.PendingPrompt),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
		Messages:      make([]Message, 0, len(r.Messages)),
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	for _, m := range r.Messages {
		c.Messages = append(c.Messages, m.toRecord())
	}
	c.stored = len(c.Messages)
	return c
}

func conversationRowFromRecord(c *Conversation) conversationRow {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return conversationRow{
		ID:            c.ID,
		BotID:         c.BotID,
		Status:        string(c.Status),
		UserName:      c.UserInfo.Name,
		UserEmail:     c.UserInfo.Email,
		IP:            c.UserInfo.IP,
		UserAgent:     c.UserInfo.UserAgent,
		Tags:          tags,
		PendingPrompt: string(c.PendingPrompt),
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

type messageRow struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	ConversationID string    `gorm:"size:64;not null;index"`
	Content        string    `gorm:"type:text;not null"`
	Sender         string    `gorm:"size:16;not null"`
	Type           string    `gorm:"size:16;not null"`
	Timestamp      time.Time `gorm:"not null"`
}

func (messageRow) TableName() string {
	return "messages"
}

func (r messageRow) toRecord() Message {
	return Message{
		Content:   r.Content,
		Sender:    Sender(r.Sender),
		Timestamp: r.Timestamp.UTC(),
		Type:      r.Type,
	}
}
