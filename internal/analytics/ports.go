package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/Vovarama1992/widget-chat-bridge/internal/chat"
)

var ErrInvalidRange = errors.New("invalid range")

// Source is the read side of the conversation store.
type Source interface {
	GetBot(ctx context.Context, id string) (chat.Bot, error)
	ListConversations(ctx context.Context, botID string, start, end time.Time) ([]chat.Conversation, error)
}

// Window is an inclusive [Start, End] range over conversation creation time.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

type DailyStat struct {
	Date          string  `json:"date"`
	Conversations int     `json:"conversations"`
	Resolved      int     `json:"resolved"`
	Handovers     int     `json:"handovers"`
	AvgMessages   float64 `json:"avgMessages"`
}

type PerformanceSummary struct {
	TotalConversations  int `json:"totalConversations"`
	TotalInteractions   int `json:"totalInteractions"`
	UniqueUsers         int `json:"uniqueUsers"`
	ActiveUsers         int `json:"activeUsers"`
	ActiveConversations int `json:"activeConversations"`

	// percentages in [0, 100]
	ResolutionRate float64 `json:"resolutionRate"`
	HandoverRate   float64 `json:"handoverRate"`

	// seconds
	AvgResponseTime float64 `json:"avgResponseTime"`
	ResponseTimeP50 float64 `json:"responseTimeP50"`
	ResponseTimeP90 float64 `json:"responseTimeP90"`
	ResponseTimeP95 float64 `json:"responseTimeP95"`

	AvgMessagesPerConversation float64 `json:"avgMessagesPerConversation"`
	AvgInteractionsPerUser     float64 `json:"avgInteractionsPerUser"`
}

type HourBucket struct {
	Hour          int `json:"hour"`
	Conversations int `json:"conversations"`
	Users         int `json:"users"`
}

type UserEngagement struct {
	ReturningUsers int          `json:"returningUsers"`
	NewUsers       int          `json:"newUsers"`
	PeakHours      []HourBucket `json:"peakHours"`
}

type TopQuestion struct {
	Question        string  `json:"question"`
	Count           int     `json:"count"`
	AvgResponseTime float64 `json:"avgResponseTime"`
	Percentage      float64 `json:"percentage"`
}

type Report struct {
	BotID        string             `json:"botId"`
	Window       Window             `json:"window"`
	Daily        []DailyStat        `json:"daily"`
	Performance  PerformanceSummary `json:"performance"`
	Engagement   UserEngagement     `json:"engagement"`
	TopQuestions []TopQuestion      `json:"topQuestions"`
}
