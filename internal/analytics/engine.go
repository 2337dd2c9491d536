package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/Vovarama1992/widget-chat-bridge/internal/chat"
)

const topQuestionLimit = 10

// Engine builds reports by replaying the stored conversation log. It never
// writes to the store.
type Engine struct {
	src    Source
	logger *slog.Logger
}

func NewEngine(src Source, logger *slog.Logger) *Engine {
	return &Engine{src: src, logger: logger}
}

func (e *Engine) Aggregate(ctx context.Context, botID string, w Window) (Report, error) {
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return Report{}, fmt.Errorf("%w: botId is required", chat.ErrValidation)
	}
	if err := w.validate(); err != nil {
		return Report{}, err
	}
	w = Window{Start: w.Start.UTC(), End: w.End.UTC()}

	if _, err := e.src.GetBot(ctx, botID); err != nil {
		return Report{}, err
	}
	convs, err := e.src.ListConversations(ctx, botID, w.Start, w.End)
	if err != nil {
		return Report{}, fmt.Errorf("load conversations: %w", err)
	}

	report := Compute(botID, w, convs)
	e.logger.Debug("analytics computed",
		"bot_id", botID,
		"conversations", report.Performance.TotalConversations,
		"days", len(report.Daily),
	)
	return report, nil
}

// responsePair is a user message answered directly by a bot message.
type responsePair struct {
	question string
	seconds  float64
}

// Compute derives the full report from an already loaded conversation set.
// Output depends only on the arguments.
func Compute(botID string, w Window, convs []chat.Conversation) Report {
	w = Window{Start: w.Start.UTC(), End: w.End.UTC()}
	days, dayIndex := emptyDays(w)

	var (
		perf          PerformanceSummary
		pairs         []responsePair
		handovers     int
		resolved      int
		visits        = map[string]int{}
		activeVisitor = map[string]struct{}{}
		hourly        = make([]HourBucket, 24)
		hourlyUsers   = make([]map[string]struct{}, 24)
		dayMessages   = make([]int, len(days))
	)
	for h := range hourly {
		hourly[h].Hour = h
		hourlyUsers[h] = map[string]struct{}{}
	}

	for i := range convs {
		c := &convs[i]
		created := c.CreatedAt.UTC()
		isResolved := c.Status == chat.ConversationStatusClosed
		isHandover := hasAgentMessage(c)

		perf.TotalConversations++
		perf.TotalInteractions += len(c.Messages)
		if c.Status == chat.ConversationStatusActive {
			perf.ActiveConversations++
		}
		if isResolved {
			resolved++
		}
		if isHandover {
			handovers++
		}

		if d, ok := dayIndex[created.Format(dateLayout)]; ok {
			days[d].Conversations++
			dayMessages[d] += len(c.Messages)
			if isResolved {
				days[d].Resolved++
			}
			if isHandover {
				days[d].Handovers++
			}
		}

		visitor := visitorID(c.UserInfo)
		hour := created.Hour()
		hourly[hour].Conversations++
		if visitor != "" {
			visits[visitor]++
			hourlyUsers[hour][visitor] = struct{}{}
			if w.contains(created) {
				activeVisitor[visitor] = struct{}{}
			}
		}

		pairs = append(pairs, responsePairs(c.Messages)...)
	}

	for d := range days {
		if days[d].Conversations > 0 {
			days[d].AvgMessages = float64(dayMessages[d]) / float64(days[d].Conversations)
		}
	}
	for h := range hourly {
		hourly[h].Users = len(hourlyUsers[h])
	}

	perf.UniqueUsers = len(visits)
	perf.ActiveUsers = len(activeVisitor)
	if perf.TotalConversations > 0 {
		total := float64(perf.TotalConversations)
		perf.ResolutionRate = float64(resolved) / total * 100
		perf.HandoverRate = float64(handovers) / total * 100
		perf.AvgMessagesPerConversation = float64(perf.TotalInteractions) / total
	}
	if perf.UniqueUsers > 0 {
		perf.AvgInteractionsPerUser = float64(perf.TotalInteractions) / float64(perf.UniqueUsers)
	}

	seconds := make([]float64, len(pairs))
	for i, p := range pairs {
		seconds[i] = p.seconds
	}
	perf.AvgResponseTime = mean(seconds)
	sort.Float64s(seconds)
	perf.ResponseTimeP50 = percentile(seconds, 0.50)
	perf.ResponseTimeP90 = percentile(seconds, 0.90)
	perf.ResponseTimeP95 = percentile(seconds, 0.95)

	returning := 0
	for _, n := range visits {
		if n > 1 {
			returning++
		}
	}

	return Report{
		BotID:       botID,
		Window:      w,
		Daily:       days,
		Performance: perf,
		Engagement: UserEngagement{
			ReturningUsers: returning,
			NewUsers:       len(visits) - returning,
			PeakHours:      hourly,
		},
		TopQuestions: topQuestions(pairs, topQuestionLimit),
	}
}

// emptyDays lists every UTC calendar day touched by the window.
func emptyDays(w Window) ([]DailyStat, map[string]int) {
	first := truncateDay(w.Start)
	last := truncateDay(w.End)
	var days []DailyStat
	index := map[string]int{}
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		key := d.Format(dateLayout)
		index[key] = len(days)
		days = append(days, DailyStat{Date: key})
	}
	return days, index
}

// responsePairs walks the messages in timestamp order and keeps each user
// message whose immediate successor is a bot message.
func responsePairs(msgs []chat.Message) []responsePair {
	if len(msgs) < 2 {
		return nil
	}
	sorted := make([]chat.Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var out []responsePair
	for i := 0; i+1 < len(sorted); i++ {
		q, a := sorted[i], sorted[i+1]
		if q.Sender != chat.SenderUser || a.Sender != chat.SenderBot {
			continue
		}
		out = append(out, responsePair{
			question: strings.ToLower(strings.TrimSpace(q.Content)),
			seconds:  a.Timestamp.Sub(q.Timestamp).Seconds(),
		})
	}
	return out
}

func topQuestions(pairs []responsePair, limit int) []TopQuestion {
	type tally struct {
		count int
		total float64
	}
	byKey := map[string]*tally{}
	for _, p := range pairs {
		t, ok := byKey[p.question]
		if !ok {
			t = &tally{}
			byKey[p.question] = t
		}
		t.count++
		t.total += p.seconds
	}

	out := make([]TopQuestion, 0, len(byKey))
	for q, t := range byKey {
		out = append(out, TopQuestion{
			Question:        q,
			Count:           t.count,
			AvgResponseTime: t.total / float64(t.count),
			Percentage:      float64(t.count) / float64(len(pairs)) * 100,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Question < out[j].Question
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// visitorID identifies a visitor across conversations: email when known,
// otherwise the network fingerprint.
func visitorID(u chat.UserInfo) string {
	if email := strings.ToLower(strings.TrimSpace(u.Email)); email != "" {
		return "email:" + email
	}
	if u.IP == "" && u.UserAgent == "" {
		return ""
	}
	return "fp:" + u.IP + "|" + u.UserAgent
}

func hasAgentMessage(c *chat.Conversation) bool {
	for _, m := range c.Messages {
		if m.Sender == chat.SenderAgent {
			return true
		}
	}
	return false
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// percentile uses the plain index sorted[floor(n*p)], clamped to the last
// element. sorted must be ascending.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Floor(float64(n) * p))
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}
