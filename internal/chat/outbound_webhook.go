package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultRelayTimeout     = 30 * time.Second
	defaultRelayRetryDelay  = time.Second
	defaultRelayMaxAttempts = 2
	maxRelayBodyBytes       = 1 << 20
)

var (
	ErrNoEndpoint       = errors.New("no endpoint configured")
	ErrUnusableResponse = errors.New("unusable webhook response")
)

type RelayResult struct {
	Text       string
	Raw        []byte
	StatusCode int
	Attempts   int
	Err        error
}

type webhookRequest struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId"`
	ChatInput string `json:"chatInput"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type WebhookOption func(*WebhookOutbound)

// WebhookOutbound posts visitor messages to the bot's automation endpoint.
type WebhookOutbound struct {
	client      *http.Client
	logger      *slog.Logger
	timeout     time.Duration
	retryDelay  time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewWebhookOutbound(logger *slog.Logger, opts ...WebhookOption) *WebhookOutbound {
	o := &WebhookOutbound{
		client:      &http.Client{},
		logger:      logger,
		timeout:     defaultRelayTimeout,
		retryDelay:  defaultRelayRetryDelay,
		maxAttempts: defaultRelayMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func WithHTTPClient(client *http.Client) WebhookOption {
	return func(o *WebhookOutbound) {
		if client != nil {
			o.client = client
		}
	}
}

func WithAttemptTimeout(d time.Duration) WebhookOption {
	return func(o *WebhookOutbound) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithRetryDelay(d time.Duration) WebhookOption {
	return func(o *WebhookOutbound) {
		if d >= 0 {
			o.retryDelay = d
		}
	}
}

func WithMaxAttempts(n int) WebhookOption {
	return func(o *WebhookOutbound) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// Relay retries only transport errors and 5xx responses. Caller cancellation
// does not abort an attempt in flight; each attempt is bounded by its own
// timeout instead.
func (o *WebhookOutbound) Relay(ctx context.Context, webhookURL, message, botID string) RelayResult {
	target := strings.TrimSpace(webhookURL)
	if target == "" {
		return RelayResult{Err: ErrNoEndpoint}
	}

	body, err := json.Marshal(webhookRequest{
		Action:    "sendMessage",
		SessionID: botID + "_" + uuid.NewString(),
		ChatInput: message,
		Message:   message,
		Timestamp: o.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return RelayResult{Err: fmt.Errorf("marshal webhook request: %w", err)}
	}

	base := context.WithoutCancel(ctx)
	var last RelayResult
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if attempt > 1 && o.retryDelay > 0 {
			time.Sleep(o.retryDelay)
		}

		started := time.Now()
		status, raw, err := o.post(base, target, body)
		latency := time.Since(started)
		last = RelayResult{StatusCode: status, Raw: raw, Attempts: attempt}

		switch {
		case err != nil:
			last.Err = fmt.Errorf("post webhook: %w", err)
			o.logAttempt(botID, attempt, status, latency, "transport_error", last.Err)
			continue
		case status >= http.StatusInternalServerError:
			last.Err = fmt.Errorf("webhook status=%d body=%q", status, short(string(raw)))
			o.logAttempt(botID, attempt, status, latency, "server_error", last.Err)
			continue
		case status < http.StatusOK || status >= http.StatusMultipleChoices:
			last.Err = fmt.Errorf("webhook status=%d body=%q", status, short(string(raw)))
			o.logAttempt(botID, attempt, status, latency, "client_error", last.Err)
			return last
		}

		text, ok := ParseWebhookReply(raw)
		if !ok {
			last.Err = ErrUnusableResponse
			o.logAttempt(botID, attempt, status, latency, "unusable_body", last.Err)
			return last
		}
		last.Text = text
		o.logAttempt(botID, attempt, status, latency, "success", nil)
		return last
	}
	return last
}

func (o *WebhookOutbound) post(ctx context.Context, target string, body []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read webhook body: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func (o *WebhookOutbound) logAttempt(botID string, attempt, status int, latency time.Duration, outcome string, err error) {
	attrs := []any{
		"bot_id", botID,
		"attempt", attempt,
		"status", status,
		"latency_ms", latency.Milliseconds(),
		"outcome", outcome,
	}
	if err != nil {
		o.logger.Warn("webhook attempt", append(attrs, "error", err)...)
		return
	}
	o.logger.Info("webhook attempt", attrs...)
}

func short(s string) string {
	if c := clip(s, 180); c != s {
		return c + "..."
	}
	return s
}
