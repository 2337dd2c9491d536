package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"
)

func newTestOutbound(opts ...WebhookOption) *WebhookOutbound {
	base := []WebhookOption{WithRetryDelay(0), WithAttemptTimeout(2 * time.Second)}
	return NewWebhookOutbound(testLogger(), append(base, opts...)...)
}

func TestRelayRetriesServerErrorThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"output":"ok"}`)
	}))
	defer srv.Close()

	res := newTestOutbound().Relay(context.Background(), srv.URL, "hello", "bot_1")
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Text != "ok" {
		t.Fatalf("expected ok, got %q", res.Text)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
}

func TestRelayDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	res := newTestOutbound().Relay(context.Background(), srv.URL, "hello", "bot_1")
	if res.Err == nil {
		t.Fatal("expected error")
	}
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}

func TestRelayStopsAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	res := newTestOutbound().Relay(context.Background(), srv.URL, "hello", "bot_1")
	if res.Err == nil || res.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 error, got status=%d err=%v", res.StatusCode, res.Err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}

	calls.Store(0)
	res = newTestOutbound(WithMaxAttempts(3)).Relay(context.Background(), srv.URL, "hello", "bot_1")
	if got := calls.Load(); got != 3 || res.Attempts != 3 {
		t.Fatalf("expected 3 calls, got %d (attempts=%d)", got, res.Attempts)
	}
}

func TestRelayRetriesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := newTestOutbound().Relay(context.Background(), url, "hello", "bot_1")
	if res.Err == nil {
		t.Fatal("expected transport error")
	}
	if res.Attempts != 2 || res.StatusCode != 0 {
		t.Fatalf("expected 2 attempts without status, got attempts=%d status=%d", res.Attempts, res.StatusCode)
	}
}

func TestRelayAttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	res := newTestOutbound(WithAttemptTimeout(50*time.Millisecond), WithMaxAttempts(1)).
		Relay(context.Background(), srv.URL, "hello", "bot_1")
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", res.Err)
	}
}

func TestRelaySurvivesCallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"reply":"still here"}`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestOutbound().Relay(ctx, srv.URL, "hello", "bot_1")
	if res.Err != nil || res.Text != "still here" {
		t.Fatalf("expected reply despite cancelled caller, got %q err=%v", res.Text, res.Err)
	}
}

func TestRelayRequestBody(t *testing.T) {
	var got webhookRequest
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `"plain json string"`)
	}))
	defer srv.Close()

	out := newTestOutbound()
	out.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }

	res := out.Relay(context.Background(), srv.URL, "where is my order?", "bot_1")
	if res.Err != nil || res.Text != "plain json string" {
		t.Fatalf("unexpected result: %q err=%v", res.Text, res.Err)
	}
	if contentType != "application/json" {
		t.Fatalf("expected json content type, got %q", contentType)
	}
	if got.Action != "sendMessage" || got.ChatInput != "where is my order?" || got.Message != "where is my order?" {
		t.Fatalf("unexpected body: %+v", got)
	}
	if !strings.HasPrefix(got.SessionID, "bot_1_") {
		t.Fatalf("unexpected session id %q", got.SessionID)
	}
	if got.Timestamp != "2026-05-01T12:00:00Z" {
		t.Fatalf("unexpected timestamp %q", got.Timestamp)
	}
}

func TestRelayUnusableBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"status":"queued"}`)
	}))
	defer srv.Close()

	res := newTestOutbound().Relay(context.Background(), srv.URL, "hello", "bot_1")
	if !errors.Is(res.Err, ErrUnusableResponse) {
		t.Fatalf("expected ErrUnusableResponse, got %v", res.Err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}

func TestRelayWithoutEndpoint(t *testing.T) {
	res := newTestOutbound().Relay(context.Background(), "  ", "hello", "bot_1")
	if !errors.Is(res.Err, ErrNoEndpoint) {
		t.Fatalf("expected ErrNoEndpoint, got %v", res.Err)
	}
	if res.Attempts != 0 {
		t.Fatalf("expected no attempts, got %d", res.Attempts)
	}
}

func TestParseWebhookReply(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   string
		wantOK bool
	}{
		{name: "output", body: `{"output":"a","message":"b"}`, want: "a", wantOK: true},
		{name: "array content", body: `[{"content":{"text":"first"}},{"content":{"text":"second"}}]`, want: "first", wantOK: true},
		{name: "content text", body: `{"content":{"text":"c"},"message":"m"}`, want: "c", wantOK: true},
		{name: "message", body: `{"message":"m","response":"r"}`, want: "m", wantOK: true},
		{name: "response", body: `{"response":"r","reply":"x"}`, want: "r", wantOK: true},
		{name: "reply", body: `{"reply":"x","text":"t"}`, want: "x", wantOK: true},
		{name: "text", body: `{"text":"t"}`, want: "t", wantOK: true},
		{name: "empty output falls through", body: `{"output":"","text":"t"}`, want: "t", wantOK: true},
		{name: "json string", body: `"hello"`, want: "hello", wantOK: true},
		{name: "raw text", body: "  thanks for waiting \n", want: "thanks for waiting", wantOK: true},
		{name: "unknown object", body: `{"status":"ok"}`, wantOK: false},
		{name: "non-string output", body: `{"output":42}`, wantOK: false},
		{name: "empty array", body: `[]`, wantOK: false},
		{name: "empty body", body: "   ", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseWebhookReply([]byte(tt.body))
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("ParseWebhookReply(%q) = %q, %v; want %q, %v", tt.body, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestShortCutsOnRuneBoundary(t *testing.T) {
	if got := short("ok"); got != "ok" {
		t.Fatalf("expected short string unchanged, got %q", got)
	}
	got := short(strings.Repeat("ж", 200))
	if !strings.HasSuffix(got, "...") || !utf8.ValidString(got) {
		t.Fatalf("expected valid truncated string, got %q", got)
	}
	if n := utf8.RuneCountInString(strings.TrimSuffix(got, "...")); n != 180 {
		t.Fatalf("expected 180 runes, got %d", n)
	}
}
