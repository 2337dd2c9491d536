package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"
)

func TestResolveReusesOpenConversation(t *testing.T) {
	repo := newTestRepo(t)
	r := NewResolver(repo, nil, testLogger())
	ctx := context.Background()

	first, err := r.Resolve(ctx, "bot_1", "", visitor)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first.Status != ConversationStatusNew || first.UserInfo.Name != "" || len(first.Tags) != 0 {
		t.Fatalf("unexpected new conversation: %+v", first)
	}

	byFingerprint, err := r.Resolve(ctx, "bot_1", "", visitor)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if byFingerprint.ID != first.ID {
		t.Fatalf("expected fingerprint match %s, got %s", first.ID, byFingerprint.ID)
	}

	other := UserInfo{IP: "192.0.2.10", UserAgent: "curl/8"}
	byID, err := r.Resolve(ctx, "bot_1", first.ID, other)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if byID.ID != first.ID {
		t.Fatalf("expected id match %s, got %s", first.ID, byID.ID)
	}
}

func TestResolveIgnoresForeignConversationID(t *testing.T) {
	repo := newTestRepo(t)
	r := NewResolver(repo, nil, testLogger())
	ctx := context.Background()

	foreign, err := r.Resolve(ctx, "bot_2", "", visitor)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	conv, err := r.Resolve(ctx, "bot_1", foreign.ID, visitor)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if conv.ID == foreign.ID || conv.BotID != "bot_1" {
		t.Fatalf("expected a bot_1 conversation, got %+v", conv)
	}
}

func TestResolveUnknownIDFallsBackToFingerprint(t *testing.T) {
	repo := newTestRepo(t)
	r := NewResolver(repo, nil, testLogger())
	ctx := context.Background()

	first, err := r.Resolve(ctx, "bot_1", "", visitor)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	conv, err := r.Resolve(ctx, "bot_1", "does-not-exist", visitor)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if conv.ID != first.ID {
		t.Fatalf("expected %s, got %s", first.ID, conv.ID)
	}
}

func TestResolveConcurrentFirstContact(t *testing.T) {
	repo := newTestRepo(t)
	r := NewResolver(repo, nil, testLogger())
	ctx := context.Background()

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := r.Resolve(ctx, "bot_1", "", visitor)
			errs[i] = err
			if conv != nil {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("expected a single conversation, got %s and %s", ids[0], ids[i])
		}
	}
	n, err := repo.CountConversations(ctx, "bot_1", time.Time{})
	if err != nil || n != 1 {
		t.Fatalf("expected 1 stored conversation, got %d err=%v", n, err)
	}
}

func TestResolveClipsOversizedUserInfo(t *testing.T) {
	repo := newTestRepo(t)
	r := NewResolver(repo, nil, testLogger())
	ctx := context.Background()

	info := UserInfo{
		Name:      strings.Repeat("n", 300),
		Email:     strings.Repeat("é", 250) + "@example.com",
		IP:        strings.Repeat("1", 100),
		UserAgent: strings.Repeat("ü", 2000),
	}
	first, err := r.Resolve(ctx, "bot_1", "", info)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got := first.UserInfo
	if utf8.RuneCountInString(got.UserAgent) != maxUserAgentLength || utf8.RuneCountInString(got.Email) != maxEmailLength {
		t.Fatalf("expected clipped fields, got ua=%d email=%d runes",
			utf8.RuneCountInString(got.UserAgent), utf8.RuneCountInString(got.Email))
	}
	if len(got.IP) != maxIPLength || len(got.Name) != maxUserNameLength {
		t.Fatalf("expected clipped ip and name, got ip=%d name=%d", len(got.IP), len(got.Name))
	}
	if !utf8.ValidString(got.UserAgent) || !utf8.ValidString(got.Email) {
		t.Fatal("clipping produced invalid utf-8")
	}

	// the same oversized visitor must find the clipped conversation again
	again, err := r.Resolve(ctx, "bot_1", "", info)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("expected %s, got %s", first.ID, again.ID)
	}
}
