package chat

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Vovarama1992/widget-chat-bridge/internal/db"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	gormDB, err := db.OpenGorm("sqlite", filepath.Join(t.TempDir(), "bridge.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	repo, err := NewRepo(gormDB)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seedBot(t *testing.T, repo Repo, bot Bot) Bot {
	t.Helper()
	if err := repo.UpsertBot(context.Background(), &bot); err != nil {
		t.Fatalf("upsert bot: %v", err)
	}
	return bot
}

type fixedNames string

func (n fixedNames) Generate() string { return string(n) }

type fakeRelay struct {
	mu     sync.Mutex
	result RelayResult
	calls  []string
}

func (f *fakeRelay) Relay(_ context.Context, webhookURL, message, _ string) RelayResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, message)
	if webhookURL == "" {
		return RelayResult{Err: ErrNoEndpoint}
	}
	return f.result
}

func (f *fakeRelay) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeAssistant struct {
	reply string
	err   error
	calls int
}

func (f *fakeAssistant) GetReply(_ context.Context, _ string, _ string) (string, error) {
	f.calls++
	return f.reply, f.err
}
