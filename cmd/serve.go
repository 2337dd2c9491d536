package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"

	"github.com/Vovarama1992/widget-chat-bridge/internal/ai"
	"github.com/Vovarama1992/widget-chat-bridge/internal/analytics"
	"github.com/Vovarama1992/widget-chat-bridge/internal/chat"
	"github.com/Vovarama1992/widget-chat-bridge/internal/lock"
)

const redisPingTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	repo, err := openRepo()
	if err != nil {
		return err
	}
	defer repo.Close()

	if cfg.BotsFile != "" {
		n, err := seedFromFile(ctx, repo, cfg.BotsFile)
		if err != nil {
			return err
		}
		logger.Info("bots seeded", "file", cfg.BotsFile, "count", n)
	}

	locker, closeLocker, err := newLocker(ctx)
	if err != nil {
		return err
	}
	defer closeLocker()

	relay := chat.NewWebhookOutbound(logger,
		chat.WithAttemptTimeout(cfg.WebhookTimeout),
		chat.WithRetryDelay(cfg.WebhookRetryDelay),
		chat.WithMaxAttempts(cfg.WebhookMaxAttempts),
	)

	var opts []chat.ServiceOption
	if cfg.OpenAIAPIKey != "" {
		opts = append(opts, chat.WithAssistant(ai.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, logger)))
		logger.Info("assistant enabled for bots without webhook")
	}

	chatService := chat.NewService(repo, chat.NewResolver(repo, locker, logger), relay, logger, opts...)
	chatHandler := chat.NewHandler(chatService, logger)
	analyticsHandler := analytics.NewHandler(analytics.NewEngine(repo, logger), logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(cfg.CORSAllowedOrigins, cfg.TrustProxy, chatHandler, analyticsHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "db_driver", cfg.DBDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-serverErrCh:
		logger.Error("server failed", "error", serveErr)
	}

	// in-flight relays may still be waiting on a slow webhook
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout())
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	return serveErr
}

// newRouter only honours X-Forwarded-For / X-Real-IP when trustProxy is set;
// otherwise any caller could pick the IP half of its conversation fingerprint.
func newRouter(origins []string, trustProxy bool, chatHandler *chat.Handler, analyticsHandler *analytics.Handler) http.Handler {
	r := chi.NewRouter()
	if trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		ExposedHeaders: []string{"Content-Disposition"},
	}))

	chat.RegisterRoutes(r, chatHandler)
	analytics.RegisterRoutes(r, analyticsHandler)

	// --- health ---
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})
	return r
}

func newLocker(ctx context.Context) (lock.Locker, func(), error) {
	if cfg.RedisURL == "" {
		return lock.NewLocalLocker(), func() {}, nil
	}
	locker, err := lock.NewRedisLocker(cfg.RedisURL, logger)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := locker.Ping(pingCtx); err != nil {
		_ = locker.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("using redis fingerprint lock")
	return locker, func() { _ = locker.Close() }, nil
}

func shutdownTimeout() time.Duration {
	attempts := time.Duration(cfg.WebhookMaxAttempts)
	return attempts*cfg.WebhookTimeout + (attempts-1)*cfg.WebhookRetryDelay + 5*time.Second
}
