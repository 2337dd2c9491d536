package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Vovarama1992/widget-chat-bridge/internal/chat"
	"github.com/Vovarama1992/widget-chat-bridge/internal/config"
	"github.com/Vovarama1992/widget-chat-bridge/internal/db"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "widget-bridge",
	Short: "Chat widget intake, webhook relay and analytics",
	Long: `widget-bridge receives messages from an embedded chat widget, relays them
to each bot's automation webhook and serves conversation analytics.

Configuration comes from .env, an optional YAML file (BRIDGE_CONFIG_FILE)
and environment variables, in that order.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		logger = newLogger(cfg.LogLevel)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, reportCmd, seedCmd)
}

func newLogger(level string) *slog.Logger {
	lvl, _ := config.ParseLogLevel(level)
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func openRepo() (chat.Repo, error) {
	gormDB, err := db.OpenGorm(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	repo, err := chat.NewRepo(gormDB)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	return repo, nil
}
