package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Vovarama1992/widget-chat-bridge/internal/chat"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Upsert bots from a YAML file",
	Long: `Upsert bot definitions (id, name, status, settings) into the store.
Defaults to BOTS_FILE when --file is not given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := seedFile
		if path == "" {
			path = cfg.BotsFile
		}
		if path == "" {
			return fmt.Errorf("no bot file: pass --file or set BOTS_FILE")
		}

		repo, err := openRepo()
		if err != nil {
			return err
		}
		defer repo.Close()

		n, err := seedFromFile(cmd.Context(), repo, path)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), countStyle.Render(fmt.Sprintf("seeded %d bot(s) from %s", n, path)))
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "YAML file with a bots: list")
}

func seedFromFile(ctx context.Context, repo chat.Repo, path string) (int, error) {
	bots, err := chat.LoadBotSeeds(path)
	if err != nil {
		return 0, err
	}
	if err := chat.SeedBots(ctx, repo, bots); err != nil {
		return 0, err
	}
	return len(bots), nil
}
