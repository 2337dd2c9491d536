package chat

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Bots []Bot `yaml:"bots"`
}

// LoadBotSeeds reads bot definitions from a YAML file:
//
//	bots:
//	  - id: support
//	    name: Support Bot
//	    status: active
//	    settings:
//	      webhook_url: https://automation.example.com/webhook/abc
//	      welcome_message: Hi there!
//	      fallback_message: We'll get back to you soon.
func LoadBotSeeds(path string) ([]Bot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bot seed file %s: %w", path, err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode bot seed file %s: %w", path, err)
	}

	for i, b := range f.Bots {
		if strings.TrimSpace(b.ID) == "" {
			return nil, fmt.Errorf("bot seed file %s: bots[%d]: %w: id is required", path, i, ErrValidation)
		}
		switch b.Status {
		case "", BotStatusActive, BotStatusInactive, BotStatusDraft:
		default:
			return nil, fmt.Errorf("bot seed file %s: bots[%d]: %w: unknown status %q", path, i, ErrValidation, b.Status)
		}
	}
	return f.Bots, nil
}

func SeedBots(ctx context.Context, repo Repo, bots []Bot) error {
	for i := range bots {
		if err := repo.UpsertBot(ctx, &bots[i]); err != nil {
			return fmt.Errorf("seed bot %q: %w", bots[i].ID, err)
		}
	}
	return nil
}
