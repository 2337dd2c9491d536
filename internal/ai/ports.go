package ai

import "context"

// AI answers a visitor when a bot has no automation endpoint. It knows
// nothing about conversations or storage.
type AI interface {
	GetReply(
		ctx context.Context,
		systemPrompt string,
		userText string,
	) (string, error)
}
