package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var ErrEmptyReply = errors.New("ai: empty reply")

type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

func NewOpenAIClient(apiKey, model string, logger *slog.Logger) *OpenAIClient {
	return NewOpenAIClientWithConfig(openai.DefaultConfig(apiKey), model, logger)
}

func NewOpenAIClientWithConfig(cfg openai.ClientConfig, model string, logger *slog.Logger) *OpenAIClient {
	if strings.TrimSpace(model) == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

func (c *OpenAIClient) GetReply(
	ctx context.Context,
	systemPrompt string,
	userText string,
) (string, error) {

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userText},
		},
	})
	if err != nil {
		c.logger.Warn("openai request failed", "model", c.model, "error", err)
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}

	c.logger.Debug("openai reply", "model", c.model, "tokens", resp.Usage.TotalTokens)
	return reply, nil
}
