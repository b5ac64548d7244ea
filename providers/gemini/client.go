// Package gemini wraps the Gemini text API through its OpenAI-compatible
// endpoint. Keys are supplied per call; every user brings their own.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"vidforge/core/logger"
	"log/slog"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	defaultModel   = "gemini-pro"

	// validationProbe is a minimal completion used to prove a key works
	// before it is stored.
	validationProbe = "Test"

	describeInstruction = "Create a detailed visual description for generating a video from this text: "
)

type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client issues describe and validation calls against Gemini.
type Client struct {
	model  string
	newAPI func(apiKey string) chatAPI
}

// Option tweaks client construction.
type Option func(*Client)

// WithModel overrides the default model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if strings.TrimSpace(model) != "" {
			c.model = model
		}
	}
}

// NewClient builds a Client using the Gemini OpenAI-compatible base URL.
func NewClient(opts ...Option) *Client {
	c := &Client{
		model: defaultModel,
		newAPI: func(apiKey string) chatAPI {
			cfg := openai.DefaultConfig(apiKey)
			cfg.BaseURL = defaultBaseURL
			return openai.NewClientWithConfig(cfg)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) complete(ctx context.Context, apiKey, prompt string) (string, error) {
	resp, err := c.newAPI(apiKey).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("gemini: empty completion response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Describe turns the user prompt into a visual scene description.
func (c *Client) Describe(ctx context.Context, prompt, apiKey string) (string, error) {
	start := time.Now()
	out, err := c.complete(ctx, apiKey, describeInstruction+prompt)
	logger.PIPE.LogAttrs(ctx, slog.LevelDebug, "describe",
		slog.String("event", "gemini.describe"),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
	)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("gemini: blank description")
	}
	return out, nil
}

// Validate proves the key can complete a trivial prompt. Used before a
// submitted credential is stored.
func (c *Client) Validate(ctx context.Context, apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return fmt.Errorf("gemini: empty key")
	}
	_, err := c.complete(ctx, apiKey, validationProbe)
	return err
}
