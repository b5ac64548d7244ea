// Package leonardo wraps the Leonardo image generation REST API.
// Generation is asynchronous upstream: a job is submitted, polled until it
// reaches a terminal status, and the first finished image is downloaded.
package leonardo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"

	"vidforge/core/logger"
	"log/slog"
)

const (
	defaultBaseURL = "https://cloud.leonardo.ai/api/rest/v1"
	defaultModelID = "ac614f96-1082-45bf-be9d-757f2d31c174"

	defaultWidth  = 1024
	defaultHeight = 576

	// maxPromptRunes keeps the submitted prompt inside upstream limits.
	maxPromptRunes = 1000

	statusComplete = "COMPLETE"
	statusFailed   = "FAILED"
)

// ErrPollTimeout is returned when a generation does not reach a terminal
// status within the poll deadline.
var ErrPollTimeout = errors.New("leonardo: generation polling deadline exceeded")

type generateRequest struct {
	Prompt  string `json:"prompt"`
	ModelID string `json:"modelId"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

type createResponse struct {
	SDGenerationJob struct {
		GenerationID string `json:"generationId"`
	} `json:"sdGenerationJob"`
}

type generationResponse struct {
	GenerationsByPK struct {
		Status          string `json:"status"`
		GeneratedImages []struct {
			URL string `json:"url"`
		} `json:"generated_images"`
	} `json:"generations_by_pk"`
}

// Client calls the Leonardo REST API with per-user keys.
type Client struct {
	http         *resty.Client
	baseURL      string
	modelID      string
	width        int
	height       int
	pollInterval time.Duration
	pollDeadline time.Duration
}

// Option tweaks client construction.
type Option func(*Client)

// WithBaseURL overrides the API base URL, mainly for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if strings.TrimSpace(url) != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithPolling overrides the poll interval and deadline.
func WithPolling(interval, deadline time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if deadline > 0 {
			c.pollDeadline = deadline
		}
	}
}

// NewClient builds a Leonardo client with production defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:         resty.New(),
		baseURL:      defaultBaseURL,
		modelID:      defaultModelID,
		width:        defaultWidth,
		height:       defaultHeight,
		pollInterval: 5 * time.Second,
		pollDeadline: 120 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases the underlying HTTP client resources.
func (c *Client) Close() error {
	return c.http.Close()
}

// Validate checks the key against the /me endpoint. Any 2xx means the key
// is usable; everything else rejects it.
func (c *Client) Validate(ctx context.Context, apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return fmt.Errorf("leonardo: empty key")
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		Get(c.baseURL + "/me")
	if err != nil {
		return fmt.Errorf("leonardo: validate: %w", err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("leonardo: validate: unexpected status %d", res.StatusCode())
	}
	return nil
}

// Generate submits a generation job, polls it to completion, and returns
// the bytes of the first generated image.
func (c *Client) Generate(ctx context.Context, prompt, apiKey string) ([]byte, error) {
	genID, err := c.submit(ctx, prompt, apiKey)
	if err != nil {
		return nil, err
	}
	imageURL, err := c.poll(ctx, genID, apiKey)
	if err != nil {
		return nil, err
	}
	return c.download(ctx, imageURL)
}

func (c *Client) submit(ctx context.Context, prompt, apiKey string) (string, error) {
	var out createResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetBody(generateRequest{
			Prompt:  truncateRunes(prompt, maxPromptRunes),
			ModelID: c.modelID,
			Width:   c.width,
			Height:  c.height,
		}).
		SetResult(&out).
		Post(c.baseURL + "/generations")
	if err != nil {
		return "", fmt.Errorf("leonardo: submit: %w", err)
	}
	if !res.IsSuccess() {
		return "", fmt.Errorf("leonardo: submit: unexpected status %d", res.StatusCode())
	}
	genID := out.SDGenerationJob.GenerationID
	if genID == "" {
		return "", fmt.Errorf("leonardo: submit: missing generation id")
	}
	logger.PIPE.LogAttrs(ctx, slog.LevelDebug, "generation submitted",
		slog.String("event", "leonardo.submit"),
		slog.String("job_id", genID),
	)
	return genID, nil
}

// poll waits for the generation to finish, checking at the configured
// interval until the deadline.
func (c *Client) poll(ctx context.Context, genID, apiKey string) (string, error) {
	deadline := time.NewTimer(c.pollDeadline)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			logger.PIPE.LogAttrs(ctx, slog.LevelWarn, "generation poll timeout",
				slog.String("event", "leonardo.poll"),
				slog.String("status", "timeout"),
				slog.String("job_id", genID),
				slog.Int("attempts", attempts),
			)
			return "", ErrPollTimeout
		case <-ticker.C:
		}

		attempts++
		url, done, err := c.check(ctx, genID, apiKey)
		if err != nil {
			return "", err
		}
		if done {
			return url, nil
		}
	}
}

func (c *Client) check(ctx context.Context, genID, apiKey string) (string, bool, error) {
	var out generationResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetResult(&out).
		Get(c.baseURL + "/generations/" + genID)
	if err != nil {
		return "", false, fmt.Errorf("leonardo: poll: %w", err)
	}
	if !res.IsSuccess() {
		return "", false, fmt.Errorf("leonardo: poll: unexpected status %d", res.StatusCode())
	}

	gen := out.GenerationsByPK
	switch gen.Status {
	case statusFailed:
		return "", false, fmt.Errorf("leonardo: generation %s failed upstream", genID)
	case statusComplete:
		if len(gen.GeneratedImages) == 0 || gen.GeneratedImages[0].URL == "" {
			return "", false, fmt.Errorf("leonardo: generation %s finished without images", genID)
		}
		return gen.GeneratedImages[0].URL, true, nil
	}
	return "", false, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("leonardo: download image: %w", err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("leonardo: download image: unexpected status %d", res.StatusCode())
	}
	data := res.Bytes()
	if len(data) == 0 {
		return nil, fmt.Errorf("leonardo: download image: empty body")
	}
	return data, nil
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
