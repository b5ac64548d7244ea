// Package tts fetches narration audio from the Google Translate
// text-to-speech endpoint. The endpoint is unauthenticated but limits the
// query length, so the narrated text is truncated before sending.
package tts

import (
	"context"
	"fmt"
	"strings"

	"resty.dev/v3"
)

const (
	defaultEndpoint = "https://translate.google.com/translate_tts"
	defaultLang     = "ar"

	// maxTextRunes keeps the q parameter below the endpoint's limit.
	maxTextRunes = 300
)

// Client downloads MP3 narration for a piece of text.
type Client struct {
	http     *resty.Client
	endpoint string
	lang     string
}

// NewClient builds a TTS client. Empty arguments fall back to defaults.
func NewClient(endpoint, lang string) *Client {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultEndpoint
	}
	if strings.TrimSpace(lang) == "" {
		lang = defaultLang
	}
	return &Client{
		http:     resty.New(),
		endpoint: endpoint,
		lang:     lang,
	}
}

// Close releases the underlying HTTP client resources.
func (c *Client) Close() error {
	return c.http.Close()
}

// Fetch returns MP3 bytes narrating text in the configured language.
func (c *Client) Fetch(ctx context.Context, text string) ([]byte, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ie":     "UTF-8",
			"tl":     c.lang,
			"client": "tw-ob",
			"q":      truncateRunes(text, maxTextRunes),
		}).
		Get(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("tts: fetch: %w", err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("tts: fetch: unexpected status %d", res.StatusCode())
	}
	data := res.Bytes()
	if len(data) == 0 {
		return nil, fmt.Errorf("tts: fetch: empty audio body")
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
