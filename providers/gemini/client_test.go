package gemini

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"vidforge/core/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init(nil)
	os.Exit(m.Run())
}

type stubChat struct {
	reply string
	err   error

	keys []string
	reqs []openai.ChatCompletionRequest
}

func (s *stubChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.reply}},
		},
	}, nil
}

func newStubClient(stub *stubChat, opts ...Option) *Client {
	c := NewClient(opts...)
	c.newAPI = func(apiKey string) chatAPI {
		stub.keys = append(stub.keys, apiKey)
		return stub
	}
	return c
}

func TestDescribe(t *testing.T) {
	stub := &stubChat{reply: "  a wide shot of a calm sea at dusk  "}
	c := newStubClient(stub, WithModel("gemini-1.5-flash"))

	out, err := c.Describe(context.Background(), "sunset over the sea", "user-key")
	require.NoError(t, err)
	require.Equal(t, "a wide shot of a calm sea at dusk", out)

	require.Equal(t, []string{"user-key"}, stub.keys)
	require.Len(t, stub.reqs, 1)
	require.Equal(t, "gemini-1.5-flash", stub.reqs[0].Model)
	content := stub.reqs[0].Messages[0].Content
	require.True(t, strings.HasSuffix(content, "sunset over the sea"))
	require.Contains(t, content, "visual description")
}

func TestDescribeBlankReply(t *testing.T) {
	c := newStubClient(&stubChat{reply: "   "})
	_, err := c.Describe(context.Background(), "prompt", "k")
	require.ErrorContains(t, err, "blank description")
}

func TestDescribeUpstreamError(t *testing.T) {
	upstream := errors.New("401 unauthorized")
	c := newStubClient(&stubChat{err: upstream})
	_, err := c.Describe(context.Background(), "prompt", "k")
	require.ErrorIs(t, err, upstream)
}

func TestValidate(t *testing.T) {
	stub := &stubChat{reply: "ok"}
	c := newStubClient(stub)

	require.Error(t, c.Validate(context.Background(), "   "))
	require.Empty(t, stub.reqs, "an empty key is rejected without a network call")

	require.NoError(t, c.Validate(context.Background(), "good-key"))
	require.Len(t, stub.reqs, 1)

	stub.err = errors.New("403 forbidden")
	require.Error(t, c.Validate(context.Background(), "bad-key"))
}
