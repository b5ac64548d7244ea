package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vidforge/core/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init(nil)
	os.Exit(m.Run())
}

type stubDescriber struct {
	out       string
	err       error
	calls     int
	gotPrompt string
	gotKey    string
}

func (s *stubDescriber) Describe(_ context.Context, prompt, apiKey string) (string, error) {
	s.calls++
	s.gotPrompt = prompt
	s.gotKey = apiKey
	return s.out, s.err
}

type stubIllustrator struct {
	data   []byte
	failOn int
	calls  int
	gotKey string
}

func (s *stubIllustrator) Generate(_ context.Context, _, apiKey string) ([]byte, error) {
	s.calls++
	s.gotKey = apiKey
	if s.failOn > 0 && s.calls == s.failOn {
		return nil, errors.New("upstream generation failed")
	}
	return s.data, nil
}

type stubNarrator struct {
	data    []byte
	err     error
	gotText string
}

func (s *stubNarrator) Fetch(_ context.Context, text string) ([]byte, error) {
	s.gotText = text
	return s.data, s.err
}

type stubComposer struct {
	err     error
	calls   int
	gotSpec ComposeSpec
}

func (s *stubComposer) Compose(_ context.Context, spec ComposeSpec) error {
	s.calls++
	s.gotSpec = spec
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(spec.OutPath, []byte("mp4"), 0o644)
}

func newTestPipeline(t *testing.T, desc *stubDescriber, ill *stubIllustrator, nar *stubNarrator, comp *stubComposer) (*Pipeline, string) {
	t.Helper()
	tmp := t.TempDir()
	p := New(desc, ill, nar, comp, Options{
		SceneCount: 3,
		FPS:        24,
		TmpRoot:    tmp,
	})
	return p, tmp
}

func requireScratchGone(t *testing.T, tmpRoot string) {
	t.Helper()
	entries, err := os.ReadDir(tmpRoot)
	require.NoError(t, err)
	require.Empty(t, entries, "scratch directory must be removed after the run")
}

func TestRunHappyPath(t *testing.T) {
	desc := &stubDescriber{out: "a sweeping mountain vista"}
	ill := &stubIllustrator{data: []byte("img")}
	nar := &stubNarrator{data: []byte("mp3")}
	comp := &stubComposer{}
	p, tmp := newTestPipeline(t, desc, ill, nar, comp)

	var stages []Stage
	var delivered string
	err := p.Run(context.Background(), Job{
		ID:          "job-1",
		UserID:      7,
		Prompt:      "a story about mountains",
		GeminiKey:   "g-key",
		LeonardoKey: "l-key",
	}, func(s Stage) {
		stages = append(stages, s)
	}, func(path string) error {
		delivered = path
		data, readErr := os.ReadFile(path)
		require.NoError(t, readErr)
		require.Equal(t, "mp4", string(data))
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, []Stage{StageDescribe, StageIllustrate, StageCompose}, stages)
	require.Equal(t, "a story about mountains", desc.gotPrompt)
	require.Equal(t, "g-key", desc.gotKey)
	require.Equal(t, 3, ill.calls)
	require.Equal(t, "l-key", ill.gotKey)
	require.Equal(t, "a story about mountains", nar.gotText)
	require.Equal(t, 1, comp.calls)
	require.Len(t, comp.gotSpec.ImagePaths, 3)
	require.Equal(t, 24, comp.gotSpec.FPS)
	require.Equal(t, filepath.Base(delivered), "output.mp4")
	requireScratchGone(t, tmp)
}

func TestRunDescribeFailure(t *testing.T) {
	desc := &stubDescriber{err: errors.New("401 bad key")}
	ill := &stubIllustrator{data: []byte("img")}
	comp := &stubComposer{}
	p, tmp := newTestPipeline(t, desc, ill, &stubNarrator{data: []byte("mp3")}, comp)

	delivered := false
	err := p.Run(context.Background(), Job{ID: "job-2", Prompt: "p"}, nil, func(string) error {
		delivered = true
		return nil
	})
	require.ErrorContains(t, err, "describe")
	require.False(t, delivered)
	require.Zero(t, ill.calls)
	require.Zero(t, comp.calls)
	requireScratchGone(t, tmp)
}

func TestRunIllustrateFailureAbortsRun(t *testing.T) {
	desc := &stubDescriber{out: "description"}
	ill := &stubIllustrator{data: []byte("img"), failOn: 2}
	comp := &stubComposer{}
	p, tmp := newTestPipeline(t, desc, ill, &stubNarrator{data: []byte("mp3")}, comp)

	err := p.Run(context.Background(), Job{ID: "job-3", Prompt: "p"}, nil, nil)
	require.ErrorContains(t, err, "scene 2")
	require.Equal(t, 2, ill.calls)
	require.Zero(t, comp.calls)
	requireScratchGone(t, tmp)
}

func TestRunNarrateFailure(t *testing.T) {
	desc := &stubDescriber{out: "description"}
	nar := &stubNarrator{err: errors.New("503 unavailable")}
	comp := &stubComposer{}
	p, tmp := newTestPipeline(t, desc, &stubIllustrator{data: []byte("img")}, nar, comp)

	err := p.Run(context.Background(), Job{ID: "job-4", Prompt: "p"}, nil, nil)
	require.ErrorContains(t, err, "narrate")
	require.Zero(t, comp.calls)
	requireScratchGone(t, tmp)
}

func TestRunDeliverFailurePropagates(t *testing.T) {
	desc := &stubDescriber{out: "description"}
	comp := &stubComposer{}
	p, tmp := newTestPipeline(t, desc, &stubIllustrator{data: []byte("img")}, &stubNarrator{data: []byte("mp3")}, comp)

	err := p.Run(context.Background(), Job{ID: "job-5", Prompt: "p"}, nil, func(string) error {
		return errors.New("send failed")
	})
	require.ErrorContains(t, err, "deliver")
	requireScratchGone(t, tmp)
}

func TestRunCaptionIsBounded(t *testing.T) {
	desc := &stubDescriber{out: "description"}
	comp := &stubComposer{}
	p, tmp := newTestPipeline(t, desc, &stubIllustrator{data: []byte("img")}, &stubNarrator{data: []byte("mp3")}, comp)

	long := strings.Repeat("word ", 100)
	err := p.Run(context.Background(), Job{ID: "job-6", Prompt: long}, nil, nil)
	require.NoError(t, err)
	require.LessOrEqual(t, len([]rune(comp.gotSpec.Caption)), captionMaxRunes)
	requireScratchGone(t, tmp)
}
