// Package pipeline renders a narrated slideshow video from a text prompt.
// A run walks three stages: describe the prompt, illustrate it as scene
// images, then narrate and compose the final clip. All intermediate files
// live in a per-job scratch directory that is removed when the run ends,
// whatever the outcome.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vidforge/core/logger"
	"log/slog"
)

// Options tunes a Pipeline.
type Options struct {
	SceneCount int
	FPS        int
	TmpRoot    string
}

// Pipeline wires the four stage implementations together.
type Pipeline struct {
	describe   Describer
	illustrate Illustrator
	narrate    Narrator
	compose    Composer
	opts       Options
}

// New builds a Pipeline. Zero options fall back to three scenes at 24 fps
// under the system temp directory.
func New(describe Describer, illustrate Illustrator, narrate Narrator, compose Composer, opts Options) *Pipeline {
	if opts.SceneCount <= 0 {
		opts.SceneCount = 3
	}
	if opts.FPS <= 0 {
		opts.FPS = 24
	}
	if opts.TmpRoot == "" {
		opts.TmpRoot = os.TempDir()
	}
	return &Pipeline{
		describe:   describe,
		illustrate: illustrate,
		narrate:    narrate,
		compose:    compose,
		opts:       opts,
	}
}

// Run executes the full pipeline for job. The deliver callback receives the
// finished video path and must consume it before returning; the scratch
// directory is deleted as soon as Run ends.
func (p *Pipeline) Run(ctx context.Context, job Job, report Reporter, deliver func(videoPath string) error) error {
	if report == nil {
		report = func(Stage) {}
	}
	ctx = logger.WithJob(ctx, job.ID)
	start := time.Now()

	scratch, err := os.MkdirTemp(p.opts.TmpRoot, "vidforge-"+job.ID+"-")
	if err != nil {
		return fmt.Errorf("pipeline: scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			logger.PIPE.Warn("scratch cleanup failed",
				slog.String("event", "pipeline.cleanup"),
				slog.String("job_id", job.ID),
				slog.String("path", scratch),
				slog.String("err", rmErr.Error()),
			)
		}
	}()

	runErr := p.run(ctx, job, scratch, report, deliver)

	logger.PIPE.LogAttrs(ctx, slog.LevelInfo, "pipeline finished",
		slog.String("event", "pipeline.run"),
		slog.String("status", logger.Status(runErr)),
		slog.String("job_id", job.ID),
		slog.Int64("user_id", job.UserID),
		slog.Duration("duration", logger.Took(start)),
	)
	return runErr
}

func (p *Pipeline) run(ctx context.Context, job Job, scratch string, report Reporter, deliver func(string) error) error {
	report(StageDescribe)
	description, err := p.runDescribe(ctx, job)
	if err != nil {
		return err
	}

	report(StageIllustrate)
	imagePaths, err := p.runIllustrate(ctx, job, description, scratch)
	if err != nil {
		return err
	}

	report(StageCompose)
	videoPath, err := p.runCompose(ctx, job, imagePaths, scratch)
	if err != nil {
		return err
	}

	if deliver != nil {
		if err := deliver(videoPath); err != nil {
			return fmt.Errorf("pipeline: deliver: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) runDescribe(ctx context.Context, job Job) (string, error) {
	ctx = logger.WithStage(ctx, StageDescribe.String())
	description, err := p.describe.Describe(ctx, job.Prompt, job.GeminiKey)
	if err != nil {
		return "", fmt.Errorf("pipeline: describe: %w", err)
	}
	return description, nil
}

// runIllustrate renders the scene images sequentially; each failed scene
// aborts the run since the slideshow needs all of them.
func (p *Pipeline) runIllustrate(ctx context.Context, job Job, description, scratch string) ([]string, error) {
	ctx = logger.WithStage(ctx, StageIllustrate.String())
	paths := make([]string, 0, p.opts.SceneCount)
	for i := 0; i < p.opts.SceneCount; i++ {
		sceneStart := time.Now()
		data, err := p.illustrate.Generate(ctx, description, job.LeonardoKey)
		if err != nil {
			return nil, fmt.Errorf("pipeline: illustrate scene %d: %w", i+1, err)
		}
		path := filepath.Join(scratch, fmt.Sprintf("scene_%d.jpg", i))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("pipeline: write scene %d: %w", i+1, err)
		}
		logger.PIPE.LogAttrs(ctx, slog.LevelDebug, "scene rendered",
			slog.String("event", "pipeline.scene"),
			slog.Int("scene", i+1),
			slog.Int("count", p.opts.SceneCount),
			slog.Duration("duration", logger.Took(sceneStart)),
		)
		paths = append(paths, path)
	}
	return paths, nil
}

func (p *Pipeline) runCompose(ctx context.Context, job Job, imagePaths []string, scratch string) (string, error) {
	ctx = logger.WithStage(ctx, StageCompose.String())

	audio, err := p.narrate.Fetch(ctx, job.Prompt)
	if err != nil {
		return "", fmt.Errorf("pipeline: narrate: %w", err)
	}
	audioPath := filepath.Join(scratch, "audio.mp3")
	if err := os.WriteFile(audioPath, audio, 0o644); err != nil {
		return "", fmt.Errorf("pipeline: write audio: %w", err)
	}

	outPath := filepath.Join(scratch, "output.mp4")
	spec := ComposeSpec{
		ImagePaths: imagePaths,
		AudioPath:  audioPath,
		Caption:    captionText(job.Prompt),
		FPS:        p.opts.FPS,
		OutPath:    outPath,
	}
	if err := p.compose.Compose(ctx, spec); err != nil {
		return "", fmt.Errorf("pipeline: compose: %w", err)
	}
	return outPath, nil
}
