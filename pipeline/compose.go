package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"vidforge/core/logger"
	"log/slog"
)

const (
	frameWidth  = 1024
	frameHeight = 576

	// captionMaxRunes bounds the drawtext overlay so it stays readable.
	captionMaxRunes = 100
)

// FFmpegComposer assembles the slideshow with ffmpeg. Each image becomes a
// still clip of equal length so the slices together cover the narration,
// with the caption burned into the bottom of every frame.
type FFmpegComposer struct {
	probe func(fileName string) (string, error)
}

// NewFFmpegComposer returns a composer backed by the ffmpeg and ffprobe
// binaries on PATH.
func NewFFmpegComposer() *FFmpegComposer {
	return &FFmpegComposer{
		probe: func(fileName string) (string, error) {
			return ffmpeg.Probe(fileName)
		},
	}
}

// Compose renders spec.OutPath from the scene images and narration audio.
func (f *FFmpegComposer) Compose(ctx context.Context, spec ComposeSpec) error {
	if len(spec.ImagePaths) == 0 {
		return fmt.Errorf("compose: no images")
	}
	if spec.FPS <= 0 {
		spec.FPS = 24
	}

	probeOut, err := f.probe(spec.AudioPath)
	if err != nil {
		return fmt.Errorf("compose: probe audio: %w", err)
	}
	audioDur, err := parseProbeDuration(probeOut)
	if err != nil {
		return fmt.Errorf("compose: probe audio: %w", err)
	}
	perScene := audioDur / float64(len(spec.ImagePaths))

	start := time.Now()
	scenes := make([]*ffmpeg.Stream, 0, len(spec.ImagePaths))
	for _, img := range spec.ImagePaths {
		scene := ffmpeg.Input(img, ffmpeg.KwArgs{
			"loop":      1,
			"t":         fmt.Sprintf("%.3f", perScene),
			"framerate": spec.FPS,
		}).
			Filter("scale", ffmpeg.Args{fmt.Sprintf("%d:%d", frameWidth, frameHeight)}).
			Filter("setsar", ffmpeg.Args{"1"})
		if spec.Caption != "" {
			scene = scene.Filter("drawtext", ffmpeg.Args{}, ffmpeg.KwArgs{
				"text":        escapeDrawText(spec.Caption),
				"fontsize":    40,
				"fontcolor":   "white",
				"borderw":     1,
				"bordercolor": "black",
				"x":           "(w-text_w)/2",
				"y":           "h-text_h-40",
			})
		}
		scenes = append(scenes, scene)
	}

	video := ffmpeg.Concat(scenes)
	audio := ffmpeg.Input(spec.AudioPath)

	err = ffmpeg.Output([]*ffmpeg.Stream{video, audio}, spec.OutPath, ffmpeg.KwArgs{
		"c:v":      "libx264",
		"c:a":      "aac",
		"pix_fmt":  "yuv420p",
		"r":        spec.FPS,
		"shortest": "",
	}).
		OverWriteOutput().
		Silent(true).
		Run()
	if err != nil {
		return fmt.Errorf("compose: ffmpeg: %w", err)
	}

	logger.PIPE.LogAttrs(ctx, slog.LevelDebug, "video composed",
		slog.String("event", "pipeline.compose"),
		slog.String("path", spec.OutPath),
		slog.Int("count", len(spec.ImagePaths)),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// parseProbeDuration extracts format.duration seconds from ffprobe JSON.
func parseProbeDuration(probeJSON string) (float64, error) {
	var doc struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(probeJSON), &doc); err != nil {
		return 0, fmt.Errorf("parse probe output: %w", err)
	}
	if doc.Format.Duration == "" {
		return 0, fmt.Errorf("probe output has no duration")
	}
	dur, err := strconv.ParseFloat(doc.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", doc.Format.Duration, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("non-positive duration %f", dur)
	}
	return dur, nil
}

// captionText trims and bounds the prompt for the on-screen caption.
func captionText(prompt string) string {
	text := strings.TrimSpace(prompt)
	r := []rune(text)
	if len(r) <= captionMaxRunes {
		return text
	}
	return string(r[:captionMaxRunes])
}

// escapeDrawText escapes characters the drawtext filter treats specially.
func escapeDrawText(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return replacer.Replace(s)
}
