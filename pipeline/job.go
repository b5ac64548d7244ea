package pipeline

import "context"

// Job carries everything one video rendering run needs. Keys come from the
// requesting user's session.
type Job struct {
	ID          string
	UserID      int64
	Prompt      string
	GeminiKey   string
	LeonardoKey string
}

// Stage identifies a user-visible phase of the pipeline.
type Stage int

const (
	// StageDescribe turns the prompt into a visual description.
	StageDescribe Stage = iota + 1
	// StageIllustrate renders the scene images.
	StageIllustrate
	// StageCompose narrates and assembles the final video.
	StageCompose

	// StageTotal is the number of user-visible stages.
	StageTotal = 3
)

// String returns the short stage name used in logs.
func (s Stage) String() string {
	switch s {
	case StageDescribe:
		return "describe"
	case StageIllustrate:
		return "illustrate"
	case StageCompose:
		return "compose"
	}
	return "unknown"
}

// Reporter receives stage transitions so the bot can update its status
// message. Implementations must tolerate being called from the pipeline
// goroutine.
type Reporter func(stage Stage)

// Describer produces a visual description from the user prompt.
type Describer interface {
	Describe(ctx context.Context, prompt, apiKey string) (string, error)
}

// Illustrator renders a single scene image for a description.
type Illustrator interface {
	Generate(ctx context.Context, prompt, apiKey string) ([]byte, error)
}

// Narrator fetches narration audio for the original prompt text.
type Narrator interface {
	Fetch(ctx context.Context, text string) ([]byte, error)
}

// ComposeSpec names the media files the composer assembles.
type ComposeSpec struct {
	ImagePaths []string
	AudioPath  string
	Caption    string
	FPS        int
	OutPath    string
}

// Composer assembles images and audio into the final video file.
type Composer interface {
	Compose(ctx context.Context, spec ComposeSpec) error
}
