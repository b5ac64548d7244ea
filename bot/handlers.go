package bot

import (
	"context"
	"errors"
	"strings"

	"vidforge/core/logger"
	tghelpers "vidforge/core/telegram/helpers"
	"vidforge/pipeline"
	"vidforge/session"

	"log/slog"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"
)

// handleStart begins or restarts onboarding. The session is recreated with
// empty credentials, so returning users always re-enter their keys.
func (a *App) handleStart(c tele.Context) error {
	a.mgr.Reset(c.Sender().ID)
	return tghelpers.SendMD(c, msgWelcome, onboardingMarkup())
}

func (a *App) handleStats(c tele.Context) error {
	users, err := a.mgr.Count()
	if err != nil {
		return err
	}
	return tghelpers.SendMD(c, msgStats(users))
}

// keyEntryCallback moves the user into key entry for kind and swaps the
// onboarding message for the key prompt.
func (a *App) keyEntryCallback(kind session.Kind) tele.HandlerFunc {
	return func(c tele.Context) error {
		if err := a.mgr.BeginKeyEntry(c.Sender().ID, kind); err != nil {
			return err
		}
		return tghelpers.EditOrSendMD(c, msgKeyPrompt(kind))
	}
}

// InProgress satisfies the router FSM contract: raw text is routed to
// ManagerHandler while the user is mid key entry.
func (a *App) InProgress(userID int64) bool {
	return a.mgr.InProgress(userID)
}

// ManagerHandler consumes one text message as a credential. A rejected key
// keeps the user in key entry; the submission that completes both keys also
// announces readiness.
func (a *App) ManagerHandler(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	res, err := a.mgr.SubmitKey(ctx, c.Sender().ID, strings.TrimSpace(c.Text()))
	switch {
	case errors.Is(err, session.ErrInvalidKey):
		return tghelpers.SendMD(c, msgKeyInvalid(res.Kind))
	case errors.Is(err, session.ErrNotAwaiting):
		return a.handleStart(c)
	case err != nil:
		return err
	}

	if err := tghelpers.SendMD(c, msgKeySaved(res.Kind)); err != nil {
		return err
	}
	if res.BecameReady {
		return tghelpers.SendMD(c, msgAllReady)
	}
	return nil
}

// handleText is the fallback for plain text outside key entry. Users without
// both credentials are sent back to onboarding; ready users get their prompt
// gated and rendered.
func (a *App) handleText(c tele.Context) error {
	uid := c.Sender().ID
	s, ok := a.mgr.Session(uid)
	if !ok || !s.APIsReady {
		return a.handleStart(c)
	}

	prompt := strings.TrimSpace(c.Text())
	if len([]rune(prompt)) < a.cfg.Pipeline.MinPromptLen {
		return tghelpers.SendMD(c, msgPromptTooShort)
	}

	ctx := tghelpers.BuildContext(c)
	api := a.api(c)
	if !a.gate.IsMember(ctx, api, uid) {
		return tghelpers.SendMD(c, msgJoinChannel, joinChannelMarkup(a.gate.Channel()))
	}

	return a.runVideoJob(ctx, c, api, s, prompt)
}

// runVideoJob drives one pipeline run against the chat: a status message is
// edited in place as stages advance, the finished video is sent from disk
// before the scratch directory disappears, and the status message is removed
// at the end regardless of outcome.
func (a *App) runVideoJob(ctx context.Context, c tele.Context, api botAPI, s session.UserSession, prompt string) error {
	geminiKey, _ := s.Key(session.KindGemini)
	leonardoKey, _ := s.Key(session.KindLeonardo)

	markdown := &tele.SendOptions{ParseMode: tele.ModeMarkdown}
	status, err := api.Send(c.Chat(), stageText(0), markdown)
	if err != nil {
		return err
	}
	defer func() {
		_ = api.Delete(status)
	}()

	job := pipeline.Job{
		ID:          uuid.NewString(),
		UserID:      c.Sender().ID,
		Prompt:      prompt,
		GeminiKey:   geminiKey,
		LeonardoKey: leonardoKey,
	}
	ctx = logger.WithJob(ctx, job.ID)

	report := func(stage pipeline.Stage) {
		if _, editErr := api.Edit(status, stageText(stage), markdown); editErr != nil {
			logger.Warn(ctx, "bot", "job.status_edit",
				slog.String("stage", stage.String()),
				slog.String("err", editErr.Error()),
			)
		}
	}

	deliver := func(videoPath string) error {
		video := &tele.Video{
			File:    tele.FromDisk(videoPath),
			Caption: msgVideoCaption,
		}
		_, sendErr := api.Send(c.Chat(), video, markdown)
		return sendErr
	}

	if runErr := a.pipe.Run(ctx, job, report, deliver); runErr != nil {
		logger.Error(ctx, "bot", "job.failed",
			slog.String("err", runErr.Error()),
		)
		return tghelpers.SendMD(c, msgProcessingFailed)
	}
	return nil
}
