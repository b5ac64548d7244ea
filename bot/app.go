// Package bot wires the Telegram surface: onboarding keyboards, the key
// entry flow, the membership gate, and the video pipeline behind a single
// text endpoint.
package bot

import (
	"context"
	"fmt"

	coreconfig "vidforge/core/config"
	tg "vidforge/core/telegram"
	"vidforge/core/telegram/commands"
	"vidforge/core/telegram/router"
	"vidforge/membership"
	"vidforge/pipeline"
	"vidforge/providers/gemini"
	"vidforge/providers/leonardo"
	"vidforge/providers/tts"
	"vidforge/session"

	tele "gopkg.in/telebot.v4"
)

// botAPI is the slice of *tele.Bot the handlers call directly: membership
// lookups plus the status-message lifecycle. Split out so tests can
// substitute it.
type botAPI interface {
	membership.ChatMemberGetter
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// videoPipeline is the rendering entry point. *pipeline.Pipeline satisfies it.
type videoPipeline interface {
	Run(ctx context.Context, job pipeline.Job, report pipeline.Reporter, deliver func(videoPath string) error) error
}

// App aggregates the bot's long-lived components.
type App struct {
	cfg  *coreconfig.Config
	mgr  *session.Manager
	gate *membership.Gate
	pipe videoPipeline
	reg  *tg.Registry

	api func(c tele.Context) botAPI
}

// New builds the application from configuration: session store, provider
// clients, pipeline, and the command/callback registry.
func New(cfg *coreconfig.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bot: nil config")
	}

	store, err := session.OpenStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("bot: open session store: %w", err)
	}

	geminiClient := gemini.NewClient()
	leonardoClient := leonardo.NewClient(
		leonardo.WithPolling(cfg.Pipeline.PollInterval(), cfg.Pipeline.PollDeadline()),
	)
	ttsClient := tts.NewClient(cfg.Pipeline.TTSEndpoint, cfg.Pipeline.TTSLang)

	mgr := session.NewManager(store, map[session.Kind]session.Validator{
		session.KindGemini:   geminiClient,
		session.KindLeonardo: leonardoClient,
	})

	pipe := pipeline.New(geminiClient, leonardoClient, ttsClient, pipeline.NewFFmpegComposer(), pipeline.Options{
		SceneCount: cfg.Pipeline.SceneCount,
		FPS:        cfg.Pipeline.FPS,
		TmpRoot:    cfg.Pipeline.TmpRoot,
	})

	a := &App{
		cfg:  cfg,
		mgr:  mgr,
		gate: membership.NewGate(cfg.Channel.Username),
		pipe: pipe,
		api:  func(c tele.Context) botAPI { return c.Bot() },
	}
	reg, err := a.buildRegistry()
	if err != nil {
		return nil, err
	}
	a.reg = reg
	return a, nil
}

// buildRegistry declares every command, callback, and the text fallback.
func (a *App) buildRegistry() (*tg.Registry, error) {
	reg := tg.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Start over and set up API keys",
	})
	reg.RegisterCommand("/stats", commands.Command{
		Handler:     a.handleStats,
		Description: "Bot usage statistics",
		AdminOnly:   true,
		Hidden:      true,
	})

	if err := reg.RegisterCallback(cbSetGemini, a.keyEntryCallback(session.KindGemini)); err != nil {
		return nil, fmt.Errorf("bot: register callback %s: %w", cbSetGemini, err)
	}
	if err := reg.RegisterCallback(cbSetLeonardo, a.keyEntryCallback(session.KindLeonardo)); err != nil {
		return nil, fmt.Errorf("bot: register callback %s: %w", cbSetLeonardo, err)
	}

	reg.SetTextFallback(a.handleText)
	return reg, nil
}

// Registry exposes the command registry, mainly for wiring checks in tests.
func (a *App) Registry() *tg.Registry {
	return a.reg
}

// TelegramRunOptions assembles routes and middlewares for the bot runtime.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	routes := router.CommandRoutes(a.reg, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(a.reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(a, a.reg, router.TextOptions{})...)

	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    a.reg,
		Middlewares: tg.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
	}, nil
}
