package bot

import (
	"os"
	"path/filepath"
	"testing"

	coreconfig "vidforge/core/config"
	"vidforge/core/logger"
	"vidforge/session"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestMain(m *testing.M) {
	_ = logger.Init(nil)
	os.Exit(m.Run())
}

func testConfig(t *testing.T) *coreconfig.Config {
	t.Helper()
	cfg := &coreconfig.Config{}
	cfg.Telegram.Token = "123:test-token"
	cfg.Telegram.AdminID = 42
	cfg.Channel.Username = "mychannel"
	cfg.Storage.Driver = coreconfig.StorageDriverFile
	cfg.Storage.File = filepath.Join(t.TempDir(), "user_data.json")
	require.NoError(t, coreconfig.Normalize(cfg))
	return cfg
}

func TestNewWiresRegistry(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)

	reg := app.Registry()
	_, _, ok := reg.LookupCommand("/start")
	require.True(t, ok)
	key, stats, ok := reg.LookupCommand("/stats")
	require.True(t, ok)
	require.Equal(t, "/stats", key)
	require.True(t, stats.AdminOnly)

	_, ok = reg.GetCallback(cbSetGemini)
	require.True(t, ok)
	_, ok = reg.GetCallback(cbSetLeonardo)
	require.True(t, ok)
	require.NotNil(t, reg.TextFallback())

	// Admin-only commands stay out of the public command menu.
	for _, cmd := range reg.ListCommands(true) {
		require.NotEqual(t, "/stats", cmd.Text)
	}
}

func TestDuplicateCallbackRegistrationFails(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)

	err = app.Registry().RegisterCallback(cbSetGemini, func(tele.Context) error { return nil })
	require.Error(t, err, "re-registering a wired callback must surface the mistake")
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestTelegramRunOptions(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)

	opts, err := app.TelegramRunOptions()
	require.NoError(t, err)
	require.Same(t, app.Registry(), opts.Registry)
	require.NotEmpty(t, opts.Middlewares)
	// Two commands, the callback route, and the text/document routes.
	require.Len(t, opts.Routes, 5)
}

func TestInProgressDelegatesToManager(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)

	require.False(t, app.InProgress(5))
	require.NoError(t, app.mgr.BeginKeyEntry(5, session.KindGemini))
	require.True(t, app.InProgress(5))
}
