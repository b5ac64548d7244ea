package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"vidforge/core/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init(nil)
	os.Exit(m.Run())
}

func TestFileStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_data.json")

	fs, err := OpenFileStore(path)
	require.NoError(t, err)

	s := NewUserSession()
	s.Keys[KindGemini] = "g-key"
	s.Step = StepAwaitLeonardo
	require.NoError(t, fs.Put(42, s))

	ready := NewUserSession()
	ready.Keys[KindGemini] = "g"
	ready.Keys[KindLeonardo] = "l"
	ready.Step = StepReady
	ready.APIsReady = true
	require.NoError(t, fs.Put(7, ready))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)

	n, err := reopened.Count()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, ok := reopened.Get(42)
	require.True(t, ok)
	require.Equal(t, StepAwaitLeonardo, got.Step)
	require.Equal(t, "g-key", got.Keys[KindGemini])
	require.False(t, got.APIsReady)

	got, ok = reopened.Get(7)
	require.True(t, ok)
	require.True(t, got.APIsReady)
	require.Equal(t, StepReady, got.Step)
}

func TestFileStoreDocumentShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_data.json")

	fs, err := OpenFileStore(path)
	require.NoError(t, err)

	s := NewUserSession()
	s.Keys[KindGemini] = "secret"
	require.NoError(t, fs.Put(1234, s))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	entry, ok := raw["1234"]
	require.True(t, ok, "user ids must be encoded as decimal strings")
	require.Equal(t, "start", entry["step"])
	require.Equal(t, false, entry["apis_ready"])

	keys, ok := entry["api_keys"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "secret", keys["gemini"])
}

func TestFileStoreMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")

	fs, err := OpenFileStore(path)
	require.NoError(t, err)

	n, err := fs.Count()
	require.NoError(t, err)
	require.Equal(t, 0, n)

	_, ok := fs.Get(1)
	require.False(t, ok)
}

func TestFileStoreSkipsMalformedUserIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_data.json")
	doc := `{
		"42": {"step": "ready", "api_keys": {"gemini": "g", "leonardo": "l"}, "apis_ready": true},
		"not-a-number": {"step": "start", "api_keys": {}, "apis_ready": false}
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	fs, err := OpenFileStore(path)
	require.NoError(t, err)

	n, err := fs.Count()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, ok := fs.Get(42)
	require.True(t, ok)
	require.True(t, got.APIsReady)
}

func TestFileStoreRejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_data.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := OpenFileStore(path)
	require.Error(t, err)
}

func TestFileStoreGetReturnsCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_data.json")

	fs, err := OpenFileStore(path)
	require.NoError(t, err)

	s := NewUserSession()
	s.Keys[KindGemini] = "original"
	require.NoError(t, fs.Put(1, s))

	got, ok := fs.Get(1)
	require.True(t, ok)
	got.Keys[KindGemini] = "mutated"

	again, ok := fs.Get(1)
	require.True(t, ok)
	require.Equal(t, "original", again.Keys[KindGemini])
}
