package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	err   error
	calls int
	last  string
}

func (v *stubValidator) Validate(_ context.Context, key string) error {
	v.calls++
	v.last = key
	return v.err
}

func newTestManager(t *testing.T) (*Manager, *stubValidator, *stubValidator) {
	t.Helper()
	fs, err := OpenFileStore(filepath.Join(t.TempDir(), "user_data.json"))
	require.NoError(t, err)
	gem := &stubValidator{}
	leo := &stubValidator{}
	mgr := NewManager(fs, map[Kind]Validator{
		KindGemini:   gem,
		KindLeonardo: leo,
	})
	return mgr, gem, leo
}

func TestSubmitKeyWithoutEntryInProgress(t *testing.T) {
	mgr, gem, _ := newTestManager(t)

	_, err := mgr.SubmitKey(context.Background(), 1, "whatever")
	require.ErrorIs(t, err, ErrNotAwaiting)
	require.Zero(t, gem.calls)

	mgr.Begin(1)
	_, err = mgr.SubmitKey(context.Background(), 1, "whatever")
	require.ErrorIs(t, err, ErrNotAwaiting)
}

func TestSubmitKeyRejectedLeavesStateUntouched(t *testing.T) {
	mgr, gem, _ := newTestManager(t)
	gem.err = errors.New("401 unauthorized")

	require.NoError(t, mgr.BeginKeyEntry(1, KindGemini))
	_, err := mgr.SubmitKey(context.Background(), 1, "bad-key")
	require.ErrorIs(t, err, ErrInvalidKey)

	s, ok := mgr.Session(1)
	require.True(t, ok)
	require.Equal(t, StepAwaitGemini, s.Step, "user stays in key entry after a rejected key")
	_, stored := s.Key(KindGemini)
	require.False(t, stored)
	require.False(t, s.APIsReady)
	require.True(t, mgr.InProgress(1))
}

func TestSubmitKeyBecomesReadyExactlyOnce(t *testing.T) {
	mgr, gem, leo := newTestManager(t)

	require.NoError(t, mgr.BeginKeyEntry(1, KindGemini))
	res, err := mgr.SubmitKey(context.Background(), 1, "g-key")
	require.NoError(t, err)
	require.Equal(t, KindGemini, res.Kind)
	require.False(t, res.BecameReady)
	require.Equal(t, 1, gem.calls)
	require.Equal(t, "g-key", gem.last)
	require.False(t, mgr.Ready(1))

	require.NoError(t, mgr.BeginKeyEntry(1, KindLeonardo))
	res, err = mgr.SubmitKey(context.Background(), 1, "l-key")
	require.NoError(t, err)
	require.Equal(t, KindLeonardo, res.Kind)
	require.True(t, res.BecameReady)
	require.Equal(t, 1, leo.calls)
	require.True(t, mgr.Ready(1))

	s, _ := mgr.Session(1)
	require.Equal(t, StepReady, s.Step)
	require.True(t, s.APIsReady)

	// Replacing a key after the session is ready does not re-announce readiness.
	require.NoError(t, mgr.BeginKeyEntry(1, KindGemini))
	res, err = mgr.SubmitKey(context.Background(), 1, "g-key-2")
	require.NoError(t, err)
	require.False(t, res.BecameReady)
	require.True(t, mgr.Ready(1))
}

func TestInProgressTracksAwaitSteps(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	require.False(t, mgr.InProgress(9))
	mgr.Begin(9)
	require.False(t, mgr.InProgress(9))

	require.NoError(t, mgr.BeginKeyEntry(9, KindLeonardo))
	require.True(t, mgr.InProgress(9))

	_, err := mgr.SubmitKey(context.Background(), 9, "l")
	require.NoError(t, err)
	require.False(t, mgr.InProgress(9))
}

// flakyStore delegates to a real store but reports every Put as failed,
// the way a full disk would while the in-memory map still updates.
type flakyStore struct {
	Store
	putErr error
}

func (f *flakyStore) Put(id int64, s UserSession) error {
	_ = f.Store.Put(id, s)
	return f.putErr
}

func TestSubmitKeyPersistFailureStillCommits(t *testing.T) {
	fs, err := OpenFileStore(filepath.Join(t.TempDir(), "user_data.json"))
	require.NoError(t, err)
	store := &flakyStore{Store: fs, putErr: errors.New("write /data: no space left on device")}
	gem := &stubValidator{}
	mgr := NewManager(store, map[Kind]Validator{KindGemini: gem, KindLeonardo: &stubValidator{}})

	require.NoError(t, mgr.BeginKeyEntry(1, KindGemini))
	require.True(t, mgr.InProgress(1))

	res, err := mgr.SubmitKey(context.Background(), 1, "good-key")
	require.NoError(t, err, "a failed flush is logged, not surfaced")
	require.Equal(t, KindGemini, res.Kind)
	require.Equal(t, 1, gem.calls)

	s, ok := mgr.Session(1)
	require.True(t, ok)
	key, stored := s.Key(KindGemini)
	require.True(t, stored)
	require.Equal(t, "good-key", key)
	require.Equal(t, StepStart, s.Step)
}

func TestResetClearsCredentials(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	require.NoError(t, mgr.BeginKeyEntry(1, KindGemini))
	_, err := mgr.SubmitKey(context.Background(), 1, "g")
	require.NoError(t, err)

	s := mgr.Reset(1)
	require.Equal(t, StepStart, s.Step)
	require.Empty(t, s.Keys)
	require.False(t, s.APIsReady)
	require.False(t, mgr.Ready(1))

	stored, ok := mgr.Session(1)
	require.True(t, ok)
	require.Empty(t, stored.Keys)
}

func TestCountReflectsKnownUsers(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	n, err := mgr.Count()
	require.NoError(t, err)
	require.Zero(t, n)

	mgr.Begin(1)
	mgr.Begin(2)
	mgr.Begin(1)

	n, err = mgr.Count()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
