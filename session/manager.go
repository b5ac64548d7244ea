package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vidforge/core/logger"
	"log/slog"
)

var (
	// ErrNotAwaiting is returned when a key is submitted while no key entry is in progress.
	ErrNotAwaiting = errors.New("session: no key entry in progress")
	// ErrInvalidKey wraps credential validation failures; the key is not stored.
	ErrInvalidKey = errors.New("session: credential validation failed")
)

// Validator checks a candidate credential against its upstream API.
type Validator interface {
	Validate(ctx context.Context, key string) error
}

// SubmitResult reports what a successful key submission changed.
type SubmitResult struct {
	Kind Kind
	// BecameReady is true exactly once: on the submission that completed
	// the second credential.
	BecameReady bool
}

// Manager drives the onboarding state machine on top of a Store.
// Credentials are validated before anything is written; a rejected key
// leaves both the step and the stored keys untouched. Persistence failures
// are logged only: the in-memory state keeps serving best-effort.
type Manager struct {
	store      Store
	validators map[Kind]Validator
}

// NewManager builds a Manager with one validator per credential kind.
func NewManager(store Store, validators map[Kind]Validator) *Manager {
	return &Manager{store: store, validators: validators}
}

// Begin ensures a session exists for id and returns it.
func (m *Manager) Begin(id int64) UserSession {
	if s, ok := m.store.Get(id); ok {
		return s
	}
	s := NewUserSession()
	if err := m.store.Put(id, s); err != nil {
		logger.SESS.Error("session create failed",
			slog.String("event", "session.create"),
			slog.Int64("user_id", id),
			slog.String("err", err.Error()),
		)
	}
	return s
}

// Reset discards any existing session for id and starts over with empty
// credentials. Used by the /start entry point.
func (m *Manager) Reset(id int64) UserSession {
	s := NewUserSession()
	if err := m.store.Put(id, s); err != nil {
		logger.SESS.Error("session reset failed",
			slog.String("event", "session.reset"),
			slog.Int64("user_id", id),
			slog.String("err", err.Error()),
		)
	}
	return s
}

// Session returns the stored session for id without creating one.
func (m *Manager) Session(id int64) (UserSession, bool) {
	return m.store.Get(id)
}

// BeginKeyEntry moves the user into the key-entry step for kind.
// Re-entering key entry for an already stored credential is allowed and
// overwrites it on the next valid submission.
func (m *Manager) BeginKeyEntry(id int64, kind Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("session: unknown credential kind %q", kind)
	}
	s := m.Begin(id)
	s.Step = AwaitStep(kind)
	if err := m.store.Put(id, s); err != nil {
		logger.SESS.Error("session persist failed",
			slog.String("event", "session.await"),
			slog.Int64("user_id", id),
			slog.String("kind", string(kind)),
			slog.String("err", err.Error()),
		)
	}
	logger.SESS.Info("key entry started",
		slog.String("event", "session.await"),
		slog.Int64("user_id", id),
		slog.String("kind", string(kind)),
		slog.String("step", string(s.Step)),
	)
	return nil
}

// InProgress reports whether the user is mid key entry. It satisfies the
// router FSM contract so raw text reaches SubmitKey only in that state.
func (m *Manager) InProgress(id int64) bool {
	s, ok := m.store.Get(id)
	if !ok {
		return false
	}
	_, awaiting := AwaitedKind(s.Step)
	return awaiting
}

// SubmitKey validates the submitted credential for whatever kind the user
// is awaiting and commits it only on success. The first submission that
// completes both credentials flips APIsReady and reports BecameReady.
func (m *Manager) SubmitKey(ctx context.Context, id int64, key string) (SubmitResult, error) {
	s, ok := m.store.Get(id)
	if !ok {
		return SubmitResult{}, ErrNotAwaiting
	}
	kind, awaiting := AwaitedKind(s.Step)
	if !awaiting {
		return SubmitResult{}, ErrNotAwaiting
	}

	v := m.validators[kind]
	if v == nil {
		return SubmitResult{}, fmt.Errorf("session: no validator for kind %q", kind)
	}

	start := time.Now()
	if err := v.Validate(ctx, key); err != nil {
		logger.SESS.Warn("credential rejected",
			slog.String("event", "session.validate"),
			slog.String("status", "fail"),
			slog.Int64("user_id", id),
			slog.String("kind", string(kind)),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return SubmitResult{Kind: kind}, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	wasReady := s.APIsReady
	if s.Keys == nil {
		s.Keys = make(map[Kind]string)
	}
	s.Keys[kind] = key
	s.APIsReady = s.HasAllKeys()
	if s.APIsReady {
		s.Step = StepReady
	} else {
		s.Step = StepStart
	}
	if err := m.store.Put(id, s); err != nil {
		logger.SESS.Error("session persist failed",
			slog.String("event", "session.persist"),
			slog.Int64("user_id", id),
			slog.String("kind", string(kind)),
			slog.String("err", err.Error()),
		)
	}

	res := SubmitResult{
		Kind:        kind,
		BecameReady: s.APIsReady && !wasReady,
	}
	logger.SESS.Info("credential accepted",
		slog.String("event", "session.validate"),
		slog.String("status", "ok"),
		slog.Int64("user_id", id),
		slog.String("kind", string(kind)),
		slog.Bool("ready", s.APIsReady),
		slog.Duration("duration", logger.Took(start)),
	)
	return res, nil
}

// Ready reports whether the user has both validated credentials.
func (m *Manager) Ready(id int64) bool {
	s, ok := m.store.Get(id)
	return ok && s.APIsReady
}

// Count returns the number of users the store has ever seen.
func (m *Manager) Count() (int, error) {
	return m.store.Count()
}
