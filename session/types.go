package session

// Kind identifies one of the external API credentials a user must provide.
type Kind string

const (
	// KindGemini is the text generation credential.
	KindGemini Kind = "gemini"
	// KindLeonardo is the image generation credential.
	KindLeonardo Kind = "leonardo"
)

// Valid reports whether k names a known credential kind.
func (k Kind) Valid() bool {
	return k == KindGemini || k == KindLeonardo
}

// Step is the onboarding state of a user.
type Step string

const (
	// StepStart is the initial state after /start.
	StepStart Step = "start"
	// StepAwaitGemini means the next text message is treated as a Gemini key.
	StepAwaitGemini Step = "awaiting_gemini_key"
	// StepAwaitLeonardo means the next text message is treated as a Leonardo key.
	StepAwaitLeonardo Step = "awaiting_leonardo_key"
	// StepReady means both keys are stored and validated.
	StepReady Step = "ready"
)

// AwaitStep maps a credential kind to its key-entry step.
func AwaitStep(kind Kind) Step {
	if kind == KindLeonardo {
		return StepAwaitLeonardo
	}
	return StepAwaitGemini
}

// AwaitedKind returns the credential kind a key-entry step waits for.
func AwaitedKind(step Step) (Kind, bool) {
	switch step {
	case StepAwaitGemini:
		return KindGemini, true
	case StepAwaitLeonardo:
		return KindLeonardo, true
	}
	return "", false
}

// UserSession is the per-user onboarding record.
type UserSession struct {
	Step      Step            `json:"step"`
	Keys      map[Kind]string `json:"api_keys"`
	APIsReady bool            `json:"apis_ready"`
}

// NewUserSession returns a fresh session in the start state.
func NewUserSession() UserSession {
	return UserSession{
		Step: StepStart,
		Keys: make(map[Kind]string),
	}
}

// Key returns the stored credential of the given kind, if any.
func (s UserSession) Key(kind Kind) (string, bool) {
	if s.Keys == nil {
		return "", false
	}
	v, ok := s.Keys[kind]
	return v, ok && v != ""
}

// HasAllKeys reports whether both credentials are present.
func (s UserSession) HasAllKeys() bool {
	_, g := s.Key(KindGemini)
	_, l := s.Key(KindLeonardo)
	return g && l
}

// Clone returns a deep copy so callers can mutate without racing the store.
func (s UserSession) Clone() UserSession {
	out := s
	out.Keys = make(map[Kind]string, len(s.Keys))
	for k, v := range s.Keys {
		out.Keys[k] = v
	}
	return out
}
