// Package synth defines the Provider interface for text-to-speech backends.
//
// A synthesis provider wraps one concrete engine, either a remote cloud
// service (ElevenLabs, an OpenAI-compatible endpoint) or a locally hosted
// neural model (XTTS, Coqui, Piper), and presents a uniform batch interface:
// one call, one complete audio artifact. Backends that can derive new voices
// from a user sample additionally implement [Cloner].
//
// Implementations must be safe for concurrent use.
package synth

import "context"

// Backend identifies one concrete synthesis engine. The set is closed; a
// voice clone carries its Backend as a first-class field and is never
// re-derived from the textual shape of an identifier.
type Backend string

const (
	// BackendElevenLabs is the remote ElevenLabs cloud service.
	BackendElevenLabs Backend = "elevenlabs"

	// BackendOpenAI is a remote OpenAI-compatible /v1/audio/speech endpoint.
	BackendOpenAI Backend = "openai"

	// BackendXTTS is a locally hosted Coqui XTTS v2 API server. The most
	// capable local backend; supports voice cloning.
	BackendXTTS Backend = "xtts"

	// BackendCoqui is a locally hosted standard Coqui TTS server. Supports
	// style-wav conditioned synthesis but no server-side clone storage.
	BackendCoqui Backend = "coqui"

	// BackendPiper is a local Piper subprocess. Synthesis only.
	BackendPiper Backend = "piper"

	// BackendESpeak is the basic last-resort engine. Always expected to work
	// when the binary is installed; ignores per-voice customization.
	BackendESpeak Backend = "espeak"
)

// IsValid reports whether b is a recognised backend.
func (b Backend) IsValid() bool {
	switch b {
	case BackendElevenLabs, BackendOpenAI, BackendXTTS, BackendCoqui, BackendPiper, BackendESpeak:
		return true
	}
	return false
}

// Local reports whether b runs on the local host rather than a remote service.
func (b Backend) Local() bool {
	switch b {
	case BackendXTTS, BackendCoqui, BackendPiper, BackendESpeak:
		return true
	}
	return false
}

// Settings holds per-request voice quality parameters. A zero value means
// "use the backend default" for that field; callers that want an explicit
// value in a field's valid range should clamp first (see config.ClampSettings).
type Settings struct {
	// Speed adjusts speaking rate. Valid range [0.25, 4.0], 0 = default (1.0).
	Speed float64 `json:"speed,omitempty"`

	// Stability controls voice consistency on backends that support it.
	// Valid range [0, 1], 0 = default (0.5).
	Stability float64 `json:"stability,omitempty"`

	// Clarity (similarity boost) controls how closely a cloned voice tracks
	// its source sample. Valid range [0, 1], 0 = default (0.75).
	Clarity float64 `json:"clarity,omitempty"`
}

// SpeedOrDefault returns Speed, or 1.0 when unset.
func (s Settings) SpeedOrDefault() float64 {
	if s.Speed == 0 {
		return 1.0
	}
	return s.Speed
}

// StabilityOrDefault returns Stability, or 0.5 when unset.
func (s Settings) StabilityOrDefault() float64 {
	if s.Stability == 0 {
		return 0.5
	}
	return s.Stability
}

// ClarityOrDefault returns Clarity, or 0.75 when unset.
func (s Settings) ClarityOrDefault() float64 {
	if s.Clarity == 0 {
		return 0.75
	}
	return s.Clarity
}

// Request carries everything a backend needs to produce one utterance.
type Request struct {
	// Text is the content to speak. Empty text is passed through verbatim;
	// rejecting it is the caller's concern.
	Text string

	// Voice is the backend-specific voice identifier (stock voice name,
	// ElevenLabs voice id, or a cloned speaker reference).
	Voice string

	// Model selects a model on backends that have more than one
	// (e.g. "tts-1-hd" on an OpenAI-compatible endpoint). Optional.
	Model string

	// Language is a BCP-47 code used by language-aware local backends.
	// Empty means the backend default.
	Language string

	// SpeakerWAV is a local path to a reference sample for clone-conditioned
	// synthesis on local backends. Empty for stock voices.
	SpeakerWAV string

	// Settings holds voice quality parameters; zero fields mean defaults.
	Settings Settings
}

// Audio is one complete synthesised utterance.
type Audio struct {
	// Data is the encoded audio file content.
	Data []byte

	// Format is the container format of Data: "mp3" or "wav".
	Format string
}

// Voice describes one selectable voice offered by a backend.
type Voice struct {
	// ID is the backend-specific voice identifier.
	ID string `json:"id"`

	// Name is the human-readable voice name.
	Name string `json:"name"`

	// Backend identifies which engine this voice belongs to.
	Backend Backend `json:"backend"`

	// Metadata holds backend-specific attributes (category, gender, accent…).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Provider is the abstraction over any synthesis backend.
//
// Synthesize blocks until the full utterance is available or ctx is done.
// Every error a backend returns is a clean failure: the caller decides whether
// to fall back to another tier, and nothing in an implementation may panic on
// malformed input or an unreachable service.
type Provider interface {
	// Name returns the backend this provider implements.
	Name() Backend

	// Synthesize produces one complete audio artifact for req.
	Synthesize(ctx context.Context, req Request) (*Audio, error)

	// ListVoices returns the backend's current voice catalogue. The result
	// may change between calls if the underlying service adds or removes
	// voices.
	ListVoices(ctx context.Context) ([]Voice, error)
}

// Cloner is implemented by backends that can create a reusable voice from a
// user-supplied audio sample. Creation is synchronous in this design: when
// CloneVoice returns, the voice is ready or the call has failed.
type Cloner interface {
	// CloneVoice registers sample (a complete WAV file) under name and
	// returns the backend-side voice identifier. An empty sample returns an
	// error rather than panicking.
	CloneVoice(ctx context.Context, name string, sample []byte) (string, error)

	// DeleteVoice removes a previously cloned voice. Deleting an id the
	// backend no longer knows is not an error worth surfacing to users;
	// callers treat failures here as best-effort cleanup.
	DeleteVoice(ctx context.Context, id string) error
}
