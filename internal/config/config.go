// Package config provides the configuration schema and loader for the
// AudioAlchemy server.
package config

import (
	"log/slog"
	"strings"

	"github.com/audioalchemy/audioalchemy/pkg/synth"
)

// LogLevel controls log verbosity for the AudioAlchemy server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto the slog level scale. Unknown or empty values map to
// info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// WhisperMode selects how speech recognition runs.
type WhisperMode string

const (
	// WhisperServer talks to a whisper-server binary over HTTP.
	WhisperServer WhisperMode = "server"

	// WhisperNative loads the model in-process via the whisper.cpp bindings.
	WhisperNative WhisperMode = "native"
)

// IsValid reports whether m is a recognised whisper mode.
func (m WhisperMode) IsValid() bool {
	return m == WhisperServer || m == WhisperNative
}

// Config is the root configuration structure for AudioAlchemy.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Backends   BackendsConfig   `yaml:"backends"`
	Whisper    WhisperConfig    `yaml:"whisper"`
	Translator TranslatorConfig `yaml:"translator"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":5000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// StorageConfig holds the on-disk layout. All three directories are created
// at startup if missing.
type StorageConfig struct {
	// DataDir holds preferences.json, history and clone metadata.
	DataDir string `yaml:"data_dir"`

	// UploadsDir holds synthesised audio artifacts and converted uploads.
	UploadsDir string `yaml:"uploads_dir"`

	// VoicesDir holds voice clone samples and their metadata files.
	VoicesDir string `yaml:"voices_dir"`
}

// BackendsConfig declares the synthesis engines the server may use. Every
// block is optional; an absent or placeholder-credentialed block simply means
// that backend is unavailable and the fallback chain skips it.
type BackendsConfig struct {
	ElevenLabs ElevenLabsConfig  `yaml:"elevenlabs"`
	OpenAI     OpenAIConfig      `yaml:"openai"`
	XTTS       LocalServerConfig `yaml:"xtts"`
	Coqui      LocalServerConfig `yaml:"coqui"`
	Piper      PiperConfig       `yaml:"piper"`
	ESpeak     ESpeakConfig      `yaml:"espeak"`
}

// ElevenLabsConfig configures the ElevenLabs cloud backend.
type ElevenLabsConfig struct {
	// APIKey is the xi-api-key credential. Placeholder values (see
	// IsPlaceholder) leave the backend unconfigured.
	APIKey string `yaml:"api_key"`

	// Model overrides the default synthesis model.
	Model string `yaml:"model"`
}

// Configured reports whether a usable credential is present.
func (c ElevenLabsConfig) Configured() bool {
	return c.APIKey != "" && !IsPlaceholder(c.APIKey)
}

// OpenAIConfig configures an OpenAI-compatible speech endpoint.
type OpenAIConfig struct {
	// APIKey is the Bearer credential.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the default https://api.openai.com/v1 endpoint,
	// e.g. for a LocalAI instance.
	BaseURL string `yaml:"base_url"`

	// Model selects the speech model (e.g. "tts-1-hd").
	Model string `yaml:"model"`

	// Voice selects the default stock voice (e.g. "alloy").
	Voice string `yaml:"voice"`
}

// Configured reports whether a usable credential or a self-hosted endpoint is
// present. A BaseURL without a key is valid: local OpenAI-compatible servers
// commonly run unauthenticated.
func (c OpenAIConfig) Configured() bool {
	if c.APIKey != "" && !IsPlaceholder(c.APIKey) {
		return true
	}
	return c.BaseURL != ""
}

// LocalServerConfig configures an HTTP-served local neural backend (XTTS or
// standard Coqui).
type LocalServerConfig struct {
	// ServerURL is the base URL of the local server (e.g.
	// "http://localhost:8020"). Empty means the backend is unavailable.
	ServerURL string `yaml:"server_url"`

	// Language is the default synthesis language code.
	Language string `yaml:"language"`
}

// Configured reports whether a server URL is present.
func (c LocalServerConfig) Configured() bool { return c.ServerURL != "" }

// PiperConfig configures the Piper subprocess backend.
type PiperConfig struct {
	// Binary overrides the piper binary path. Defaults to "piper" on PATH.
	Binary string `yaml:"binary"`

	// ModelPath is the ONNX voice model file. Required for this backend.
	ModelPath string `yaml:"model_path"`
}

// ESpeakConfig configures the basic last-resort backend.
type ESpeakConfig struct {
	// Binary overrides the espeak-ng binary path.
	Binary string `yaml:"binary"`

	// Voice is the espeak voice/language code (default "en").
	Voice string `yaml:"voice"`
}

// WhisperConfig configures speech recognition for uploaded audio.
type WhisperConfig struct {
	// Mode selects "server" or "native". Empty disables transcription.
	Mode WhisperMode `yaml:"mode"`

	// ServerURL is the whisper-server base URL (mode "server").
	ServerURL string `yaml:"server_url"`

	// ModelPath is the ggml model file (mode "native").
	ModelPath string `yaml:"model_path"`

	// Model is the model hint forwarded to the server (mode "server").
	Model string `yaml:"model"`

	// Language is the recognition language code. Defaults to "en".
	Language string `yaml:"language"`
}

// Enabled reports whether transcription is configured at all.
func (c WhisperConfig) Enabled() bool { return c.Mode != "" }

// TranslatorConfig configures the LLM-backed translation feature.
type TranslatorConfig struct {
	// Provider is the chat completion provider: "openai", "anthropic" or
	// "ollama". Empty disables translation.
	Provider string `yaml:"provider"`

	// Model is the chat model identifier.
	Model string `yaml:"model"`

	// APIKey is the provider credential. Ollama needs none.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`
}

// Enabled reports whether translation is configured.
func (c TranslatorConfig) Enabled() bool { return c.Provider != "" && c.Model != "" }

// placeholderFragments are substrings that mark a credential as a template
// value that was never filled in.
var placeholderFragments = []string{
	"your_",
	"your-",
	"changeme",
	"change_me",
	"placeholder",
	"example",
	"xxxx",
}

// IsPlaceholder reports whether value looks like an unfilled template
// credential rather than a real secret.
func IsPlaceholder(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return true
	}
	for _, frag := range placeholderFragments {
		if strings.Contains(v, frag) {
			return true
		}
	}
	return false
}

// Voice setting bounds. Values outside these ranges are clamped, never
// rejected, so a hand-edited preferences file cannot take the service down.
const (
	MinSpeed = 0.25
	MaxSpeed = 4.0
)

// ClampSettings returns s with every field forced into its valid range.
// Zero fields stay zero so backend defaults still apply.
func ClampSettings(s synth.Settings) synth.Settings {
	if s.Speed != 0 {
		s.Speed = clamp(s.Speed, MinSpeed, MaxSpeed)
	}
	if s.Stability != 0 {
		s.Stability = clamp(s.Stability, 0, 1)
	}
	if s.Clarity != 0 {
		s.Clarity = clamp(s.Clarity, 0, 1)
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
