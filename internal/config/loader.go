package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [Load] for fields left empty in the file.
const (
	DefaultListenAddr = ":5000"
	DefaultDataDir    = "data"
	DefaultUploadsDir = "uploads"
	DefaultVoicesDir  = "voices"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills the fields that must never be empty at runtime.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = DefaultDataDir
	}
	if cfg.Storage.UploadsDir == "" {
		cfg.Storage.UploadsDir = DefaultUploadsDir
	}
	if cfg.Storage.VoicesDir == "" {
		cfg.Storage.VoicesDir = DefaultVoicesDir
	}
	if cfg.Whisper.Language == "" {
		cfg.Whisper.Language = "en"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.Whisper.Mode != "" {
		if !cfg.Whisper.Mode.IsValid() {
			errs = append(errs, fmt.Errorf("whisper.mode %q is invalid; valid values: server, native", cfg.Whisper.Mode))
		}
		if cfg.Whisper.Mode == WhisperServer && cfg.Whisper.ServerURL == "" {
			errs = append(errs, errors.New("whisper.server_url is required when whisper.mode is server"))
		}
		if cfg.Whisper.Mode == WhisperNative && cfg.Whisper.ModelPath == "" {
			errs = append(errs, errors.New("whisper.model_path is required when whisper.mode is native"))
		}
	}

	if cfg.Translator.Provider != "" && cfg.Translator.Model == "" {
		errs = append(errs, fmt.Errorf("translator.model is required when translator.provider is %q", cfg.Translator.Provider))
	}

	if cfg.Backends.Piper.ModelPath == "" && cfg.Backends.Piper.Binary != "" {
		errs = append(errs, errors.New("backends.piper.model_path is required when backends.piper.binary is set"))
	}

	// A server with no backend at all still starts (espeak may be on PATH),
	// but it deserves a loud warning.
	if !cfg.Backends.ElevenLabs.Configured() &&
		!cfg.Backends.OpenAI.Configured() &&
		!cfg.Backends.XTTS.Configured() &&
		!cfg.Backends.Coqui.Configured() &&
		cfg.Backends.Piper.ModelPath == "" {
		slog.Warn("no synthesis backend configured; only espeak will be available if installed")
	}
	if cfg.Backends.ElevenLabs.APIKey != "" && !cfg.Backends.ElevenLabs.Configured() {
		slog.Warn("backends.elevenlabs.api_key looks like a placeholder; backend disabled")
	}
	if cfg.Backends.OpenAI.APIKey != "" && IsPlaceholder(cfg.Backends.OpenAI.APIKey) && cfg.Backends.OpenAI.BaseURL == "" {
		slog.Warn("backends.openai.api_key looks like a placeholder; backend disabled")
	}

	return errors.Join(errs...)
}
