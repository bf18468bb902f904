package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
storage:
  data_dir: /var/lib/audioalchemy
backends:
  elevenlabs:
    api_key: xi-9f8e7d6c
  xtts:
    server_url: http://localhost:8020
    language: de
  piper:
    model_path: /models/en_US-amy-medium.onnx
whisper:
  mode: server
  server_url: http://localhost:8080
translator:
  provider: ollama
  model: llama3.2
`

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Storage.DataDir != "/var/lib/audioalchemy" {
		t.Errorf("data_dir = %q", cfg.Storage.DataDir)
	}
	// Unset storage dirs fall back to defaults.
	if cfg.Storage.UploadsDir != DefaultUploadsDir {
		t.Errorf("uploads_dir = %q, want default", cfg.Storage.UploadsDir)
	}
	if cfg.Storage.VoicesDir != DefaultVoicesDir {
		t.Errorf("voices_dir = %q, want default", cfg.Storage.VoicesDir)
	}
	if !cfg.Backends.ElevenLabs.Configured() {
		t.Error("elevenlabs should be configured")
	}
	if !cfg.Backends.XTTS.Configured() {
		t.Error("xtts should be configured")
	}
	if cfg.Backends.XTTS.Language != "de" {
		t.Errorf("xtts language = %q", cfg.Backends.XTTS.Language)
	}
	if !cfg.Whisper.Enabled() {
		t.Error("whisper should be enabled")
	}
	if cfg.Whisper.Language != "en" {
		t.Errorf("whisper language = %q, want default en", cfg.Whisper.Language)
	}
	if !cfg.Translator.Enabled() {
		t.Error("translator should be enabled")
	}
}

func TestLoadFromReaderEmptyUsesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != DefaultListenAddr {
		t.Errorf("listen_addr = %q, want %q", cfg.Server.ListenAddr, DefaultListenAddr)
	}
	if cfg.Storage.DataDir != DefaultDataDir {
		t.Errorf("data_dir = %q, want %q", cfg.Storage.DataDir, DefaultDataDir)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("serverr:\n  listen_addr: \":1\"\n")); err == nil {
		t.Fatal("unknown top-level field should be rejected")
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad log level",
			yaml: "server:\n  log_level: verbose\n",
			want: "log_level",
		},
		{
			name: "incomplete tls",
			yaml: "server:\n  tls:\n    cert_file: /tmp/cert.pem\n",
			want: "server.tls",
		},
		{
			name: "whisper server without url",
			yaml: "whisper:\n  mode: server\n",
			want: "whisper.server_url",
		},
		{
			name: "whisper native without model",
			yaml: "whisper:\n  mode: native\n",
			want: "whisper.model_path",
		},
		{
			name: "bad whisper mode",
			yaml: "whisper:\n  mode: streaming\n",
			want: "whisper.mode",
		},
		{
			name: "translator without model",
			yaml: "translator:\n  provider: openai\n",
			want: "translator.model",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file should fail")
	}
}
