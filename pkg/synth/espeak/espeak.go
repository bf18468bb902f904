// Package espeak provides the basic last-resort synthesis tier, backed by
// the espeak-ng binary. It uses a simple default voice, ignores per-voice
// customization, and has no dependency beyond the locally installed engine.
// When every richer tier has failed, this one is expected to work.
package espeak

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/audioalchemy/audioalchemy/pkg/synth"
)

// espeak-ng's default rate is 175 words per minute.
const baseRate = 175

// Compile-time interface assertion.
var _ synth.Provider = (*Provider)(nil)

// Option is a functional option for configuring an espeak Provider.
type Option func(*Provider)

// WithBinary overrides the espeak-ng binary path.
func WithBinary(bin string) Option {
	return func(p *Provider) { p.bin = bin }
}

// WithVoice sets the espeak voice/language code (default "en").
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// Provider implements synth.Provider by spawning espeak-ng per call.
type Provider struct {
	bin   string
	voice string
}

// New creates an espeak Provider with defaults suitable for the fallback
// tier. It always succeeds; availability is the capability registry's call.
func New(opts ...Option) *Provider {
	p := &Provider{bin: "espeak-ng", voice: "en"}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns synth.BackendESpeak.
func (p *Provider) Name() synth.Backend { return synth.BackendESpeak }

// Synthesize runs espeak-ng writing a WAV to a temporary file and returns its
// contents. Only the language and rate are honoured; voice ids and quality
// settings from richer backends are deliberately ignored.
func (p *Provider) Synthesize(ctx context.Context, req synth.Request) (*synth.Audio, error) {
	voice := p.voice
	if req.Language != "" {
		voice = req.Language
	}
	rate := int(float64(baseRate) * req.Settings.SpeedOrDefault())

	tmp, err := os.CreateTemp("", "espeak-*.wav")
	if err != nil {
		return nil, fmt.Errorf("espeak: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(ctx, p.bin,
		"-v", voice,
		"-s", strconv.Itoa(rate),
		"-w", tmpPath,
		"--", req.Text,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("espeak: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	wav, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("espeak: read output: %w", err)
	}
	return &synth.Audio{Data: wav, Format: "wav"}, nil
}

// ListVoices returns the single default voice. espeak-ng knows many more,
// but the fallback tier intentionally does not surface them.
func (p *Provider) ListVoices(_ context.Context) ([]synth.Voice, error) {
	return []synth.Voice{{
		ID:      p.voice,
		Name:    filepath.Base(p.voice),
		Backend: synth.BackendESpeak,
	}}, nil
}
