// Package piper provides a synthesis provider backed by a local Piper
// binary. Text is piped to the subprocess on stdin; the raw 16-bit PCM it
// emits on stdout is wrapped in a WAV header. Piper has no cloning concept,
// so this backend is synthesis-only. Voice selection is per model file.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/audioalchemy/audioalchemy/pkg/audio"
	"github.com/audioalchemy/audioalchemy/pkg/synth"
)

// Piper emits 22.05 kHz mono s16 PCM with --output-raw for most voices.
const outputSampleRate = 22050

// Compile-time interface assertion.
var _ synth.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Piper Provider.
type Option func(*Provider)

// WithBinary overrides the piper binary path. Defaults to "piper" on PATH.
func WithBinary(bin string) Option {
	return func(p *Provider) { p.bin = bin }
}

// Provider implements synth.Provider by spawning the piper binary per call.
type Provider struct {
	bin       string
	modelPath string
}

// New creates a Provider using the ONNX voice model at modelPath, which must
// be non-empty.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("piper: modelPath must not be empty")
	}
	p := &Provider{bin: "piper", modelPath: modelPath}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name returns synth.BackendPiper.
func (p *Provider) Name() synth.Backend { return synth.BackendPiper }

// Synthesize runs one piper subprocess, feeding req.Text on stdin and
// returning the stdout PCM wrapped as WAV. The speaking rate maps to piper's
// --length_scale, which is the inverse of speed.
func (p *Provider) Synthesize(ctx context.Context, req synth.Request) (*synth.Audio, error) {
	args := []string{"--model", p.modelPath, "--output-raw"}
	if speed := req.Settings.SpeedOrDefault(); speed != 1.0 {
		args = append(args, "--length_scale", strconv.FormatFloat(1.0/speed, 'f', 2, 64))
	}

	cmd := exec.CommandContext(ctx, p.bin, args...)
	cmd.Stdin = strings.NewReader(req.Text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("piper: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return nil, errors.New("piper: produced no audio")
	}
	return &synth.Audio{Data: audio.EncodeWAV(pcm, outputSampleRate, 1), Format: "wav"}, nil
}

// ListVoices returns the single voice baked into the configured model file.
func (p *Provider) ListVoices(_ context.Context) ([]synth.Voice, error) {
	name := strings.TrimSuffix(filepath.Base(p.modelPath), ".onnx")
	return []synth.Voice{{
		ID:      name,
		Name:    name,
		Backend: synth.BackendPiper,
		Metadata: map[string]string{
			"model_path": p.modelPath,
		},
	}}, nil
}
