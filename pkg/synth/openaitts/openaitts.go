// Package openaitts provides a synthesis provider for self-hosted
// OpenAI-compatible /v1/audio/speech endpoints, using the official OpenAI Go
// SDK pointed at the configured base URL. Because these endpoints are
// typically LAN services that may simply be switched off, the provider runs a
// short-timeout reachability probe before committing to the real request so
// that an absent service fails fast and triggers fallback.
package openaitts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/audioalchemy/audioalchemy/pkg/synth"
)

const (
	defaultModel   = "tts-1-hd"
	defaultTimeout = 30 * time.Second

	// probeTimeout bounds the reachability check. Anything slower than this
	// on a LAN endpoint is as good as down.
	probeTimeout = 1 * time.Second
)

// ErrUnreachable is returned when the reachability probe fails; the
// orchestrator treats it like any other tier failure and falls through.
var ErrUnreachable = errors.New("openaitts: endpoint unreachable")

// stockVoices is the fixed voice set of OpenAI-compatible speech endpoints.
var stockVoices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// Compile-time interface assertion.
var _ synth.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithTimeout sets the per-request timeout for synthesis calls.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// WithProbe overrides the reachability probe; tests use this to simulate an
// unreachable endpoint without real sockets.
func WithProbe(probe func(ctx context.Context) error) Option {
	return func(p *Provider) { p.probe = probe }
}

// Provider implements synth.Provider against an OpenAI-compatible endpoint.
type Provider struct {
	client  openai.Client
	baseURL string
	timeout time.Duration
	probe   func(ctx context.Context) error
}

// New creates a Provider for the speech endpoint at baseURL (e.g.
// "http://10.10.1.11:5050/v1"). apiKey is sent as a bearer token; baseURL
// must be non-empty.
func New(baseURL, apiKey string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("openaitts: baseURL must not be empty")
	}
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
	}
	p.client = openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(p.baseURL),
	)
	if p.probe == nil {
		p.probe = p.probeEndpoint
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name returns synth.BackendOpenAI.
func (p *Provider) Name() synth.Backend { return synth.BackendOpenAI }

// probeEndpoint issues a HEAD request against the service root with a short
// timeout. Any response at all counts as reachable; only transport-level
// failures do not.
func (p *Provider) probeEndpoint(ctx context.Context) error {
	root, err := serviceRoot(p.baseURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, root, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	resp.Body.Close()
	return nil
}

// serviceRoot strips the API path from baseURL, leaving scheme://host:port.
func serviceRoot(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String(), nil
}

// Synthesize probes the endpoint, then performs one /audio/speech call.
// Any non-2xx response or connection failure is a clean error for this tier.
func (p *Provider) Synthesize(ctx context.Context, req synth.Request) (*synth.Audio, error) {
	if err := p.probe(ctx); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = defaultModel
	}
	voice := req.Voice
	if voice == "" {
		voice = "alloy"
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model: openai.SpeechModel(model),
		Input: req.Text,
		Voice: openai.AudioSpeechNewParamsVoice(voice),
		Speed: param.NewOpt(req.Settings.SpeedOrDefault()),
	})
	if err != nil {
		return nil, fmt.Errorf("openaitts: audio/speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openaitts: read audio response: %w", err)
	}
	return &synth.Audio{Data: audio, Format: "mp3"}, nil
}

// ListVoices returns the fixed stock voice set of OpenAI-compatible speech
// services. The endpoint has no voice catalogue API.
func (p *Provider) ListVoices(_ context.Context) ([]synth.Voice, error) {
	voices := make([]synth.Voice, 0, len(stockVoices))
	for _, name := range stockVoices {
		voices = append(voices, synth.Voice{
			ID:      name,
			Name:    name,
			Backend: synth.BackendOpenAI,
		})
	}
	return voices, nil
}
