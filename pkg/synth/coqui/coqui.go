// Package coqui provides a synthesis provider backed by a locally hosted
// standard Coqui TTS server (ghcr.io/coqui-ai/tts-cpu). Synthesis is a GET
// /api/tts call with URL query parameters; the voice catalogue comes from
// GET /details. The server stores no voices of its own, but it accepts a
// style_wav reference, which is how clone-conditioned synthesis works on this
// backend: the lifecycle manager keeps the sample on disk and passes its path
// per request. It implements synth.Provider and synth.Cloner.
package coqui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/audioalchemy/audioalchemy/pkg/synth"
)

const (
	ttsEndpoint     = "/api/tts"
	detailsEndpoint = "/details"

	defaultTimeout = 30 * time.Second
)

// Compile-time interface assertions.
var (
	_ synth.Provider = (*Provider)(nil)
	_ synth.Cloner   = (*Provider)(nil)
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language_id query parameter for multi-lingual models.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements synth.Provider against a standard Coqui TTS server.
// Safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

// New creates a Provider targeting the Coqui server at serverURL
// (e.g. "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name returns synth.BackendCoqui.
func (p *Provider) Name() synth.Backend { return synth.BackendCoqui }

// Synthesize performs one GET /api/tts call and returns the WAV body.
// req.Voice selects a speaker_id on multi-speaker models; req.SpeakerWAV is
// forwarded as style_wav for clone-conditioned synthesis.
func (p *Provider) Synthesize(ctx context.Context, req synth.Request) (*synth.Audio, error) {
	params := url.Values{}
	params.Set("text", req.Text)
	if req.Voice != "" {
		params.Set("speaker_id", req.Voice)
	}
	if req.SpeakerWAV != "" {
		params.Set("style_wav", req.SpeakerWAV)
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	if lang != "" {
		params.Set("language_id", lang)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.serverURL+ttsEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	httpReq.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", ttsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", ttsEndpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return &synth.Audio{Data: wav, Format: "wav"}, nil
}

// detailsResponse is the JSON body returned by GET /details. Speakers is nil
// for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// ListVoices retrieves model info from GET /details. Multi-speaker models
// yield one voice per speaker; single-speaker models yield one voice
// identified by the model name.
func (p *Provider) ListVoices(ctx context.Context) ([]synth.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+detailsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", detailsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", detailsEndpoint, resp.StatusCode)
	}

	var details detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("coqui: decode details response: %w", err)
	}

	if len(details.Speakers) > 0 {
		speakers := make([]string, len(details.Speakers))
		copy(speakers, details.Speakers)
		sort.Strings(speakers)

		voices := make([]synth.Voice, 0, len(speakers))
		for _, spk := range speakers {
			voices = append(voices, synth.Voice{
				ID:      spk,
				Name:    spk,
				Backend: synth.BackendCoqui,
				Metadata: map[string]string{
					"type":       "speaker",
					"model_name": details.ModelName,
				},
			})
		}
		return voices, nil
	}

	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return []synth.Voice{{
		ID:      name,
		Name:    name,
		Backend: synth.BackendCoqui,
		Metadata: map[string]string{
			"type":       "single-speaker",
			"model_name": name,
		},
	}}, nil
}

// CloneVoice validates that the backend can condition on the sample. The
// standard server keeps no server-side voice state (the clone is the stored
// sample, referenced per request via style_wav), so this only sanity-checks
// the input and returns the name as the speaker reference.
func (p *Provider) CloneVoice(_ context.Context, name string, sample []byte) (string, error) {
	if len(sample) == 0 {
		return "", errors.New("coqui: CloneVoice requires a non-empty sample")
	}
	if name == "" {
		return "", errors.New("coqui: CloneVoice requires a name")
	}
	return name, nil
}

// DeleteVoice is a no-op: there is no server-side voice state to remove.
func (p *Provider) DeleteVoice(_ context.Context, _ string) error {
	return nil
}
