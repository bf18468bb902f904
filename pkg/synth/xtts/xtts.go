// Package xtts provides a synthesis provider backed by a locally hosted
// Coqui XTTS v2 API server. It is the most capable local backend: batch
// synthesis via POST /tts_to_audio/, a voice catalogue via
// GET /studio_speakers, and voice cloning via POST /clone_speaker. It
// implements synth.Provider and synth.Cloner.
package xtts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/audioalchemy/audioalchemy/pkg/synth"
)

const (
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	cloneSpeakerEndpoint   = "/clone_speaker"

	defaultLanguage = "en"
	defaultTimeout  = 60 * time.Second
)

// Compile-time interface assertions.
var (
	_ synth.Provider = (*Provider)(nil)
	_ synth.Cloner   = (*Provider)(nil)
)

// Option is a functional option for configuring an XTTS Provider.
type Option func(*Provider)

// WithLanguage sets the default BCP-47 language code sent to the server.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout sets the per-request HTTP timeout. XTTS synthesis on CPU can
// take tens of seconds, hence the generous default.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements synth.Provider and synth.Cloner against an XTTS v2 API
// server. Safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

// New creates a Provider targeting the XTTS server at serverURL
// (e.g. "http://localhost:8020"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("xtts: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name returns synth.BackendXTTS.
func (p *Provider) Name() synth.Backend { return synth.BackendXTTS }

// ttsRequest is the JSON body sent to POST /tts_to_audio/.
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize performs one POST /tts_to_audio/ call and returns the WAV body.
// The speaker is req.SpeakerWAV when set (clone-conditioned synthesis) and
// req.Voice otherwise (studio speaker name).
func (p *Provider) Synthesize(ctx context.Context, req synth.Request) (*synth.Audio, error) {
	speaker := req.SpeakerWAV
	if speaker == "" {
		speaker = req.Voice
	}
	if speaker == "" {
		return nil, errors.New("xtts: a speaker reference is required")
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	body, err := json.Marshal(ttsRequest{Text: req.Text, SpeakerWav: speaker, Language: lang})
	if err != nil {
		return nil, fmt.Errorf("xtts: marshal tts request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("xtts: create tts request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("xtts: POST %s: %w", ttsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("xtts: POST %s returned status %d", ttsEndpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("xtts: read WAV response: %w", err)
	}
	return &synth.Audio{Data: wav, Format: "wav"}, nil
}

// ListVoices retrieves the studio speaker catalogue from GET /studio_speakers.
// The response is a map keyed by speaker name; only the keys matter here.
func (p *Provider) ListVoices(ctx context.Context) ([]synth.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+studioSpeakersEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("xtts: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("xtts: GET %s: %w", studioSpeakersEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("xtts: GET %s returned status %d", studioSpeakersEndpoint, resp.StatusCode)
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("xtts: decode studio speakers: %w", err)
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	voices := make([]synth.Voice, 0, len(names))
	for _, name := range names {
		voices = append(voices, synth.Voice{
			ID:       name,
			Name:     name,
			Backend:  synth.BackendXTTS,
			Metadata: map[string]string{"type": "studio"},
		})
	}
	return voices, nil
}

// cloneResponse is the JSON body returned by POST /clone_speaker.
type cloneResponse struct {
	Name string `json:"name"`
}

// CloneVoice uploads sample to POST /clone_speaker and returns the
// server-assigned speaker name.
func (p *Provider) CloneVoice(ctx context.Context, name string, sample []byte) (string, error) {
	if len(sample) == 0 {
		return "", errors.New("xtts: CloneVoice requires a non-empty sample")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("wav_file", "sample.wav")
	if err != nil {
		return "", fmt.Errorf("xtts: create form file: %w", err)
	}
	if _, err := fw.Write(sample); err != nil {
		return "", fmt.Errorf("xtts: write sample: %w", err)
	}
	if err := mw.WriteField("clone_speaker_name", name); err != nil {
		return "", fmt.Errorf("xtts: write name field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("xtts: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+cloneSpeakerEndpoint, &body)
	if err != nil {
		return "", fmt.Errorf("xtts: create clone-speaker request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("xtts: POST %s: %w", cloneSpeakerEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("xtts: POST %s returned status %d", cloneSpeakerEndpoint, resp.StatusCode)
	}

	var cr cloneResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("xtts: decode clone-speaker response: %w", err)
	}
	if cr.Name == "" {
		return "", errors.New("xtts: clone-speaker response missing name")
	}
	return cr.Name, nil
}

// DeleteVoice is a no-op: the XTTS server keeps no durable per-voice state,
// so the only cleanup needed is the local sample file, which the lifecycle
// manager owns.
func (p *Provider) DeleteVoice(_ context.Context, _ string) error {
	return nil
}
