// Package elevenlabs provides the ElevenLabs-backed synthesis provider, the
// system's remote-cloud backend. Batch synthesis and voice management use the
// REST API; a separate low-latency streaming path over the stream-input
// WebSocket API is available for clone previews. It implements both
// synth.Provider and synth.Cloner.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/audioalchemy/audioalchemy/pkg/synth"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModel   = "eleven_multilingual_v2"
	defaultTimeout = 30 * time.Second
)

// Compile-time interface assertions.
var (
	_ synth.Provider = (*Provider)(nil)
	_ synth.Cloner   = (*Provider)(nil)
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_multilingual_v2").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the API base URL. Used in tests to point the provider
// at a local stub server.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout sets the per-request HTTP timeout. Remote synthesis is not
// otherwise bounded, so this is the conservative deadline on every call.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements synth.Provider and synth.Cloner backed by ElevenLabs.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates an ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name returns synth.BackendElevenLabs.
func (p *Provider) Name() synth.Backend { return synth.BackendElevenLabs }

// ---- Synthesize ----

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// ttsRequest is the JSON body for POST /v1/text-to-speech/{voice_id}.
type ttsRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// Synthesize performs one POST /v1/text-to-speech/{voice_id} call and returns
// the MP3 response body.
func (p *Provider) Synthesize(ctx context.Context, req synth.Request) (*synth.Audio, error) {
	if req.Voice == "" {
		return nil, errors.New("elevenlabs: req.Voice must not be empty")
	}

	body := ttsRequest{
		Text:    req.Text,
		ModelID: p.model,
		VoiceSettings: &voiceSettings{
			Stability:       req.Settings.StabilityOrDefault(),
			SimilarityBoost: req.Settings.ClarityOrDefault(),
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal tts request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/text-to-speech/"+req.Voice, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create tts request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: POST text-to-speech: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: text-to-speech returned status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio response: %w", err)
	}
	return &synth.Audio{Data: audio, Format: "mp3"}, nil
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []apiVoice `json:"voices"`
}

// apiVoice is a single voice entry from the ElevenLabs API.
type apiVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]synth.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create list-voices request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: GET voices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: GET voices returned status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: decode voices response: %w", err)
	}
	return convertVoices(vr), nil
}

// convertVoices maps the raw API response to synth.Voice values.
func convertVoices(vr voicesResponse) []synth.Voice {
	voices := make([]synth.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		voices = append(voices, synth.Voice{
			ID:       v.VoiceID,
			Name:     v.Name,
			Backend:  synth.BackendElevenLabs,
			Metadata: meta,
		})
	}
	return voices
}

// ---- CloneVoice / DeleteVoice ----

// addVoiceResponse is the JSON body returned by POST /v1/voices/add.
type addVoiceResponse struct {
	VoiceID string `json:"voice_id"`
}

// CloneVoice uploads sample to POST /v1/voices/add and returns the new
// backend-side voice id. sample must be a complete audio file (WAV or MP3).
func (p *Provider) CloneVoice(ctx context.Context, name string, sample []byte) (string, error) {
	if len(sample) == 0 {
		return "", errors.New("elevenlabs: CloneVoice requires a non-empty sample")
	}
	if name == "" {
		return "", errors.New("elevenlabs: CloneVoice requires a name")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("name", name); err != nil {
		return "", fmt.Errorf("elevenlabs: write name field: %w", err)
	}
	fw, err := mw.CreateFormFile("files", "sample.wav")
	if err != nil {
		return "", fmt.Errorf("elevenlabs: create form file: %w", err)
	}
	if _, err := fw.Write(sample); err != nil {
		return "", fmt.Errorf("elevenlabs: write sample: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("elevenlabs: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/voices/add", &body)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: create add-voice request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: POST voices/add: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("elevenlabs: voices/add returned status %d", resp.StatusCode)
	}

	var ar addVoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", fmt.Errorf("elevenlabs: decode add-voice response: %w", err)
	}
	if ar.VoiceID == "" {
		return "", errors.New("elevenlabs: voices/add response missing voice_id")
	}
	return ar.VoiceID, nil
}

// DeleteVoice removes a cloned voice via DELETE /v1/voices/{voice_id}.
func (p *Provider) DeleteVoice(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("elevenlabs: DeleteVoice requires an id")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.baseURL+"/v1/voices/"+id, nil)
	if err != nil {
		return fmt.Errorf("elevenlabs: create delete-voice request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs: DELETE voices/%s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("elevenlabs: DELETE voices/%s returned status %d", id, resp.StatusCode)
	}
	return nil
}

// ---- streaming preview ----

// textMessage is the JSON payload sent over the stream-input WebSocket for
// each text fragment. An empty Text flushes and closes the stream.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

// audioMessage is a JSON message received over the WebSocket.
type audioMessage struct {
	Audio   string `json:"audio"` // base64-encoded audio
	IsFinal bool   `json:"isFinal"`
}

// PreviewStream synthesises text over the stream-input WebSocket API and
// returns a channel emitting audio chunks as they arrive. It exists for the
// clone preview path, where first-byte latency matters more than having the
// complete artifact.
//
// The returned channel is closed when synthesis completes or ctx is
// cancelled; the caller must drain it.
func (p *Provider) PreviewStream(ctx context.Context, text, voiceID string, settings synth.Settings) (<-chan []byte, error) {
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voiceID must not be empty")
	}

	wsURL := streamInputURL(p.baseURL, voiceID, p.model)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial stream-input: %w", err)
	}

	vs := &voiceSettings{
		Stability:       settings.StabilityOrDefault(),
		SimilarityBoost: settings.ClarityOrDefault(),
	}

	// The API requires a non-empty first text value in the handshake.
	boi := textMessage{Text: " ", VoiceSettings: vs, XiAPIKey: p.apiKey}
	boiBytes, _ := json.Marshal(boi)
	if err := conn.Write(ctx, websocket.MessageText, boiBytes); err != nil {
		conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, fmt.Errorf("elevenlabs: stream-input handshake: %w", err)
	}

	payload, _ := json.Marshal(textMessage{Text: text + " "})
	flush, _ := json.Marshal(textMessage{Text: ""})
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		conn.Close(websocket.StatusInternalError, "send failed")
		return nil, fmt.Errorf("elevenlabs: stream-input send: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, flush); err != nil {
		conn.Close(websocket.StatusInternalError, "flush failed")
		return nil, fmt.Errorf("elevenlabs: stream-input flush: %w", err)
	}

	audioCh := make(chan []byte, 64)
	go func() {
		defer close(audioCh)
		defer conn.Close(websocket.StatusNormalClosure, "done")
		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var am audioMessage
			if err := json.Unmarshal(msg, &am); err != nil {
				continue
			}
			if am.Audio != "" {
				chunk, err := base64.StdEncoding.DecodeString(am.Audio)
				if err == nil {
					select {
					case audioCh <- chunk:
					case <-ctx.Done():
						return
					}
				}
			}
			if am.IsFinal {
				return
			}
		}
	}()
	return audioCh, nil
}

// streamInputURL builds the stream-input WebSocket URL from the REST base URL.
func streamInputURL(baseURL, voiceID, model string) string {
	ws := baseURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?model_id=%s", ws, voiceID, model)
}
