package elevenlabs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/audioalchemy/audioalchemy/pkg/synth"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestSynthesize(t *testing.T) {
	var gotBody ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice123" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "key" {
			t.Errorf("missing xi-api-key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte("mp3bytes"))
	}))
	defer srv.Close()

	p, err := New("key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	audio, err := p.Synthesize(context.Background(), synth.Request{
		Text:     "hello",
		Voice:    "voice123",
		Settings: synth.Settings{Stability: 0.3},
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio.Data) != "mp3bytes" || audio.Format != "mp3" {
		t.Errorf("audio = %q/%s", audio.Data, audio.Format)
	}
	if gotBody.Text != "hello" {
		t.Errorf("request text = %q", gotBody.Text)
	}
	if gotBody.VoiceSettings == nil || gotBody.VoiceSettings.Stability != 0.3 {
		t.Errorf("stability not forwarded: %+v", gotBody.VoiceSettings)
	}
	// Clarity was unset; the per-field default must apply.
	if gotBody.VoiceSettings.SimilarityBoost != 0.75 {
		t.Errorf("similarity_boost = %f, want default 0.75", gotBody.VoiceSettings.SimilarityBoost)
	}
}

func TestSynthesize_Non200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, _ := New("key", WithBaseURL(srv.URL))
	if _, err := p.Synthesize(context.Background(), synth.Request{Text: "x", Voice: "v"}); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestListVoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"voices": []map[string]any{
				{"voice_id": "a1", "name": "Rachel", "category": "premade", "labels": map[string]string{"accent": "american"}},
				{"voice_id": "b2", "name": "Ava", "category": "cloned"},
			},
		})
	}))
	defer srv.Close()

	p, _ := New("key", WithBaseURL(srv.URL))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("len = %d, want 2", len(voices))
	}
	if voices[0].ID != "a1" || voices[0].Backend != synth.BackendElevenLabs {
		t.Errorf("voices[0] = %+v", voices[0])
	}
	if voices[0].Metadata["accent"] != "american" || voices[0].Metadata["category"] != "premade" {
		t.Errorf("metadata = %v", voices[0].Metadata)
	}
}

func TestCloneVoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices/add" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("name"); got != "Ava" {
			t.Errorf("name = %q", got)
		}
		if _, _, err := r.FormFile("files"); err != nil {
			t.Errorf("missing files part: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"voice_id": "cloned42"})
	}))
	defer srv.Close()

	p, _ := New("key", WithBaseURL(srv.URL))
	id, err := p.CloneVoice(context.Background(), "Ava", []byte("wavdata"))
	if err != nil {
		t.Fatalf("CloneVoice: %v", err)
	}
	if id != "cloned42" {
		t.Errorf("id = %q, want cloned42", id)
	}
}

func TestCloneVoice_EmptySample(t *testing.T) {
	p, _ := New("key")
	if _, err := p.CloneVoice(context.Background(), "x", nil); err == nil {
		t.Fatal("expected error for empty sample")
	}
}

func TestDeleteVoice(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, _ := New("key", WithBaseURL(srv.URL))
	if err := p.DeleteVoice(context.Background(), "v9"); err != nil {
		t.Fatalf("DeleteVoice: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/v1/voices/v9" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
}

func TestStreamInputURL(t *testing.T) {
	got := streamInputURL("https://api.elevenlabs.io", "v1x", "eleven_multilingual_v2")
	want := "wss://api.elevenlabs.io/v1/text-to-speech/v1x/stream-input?model_id=eleven_multilingual_v2"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !strings.HasPrefix(streamInputURL("http://127.0.0.1:8080", "v", "m"), "ws://") {
		t.Error("http base should map to ws scheme")
	}
}
