package openaitts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/audioalchemy/audioalchemy/pkg/synth"
)

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New("", "key"); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestSynthesize(t *testing.T) {
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Write([]byte("speech"))
	}))
	defer srv.Close()

	p, err := New(srv.URL+"/v1", "secret")
	if err != nil {
		t.Fatal(err)
	}
	audio, err := p.Synthesize(context.Background(), synth.Request{
		Text:     "hello",
		Voice:    "nova",
		Model:    "tts-1",
		Settings: synth.Settings{Speed: 1.5},
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio.Data) != "speech" {
		t.Errorf("audio = %q", audio.Data)
	}
	if gotPayload["input"] != "hello" || gotPayload["voice"] != "nova" || gotPayload["model"] != "tts-1" {
		t.Errorf("payload = %v", gotPayload)
	}
	if gotPayload["speed"] != 1.5 {
		t.Errorf("speed = %v, want 1.5", gotPayload["speed"])
	}
}

func TestSynthesize_UnreachableProbeFailsFast(t *testing.T) {
	called := false
	p, err := New("http://127.0.0.1:1/v1", "key",
		WithProbe(func(ctx context.Context) error {
			called = true
			return ErrUnreachable
		}))
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Synthesize(context.Background(), synth.Request{Text: "x"})
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("error = %v, want ErrUnreachable", err)
	}
	if !called {
		t.Fatal("probe was not invoked")
	}
}

func TestServiceRoot(t *testing.T) {
	got, err := serviceRoot("http://10.10.1.11:5050/v1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://10.10.1.11:5050" {
		t.Errorf("serviceRoot = %q", got)
	}
}

func TestListVoices_StockSet(t *testing.T) {
	p, _ := New("http://localhost:5050/v1", "key")
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(voices) != 6 {
		t.Fatalf("len = %d, want 6", len(voices))
	}
	if voices[0].ID != "alloy" || voices[0].Backend != synth.BackendOpenAI {
		t.Errorf("voices[0] = %+v", voices[0])
	}
}
