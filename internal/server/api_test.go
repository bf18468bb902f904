package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/audioalchemy/audioalchemy/internal/store"
)

func grantConsent(t *testing.T, f *fixture) {
	t.Helper()
	if err := f.st.UpdatePreferences(func(p *store.Preferences) { p.CloneConsent = true }); err != nil {
		t.Fatalf("UpdatePreferences: %v", err)
	}
}

func doJSON(f *fixture, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestUserData(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(f, "GET", "/api/user-data", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Preferences     store.Preferences `json:"preferences"`
		RecentLanguages []string          `json:"recent_languages"`
		Backends        map[string]bool   `json:"backends"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Preferences.Provider != "openai" {
		t.Errorf("default provider = %q", body.Preferences.Provider)
	}
	if len(body.RecentLanguages) == 0 {
		t.Error("recent languages should have defaults")
	}
	if !body.Backends["espeak"] {
		t.Error("espeak should be reported available")
	}
}

func TestElevenLabsVoicesUnavailable(t *testing.T) {
	f := newFixture(t)

	// The fixture registry has no elevenlabs.
	rec := doJSON(f, "GET", "/api/elevenlabs-voices", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestCustomVoicesEmpty(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(f, "GET", "/api/custom-voices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "voices") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestFavoritesLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(f, "POST", "/api/favorites", `{"text":"good morning","voice":"alloy","language":"en"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	favs, _ := f.st.Favorites()
	if len(favs) != 1 || favs[0].Text != "good morning" {
		t.Fatalf("favorites = %+v", favs)
	}

	rec = doJSON(f, "DELETE", "/api/favorites/0", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("remove status = %d, want 200", rec.Code)
	}
	favs, _ = f.st.Favorites()
	if len(favs) != 0 {
		t.Errorf("favorites not empty after remove: %+v", favs)
	}
}

func TestFavoriteRemoveOutOfRange(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(f, "DELETE", "/api/favorites/5", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = doJSON(f, "DELETE", "/api/favorites/notanumber", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestFavoriteAddRequiresText(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(f, "POST", "/api/favorites", `{"voice":"alloy"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCloneCreateRequiresConsent(t *testing.T) {
	f := newFixture(t)

	body, ct := multipartBody(t, map[string]string{"name": "Ava"}, "audio", "sample.wav", sineWAV(12))
	req := httptest.NewRequest("POST", "/api/voice-clone", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if len(f.xtts.Cloned()) != 0 {
		t.Error("no backend call without consent")
	}
}

func TestCloneCreate(t *testing.T) {
	f := newFixture(t)
	grantConsent(t, f)

	body, ct := multipartBody(t, map[string]string{"name": "Ava", "backend": "xtts"}, "audio", "sample.wav", sineWAV(12))
	req := httptest.NewRequest("POST", "/api/voice-clone", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var created store.VoiceClone
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Name != "Ava" || created.Backend != "xtts" {
		t.Errorf("created = %+v", created)
	}
	if !strings.HasPrefix(created.ID, "xtts_") {
		t.Errorf("id = %q, want xtts_ prefix", created.ID)
	}
}

func TestCloneCreateQuotaConflict(t *testing.T) {
	f := newFixture(t)
	grantConsent(t, f)
	if err := f.st.UpdatePreferences(func(p *store.Preferences) { p.CloneQuota = 1 }); err != nil {
		t.Fatal(err)
	}

	for i, wantStatus := range []int{http.StatusCreated, http.StatusConflict} {
		body, ct := multipartBody(t, map[string]string{"name": "Ava", "backend": "xtts"}, "audio", "s.wav", sineWAV(12))
		req := httptest.NewRequest("POST", "/api/voice-clone", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		if rec.Code != wantStatus {
			t.Fatalf("attempt %d status = %d, want %d: %s", i, rec.Code, wantStatus, rec.Body.String())
		}
	}
}

func TestCloneCreateRejectsShortSample(t *testing.T) {
	f := newFixture(t)
	grantConsent(t, f)

	body, ct := multipartBody(t, map[string]string{"name": "Ava", "backend": "xtts"}, "audio", "s.wav", sineWAV(2))
	req := httptest.NewRequest("POST", "/api/voice-clone", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestCloneDeleteNotFound(t *testing.T) {
	f := newFixture(t)
	grantConsent(t, f)

	if err := f.st.PutClone(store.VoiceClone{
		ID:      "xtts_aabbccddeeff",
		Name:    "Ava",
		Backend: "xtts",
		Status:  store.CloneReady,
	}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(f, "DELETE", "/api/voice-clone/xtts_aabbccddeeff", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	// The second delete of the same id, and any unknown id, are 404s.
	rec = doJSON(f, "DELETE", "/api/voice-clone/xtts_aabbccddeeff", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("repeat delete status = %d, want 404", rec.Code)
	}
	rec = doJSON(f, "DELETE", "/api/voice-clone/xtts_never_was", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete unknown id status = %d, want 404", rec.Code)
	}
}

func TestClonePreviewUnknownID(t *testing.T) {
	f := newFixture(t)
	grantConsent(t, f)

	rec := doJSON(f, "POST", "/api/voice-clone/preview", `{"id":"local_xyz123"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestClonePreviewLocalClone(t *testing.T) {
	f := newFixture(t)
	grantConsent(t, f)

	if err := f.st.PutClone(store.VoiceClone{
		ID:             "xtts_0011223344aa",
		ProviderID:     "speaker",
		Name:           "Dad",
		Backend:        "xtts",
		SourceAudioRef: "xtts_0011223344aa.wav",
		Status:         store.CloneReady,
	}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(f, "POST", "/api/voice-clone/preview", `{"id":"xtts_0011223344aa"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		File string `json:"file"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.File == "" {
		t.Fatal("preview returned no artifact name")
	}
	if _, err := os.Stat(filepath.Join(f.uploads, body.File)); err != nil {
		t.Errorf("artifact missing: %v", err)
	}

	// The synthesis went through the clone's own backend.
	reqs := f.xtts.Requests()
	if len(reqs) != 1 {
		t.Fatalf("xtts saw %d requests, want 1", len(reqs))
	}
	if reqs[0].Text != previewPhrase {
		t.Errorf("preview text = %q", reqs[0].Text)
	}
}

func TestClonePreviewRequiresConsent(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(f, "POST", "/api/voice-clone/preview", `{"id":"whatever"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}
