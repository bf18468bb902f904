package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/audioalchemy/audioalchemy/internal/clone"
	"github.com/audioalchemy/audioalchemy/internal/config"
	"github.com/audioalchemy/audioalchemy/internal/orchestrator"
	"github.com/audioalchemy/audioalchemy/internal/store"
	"github.com/audioalchemy/audioalchemy/pkg/synth"
)

// previewPhrase is spoken when a preview request carries no text.
const previewPhrase = "Hello! This is a preview of your cloned voice."

// writeJSON writes v with the given status. Encoding failures are logged;
// by then the header is already out.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json response encoding failed", "error", err)
	}
}

// apiError is the uniform JSON error shape.
type apiError struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

// requireConsent rejects cloning operations until the consent flag is set.
func (s *Server) requireConsent(w http.ResponseWriter) bool {
	prefs, err := s.st.Preferences()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "preferences unavailable")
		return false
	}
	if !prefs.CloneConsent {
		writeError(w, http.StatusForbidden, "voice cloning requires consent; enable it on the voice cloning page")
		return false
	}
	return true
}

func (s *Server) handleUserData(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.st.Preferences()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "preferences unavailable")
		return
	}
	favorites, err := s.st.Favorites()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "favorites unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"preferences":      prefs,
		"favorites":        favorites,
		"recent_languages": prefs.RecentLanguages,
		"backends":         s.caps.Snapshot(),
	})
}

func (s *Server) handleElevenLabsVoices(w http.ResponseWriter, r *http.Request) {
	p := s.providers[synth.BackendElevenLabs]
	if p == nil || !s.caps.IsAvailable(synth.BackendElevenLabs) {
		writeError(w, http.StatusServiceUnavailable, "elevenlabs is not configured")
		return
	}
	voices, err := p.ListVoices(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "could not list voices: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": voices})
}

func (s *Server) handleCustomVoices(w http.ResponseWriter, _ *http.Request) {
	clones, err := s.clones.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "clone registry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": clones})
}

func (s *Server) handleFavoriteAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text     string `json:"text"`
		Voice    string `json:"voice"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	fav := store.Favorite{
		Text:     req.Text,
		Voice:    req.Voice,
		Language: req.Language,
		AddedAt:  time.Now().UTC(),
	}
	if err := s.st.AddFavorite(fav); err != nil {
		writeError(w, http.StatusInternalServerError, "could not save favorite")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (s *Server) handleFavoriteRemove(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	if err := s.st.RemoveFavorite(index); err != nil {
		if errors.Is(err, store.ErrOutOfRange) {
			writeError(w, http.StatusBadRequest, "favorite index out of range")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not remove favorite")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleCloneCreate(w http.ResponseWriter, r *http.Request) {
	if !s.requireConsent(w) {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "could not read the upload")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "an audio sample is required")
		return
	}
	defer file.Close()

	wav, err := s.sampleToWAV(r.Context(), file, header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not process the sample: "+err.Error())
		return
	}

	backend := r.FormValue("backend")
	if backend == "" {
		backend = clone.BackendAuto
	}

	start := time.Now()
	rec, err := s.clones.Create(r.Context(), clone.CreateRequest{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Backend:     backend,
		SampleWAV:   wav,
		// Without ffmpeg a non-WAV upload cannot be decoded; let the
		// validator fall back to its estimated-duration check.
		AllowEstimatedDuration: s.converter == nil || !s.caps.HasFFmpeg(),
	})
	if err != nil {
		s.metrics.RecordCloneOp(r.Context(), "create", backend, "error")
		writeError(w, cloneErrorStatus(err), err.Error())
		return
	}
	s.metrics.RecordCloneOp(r.Context(), "create", string(rec.Backend), "ok")
	s.metrics.CloneDuration.Record(r.Context(), time.Since(start).Seconds())
	s.metrics.ActiveClones.Add(r.Context(), 1)

	writeJSON(w, http.StatusCreated, rec)
}

// cloneErrorStatus maps clone manager errors onto HTTP statuses.
func cloneErrorStatus(err error) int {
	switch {
	case errors.Is(err, clone.ErrQuotaExceeded):
		return http.StatusConflict
	case errors.Is(err, clone.ErrInvalidSample),
		errors.Is(err, clone.ErrUnknownBackend):
		return http.StatusBadRequest
	case errors.Is(err, clone.ErrNoBackend):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

// sampleToWAV normalises an uploaded clone sample to PCM WAV via ffmpeg
// when available; a raw WAV upload passes through untouched otherwise.
func (s *Server) sampleToWAV(ctx context.Context, file io.Reader, origName string) ([]byte, error) {
	raw := filepath.Join(s.uploadsDir, "sample_"+uuid.NewString()+filepath.Ext(origName))
	out, err := os.Create(raw)
	if err != nil {
		return nil, err
	}
	_, copyErr := io.Copy(out, io.LimitReader(file, maxUploadBytes))
	closeErr := out.Close()
	defer os.Remove(raw)
	if copyErr != nil || closeErr != nil {
		return nil, errors.Join(copyErr, closeErr)
	}

	if s.converter != nil && s.caps.HasFFmpeg() {
		wavPath := strings.TrimSuffix(raw, filepath.Ext(raw)) + ".converted.wav"
		if err := s.converter.ToPCMWAV(ctx, raw, wavPath); err != nil {
			return nil, err
		}
		defer os.Remove(wavPath)
		return os.ReadFile(wavPath)
	}
	return os.ReadFile(raw)
}

func (s *Server) handleCloneDelete(w http.ResponseWriter, r *http.Request) {
	if !s.requireConsent(w) {
		return
	}
	id := r.PathValue("id")
	if err := s.clones.Delete(r.Context(), id); err != nil {
		if errors.Is(err, clone.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown voice clone")
			return
		}
		s.metrics.RecordCloneOp(r.Context(), "delete", "", "error")
		writeError(w, http.StatusInternalServerError, "could not delete the voice")
		return
	}
	s.metrics.RecordCloneOp(r.Context(), "delete", "", "ok")
	s.metrics.ActiveClones.Add(r.Context(), -1)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// previewStreamer is the streaming synthesis surface of the remote backend.
type previewStreamer interface {
	PreviewStream(ctx context.Context, text, voiceID string, settings synth.Settings) (<-chan []byte, error)
}

func (s *Server) handleClonePreview(w http.ResponseWriter, r *http.Request) {
	if !s.requireConsent(w) {
		return
	}

	var req struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "a clone id is required")
		return
	}
	text := req.Text
	if strings.TrimSpace(text) == "" {
		text = previewPhrase
	}

	rec, err := s.clones.Get(req.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown voice clone")
		return
	}

	prefs, err := s.st.Preferences()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "preferences unavailable")
		return
	}
	settings := config.ClampSettings(prefs.Settings)

	// Remote clones stream over the provider websocket; local clones take
	// the regular pinned-tier path.
	if streamer, ok := s.providers[rec.Backend].(previewStreamer); ok && !rec.Backend.Local() {
		filename, err := s.streamPreview(r.Context(), streamer, text, rec, settings)
		if err != nil {
			writeError(w, http.StatusBadGateway, "preview failed: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"file": filename})
		return
	}

	res, err := s.orch.Synthesize(r.Context(), orchestrator.Request{
		Text:     text,
		Voice:    rec.ID,
		Settings: settings,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, "preview failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": res.Filename})
}

// streamPreview collects the websocket audio stream into one artifact.
func (s *Server) streamPreview(ctx context.Context, streamer previewStreamer, text string, rec store.VoiceClone, settings synth.Settings) (string, error) {
	chunks, err := streamer.PreviewStream(ctx, text, rec.ProviderID, settings)
	if err != nil {
		return "", err
	}

	filename := "speech_" + uuid.NewString() + ".mp3"
	f, err := os.OpenFile(filepath.Join(s.uploadsDir, filename), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	for chunk := range chunks {
		if _, err := f.Write(chunk); err != nil {
			f.Close()
			return "", err
		}
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return filename, nil
}
