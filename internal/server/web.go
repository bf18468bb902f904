package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/audioalchemy/audioalchemy/internal/config"
	"github.com/audioalchemy/audioalchemy/internal/orchestrator"
	"github.com/audioalchemy/audioalchemy/internal/store"
	"github.com/audioalchemy/audioalchemy/pkg/stt"
)

// flashCookie carries a one-shot message across a redirect. There is no
// session store; a short-lived cookie is enough for a single-operator
// deployment.
const flashCookie = "flash"

func setFlash(w http.ResponseWriter, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(msg),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
	})
}

// takeFlash reads and clears the flash cookie.
func takeFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})
	msg, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return msg
}

// indexData is the template payload for the main page.
type indexData struct {
	Prefs             store.Preferences
	Flash             string
	Languages         []string
	Text              string
	Transcription     string
	TranscriptionFile string
	Translation       string
	SpeechFile        string
	Backend           string
	Tier              string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.st.Preferences()
	if err != nil {
		http.Error(w, "preferences unavailable", http.StatusInternalServerError)
		return
	}
	render(w, "index.html", indexData{
		Prefs:     prefs,
		Flash:     takeFlash(w, r),
		Languages: prefs.RecentLanguages,
	})
}

// handleProcess runs the full pipeline for one form submission: optional
// upload transcription, optional translation, then synthesis of whatever
// text survives. Results are carried in the response itself, never in
// shared state.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		setFlash(w, "could not read the submitted form")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	prefs, err := s.st.Preferences()
	if err != nil {
		http.Error(w, "preferences unavailable", http.StatusInternalServerError)
		return
	}

	data := indexData{
		Prefs:     prefs,
		Languages: prefs.RecentLanguages,
		Text:      strings.TrimSpace(r.FormValue("text")),
	}
	targetLang := strings.TrimSpace(r.FormValue("target_language"))

	// 1. Transcribe an uploaded recording, when present.
	if file, header, err := r.FormFile("audio"); err == nil && header.Size > 0 {
		defer file.Close()
		text, txtFile, err := s.transcribeUpload(r, file, header.Filename)
		if err != nil {
			setFlash(w, userMessage(err))
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		data.Transcription = text
		data.TranscriptionFile = txtFile
	}

	// 2. Translate when a target language was requested.
	speakText := data.Text
	if data.Transcription != "" {
		speakText = data.Transcription
	}
	if targetLang != "" && speakText != "" {
		if s.translator == nil {
			setFlash(w, "translation is not configured")
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		start := time.Now()
		translated, err := s.translator.Translate(r.Context(), speakText, targetLang)
		if err != nil {
			setFlash(w, "translation failed: "+err.Error())
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		s.metrics.TranslationDuration.Record(r.Context(), time.Since(start).Seconds())
		data.Translation = translated
		speakText = translated

		if err := s.st.TouchLanguage(targetLang); err != nil {
			slog.Warn("failed to update recent languages", "error", err)
		}
		if err := s.st.AppendHistory(store.HistoryEntry{
			Timestamp: time.Now().UTC(),
			Kind:      store.HistoryTranslation,
			Text:      translated,
			Language:  targetLang,
		}); err != nil {
			slog.Warn("failed to record translation in history", "error", err)
		}
	}

	// 3. Synthesize.
	if speakText != "" {
		voice := strings.TrimSpace(r.FormValue("voice"))
		if voice == "" {
			voice = prefs.PreferredVoice
		}
		provider := r.FormValue("provider")
		if provider == "" {
			provider = prefs.Provider
		}

		start := time.Now()
		res, err := s.orch.Synthesize(r.Context(), orchestrator.Request{
			Text:     speakText,
			Voice:    voice,
			Model:    prefs.PreferredModel,
			Language: synthesisLanguage(targetLang, prefs),
			Provider: provider,
			Settings: config.ClampSettings(prefs.Settings),
		})
		if err != nil {
			setFlash(w, "speech synthesis failed on every backend")
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		s.metrics.RecordSynthesis(r.Context(), string(res.Backend), res.Tier, time.Since(start).Seconds())
		data.SpeechFile = res.Filename
		data.Backend = string(res.Backend)
		data.Tier = res.Tier
	}

	render(w, "index.html", data)
}

// transcribeUpload persists the upload, converts it to PCM WAV, and runs
// speech recognition. Returns the transcription text and the name of the
// stored transcript file.
func (s *Server) transcribeUpload(r *http.Request, file io.Reader, origName string) (string, string, error) {
	if s.recognizer == nil {
		return "", "", errors.New("transcription is not configured")
	}

	raw := filepath.Join(s.uploadsDir, "upload_"+uuid.NewString()+filepath.Ext(origName))
	out, err := os.Create(raw)
	if err != nil {
		return "", "", fmt.Errorf("store upload: %w", err)
	}
	_, copyErr := io.Copy(out, io.LimitReader(file, maxUploadBytes))
	closeErr := out.Close()
	defer os.Remove(raw)
	if copyErr != nil || closeErr != nil {
		return "", "", errors.Join(copyErr, closeErr)
	}

	// Whisper needs mono 16 kHz PCM; every browser codec goes through
	// ffmpeg first.
	wavPath := raw
	if s.converter != nil && s.caps.HasFFmpeg() {
		wavPath = strings.TrimSuffix(raw, filepath.Ext(raw)) + ".wav"
		if err := s.converter.ToPCMWAV(r.Context(), raw, wavPath); err != nil {
			return "", "", err
		}
		defer os.Remove(wavPath)
	}

	wav, err := os.ReadFile(wavPath)
	if err != nil {
		return "", "", err
	}

	start := time.Now()
	result, err := s.recognizer.Recognize(r.Context(), wav)
	if err != nil {
		return "", "", err
	}
	s.metrics.TranscriptionDuration.Record(r.Context(), time.Since(start).Seconds())

	txtName := "transcription_" + uuid.NewString() + ".txt"
	if err := os.WriteFile(filepath.Join(s.uploadsDir, txtName), []byte(result.Text), 0o644); err != nil {
		slog.Warn("failed to store transcript file", "error", err)
		txtName = ""
	}

	if err := s.st.AppendHistory(store.HistoryEntry{
		Timestamp: time.Now().UTC(),
		Kind:      store.HistoryTranscription,
		Text:      result.Text,
		Language:  result.Language,
	}); err != nil {
		slog.Warn("failed to record transcription in history", "error", err)
	}

	return result.Text, txtName, nil
}

// synthesisLanguage picks the language for language-aware local backends.
func synthesisLanguage(targetLang string, prefs store.Preferences) string {
	if targetLang != "" {
		return targetLang
	}
	return prefs.Language
}

// userMessage maps pipeline errors to something fit for a flash message.
func userMessage(err error) string {
	switch {
	case errors.Is(err, stt.ErrUnintelligible):
		return "could not understand the recording"
	case errors.Is(err, stt.ErrService):
		return "speech recognition is unavailable right now"
	}
	return err.Error()
}

func (s *Server) handlePreferencesPage(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.st.Preferences()
	if err != nil {
		http.Error(w, "preferences unavailable", http.StatusInternalServerError)
		return
	}
	render(w, "preferences.html", struct {
		Prefs store.Preferences
		Flash string
	}{prefs, takeFlash(w, r)})
}

func (s *Server) handlePreferencesSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	err := s.st.UpdatePreferences(func(p *store.Preferences) {
		setIfPresent(r, "name", &p.Name)
		setIfPresent(r, "preferred_voice", &p.PreferredVoice)
		setIfPresent(r, "preferred_model", &p.PreferredModel)
		setIfPresent(r, "language", &p.Language)
		setIfPresent(r, "theme", &p.Theme)
		setIfPresent(r, "provider", &p.Provider)
		setFloat(r, "voice_speed", &p.Settings.Speed)
		setFloat(r, "voice_stability", &p.Settings.Stability)
		setFloat(r, "voice_clarity", &p.Settings.Clarity)
		if v, err := strconv.Atoi(r.FormValue("retention_days")); err == nil && v >= 0 {
			p.RetentionDays = v
		}
		p.Settings = config.ClampSettings(p.Settings)
	})
	if err != nil {
		http.Error(w, "could not save preferences", http.StatusInternalServerError)
		return
	}

	setFlash(w, "preferences saved")
	http.Redirect(w, r, "/preferences", http.StatusSeeOther)
}

func setIfPresent(r *http.Request, field string, dst *string) {
	if v := strings.TrimSpace(r.FormValue(field)); v != "" {
		*dst = v
	}
}

func setFloat(r *http.Request, field string, dst *float64) {
	if v, err := strconv.ParseFloat(r.FormValue(field), 64); err == nil {
		*dst = v
	}
}

func (s *Server) handleHistoryPage(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.st.Preferences()
	if err != nil {
		http.Error(w, "preferences unavailable", http.StatusInternalServerError)
		return
	}
	entries, err := s.st.History()
	if err != nil {
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	render(w, "history.html", struct {
		Prefs   store.Preferences
		Entries []store.HistoryEntry
	}{prefs, entries})
}

func (s *Server) handleCloningPage(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.st.Preferences()
	if err != nil {
		http.Error(w, "preferences unavailable", http.StatusInternalServerError)
		return
	}
	clones, err := s.clones.List()
	if err != nil {
		http.Error(w, "clone registry unavailable", http.StatusInternalServerError)
		return
	}
	render(w, "cloning.html", struct {
		Prefs      store.Preferences
		Flash      string
		Clones     []store.VoiceClone
		CloneCount int
	}{prefs, takeFlash(w, r), clones, len(clones)})
}

// handleCloningConsent records the operator's consent decision.
func (s *Server) handleCloningConsent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	consent := r.FormValue("consent") == "on"
	err := s.st.UpdatePreferences(func(p *store.Preferences) {
		p.CloneConsent = consent
	})
	if err != nil {
		http.Error(w, "could not save consent", http.StatusInternalServerError)
		return
	}
	if consent {
		setFlash(w, "voice cloning enabled")
	} else {
		setFlash(w, "voice cloning remains disabled")
	}
	http.Redirect(w, r, "/voice-cloning", http.StatusSeeOther)
}

// handleArtifact serves one produced artifact. The filename pattern keeps
// path traversal out; anything else is rejected.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if name != filepath.Base(name) || name == "" || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.uploadsDir, name))
}

func (s *Server) handleDownloadSpeech(w http.ResponseWriter, r *http.Request) {
	s.serveDownload(w, r, "speech_", "speech")
}

func (s *Server) handleDownloadTranscription(w http.ResponseWriter, r *http.Request) {
	s.serveDownload(w, r, "transcription_", "transcription")
}

// serveDownload serves an artifact as an attachment. The file parameter
// comes from the same response that produced the artifact; a missing or
// unknown name redirects home with a flash instead of erroring.
func (s *Server) serveDownload(w http.ResponseWriter, r *http.Request, prefix, label string) {
	name := r.URL.Query().Get("file")
	if name == "" {
		name = r.URL.Query().Get("name")
	}
	if name == "" || name != filepath.Base(name) || !strings.HasPrefix(name, prefix) {
		setFlash(w, "no "+label+" available to download")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	path := filepath.Join(s.uploadsDir, name)
	if _, err := os.Stat(path); err != nil {
		setFlash(w, "no "+label+" available to download")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}
