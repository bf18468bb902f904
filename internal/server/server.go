// Package server is the HTTP surface: the web pages, the JSON API, artifact
// serving, and the health and metrics endpoints. Handlers translate HTTP
// shapes into calls on the orchestrator, clone manager, recognizer,
// translator, and store; no synthesis logic lives here.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audioalchemy/audioalchemy/internal/capability"
	"github.com/audioalchemy/audioalchemy/internal/clone"
	"github.com/audioalchemy/audioalchemy/internal/config"
	"github.com/audioalchemy/audioalchemy/internal/health"
	"github.com/audioalchemy/audioalchemy/internal/observe"
	"github.com/audioalchemy/audioalchemy/internal/orchestrator"
	"github.com/audioalchemy/audioalchemy/internal/store"
	"github.com/audioalchemy/audioalchemy/pkg/audio"
	"github.com/audioalchemy/audioalchemy/pkg/stt"
	"github.com/audioalchemy/audioalchemy/pkg/synth"
	"github.com/audioalchemy/audioalchemy/pkg/translate"
)

// maxUploadBytes bounds multipart uploads. Voice samples can run to five
// minutes of WAV, so this is generous but finite.
const maxUploadBytes = 64 << 20

// Server holds every dependency the handlers need. Construct with New.
type Server struct {
	cfg        *config.Config
	st         *store.Store
	caps       *capability.Registry
	orch       *orchestrator.Orchestrator
	clones     *clone.Manager
	recognizer stt.Recognizer
	translator *translate.Translator
	converter  *audio.Converter
	providers  map[synth.Backend]synth.Provider
	metrics    *observe.Metrics
	uploadsDir string
}

// Deps bundles the constructor arguments for Server. Optional fields may be
// nil; the corresponding features degrade with a clear message instead of
// panicking.
type Deps struct {
	Config     *config.Config
	Store      *store.Store
	Caps       *capability.Registry
	Orch       *orchestrator.Orchestrator
	Clones     *clone.Manager
	Recognizer stt.Recognizer        // nil: transcription unavailable
	Translator *translate.Translator // nil: translation unavailable
	Converter  *audio.Converter
	Providers  map[synth.Backend]synth.Provider
	Metrics    *observe.Metrics
	UploadsDir string
}

// New creates a Server from its dependencies.
func New(d Deps) *Server {
	m := d.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Server{
		cfg:        d.Config,
		st:         d.Store,
		caps:       d.Caps,
		orch:       d.Orch,
		clones:     d.Clones,
		recognizer: d.Recognizer,
		translator: d.Translator,
		converter:  d.Converter,
		providers:  d.Providers,
		metrics:    m,
		uploadsDir: d.UploadsDir,
	}
}

// Handler returns the full route table wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Pages.
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /{$}", s.handleProcess)
	mux.HandleFunc("GET /preferences", s.handlePreferencesPage)
	mux.HandleFunc("POST /preferences", s.handlePreferencesSave)
	mux.HandleFunc("GET /history", s.handleHistoryPage)
	mux.HandleFunc("GET /voice-cloning", s.handleCloningPage)
	mux.HandleFunc("POST /voice-cloning", s.handleCloningConsent)

	// Artifacts.
	mux.HandleFunc("GET /uploads/{filename}", s.handleArtifact)
	mux.HandleFunc("GET /download_speech", s.handleDownloadSpeech)
	mux.HandleFunc("GET /download_transcription", s.handleDownloadTranscription)

	// JSON API.
	mux.HandleFunc("GET /api/user-data", s.handleUserData)
	mux.HandleFunc("GET /api/elevenlabs-voices", s.handleElevenLabsVoices)
	mux.HandleFunc("GET /api/custom-voices", s.handleCustomVoices)
	mux.HandleFunc("POST /api/favorites", s.handleFavoriteAdd)
	mux.HandleFunc("DELETE /api/favorites/{index}", s.handleFavoriteRemove)
	mux.HandleFunc("POST /api/voice-clone", s.handleCloneCreate)
	mux.HandleFunc("DELETE /api/voice-clone/{id}", s.handleCloneDelete)
	mux.HandleFunc("POST /api/voice-clone/preview", s.handleClonePreview)

	// Operational endpoints.
	health.New(
		health.BackendsChecker(s.caps),
		health.UploadsChecker(s.uploadsDir),
		health.StoreChecker(s.st),
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if tls := s.cfg.Server.TLS; tls != nil {
			errCh <- srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
