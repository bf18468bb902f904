// Command audioalchemy is the main entry point for the AudioAlchemy speech
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/audioalchemy/audioalchemy/internal/capability"
	"github.com/audioalchemy/audioalchemy/internal/clone"
	"github.com/audioalchemy/audioalchemy/internal/config"
	"github.com/audioalchemy/audioalchemy/internal/observe"
	"github.com/audioalchemy/audioalchemy/internal/orchestrator"
	"github.com/audioalchemy/audioalchemy/internal/server"
	"github.com/audioalchemy/audioalchemy/internal/store"
	"github.com/audioalchemy/audioalchemy/pkg/audio"
	"github.com/audioalchemy/audioalchemy/pkg/stt"
	"github.com/audioalchemy/audioalchemy/pkg/stt/whisper"
	"github.com/audioalchemy/audioalchemy/pkg/synth"
	"github.com/audioalchemy/audioalchemy/pkg/synth/coqui"
	"github.com/audioalchemy/audioalchemy/pkg/synth/elevenlabs"
	"github.com/audioalchemy/audioalchemy/pkg/synth/espeak"
	"github.com/audioalchemy/audioalchemy/pkg/synth/openaitts"
	"github.com/audioalchemy/audioalchemy/pkg/synth/piper"
	"github.com/audioalchemy/audioalchemy/pkg/synth/xtts"
	"github.com/audioalchemy/audioalchemy/pkg/translate"
)

// retentionSweepInterval is how often expired voice clones are purged.
const retentionSweepInterval = time.Hour

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "audioalchemy: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "audioalchemy: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.Level(),
	}))
	slog.SetDefault(logger)

	slog.Info("audioalchemy starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "audioalchemy",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Capability probe ──────────────────────────────────────────────────────
	caps := capability.Probe(cfg)
	for backend, ok := range caps.Snapshot() {
		slog.Debug("capability probed", "backend", backend, "available", ok)
	}

	// ── Synthesis backends ────────────────────────────────────────────────────
	providers, cloners, err := buildBackends(cfg)
	if err != nil {
		slog.Error("failed to build synthesis backends", "err", err)
		return 1
	}

	// ── Speech recognition (optional) ─────────────────────────────────────────
	recognizer, closers, err := buildRecognizer(cfg)
	if err != nil {
		slog.Error("failed to build speech recognition", "err", err)
		return 1
	}
	defer closeAll(closers)

	// ── Translation (optional) ────────────────────────────────────────────────
	translator, err := buildTranslator(cfg)
	if err != nil {
		slog.Error("failed to build translator", "err", err)
		return 1
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	st, err := store.New(cfg.Storage.DataDir)
	if err != nil {
		slog.Error("failed to open data store", "err", err, "dir", cfg.Storage.DataDir)
		return 1
	}

	clones, err := clone.New(st, caps, cfg.Storage.VoicesDir, cloners)
	if err != nil {
		slog.Error("failed to initialise voice clone manager", "err", err)
		return 1
	}

	orch, err := orchestrator.New(providers, caps, clones, st, cfg.Storage.UploadsDir, observe.DefaultMetrics())
	if err != nil {
		slog.Error("failed to initialise synthesis orchestrator", "err", err)
		return 1
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	var converter *audio.Converter
	if caps.HasFFmpeg() {
		converter = audio.NewConverter("ffmpeg")
	}

	srv := server.New(server.Deps{
		Config:     cfg,
		Store:      st,
		Caps:       caps,
		Orch:       orch,
		Clones:     clones,
		Recognizer: recognizer,
		Translator: translator,
		Converter:  converter,
		Providers:  providers,
		UploadsDir: cfg.Storage.UploadsDir,
	})

	printStartupSummary(cfg, caps, recognizer != nil, translator != nil)
	slog.Info("server ready — press Ctrl+C to shut down")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		return sweepRetention(gctx, clones)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Backend wiring ────────────────────────────────────────────────────────────

// buildBackends instantiates every configured synthesis backend. The espeak
// backend is always constructed; whether it actually works is the capability
// registry's call at request time.
func buildBackends(cfg *config.Config) (map[synth.Backend]synth.Provider, map[synth.Backend]synth.Cloner, error) {
	providers := make(map[synth.Backend]synth.Provider)
	cloners := make(map[synth.Backend]synth.Cloner)

	if c := cfg.Backends.ElevenLabs; c.Configured() {
		var opts []elevenlabs.Option
		if c.Model != "" {
			opts = append(opts, elevenlabs.WithModel(c.Model))
		}
		p, err := elevenlabs.New(c.APIKey, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("elevenlabs: %w", err)
		}
		providers[synth.BackendElevenLabs] = p
		cloners[synth.BackendElevenLabs] = p
		slog.Info("backend configured", "backend", "elevenlabs")
	}

	if c := cfg.Backends.OpenAI; c.Configured() {
		p, err := openaitts.New(c.BaseURL, c.APIKey)
		if err != nil {
			return nil, nil, fmt.Errorf("openai tts: %w", err)
		}
		providers[synth.BackendOpenAI] = p
		slog.Info("backend configured", "backend", "openai", "base_url", c.BaseURL)
	}

	if c := cfg.Backends.XTTS; c.Configured() {
		var opts []xtts.Option
		if c.Language != "" {
			opts = append(opts, xtts.WithLanguage(c.Language))
		}
		p, err := xtts.New(c.ServerURL, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("xtts: %w", err)
		}
		providers[synth.BackendXTTS] = p
		cloners[synth.BackendXTTS] = p
		slog.Info("backend configured", "backend", "xtts", "server_url", c.ServerURL)
	}

	if c := cfg.Backends.Coqui; c.Configured() {
		var opts []coqui.Option
		if c.Language != "" {
			opts = append(opts, coqui.WithLanguage(c.Language))
		}
		p, err := coqui.New(c.ServerURL, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("coqui: %w", err)
		}
		providers[synth.BackendCoqui] = p
		slog.Info("backend configured", "backend", "coqui", "server_url", c.ServerURL)
	}

	if c := cfg.Backends.Piper; c.ModelPath != "" {
		var opts []piper.Option
		if c.Binary != "" {
			opts = append(opts, piper.WithBinary(c.Binary))
		}
		p, err := piper.New(c.ModelPath, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("piper: %w", err)
		}
		providers[synth.BackendPiper] = p
		slog.Info("backend configured", "backend", "piper", "model", c.ModelPath)
	}

	{
		c := cfg.Backends.ESpeak
		var opts []espeak.Option
		if c.Binary != "" {
			opts = append(opts, espeak.WithBinary(c.Binary))
		}
		if c.Voice != "" {
			opts = append(opts, espeak.WithVoice(c.Voice))
		}
		providers[synth.BackendESpeak] = espeak.New(opts...)
	}

	return providers, cloners, nil
}

// buildRecognizer constructs the whisper recognizer in the configured mode.
// A nil recognizer with a nil error means transcription is simply off.
func buildRecognizer(cfg *config.Config) (stt.Recognizer, []io.Closer, error) {
	c := cfg.Whisper
	if !c.Enabled() {
		slog.Info("transcription disabled")
		return nil, nil, nil
	}

	switch c.Mode {
	case config.WhisperServer:
		var opts []whisper.Option
		if c.Model != "" {
			opts = append(opts, whisper.WithModel(c.Model))
		}
		if c.Language != "" {
			opts = append(opts, whisper.WithLanguage(c.Language))
		}
		p, err := whisper.New(c.ServerURL, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("whisper server: %w", err)
		}
		slog.Info("transcription configured", "mode", "server", "server_url", c.ServerURL)
		return p, nil, nil

	case config.WhisperNative:
		var opts []whisper.NativeOption
		if c.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(c.Language))
		}
		p, err := whisper.NewNative(c.ModelPath, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("whisper native: %w", err)
		}
		slog.Info("transcription configured", "mode", "native", "model", c.ModelPath)
		return p, []io.Closer{p}, nil
	}
	return nil, nil, fmt.Errorf("unknown whisper mode %q", c.Mode)
}

// buildTranslator constructs the LLM-backed translator, or nil when the
// feature is not configured.
func buildTranslator(cfg *config.Config) (*translate.Translator, error) {
	c := cfg.Translator
	if !c.Enabled() {
		slog.Info("translation disabled")
		return nil, nil
	}

	var opts []anyllmlib.Option
	if c.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(c.APIKey))
	}
	if c.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(c.BaseURL))
	}
	llm, err := translate.NewLLM(c.Provider, c.Model, opts...)
	if err != nil {
		return nil, fmt.Errorf("translator %q: %w", c.Provider, err)
	}
	slog.Info("translation configured", "provider", c.Provider, "model", c.Model)
	return translate.New(llm), nil
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			slog.Warn("close error", "err", err)
		}
	}
}

// ── Retention sweep ───────────────────────────────────────────────────────────

// sweepRetention purges expired voice clones on a fixed interval until ctx is
// cancelled. One pass runs immediately at startup so a long-stopped server
// catches up right away.
func sweepRetention(ctx context.Context, clones *clone.Manager) error {
	sweep := func() {
		n, err := clones.SweepExpired(ctx, time.Now())
		if err != nil {
			slog.Warn("retention sweep failed", "err", err)
			return
		}
		if n > 0 {
			slog.Info("retention sweep removed expired clones", "count", n)
		}
	}

	sweep()
	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sweep()
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, caps *capability.Registry, transcription, translation bool) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      AudioAlchemy — startup summary   ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	for _, b := range []synth.Backend{
		synth.BackendElevenLabs,
		synth.BackendOpenAI,
		synth.BackendXTTS,
		synth.BackendCoqui,
		synth.BackendPiper,
		synth.BackendESpeak,
	} {
		printFeature(string(b), caps.IsAvailable(b))
	}
	printFeature("ffmpeg", caps.HasFFmpeg())
	printFeature("transcription", transcription)
	printFeature("translation", translation)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  %-14s : %-19s ║\n", "listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printFeature(name string, ok bool) {
	status := "available"
	if !ok {
		status = "(unavailable)"
	}
	fmt.Printf("║  %-14s : %-19s ║\n", name, status)
}
