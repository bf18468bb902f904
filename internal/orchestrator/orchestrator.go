// Package orchestrator turns one synthesis request into one audio artifact,
// walking a tiered fallback chain: a clone-pinned tier when the voice is a
// registered clone, the preferred remote backend, the other remote backend,
// the best local neural backend, and finally the basic espeak tier. Each
// remote tier sits behind a persistent circuit breaker; the basic tier never
// does, because the chain must always have a last option.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/audioalchemy/audioalchemy/internal/capability"
	"github.com/audioalchemy/audioalchemy/internal/clone"
	"github.com/audioalchemy/audioalchemy/internal/observe"
	"github.com/audioalchemy/audioalchemy/internal/resilience"
	"github.com/audioalchemy/audioalchemy/internal/store"
	"github.com/audioalchemy/audioalchemy/pkg/synth"
)

// TierBasic names the espeak last-resort tier.
const TierBasic = "basic"

// ErrNoText is returned when the request has nothing to speak.
var ErrNoText = errors.New("orchestrator: text must not be empty")

// Request is one synthesis job.
type Request struct {
	// Text is the content to speak. Required.
	Text string

	// Voice is a stock voice name, provider voice id, or a clone registry
	// id. Clone ids pin the request to the clone's backend.
	Voice string

	// Model is an optional model override for model-aware backends.
	Model string

	// Language is the synthesis language for language-aware backends.
	Language string

	// Provider is the preferred remote backend hint: "elevenlabs",
	// "openai", or empty.
	Provider string

	// Settings are the voice quality parameters, already clamped.
	Settings synth.Settings
}

// Result describes one produced artifact.
type Result struct {
	// Filename is the artifact name under the uploads directory.
	Filename string

	// Tier names the fallback tier that produced the audio.
	Tier string

	// Backend is the engine behind that tier.
	Backend synth.Backend

	// Format is the artifact container format ("mp3" or "wav").
	Format string
}

// Orchestrator runs the fallback chain. Safe for concurrent use.
type Orchestrator struct {
	providers  map[synth.Backend]synth.Provider
	caps       *capability.Registry
	clones     *clone.Manager
	st         *store.Store
	uploadsDir string
	metrics    *observe.Metrics
	chain      *resilience.Chain[*synth.Audio]
}

// New creates an Orchestrator over the given providers. Backends absent from
// providers or rejected by the capability probe never appear in a chain. A nil
// metrics falls back to the process-wide instruments.
func New(providers map[synth.Backend]synth.Provider, caps *capability.Registry, clones *clone.Manager, st *store.Store, uploadsDir string, metrics *observe.Metrics) (*Orchestrator, error) {
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("orchestrator: create uploads dir: %w", err)
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Orchestrator{
		providers:  providers,
		caps:       caps,
		clones:     clones,
		st:         st,
		uploadsDir: uploadsDir,
		metrics:    metrics,
		chain: resilience.NewChain[*synth.Audio](resilience.BreakerConfig{
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
		}),
	}, nil
}

// Synthesize runs req through the fallback chain, writes the artifact, and
// records the operation in history.
func (o *Orchestrator) Synthesize(ctx context.Context, req Request) (Result, error) {
	if req.Text == "" {
		return Result{}, ErrNoText
	}

	tiers := o.buildTiers(req)
	audio, tier, err := o.chain.Execute(ctx, tiers)
	if err != nil {
		return Result{}, err
	}

	backend := o.tierBackend(tier, req)
	filename, err := o.writeArtifact(audio)
	if err != nil {
		return Result{}, err
	}

	res := Result{Filename: filename, Tier: tier, Backend: backend, Format: audio.Format}
	if err := o.st.AppendHistory(store.HistoryEntry{
		Timestamp: time.Now().UTC(),
		Kind:      store.HistorySynthesis,
		Text:      truncate(req.Text, 200),
		Voice:     req.Voice,
		Backend:   string(backend),
		Tier:      tier,
		File:      filename,
		Language:  req.Language,
	}); err != nil {
		slog.Warn("failed to record synthesis in history", "error", err)
	}

	slog.Info("synthesis complete", "tier", tier, "backend", backend, "file", filename)
	return res, nil
}

// buildTiers assembles the per-request tier list. Tier names double as
// breaker identities, so they stay stable across requests.
func (o *Orchestrator) buildTiers(req Request) []resilience.Tier[*synth.Audio] {
	var tiers []resilience.Tier[*synth.Audio]

	// A voice that resolves in the clone registry pins the first tier to
	// the clone's backend. Unresolved selectors simply fall through; the
	// voice field is then treated as a stock voice name by the remaining
	// tiers.
	if rec, ok := o.lookupClone(req.Voice); ok {
		if t, ok := o.cloneTier(rec, req); ok {
			tiers = append(tiers, t)
		}
	}

	for _, b := range o.remoteOrder(req.Provider) {
		if p, ok := o.usable(b); ok {
			tiers = append(tiers, o.providerTier(string(b), b, p, req))
		}
	}

	if local := o.caps.PreferredLocalBackend(); local != "" {
		if p, ok := o.usable(local); ok {
			tiers = append(tiers, o.providerTier("local-"+string(local), local, p, req))
		}
	}

	if p, ok := o.usable(synth.BackendESpeak); ok {
		t := o.providerTier(TierBasic, synth.BackendESpeak, p, req)
		t.Direct = true
		tiers = append(tiers, t)
	}

	return tiers
}

// lookupClone resolves a voice selector against the clone registry: registry
// id first, then display name with the manager's fuzzy matching, so a request
// can say "Dad" without knowing the id.
func (o *Orchestrator) lookupClone(voice string) (store.VoiceClone, bool) {
	if voice == "" {
		return store.VoiceClone{}, false
	}
	if rec, err := o.clones.Get(voice); err == nil {
		return rec, true
	}
	if rec, err := o.clones.ResolveName(voice); err == nil {
		return rec, true
	}
	return store.VoiceClone{}, false
}

// remoteOrder puts the hinted remote backend first.
func (o *Orchestrator) remoteOrder(hint string) []synth.Backend {
	if synth.Backend(hint) == synth.BackendElevenLabs {
		return []synth.Backend{synth.BackendElevenLabs, synth.BackendOpenAI}
	}
	return []synth.Backend{synth.BackendOpenAI, synth.BackendElevenLabs}
}

// usable reports whether backend b has a provider and passed its probe.
func (o *Orchestrator) usable(b synth.Backend) (synth.Provider, bool) {
	p := o.providers[b]
	if p == nil || !o.caps.IsAvailable(b) {
		return nil, false
	}
	return p, true
}

// providerTier wraps one provider call as a chain tier.
func (o *Orchestrator) providerTier(name string, backend synth.Backend, p synth.Provider, req Request) resilience.Tier[*synth.Audio] {
	sreq := synth.Request{
		Text:     req.Text,
		Voice:    req.Voice,
		Model:    req.Model,
		Language: req.Language,
		Settings: req.Settings,
	}
	return resilience.Tier[*synth.Audio]{
		Name: name,
		Run:  o.instrumented(name, backend, p, sreq),
	}
}

// instrumented runs one provider call and records the attempt outcome, so the
// tier-attempt and backend-error counters see every chain step.
func (o *Orchestrator) instrumented(name string, backend synth.Backend, p synth.Provider, sreq synth.Request) func(context.Context) (*synth.Audio, error) {
	return func(ctx context.Context) (*synth.Audio, error) {
		a, err := p.Synthesize(ctx, sreq)
		if err != nil {
			o.metrics.RecordTierAttempt(ctx, name, "error")
			o.metrics.RecordBackendError(ctx, string(backend))
			return nil, err
		}
		o.metrics.RecordTierAttempt(ctx, name, "ok")
		return a, nil
	}
}

// cloneTier builds the pinned tier for a registered clone. Remote clones
// synthesize by provider voice id; local clones condition on the stored
// sample.
func (o *Orchestrator) cloneTier(rec store.VoiceClone, req Request) (resilience.Tier[*synth.Audio], bool) {
	p, ok := o.usable(rec.Backend)
	if !ok {
		return resilience.Tier[*synth.Audio]{}, false
	}

	sreq := synth.Request{
		Text:     req.Text,
		Model:    req.Model,
		Language: req.Language,
		Settings: req.Settings,
	}
	if rec.Backend.Local() {
		sreq.SpeakerWAV = o.clones.SamplePath(rec)
	} else {
		sreq.Voice = rec.ProviderID
	}

	name := "clone-" + string(rec.Backend)
	return resilience.Tier[*synth.Audio]{
		Name: name,
		Run:  o.instrumented(name, rec.Backend, p, sreq),
	}, true
}

// tierBackend recovers the backend name from the tier that won.
func (o *Orchestrator) tierBackend(tier string, req Request) synth.Backend {
	switch {
	case tier == TierBasic:
		return synth.BackendESpeak
	case len(tier) > 6 && tier[:6] == "clone-":
		return synth.Backend(tier[6:])
	case len(tier) > 6 && tier[:6] == "local-":
		return synth.Backend(tier[6:])
	}
	return synth.Backend(tier)
}

// writeArtifact stores audio under a fresh unguessable name. O_EXCL makes id
// collisions an error instead of an overwrite.
func (o *Orchestrator) writeArtifact(a *synth.Audio) (string, error) {
	ext := a.Format
	if ext == "" {
		ext = "wav"
	}
	filename := fmt.Sprintf("speech_%s.%s", uuid.NewString(), ext)

	f, err := os.OpenFile(filepath.Join(o.uploadsDir, filename), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("orchestrator: create artifact: %w", err)
	}
	if _, err := f.Write(a.Data); err != nil {
		f.Close()
		return "", fmt.Errorf("orchestrator: write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("orchestrator: close artifact: %w", err)
	}
	return filename, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
