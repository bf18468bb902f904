// Package capability determines which synthesis backends and audio tools are
// usable on this host. Probing happens once at startup; the resulting
// Registry is immutable and safe for concurrent reads. A backend that goes
// down later still fails at call time, which the fallback chain handles, but
// a backend that was never configured or installed is excluded up front so no
// tier wastes a network round trip on it.
package capability

import (
	"log/slog"
	"os/exec"

	"github.com/audioalchemy/audioalchemy/internal/config"
	"github.com/audioalchemy/audioalchemy/pkg/synth"
)

// Registry holds the probe results. Construct with Probe; the zero value
// reports nothing available.
type Registry struct {
	available map[synth.Backend]bool
	ffmpeg    bool
}

// lookPath is swapped out in tests.
var lookPath = exec.LookPath

// binaryOnPath reports whether bin resolves to an executable.
func binaryOnPath(bin string) bool {
	_, err := lookPath(bin)
	return err == nil
}

// Probe inspects cfg and the local host and returns the availability
// registry. Remote backends count as available when usable credentials or
// endpoints are configured; subprocess backends when their binary is on PATH.
func Probe(cfg *config.Config) *Registry {
	r := &Registry{available: make(map[synth.Backend]bool)}

	r.available[synth.BackendElevenLabs] = cfg.Backends.ElevenLabs.Configured()
	r.available[synth.BackendOpenAI] = cfg.Backends.OpenAI.Configured()
	r.available[synth.BackendXTTS] = cfg.Backends.XTTS.Configured()
	r.available[synth.BackendCoqui] = cfg.Backends.Coqui.Configured()

	piperBin := cfg.Backends.Piper.Binary
	if piperBin == "" {
		piperBin = "piper"
	}
	r.available[synth.BackendPiper] = cfg.Backends.Piper.ModelPath != "" && binaryOnPath(piperBin)

	espeakBin := cfg.Backends.ESpeak.Binary
	if espeakBin == "" {
		espeakBin = "espeak-ng"
	}
	r.available[synth.BackendESpeak] = binaryOnPath(espeakBin)

	r.ffmpeg = binaryOnPath("ffmpeg")

	slog.Info("capability probe complete",
		"elevenlabs", r.available[synth.BackendElevenLabs],
		"openai", r.available[synth.BackendOpenAI],
		"xtts", r.available[synth.BackendXTTS],
		"coqui", r.available[synth.BackendCoqui],
		"piper", r.available[synth.BackendPiper],
		"espeak", r.available[synth.BackendESpeak],
		"ffmpeg", r.ffmpeg,
	)
	return r
}

// Static returns a registry that reports exactly the given backends as
// available, without probing. Used by tests and by deployments that pin
// their backend set in configuration.
func Static(ffmpeg bool, backends ...synth.Backend) *Registry {
	r := &Registry{available: make(map[synth.Backend]bool), ffmpeg: ffmpeg}
	for _, b := range backends {
		r.available[b] = true
	}
	return r
}

// IsAvailable reports whether b passed its startup probe.
func (r *Registry) IsAvailable(b synth.Backend) bool {
	return r.available[b]
}

// HasFFmpeg reports whether audio format conversion is possible.
func (r *Registry) HasFFmpeg() bool { return r.ffmpeg }

// localPriority orders local backends best-first.
var localPriority = []synth.Backend{synth.BackendXTTS, synth.BackendCoqui, synth.BackendPiper}

// PreferredLocalBackend returns the best available local neural backend, or
// "" when none is available. espeak is excluded: it is the basic tier, not a
// neural engine.
func (r *Registry) PreferredLocalBackend() synth.Backend {
	for _, b := range localPriority {
		if r.available[b] {
			return b
		}
	}
	return ""
}

// clonePriority orders clone-capable local backends best-first. Piper cannot
// clone.
var clonePriority = []synth.Backend{synth.BackendXTTS, synth.BackendCoqui}

// PreferredCloneBackend returns the best available local backend that can
// derive a voice from a sample, or "" when none is available.
func (r *Registry) PreferredCloneBackend() synth.Backend {
	for _, b := range clonePriority {
		if r.available[b] {
			return b
		}
	}
	return ""
}

// Snapshot returns the availability map keyed by backend name, for the
// readiness endpoint and UI.
func (r *Registry) Snapshot() map[string]bool {
	out := make(map[string]bool, len(r.available)+1)
	for b, ok := range r.available {
		out[string(b)] = ok
	}
	out["ffmpeg"] = r.ffmpeg
	return out
}
