// Package clone manages the voice clone lifecycle: sample validation, quota
// enforcement, backend selection with remote-first fallback, the on-disk
// sample library, and retention-based expiry.
package clone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"

	"github.com/audioalchemy/audioalchemy/internal/capability"
	"github.com/audioalchemy/audioalchemy/internal/store"
	"github.com/audioalchemy/audioalchemy/pkg/audio"
	"github.com/audioalchemy/audioalchemy/pkg/synth"
)

// BackendAuto asks the manager to pick: the remote clone backend first, then
// the best available local one.
const BackendAuto = "auto"

var (
	// ErrQuotaExceeded means the user already holds their maximum number of
	// clones. Checked before any backend call so a full quota never costs a
	// network round trip.
	ErrQuotaExceeded = errors.New("clone: voice clone quota exceeded")

	// ErrInvalidSample means the uploaded audio failed validation. The
	// wrapped message carries the user-facing reason.
	ErrInvalidSample = errors.New("clone: sample failed validation")

	// ErrNoBackend means no clone-capable backend is available.
	ErrNoBackend = errors.New("clone: no clone-capable backend available")

	// ErrUnknownBackend means the request named a backend that does not
	// exist or cannot clone.
	ErrUnknownBackend = errors.New("clone: unknown or non-cloning backend")

	// ErrNotFound means no clone with the requested id or name exists.
	ErrNotFound = errors.New("clone: not found")
)

// maxNameDistance is the Damerau-Levenshtein tolerance for fuzzy name
// resolution.
const maxNameDistance = 2

// Manager owns the clone registry and sample library. Safe for concurrent
// use; the store serialises registry access.
type Manager struct {
	store     *store.Store
	caps      *capability.Registry
	voicesDir string
	cloners   map[synth.Backend]synth.Cloner

	// createMu holds the quota check and the registry insert in one
	// critical section, so concurrent creations cannot both pass the gate
	// and overshoot the quota.
	createMu sync.Mutex
}

// New creates a Manager. cloners maps each clone-capable backend to its
// implementation; backends the capability probe rejected are never called
// even if present in the map.
func New(st *store.Store, caps *capability.Registry, voicesDir string, cloners map[synth.Backend]synth.Cloner) (*Manager, error) {
	if err := os.MkdirAll(voicesDir, 0o755); err != nil {
		return nil, fmt.Errorf("clone: create voices dir: %w", err)
	}
	return &Manager{
		store:     st,
		caps:      caps,
		voicesDir: voicesDir,
		cloners:   cloners,
	}, nil
}

// CreateRequest carries everything needed to create one clone.
type CreateRequest struct {
	// Name is the user-chosen display name. Required.
	Name string

	// Description is optional free text.
	Description string

	// Backend is BackendAuto or an explicit backend name. Explicit requests
	// get no fallback: if that backend fails, the creation fails.
	Backend string

	// SampleWAV is the complete voice sample, already converted to WAV.
	SampleWAV []byte

	// AllowEstimatedDuration permits a degraded validation when the sample
	// cannot be decoded: duration is estimated from file size and the sample
	// rate and silence checks are skipped. Set when no converter is available
	// to normalise the upload to WAV.
	AllowEstimatedDuration bool
}

// Create validates, gates on quota, clones on the selected backend, and
// persists the record plus sample. Nothing is written unless the backend call
// succeeds, so a failed creation leaves no partial state behind.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (store.VoiceClone, error) {
	if req.Name == "" {
		return store.VoiceClone{}, fmt.Errorf("%w: a name is required", ErrInvalidSample)
	}

	report, err := m.validateSample(req.SampleWAV, req.AllowEstimatedDuration)
	if err != nil {
		return store.VoiceClone{}, err
	}
	if !report.OK {
		return store.VoiceClone{}, fmt.Errorf("%w: %s", ErrInvalidSample, report.Reason)
	}

	m.createMu.Lock()
	defer m.createMu.Unlock()

	prefs, err := m.store.Preferences()
	if err != nil {
		return store.VoiceClone{}, err
	}
	count, err := m.store.CloneCount()
	if err != nil {
		return store.VoiceClone{}, err
	}
	if prefs.CloneQuota > 0 && count >= prefs.CloneQuota {
		return store.VoiceClone{}, fmt.Errorf("%w: %d of %d used", ErrQuotaExceeded, count, prefs.CloneQuota)
	}

	backends, err := m.selectBackends(req.Backend)
	if err != nil {
		return store.VoiceClone{}, err
	}

	var (
		chosen     synth.Backend
		providerID string
		lastErr    error
	)
	for _, b := range backends {
		cloner := m.cloners[b]
		if cloner == nil {
			continue
		}
		id, cloneErr := cloner.CloneVoice(ctx, req.Name, req.SampleWAV)
		if cloneErr != nil {
			lastErr = cloneErr
			slog.Warn("clone backend failed", "backend", b, "error", cloneErr)
			continue
		}
		chosen = b
		providerID = id
		break
	}
	if chosen == "" {
		if lastErr != nil {
			return store.VoiceClone{}, fmt.Errorf("clone: all backends failed: %w", lastErr)
		}
		return store.VoiceClone{}, ErrNoBackend
	}

	// Registry id: backend-prefixed for readability, unique via the random
	// suffix. The Backend field stays authoritative.
	cloneID := string(chosen) + "_" + newCloneSuffix()

	samplePath, err := m.writeSample(cloneID, req.SampleWAV)
	if err != nil {
		// The backend-side voice exists but we cannot keep the sample.
		// Roll the backend back so no orphan survives.
		if delErr := m.cloners[chosen].DeleteVoice(ctx, providerID); delErr != nil {
			slog.Warn("rollback of backend voice failed", "backend", chosen, "voice", providerID, "error", delErr)
		}
		return store.VoiceClone{}, err
	}

	rec := store.VoiceClone{
		ID:             cloneID,
		ProviderID:     providerID,
		Name:           req.Name,
		Description:    req.Description,
		Backend:        chosen,
		CreatedAt:      time.Now().UTC(),
		SourceAudioRef: filepath.Base(samplePath),
		Status:         store.CloneReady,
		OwnerUserID:    "default",
	}
	if err := m.store.PutClone(rec); err != nil {
		return store.VoiceClone{}, err
	}

	// Sidecar metadata next to the sample, so the voices directory is
	// self-describing. The registry stays authoritative.
	if meta, err := json.MarshalIndent(rec, "", "  "); err == nil {
		metaPath := filepath.Join(m.voicesDir, cloneID+".json")
		if err := os.WriteFile(metaPath, meta, 0o644); err != nil {
			slog.Warn("failed to write clone metadata", "path", metaPath, "error", err)
		}
	}

	if err := m.store.AppendHistory(store.HistoryEntry{
		Timestamp: rec.CreatedAt,
		Kind:      store.HistoryClone,
		Text:      req.Name,
		Backend:   string(chosen),
	}); err != nil {
		slog.Warn("failed to record clone in history", "error", err)
	}

	slog.Info("voice clone created",
		"id", rec.ID, "name", rec.Name, "backend", rec.Backend,
		"sample_duration", report.Duration)
	return rec, nil
}

// validateSample runs the audio quality gate against the in-memory sample.
// When the sample cannot be decoded and allowEstimate is set, the duration
// check runs against a file-size estimate instead and the remaining checks
// are skipped. The Estimated flag on the report marks that degradation.
func (m *Manager) validateSample(wav []byte, allowEstimate bool) (audio.Report, error) {
	if len(wav) == 0 {
		return audio.Report{}, fmt.Errorf("%w: no audio provided", ErrInvalidSample)
	}
	rep := audio.ValidateBytes(wav)
	if rep.OK || rep.Duration > 0 || !allowEstimate {
		return rep, nil
	}

	rep.Estimated = true
	rep.Duration = audio.EstimateSampleDuration(rep.FileSize)
	switch {
	case rep.Duration < audio.MinSampleDuration:
		rep.Reason = fmt.Sprintf("audio too short: about %.0fs (minimum %.0fs required)", rep.Duration, audio.MinSampleDuration)
	case rep.Duration >= audio.MaxSampleDuration:
		rep.Reason = fmt.Sprintf("audio too long: about %.0fs (maximum %.0fs allowed)", rep.Duration, audio.MaxSampleDuration)
	default:
		rep.OK = true
		rep.Reason = "duration estimated from file size"
		slog.Warn("sample accepted on estimated duration", "duration", rep.Duration)
	}
	return rep, nil
}

// selectBackends returns the ordered backend candidates for a request.
func (m *Manager) selectBackends(requested string) ([]synth.Backend, error) {
	if requested == "" || requested == BackendAuto {
		var order []synth.Backend
		if m.caps.IsAvailable(synth.BackendElevenLabs) {
			order = append(order, synth.BackendElevenLabs)
		}
		if local := m.caps.PreferredCloneBackend(); local != "" {
			order = append(order, local)
		}
		if len(order) == 0 {
			return nil, ErrNoBackend
		}
		return order, nil
	}

	b := synth.Backend(requested)
	if !b.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, requested)
	}
	if m.cloners[b] == nil {
		return nil, fmt.Errorf("%w: %q cannot clone", ErrUnknownBackend, requested)
	}
	if !m.caps.IsAvailable(b) {
		return nil, fmt.Errorf("%w: %q is not available", ErrNoBackend, requested)
	}
	// Explicit backend: no fallback.
	return []synth.Backend{b}, nil
}

// writeSample stores the sample under the voices directory.
func (m *Manager) writeSample(voiceID string, wav []byte) (string, error) {
	path := filepath.Join(m.voicesDir, voiceID+".wav")
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return "", fmt.Errorf("clone: store sample: %w", err)
	}
	return path, nil
}

// SamplePath returns the absolute path of a clone's stored sample.
func (m *Manager) SamplePath(rec store.VoiceClone) string {
	if rec.SourceAudioRef == "" {
		return ""
	}
	return filepath.Join(m.voicesDir, rec.SourceAudioRef)
}

// List returns all clone records, newest first.
func (m *Manager) List() ([]store.VoiceClone, error) {
	return m.store.Clones()
}

// Get returns the clone with the given id.
func (m *Manager) Get(id string) (store.VoiceClone, error) {
	rec, err := m.store.GetClone(id)
	if errors.Is(err, store.ErrNotFound) {
		return store.VoiceClone{}, fmt.Errorf("%w: id %q", ErrNotFound, id)
	}
	return rec, err
}

// ResolveName finds a clone by display name: exact match first, then the
// closest fuzzy match within a small edit distance. Ambiguity resolves to the
// newest record because the registry is stored newest first.
func (m *Manager) ResolveName(name string) (store.VoiceClone, error) {
	clones, err := m.store.Clones()
	if err != nil {
		return store.VoiceClone{}, err
	}
	for _, c := range clones {
		if c.Name == name {
			return c, nil
		}
	}

	best := -1
	bestDist := maxNameDistance + 1
	for i, c := range clones {
		if d := matchr.DamerauLevenshtein(name, c.Name); d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 0 {
		return store.VoiceClone{}, fmt.Errorf("%w: name %q", ErrNotFound, name)
	}
	return clones[best], nil
}

// Delete removes a clone. The registry record goes first; backend-side and
// file cleanup are best effort and only logged on failure. An unknown id
// returns ErrNotFound, so the second delete of the same clone reports
// not-found instead of silently succeeding.
func (m *Manager) Delete(ctx context.Context, id string) error {
	rec, ok, err := m.store.DeleteClone(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: id %q", ErrNotFound, id)
	}

	if cloner := m.cloners[rec.Backend]; cloner != nil {
		if err := cloner.DeleteVoice(ctx, backendVoiceID(rec)); err != nil {
			slog.Warn("backend voice cleanup failed", "backend", rec.Backend, "voice", rec.ID, "error", err)
		}
	}
	if path := m.SamplePath(rec); path != "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("sample file cleanup failed", "path", path, "error", err)
		}
	}
	if err := os.Remove(filepath.Join(m.voicesDir, rec.ID+".json")); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("metadata cleanup failed", "id", rec.ID, "error", err)
	}

	if err := m.store.AppendHistory(store.HistoryEntry{
		Timestamp: time.Now().UTC(),
		Kind:      store.HistoryCloneDelete,
		Text:      rec.Name,
		Backend:   string(rec.Backend),
	}); err != nil {
		slog.Warn("failed to record clone deletion in history", "error", err)
	}

	slog.Info("voice clone deleted", "id", rec.ID, "name", rec.Name, "backend", rec.Backend)
	return nil
}

// newCloneSuffix returns 12 hex characters of randomness for registry ids.
func newCloneSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// backendVoiceID returns the identifier the backend knows the voice by.
// Records written before ProviderID existed fall back to the registry id.
func backendVoiceID(rec store.VoiceClone) string {
	if rec.ProviderID != "" {
		return rec.ProviderID
	}
	return rec.ID
}

// SweepExpired deletes clones older than the configured retention period.
// Retention of zero disables expiry. Returns the number of clones removed.
func (m *Manager) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	prefs, err := m.store.Preferences()
	if err != nil {
		return 0, err
	}
	if prefs.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-time.Duration(prefs.RetentionDays) * 24 * time.Hour)

	clones, err := m.store.Clones()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, c := range clones {
		if c.CreatedAt.After(cutoff) {
			continue
		}
		if err := m.Delete(ctx, c.ID); err != nil {
			slog.Warn("retention sweep failed to delete clone", "id", c.ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("retention sweep removed expired clones", "count", removed, "retention_days", prefs.RetentionDays)
	}
	return removed, nil
}
