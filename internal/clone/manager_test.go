package clone

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/audioalchemy/audioalchemy/internal/capability"
	"github.com/audioalchemy/audioalchemy/internal/config"
	"github.com/audioalchemy/audioalchemy/internal/store"
	"github.com/audioalchemy/audioalchemy/pkg/audio"
	"github.com/audioalchemy/audioalchemy/pkg/synth"
	"github.com/audioalchemy/audioalchemy/pkg/synth/mock"
)

// goodSample returns a 12 second 440 Hz sine at 16 kHz, which passes every
// validation check.
func goodSample() []byte {
	const rate = 16000
	n := 12 * rate
	pcm := make([]byte, n*2)
	for i := range n {
		v := int16(0.5 * 32767 * math.Sin(2*math.Pi*440*float64(i)/rate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return audio.EncodeWAV(pcm, rate, 1)
}

// shortSample returns a 2 second sample, which fails the duration check.
func shortSample() []byte {
	const rate = 16000
	n := 2 * rate
	pcm := make([]byte, n*2)
	for i := range n {
		v := int16(0.5 * 32767 * math.Sin(2*math.Pi*440*float64(i)/rate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return audio.EncodeWAV(pcm, rate, 1)
}

// remoteAndLocalCaps returns a registry where elevenlabs and xtts passed
// their probes.
func remoteAndLocalCaps() *capability.Registry {
	cfg := &config.Config{}
	cfg.Backends.ElevenLabs.APIKey = "xi-9f8e7d6c"
	cfg.Backends.XTTS.ServerURL = "http://localhost:8020"
	return capability.Probe(cfg)
}

func newManager(t *testing.T, caps *capability.Registry, cloners map[synth.Backend]synth.Cloner) (*Manager, *store.Store, string) {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	voicesDir := t.TempDir()
	m, err := New(st, caps, voicesDir, cloners)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, st, voicesDir
}

func TestCreateRemoteFirst(t *testing.T) {
	remote := &mock.Provider{Backend: synth.BackendElevenLabs, CloneID: "el-voice-1"}
	local := &mock.Provider{Backend: synth.BackendXTTS}
	m, st, voicesDir := newManager(t, remoteAndLocalCaps(), map[synth.Backend]synth.Cloner{
		synth.BackendElevenLabs: remote,
		synth.BackendXTTS:       local,
	})

	rec, err := m.Create(context.Background(), CreateRequest{
		Name:      "Ava",
		Backend:   BackendAuto,
		SampleWAV: goodSample(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Backend != synth.BackendElevenLabs {
		t.Errorf("backend = %q, want elevenlabs", rec.Backend)
	}
	if rec.ProviderID != "el-voice-1" {
		t.Errorf("provider id = %q, want el-voice-1", rec.ProviderID)
	}
	if !strings.HasPrefix(rec.ID, "elevenlabs_") {
		t.Errorf("id = %q, want elevenlabs_ prefix", rec.ID)
	}
	if rec.Status != store.CloneReady {
		t.Errorf("status = %q", rec.Status)
	}

	// The sample must be on disk and referenced by the record.
	if _, err := os.Stat(filepath.Join(voicesDir, rec.SourceAudioRef)); err != nil {
		t.Errorf("sample file missing: %v", err)
	}

	// Creation lands in history.
	entries, _ := st.History()
	if len(entries) != 1 || entries[0].Kind != store.HistoryClone {
		t.Errorf("history = %+v", entries)
	}
}

func TestCreateFallsBackToLocal(t *testing.T) {
	remote := &mock.Provider{Backend: synth.BackendElevenLabs, CloneErr: errors.New("402 payment required")}
	local := &mock.Provider{Backend: synth.BackendXTTS, CloneID: "Ava"}
	m, _, _ := newManager(t, remoteAndLocalCaps(), map[synth.Backend]synth.Cloner{
		synth.BackendElevenLabs: remote,
		synth.BackendXTTS:       local,
	})

	rec, err := m.Create(context.Background(), CreateRequest{
		Name:      "Ava",
		Backend:   BackendAuto,
		SampleWAV: goodSample(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Backend != synth.BackendXTTS {
		t.Errorf("backend = %q, want xtts", rec.Backend)
	}
	// Local clones get a generated registry id, never the speaker name.
	if !strings.HasPrefix(rec.ID, "xtts_") || rec.ID == "xtts_Ava" {
		t.Errorf("id = %q, want generated with xtts_ prefix", rec.ID)
	}
}

func TestCreateExplicitBackendNoFallback(t *testing.T) {
	remote := &mock.Provider{Backend: synth.BackendElevenLabs, CloneErr: errors.New("boom")}
	local := &mock.Provider{Backend: synth.BackendXTTS}
	m, _, _ := newManager(t, remoteAndLocalCaps(), map[synth.Backend]synth.Cloner{
		synth.BackendElevenLabs: remote,
		synth.BackendXTTS:       local,
	})

	_, err := m.Create(context.Background(), CreateRequest{
		Name:      "Ava",
		Backend:   "elevenlabs",
		SampleWAV: goodSample(),
	})
	if err == nil {
		t.Fatal("explicit backend failure must not fall back")
	}
	if len(local.Cloned()) != 0 {
		t.Error("local backend should be untouched")
	}
}

func TestCreateQuotaGate(t *testing.T) {
	calls := 0
	remote := &mock.Provider{Backend: synth.BackendElevenLabs}
	m, st, _ := newManager(t, remoteAndLocalCaps(), map[synth.Backend]synth.Cloner{
		synth.BackendElevenLabs: countingCloner{remote, &calls},
	})

	if err := st.UpdatePreferences(func(p *store.Preferences) { p.CloneQuota = 1 }); err != nil {
		t.Fatalf("UpdatePreferences: %v", err)
	}

	if _, err := m.Create(context.Background(), CreateRequest{Name: "One", SampleWAV: goodSample()}); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	_, err := m.Create(context.Background(), CreateRequest{Name: "Two", SampleWAV: goodSample()})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	// The gate runs before any backend call.
	if calls != 1 {
		t.Errorf("backend called %d times, want 1", calls)
	}
}

func TestCreateQuotaGateUnderConcurrency(t *testing.T) {
	remote := &mock.Provider{Backend: synth.BackendElevenLabs}
	m, st, _ := newManager(t, remoteAndLocalCaps(), map[synth.Backend]synth.Cloner{
		synth.BackendElevenLabs: remote,
	})

	if err := st.UpdatePreferences(func(p *store.Preferences) { p.CloneQuota = 1 }); err != nil {
		t.Fatalf("UpdatePreferences: %v", err)
	}

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = m.Create(context.Background(), CreateRequest{
				Name:      fmt.Sprintf("Voice %d", i),
				SampleWAV: goodSample(),
			})
		}()
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case !errors.Is(err, ErrQuotaExceeded):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Errorf("%d creations passed the gate, want exactly 1", created)
	}
	count, err := st.CloneCount()
	if err != nil {
		t.Fatalf("CloneCount: %v", err)
	}
	if count != 1 {
		t.Errorf("registry holds %d clones, want 1", count)
	}
}

// countingCloner wraps a cloner and counts CloneVoice calls.
type countingCloner struct {
	inner synth.Cloner
	n     *int
}

func (c countingCloner) CloneVoice(ctx context.Context, name string, sample []byte) (string, error) {
	*c.n++
	return c.inner.CloneVoice(ctx, name, sample)
}

func (c countingCloner) DeleteVoice(ctx context.Context, id string) error {
	return c.inner.DeleteVoice(ctx, id)
}

func TestCreateRejectsInvalidSample(t *testing.T) {
	calls := 0
	remote := &mock.Provider{Backend: synth.BackendElevenLabs}
	m, _, _ := newManager(t, remoteAndLocalCaps(), map[synth.Backend]synth.Cloner{
		synth.BackendElevenLabs: countingCloner{remote, &calls},
	})

	_, err := m.Create(context.Background(), CreateRequest{Name: "Ava", SampleWAV: shortSample()})
	if !errors.Is(err, ErrInvalidSample) {
		t.Fatalf("err = %v, want ErrInvalidSample", err)
	}
	if calls != 0 {
		t.Error("invalid sample must never reach a backend")
	}
}

func TestDeleteAndRepeatNotFound(t *testing.T) {
	remote := &mock.Provider{Backend: synth.BackendElevenLabs, CloneID: "el-voice-1"}
	m, _, voicesDir := newManager(t, remoteAndLocalCaps(), map[synth.Backend]synth.Cloner{
		synth.BackendElevenLabs: remote,
	})

	rec, err := m.Create(context.Background(), CreateRequest{Name: "Ava", SampleWAV: goodSample()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted := remote.Deleted(); len(deleted) != 1 || deleted[0] != "el-voice-1" {
		t.Errorf("backend deletions = %v, want the provider id", deleted)
	}
	if _, err := os.Stat(filepath.Join(voicesDir, rec.SourceAudioRef)); !errors.Is(err, os.ErrNotExist) {
		t.Error("sample file should be gone")
	}

	// Second delete of the same id, and a delete of a never-existing id,
	// both report not-found.
	if err := m.Delete(context.Background(), rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("repeat Delete err = %v, want ErrNotFound", err)
	}
	if err := m.Delete(context.Background(), "never-existed"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete unknown err = %v, want ErrNotFound", err)
	}
	// Cleanup of the record, sample and backend voice ran exactly once.
	if len(remote.Deleted()) != 1 {
		t.Errorf("backend deletions = %v, want exactly one", remote.Deleted())
	}
}

func TestDeleteToleratesBackendFailure(t *testing.T) {
	remote := &mock.Provider{
		Backend:   synth.BackendElevenLabs,
		CloneID:   "el-voice-1",
		DeleteErr: errors.New("503"),
	}
	m, st, _ := newManager(t, remoteAndLocalCaps(), map[synth.Backend]synth.Cloner{
		synth.BackendElevenLabs: remote,
	})

	rec, err := m.Create(context.Background(), CreateRequest{Name: "Ava", SampleWAV: goodSample()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("Delete with failing backend: %v", err)
	}
	// The registry record is gone regardless.
	if _, err := st.GetClone(rec.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("record should be removed even when backend cleanup fails")
	}
}

func TestResolveName(t *testing.T) {
	remote := &mock.Provider{Backend: synth.BackendElevenLabs, CloneID: "el-voice-1"}
	m, _, _ := newManager(t, remoteAndLocalCaps(), map[synth.Backend]synth.Cloner{
		synth.BackendElevenLabs: remote,
	})

	if _, err := m.Create(context.Background(), CreateRequest{Name: "Ava", SampleWAV: goodSample()}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec, err := m.ResolveName("Ava")
	if err != nil {
		t.Fatalf("exact ResolveName: %v", err)
	}
	if rec.Name != "Ava" {
		t.Errorf("resolved %q", rec.Name)
	}

	// One transposition away still resolves.
	rec, err = m.ResolveName("Av a")
	if err != nil {
		t.Fatalf("fuzzy ResolveName: %v", err)
	}
	if rec.Name != "Ava" {
		t.Errorf("fuzzy resolved %q", rec.Name)
	}

	if _, err := m.ResolveName("completely different"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSweepExpired(t *testing.T) {
	remote := &mock.Provider{Backend: synth.BackendElevenLabs, CloneID: "el-voice-1"}
	m, st, _ := newManager(t, remoteAndLocalCaps(), map[synth.Backend]synth.Cloner{
		synth.BackendElevenLabs: remote,
	})

	rec, err := m.Create(context.Background(), CreateRequest{Name: "Ava", SampleWAV: goodSample()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Retention disabled: nothing happens.
	n, err := m.SweepExpired(context.Background(), time.Now().Add(365*24*time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("sweep with retention disabled: n=%d err=%v", n, err)
	}

	if err := st.UpdatePreferences(func(p *store.Preferences) { p.RetentionDays = 30 }); err != nil {
		t.Fatalf("UpdatePreferences: %v", err)
	}

	// Not old enough yet.
	n, err = m.SweepExpired(context.Background(), time.Now())
	if err != nil || n != 0 {
		t.Fatalf("premature sweep: n=%d err=%v", n, err)
	}

	// Past the retention window.
	n, err = m.SweepExpired(context.Background(), time.Now().Add(31*24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("sweep: n=%d err=%v", n, err)
	}
	if _, err := st.GetClone(rec.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("expired clone should be gone")
	}
}

func TestCreateEstimatedDuration(t *testing.T) {
	local := &mock.Provider{Backend: synth.BackendXTTS}
	caps := capability.Static(false, synth.BackendXTTS)
	m, _, _ := newManager(t, caps, map[synth.Backend]synth.Cloner{
		synth.BackendXTTS: local,
	})

	// Undecodable bytes sized like roughly 12 seconds of mono 16 kHz PCM.
	blob := make([]byte, 12*16000*2+44)

	// Without the degraded path the sample is rejected outright.
	_, err := m.Create(context.Background(), CreateRequest{
		Name:      "Ava",
		Backend:   "xtts",
		SampleWAV: blob,
	})
	if !errors.Is(err, ErrInvalidSample) {
		t.Fatalf("err = %v, want ErrInvalidSample", err)
	}

	// With it, the duration estimate lets the clone through.
	rec, err := m.Create(context.Background(), CreateRequest{
		Name:                   "Ava",
		Backend:                "xtts",
		SampleWAV:              blob,
		AllowEstimatedDuration: true,
	})
	if err != nil {
		t.Fatalf("Create with estimate: %v", err)
	}
	if rec.Backend != synth.BackendXTTS {
		t.Errorf("backend = %q", rec.Backend)
	}

	// A tiny blob still fails even with estimation allowed.
	_, err = m.Create(context.Background(), CreateRequest{
		Name:                   "Bob",
		Backend:                "xtts",
		SampleWAV:              make([]byte, 2000),
		AllowEstimatedDuration: true,
	})
	if !errors.Is(err, ErrInvalidSample) {
		t.Errorf("tiny blob err = %v, want ErrInvalidSample", err)
	}
}
