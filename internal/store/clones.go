package store

import (
	"time"

	"github.com/audioalchemy/audioalchemy/pkg/synth"
)

// CloneStatus tracks a voice clone's lifecycle.
type CloneStatus string

const (
	CloneReady  CloneStatus = "ready"
	CloneFailed CloneStatus = "failed"
)

// VoiceClone is the registry record for one cloned voice. Backend is a
// first-class field; nothing in the system infers it from the shape of the
// identifier.
type VoiceClone struct {
	// ID is the registry identifier. It carries a backend-name prefix for
	// readability only; the Backend field is authoritative.
	ID string `json:"id"`

	// ProviderID is the voice identifier on the backend itself: the
	// provider-assigned id for remote backends, the speaker name for local
	// ones. Used for backend synthesis and deletion calls.
	ProviderID string `json:"provider_id,omitempty"`

	// Name is the user-chosen display name.
	Name string `json:"name"`

	// Description is free text shown in the UI.
	Description string `json:"description,omitempty"`

	// Backend identifies which engine holds or serves this voice.
	Backend synth.Backend `json:"backend"`

	// CreatedAt is when the clone was created.
	CreatedAt time.Time `json:"created_at"`

	// SourceAudioRef is the path of the stored sample the clone was built
	// from, relative to the voices directory.
	SourceAudioRef string `json:"source_audio_ref,omitempty"`

	// Status is the lifecycle state.
	Status CloneStatus `json:"status"`

	// OwnerUserID reserves multi-user support; always "default" today.
	OwnerUserID string `json:"owner_user_id"`
}

// Clones returns all clone records, newest first.
func (s *Store) Clones() ([]VoiceClone, error) {
	s.clonesMu.Lock()
	defer s.clonesMu.Unlock()

	var clones []VoiceClone
	if _, err := s.load(clonesFile, &clones); err != nil {
		return nil, err
	}
	return clones, nil
}

// CloneCount returns the number of stored clones.
func (s *Store) CloneCount() (int, error) {
	clones, err := s.Clones()
	if err != nil {
		return 0, err
	}
	return len(clones), nil
}

// GetClone returns the clone with the given id, or ErrNotFound.
func (s *Store) GetClone(id string) (VoiceClone, error) {
	clones, err := s.Clones()
	if err != nil {
		return VoiceClone{}, err
	}
	for _, c := range clones {
		if c.ID == id {
			return c, nil
		}
	}
	return VoiceClone{}, ErrNotFound
}

// PutClone inserts c at the head of the registry, replacing any record with
// the same ID.
func (s *Store) PutClone(c VoiceClone) error {
	s.clonesMu.Lock()
	defer s.clonesMu.Unlock()

	var clones []VoiceClone
	if _, err := s.load(clonesFile, &clones); err != nil {
		return err
	}

	kept := clones[:0]
	for _, existing := range clones {
		if existing.ID != c.ID {
			kept = append(kept, existing)
		}
	}
	clones = append([]VoiceClone{c}, kept...)
	return s.save(clonesFile, clones)
}

// DeleteClone removes the record with the given id and returns it. A missing
// id returns ok=false with no error, which is what makes clone deletion
// idempotent at the API surface.
func (s *Store) DeleteClone(id string) (removed VoiceClone, ok bool, err error) {
	s.clonesMu.Lock()
	defer s.clonesMu.Unlock()

	var clones []VoiceClone
	if _, err := s.load(clonesFile, &clones); err != nil {
		return VoiceClone{}, false, err
	}

	kept := clones[:0]
	for _, c := range clones {
		if c.ID == id {
			removed = c
			ok = true
			continue
		}
		kept = append(kept, c)
	}
	if !ok {
		return VoiceClone{}, false, nil
	}
	return removed, true, s.save(clonesFile, kept)
}
