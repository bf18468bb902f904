package store

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// MaxHistoryEntries caps the history document. Oldest entries fall off.
const MaxHistoryEntries = 100

// HistoryKind distinguishes what an entry records.
type HistoryKind string

const (
	HistorySynthesis     HistoryKind = "tts"
	HistoryTranscription HistoryKind = "transcription"
	HistoryTranslation   HistoryKind = "translation"
	HistoryClone         HistoryKind = "voice_clone"
	HistoryCloneDelete   HistoryKind = "voice_delete"
)

// HistoryEntry is one recorded operation, newest first in storage.
type HistoryEntry struct {
	// ID uniquely identifies the entry. AppendHistory assigns it.
	ID string `json:"id"`

	// Timestamp is when the operation completed.
	Timestamp time.Time `json:"timestamp"`

	// Kind says what kind of operation this was.
	Kind HistoryKind `json:"kind"`

	// Text is the input text (or transcription output), possibly truncated
	// by the caller for display.
	Text string `json:"text,omitempty"`

	// Voice is the voice used for synthesis.
	Voice string `json:"voice,omitempty"`

	// Backend is the engine that served the operation.
	Backend string `json:"backend,omitempty"`

	// Tier names the fallback tier that succeeded.
	Tier string `json:"tier,omitempty"`

	// File is the artifact filename under the uploads directory, if any.
	File string `json:"file,omitempty"`

	// Language is the language involved, if relevant.
	Language string `json:"language,omitempty"`
}

// History returns all entries, newest first.
func (s *Store) History() ([]HistoryEntry, error) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	var entries []HistoryEntry
	if _, err := s.load(historyFile, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// AppendHistory assigns the entry an id, inserts it at the head, and trims
// the list to MaxHistoryEntries.
func (s *Store) AppendHistory(entry HistoryEntry) error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	entry.ID = uuid.NewString()

	var entries []HistoryEntry
	if _, err := s.load(historyFile, &entries); err != nil {
		return err
	}

	entries = slices.Insert(entries, 0, entry)
	if len(entries) > MaxHistoryEntries {
		entries = entries[:MaxHistoryEntries]
	}
	return s.save(historyFile, entries)
}
