package store

import (
	"slices"

	"github.com/audioalchemy/audioalchemy/pkg/synth"
)

// MaxRecentLanguages caps the most-recently-used language list.
const MaxRecentLanguages = 5

// Preferences holds the user's persistent settings. Unknown values are
// tolerated on load; callers clamp before use.
type Preferences struct {
	// Name is the display name shown in the UI.
	Name string `json:"name"`

	// PreferredVoice is the default voice identifier for synthesis.
	PreferredVoice string `json:"preferred_voice"`

	// PreferredModel is the default model on model-aware backends.
	PreferredModel string `json:"preferred_model"`

	// Language is the default synthesis/recognition language code.
	Language string `json:"language"`

	// Theme is the UI theme name.
	Theme string `json:"theme"`

	// Provider is the preferred backend hint for the fallback chain.
	Provider string `json:"provider"`

	// Settings are the default voice quality parameters.
	Settings synth.Settings `json:"settings"`

	// CloneQuota is the maximum number of voice clones the user may hold.
	CloneQuota int `json:"clone_quota"`

	// RetentionDays is how long clones are kept before the sweeper removes
	// them. Zero disables expiry.
	RetentionDays int `json:"retention_days"`

	// CloneConsent records whether the user has confirmed they hold the
	// rights to the voice samples they upload. Cloning routes refuse to run
	// without it.
	CloneConsent bool `json:"clone_consent"`

	// RecentLanguages is a most-recently-used list, newest first.
	RecentLanguages []string `json:"recent_languages"`
}

// DefaultPreferences returns the preferences used before the user saves any.
func DefaultPreferences() Preferences {
	return Preferences{
		Name:            "User",
		PreferredVoice:  "alloy",
		PreferredModel:  "tts-1-hd",
		Language:        "en",
		Theme:           "dark",
		Provider:        "openai",
		Settings:        synth.Settings{Speed: 1.0, Stability: 0.5, Clarity: 0.75},
		CloneQuota:      3,
		RetentionDays:   0,
		CloneConsent:    false,
		RecentLanguages: []string{"en", "es", "fr"},
	}
}

// Preferences returns the stored preferences, or defaults when none were
// saved yet.
func (s *Store) Preferences() (Preferences, error) {
	s.prefsMu.Lock()
	defer s.prefsMu.Unlock()

	p := DefaultPreferences()
	if _, err := s.load(preferencesFile, &p); err != nil {
		return Preferences{}, err
	}
	return p, nil
}

// SavePreferences replaces the stored preferences.
func (s *Store) SavePreferences(p Preferences) error {
	s.prefsMu.Lock()
	defer s.prefsMu.Unlock()
	return s.save(preferencesFile, p)
}

// UpdatePreferences applies fn to the current preferences under the document
// lock and persists the result.
func (s *Store) UpdatePreferences(fn func(*Preferences)) error {
	s.prefsMu.Lock()
	defer s.prefsMu.Unlock()

	p := DefaultPreferences()
	if _, err := s.load(preferencesFile, &p); err != nil {
		return err
	}
	fn(&p)
	return s.save(preferencesFile, p)
}

// TouchLanguage moves lang to the front of the recent-languages list,
// deduplicating and keeping at most MaxRecentLanguages entries.
func (s *Store) TouchLanguage(lang string) error {
	if lang == "" {
		return nil
	}
	return s.UpdatePreferences(func(p *Preferences) {
		langs := slices.DeleteFunc(p.RecentLanguages, func(l string) bool { return l == lang })
		langs = append([]string{lang}, langs...)
		if len(langs) > MaxRecentLanguages {
			langs = langs[:MaxRecentLanguages]
		}
		p.RecentLanguages = langs
	})
}
