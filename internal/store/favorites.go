package store

import (
	"slices"
	"time"
)

// Favorite is one saved synthesis input the user wants to reuse.
type Favorite struct {
	// Text is the content to speak.
	Text string `json:"text"`

	// Voice is the voice identifier to use.
	Voice string `json:"voice,omitempty"`

	// Language is the synthesis language, if set.
	Language string `json:"language,omitempty"`

	// AddedAt is when the favorite was saved.
	AddedAt time.Time `json:"added_at"`
}

// sameFavorite compares by value, ignoring AddedAt: re-saving the same text
// with the same voice and language must not create a duplicate.
func sameFavorite(a, b Favorite) bool {
	return a.Text == b.Text && a.Voice == b.Voice && a.Language == b.Language
}

// Favorites returns all favorites in insertion order.
func (s *Store) Favorites() ([]Favorite, error) {
	s.favsMu.Lock()
	defer s.favsMu.Unlock()

	var favs []Favorite
	if _, err := s.load(favoritesFile, &favs); err != nil {
		return nil, err
	}
	return favs, nil
}

// AddFavorite appends f unless an equal favorite already exists.
func (s *Store) AddFavorite(f Favorite) error {
	s.favsMu.Lock()
	defer s.favsMu.Unlock()

	var favs []Favorite
	if _, err := s.load(favoritesFile, &favs); err != nil {
		return err
	}
	for _, existing := range favs {
		if sameFavorite(existing, f) {
			return nil
		}
	}
	favs = append(favs, f)
	return s.save(favoritesFile, favs)
}

// RemoveFavorite deletes the favorite at index. Returns ErrOutOfRange when
// index does not address an existing entry.
func (s *Store) RemoveFavorite(index int) error {
	s.favsMu.Lock()
	defer s.favsMu.Unlock()

	var favs []Favorite
	if _, err := s.load(favoritesFile, &favs); err != nil {
		return err
	}
	if index < 0 || index >= len(favs) {
		return ErrOutOfRange
	}
	favs = slices.Delete(favs, index, index+1)
	return s.save(favoritesFile, favs)
}
