// Package selector picks the next theme and verse for a content unit.
// Themes rotate least-recently-used so every active theme gets coverage;
// verses within a theme prefer never-used entries, then rotate the same way.
package selector

import (
	"errors"
	"fmt"

	"github.com/prayloop/prayloop/internal/database"
)

var (
	ErrNoActiveTheme    = errors.New("no active theme available")
	ErrNoVerseAvailable = errors.New("no verse available for selected theme")
)

// Selection is a theme+verse pair ready for prayer generation.
type Selection struct {
	Theme *database.Theme
	Verse *database.Verse
}

type Selector struct {
	db *database.DB
}

func New(db *database.DB) *Selector {
	return &Selector{db: db}
}

// SelectNext picks the least-recently-used active theme and its next verse,
// and marks both used immediately. Marking on selection rather than on
// publish means an abandoned unit still advances the rotation, which is
// acceptable: the rotation exists for variety, not for bookkeeping.
func (s *Selector) SelectNext() (*Selection, error) {
	theme, err := s.db.LeastRecentlyUsedTheme()
	if err != nil {
		return nil, fmt.Errorf("selecting theme: %w", err)
	}
	if theme == nil {
		return nil, ErrNoActiveTheme
	}

	verse, err := s.db.NextVerseForTheme(theme.ID)
	if err != nil {
		return nil, fmt.Errorf("selecting verse for theme %q: %w", theme.Slug, err)
	}
	if verse == nil {
		return nil, fmt.Errorf("theme %q: %w", theme.Slug, ErrNoVerseAvailable)
	}

	now := database.NowUTC()
	if err := s.db.MarkThemeUsed(theme.ID, now); err != nil {
		return nil, fmt.Errorf("marking theme used: %w", err)
	}
	if err := s.db.MarkVerseUsed(verse.ID, now); err != nil {
		return nil, fmt.Errorf("marking verse used: %w", err)
	}

	return &Selection{Theme: theme, Verse: verse}, nil
}

// Peek returns what SelectNext would pick without marking anything used.
func (s *Selector) Peek() (*Selection, error) {
	theme, err := s.db.LeastRecentlyUsedTheme()
	if err != nil {
		return nil, fmt.Errorf("selecting theme: %w", err)
	}
	if theme == nil {
		return nil, ErrNoActiveTheme
	}
	verse, err := s.db.NextVerseForTheme(theme.ID)
	if err != nil {
		return nil, fmt.Errorf("selecting verse for theme %q: %w", theme.Slug, err)
	}
	if verse == nil {
		return nil, fmt.Errorf("theme %q: %w", theme.Slug, ErrNoVerseAvailable)
	}
	return &Selection{Theme: theme, Verse: verse}, nil
}
