package database

import (
	"database/sql"
	"encoding/json"
)

// InsertTheme creates a new theme. Returns the ID, or 0 on duplicate slug.
func (db *DB) InsertTheme(slug, name, tone string, description, hook *string, keywords []string) (int64, error) {
	var kwJSON *string
	if keywords != nil {
		data, err := json.Marshal(keywords)
		if err != nil {
			return 0, err
		}
		s := string(data)
		kwJSON = &s
	}

	result, err := db.conn.Exec(
		`INSERT INTO themes (slug, name, tone, description, hook, keywords) VALUES (?, ?, ?, ?, ?, ?)`,
		slug, name, tone, description, hook, kwJSON,
	)
	if err != nil {
		// Duplicate slug constraint
		return 0, nil //nolint: nilerr
	}
	return result.LastInsertId()
}

// GetTheme returns a single theme by ID, or nil if not found.
func (db *DB) GetTheme(themeID int64) (*Theme, error) {
	row := db.conn.QueryRow(themeSelect+" WHERE id = ?", themeID)
	t, err := scanTheme(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetThemeBySlug returns a single theme by slug, or nil if not found.
func (db *DB) GetThemeBySlug(slug string) (*Theme, error) {
	row := db.conn.QueryRow(themeSelect+" WHERE slug = ?", slug)
	t, err := scanTheme(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetAllThemes returns all themes ordered by slug.
func (db *DB) GetAllThemes() ([]Theme, error) {
	return db.queryThemes(themeSelect + " ORDER BY slug")
}

// LeastRecentlyUsedTheme returns the active theme with the oldest
// last_used_at. Themes never used sort first; ties break on lowest id so
// the rotation is deterministic. Returns nil when no theme is active.
func (db *DB) LeastRecentlyUsedTheme() (*Theme, error) {
	row := db.conn.QueryRow(themeSelect + ` WHERE is_active = 1
		ORDER BY last_used_at IS NOT NULL, last_used_at ASC, id ASC LIMIT 1`)
	t, err := scanTheme(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// MarkThemeUsed stamps a theme's last_used_at.
func (db *DB) MarkThemeUsed(themeID int64, now string) error {
	_, err := db.conn.Exec("UPDATE themes SET last_used_at = ? WHERE id = ?", now, themeID)
	return err
}

// ToggleTheme flips a theme's active flag.
func (db *DB) ToggleTheme(themeID int64) error {
	_, err := db.conn.Exec("UPDATE themes SET is_active = NOT is_active WHERE id = ?", themeID)
	return err
}

const themeSelect = `SELECT id, slug, name, description, keywords, tone, hook, is_active, last_used_at, created_at FROM themes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTheme(row rowScanner) (*Theme, error) {
	var t Theme
	var kwJSON *string
	var active int
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Description, &kwJSON,
		&t.Tone, &t.Hook, &active, &t.LastUsedAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.IsActive = active != 0
	if kwJSON != nil {
		if err := json.Unmarshal([]byte(*kwJSON), &t.Keywords); err != nil {
			t.Keywords = nil
		}
	}
	return &t, nil
}

func (db *DB) queryThemes(query string, args ...any) ([]Theme, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var themes []Theme
	for rows.Next() {
		t, err := scanTheme(rows)
		if err != nil {
			return nil, err
		}
		themes = append(themes, *t)
	}
	return themes, rows.Err()
}
