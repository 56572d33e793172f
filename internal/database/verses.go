package database

import "database/sql"

// InsertVerse adds a verse to the canonical verse table.
// Returns the ID, or 0 when the reference+translation pair already exists.
func (db *DB) InsertVerse(reference, text, translation string, themeID int64) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO verses (reference, text, translation, theme_id) VALUES (?, ?, ?, ?)`,
		reference, text, translation, themeID,
	)
	if err != nil {
		return 0, nil //nolint: nilerr
	}
	return result.LastInsertId()
}

// GetVerse returns a single verse by ID, or nil if not found.
func (db *DB) GetVerse(verseID int64) (*Verse, error) {
	row := db.conn.QueryRow(verseSelect+" WHERE id = ?", verseID)
	v, err := scanVerse(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// GetCanonicalVerse looks up the canonical verse row for a
// reference+translation pair, or nil if none exists.
func (db *DB) GetCanonicalVerse(reference, translation string) (*Verse, error) {
	row := db.conn.QueryRow(verseSelect+" WHERE reference = ? AND translation = ?", reference, translation)
	v, err := scanVerse(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// GetVersesForTheme returns all verses belonging to a theme.
func (db *DB) GetVersesForTheme(themeID int64) ([]Verse, error) {
	rows, err := db.conn.Query(verseSelect+" WHERE theme_id = ? ORDER BY id", themeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var verses []Verse
	for rows.Next() {
		v, err := scanVerse(rows)
		if err != nil {
			return nil, err
		}
		verses = append(verses, *v)
	}
	return verses, rows.Err()
}

// NextVerseForTheme returns the verse to use next within a theme: never-used
// verses first, then the one with the oldest last_used_at, ties on lowest id.
// Returns nil when the theme has no verses.
func (db *DB) NextVerseForTheme(themeID int64) (*Verse, error) {
	row := db.conn.QueryRow(verseSelect+` WHERE theme_id = ?
		ORDER BY last_used_at IS NOT NULL, last_used_at ASC, id ASC LIMIT 1`, themeID)
	v, err := scanVerse(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// MarkVerseUsed increments used_count and stamps last_used_at.
func (db *DB) MarkVerseUsed(verseID int64, now string) error {
	_, err := db.conn.Exec(
		`UPDATE verses SET used_count = used_count + 1, last_used_at = ? WHERE id = ?`,
		now, verseID,
	)
	return err
}

const verseSelect = `SELECT id, reference, text, translation, theme_id, used_count, last_used_at, created_at FROM verses`

func scanVerse(row rowScanner) (*Verse, error) {
	var v Verse
	if err := row.Scan(&v.ID, &v.Reference, &v.Text, &v.Translation,
		&v.ThemeID, &v.UsedCount, &v.LastUsedAt, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}
