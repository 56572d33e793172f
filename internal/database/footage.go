package database

import "database/sql"

// InsertFootageRecord records a downloaded clip; an existing
// (source, external_id) row is reused. Returns the row id.
func (db *DB) InsertFootageRecord(source, externalID, url string, downloadPath, attribution *string, themeID *int64) (int64, error) {
	var existing int64
	err := db.conn.QueryRow(
		"SELECT id FROM stock_footage WHERE source = ? AND external_id = ?",
		source, externalID,
	).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	result, err := db.conn.Exec(
		`INSERT INTO stock_footage (source, external_id, url, download_path, attribution, theme_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		source, externalID, url, downloadPath, attribution, themeID,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetFootageRecord returns a cached clip by source identity, or nil.
func (db *DB) GetFootageRecord(source, externalID string) (*FootageRecord, error) {
	row := db.conn.QueryRow(
		`SELECT id, source, external_id, url, download_path, attribution, theme_id, created_at
		FROM stock_footage WHERE source = ? AND external_id = ?`,
		source, externalID,
	)
	var f FootageRecord
	err := row.Scan(&f.ID, &f.Source, &f.ExternalID, &f.URL, &f.DownloadPath, &f.Attribution, &f.ThemeID, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}
