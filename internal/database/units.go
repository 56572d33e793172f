package database

import (
	"database/sql"
	"encoding/json"
)

// CreateUnit inserts a new content unit in draft status.
func (db *DB) CreateUnit(themeID, verseID int64) (int64, error) {
	now := NowUTC()
	result, err := db.conn.Exec(
		`INSERT INTO content_units (theme_id, verse_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		themeID, verseID, StatusDraft, now, now,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetUnit returns a single content unit by ID, or nil if not found.
func (db *DB) GetUnit(unitID int64) (*ContentUnit, error) {
	row := db.conn.QueryRow(unitSelect+" WHERE id = ?", unitID)
	u, err := scanUnit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// SetUnitPrayer stores validated prayer text and advances draft -> generated.
// Returns false when the unit was not in draft status.
func (db *DB) SetUnitPrayer(unitID int64, prayerText string, wordCount int, aiModel *string) (bool, error) {
	result, err := db.conn.Exec(
		`UPDATE content_units
		SET prayer_text = ?, word_count = ?, ai_model = ?, status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		prayerText, wordCount, aiModel, StatusGenerated, NowUTC(), unitID, StatusDraft,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// MarkUnitComposed records audio and video references and advances the unit
// to composed. Resets retry_count and clears any prior error.
func (db *DB) MarkUnitComposed(unitID int64, audioPath, voiceID string, audioDur float64, videoPath string, videoDur float64, attributions []string) error {
	var attrJSON *string
	if attributions != nil {
		data, err := json.Marshal(attributions)
		if err != nil {
			return err
		}
		s := string(data)
		attrJSON = &s
	}

	_, err := db.conn.Exec(
		`UPDATE content_units
		SET audio_path = ?, audio_voice_id = ?, audio_duration_sec = ?,
		    video_path = ?, video_duration_sec = ?, attributions = ?,
		    status = ?, retry_count = 0, error_message = NULL, updated_at = ?
		WHERE id = ?`,
		audioPath, voiceID, audioDur, videoPath, videoDur, attrJSON,
		StatusComposed, NowUTC(), unitID,
	)
	return err
}

// MarkUnitFailed records a failure with its captured error message and the
// retry count consumed so far.
func (db *DB) MarkUnitFailed(unitID int64, errMsg string, retryCount int) error {
	_, err := db.conn.Exec(
		`UPDATE content_units
		SET status = ?, error_message = ?, retry_count = ?, updated_at = ?
		WHERE id = ?`,
		StatusFailed, errMsg, retryCount, NowUTC(), unitID,
	)
	return err
}

// SetUnitStatus sets a unit's status without touching anything else.
func (db *DB) SetUnitStatus(unitID int64, status string) error {
	_, err := db.conn.Exec(
		"UPDATE content_units SET status = ?, updated_at = ? WHERE id = ?",
		status, NowUTC(), unitID,
	)
	return err
}

// ListUnits returns units, optionally filtered by status, newest first.
func (db *DB) ListUnits(status *string, limit int) ([]ContentUnit, error) {
	query := unitSelect
	var args []any
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, *status)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []ContentUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *u)
	}
	return units, rows.Err()
}

const unitSelect = `SELECT id, theme_id, verse_id, prayer_text, word_count, ai_model, status,
	audio_path, audio_voice_id, audio_duration_sec, video_path, video_duration_sec,
	attributions, error_message, retry_count, manual_retry_used, created_at, updated_at
	FROM content_units`

func scanUnit(row rowScanner) (*ContentUnit, error) {
	var u ContentUnit
	var attrJSON *string
	var manual int
	if err := row.Scan(&u.ID, &u.ThemeID, &u.VerseID, &u.PrayerText, &u.WordCount,
		&u.AIModel, &u.Status, &u.AudioPath, &u.AudioVoiceID, &u.AudioDuration,
		&u.VideoPath, &u.VideoDuration, &attrJSON, &u.ErrorMessage,
		&u.RetryCount, &manual, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.ManualRetryUsed = manual != 0
	if attrJSON != nil {
		if err := json.Unmarshal([]byte(*attrJSON), &u.Attributions); err != nil {
			u.Attributions = nil
		}
	}
	return &u, nil
}
