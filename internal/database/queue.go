package database

import (
	"database/sql"
	"fmt"
)

// EnqueueUnit moves a composed unit into the publish queue. The status check
// and entry insert run in one transaction so a concurrent caller cannot
// observe a stale status. Returns (entryID, true) on success and (0, false)
// when the unit was not in composed status.
func (db *DB) EnqueueUnit(unitID int64, scheduledAt *string) (int64, bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	now := NowUTC()
	result, err := tx.Exec(
		"UPDATE content_units SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		StatusQueued, now, unitID, StatusComposed,
	)
	if err != nil {
		return 0, false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}

	res, err := tx.Exec(
		`INSERT INTO publish_queue (unit_id, scheduled_at, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		unitID, scheduledAt, now, now,
	)
	if err != nil {
		return 0, false, fmt.Errorf("inserting queue entry: %w", err)
	}
	entryID, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return entryID, true, tx.Commit()
}

// ApproveEntry marks a queued entry's unit as approved and bumps the
// approved-post counter in the same transaction. Returns false when the unit
// was not in queued status.
func (db *DB) ApproveEntry(entryID int64) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	now := NowUTC()
	result, err := tx.Exec(
		`UPDATE content_units SET status = ?, updated_at = ?
		WHERE status = ? AND id = (SELECT unit_id FROM publish_queue WHERE id = ?)`,
		StatusApproved, now, StatusQueued, entryID,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.Exec(
		"UPDATE safety_state SET approved_post_count = approved_post_count + 1, updated_at = ? WHERE id = 1",
		now,
	); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// ManualRetryEntry moves a failed unit back to queued. Permitted exactly
// once per unit; the automatic retry_count is left alone. Returns false when
// the unit is not failed or has already used its manual retry.
func (db *DB) ManualRetryEntry(entryID int64) (bool, error) {
	result, err := db.conn.Exec(
		`UPDATE content_units
		SET status = ?, error_message = NULL, manual_retry_used = 1, updated_at = ?
		WHERE status = ? AND manual_retry_used = 0
		  AND id = (SELECT unit_id FROM publish_queue WHERE id = ?)`,
		StatusQueued, NowUTC(), StatusFailed, entryID,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// RecordPublishSuccess applies the full success transition in one
// transaction: entry gets published_at and the external post id, the unit
// becomes published, and the safety failure streak resets.
func (db *DB) RecordPublishSuccess(entryID, unitID int64, now, externalPostID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE publish_queue SET published_at = ?, external_post_id = ?, updated_at = ? WHERE id = ?`,
		now, externalPostID, now, entryID,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`UPDATE content_units SET status = ?, retry_count = 0, error_message = NULL, updated_at = ? WHERE id = ?`,
		StatusPublished, now, unitID,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`UPDATE safety_state SET consecutive_failures = 0, last_publish_at = ?, updated_at = ? WHERE id = 1`,
		now, now,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordPublishFailure applies the failure transition in one transaction:
// the unit becomes failed with the captured message, the failure streak is
// incremented, and auto-pause engages at maxConsecutive. The queue entry is
// kept for manual retry. Returns the new streak and pause flag.
func (db *DB) RecordPublishFailure(entryID, unitID int64, errMsg string, maxConsecutive int) (int, bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	now := NowUTC()
	if _, err := tx.Exec(
		`UPDATE content_units SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, errMsg, now, unitID,
	); err != nil {
		return 0, false, err
	}

	if _, err := tx.Exec(
		`UPDATE safety_state SET consecutive_failures = consecutive_failures + 1, updated_at = ? WHERE id = 1`,
		now,
	); err != nil {
		return 0, false, err
	}

	var failures int
	if err := tx.QueryRow("SELECT consecutive_failures FROM safety_state WHERE id = 1").Scan(&failures); err != nil {
		return 0, false, err
	}

	paused := failures >= maxConsecutive
	if paused {
		if _, err := tx.Exec(
			"UPDATE safety_state SET auto_paused = 1, updated_at = ? WHERE id = 1", now,
		); err != nil {
			return 0, false, err
		}
	}
	return failures, paused, tx.Commit()
}

// GetSafetyState returns the persisted safety record.
func (db *DB) GetSafetyState() (*SafetyState, error) {
	row := db.conn.QueryRow(
		`SELECT consecutive_failures, auto_paused, approved_post_count, last_publish_at, updated_at
		FROM safety_state WHERE id = 1`,
	)
	var s SafetyState
	var paused int
	if err := row.Scan(&s.ConsecutiveFailures, &paused, &s.ApprovedPostCount, &s.LastPublishAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.AutoPaused = paused != 0
	return &s, nil
}

// ClearAutoPause is the explicit human unpause: resets the failure streak
// and clears the pause flag. Auto-pause never clears itself.
func (db *DB) ClearAutoPause() error {
	_, err := db.conn.Exec(
		"UPDATE safety_state SET consecutive_failures = 0, auto_paused = 0, updated_at = ? WHERE id = 1",
		NowUTC(),
	)
	return err
}

// CountPublishedOn counts entries published on a calendar day (YYYY-MM-DD).
func (db *DB) CountPublishedOn(day string) (int, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM publish_queue WHERE published_at LIKE ?", day+"%",
	).Scan(&count)
	return count, err
}

// GetQueueEntry returns a queue entry by ID, or nil if not found.
func (db *DB) GetQueueEntry(entryID int64) (*QueueEntry, error) {
	row := db.conn.QueryRow(queueSelect+" WHERE id = ?", entryID)
	e, err := scanQueueEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetQueueEntryForUnit returns the queue entry wrapping a unit, or nil.
func (db *DB) GetQueueEntryForUnit(unitID int64) (*QueueEntry, error) {
	row := db.conn.QueryRow(queueSelect+" WHERE unit_id = ?", unitID)
	e, err := scanQueueEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// DueItems returns queue items eligible for publication at now: approved
// units (plus queued ones when includeQueued is set) whose scheduled_at is
// unset or past. Unscheduled entries sort first ("earliest eligible").
func (db *DB) DueItems(now string, includeQueued bool) ([]QueueItem, error) {
	statuses := []any{StatusApproved}
	statusClause := "u.status = ?"
	if includeQueued {
		statusClause = "u.status IN (?, ?)"
		statuses = append(statuses, StatusQueued)
	}

	query := fmt.Sprintf(`SELECT %s, %s
		FROM publish_queue q JOIN content_units u ON u.id = q.unit_id
		WHERE %s AND (q.scheduled_at IS NULL OR q.scheduled_at <= ?)
		ORDER BY q.scheduled_at IS NOT NULL, q.scheduled_at ASC, q.id ASC`,
		queueColumns("q"), unitColumns("u"), statusClause)
	args := append(statuses, now)

	return db.queryQueueItems(query, args...)
}

// ListQueueItems returns all queue items for display, unscheduled first.
func (db *DB) ListQueueItems() ([]QueueItem, error) {
	query := fmt.Sprintf(`SELECT %s, %s
		FROM publish_queue q JOIN content_units u ON u.id = q.unit_id
		ORDER BY q.scheduled_at IS NOT NULL, q.scheduled_at ASC, q.id ASC`,
		queueColumns("q"), unitColumns("u"))
	return db.queryQueueItems(query)
}

const queueSelect = `SELECT id, unit_id, scheduled_at, published_at, external_post_id, created_at, updated_at FROM publish_queue`

func queueColumns(alias string) string {
	return fmt.Sprintf(`%[1]s.id, %[1]s.unit_id, %[1]s.scheduled_at, %[1]s.published_at,
		%[1]s.external_post_id, %[1]s.created_at, %[1]s.updated_at`, alias)
}

func unitColumns(alias string) string {
	return fmt.Sprintf(`%[1]s.id, %[1]s.theme_id, %[1]s.verse_id, %[1]s.prayer_text,
		%[1]s.word_count, %[1]s.ai_model, %[1]s.status, %[1]s.audio_path, %[1]s.audio_voice_id,
		%[1]s.audio_duration_sec, %[1]s.video_path, %[1]s.video_duration_sec, %[1]s.attributions,
		%[1]s.error_message, %[1]s.retry_count, %[1]s.manual_retry_used, %[1]s.created_at, %[1]s.updated_at`, alias)
}

func scanQueueEntry(row rowScanner) (*QueueEntry, error) {
	var e QueueEntry
	if err := row.Scan(&e.ID, &e.UnitID, &e.ScheduledAt, &e.PublishedAt,
		&e.ExternalPostID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (db *DB) queryQueueItems(query string, args ...any) ([]QueueItem, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []QueueItem
	for rows.Next() {
		var item QueueItem
		var attrJSON *string
		var manual int
		e := &item.Entry
		u := &item.Unit
		if err := rows.Scan(
			&e.ID, &e.UnitID, &e.ScheduledAt, &e.PublishedAt, &e.ExternalPostID, &e.CreatedAt, &e.UpdatedAt,
			&u.ID, &u.ThemeID, &u.VerseID, &u.PrayerText, &u.WordCount, &u.AIModel, &u.Status,
			&u.AudioPath, &u.AudioVoiceID, &u.AudioDuration, &u.VideoPath, &u.VideoDuration,
			&attrJSON, &u.ErrorMessage, &u.RetryCount, &manual, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		u.ManualRetryUsed = manual != 0
		items = append(items, item)
	}
	return items, rows.Err()
}
