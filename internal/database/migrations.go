package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS themes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    slug TEXT UNIQUE NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    keywords TEXT,
    tone TEXT NOT NULL DEFAULT 'comforting',
    hook TEXT,
    is_active INTEGER DEFAULT 1,
    last_used_at TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS verses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    reference TEXT NOT NULL,
    text TEXT NOT NULL,
    translation TEXT NOT NULL DEFAULT 'KJV',
    theme_id INTEGER NOT NULL REFERENCES themes(id),
    used_count INTEGER DEFAULT 0,
    last_used_at TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    UNIQUE(reference, translation)
);

CREATE TABLE IF NOT EXISTS content_units (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    theme_id INTEGER NOT NULL REFERENCES themes(id),
    verse_id INTEGER NOT NULL REFERENCES verses(id),
    prayer_text TEXT,
    word_count INTEGER DEFAULT 0,
    ai_model TEXT,
    status TEXT NOT NULL DEFAULT 'draft'
        CHECK(status IN ('draft','generated','composed','queued','approved','published','failed')),
    audio_path TEXT,
    audio_voice_id TEXT,
    audio_duration_sec REAL DEFAULT 0,
    video_path TEXT,
    video_duration_sec REAL DEFAULT 0,
    attributions TEXT,
    error_message TEXT,
    retry_count INTEGER DEFAULT 0,
    manual_retry_used INTEGER DEFAULT 0,
    created_at TEXT,
    updated_at TEXT
);

CREATE TABLE IF NOT EXISTS publish_queue (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    unit_id INTEGER UNIQUE NOT NULL REFERENCES content_units(id),
    scheduled_at TEXT,
    published_at TEXT,
    external_post_id TEXT,
    created_at TEXT,
    updated_at TEXT
);

CREATE TABLE IF NOT EXISTS safety_state (
    id INTEGER PRIMARY KEY CHECK(id = 1),
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    auto_paused INTEGER NOT NULL DEFAULT 0,
    approved_post_count INTEGER NOT NULL DEFAULT 0,
    last_publish_at TEXT,
    updated_at TEXT
);
INSERT OR IGNORE INTO safety_state (id) VALUES (1);

CREATE TABLE IF NOT EXISTS stock_footage (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    external_id TEXT NOT NULL,
    url TEXT NOT NULL,
    download_path TEXT,
    attribution TEXT,
    theme_id INTEGER REFERENCES themes(id),
    created_at TEXT DEFAULT (datetime('now')),
    UNIQUE(source, external_id)
);

CREATE TABLE IF NOT EXISTS platform_posts (
    post_id TEXT PRIMARY KEY,
    created_at TEXT,
    views INTEGER,
    likes INTEGER,
    comments INTEGER,
    shares INTEGER,
    favorites INTEGER,
    caption TEXT,
    url TEXT,
    raw_json TEXT,
    updated_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_verses_theme ON verses(theme_id);
CREATE INDEX IF NOT EXISTS idx_units_status ON content_units(status);
CREATE INDEX IF NOT EXISTS idx_queue_scheduled ON publish_queue(scheduled_at);
CREATE INDEX IF NOT EXISTS idx_platform_posts_created ON platform_posts(created_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
