package database

// UpsertPlatformPost inserts or refreshes an imported analytics row.
func (db *DB) UpsertPlatformPost(p PlatformPost, rawJSON string) error {
	_, err := db.conn.Exec(
		`INSERT INTO platform_posts
			(post_id, created_at, views, likes, comments, shares, favorites, caption, url, raw_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(post_id) DO UPDATE SET
			created_at = excluded.created_at,
			views      = excluded.views,
			likes      = excluded.likes,
			comments   = excluded.comments,
			shares     = excluded.shares,
			favorites  = excluded.favorites,
			caption    = excluded.caption,
			url        = excluded.url,
			raw_json   = excluded.raw_json,
			updated_at = excluded.updated_at`,
		p.PostID, p.CreatedAt, p.Views, p.Likes, p.Comments, p.Shares, p.Favorites,
		p.Caption, p.URL, rawJSON, NowUTC(),
	)
	return err
}

// GetPlatformPosts returns imported posts, newest first.
func (db *DB) GetPlatformPosts(limit int) ([]PlatformPost, error) {
	rows, err := db.conn.Query(
		`SELECT post_id, created_at, views, likes, comments, shares, favorites, caption, url, updated_at
		FROM platform_posts ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []PlatformPost
	for rows.Next() {
		var p PlatformPost
		if err := rows.Scan(&p.PostID, &p.CreatedAt, &p.Views, &p.Likes, &p.Comments,
			&p.Shares, &p.Favorites, &p.Caption, &p.URL, &p.UpdatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{UnitsByStatus: make(map[string]int)}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM themes", &s.Themes},
		{"SELECT COUNT(*) FROM themes WHERE is_active = 1", &s.ActiveThemes},
		{"SELECT COUNT(*) FROM verses", &s.Verses},
		{"SELECT COUNT(*) FROM content_units", &s.Units},
		{"SELECT COUNT(*) FROM publish_queue", &s.QueueEntries},
		{"SELECT COUNT(*) FROM publish_queue WHERE published_at IS NOT NULL", &s.Published},
		{"SELECT COUNT(*) FROM platform_posts", &s.PlatformPosts},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	rows, err := db.conn.Query("SELECT status, COUNT(*) FROM content_units GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		s.UnitsByStatus[status] = count
	}
	return s, rows.Err()
}
