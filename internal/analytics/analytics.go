// Package analytics imports platform CSV exports into storage. Export
// formats vary by tool, so each field is resolved through an ordered alias
// list over normalized column names rather than a fixed header schema.
package analytics

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prayloop/prayloop/internal/database"
)

// Ordered column aliases per field. First non-empty match wins.
var (
	postIDKeys    = []string{"post_id", "id", "video_id", "item_id", "tiktok_id"}
	createdAtKeys = []string{"create_time", "created_at", "created", "posted_at", "date", "timestamp"}
	viewsKeys     = []string{"views", "view_count", "play_count", "video_views", "plays"}
	likesKeys     = []string{"likes", "like_count", "digg_count", "hearts"}
	commentsKeys  = []string{"comments", "comment_count"}
	sharesKeys    = []string{"shares", "share_count"}
	favoritesKeys = []string{"favorites", "favorite_count"}
	captionKeys   = []string{"caption", "description", "text"}
	urlKeys       = []string{"url", "share_url", "link"}
)

// timestamp layouts tried in order for non-numeric created_at values.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
}

// ImportResult summarizes one CSV import.
type ImportResult struct {
	Imported int
	Skipped  int
}

// PostSummary is one imported post with derived engagement numbers.
type PostSummary struct {
	Post           database.PlatformPost
	Views          int
	Engagement     int // likes + comments + shares
	EngagementRate float64
}

// Report is a performance summary over the imported posts.
type Report struct {
	TotalPosts int
	Top        []PostSummary // by views, descending
}

// Importer upserts platform analytics rows keyed on post id.
type Importer struct {
	db *database.DB
}

func NewImporter(db *database.DB) *Importer {
	return &Importer{db: db}
}

// ImportCSV reads a platform export and upserts every row that carries a
// post id. Rows without one are counted as skipped, not errors: exports
// often end with summary lines.
func (i *Importer) ImportCSV(path string) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	cols := make([]string, len(header))
	for n, c := range header {
		cols[n] = normalizeColumn(c)
	}

	result := &ImportResult{}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row: %w", err)
		}

		row := make(map[string]string, len(cols))
		for n, v := range record {
			if n < len(cols) {
				row[cols[n]] = v
			}
		}

		post, ok := rowToPost(row)
		if !ok {
			result.Skipped++
			continue
		}
		raw, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("encoding raw row: %w", err)
		}
		if err := i.db.UpsertPlatformPost(post, string(raw)); err != nil {
			return nil, fmt.Errorf("upserting post %s: %w", post.PostID, err)
		}
		result.Imported++
	}
	return result, nil
}

// Report summarizes the imported posts: totals plus the top posts by views
// with engagement (likes + comments + shares) and engagement rate.
func (i *Importer) Report(topN int) (*Report, error) {
	posts, err := i.db.GetPlatformPosts(1000)
	if err != nil {
		return nil, fmt.Errorf("loading posts: %w", err)
	}

	summaries := make([]PostSummary, 0, len(posts))
	for _, p := range posts {
		s := PostSummary{
			Post:       p,
			Views:      intOrZero(p.Views),
			Engagement: intOrZero(p.Likes) + intOrZero(p.Comments) + intOrZero(p.Shares),
		}
		if s.Views > 0 {
			s.EngagementRate = float64(s.Engagement) / float64(s.Views)
		}
		summaries = append(summaries, s)
	}
	sort.SliceStable(summaries, func(a, b int) bool {
		return summaries[a].Views > summaries[b].Views
	})

	if topN > len(summaries) {
		topN = len(summaries)
	}
	return &Report{TotalPosts: len(summaries), Top: summaries[:topN]}, nil
}

func intOrZero(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

// normalizeColumn lowercases a header cell and squashes spaces and dashes
// to underscores, so "Video ID" and "video-id" both resolve to "video_id".
func normalizeColumn(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	c = strings.ReplaceAll(c, " ", "_")
	return strings.ReplaceAll(c, "-", "_")
}

func rowToPost(row map[string]string) (database.PlatformPost, bool) {
	postID := pickFirst(row, postIDKeys)
	if postID == "" {
		return database.PlatformPost{}, false
	}

	return database.PlatformPost{
		PostID:    strings.TrimSpace(postID),
		CreatedAt: parseTimestamp(pickFirst(row, createdAtKeys)),
		Views:     toInt(pickFirst(row, viewsKeys)),
		Likes:     toInt(pickFirst(row, likesKeys)),
		Comments:  toInt(pickFirst(row, commentsKeys)),
		Shares:    toInt(pickFirst(row, sharesKeys)),
		Favorites: toInt(pickFirst(row, favoritesKeys)),
		Caption:   toStr(pickFirst(row, captionKeys)),
		URL:       toStr(pickFirst(row, urlKeys)),
	}, true
}

func pickFirst(row map[string]string, keys []string) string {
	for _, k := range keys {
		v := strings.TrimSpace(row[k])
		if v != "" && v != "nan" && v != "NaN" {
			return v
		}
	}
	return ""
}

func toStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// toInt parses integer-ish values: thousands separators are stripped and
// floats like "1200.0" are truncated. Unparseable values become nil.
func toInt(s string) *int {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	n := int(f)
	return &n
}

// parseTimestamp normalizes a created_at cell to RFC3339 UTC. Pure digits
// are unix timestamps, in milliseconds when too large for seconds; anything
// else is tried against the known layout list. Unparseable values become
// nil rather than failing the row.
func parseTimestamp(s string) *string {
	if s == "" {
		return nil
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		var t time.Time
		if n > 10_000_000_000 {
			t = time.UnixMilli(n)
		} else {
			t = time.Unix(n, 0)
		}
		out := database.FormatTime(t)
		return &out
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			out := database.FormatTime(t)
			return &out
		}
	}
	return nil
}
