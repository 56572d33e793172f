package database

// Content unit lifecycle statuses. A unit moves strictly forward through
// draft -> generated -> composed -> queued -> approved -> published, with
// failed reachable from any non-terminal status.
const (
	StatusDraft     = "draft"
	StatusGenerated = "generated"
	StatusComposed  = "composed"
	StatusQueued    = "queued"
	StatusApproved  = "approved"
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// Theme is a content category with a tone and hook question.
type Theme struct {
	ID          int64
	Slug        string
	Name        string
	Description *string
	Keywords    []string
	Tone        string
	Hook        *string
	IsActive    bool
	LastUsedAt  *string
	CreatedAt   *string
}

// Verse is a Bible reference with verbatim text in a specific translation.
// The verses table is the canonical source; stored text is never edited.
type Verse struct {
	ID          int64
	Reference   string
	Text        string
	Translation string
	ThemeID     int64
	UsedCount   int
	LastUsedAt  *string
	CreatedAt   *string
}

// ContentUnit is one theme+verse+prayer+media bundle moving through the
// pipeline.
type ContentUnit struct {
	ID              int64
	ThemeID         int64
	VerseID         int64
	PrayerText      *string
	WordCount       int
	AIModel         *string
	Status          string
	AudioPath       *string
	AudioVoiceID    *string
	AudioDuration   float64
	VideoPath       *string
	VideoDuration   float64
	Attributions    []string
	ErrorMessage    *string
	RetryCount      int
	ManualRetryUsed bool
	CreatedAt       *string
	UpdatedAt       *string
}

// QueueEntry wraps a content unit with scheduling metadata. The lifecycle
// status lives on the unit; the entry only carries schedule and publish facts.
type QueueEntry struct {
	ID             int64
	UnitID         int64
	ScheduledAt    *string // nil means "as soon as eligible"
	PublishedAt    *string
	ExternalPostID *string
	CreatedAt      *string
	UpdatedAt      *string
}

// QueueItem joins a queue entry with its content unit for processing/display.
type QueueItem struct {
	Entry QueueEntry
	Unit  ContentUnit
}

// SafetyState is the single persisted safety record consulted before any
// publish attempt.
type SafetyState struct {
	ConsecutiveFailures int
	AutoPaused          bool
	ApprovedPostCount   int
	LastPublishAt       *string
	UpdatedAt           *string
}

// FootageRecord is a cached stock clip with its license attribution.
type FootageRecord struct {
	ID           int64
	Source       string
	ExternalID   string
	URL          string
	DownloadPath *string
	Attribution  *string
	ThemeID      *int64
	CreatedAt    *string
}

// PlatformPost is an imported analytics row for a published post.
type PlatformPost struct {
	PostID    string
	CreatedAt *string
	Views     *int
	Likes     *int
	Comments  *int
	Shares    *int
	Favorites *int
	Caption   *string
	URL       *string
	UpdatedAt *string
}

// Stats contains aggregate database statistics for the status command.
type Stats struct {
	Themes        int
	ActiveThemes  int
	Verses        int
	Units         int
	UnitsByStatus map[string]int
	QueueEntries  int
	Published     int
	PlatformPosts int
}
