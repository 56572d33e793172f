// Package queue runs the publish queue: safety gating, due-entry
// processing, approvals, and the one-shot manual retry. Processing is
// deliberately serial and fail-stop: one publish failure ends the run so a
// systemic fault cannot burn through the whole queue.
package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/prayloop/prayloop/internal/database"
	"github.com/prayloop/prayloop/internal/policy"
	"github.com/prayloop/prayloop/internal/publisher"
)

// Outcome statuses reported by ProcessDue.
const (
	OutcomeBlocked   = "blocked"
	OutcomeEmpty     = "empty"
	OutcomePublished = "published"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeDryRun    = "dry_run"
)

// Outcome is the result of one processing decision.
type Outcome struct {
	EntryID   int64 // 0 for run-level outcomes (blocked/empty)
	UnitID    int64
	Status    string
	Reason    string
	PublishID string
}

// Publisher posts a composed video and returns the external publish id.
type Publisher interface {
	Publish(ctx context.Context, videoPath, verseRef, themeName string) (*publisher.Post, error)
}

// Settings are the safety knobs consulted on every run.
type Settings struct {
	MinInterval               time.Duration
	MaxPostsPerDay            int
	ApprovalThreshold         int
	MaxConsecutiveFailures    int
	AutoPublishAfterThreshold bool
}

type Manager struct {
	db       *database.DB
	pub      Publisher
	settings Settings

	// now is swapped out in tests.
	now func() time.Time
}

func NewManager(db *database.DB, pub Publisher, settings Settings) *Manager {
	return &Manager{db: db, pub: pub, settings: settings, now: time.Now}
}

// Enqueue moves a composed unit into the queue. A nil scheduledAt means
// "publish as soon as eligible".
func (m *Manager) Enqueue(unitID int64, scheduledAt *time.Time) (int64, error) {
	var at *string
	if scheduledAt != nil {
		s := database.FormatTime(*scheduledAt)
		at = &s
	}
	entryID, ok, err := m.db.EnqueueUnit(unitID, at)
	if err != nil {
		return 0, fmt.Errorf("enqueueing unit %d: %w", unitID, err)
	}
	if !ok {
		return 0, fmt.Errorf("unit %d cannot be enqueued: not in %s status", unitID, database.StatusComposed)
	}
	return entryID, nil
}

// Approve marks a queued entry approved for publication.
func (m *Manager) Approve(entryID int64) error {
	ok, err := m.db.ApproveEntry(entryID)
	if err != nil {
		return fmt.Errorf("approving entry %d: %w", entryID, err)
	}
	if !ok {
		return fmt.Errorf("entry %d cannot be approved: unit not in %s status", entryID, database.StatusQueued)
	}
	return nil
}

// RetryFailed re-queues a failed entry. Allowed exactly once per unit.
func (m *Manager) RetryFailed(entryID int64) error {
	ok, err := m.db.ManualRetryEntry(entryID)
	if err != nil {
		return fmt.Errorf("retrying entry %d: %w", entryID, err)
	}
	if !ok {
		return fmt.Errorf("entry %d cannot be retried: unit not failed, or manual retry already used", entryID)
	}
	return nil
}

// Unpause clears the auto-pause flag and failure streak. This is the only
// path out of auto-pause.
func (m *Manager) Unpause() error {
	if err := m.db.ClearAutoPause(); err != nil {
		return fmt.Errorf("clearing auto-pause: %w", err)
	}
	return nil
}

// ProcessDue publishes due entries serially. The global gate is evaluated
// once up front and again before every entry, since each publish moves
// last_publish_at and the daily count. A publish failure is fail-stop: the
// entry's unit is marked failed, the streak advances (auto-pausing at the
// limit), and the run ends.
func (m *Manager) ProcessDue(ctx context.Context, dryRun bool) ([]Outcome, error) {
	ok, reason, err := m.gate()
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Outcome{{Status: OutcomeBlocked, Reason: reason}}, nil
	}

	state, err := m.db.GetSafetyState()
	if err != nil {
		return nil, fmt.Errorf("loading safety state: %w", err)
	}
	includeQueued := m.settings.AutoPublishAfterThreshold &&
		state.ApprovedPostCount >= m.settings.ApprovalThreshold

	now := database.FormatTime(m.now())
	due, err := m.db.DueItems(now, includeQueued)
	if err != nil {
		return nil, fmt.Errorf("loading due entries: %w", err)
	}
	if len(due) == 0 {
		return []Outcome{{Status: OutcomeEmpty, Reason: "no due entries"}}, nil
	}

	var results []Outcome
	for i, item := range due {
		if i > 0 {
			// Publishing the previous entry changed the gate inputs.
			ok, reason, err := m.gate()
			if err != nil {
				return results, err
			}
			if !ok {
				results = append(results, Outcome{
					EntryID: item.Entry.ID, UnitID: item.Unit.ID,
					Status: OutcomeSkipped, Reason: reason,
				})
				break
			}
		}

		outcome, err := m.publishOne(ctx, item, dryRun)
		if err != nil {
			return results, err
		}
		results = append(results, *outcome)
		if outcome.Status == OutcomeFailed {
			break
		}
	}
	return results, nil
}

// gate evaluates the global publish rules against current storage state.
func (m *Manager) gate() (bool, string, error) {
	state, err := m.db.GetSafetyState()
	if err != nil {
		return false, "", fmt.Errorf("loading safety state: %w", err)
	}

	now := m.now().UTC()
	publishedToday, err := m.db.CountPublishedOn(now.Format("2006-01-02"))
	if err != nil {
		return false, "", fmt.Errorf("counting today's posts: %w", err)
	}

	ok, reason := policy.CanPublishNow(policy.PublishGate{
		AutoPaused:     state.AutoPaused,
		LastPublishAt:  database.ParseTime(state.LastPublishAt),
		PublishedToday: publishedToday,
	}, now, m.settings.MinInterval, m.settings.MaxPostsPerDay)
	return ok, reason, nil
}

func (m *Manager) publishOne(ctx context.Context, item database.QueueItem, dryRun bool) (*Outcome, error) {
	unit := item.Unit
	if unit.VideoPath == nil {
		return nil, fmt.Errorf("unit %d has no video path", unit.ID)
	}

	theme, err := m.db.GetTheme(unit.ThemeID)
	if err != nil {
		return nil, fmt.Errorf("loading theme: %w", err)
	}
	verse, err := m.db.GetVerse(unit.VerseID)
	if err != nil {
		return nil, fmt.Errorf("loading verse: %w", err)
	}

	if dryRun {
		return &Outcome{
			EntryID: item.Entry.ID, UnitID: unit.ID,
			Status: OutcomeDryRun,
			Reason: fmt.Sprintf("would publish %s (%s)", *unit.VideoPath, verse.Reference),
		}, nil
	}

	post, err := m.pub.Publish(ctx, *unit.VideoPath, verse.Reference, theme.Name)
	if err != nil {
		errMsg := err.Error()
		if len(errMsg) > 500 {
			errMsg = errMsg[:500]
		}
		streak, paused, dbErr := m.db.RecordPublishFailure(
			item.Entry.ID, unit.ID, errMsg, m.settings.MaxConsecutiveFailures)
		if dbErr != nil {
			return nil, fmt.Errorf("recording publish failure: %w", dbErr)
		}
		if paused {
			log.Printf("Auto-pause engaged after %d consecutive failures", streak)
		}
		reason := errMsg
		if publisher.IsAuth(err) {
			reason = "credential problem, retries will not help: " + errMsg
		}
		return &Outcome{
			EntryID: item.Entry.ID, UnitID: unit.ID,
			Status: OutcomeFailed, Reason: reason,
		}, nil
	}

	now := database.FormatTime(m.now())
	if err := m.db.RecordPublishSuccess(item.Entry.ID, unit.ID, now, post.PublishID); err != nil {
		return nil, fmt.Errorf("recording publish success: %w", err)
	}
	log.Printf("Published unit %d as %s", unit.ID, post.PublishID)
	return &Outcome{
		EntryID: item.Entry.ID, UnitID: unit.ID,
		Status: OutcomePublished, PublishID: post.PublishID,
	}, nil
}

// List returns all queue items for display.
func (m *Manager) List() ([]database.QueueItem, error) {
	return m.db.ListQueueItems()
}

// Config returns the safety knobs the manager was built with, for
// read-only display.
func (m *Manager) Config() Settings {
	return m.settings
}

// State returns the current safety record.
func (m *Manager) State() (*database.SafetyState, error) {
	return m.db.GetSafetyState()
}
