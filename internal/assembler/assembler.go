// Package assembler turns a generated content unit into a composed video:
// narration via TTS, stock footage, then ffmpeg composition. Collaborator
// failures are retried with linear backoff; exhaustion marks the unit
// failed. Missing footage is the one exception: the unit stays generated so
// a later run can try different queries.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/prayloop/prayloop/internal/database"
	"github.com/prayloop/prayloop/internal/footage"
	"github.com/prayloop/prayloop/internal/media"
	"github.com/prayloop/prayloop/internal/tts"
)

// ErrInsufficientFootage means no source returned enough usable clips, even
// with broadened queries. The unit is left in generated status.
var ErrInsufficientFootage = errors.New("insufficient stock footage for unit")

// Synthesizer renders narration audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outPath string) (*tts.Audio, error)
}

// Searcher finds and downloads stock clips.
type Searcher interface {
	Search(ctx context.Context, queries []string, maxResults int) ([]footage.Clip, error)
	Download(ctx context.Context, clips []footage.Clip, dir string) ([]string, error)
}

// Compositor renders the final video.
type Compositor interface {
	Compose(ctx context.Context, audioPath string, footagePaths []string, verseRef, verseText string, unitID int64, dir string) (*media.Video, error)
}

// Options carries retry and duration-advisory settings.
type Options struct {
	MaxRetries       int
	BackoffBase      time.Duration
	MinAudioSeconds  float64
	MaxAudioSeconds  float64
	MinClips         int
	MaxClips         int
	BroadenedQueries []string
	DataDir          string
}

type Assembler struct {
	db     *database.DB
	synth  Synthesizer
	search Searcher
	comp   Compositor
	opts   Options

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

func New(db *database.DB, synth Synthesizer, search Searcher, comp Compositor, opts Options) *Assembler {
	return &Assembler{db: db, synth: synth, search: search, comp: comp, opts: opts, sleep: time.Sleep}
}

// Compose runs the full media stage for a generated unit. On success the
// unit moves to composed with its media paths recorded. Transient failures
// are retried up to MaxRetries with backoff base*attempt; exhaustion marks
// the unit failed. ErrInsufficientFootage is returned without failing the
// unit.
func (a *Assembler) Compose(ctx context.Context, unitID int64) error {
	unit, err := a.db.GetUnit(unitID)
	if err != nil {
		return fmt.Errorf("loading unit %d: %w", unitID, err)
	}
	if unit == nil {
		return fmt.Errorf("unit %d not found", unitID)
	}
	if unit.Status != database.StatusGenerated {
		return fmt.Errorf("unit %d is %s, expected %s", unitID, unit.Status, database.StatusGenerated)
	}
	if unit.PrayerText == nil {
		return fmt.Errorf("unit %d has no prayer text", unitID)
	}

	theme, err := a.db.GetTheme(unit.ThemeID)
	if err != nil {
		return fmt.Errorf("loading theme: %w", err)
	}
	verse, err := a.db.GetVerse(unit.VerseID)
	if err != nil {
		return fmt.Errorf("loading verse: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= a.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := a.opts.BackoffBase * time.Duration(attempt)
			log.Printf("Retrying composition of unit %d in %s (attempt %d/%d)",
				unitID, backoff, attempt+1, a.opts.MaxRetries+1)
			a.sleep(backoff)
		}

		err := a.composeOnce(ctx, unit, theme, verse)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrInsufficientFootage) {
			// Not a transient fault: leave the unit generated and let a
			// later run try with fresh queries.
			log.Printf("Unit %d: %v", unitID, err)
			return err
		}
		lastErr = err
		log.Printf("Composition of unit %d failed: %v", unitID, err)
	}

	retries := a.opts.MaxRetries
	if dbErr := a.db.MarkUnitFailed(unitID, lastErr.Error(), retries); dbErr != nil {
		return fmt.Errorf("marking unit failed: %w (original: %v)", dbErr, lastErr)
	}
	return fmt.Errorf("composing unit %d after %d attempts: %w", unitID, retries+1, lastErr)
}

func (a *Assembler) composeOnce(ctx context.Context, unit *database.ContentUnit, theme *database.Theme, verse *database.Verse) error {
	audioPath := filepath.Join(a.opts.DataDir, "media", "audio", fmt.Sprintf("unit_%d.mp3", unit.ID))
	audio, err := a.synth.Synthesize(ctx, *unit.PrayerText, audioPath)
	if err != nil {
		return fmt.Errorf("synthesizing narration: %w", err)
	}

	// The word-count window should keep narration near the target length;
	// drift is worth a log line but not a failure.
	if audio.DurationSec < a.opts.MinAudioSeconds || audio.DurationSec > a.opts.MaxAudioSeconds {
		log.Printf("Unit %d narration is %.1fs, outside advisory range %.0f-%.0fs",
			unit.ID, audio.DurationSec, a.opts.MinAudioSeconds, a.opts.MaxAudioSeconds)
	}

	clips, err := a.findFootage(ctx, theme)
	if err != nil {
		return err
	}

	footageDir := filepath.Join(a.opts.DataDir, "media", "footage")
	paths, err := a.search.Download(ctx, clips, footageDir)
	if err != nil {
		return fmt.Errorf("downloading footage: %w", err)
	}

	attributions := make([]string, 0, len(clips))
	for i, clip := range clips {
		attributions = append(attributions, clip.Attribution)
		downloadPath := paths[i]
		if _, err := a.db.InsertFootageRecord(clip.Source, clip.ExternalID, clip.PageURL,
			&downloadPath, &clip.Attribution, &theme.ID); err != nil {
			return fmt.Errorf("recording footage: %w", err)
		}
	}

	videoDir := filepath.Join(a.opts.DataDir, "media", "videos")
	video, err := a.comp.Compose(ctx, audio.Path, paths, verse.Reference, verse.Text, unit.ID, videoDir)
	if err != nil {
		return fmt.Errorf("composing video: %w", err)
	}

	if err := a.db.MarkUnitComposed(unit.ID, audio.Path, audio.VoiceID, audio.DurationSec,
		video.Path, video.DurationSec, attributions); err != nil {
		return fmt.Errorf("marking unit composed: %w", err)
	}
	log.Printf("Unit %d composed: %s (%.1fs)", unit.ID, video.Path, video.DurationSec)
	return nil
}

// findFootage searches with the theme's own keywords first, then broadens.
func (a *Assembler) findFootage(ctx context.Context, theme *database.Theme) ([]footage.Clip, error) {
	queries := theme.Keywords
	if len(queries) == 0 {
		queries = a.opts.BroadenedQueries
	}

	clips, err := a.search.Search(ctx, queries, a.opts.MaxClips)
	if err != nil {
		return nil, fmt.Errorf("searching footage: %w", err)
	}
	if len(clips) >= a.opts.MinClips {
		return clips, nil
	}

	if len(a.opts.BroadenedQueries) > 0 {
		log.Printf("Only %d clip(s) for theme %q, broadening search", len(clips), theme.Slug)
		broadened, err := a.search.Search(ctx, a.opts.BroadenedQueries, a.opts.MaxClips)
		if err != nil {
			return nil, fmt.Errorf("broadened footage search: %w", err)
		}
		clips = mergeClips(clips, broadened, a.opts.MaxClips)
	}

	if len(clips) < a.opts.MinClips {
		return nil, fmt.Errorf("%w: found %d, need %d", ErrInsufficientFootage, len(clips), a.opts.MinClips)
	}
	return clips, nil
}

func mergeClips(a, b []footage.Clip, max int) []footage.Clip {
	seen := make(map[string]bool, len(a))
	out := append([]footage.Clip(nil), a...)
	for _, c := range a {
		seen[c.Source+"/"+c.ExternalID] = true
	}
	for _, c := range b {
		if len(out) >= max {
			break
		}
		key := c.Source + "/" + c.ExternalID
		if !seen[key] {
			seen[key] = true
			out = append(out, c)
		}
	}
	return out
}
