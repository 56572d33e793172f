// Package pipeline wires the content stages together: theme/verse
// selection and prayer generation, audio/footage/video assembly, and
// handoff to the publish queue. Each stage can also be invoked on its own
// from the CLI; Run chains them for one unit end to end.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/prayloop/prayloop/internal/assembler"
	"github.com/prayloop/prayloop/internal/config"
	"github.com/prayloop/prayloop/internal/database"
	"github.com/prayloop/prayloop/internal/footage"
	"github.com/prayloop/prayloop/internal/llm"
	"github.com/prayloop/prayloop/internal/media"
	"github.com/prayloop/prayloop/internal/policy"
	"github.com/prayloop/prayloop/internal/prayer"
	"github.com/prayloop/prayloop/internal/publisher"
	"github.com/prayloop/prayloop/internal/queue"
	"github.com/prayloop/prayloop/internal/selector"
	"github.com/prayloop/prayloop/internal/tts"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	UnitID int64
	Steps  []StepResult
}

// Pipeline orchestrates the generate → compose → enqueue stages.
type Pipeline struct {
	cfg *config.Config
	db  *database.DB
	sel *selector.Selector
	gen *prayer.Generator
	asm *assembler.Assembler
	mgr *queue.Manager
}

// New builds the full stage wiring from config. LLM and publishing
// credentials may be absent; generation then falls back to the template and
// publishing fails with a credential error at publish time, not here.
func New(cfg *config.Config, db *database.DB) *Pipeline {
	provider := llm.CreateProvider(
		cfg.LLM.Provider,
		cfg.LLM.Model,
		cfg.LLM.OllamaURL,
		cfg.LLM.OpenAIModel,
		cfg.LLM.APIKeyEnv,
	)

	extra := make([]policy.BlockedPhrase, 0, len(cfg.Policy.BlockedPhrases))
	for _, p := range cfg.Policy.BlockedPhrases {
		extra = append(extra, policy.BlockedPhrase{Phrase: p.Phrase, Kind: p.Kind})
	}
	checker := policy.NewChecker(extra)

	gen := prayer.NewGenerator(provider, checker, prayer.Options{
		MinWords:   cfg.Prayer.MinWords,
		MaxWords:   cfg.Prayer.MaxWords,
		Target:     cfg.Prayer.TargetWords,
		MaxRetries: cfg.Prayer.MaxRetries,
		MaxTokens:  cfg.LLM.MaxTokens,
	})

	comp := media.NewCompositor(
		cfg.Compositor.Width,
		cfg.Compositor.Height,
		cfg.Compositor.FontFamily,
		cfg.Compositor.VerseFontSize,
		time.Duration(cfg.Compositor.TimeoutSeconds)*time.Second,
	)
	synth := tts.NewClient(
		cfg.Voice.APIKeyEnv,
		cfg.Voice.VoiceID,
		cfg.Voice.ModelID,
		cfg.Voice.Speed,
		comp.ProbeDuration,
	)
	search := footage.NewSearcher(
		cfg.Footage.PexelsKeyEnv,
		cfg.Footage.PixabayKeyEnv,
		cfg.Footage.PrimarySource,
		cfg.Footage.Orientation,
	)
	asm := assembler.New(db, synth, search, comp, assembler.Options{
		MaxRetries:       cfg.Assembler.MaxRetries,
		BackoffBase:      time.Duration(cfg.Assembler.BackoffBaseSeconds) * time.Second,
		MinAudioSeconds:  cfg.Assembler.MinAudioSeconds,
		MaxAudioSeconds:  cfg.Assembler.MaxAudioSeconds,
		MinClips:         cfg.Footage.MinClips,
		MaxClips:         cfg.Footage.MaxClips,
		BroadenedQueries: cfg.Footage.BroadenedQueries,
		DataDir:          cfg.Output.DataDir,
	})

	pub := publisher.NewClient(
		cfg.Publishing.TokenEnv,
		cfg.Publishing.PrivacyLevel,
		cfg.Publishing.Hashtags,
		cfg.Publishing.MaxHashtags,
	)
	mgr := queue.NewManager(db, pub, queue.Settings{
		MinInterval:               time.Duration(cfg.Publishing.MinHoursBetweenPosts) * time.Hour,
		MaxPostsPerDay:            cfg.Publishing.MaxPostsPerDay,
		ApprovalThreshold:         cfg.Publishing.ApprovalThreshold,
		MaxConsecutiveFailures:    cfg.Publishing.MaxConsecutiveFailures,
		AutoPublishAfterThreshold: cfg.Publishing.AutoPublishAfterThreshold,
	})

	return &Pipeline{
		cfg: cfg,
		db:  db,
		sel: selector.New(db),
		gen: gen,
		asm: asm,
		mgr: mgr,
	}
}

// Queue exposes the publish-queue manager for the queue-facing CLI
// commands and the dashboard.
func (p *Pipeline) Queue() *queue.Manager { return p.mgr }

// Run executes the full pipeline for one new unit: generate, compose,
// enqueue. A step error stops the run; the partial result reports how far
// it got.
func (p *Pipeline) Run(ctx context.Context) *Result {
	r := &Result{}

	step, unitID := p.runGenerate(ctx)
	r.Steps = append(r.Steps, step)
	r.UnitID = unitID
	if step.Err != nil {
		return r
	}

	step = p.runCompose(ctx, unitID)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	step = p.runEnqueue(unitID)
	r.Steps = append(r.Steps, step)
	return r
}

// DryRun reports what a run would do without calling any provider.
func (p *Pipeline) DryRun() *Result {
	r := &Result{}

	sel, err := p.sel.Peek()
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Generate", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name: "Generate",
		Summary: fmt.Sprintf("[dry-run] would generate a %s prayer for %s",
			sel.Theme.Name, sel.Verse.Reference),
	})

	generated := database.StatusGenerated
	pending, _ := p.db.ListUnits(&generated, 50)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Compose",
		Summary: fmt.Sprintf("[dry-run] %d generated units awaiting composition", len(pending)),
	})

	composed := database.StatusComposed
	ready, _ := p.db.ListUnits(&composed, 50)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Enqueue",
		Summary: fmt.Sprintf("[dry-run] %d composed units ready to enqueue", len(ready)),
	})
	return r
}

// Generate selects the next theme+verse pair, creates a unit, and attaches
// generated (or fallback) prayer text. Returns the new unit's id.
func (p *Pipeline) Generate(ctx context.Context) (int64, error) {
	sel, err := p.sel.SelectNext()
	if err != nil {
		return 0, err
	}

	if err := p.verifyVerse(sel.Verse); err != nil {
		return 0, err
	}

	unitID, err := p.db.CreateUnit(sel.Theme.ID, sel.Verse.ID)
	if err != nil {
		return 0, fmt.Errorf("creating unit: %w", err)
	}

	res, err := p.gen.Generate(ctx, sel.Theme, sel.Verse)
	if err != nil {
		if dbErr := p.db.MarkUnitFailed(unitID, err.Error(), 0); dbErr != nil {
			log.Printf("Failed to mark unit %d failed: %v", unitID, dbErr)
		}
		return unitID, fmt.Errorf("generating prayer: %w", err)
	}

	var model *string
	if !res.Fallback {
		model = &res.Model
	}
	ok, err := p.db.SetUnitPrayer(unitID, res.Text, res.WordCount, model)
	if err != nil {
		return unitID, fmt.Errorf("storing prayer: %w", err)
	}
	if !ok {
		return unitID, fmt.Errorf("unit %d left %s status before prayer was stored", unitID, database.StatusDraft)
	}
	if res.Fallback {
		log.Printf("Unit %d uses the template fallback prayer", unitID)
	}
	return unitID, nil
}

// Compose runs the assembler for a generated unit.
func (p *Pipeline) Compose(ctx context.Context, unitID int64) error {
	return p.asm.Compose(ctx, unitID)
}

// Enqueue moves a composed unit into the publish queue.
func (p *Pipeline) Enqueue(unitID int64, scheduledAt *time.Time) (int64, error) {
	return p.mgr.Enqueue(unitID, scheduledAt)
}

// verifyVerse checks the selected verse byte-for-byte against the stored
// canonical text for its reference and translation. A mismatch means the
// verse row was edited or corrupted; the unit is never created.
func (p *Pipeline) verifyVerse(verse *database.Verse) error {
	canonical, err := p.db.GetCanonicalVerse(verse.Reference, verse.Translation)
	if err != nil {
		return fmt.Errorf("loading canonical verse: %w", err)
	}
	if canonical == nil {
		return fmt.Errorf("no canonical text for %s (%s)", verse.Reference, verse.Translation)
	}
	if !policy.VerifyVerseAccuracy(verse.Text, canonical.Text) {
		return fmt.Errorf("verse text for %s does not match canonical %s text", verse.Reference, verse.Translation)
	}
	return nil
}

func (p *Pipeline) runGenerate(ctx context.Context) (StepResult, int64) {
	log.Println("Step 1/3: Generating prayer...")
	unitID, err := p.Generate(ctx)
	if err != nil {
		return StepResult{Name: "Generate", Err: err}, unitID
	}
	unit, err := p.db.GetUnit(unitID)
	if err != nil {
		return StepResult{Name: "Generate", Err: err}, unitID
	}
	summary := fmt.Sprintf("Created unit %d (%d words)", unitID, unit.WordCount)
	if unit.AIModel == nil {
		summary += " using the template fallback"
	}
	return StepResult{Name: "Generate", Summary: summary}, unitID
}

func (p *Pipeline) runCompose(ctx context.Context, unitID int64) StepResult {
	log.Println("Step 2/3: Composing video...")
	if err := p.asm.Compose(ctx, unitID); err != nil {
		return StepResult{Name: "Compose", Err: err}
	}
	unit, err := p.db.GetUnit(unitID)
	if err != nil {
		return StepResult{Name: "Compose", Err: err}
	}
	return StepResult{
		Name:    "Compose",
		Summary: fmt.Sprintf("Composed %.0fs video for unit %d", unit.VideoDuration, unitID),
	}
}

func (p *Pipeline) runEnqueue(unitID int64) StepResult {
	log.Println("Step 3/3: Enqueueing for publication...")
	entryID, err := p.mgr.Enqueue(unitID, nil)
	if err != nil {
		return StepResult{Name: "Enqueue", Err: err}
	}
	return StepResult{
		Name:    "Enqueue",
		Summary: fmt.Sprintf("Unit %d queued as entry %d, awaiting approval", unitID, entryID),
	}
}
