package assembler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prayloop/prayloop/internal/database"
	"github.com/prayloop/prayloop/internal/footage"
	"github.com/prayloop/prayloop/internal/media"
	"github.com/prayloop/prayloop/internal/tts"
)

type fakeSynth struct {
	errs  []error
	calls int
}

func (f *fakeSynth) Synthesize(_ context.Context, _, outPath string) (*tts.Audio, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return &tts.Audio{Path: outPath, DurationSec: 62, VoiceID: "voice-1"}, nil
}

type fakeSearch struct {
	clips       []footage.Clip
	broadened   []footage.Clip
	searchCalls int
	downloadErr error
}

func (f *fakeSearch) Search(_ context.Context, queries []string, _ int) ([]footage.Clip, error) {
	f.searchCalls++
	if len(queries) > 0 && queries[0] == "calm nature" {
		return f.broadened, nil
	}
	return f.clips, nil
}

func (f *fakeSearch) Download(_ context.Context, clips []footage.Clip, dir string) ([]string, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	paths := make([]string, len(clips))
	for i, c := range clips {
		paths[i] = filepath.Join(dir, c.Source+"_"+c.ExternalID+".mp4")
	}
	return paths, nil
}

type fakeComp struct {
	err   error
	calls int
}

func (f *fakeComp) Compose(_ context.Context, _ string, _ []string, _, _ string, unitID int64, dir string) (*media.Video, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &media.Video{Path: filepath.Join(dir, "out.mp4"), DurationSec: 63}, nil
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func generatedUnit(t *testing.T, db *database.DB) int64 {
	t.Helper()
	themeID, err := db.InsertTheme("grief", "Grief", "comforting", nil, nil, []string{"candle light"})
	if err != nil {
		t.Fatalf("insert theme: %v", err)
	}
	verseID, err := db.InsertVerse("Psalm 23:4", "Yea, though I walk...", "KJV", themeID)
	if err != nil {
		t.Fatalf("insert verse: %v", err)
	}
	unitID, err := db.CreateUnit(themeID, verseID)
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	if _, err := db.SetUnitPrayer(unitID, "Heavenly Father, Amen.", 3, nil); err != nil {
		t.Fatalf("set prayer: %v", err)
	}
	return unitID
}

func twoClips() []footage.Clip {
	return []footage.Clip{
		{Source: "pexels", ExternalID: "101", Attribution: "Pexels - Jane"},
		{Source: "pexels", ExternalID: "102", Attribution: "Pexels - John"},
	}
}

func testAssembler(t *testing.T, db *database.DB, synth Synthesizer, search Searcher, comp Compositor) *Assembler {
	t.Helper()
	a := New(db, synth, search, comp, Options{
		MaxRetries:       2,
		BackoffBase:      time.Second,
		MinAudioSeconds:  55,
		MaxAudioSeconds:  75,
		MinClips:         2,
		MaxClips:         3,
		BroadenedQueries: []string{"calm nature"},
		DataDir:          t.TempDir(),
	})
	a.sleep = func(time.Duration) {}
	return a
}

func TestComposeSuccess(t *testing.T) {
	db := openTestDB(t)
	unitID := generatedUnit(t, db)

	a := testAssembler(t, db, &fakeSynth{}, &fakeSearch{clips: twoClips()}, &fakeComp{})
	if err := a.Compose(context.Background(), unitID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	unit, _ := db.GetUnit(unitID)
	if unit.Status != database.StatusComposed {
		t.Errorf("expected composed, got %s", unit.Status)
	}
	if unit.AudioDuration != 62 || unit.VideoDuration != 63 {
		t.Errorf("unexpected durations: %v %v", unit.AudioDuration, unit.VideoDuration)
	}
	if len(unit.Attributions) != 2 {
		t.Errorf("expected attributions recorded, got %v", unit.Attributions)
	}

	rec, err := db.GetFootageRecord("pexels", "101")
	if err != nil || rec == nil {
		t.Fatalf("expected footage record: %v", err)
	}
	if rec.Attribution == nil || *rec.Attribution != "Pexels - Jane" {
		t.Errorf("unexpected attribution: %v", rec.Attribution)
	}
}

func TestComposeRejectsWrongStatus(t *testing.T) {
	db := openTestDB(t)
	unitID := generatedUnit(t, db)
	db.SetUnitStatus(unitID, database.StatusComposed)

	a := testAssembler(t, db, &fakeSynth{}, &fakeSearch{clips: twoClips()}, &fakeComp{})
	if err := a.Compose(context.Background(), unitID); err == nil {
		t.Error("expected error for non-generated unit")
	}
}

func TestComposeRetriesTransientFailure(t *testing.T) {
	db := openTestDB(t)
	unitID := generatedUnit(t, db)

	synth := &fakeSynth{errs: []error{errors.New("tts timeout"), nil}}
	a := testAssembler(t, db, synth, &fakeSearch{clips: twoClips()}, &fakeComp{})

	if err := a.Compose(context.Background(), unitID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if synth.calls != 2 {
		t.Errorf("expected 2 synth calls, got %d", synth.calls)
	}
	unit, _ := db.GetUnit(unitID)
	if unit.Status != database.StatusComposed {
		t.Errorf("expected composed after retry, got %s", unit.Status)
	}
}

func TestComposeExhaustionMarksFailed(t *testing.T) {
	db := openTestDB(t)
	unitID := generatedUnit(t, db)

	synth := &fakeSynth{errs: []error{
		errors.New("tts down"), errors.New("tts down"), errors.New("tts down"),
	}}
	a := testAssembler(t, db, synth, &fakeSearch{clips: twoClips()}, &fakeComp{})

	err := a.Compose(context.Background(), unitID)
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if synth.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", synth.calls)
	}
	unit, _ := db.GetUnit(unitID)
	if unit.Status != database.StatusFailed {
		t.Errorf("expected failed, got %s", unit.Status)
	}
	if unit.ErrorMessage == nil {
		t.Error("expected error message captured")
	}
	if unit.RetryCount != 2 {
		t.Errorf("expected retry_count 2, got %d", unit.RetryCount)
	}
}

func TestComposeBroadensFootageSearch(t *testing.T) {
	db := openTestDB(t)
	unitID := generatedUnit(t, db)

	search := &fakeSearch{
		clips:     twoClips()[:1],
		broadened: []footage.Clip{{Source: "pixabay", ExternalID: "201", Attribution: "Pixabay - x"}},
	}
	a := testAssembler(t, db, &fakeSynth{}, search, &fakeComp{})

	if err := a.Compose(context.Background(), unitID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	unit, _ := db.GetUnit(unitID)
	if unit.Status != database.StatusComposed {
		t.Errorf("expected composed, got %s", unit.Status)
	}
	if len(unit.Attributions) != 2 {
		t.Errorf("expected merged clips, got %v", unit.Attributions)
	}
}

func TestComposeInsufficientFootageLeavesUnitGenerated(t *testing.T) {
	db := openTestDB(t)
	unitID := generatedUnit(t, db)

	search := &fakeSearch{clips: nil, broadened: nil}
	a := testAssembler(t, db, &fakeSynth{}, search, &fakeComp{})

	err := a.Compose(context.Background(), unitID)
	if !errors.Is(err, ErrInsufficientFootage) {
		t.Fatalf("expected ErrInsufficientFootage, got %v", err)
	}
	unit, _ := db.GetUnit(unitID)
	if unit.Status != database.StatusGenerated {
		t.Errorf("unit should stay generated, got %s", unit.Status)
	}
}

func TestComposeCompositorFailure(t *testing.T) {
	db := openTestDB(t)
	unitID := generatedUnit(t, db)

	comp := &fakeComp{err: errors.New("ffmpeg exit 1")}
	a := testAssembler(t, db, &fakeSynth{}, &fakeSearch{clips: twoClips()}, comp)

	if err := a.Compose(context.Background(), unitID); err == nil {
		t.Fatal("expected error")
	}
	if comp.calls != 3 {
		t.Errorf("expected compositor retried, got %d calls", comp.calls)
	}
	unit, _ := db.GetUnit(unitID)
	if unit.Status != database.StatusFailed {
		t.Errorf("expected failed, got %s", unit.Status)
	}
}

func TestMergeClips(t *testing.T) {
	a := []footage.Clip{{Source: "pexels", ExternalID: "1"}}
	b := []footage.Clip{
		{Source: "pexels", ExternalID: "1"},
		{Source: "pexels", ExternalID: "2"},
		{Source: "pexels", ExternalID: "3"},
	}
	merged := mergeClips(a, b, 2)
	if len(merged) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(merged))
	}
	if merged[1].ExternalID != "2" {
		t.Errorf("expected deduplicated merge, got %+v", merged)
	}
}
