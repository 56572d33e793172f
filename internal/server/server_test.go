package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prayloop/prayloop/internal/database"
	"github.com/prayloop/prayloop/internal/publisher"
	"github.com/prayloop/prayloop/internal/queue"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testServer(t *testing.T, db *database.DB) (*Server, *queue.Manager) {
	t.Helper()
	pub := publisher.NewClient("PRAYLOOP_TEST_MISSING_TOKEN", "SELF_ONLY", nil, 5)
	mgr := queue.NewManager(db, pub, queue.Settings{
		MinInterval:            4 * time.Hour,
		MaxPostsPerDay:         1,
		ApprovalThreshold:      10,
		MaxConsecutiveFailures: 3,
	})
	srv, err := New(db, mgr)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv, mgr
}

func composedUnit(t *testing.T, db *database.DB) int64 {
	t.Helper()
	themeID, err := db.InsertTheme("grief", "Grief & Loss", "comforting", nil, nil, nil)
	if err != nil {
		t.Fatalf("insert theme: %v", err)
	}
	verseID, err := db.InsertVerse("Psalm 34:18", "The LORD is nigh unto them that are of a broken heart.", "KJV", themeID)
	if err != nil {
		t.Fatalf("insert verse: %v", err)
	}
	unitID, err := db.CreateUnit(themeID, verseID)
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	if _, err := db.SetUnitPrayer(unitID, "Heavenly Father, draw near to the brokenhearted. Amen.", 9, nil); err != nil {
		t.Fatalf("set prayer: %v", err)
	}
	if err := db.MarkUnitComposed(unitID, "/tmp/a.mp3", "v1", 62, "/tmp/v.mp4", 63, []string{"Pexels - Jane Doe"}); err != nil {
		t.Fatalf("mark composed: %v", err)
	}
	return unitID
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func post(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, nil)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexRoute(t *testing.T) {
	db := openTestDB(t)
	srv, _ := testServer(t, db)

	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Content Units") {
		t.Error("expected 'Content Units' in response body")
	}
}

func TestUnitRoute(t *testing.T) {
	db := openTestDB(t)
	unitID := composedUnit(t, db)
	srv, _ := testServer(t, db)

	rec := get(t, srv, fmt.Sprintf("/unit/%d", unitID))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Psalm 34:18") {
		t.Error("expected verse reference in response")
	}
	if !strings.Contains(body, "draw near to the brokenhearted") {
		t.Error("expected prayer text in response")
	}
	if !strings.Contains(body, "Pexels - Jane Doe") {
		t.Error("expected footage attribution in response")
	}
}

func TestTodayRoute(t *testing.T) {
	db := openTestDB(t)
	srv, _ := testServer(t, db)

	rec := get(t, srv, "/today")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No prayer yet") {
		t.Error("expected empty-state message before any unit exists")
	}

	composedUnit(t, db)
	rec = get(t, srv, "/today")
	body := rec.Body.String()
	if !strings.Contains(body, "Psalm 34:18") {
		t.Error("expected verse reference on today page")
	}
	if !strings.Contains(body, "draw near to the brokenhearted") {
		t.Error("expected prayer text on today page")
	}
}

func TestQueueRouteAndApprove(t *testing.T) {
	db := openTestDB(t)
	unitID := composedUnit(t, db)
	srv, mgr := testServer(t, db)

	entryID, err := mgr.Enqueue(unitID, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rec := get(t, srv, "/queue")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Psalm 34:18") {
		t.Error("expected verse reference in queue listing")
	}
	if !strings.Contains(body, fmt.Sprintf("/queue/%d/approve", entryID)) {
		t.Error("expected approve form for queued entry")
	}
	if !strings.Contains(body, "Publishing limits") || !strings.Contains(body, "4h0m0s") {
		t.Error("expected read-only limits section on queue page")
	}

	rec = post(t, srv, fmt.Sprintf("/queue/%d/approve", entryID))
	if rec.Code != http.StatusFound {
		t.Errorf("expected 302, got %d", rec.Code)
	}
	unit, _ := db.GetUnit(unitID)
	if unit.Status != database.StatusApproved {
		t.Errorf("expected approved unit after POST, got %s", unit.Status)
	}
}

func TestQueuePausedBannerAndUnpause(t *testing.T) {
	db := openTestDB(t)
	unitID := composedUnit(t, db)
	srv, mgr := testServer(t, db)
	entryID, _ := mgr.Enqueue(unitID, nil)

	// Drive the failure streak to the auto-pause limit.
	for i := 0; i < 3; i++ {
		if _, _, err := db.RecordPublishFailure(entryID, unitID, "upload rejected", 3); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}

	rec := get(t, srv, "/queue")
	if !strings.Contains(rec.Body.String(), "Auto-paused") {
		t.Error("expected auto-pause banner")
	}

	rec = post(t, srv, "/queue/unpause")
	if rec.Code != http.StatusFound {
		t.Errorf("expected 302, got %d", rec.Code)
	}
	state, _ := db.GetSafetyState()
	if state.AutoPaused {
		t.Error("expected auto-pause cleared")
	}
}

func TestStatsRoute(t *testing.T) {
	db := openTestDB(t)
	db.UpsertPlatformPost(database.PlatformPost{PostID: "7301"}, "{}")
	srv, _ := testServer(t, db)

	rec := get(t, srv, "/stats")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "7301") {
		t.Error("expected imported post in response")
	}
}

func TestStaticRoute(t *testing.T) {
	db := openTestDB(t)
	srv, _ := testServer(t, db)

	rec := get(t, srv, "/static/style.css")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "font-sans") {
		t.Error("expected CSS content")
	}
}
