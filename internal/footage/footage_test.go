package footage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const pexelsResponse = `{
  "videos": [
    {
      "id": 101,
      "url": "https://www.pexels.com/video/101",
      "duration": 18,
      "user": {"name": "Jane Doe"},
      "video_files": [
        {"link": "https://cdn.pexels.com/101-sd.mp4", "quality": "sd", "width": 360, "height": 640},
        {"link": "https://cdn.pexels.com/101-hd.mp4", "quality": "hd", "width": 1080, "height": 1920},
        {"link": "https://cdn.pexels.com/101-hd720.mp4", "quality": "hd", "width": 720, "height": 1280}
      ]
    },
    {
      "id": 102,
      "url": "https://www.pexels.com/video/102",
      "duration": 12,
      "user": {},
      "video_files": [
        {"link": "https://cdn.pexels.com/102.mp4", "quality": "sd", "width": 180, "height": 320}
      ]
    }
  ]
}`

const pixabayResponse = `{
  "hits": [
    {
      "id": 201,
      "pageURL": "https://pixabay.com/videos/201",
      "duration": 20,
      "user": "john",
      "videos": {
        "large": {"url": "https://cdn.pixabay.com/201-large.mp4", "width": 1080, "height": 1920},
        "medium": {"url": "https://cdn.pixabay.com/201-medium.mp4", "width": 720, "height": 1280}
      }
    }
  ]
}`

func testSearcher(pexelsURL, pixabayURL string) *Searcher {
	return &Searcher{
		PexelsKey:   "pexels-key",
		PixabayKey:  "pixabay-key",
		Primary:     "pexels",
		Orientation: "portrait",
		PexelsURL:   pexelsURL,
		PixabayURL:  pixabayURL,
		client:      &http.Client{Timeout: 5 * time.Second},
	}
}

func TestSearchPexels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "pexels-key" {
			t.Error("missing Authorization header")
		}
		if r.URL.Query().Get("orientation") != "portrait" {
			t.Errorf("unexpected orientation: %s", r.URL.Query().Get("orientation"))
		}
		w.Write([]byte(pexelsResponse))
	}))
	defer server.Close()

	s := testSearcher(server.URL, "")
	clips, err := s.SearchPexels(context.Background(), "calm ocean", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Video 102 has no file >= 720p and is skipped.
	if len(clips) != 1 {
		t.Fatalf("expected 1 clip, got %d", len(clips))
	}
	c := clips[0]
	if c.ExternalID != "101" || c.Source != "pexels" {
		t.Errorf("unexpected clip: %+v", c)
	}
	if c.DownloadURL != "https://cdn.pexels.com/101-hd.mp4" {
		t.Errorf("expected best HD file, got %s", c.DownloadURL)
	}
	if c.Attribution != "Pexels - Jane Doe" {
		t.Errorf("unexpected attribution: %s", c.Attribution)
	}
}

func TestSearchPixabay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "pixabay-key" {
			t.Error("missing key param")
		}
		w.Write([]byte(pixabayResponse))
	}))
	defer server.Close()

	s := testSearcher("", server.URL)
	clips, err := s.SearchPixabay(context.Background(), "sunrise", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clips) != 1 {
		t.Fatalf("expected 1 clip, got %d", len(clips))
	}
	if clips[0].DownloadURL != "https://cdn.pixabay.com/201-large.mp4" {
		t.Errorf("expected large rendition, got %s", clips[0].DownloadURL)
	}
	if clips[0].Attribution != "Pixabay - john" {
		t.Errorf("unexpected attribution: %s", clips[0].Attribution)
	}
}

func TestSearchFallsBackToSecondary(t *testing.T) {
	pexels := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer pexels.Close()
	pixabay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pixabayResponse))
	}))
	defer pixabay.Close()

	s := testSearcher(pexels.URL, pixabay.URL)
	clips, err := s.Search(context.Background(), []string{"sunrise"}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clips) != 1 || clips[0].Source != "pixabay" {
		t.Errorf("expected pixabay fallback result, got %+v", clips)
	}
}

func TestSearchDeduplicatesAcrossQueries(t *testing.T) {
	pexels := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pexelsResponse))
	}))
	defer pexels.Close()

	s := testSearcher(pexels.URL, "")
	clips, err := s.Search(context.Background(), []string{"ocean", "waves", "sea"}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clips) != 1 {
		t.Errorf("expected deduplicated single clip, got %d", len(clips))
	}
}

func TestSearchRespectsMaxResults(t *testing.T) {
	pexels := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pexelsResponse))
	}))
	defer pexels.Close()

	s := testSearcher(pexels.URL, "")
	clips, err := s.Search(context.Background(), []string{"one"}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clips) > 1 {
		t.Errorf("expected at most 1 clip, got %d", len(clips))
	}
}

func TestDownloadReusesExistingFiles(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("video bytes"))
	}))
	defer server.Close()

	dir := t.TempDir()
	s := testSearcher("", "")
	clips := []Clip{
		{Source: "pexels", ExternalID: "101", DownloadURL: server.URL + "/101.mp4"},
		{Source: "pexels", ExternalID: "102", DownloadURL: server.URL + "/102.mp4"},
	}

	paths, err := s.Download(context.Background(), clips, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 2 || hits != 2 {
		t.Fatalf("expected 2 downloads, got %d paths %d hits", len(paths), hits)
	}
	if filepath.Base(paths[0]) != "pexels_101.mp4" {
		t.Errorf("unexpected filename: %s", paths[0])
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected file at %s: %v", p, err)
		}
	}

	// Second call finds the files on disk and skips the network.
	if _, err := s.Download(context.Background(), clips, dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != 2 {
		t.Errorf("expected cached reuse, got %d hits", hits)
	}
}

func TestDownloadFailurePropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := testSearcher("", "")
	clips := []Clip{{Source: "pexels", ExternalID: "404", DownloadURL: server.URL + "/x.mp4"}}
	if _, err := s.Download(context.Background(), clips, t.TempDir()); err == nil {
		t.Error("expected download error")
	}
}

func TestSearchUnconfiguredKeys(t *testing.T) {
	s := &Searcher{Primary: "pexels", client: http.DefaultClient}
	if _, err := s.SearchPexels(context.Background(), "q", 3); err == nil {
		t.Error("expected error without Pexels key")
	}
	if _, err := s.SearchPixabay(context.Background(), "q", 3); err == nil {
		t.Error("expected error without Pixabay key")
	}
}
