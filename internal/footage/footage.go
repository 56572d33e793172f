// Package footage searches and downloads vertical stock clips from Pexels,
// with Pixabay as a fallback source.
package footage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	pexelsSearchURL  = "https://api.pexels.com/videos/search"
	pixabaySearchURL = "https://pixabay.com/api/videos/"
)

// Clip is one stock video search result.
type Clip struct {
	Source      string
	ExternalID  string
	PageURL     string
	DownloadURL string
	DurationSec int
	Width       int
	Height      int
	Attribution string
}

// Searcher queries the configured primary source first and falls back to the
// secondary when the primary errors or returns nothing.
type Searcher struct {
	PexelsKey   string
	PixabayKey  string
	Primary     string
	Orientation string

	PexelsURL  string
	PixabayURL string
	client     *http.Client
}

// NewSearcher reads API keys from the given env var names.
func NewSearcher(pexelsKeyEnv, pixabayKeyEnv, primary, orientation string) *Searcher {
	return &Searcher{
		PexelsKey:   os.Getenv(pexelsKeyEnv),
		PixabayKey:  os.Getenv(pixabayKeyEnv),
		Primary:     primary,
		Orientation: orientation,
		PexelsURL:   pexelsSearchURL,
		PixabayURL:  pixabaySearchURL,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Search runs each query against the primary source (falling back per
// query), deduplicates by (source, external_id), and returns at most
// maxResults clips.
func (s *Searcher) Search(ctx context.Context, queries []string, maxResults int) ([]Clip, error) {
	var all []Clip
	seen := make(map[string]bool)

	for _, query := range queries {
		if len(all) >= maxResults {
			break
		}
		clips, err := s.searchSource(ctx, s.Primary, query)
		if err != nil || len(clips) == 0 {
			if err != nil {
				log.Printf("Footage search on %s failed for %q: %v", s.Primary, query, err)
			}
			clips, err = s.searchSource(ctx, s.fallbackSource(), query)
			if err != nil {
				log.Printf("Footage fallback search failed for %q: %v", query, err)
				continue
			}
		}
		for _, c := range clips {
			key := c.Source + "/" + c.ExternalID
			if !seen[key] {
				seen[key] = true
				all = append(all, c)
			}
		}
	}

	if len(all) > maxResults {
		all = all[:maxResults]
	}
	return all, nil
}

func (s *Searcher) fallbackSource() string {
	if s.Primary == "pexels" {
		return "pixabay"
	}
	return "pexels"
}

func (s *Searcher) searchSource(ctx context.Context, source, query string) ([]Clip, error) {
	if source == "pixabay" {
		return s.SearchPixabay(ctx, query, 3)
	}
	return s.SearchPexels(ctx, query, 3)
}

// SearchPexels queries the Pexels video search API.
func (s *Searcher) SearchPexels(ctx context.Context, query string, perPage int) ([]Clip, error) {
	if s.PexelsKey == "" {
		return nil, fmt.Errorf("Pexels API key not configured")
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("orientation", s.Orientation)
	params.Set("per_page", strconv.Itoa(perPage))

	req, err := http.NewRequestWithContext(ctx, "GET", s.PexelsURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", s.PexelsKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Pexels API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Pexels API returned %d", resp.StatusCode)
	}

	var result struct {
		Videos []struct {
			ID       int    `json:"id"`
			URL      string `json:"url"`
			Duration int    `json:"duration"`
			User     struct {
				Name string `json:"name"`
			} `json:"user"`
			VideoFiles []struct {
				Link    string `json:"link"`
				Quality string `json:"quality"`
				Width   int    `json:"width"`
				Height  int    `json:"height"`
			} `json:"video_files"`
		} `json:"videos"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding Pexels response: %w", err)
	}

	var clips []Clip
	for _, v := range result.Videos {
		best := -1
		// HD files of at least 1080p first, then anything >= 720p.
		for i, f := range v.VideoFiles {
			if f.Quality == "hd" && f.Height >= 1080 && (best < 0 || f.Height > v.VideoFiles[best].Height) {
				best = i
			}
		}
		if best < 0 {
			for i, f := range v.VideoFiles {
				if f.Height >= 720 && (best < 0 || f.Height > v.VideoFiles[best].Height) {
					best = i
				}
			}
		}
		if best < 0 {
			continue
		}
		f := v.VideoFiles[best]
		name := v.User.Name
		if name == "" {
			name = "Unknown"
		}
		clips = append(clips, Clip{
			Source:      "pexels",
			ExternalID:  strconv.Itoa(v.ID),
			PageURL:     v.URL,
			DownloadURL: f.Link,
			DurationSec: v.Duration,
			Width:       f.Width,
			Height:      f.Height,
			Attribution: "Pexels - " + name,
		})
	}
	return clips, nil
}

// SearchPixabay queries the Pixabay video search API.
func (s *Searcher) SearchPixabay(ctx context.Context, query string, perPage int) ([]Clip, error) {
	if s.PixabayKey == "" {
		return nil, fmt.Errorf("Pixabay API key not configured")
	}

	params := url.Values{}
	params.Set("key", s.PixabayKey)
	params.Set("q", query)
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("video_type", "film")

	req, err := http.NewRequestWithContext(ctx, "GET", s.PixabayURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Pixabay API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Pixabay API returned %d", resp.StatusCode)
	}

	var result struct {
		Hits []struct {
			ID       int    `json:"id"`
			PageURL  string `json:"pageURL"`
			Duration int    `json:"duration"`
			User     string `json:"user"`
			Videos   map[string]struct {
				URL    string `json:"url"`
				Width  int    `json:"width"`
				Height int    `json:"height"`
			} `json:"videos"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding Pixabay response: %w", err)
	}

	var clips []Clip
	for _, hit := range result.Hits {
		best, ok := hit.Videos["large"]
		if !ok || best.URL == "" {
			best, ok = hit.Videos["medium"]
		}
		if !ok || best.URL == "" {
			continue
		}
		user := hit.User
		if user == "" {
			user = "Unknown"
		}
		clips = append(clips, Clip{
			Source:      "pixabay",
			ExternalID:  strconv.Itoa(hit.ID),
			PageURL:     hit.PageURL,
			DownloadURL: best.URL,
			DurationSec: hit.Duration,
			Width:       best.Width,
			Height:      best.Height,
			Attribution: "Pixabay - " + user,
		})
	}
	return clips, nil
}

// Download fetches clips into dir concurrently. Filenames are deterministic
// (source_externalID.mp4) so an already-downloaded clip is reused. Returns
// local paths in the same order as clips.
func (s *Searcher) Download(ctx context.Context, clips []Clip, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating footage dir: %w", err)
	}

	paths := make([]string, len(clips))
	g, ctx := errgroup.WithContext(ctx)
	for i, clip := range clips {
		outPath := filepath.Join(dir, fmt.Sprintf("%s_%s.mp4", clip.Source, clip.ExternalID))
		paths[i] = outPath
		clip := clip
		g.Go(func() error {
			if _, err := os.Stat(outPath); err == nil {
				return nil
			}
			return s.downloadOne(ctx, clip, outPath)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (s *Searcher) downloadOne(ctx context.Context, clip Clip, outPath string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", clip.DownloadURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s/%s: %w", clip.Source, clip.ExternalID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s/%s: status %d", clip.Source, clip.ExternalID, resp.StatusCode)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating clip file: %w", err)
	}
	_, err = io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(outPath)
		return fmt.Errorf("writing clip file: %w", err)
	}
	return nil
}
