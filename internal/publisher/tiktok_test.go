package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testClient(apiBase string) *Client {
	return &Client{
		AccessToken:  "test-token",
		PrivacyLevel: "SELF_ONLY",
		Hashtags:     []string{"#faith", "#prayer", "#ChristianTikTok"},
		MaxHashtags:  5,
		APIBase:      apiBase,
		client:       http.DefaultClient,
	}
}

func writeTestVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "video.mp4")
	if err := os.WriteFile(path, []byte("fake video bytes"), 0o644); err != nil {
		t.Fatalf("writing test video: %v", err)
	}
	return path
}

func TestBuildCaption(t *testing.T) {
	c := testClient("")
	caption := c.BuildCaption("Psalm 23:4", "Grief")
	if !strings.HasPrefix(caption, "Psalm 23:4 | Grief") {
		t.Errorf("unexpected caption: %q", caption)
	}
	if !strings.Contains(caption, "#faith #prayer #ChristianTikTok") {
		t.Errorf("expected hashtags: %q", caption)
	}
}

func TestBuildCaptionCapsHashtags(t *testing.T) {
	c := testClient("")
	c.Hashtags = []string{"#a", "#b", "#c", "#d"}
	c.MaxHashtags = 2
	caption := c.BuildCaption("John 3:16", "Hope")
	if strings.Contains(caption, "#c") {
		t.Errorf("expected hashtags capped at 2: %q", caption)
	}
}

func TestPublishFlow(t *testing.T) {
	var uploadedBytes []byte
	var initBody map[string]any

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/post/publish/video/init/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Error("missing bearer token")
		}
		json.NewDecoder(r.Body).Decode(&initBody)
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"publish_id": "pub-123",
				"upload_url": server.URL + "/upload",
			},
			"error": map[string]any{"code": "ok"},
		})
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Range"), "bytes 0-") {
			t.Errorf("missing Content-Range: %s", r.Header.Get("Content-Range"))
		}
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		uploadedBytes = body
	})

	c := testClient(server.URL)
	post, err := c.Publish(context.Background(), writeTestVideo(t), "Psalm 23:4", "Grief")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if post.PublishID != "pub-123" {
		t.Errorf("unexpected publish id: %s", post.PublishID)
	}
	if !strings.HasPrefix(string(uploadedBytes), "fake video") {
		t.Errorf("video bytes not uploaded: %q", uploadedBytes)
	}

	postInfo := initBody["post_info"].(map[string]any)
	if postInfo["privacy_level"] != "SELF_ONLY" {
		t.Errorf("expected SELF_ONLY privacy, got %v", postInfo["privacy_level"])
	}
	sourceInfo := initBody["source_info"].(map[string]any)
	if sourceInfo["source"] != "FILE_UPLOAD" {
		t.Errorf("unexpected source: %v", sourceInfo["source"])
	}
}

func TestPublishInitAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": "access_token_invalid", "message": "bad token"},
		})
	}))
	defer server.Close()

	c := testClient(server.URL)
	_, err := c.Publish(context.Background(), writeTestVideo(t), "Psalm 23:4", "Grief")
	if !IsAuth(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestPublishRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := testClient(server.URL)
	_, err := c.Publish(context.Background(), writeTestVideo(t), "Psalm 23:4", "Grief")
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindRateLimited {
		t.Errorf("expected rate_limited error, got %v", err)
	}
}

func TestPublishMissingUploadURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data":  map[string]any{"publish_id": "pub-1"},
			"error": map[string]any{"code": "ok"},
		})
	}))
	defer server.Close()

	c := testClient(server.URL)
	_, err := c.Publish(context.Background(), writeTestVideo(t), "Psalm 23:4", "Grief")
	if err == nil || !strings.Contains(err.Error(), "upload_url") {
		t.Errorf("expected upload_url error, got %v", err)
	}
}

func TestPublishUnconfigured(t *testing.T) {
	c := &Client{}
	if c.IsConfigured() {
		t.Error("expected unconfigured without token")
	}
	_, err := c.Publish(context.Background(), "video.mp4", "ref", "theme")
	if !IsAuth(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestCheckStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/post/publish/status/fetch/" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"status": "PUBLISH_COMPLETE"},
		})
	}))
	defer server.Close()

	c := testClient(server.URL)
	status, err := c.CheckStatus(context.Background(), "pub-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != "PUBLISH_COMPLETE" {
		t.Errorf("unexpected status: %s", status)
	}
}
