// Package publisher posts composed videos through the TikTok Content
// Posting API v2 direct-post flow: initialize the upload, PUT the file to
// the returned upload_url, and hand back the publish_id.
//
// Docs: https://developers.tiktok.com/doc/content-posting-api-reference-direct-post
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultAPIBase = "https://open.tiktokapis.com/v2"

// Error kinds for publish failures.
const (
	KindRateLimited = "rate_limited"
	KindAuth        = "auth"
	KindOther       = "other"
)

// Error classifies a publish failure so the queue can log it usefully. All
// kinds count against the consecutive-failure streak.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("tiktok (%s): %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// IsAuth reports whether err is a credential problem (worth surfacing
// prominently, since retries cannot fix it).
func IsAuth(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindAuth
}

// Post is the result of a successful publish.
type Post struct {
	PublishID string
	Caption   string
}

// Client posts to TikTok on behalf of a single authorized account. Token
// refresh/OAuth exchange is out of scope; the access token comes from the
// environment.
type Client struct {
	AccessToken  string
	PrivacyLevel string
	Hashtags     []string
	MaxHashtags  int
	APIBase      string

	client *http.Client
}

// NewClient reads the access token from tokenEnv.
func NewClient(tokenEnv, privacyLevel string, hashtags []string, maxHashtags int) *Client {
	return &Client{
		AccessToken:  os.Getenv(tokenEnv),
		PrivacyLevel: privacyLevel,
		Hashtags:     hashtags,
		MaxHashtags:  maxHashtags,
		APIBase:      defaultAPIBase,
		client:       &http.Client{Timeout: 300 * time.Second},
	}
}

// IsConfigured reports whether an access token is present.
func (c *Client) IsConfigured() bool { return c.AccessToken != "" }

// BuildCaption renders the post caption: reference and theme, then the
// configured hashtags capped at MaxHashtags.
func (c *Client) BuildCaption(verseRef, themeName string) string {
	tags := c.Hashtags
	if len(tags) > c.MaxHashtags {
		tags = tags[:c.MaxHashtags]
	}
	return fmt.Sprintf("%s | %s\n\n%s", verseRef, themeName, strings.Join(tags, " "))
}

// Publish runs the direct-post flow for a video file and returns the
// publish_id TikTok assigned.
func (c *Client) Publish(ctx context.Context, videoPath, verseRef, themeName string) (*Post, error) {
	if c.AccessToken == "" {
		return nil, &Error{Kind: KindAuth, Err: errors.New("TikTok access token not configured")}
	}

	caption := c.BuildCaption(verseRef, themeName)

	publishID, uploadURL, err := c.initDirectPost(ctx, videoPath, caption)
	if err != nil {
		return nil, err
	}
	if uploadURL == "" {
		return nil, &Error{Kind: KindOther, Err: errors.New("TikTok did not return an upload_url")}
	}

	if err := c.uploadVideo(ctx, uploadURL, videoPath); err != nil {
		return nil, err
	}

	return &Post{PublishID: publishID, Caption: caption}, nil
}

func (c *Client) initDirectPost(ctx context.Context, videoPath, caption string) (publishID, uploadURL string, err error) {
	info, err := os.Stat(videoPath)
	if err != nil {
		return "", "", &Error{Kind: KindOther, Err: fmt.Errorf("stat video: %w", err)}
	}
	fileSize := info.Size()

	title := caption
	if len(title) > 150 {
		title = title[:150]
	}

	body := map[string]any{
		"post_info": map[string]any{
			"title":           title,
			"privacy_level":   c.PrivacyLevel,
			"disable_duet":    false,
			"disable_comment": false,
			"disable_stitch":  false,
		},
		"source_info": map[string]any{
			"source":            "FILE_UPLOAD",
			"video_size":        fileSize,
			"chunk_size":        fileSize,
			"total_chunk_count": 1,
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", "", fmt.Errorf("marshaling init request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.APIBase+"/post/publish/video/init/", bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("creating init request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", &Error{Kind: KindOther, Err: fmt.Errorf("TikTok init request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", classifyStatus(resp.StatusCode, "init")
	}

	var result struct {
		Data struct {
			PublishID string `json:"publish_id"`
			UploadURL string `json:"upload_url"`
		} `json:"data"`
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", fmt.Errorf("decoding init response: %w", err)
	}
	if result.Error.Code != "" && result.Error.Code != "ok" {
		kind := KindOther
		if strings.Contains(result.Error.Code, "access_token") || strings.Contains(result.Error.Code, "scope") {
			kind = KindAuth
		}
		return "", "", &Error{Kind: kind, Err: fmt.Errorf("TikTok init failed: %s (%s)", result.Error.Message, result.Error.Code)}
	}

	return result.Data.PublishID, result.Data.UploadURL, nil
}

func (c *Client) uploadVideo(ctx context.Context, uploadURL, videoPath string) error {
	f, err := os.Open(videoPath)
	if err != nil {
		return &Error{Kind: KindOther, Err: fmt.Errorf("opening video: %w", err)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &Error{Kind: KindOther, Err: fmt.Errorf("stat video: %w", err)}
	}
	size := info.Size()

	req, err := http.NewRequestWithContext(ctx, "PUT", uploadURL, f)
	if err != nil {
		return fmt.Errorf("creating upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", size-1, size))
	req.Header.Set("Content-Type", "video/mp4")

	resp, err := c.client.Do(req)
	if err != nil {
		return &Error{Kind: KindOther, Err: fmt.Errorf("uploading video: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &Error{Kind: KindOther, Err: fmt.Errorf("upload returned %d: %s", resp.StatusCode, string(body))}
	}
	return nil
}

// CheckStatus fetches the processing state of a publish request.
func (c *Client) CheckStatus(ctx context.Context, publishID string) (string, error) {
	data, err := json.Marshal(map[string]string{"publish_id": publishID})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.APIBase+"/post/publish/status/fetch/", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &Error{Kind: KindOther, Err: fmt.Errorf("TikTok status request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, "status")
	}

	var result struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding status response: %w", err)
	}
	return result.Data.Status, nil
}

func classifyStatus(status int, op string) error {
	base := fmt.Errorf("TikTok %s returned %d", op, status)
	switch {
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Err: base}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindAuth, Err: base}
	default:
		return &Error{Kind: KindOther, Err: base}
	}
}
