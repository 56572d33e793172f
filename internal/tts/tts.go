// Package tts synthesizes prayer audio through the ElevenLabs API.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const defaultBaseURL = "https://api.elevenlabs.io"

// Audio is a synthesized narration file.
type Audio struct {
	Path        string
	DurationSec float64
	VoiceID     string
}

// Prober measures the duration of an audio file. Wired to ffprobe in
// production, faked in tests.
type Prober func(ctx context.Context, path string) (float64, error)

// Client calls the ElevenLabs text-to-speech endpoint.
type Client struct {
	APIKey  string
	VoiceID string
	ModelID string
	Speed   float64
	BaseURL string

	client *http.Client
	probe  Prober
}

// NewClient builds a client reading the API key from apiKeyEnv.
func NewClient(apiKeyEnv, voiceID, modelID string, speed float64, probe Prober) *Client {
	return &Client{
		APIKey:  os.Getenv(apiKeyEnv),
		VoiceID: voiceID,
		ModelID: modelID,
		Speed:   speed,
		BaseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
		probe:   probe,
	}
}

// IsConfigured reports whether an API key is present.
func (c *Client) IsConfigured() bool { return c.APIKey != "" }

// Synthesize renders text to an MP3 at outPath and returns the file with its
// measured duration. A zero-byte response is treated as an error and the
// partial file is removed.
func (c *Client) Synthesize(ctx context.Context, text, outPath string) (*Audio, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("ElevenLabs API key not configured")
	}

	body := map[string]any{
		"text":     text,
		"model_id": c.ModelID,
		"voice_settings": map[string]any{
			"speed": c.Speed,
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=mp3_44100_128", c.BaseURL, c.VoiceID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ElevenLabs API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ElevenLabs API returned %d: %s", resp.StatusCode, string(respBody))
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating audio dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("creating audio file: %w", err)
	}
	written, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(outPath)
		return nil, fmt.Errorf("writing audio file: %w", err)
	}
	if written == 0 {
		os.Remove(outPath)
		return nil, fmt.Errorf("ElevenLabs returned empty audio")
	}

	audio := &Audio{Path: outPath, VoiceID: c.VoiceID}
	if c.probe != nil {
		dur, err := c.probe(ctx, outPath)
		if err != nil {
			return nil, fmt.Errorf("probing audio duration: %w", err)
		}
		audio.DurationSec = dur
	}
	return audio, nil
}
