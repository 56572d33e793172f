// Package media assembles the final vertical video by driving ffmpeg:
// loop the primary footage clip to the narration length, scale and crop to
// portrait, draw the verse overlay, and mux the audio.
package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Video is a composed output file.
type Video struct {
	Path        string
	DurationSec float64
	Width       int
	Height      int
}

// Compositor builds videos with ffmpeg/ffprobe found on PATH.
type Compositor struct {
	Width         int
	Height        int
	FontFamily    string
	VerseFontSize int
	Timeout       time.Duration

	FFmpegPath  string // empty means look up "ffmpeg" on PATH
	FFprobePath string
}

func NewCompositor(width, height int, fontFamily string, verseFontSize int, timeout time.Duration) *Compositor {
	return &Compositor{
		Width:         width,
		Height:        height,
		FontFamily:    fontFamily,
		VerseFontSize: verseFontSize,
		Timeout:       timeout,
	}
}

func (c *Compositor) ffmpeg() (string, error) {
	if c.FFmpegPath != "" {
		return c.FFmpegPath, nil
	}
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found on PATH; install it with your package manager")
	}
	return path, nil
}

func (c *Compositor) ffprobe() (string, error) {
	if c.FFprobePath != "" {
		return c.FFprobePath, nil
	}
	path, err := exec.LookPath("ffprobe")
	if err != nil {
		return "", fmt.Errorf("ffprobe not found on PATH")
	}
	return path, nil
}

// ProbeDuration returns a media file's duration in seconds via ffprobe.
func (c *Compositor) ProbeDuration(ctx context.Context, path string) (float64, error) {
	ffprobe, err := c.ffprobe()
	if err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("probing %s: %w", path, err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("could not determine duration for %s: %w", path, err)
	}
	return dur, nil
}

// Compose renders the final video into dir and returns it. Output filenames
// carry a random suffix so a retried composition never clobbers an earlier
// attempt under review.
func (c *Compositor) Compose(ctx context.Context, audioPath string, footagePaths []string, verseRef, verseText string, unitID int64, dir string) (*Video, error) {
	if len(footagePaths) == 0 {
		return nil, fmt.Errorf("no footage clips provided")
	}
	ffmpeg, err := c.ffmpeg()
	if err != nil {
		return nil, err
	}

	duration, err := c.ProbeDuration(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating video dir: %w", err)
	}
	outPath := filepath.Join(dir, fmt.Sprintf("unit_%d_%s.mp4", unitID, uuid.NewString()[:8]))

	args := c.buildArgs(audioPath, footagePaths[0], verseRef, verseText, duration, outPath)

	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, ffmpeg, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		tail := stderr.String()
		if len(tail) > 500 {
			tail = tail[len(tail)-500:]
		}
		return nil, fmt.Errorf("ffmpeg failed: %w\n%s", err, tail)
	}

	return &Video{Path: outPath, DurationSec: duration, Width: c.Width, Height: c.Height}, nil
}

// buildArgs constructs the full ffmpeg argument list. Kept separate so the
// command shape is testable without running ffmpeg.
func (c *Compositor) buildArgs(audioPath, footagePath, verseRef, verseText string, duration float64, outPath string) []string {
	filter := fmt.Sprintf(
		"[0:v]loop=loop=-1:size=1000:start=0,"+
			"trim=duration=%.2f,"+
			"setpts=PTS-STARTPTS,"+
			"scale=%d:%d:force_original_aspect_ratio=increase,"+
			"crop=%d:%d,"+
			"%s[outv]",
		duration, c.Width, c.Height, c.Width, c.Height,
		c.textFilter(verseRef, verseText),
	)

	return []string{
		"-y",
		"-i", footagePath,
		"-i", audioPath,
		"-filter_complex", filter,
		"-map", "[outv]",
		"-map", "1:a",
		"-c:v", "libx264",
		"-preset", "medium",
		"-b:v", "8M",
		"-r", "30",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		outPath,
	}
}

// textFilter renders the verse card over the opening seconds: the reference
// centered, the (possibly shortened) verse text below it.
func (c *Compositor) textFilter(verseRef, verseText string) string {
	safeRef := escapeDrawtext(verseRef)
	safeText := escapeDrawtext(verseText)
	if len(safeText) > 120 {
		safeText = safeText[:117] + "..."
	}

	refFilter := fmt.Sprintf(
		"drawtext=text='%s':font='%s':fontsize=%d:fontcolor=#FFFFFF"+
			":shadowcolor=#000000:shadowx=2:shadowy=2"+
			":x=(w-text_w)/2:y=(h-text_h)/2-40:enable='between(t,0,6)'",
		safeRef, c.FontFamily, c.VerseFontSize,
	)
	bodyFilter := fmt.Sprintf(
		"drawtext=text='%s':font='%s':fontsize=32:fontcolor=#FFFFFF"+
			":shadowcolor=#000000:shadowx=2:shadowy=2"+
			":x=(w-text_w)/2:y=(h/2)+20:enable='between(t,0,6)'",
		safeText, c.FontFamily,
	)
	return refFilter + "," + bodyFilter
}

// escapeDrawtext escapes characters ffmpeg's drawtext filter treats
// specially.
func escapeDrawtext(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, `:`, `\:`)
	return s
}
