package media

import (
	"strings"
	"testing"
	"time"
)

func testCompositor() *Compositor {
	return NewCompositor(1080, 1920, "Georgia", 48, 5*time.Minute)
}

func TestBuildArgs(t *testing.T) {
	c := testCompositor()
	args := c.buildArgs("/tmp/a.mp3", "/tmp/clip.mp4", "Psalm 23:4", "Yea, though I walk", 62.5, "/tmp/out.mp4")

	joined := strings.Join(args, " ")
	if args[0] != "-y" {
		t.Error("expected overwrite flag first")
	}
	if !strings.Contains(joined, "-i /tmp/clip.mp4 -i /tmp/a.mp3") {
		t.Errorf("inputs out of order: %s", joined)
	}
	if !strings.Contains(joined, "trim=duration=62.50") {
		t.Errorf("expected trim to audio duration: %s", joined)
	}
	if !strings.Contains(joined, "scale=1080:1920") || !strings.Contains(joined, "crop=1080:1920") {
		t.Errorf("expected portrait scale+crop: %s", joined)
	}
	if !strings.Contains(joined, "-c:v libx264") || !strings.Contains(joined, "-shortest") {
		t.Errorf("expected encoder flags: %s", joined)
	}
	if args[len(args)-1] != "/tmp/out.mp4" {
		t.Errorf("expected output path last, got %s", args[len(args)-1])
	}
}

func TestTextFilterEscapes(t *testing.T) {
	c := testCompositor()
	filter := c.textFilter("Psalm 23:4", "the LORD's anointed")

	if !strings.Contains(filter, `Psalm 23\:4`) {
		t.Errorf("expected escaped colon in reference: %s", filter)
	}
	if !strings.Contains(filter, `LORD\'s`) {
		t.Errorf("expected escaped apostrophe: %s", filter)
	}
	if !strings.Contains(filter, "fontsize=48") {
		t.Errorf("expected configured verse font size: %s", filter)
	}
}

func TestTextFilterTruncatesLongVerse(t *testing.T) {
	c := testCompositor()
	long := strings.Repeat("abcde ", 40)
	filter := c.textFilter("Psalm 119:1", long)
	if !strings.Contains(filter, "...") {
		t.Error("expected long verse text shortened with ellipsis")
	}
}

func TestEscapeDrawtext(t *testing.T) {
	got := escapeDrawtext(`a:b'c\d`)
	if got != `a\:b\'c\\d` {
		t.Errorf("unexpected escape: %s", got)
	}
}
