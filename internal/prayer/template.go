package prayer

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	refRange  = regexp.MustCompile(`^(.+?)\s+(\d+):(\d+)-(\d+)$`)
	refSingle = regexp.MustCompile(`^(.+?)\s+(\d+):(\d+)$`)
)

// TTSFriendlyReference converts a verse reference into words a voice can
// read naturally:
//
//	"Psalm 91:9-11" -> "Psalm chapter 91, verses 9 through 11"
//	"John 3:16"     -> "John chapter 3, verse 16"
//
// Unrecognized references pass through unchanged.
func TTSFriendlyReference(ref string) string {
	if m := refRange.FindStringSubmatch(ref); m != nil {
		return fmt.Sprintf("%s chapter %s, verses %s through %s", m[1], m[2], m[3], m[4])
	}
	if m := refSingle.FindStringSubmatch(ref); m != nil {
		return fmt.Sprintf("%s chapter %s, verse %s", m[1], m[2], m[3])
	}
	return ref
}

// FallbackPrayer renders the deterministic template used when the LLM is
// unavailable or its output is rejected. The fixed text plus the variable
// slots always lands inside the configured word-count window, and it
// contains nothing the language policy blocks.
func FallbackPrayer(reference, themeName, tone string) string {
	ref := TTSFriendlyReference(reference)
	name := strings.ToLower(themeName)
	if name == "" {
		name = "faith"
	}
	if tone == "" {
		tone = "comforting"
	}

	return fmt.Sprintf(
		"Heavenly Father, we come before You today with hearts open to Your word. "+
			"As we reflect on %s, we are reminded of Your steadfast faithfulness. "+
			"Lord, in this season of %s, shape in us a spirit that is %s. "+
			"Help us to trust Your plan even when the road ahead is unclear. "+
			"Strengthen us to face each day with courage and with grace. "+
			"Remind us that we are never alone, for You walk beside us always. "+
			"Fill our hearts with the peace that passes all understanding. "+
			"May our words and actions carry Your love to those around us. "+
			"We lay down our worries, our fears, and our doubts before You now. "+
			"Replace them with hope and with the quiet assurance of Your promises. "+
			"Thank You, Father, for Your mercy that is new every morning. "+
			"We love You, and we trust You with all that lies ahead. "+
			"In Jesus' name, Amen.",
		ref, name, tone,
	)
}

// WordCount counts whitespace-separated words, matching how the word-count
// window is enforced everywhere else.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
