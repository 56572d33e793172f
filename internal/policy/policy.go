// Package policy holds the pure content and publish gates. Nothing here
// touches the database or the network, so every rule is table-testable.
package policy

import (
	"fmt"
	"strings"
	"time"
)

// Violation kinds for the language policy.
const (
	KindProsperity = "prosperity"
	KindFearGuilt  = "fear_guilt"
)

// Violation identifies the first blocked phrase found in a text.
type Violation struct {
	Kind   string
	Phrase string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("language policy violation (%s): %q", v.Kind, v.Phrase)
}

// BlockedPhrase is one row of the data-driven pattern table.
type BlockedPhrase struct {
	Phrase string
	Kind   string
}

// Built-in block list. Config can extend it but never remove entries;
// the template fallback prayer must always pass this table.
var builtinPhrases = []BlockedPhrase{
	{"claim your blessing", KindProsperity},
	{"name it and claim it", KindProsperity},
	{"financial prosperity", KindProsperity},
	{"financial breakthrough", KindProsperity},
	{"money will come", KindProsperity},
	{"wealth is coming", KindProsperity},
	{"sow a seed", KindProsperity},
	{"god will make you rich", KindProsperity},
	{"guaranteed healing", KindProsperity},
	{"god is punishing you", KindFearGuilt},
	{"or god will", KindFearGuilt},
	{"you will be cursed", KindFearGuilt},
	{"your suffering is your fault", KindFearGuilt},
	{"not praying hard enough", KindFearGuilt},
	{"lack of faith caused", KindFearGuilt},
	{"ignore this prayer and", KindFearGuilt},
}

// Checker scans text against the built-in block list plus any configured
// extra phrases.
type Checker struct {
	phrases []BlockedPhrase
}

// NewChecker builds a checker from the built-in table extended with extra
// phrases. Phrases are matched case-insensitively as substrings.
func NewChecker(extra []BlockedPhrase) *Checker {
	phrases := make([]BlockedPhrase, 0, len(builtinPhrases)+len(extra))
	phrases = append(phrases, builtinPhrases...)
	for _, p := range extra {
		kind := p.Kind
		if kind != KindProsperity && kind != KindFearGuilt {
			kind = KindProsperity
		}
		phrases = append(phrases, BlockedPhrase{Phrase: p.Phrase, Kind: kind})
	}
	return &Checker{phrases: phrases}
}

// CheckLanguagePolicy returns the first violation found in text, or nil.
// Matching is case-insensitive and order follows the pattern table, so the
// result is deterministic for a given text.
func (c *Checker) CheckLanguagePolicy(text string) *Violation {
	lowered := strings.ToLower(text)
	for _, p := range c.phrases {
		if p.Phrase == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(p.Phrase)) {
			return &Violation{Kind: p.Kind, Phrase: p.Phrase}
		}
	}
	return nil
}

// PublishGate is the safety snapshot CanPublishNow evaluates. The caller
// loads it from storage before each publish attempt.
type PublishGate struct {
	AutoPaused     bool
	LastPublishAt  time.Time // zero means never published
	PublishedToday int
}

// CanPublishNow evaluates the global publish gate. It returns false with a
// human-readable reason on the first rule that blocks, checked in order:
// auto-pause, minimum interval, daily cap.
func CanPublishNow(gate PublishGate, now time.Time, minInterval time.Duration, maxPerDay int) (bool, string) {
	if gate.AutoPaused {
		return false, "publishing is auto-paused; run 'prayloop unpause' after investigating failures"
	}
	if !gate.LastPublishAt.IsZero() {
		elapsed := now.Sub(gate.LastPublishAt)
		if elapsed < minInterval {
			return false, fmt.Sprintf("last publish was %s ago; minimum interval is %s", elapsed.Round(time.Minute), minInterval)
		}
	}
	if gate.PublishedToday >= maxPerDay {
		return false, fmt.Sprintf("daily cap reached (%d/%d)", gate.PublishedToday, maxPerDay)
	}
	return true, ""
}

// VerifyVerseAccuracy reports whether the verse text a unit carries matches
// the canonical text byte for byte. Scripture is never auto-corrected; a
// mismatch must fail the unit.
func VerifyVerseAccuracy(text, canonical string) bool {
	return text == canonical
}
