// Package prayer turns a theme+verse selection into prayer text, either via
// an LLM provider or a deterministic template fallback. The generator never
// truncates text and never returns content that fails the language policy.
package prayer

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/prayloop/prayloop/internal/database"
	"github.com/prayloop/prayloop/internal/llm"
	"github.com/prayloop/prayloop/internal/policy"
)

// Result is the outcome of one generation: the accepted text and how it was
// produced. Model is empty when the template fallback was used.
type Result struct {
	Text      string
	WordCount int
	Model     string
	Fallback  bool
}

// Options carries the word-count window and retry budget.
type Options struct {
	MinWords   int
	MaxWords   int
	Target     int
	MaxRetries int // transient LLM retries per call
	MaxTokens  int
}

type Generator struct {
	provider llm.Provider // nil means template-only
	checker  *policy.Checker
	opts     Options
}

func NewGenerator(provider llm.Provider, checker *policy.Checker, opts Options) *Generator {
	return &Generator{provider: provider, checker: checker, opts: opts}
}

// Generate produces prayer text for a theme+verse pair. The ladder:
//
//  1. LLM with the standard prompt (transient errors retried).
//  2. On a policy violation, one retry with a stricter prompt.
//  3. On a word count outside the window, one regeneration.
//  4. Template fallback, which always passes both checks.
//
// The returned text is guaranteed policy-clean and inside the word window.
func (g *Generator) Generate(ctx context.Context, theme *database.Theme, verse *database.Verse) (*Result, error) {
	if g.provider == nil {
		return g.fallback(theme, verse, "no LLM provider configured"), nil
	}

	system := g.systemPrompt(theme, false)
	user := g.userPrompt(theme, verse)

	text, err := g.callWithRetries(ctx, system, user)
	if err != nil {
		if llm.IsPolicy(err) {
			return g.retryStricter(ctx, theme, verse, user)
		}
		return g.fallback(theme, verse, err.Error()), nil
	}

	if v := g.checker.CheckLanguagePolicy(text); v != nil {
		log.Printf("Prayer for %s flagged (%s: %q), retrying with stricter prompt", verse.Reference, v.Kind, v.Phrase)
		return g.retryStricter(ctx, theme, verse, user)
	}

	if !g.inWindow(text) {
		log.Printf("Prayer for %s has %d words (want %d-%d), regenerating",
			verse.Reference, WordCount(text), g.opts.MinWords, g.opts.MaxWords)
		regen, err := g.callWithRetries(ctx, system, user)
		if err == nil && g.checker.CheckLanguagePolicy(regen) == nil && g.inWindow(regen) {
			return g.accept(regen), nil
		}
		return g.fallback(theme, verse, "word count out of range after regeneration"), nil
	}

	return g.accept(text), nil
}

// retryStricter is the single policy-violation retry. Any further problem
// falls through to the template.
func (g *Generator) retryStricter(ctx context.Context, theme *database.Theme, verse *database.Verse, user string) (*Result, error) {
	text, err := g.callWithRetries(ctx, g.systemPrompt(theme, true), user)
	if err != nil {
		return g.fallback(theme, verse, err.Error()), nil
	}
	if v := g.checker.CheckLanguagePolicy(text); v != nil {
		return g.fallback(theme, verse, fmt.Sprintf("still flagged after stricter prompt (%s)", v.Kind)), nil
	}
	if !g.inWindow(text) {
		return g.fallback(theme, verse, "word count out of range on stricter retry"), nil
	}
	return g.accept(text), nil
}

// callWithRetries invokes the provider, retrying transient failures only.
func (g *Generator) callWithRetries(ctx context.Context, system, user string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= g.opts.MaxRetries; attempt++ {
		text, err := g.provider.Generate(ctx, system, user, g.opts.MaxTokens)
		if err == nil {
			return llm.CleanResponse(text), nil
		}
		lastErr = err
		if !llm.IsTransient(err) {
			return "", err
		}
		log.Printf("LLM call failed (attempt %d/%d): %v", attempt+1, g.opts.MaxRetries+1, err)
	}
	return "", lastErr
}

func (g *Generator) accept(text string) *Result {
	return &Result{Text: text, WordCount: WordCount(text), Model: g.provider.Name()}
}

func (g *Generator) fallback(theme *database.Theme, verse *database.Verse, reason string) *Result {
	log.Printf("Falling back to template prayer for %s: %s", verse.Reference, reason)
	text := FallbackPrayer(verse.Reference, theme.Name, theme.Tone)
	return &Result{Text: text, WordCount: WordCount(text), Fallback: true}
}

func (g *Generator) inWindow(text string) bool {
	n := WordCount(text)
	return n >= g.opts.MinWords && n <= g.opts.MaxWords
}

func (g *Generator) systemPrompt(theme *database.Theme, stricter bool) string {
	var b strings.Builder
	b.WriteString("You are a prayer writer for a daily short-video series aimed at Christians aged 45 and older. ")
	b.WriteString("Your prayers should feel personal, conversational, and spoken directly to God.\n\n")
	b.WriteString("RULES:\n")
	fmt.Fprintf(&b, "- Write about %d words (hard limit: %d-%d).\n", g.opts.Target, g.opts.MinWords, g.opts.MaxWords)
	b.WriteString("- Use second-person address to God (\"Father\", \"Lord\", \"God\").\n")
	fmt.Fprintf(&b, "- Match the theme %q and the tone %q.\n", theme.Name, theme.Tone)
	b.WriteString("- Never use prosperity-gospel language (\"claim your blessing\", \"name it and claim it\", etc.).\n")
	b.WriteString("- Never promise physical healing or financial gain.\n")
	b.WriteString("- Never use fear or guilt to pressure the listener.\n")
	b.WriteString("- Be honest about struggle while pointing to hope.\n")
	b.WriteString("- End with a brief, humble closing (\"In Jesus' name, Amen\" or similar).\n")
	b.WriteString("- Naturally weave the Bible verse reference into the prayer. Do not quote the full verse text word-for-word.\n")
	b.WriteString("- Output ONLY the prayer text, no titles or labels.")
	if stricter {
		b.WriteString("\n\nIMPORTANT: your previous attempt violated the language rules above. ")
		b.WriteString("Avoid any phrasing that promises material reward, healing, or outcomes, ")
		b.WriteString("and any phrasing that blames or frightens the listener. Plain, humble language only.")
	}
	return b.String()
}

func (g *Generator) userPrompt(theme *database.Theme, verse *database.Verse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Theme: %s\n", theme.Name)
	fmt.Fprintf(&b, "Tone: %s\n", theme.Tone)
	fmt.Fprintf(&b, "Verse: %s — %q\n\n", verse.Reference, verse.Text)
	if theme.Hook != nil && *theme.Hook != "" {
		fmt.Fprintf(&b, "Hook question for this video: %s\n", *theme.Hook)
		b.WriteString("Write the prayer to speak to someone who would answer 'yes' to this question.\n\n")
	}
	fmt.Fprintf(&b, "Write a %d-word prayer inspired by this verse for the theme above.", g.opts.Target)
	return b.String()
}
