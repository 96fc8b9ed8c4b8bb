package orchestrator

import (
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// hedgingPhrases is the bounded vocabulary of "I can't do that" phrasings
// that trigger the safety-net search (spec §4.5 step 3, §9 "Hedging
// phrase set": "Keep the set under a dozen entries and treat it as
// configurable"). Matching is substring, against normalized
// (lowercased, punctuation-trimmed, whitespace-collapsed) text.
var hedgingPhrases = []string{
	"i don't have real-time",
	"i don't have real time",
	"i don't have access to current",
	"i don't have access to up-to-date",
	"i don't have up-to-date",
	"i don't have current information",
	"i cannot browse",
	"i can't browse",
	"i'm not able to browse",
	"i do not have the ability to browse",
	"let me look that up",
	"i don't have information beyond",
}

// IsHedging reports whether text matches any recognized hedging phrase
// after normalization.
func IsHedging(text string) bool {
	normalized := normalize(text)
	for _, phrase := range hedgingPhrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}
	return false
}

// normalize lowercases text, drops a small set of punctuation, and
// collapses runs of whitespace to a single space, so phrase matching
// survives minor LLM formatting variance (an extra comma, a trailing
// "!!", a line break mid-sentence). Apostrophes and hyphens are kept, so
// "dont" does not match a phrase written "don't".
func normalize(text string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range strings.ToLower(text) {
		switch {
		case r == ',' || r == '.' || r == '!' || r == '?' || r == ';' || r == ':':
			continue
		case r == ' ' || r == '\t' || r == '\n':
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

var cooldownParser = cron.NewParser(cron.Descriptor)

// HedgingCooldown advisory-throttles the safety net across calls sharing
// one Orchestrator, parsed from an "@every 30s"-style descriptor the same
// way the donor's scheduler parses cron duration fields. Chat's own
// single-shot-per-call rule already bounds one invocation; this bounds
// how often the safety net may fire across a burst of invocations
// (e.g. a flaky provider that hedges on every turn), so a degraded
// provider can't turn every utterance into an extra search round trip.
type HedgingCooldown struct {
	schedule cron.Schedule
	mu       sync.Mutex
	until    time.Time
}

// NewHedgingCooldown parses descriptor (e.g. "@every 30s") into a
// Cooldown. An empty descriptor disables throttling: Allow always
// returns true.
func NewHedgingCooldown(descriptor string) (*HedgingCooldown, error) {
	if strings.TrimSpace(descriptor) == "" {
		return &HedgingCooldown{}, nil
	}
	sched, err := cooldownParser.Parse(descriptor)
	if err != nil {
		return nil, err
	}
	return &HedgingCooldown{schedule: sched}, nil
}

// Allow reports whether the safety net may fire at now, and if so starts
// the next cooldown window.
func (c *HedgingCooldown) Allow(now time.Time) bool {
	if c.schedule == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Before(c.until) {
		return false
	}
	c.until = c.schedule.Next(now)
	return true
}
