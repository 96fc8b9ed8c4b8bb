package llm

import (
	"regexp"
	"strings"
)

// RecognizedThinkTags is the set of reasoning-tag names a provider may wrap
// chain-of-thought content in. Kept short and configurable per spec §9
// ("Hedging phrase set" design note applies the same "small, named,
// configurable set" strategy here).
var RecognizedThinkTags = []string{"think", "reflection", "reasoning"}

// thinkPipeline holds the precompiled patterns for one recognized tag name.
type thinkPipeline struct {
	complete    *regexp.Regexp // complete pair, including content
	openNoClose *regexp.Regexp // opened, never closed, through end of output
}

var (
	thinkPipelines  = buildThinkPipelines(RecognizedThinkTags)
	danglingPattern = regexp.MustCompile(`</?[a-zA-Z]*$`)
)

func buildThinkPipelines(tags []string) []thinkPipeline {
	pipelines := make([]thinkPipeline, 0, len(tags))
	for _, tag := range tags {
		pipelines = append(pipelines, thinkPipeline{
			complete:    regexp.MustCompile(`(?is)<` + tag + `>.*?</` + tag + `>`),
			openNoClose: regexp.MustCompile(`(?is)<` + tag + `>.*$`),
		})
	}
	return pipelines
}

// StripThinkTags removes provider-emitted reasoning content wrapped in a
// recognized tag pair from text, applying the three ordered rules from
// spec §4.1: complete pairs first, then any unclosed open tag through end
// of output, then any dangling partial tag fragment at the end of output.
// It returns the cleaned text, the estimated think-token count (the
// number of characters excised), and the name of the first recognized tag
// that matched (empty if none did).
//
// Applying StripThinkTags to its own output is a no-op: once complete
// pairs, unclosed opens, and dangling fragments have all been removed,
// none of the three rules has anything left to match.
func StripThinkTags(text string) (cleaned string, thinkTokens int, tagDetected string) {
	cleaned = text
	for i, p := range thinkPipelines {
		before := len(cleaned)
		cleaned = p.complete.ReplaceAllString(cleaned, "")
		if before != len(cleaned) && tagDetected == "" {
			tagDetected = RecognizedThinkTags[i]
		}
	}
	for i, p := range thinkPipelines {
		before := len(cleaned)
		cleaned = p.openNoClose.ReplaceAllString(cleaned, "")
		if before != len(cleaned) && tagDetected == "" {
			tagDetected = RecognizedThinkTags[i]
		}
	}
	for {
		loc := danglingPattern.FindStringIndex(cleaned)
		if loc == nil {
			break
		}
		fragment := strings.ToLower(strings.TrimLeft(cleaned[loc[0]:loc[1]], "</"))
		if !isRecognizedPrefix(fragment) {
			break
		}
		cleaned = cleaned[:loc[0]]
		if tagDetected == "" {
			tagDetected = fragment
		}
	}
	thinkTokens = len(text) - len(cleaned)
	return cleaned, thinkTokens, tagDetected
}

// isRecognizedPrefix reports whether fragment is a (possibly empty) prefix
// of a recognized tag name, i.e. a genuinely dangling partial tag rather
// than unrelated "<" text.
func isRecognizedPrefix(fragment string) bool {
	for _, tag := range RecognizedThinkTags {
		if strings.HasPrefix(tag, fragment) {
			return true
		}
	}
	return false
}
