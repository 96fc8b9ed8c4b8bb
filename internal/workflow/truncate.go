package workflow

// TruncateConfig bounds intermediate LLM outputs so decomposition and
// synthesis prompts stay small (spec §4.8). Per the Open Question in
// spec §9, think-strip runs first (already applied by the LLM Adaptor
// before workflow.Engine ever sees the text) and truncation runs second,
// so the cap is spent entirely on substantive answer text.
type TruncateConfig struct {
	// SnippetChars caps a single intermediate output (default 150).
	SnippetChars int
	// AggregateChars caps the running total across a workflow instance's
	// intermediate outputs (default 2500).
	AggregateChars int
}

func sanitizeTruncateConfig(cfg TruncateConfig) TruncateConfig {
	if cfg.SnippetChars <= 0 {
		cfg.SnippetChars = 150
	}
	if cfg.AggregateChars <= 0 {
		cfg.AggregateChars = 2500
	}
	return cfg
}

// budget tracks the aggregate cap as it's spent across one workflow
// instance's intermediate (non-synthesize) step outputs.
type budget struct {
	cfg   TruncateConfig
	spent int
}

func newBudget(cfg TruncateConfig) *budget {
	return &budget{cfg: sanitizeTruncateConfig(cfg)}
}

// truncate applies the per-snippet cap, then the remaining aggregate
// budget, to one intermediate output. The final synthesize step's output
// is never passed through truncate (spec §4.8: "The final user-visible
// synthesize step is not truncated").
func (b *budget) truncate(s string) string {
	if len(s) > b.cfg.SnippetChars {
		s = s[:b.cfg.SnippetChars]
	}
	remaining := b.cfg.AggregateChars - b.spent
	if remaining <= 0 {
		return ""
	}
	if len(s) > remaining {
		s = s[:remaining]
	}
	b.spent += len(s)
	return s
}
