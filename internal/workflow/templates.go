package workflow

// Built-in Workflow Definitions (spec §6 "Workflow definitions provided by
// the implementation"). All three are four steps long. Research & Compare
// and Deep Research share one shape: an initial search, a decomposition
// step producing a JSON array of follow-up queries, a loop over that
// array, and a final synthesis. Fact Check instead extracts the claim
// into two query lists up front and runs two independent search loops —
// supporting evidence and counter-evidence — before its synthesis, since
// the spec calls for those as separate steps rather than one combined
// search pass.

// searchToolName names the one concrete search tool the bundled
// templates bind to; see internal/tools/websearch.
const searchToolName = "web_search"

// ResearchCompare is triggered by comparative questions ("compare",
// "top N", "versus", "market cap", "which is better", "pros and cons").
func ResearchCompare() Definition {
	return Definition{
		ID:          "research_compare",
		Name:        "Research & Compare",
		Description: "Looks up a ranking, decomposes it into per-entity queries, and synthesizes a comparison.",
		TriggerPatterns: []string{
			`compare`, `top \d+`, `versus`, `\bvs\.?\b`, `market cap`,
			`which is better`, `pros and cons`,
		},
		Steps: []Step{
			{
				Kind:      KindLLM,
				StateID:   "initial_lookup",
				Narration: "Looking up an initial ranking",
				TimeoutSecs: 20,
				Prompt:    "The user asked: \"{query}\". Search the web and produce a short ranked list answering it.",
				ToolBinding: searchToolName,
				OutputKey:   "initial_ranking",
				Next:        "decompose",
			},
			{
				Kind:      KindLLM,
				StateID:   "decompose",
				Narration: "Breaking the comparison into per-item questions",
				TimeoutSecs: 15,
				Prompt:    "Given this initial ranking:\n{initial_ranking}\n\nFor the original question \"{query}\", produce a JSON array of short, specific search queries, one per entity mentioned in the ranking, that would gather more detail on each.",
				OutputKey: "entity_queries",
				Next:      "search_each",
			},
			{
				Kind:            KindLoop,
				StateID:         "search_each",
				Narration:       "Researching each entity",
				SourceVar:       "entity_queries",
				ItemPlaceholder: "item",
				OutputListKey:   "entity_results",
				Child: &Step{
					Kind:        KindLLM,
					StateID:     "search_each_item",
					Prompt:      "Search the web for: {item}. Summarize the single most relevant fact in one sentence.",
					ToolBinding: searchToolName,
				},
				Next: "synthesize",
			},
			{
				Kind:      KindSynthesize,
				StateID:   "synthesize",
				Narration: "Synthesizing the final comparison",
				TimeoutSecs: 20,
				Prompt:    "The user asked: \"{query}\".\n\nInitial ranking:\n{initial_ranking}\n\nPer-entity research:\n{entity_results}\n\nWrite a final, spoken-style ranked answer.",
			},
		},
	}
}

// DeepResearch is triggered by open-ended research questions ("tell me
// about", "research", "deep dive", "comprehensive", "what's happening
// with").
func DeepResearch() Definition {
	return Definition{
		ID:          "deep_research",
		Name:        "Deep Research",
		Description: "Runs a broad search, evaluates gaps, researches them, and synthesizes a comprehensive answer.",
		TriggerPatterns: []string{
			`tell me about`, `\bresearch\b`, `deep dive`, `comprehensive`,
			`what'?s happening with`,
		},
		Steps: []Step{
			{
				Kind:      KindLLM,
				StateID:   "initial_search",
				Narration: "Running a broad search",
				TimeoutSecs: 20,
				Prompt:    "The user asked: \"{query}\". Search the web broadly and summarize what you find.",
				ToolBinding: searchToolName,
				OutputKey:   "initial_summary",
				Next:        "gap_evaluation",
			},
			{
				Kind:      KindLLM,
				StateID:   "gap_evaluation",
				Narration: "Identifying gaps in the initial research",
				TimeoutSecs: 15,
				Prompt:    "Given this initial summary:\n{initial_summary}\n\nFor the original question \"{query}\", produce a JSON array of 3-5 specific follow-up search queries that would fill the most important gaps.",
				OutputKey: "followup_queries",
				Next:      "targeted_search",
			},
			{
				Kind:            KindLoop,
				StateID:         "targeted_search",
				Narration:       "Researching the gaps",
				SourceVar:       "followup_queries",
				ItemPlaceholder: "item",
				OutputListKey:   "followup_results",
				Child: &Step{
					Kind:        KindLLM,
					StateID:     "targeted_search_item",
					Prompt:      "Search the web for: {item}. Summarize the single most relevant fact in one sentence.",
					ToolBinding: searchToolName,
				},
				Next: "synthesize",
			},
			{
				Kind:      KindSynthesize,
				StateID:   "synthesize",
				Narration: "Writing the comprehensive answer",
				TimeoutSecs: 20,
				Prompt:    "The user asked: \"{query}\".\n\nInitial research:\n{initial_summary}\n\nFollow-up research:\n{followup_results}\n\nWrite a comprehensive, spoken-style answer.",
			},
		},
	}
}

// FactCheck is triggered by verification questions ("is it true", "fact
// check", "verify", "debunk").
func FactCheck() Definition {
	return Definition{
		ID:          "fact_check",
		Name:        "Fact Check",
		Description: "Extracts the claim, gathers supporting and counter evidence, and synthesizes a verdict.",
		TriggerPatterns: []string{
			`is it true`, `fact[- ]?check`, `\bverify\b`, `\bdebunk\b`,
		},
		Steps: []Step{
			{
				Kind:      KindLLM,
				StateID:   "claim_extraction",
				Narration: "Extracting the claim to check",
				TimeoutSecs: 10,
				Prompt:    "The user asked: \"{query}\". Extract the precise factual claim being asked about, then produce a single JSON object with exactly two fields: \"supporting_queries\", a JSON array of 1-2 search queries phrased to find evidence supporting the claim, and \"counter_queries\", a JSON array of 1-2 search queries phrased to find evidence against the claim. Respond with only the JSON object.",
				SpreadObjectKeys: true,
				Next:      "supporting_search",
			},
			{
				Kind:            KindLoop,
				StateID:         "supporting_search",
				Narration:       "Gathering supporting evidence",
				SourceVar:       "supporting_queries",
				ItemPlaceholder: "item",
				OutputListKey:   "supporting_results",
				Child: &Step{
					Kind:        KindLLM,
					StateID:     "supporting_search_item",
					Prompt:      "Search the web for: {item}. Summarize the single most relevant fact in one sentence, noting whether it supports the claim.",
					ToolBinding: searchToolName,
				},
				Next: "counter_search",
			},
			{
				Kind:            KindLoop,
				StateID:         "counter_search",
				Narration:       "Gathering counter-evidence",
				SourceVar:       "counter_queries",
				ItemPlaceholder: "item",
				OutputListKey:   "counter_results",
				Child: &Step{
					Kind:        KindLLM,
					StateID:     "counter_search_item",
					Prompt:      "Search the web for: {item}. Summarize the single most relevant fact in one sentence, noting whether it refutes the claim.",
					ToolBinding: searchToolName,
				},
				Next: "verdict",
			},
			{
				Kind:      KindSynthesize,
				StateID:   "verdict",
				Narration: "Delivering the verdict",
				TimeoutSecs: 15,
				Prompt:    "The user asked: \"{query}\".\n\nSupporting evidence:\n{supporting_results}\n\nCounter-evidence:\n{counter_results}\n\nDeliver a verdict: state clearly whether the claim is true, false, or partly true, and why, weighing both sides.",
			},
		},
	}
}

// BuiltinDefinitions returns the three required workflow templates in the
// trigger-priority order spec §6 lists them.
func BuiltinDefinitions() []Definition {
	return []Definition{ResearchCompare(), DeepResearch(), FactCheck()}
}
