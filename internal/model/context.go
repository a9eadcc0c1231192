package model

// SummaryInfo describes one summary produced for a group of excluded messages.
type SummaryInfo struct {
	ChunkID             string `json:"chunk_id"`
	Summary             string `json:"summary"`
	TokenEstimateBefore int    `json:"token_estimate_before"`
	TokenEstimateAfter  int    `json:"token_estimate_after"`
}

// StrategyResult partitions a message sequence into what enters the prompt.
// Included and Excluded are both chronological.
type StrategyResult struct {
	Name      string        `json:"name"`
	Included  []Message     `json:"included"`
	Excluded  []Message     `json:"excluded"`
	Summaries []SummaryInfo `json:"summaries,omitempty"`
}

// Recalled is a vector-index hit surfaced alongside the recent window.
type Recalled struct {
	Entry           VectorEntry `json:"entry"`
	Score           float64     `json:"score"`
	EstimatedTokens int         `json:"estimated_tokens"`
}

// PromptTrace records which decisions produced a payload.
type PromptTrace struct {
	Strategy       string `json:"strategy"`
	Budget         int    `json:"budget"`
	IncludedCount  int    `json:"included"`
	ExcludedCount  int    `json:"excluded"`
	SummaryCount   int    `json:"summaries"`
	RecalledCount  int    `json:"recalled"`
	RecallQuery    string `json:"recall_query,omitempty"`
	RecallSkipped  string `json:"recall_skipped,omitempty"`
	IncludedTokens int    `json:"included_tokens"`
	SummaryTokens  int    `json:"summary_tokens"`
	RecalledTokens int    `json:"recalled_tokens"`

	// RenderTrimmed counts items dropped because the rendered prompt,
	// headings and labels included, went over budget.
	RenderTrimmed int `json:"render_trimmed,omitempty"`
}

// PromptPayload is the assembled context handed to a generation client.
type PromptPayload struct {
	PromptText       string        `json:"prompt_text"`
	IncludedMessages []Message     `json:"included_messages"`
	Summaries        []SummaryInfo `json:"summaries,omitempty"`
	Recalled         []Recalled    `json:"recalled,omitempty"`
	EstimatedTokens  int           `json:"estimated_tokens"`
	Trace            *PromptTrace  `json:"trace,omitempty"`
}
