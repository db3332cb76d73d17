package model

import "time"

// PipelineProfile selects how many passes an extraction run performs.
type PipelineProfile string

const (
	// ProfileStandard runs extract, review, and one validation pass.
	ProfileStandard PipelineProfile = "standard"
	// ProfileComprehensive adds a trade deep-dive and a final validation pass.
	ProfileComprehensive PipelineProfile = "comprehensive"
)

// Passes returns the number of passes for the profile.
func (p PipelineProfile) Passes() int {
	if p == ProfileComprehensive {
		return 5
	}
	return 3
}

// ExtractionConfig carries per-run tunables. Zero values are replaced by
// defaults via Normalized; the config is read-only for the lifetime of a run.
type ExtractionConfig struct {
	Profile PipelineProfile `json:"profile"`

	// DedupThreshold is the character-overlap ratio above which two line
	// items from different batches are considered duplicates. Carried over
	// from the source system; no ground-truth tuning data exists, so it is
	// configurable rather than fixed.
	DedupThreshold float64 `json:"dedup_threshold,omitempty"`

	// MaxBatchTokens bounds the estimated token cost of one batch in
	// large-document mode.
	MaxBatchTokens int `json:"max_batch_tokens,omitempty"`

	// LargeDocumentPages is the rendered page count at or above which the
	// run switches to classified, batched extraction.
	LargeDocumentPages int `json:"large_document_pages,omitempty"`

	// PassTimeout bounds a single model call. A timeout is retryable except
	// during pass 1, where exhaustion of retries fails the run.
	PassTimeout time.Duration `json:"pass_timeout,omitempty"`

	// BatchConcurrency bounds parallel batch dispatch in large-document mode.
	BatchConcurrency int `json:"batch_concurrency,omitempty"`
}

const (
	DefaultDedupThreshold     = 0.8
	DefaultMaxBatchTokens     = 60000
	DefaultLargeDocumentPages = 20
	DefaultPassTimeout        = 5 * time.Minute
	DefaultBatchConcurrency   = 3
)

// Normalized returns a copy with defaults applied to unset fields.
func (c ExtractionConfig) Normalized() ExtractionConfig {
	if c.Profile == "" {
		c.Profile = ProfileStandard
	}
	if c.DedupThreshold <= 0 || c.DedupThreshold > 1 {
		c.DedupThreshold = DefaultDedupThreshold
	}
	if c.MaxBatchTokens <= 0 {
		c.MaxBatchTokens = DefaultMaxBatchTokens
	}
	if c.LargeDocumentPages <= 0 {
		c.LargeDocumentPages = DefaultLargeDocumentPages
	}
	if c.PassTimeout <= 0 {
		c.PassTimeout = DefaultPassTimeout
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = DefaultBatchConcurrency
	}
	return c
}
