package model

import "time"

// PassPurpose identifies what a pipeline pass asks the model to do.
type PassPurpose string

const (
	PurposeExtract       PassPurpose = "extract"
	PurposeReview        PassPurpose = "review"
	PurposeDeepDive      PassPurpose = "deep_dive"
	PurposeCrossValidate PassPurpose = "cross_validate"
	PurposeFinalValidate PassPurpose = "final_validate"
)

// TokenUsage accumulates model token counts for cost accounting.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// ExtractionPass is an immutable record of one pipeline step, appended to
// the session after the step finishes. A failed pass keeps its error here;
// only a pass-1 failure aborts the run.
type ExtractionPass struct {
	Number            int         `json:"number"`
	Model             string      `json:"model"`
	Purpose           PassPurpose `json:"purpose"`
	StartedAt         time.Time   `json:"started_at"`
	CompletedAt       time.Time   `json:"completed_at"`
	ItemsAdded        int         `json:"items_added"`
	ItemsModified     int         `json:"items_modified"`
	ObservationsAdded int         `json:"observations_added"`
	Usage             TokenUsage  `json:"usage"`
	Error             *string     `json:"error,omitempty"`
}
