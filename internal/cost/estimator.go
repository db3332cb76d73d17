// Package cost provides non-binding dollar estimates for extraction runs
// and converts recorded token usage into spend.
package cost

import (
	"github.com/yabrams/precon-demo-sub001/internal/model"
)

// Modeled per-pass input multipliers relative to the document token cost.
// Review and validation passes resend the documents plus accumulated state,
// so they cost more than the initial extraction.
var passInputMultipliers = map[model.PassPurpose]float64{
	model.PurposeExtract:       1.0,
	model.PurposeReview:        1.15,
	model.PurposeDeepDive:      1.15,
	model.PurposeCrossValidate: 1.25,
	model.PurposeFinalValidate: 1.25,
}

const (
	avgTokensPerPage = 1800.0

	// Output is a small fraction of input for document extraction.
	outputRatio = 0.12

	// Blended per-million-token rates across the models in use. These are
	// estimates for budgeting, not billing.
	inputUSDPerMTok  = 3.0
	outputUSDPerMTok = 15.0
)

// PassSequence returns the pass purposes a profile runs, in order.
func PassSequence(profile model.PipelineProfile) []model.PassPurpose {
	if profile == model.ProfileComprehensive {
		return []model.PassPurpose{
			model.PurposeExtract,
			model.PurposeReview,
			model.PurposeDeepDive,
			model.PurposeCrossValidate,
			model.PurposeFinalValidate,
		}
	}
	return []model.PassPurpose{
		model.PurposeExtract,
		model.PurposeReview,
		model.PurposeFinalValidate,
	}
}

// Estimate is the pre-run cost projection returned to callers.
type Estimate struct {
	PageCount       int     `json:"page_count"`
	Passes          int     `json:"passes"`
	EstimatedTokens int     `json:"estimated_tokens"`
	EstimatedUSD    float64 `json:"estimated_usd"`
}

// EstimateRun projects the cost of extracting pageCount pages under the
// given profile. The projection grows with page count; it never decreases
// when more pages are added.
func EstimateRun(pageCount int, profile model.PipelineProfile) Estimate {
	if pageCount < 0 {
		pageCount = 0
	}

	docTokens := float64(pageCount) * avgTokensPerPage

	var inputTokens, outputTokens float64
	sequence := PassSequence(profile)
	for _, purpose := range sequence {
		in := docTokens * passInputMultipliers[purpose]
		inputTokens += in
		outputTokens += in * outputRatio
	}

	return Estimate{
		PageCount:       pageCount,
		Passes:          len(sequence),
		EstimatedTokens: int(inputTokens + outputTokens),
		EstimatedUSD:    UsageUSD(model.TokenUsage{
			InputTokens:  int(inputTokens),
			OutputTokens: int(outputTokens),
		}),
	}
}

// UsageUSD converts recorded token usage into dollars at the blended rates.
func UsageUSD(usage model.TokenUsage) float64 {
	return float64(usage.InputTokens)/1e6*inputUSDPerMTok +
		float64(usage.OutputTokens)/1e6*outputUSDPerMTok
}
