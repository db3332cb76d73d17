// Package prompts holds the versioned instruction templates sent to the
// document-understanding models. Templates are deterministic: the same
// inputs always produce the same prompt text.
package prompts

import (
	"fmt"
	"strings"
)

// Version is bumped whenever template wording changes, so pass records and
// evals can be compared across prompt revisions.
const Version = "v1"

const System = `You are a preconstruction estimator analyzing construction documents
(drawings, schedules, specifications) to extract trade work packages and
scope-of-work line items. Always respond with a single JSON object matching
the schema you are given. Do not include any prose outside the JSON.`

func schemaSection(schemaJSON string) string {
	return fmt.Sprintf("Respond with JSON matching this schema exactly:\n```json\n%s\n```", schemaJSON)
}

// Extract is the pass-1 instruction: over-inclusive initial extraction.
func Extract(schemaJSON string) string {
	return strings.Join([]string{
		"Analyze every attached document and extract ALL visible scope items,",
		"grouped into trade work packages with CSI division classifications.",
		"Err on the side of over-inclusion: capture every piece of equipment,",
		"every count against a schedule, every keynote that implies work.",
		"Use null for quantities that are not visible in the source; never guess a number.",
		"",
		schemaSection(schemaJSON),
	}, "\n")
}

// Review is the pass-2 instruction: find omissions against the first pass.
func Review(schemaJSON string) string {
	return strings.Join([]string{
		"The prior extraction state is included above. Re-examine the documents",
		"and find what the first pass missed: counts against equipment and",
		"fixture schedules, demolition notes, \"by others\" and \"NIC\" callouts,",
		"alternates, and keynoted scope. Propose additions targeted at existing",
		"package ids, modifications to existing items, or whole new packages",
		"when a trade was missed entirely.",
		"",
		schemaSection(schemaJSON),
	}, "\n")
}

// DeepDive is the pass-3 instruction, focused on trades already identified.
func DeepDive(trades []string, schemaJSON string) string {
	return strings.Join([]string{
		fmt.Sprintf("Focus only on these trades: %s.", strings.Join(trades, ", ")),
		"For each, check trade-specific completeness: accessories, hangers and",
		"supports, testing and commissioning, startup, controls interfaces,",
		"access panels, and closeout requirements. Propose targeted additions",
		"and modifications; do not restate items that are already captured.",
		"",
		schemaSection(schemaJSON),
	}, "\n")
}

// CrossValidate is the pass-4 instruction. The validating model scores
// confidence and raises observations; it must not add line items.
func CrossValidate(schemaJSON string) string {
	return strings.Join([]string{
		"You are validating an extraction produced by another model (included",
		"above). Score each work package's confidence across: data completeness,",
		"source clarity, cross-reference match, specification match, and",
		"quantity reasonableness. Raise observations for risks, conflicts,",
		"coordination needs, and missing information. Do NOT propose new line",
		"items; only confidence scores, flags, and observations.",
		"",
		schemaSection(schemaJSON),
	}, "\n")
}

// FinalValidate is the pass-5 instruction, run with the accumulated
// observation log as context.
func FinalValidate(schemaJSON string) string {
	return strings.Join([]string{
		"This is the final quality pass. The full extraction state and the",
		"accumulated observation log are included above. Confirm overall",
		"completeness and surface any remaining risks, coordination needs, or",
		"missing information not already logged. Confidence updates and",
		"observations only; no new line items.",
		"",
		schemaSection(schemaJSON),
	}, "\n")
}

// BatchExtract scopes the pass-1 instruction to one trade in
// large-document mode.
func BatchExtract(trade string, divisionCodes []string, schemaJSON string) string {
	scope := fmt.Sprintf("These pages belong to the %s trade", trade)
	if len(divisionCodes) > 0 {
		scope += fmt.Sprintf(" (CSI divisions %s)", strings.Join(divisionCodes, ", "))
	}
	return strings.Join([]string{
		scope + ".",
		"Extract ALL visible scope items for this trade only, grouped into work",
		"packages with CSI division classifications. Err on the side of",
		"over-inclusion. Use null for quantities that are not visible; never",
		"guess a number. Ignore work that clearly belongs to other trades.",
		"",
		schemaSection(schemaJSON),
	}, "\n")
}
