package model

// Complexity is a coarse size estimate derived from item count.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// ComplexityForCount maps an item count onto a complexity bucket.
func ComplexityForCount(items int) Complexity {
	switch {
	case items <= 5:
		return ComplexityLow
	case items <= 15:
		return ComplexityMedium
	default:
		return ComplexityHigh
	}
}

// CSIClassification places a work package in the CSI division taxonomy.
type CSIClassification struct {
	DivisionCode string  `json:"division_code"`
	DivisionName string  `json:"division_name"`
	Section      string  `json:"section,omitempty"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning,omitempty"`
}

// ExtractionMetadata records which model produced a value and which passes
// have since touched it. Passes is append-only and ordered.
type ExtractionMetadata struct {
	ExtractedBy string  `json:"extracted_by"`
	Confidence  float64 `json:"confidence"`
	Passes      []int   `json:"passes,omitempty"`
}

// StampPass appends a pass number unless it is already the most recent entry.
func (m *ExtractionMetadata) StampPass(pass int) {
	if n := len(m.Passes); n > 0 && m.Passes[n-1] == pass {
		return
	}
	m.Passes = append(m.Passes, pass)
}

type FlagSeverity string

const (
	FlagWarning FlagSeverity = "warning"
	FlagInfo    FlagSeverity = "info"
	FlagError   FlagSeverity = "error"
)

type ConfidenceFlag struct {
	Severity FlagSeverity `json:"severity"`
	Code     string       `json:"code"`
	Message  string       `json:"message"`
}

type ConfidenceComponents struct {
	DataCompleteness       float64 `json:"data_completeness"`
	SourceClarity          float64 `json:"source_clarity"`
	CrossReferenceMatch    float64 `json:"cross_reference_match"`
	SpecificationMatch     float64 `json:"specification_match"`
	QuantityReasonableness float64 `json:"quantity_reasonableness"`
}

// ConfidenceScore is monotonically refinable: later passes overwrite Overall
// and Reasoning via Refine but flag history only grows.
type ConfidenceScore struct {
	Overall    float64              `json:"overall"`
	Components ConfidenceComponents `json:"components"`
	Reasoning  string               `json:"reasoning,omitempty"`
	Flags      []ConfidenceFlag     `json:"flags,omitempty"`
}

// Refine overwrites the overall score and reasoning and appends any new
// flags. Existing flags are never truncated.
func (c *ConfidenceScore) Refine(overall float64, reasoning string, flags []ConfidenceFlag) {
	c.Overall = overall
	if reasoning != "" {
		c.Reasoning = reasoning
	}
	c.Flags = append(c.Flags, flags...)
}

// ExtractedLineItem is one unit of scope within a work package. Quantity nil
// means "not visible in source", which is distinct from zero.
type ExtractedLineItem struct {
	ItemNumber  string             `json:"item_number,omitempty"`
	Description string             `json:"description"`
	Action      string             `json:"action,omitempty"`
	Quantity    *float64           `json:"quantity,omitempty"`
	Unit        string             `json:"unit,omitempty"`
	UnitPrice   *float64           `json:"unit_price,omitempty"`
	TotalPrice  *float64           `json:"total_price,omitempty"`
	Notes       string             `json:"notes,omitempty"`
	Position    int                `json:"position"`
	Metadata    ExtractionMetadata `json:"metadata"`
}

// ExtractedWorkPackage is a trade-scoped container of line items. PackageID
// is the caller-meaningful short code (e.g. "MEC"); merge identity is the
// (Trade, Classification.DivisionCode) pair, not PackageID.
type ExtractedWorkPackage struct {
	PackageID      string              `json:"package_id"`
	Name           string              `json:"name"`
	Classification CSIClassification   `json:"classification"`
	Trade          string              `json:"trade"`
	LineItems      []ExtractedLineItem `json:"line_items"`
	ItemCount      int                 `json:"item_count"`
	Complexity     Complexity          `json:"complexity"`
	Confidence     ConfidenceScore     `json:"confidence_score"`
	Metadata       ExtractionMetadata  `json:"metadata"`
}

// Recount refreshes the derived item count and complexity after mutation.
func (p *ExtractedWorkPackage) Recount() {
	p.ItemCount = len(p.LineItems)
	p.Complexity = ComplexityForCount(p.ItemCount)
}

// MergeKey is the identity used when combining packages across batches.
func (p *ExtractedWorkPackage) MergeKey() string {
	return p.Trade + "|" + p.Classification.DivisionCode
}
