package model

import "time"

// RenderedPage is one page produced by the external page renderer: an image
// for vision extraction plus best-effort extracted text and sheet number.
type RenderedPage struct {
	Number          int    `json:"number"`
	Image           []byte `json:"-"`
	ImageMimeType   string `json:"image_mime_type,omitempty"`
	Text            string `json:"text,omitempty"`
	SheetNumber     string `json:"sheet_number,omitempty"`
	Width           int    `json:"width,omitempty"`
	Height          int    `json:"height,omitempty"`
	EstimatedTokens int    `json:"estimated_tokens,omitempty"`
}

// PageType describes what kind of sheet a page is, independent of its trade.
type PageType string

const (
	PageTypeCover         PageType = "cover"
	PageTypeIndex         PageType = "index"
	PageTypePlan          PageType = "plan"
	PageTypeSchedule      PageType = "schedule"
	PageTypeDetail        PageType = "detail"
	PageTypeSection       PageType = "section"
	PageTypeElevation     PageType = "elevation"
	PageTypeSpecification PageType = "specification"
	PageTypeDiagram       PageType = "diagram"
	PageTypeLegend        PageType = "legend"
	PageTypeGeneralNotes  PageType = "general_notes"
)

// ClassificationMethod records how a page was assigned its trade, for audit.
type ClassificationMethod string

const (
	MethodPattern ClassificationMethod = "pattern"
	MethodKeyword ClassificationMethod = "keyword"
	MethodDefault ClassificationMethod = "default"
)

// ClassifiedPage is a rendered page with its trade assignment.
type ClassifiedPage struct {
	Page         RenderedPage         `json:"page"`
	Trade        string               `json:"trade"`
	DivisionCode string               `json:"division_code"`
	PageType     PageType             `json:"page_type"`
	Confidence   float64              `json:"confidence"`
	Method       ClassificationMethod `json:"method"`
}

type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// BatchResults holds the independent output of one batch before merging.
type BatchResults struct {
	WorkPackages []ExtractedWorkPackage `json:"work_packages"`
	Observations []AIObservation        `json:"observations"`
	Usage        TokenUsage             `json:"usage"`
	CostUSD      float64                `json:"cost_usd"`
	Duration     time.Duration          `json:"duration"`
}

// ExtractionBatch is a trade-scoped, token-bounded unit of work in
// large-document mode. Batches carry no cross-batch state and may be
// processed in any order, concurrently.
type ExtractionBatch struct {
	ID              string           `json:"id"`
	Trade           string           `json:"trade"`
	DivisionCodes   []string         `json:"division_codes"`
	Pages           []ClassifiedPage `json:"pages"`
	EstimatedTokens int              `json:"estimated_tokens"`
	Status          BatchStatus      `json:"status"`
	Error           *string          `json:"error,omitempty"`
	Results         *BatchResults    `json:"results,omitempty"`
}
