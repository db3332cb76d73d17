package dto

import "github.com/yabrams/precon-demo-sub001/internal/model"

type DocumentRequest struct {
	Name     string `json:"name" binding:"required"`
	Type     string `json:"type,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Path     string `json:"path,omitempty"`
	URL      string `json:"url,omitempty"`
}

type StartExtractionRequest struct {
	Documents []DocumentRequest `json:"documents" binding:"required,min=1"`
	Profile   string            `json:"profile,omitempty"`

	DedupThreshold     float64 `json:"dedup_threshold,omitempty"`
	MaxBatchTokens     int     `json:"max_batch_tokens,omitempty"`
	LargeDocumentPages int     `json:"large_document_pages,omitempty"`
	BatchConcurrency   int     `json:"batch_concurrency,omitempty"`
}

type StartExtractionResponse struct {
	SessionID int64  `json:"session_id"`
	ProjectID string `json:"project_id"`
	Status    string `json:"status"`
	Enqueued  bool   `json:"enqueued"`
}

type SessionResponse struct {
	SessionID     int64                        `json:"session_id"`
	ProjectID     string                       `json:"project_id"`
	Status        string                       `json:"status"`
	Progress      int                          `json:"progress"`
	CurrentPass   int                          `json:"current_pass"`
	TotalPasses   int                          `json:"total_passes"`
	StatusMessage string                       `json:"status_message,omitempty"`
	Error         *string                      `json:"error,omitempty"`
	WorkPackages  []model.ExtractedWorkPackage `json:"work_packages,omitempty"`
	Observations  []model.AIObservation        `json:"observations,omitempty"`
	Passes        []model.ExtractionPass       `json:"passes,omitempty"`
	CreatedAt     string                       `json:"created_at"`
	CompletedAt   *string                      `json:"completed_at,omitempty"`
}

type EstimateRequest struct {
	PageCount int    `json:"page_count" binding:"required,min=1"`
	Profile   string `json:"profile,omitempty"`
}

type EstimateResponse struct {
	PageCount       int     `json:"page_count"`
	Passes          int     `json:"passes"`
	EstimatedTokens int     `json:"estimated_tokens"`
	EstimatedUSD    float64 `json:"estimated_usd"`
}
