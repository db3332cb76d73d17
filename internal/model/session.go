package model

import "time"

type SessionStatus string

const (
	StatusQueued         SessionStatus = "queued"
	StatusInitializing   SessionStatus = "initializing"
	StatusPass1Extract   SessionStatus = "pass_1_extracting"
	StatusPass2Review    SessionStatus = "pass_2_reviewing"
	StatusPass3DeepDive  SessionStatus = "pass_3_deep_dive"
	StatusPass4Validate  SessionStatus = "pass_4_validating"
	StatusPass5Final     SessionStatus = "pass_5_final"
	StatusCompleted      SessionStatus = "completed"
	StatusFailed         SessionStatus = "failed"
)

// Terminal reports whether the session can no longer change.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ExtractionSession is the root aggregate for one extraction run.
// It has a single writer: the pipeline that owns the run. Everything else
// reads snapshots from the store.
type ExtractionSession struct {
	ID            int64                  `json:"id"`
	ProjectID     string                 `json:"project_id"`
	Config        ExtractionConfig       `json:"config"`
	Documents     []ExtractionDocument   `json:"documents"`
	WorkPackages  []ExtractedWorkPackage `json:"work_packages"`
	Observations  []AIObservation        `json:"observations"`
	Passes        []ExtractionPass       `json:"passes"`
	Status        SessionStatus          `json:"status"`
	CurrentPass   int                    `json:"current_pass"`
	Progress      int                    `json:"progress"`
	StatusMessage string                 `json:"status_message,omitempty"`
	Error         *string                `json:"error,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

// ItemCount sums line items across all work packages.
func (s *ExtractionSession) ItemCount() int {
	total := 0
	for _, wp := range s.WorkPackages {
		total += len(wp.LineItems)
	}
	return total
}

// FindPackage returns the work package with the given caller-facing id,
// or nil when absent.
func (s *ExtractionSession) FindPackage(packageID string) *ExtractedWorkPackage {
	for i := range s.WorkPackages {
		if s.WorkPackages[i].PackageID == packageID {
			return &s.WorkPackages[i]
		}
	}
	return nil
}

// ProgressEvent is emitted to a registered listener on every status change
// or pass completion.
type ProgressEvent struct {
	SessionID         int64         `json:"session_id"`
	Status            SessionStatus `json:"status"`
	Progress          int           `json:"progress"`
	CurrentPass       int           `json:"current_pass"`
	TotalPasses       int           `json:"total_passes"`
	Message           string        `json:"message"`
	ItemsFound        int           `json:"items_found"`
	ObservationsFound int           `json:"observations_found"`
	Timestamp         time.Time     `json:"timestamp"`
}

// ProgressListener receives progress events. Listeners must not block;
// the pipeline invokes them synchronously between steps.
type ProgressListener func(ProgressEvent)
