package model

import "time"

type ObservationSeverity string

const (
	SeverityCritical ObservationSeverity = "critical"
	SeverityWarning  ObservationSeverity = "warning"
	SeverityInfo     ObservationSeverity = "info"
)

// ObservationCategory is a closed enumeration. Responses carrying an unknown
// category are flagged during decoding rather than stored verbatim.
type ObservationCategory string

const (
	CategoryScopeConflict         ObservationCategory = "scope_conflict"
	CategorySpecMismatch          ObservationCategory = "specification_mismatch"
	CategoryQuantityConcern       ObservationCategory = "quantity_concern"
	CategoryCoordinationRequired  ObservationCategory = "coordination_required"
	CategoryAddendumImpact        ObservationCategory = "addendum_impact"
	CategoryWarrantyRequirement   ObservationCategory = "warranty_requirement"
	CategoryCodeCompliance        ObservationCategory = "code_compliance"
	CategoryRiskFlag              ObservationCategory = "risk_flag"
	CategoryCostImpact            ObservationCategory = "cost_impact"
	CategoryScheduleImpact        ObservationCategory = "schedule_impact"
	CategoryMissingInformation    ObservationCategory = "missing_information"
	CategorySubstitutionAvailable ObservationCategory = "substitution_available"
)

var validCategories = map[ObservationCategory]bool{
	CategoryScopeConflict:         true,
	CategorySpecMismatch:          true,
	CategoryQuantityConcern:       true,
	CategoryCoordinationRequired:  true,
	CategoryAddendumImpact:        true,
	CategoryWarrantyRequirement:   true,
	CategoryCodeCompliance:        true,
	CategoryRiskFlag:              true,
	CategoryCostImpact:            true,
	CategoryScheduleImpact:        true,
	CategoryMissingInformation:    true,
	CategorySubstitutionAvailable: true,
}

// Valid reports whether the category is part of the closed enumeration.
func (c ObservationCategory) Valid() bool {
	return validCategories[c]
}

// AIObservation is a risk or insight surfaced alongside extracted items.
// The observation list is append-only; later passes may restate earlier
// concerns and that duplication is accepted.
type AIObservation struct {
	ID                  int64               `json:"id"`
	Severity            ObservationSeverity `json:"severity"`
	Category            ObservationCategory `json:"category"`
	Title               string              `json:"title"`
	Insight             string              `json:"insight"`
	AffectedPackageIDs  []string            `json:"affected_package_ids,omitempty"`
	AffectedLineItemIDs []string            `json:"affected_line_item_ids,omitempty"`
	SuggestedActions    []string            `json:"suggested_actions,omitempty"`
	Metadata            ExtractionMetadata  `json:"metadata"`
	CreatedAt           time.Time           `json:"created_at"`
}
