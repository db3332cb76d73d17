// Package passes defines the closed response shapes each pipeline pass
// expects from the model, and applies decoded responses to session state.
package passes

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/yabrams/precon-demo-sub001/common/id"
	"github.com/yabrams/precon-demo-sub001/common/llm"
	"github.com/yabrams/precon-demo-sub001/internal/model"
)

// LineItemPayload mirrors one line item in a model response.
type LineItemPayload struct {
	ItemNumber  string   `json:"item_number,omitempty" jsonschema_description:"Item number from the source document, if visible"`
	Description string   `json:"description" jsonschema:"required" jsonschema_description:"What the work is"`
	Action      string   `json:"action,omitempty" jsonschema_description:"Action verb (install, demo, furnish, connect...)"`
	Quantity    *float64 `json:"quantity" jsonschema_description:"Numeric quantity, or null when not visible in the source"`
	Unit        string   `json:"unit,omitempty" jsonschema_description:"Unit of measure (EA, LF, SF...)"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	TotalPrice  *float64 `json:"total_price,omitempty"`
	Notes       string   `json:"notes,omitempty" jsonschema_description:"Specification references or notes"`
	Confidence  float64  `json:"confidence,omitempty" jsonschema_description:"Extraction confidence 0.0-1.0"`
}

// WorkPackagePayload mirrors one work package in a model response.
type WorkPackagePayload struct {
	PackageID    string            `json:"package_id" jsonschema:"required" jsonschema_description:"Short trade code, e.g. MEC, ELE, PLB"`
	Name         string            `json:"name" jsonschema:"required"`
	Trade        string            `json:"trade" jsonschema:"required"`
	DivisionCode string            `json:"division_code" jsonschema:"required" jsonschema_description:"Two-digit CSI division code"`
	DivisionName string            `json:"division_name,omitempty"`
	Section      string            `json:"section,omitempty"`
	Confidence   float64           `json:"confidence" jsonschema_description:"Classification confidence 0.0-1.0"`
	Reasoning    string            `json:"reasoning,omitempty"`
	LineItems    []LineItemPayload `json:"line_items"`
}

// ObservationPayload mirrors one observation in a model response.
type ObservationPayload struct {
	Severity           string   `json:"severity" jsonschema:"required,enum=critical,enum=warning,enum=info"`
	Category           string   `json:"category" jsonschema:"required,enum=scope_conflict,enum=specification_mismatch,enum=quantity_concern,enum=coordination_required,enum=addendum_impact,enum=warranty_requirement,enum=code_compliance,enum=risk_flag,enum=cost_impact,enum=schedule_impact,enum=missing_information,enum=substitution_available"`
	Title              string   `json:"title" jsonschema:"required"`
	Insight            string   `json:"insight" jsonschema:"required"`
	AffectedPackageIDs []string `json:"affected_package_ids,omitempty"`
	AffectedItemIDs    []string `json:"affected_line_item_ids,omitempty"`
	SuggestedActions   []string `json:"suggested_actions,omitempty"`
}

// ExtractResponse is the pass-1 (and batch) response shape.
type ExtractResponse struct {
	WorkPackages []WorkPackagePayload `json:"work_packages"`
	Observations []ObservationPayload `json:"observations,omitempty"`
}

// AdditionPayload proposes a new line item in an existing package.
type AdditionPayload struct {
	TargetPackageID string          `json:"target_package_id" jsonschema:"required"`
	Item            LineItemPayload `json:"item" jsonschema:"required"`
}

// ItemUpdates carries the changed fields of a modification; nil fields are
// left untouched.
type ItemUpdates struct {
	Description *string  `json:"description,omitempty"`
	Action      *string  `json:"action,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
	Unit        *string  `json:"unit,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
}

// ModificationPayload targets an existing line item by item number or by a
// description substring.
type ModificationPayload struct {
	TargetPackageID  string      `json:"target_package_id" jsonschema:"required"`
	ItemNumber       string      `json:"item_number,omitempty" jsonschema_description:"Match by item number, when known"`
	DescriptionMatch string      `json:"description_match,omitempty" jsonschema_description:"Substring of the existing item's description"`
	Updates          ItemUpdates `json:"updates" jsonschema:"required"`
}

// ReviewResponse is the pass-2/pass-3 response shape.
type ReviewResponse struct {
	Additions     []AdditionPayload     `json:"additions,omitempty"`
	Modifications []ModificationPayload `json:"modifications,omitempty"`
	NewPackages   []WorkPackagePayload  `json:"new_packages,omitempty"`
	Observations  []ObservationPayload  `json:"observations,omitempty"`
}

// FlagPayload mirrors one confidence flag.
type FlagPayload struct {
	Severity string `json:"severity" jsonschema:"required,enum=warning,enum=info,enum=error"`
	Code     string `json:"code" jsonschema:"required"`
	Message  string `json:"message" jsonschema:"required"`
}

// PackageConfidencePayload is a per-package confidence overwrite.
type PackageConfidencePayload struct {
	PackageID  string                     `json:"package_id" jsonschema:"required"`
	Overall    float64                    `json:"overall" jsonschema:"required"`
	Components model.ConfidenceComponents `json:"components"`
	Reasoning  string                     `json:"reasoning,omitempty"`
	Flags      []FlagPayload              `json:"flags,omitempty"`
}

// ValidationResponse is the pass-4/pass-5 response shape: confidence
// overwrites and observations, never new line items.
type ValidationResponse struct {
	PackageConfidences []PackageConfidencePayload `json:"package_confidences,omitempty"`
	Observations       []ObservationPayload       `json:"observations,omitempty"`
}

var (
	extractSchema    = llm.GenerateSchema[ExtractResponse]()
	reviewSchema     = llm.GenerateSchema[ReviewResponse]()
	validationSchema = llm.GenerateSchema[ValidationResponse]()
)

// SchemaJSON renders a generated schema for embedding in a prompt.
func SchemaJSON(schema any) string {
	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func ExtractSchema() any    { return extractSchema }
func ReviewSchema() any     { return reviewSchema }
func ValidationSchema() any { return validationSchema }

// DecodeExtract parses a model reply into the pass-1 shape, repairing
// truncated JSON and dropping entries missing required fields.
func DecodeExtract(ctx context.Context, text string) (ExtractResponse, error) {
	var resp ExtractResponse
	if err := llm.ParseJSON(text, &resp); err != nil {
		return ExtractResponse{}, err
	}

	kept := resp.WorkPackages[:0]
	for _, wp := range resp.WorkPackages {
		if wp.PackageID == "" || wp.Trade == "" {
			slog.WarnContext(ctx, "dropping work package missing required fields",
				"package_id", wp.PackageID, "trade", wp.Trade)
			continue
		}
		wp.LineItems = keptItems(ctx, wp.LineItems)
		kept = append(kept, wp)
	}
	resp.WorkPackages = kept
	return resp, nil
}

func DecodeReview(ctx context.Context, text string) (ReviewResponse, error) {
	var resp ReviewResponse
	if err := llm.ParseJSON(text, &resp); err != nil {
		return ReviewResponse{}, err
	}

	additions := resp.Additions[:0]
	for _, a := range resp.Additions {
		if a.Item.Description == "" {
			continue
		}
		additions = append(additions, a)
	}
	resp.Additions = additions

	packages := resp.NewPackages[:0]
	for _, wp := range resp.NewPackages {
		if wp.PackageID == "" || wp.Trade == "" {
			continue
		}
		wp.LineItems = keptItems(ctx, wp.LineItems)
		packages = append(packages, wp)
	}
	resp.NewPackages = packages
	return resp, nil
}

func DecodeValidation(ctx context.Context, text string) (ValidationResponse, error) {
	var resp ValidationResponse
	if err := llm.ParseJSON(text, &resp); err != nil {
		return ValidationResponse{}, err
	}
	return resp, nil
}

func keptItems(ctx context.Context, items []LineItemPayload) []LineItemPayload {
	kept := items[:0]
	for _, it := range items {
		if it.Description == "" {
			slog.DebugContext(ctx, "dropping line item with empty description")
			continue
		}
		kept = append(kept, it)
	}
	return kept
}

// toWorkPackage converts a payload to the domain type, stamping the pass.
func toWorkPackage(wp WorkPackagePayload, passNum int, modelID string) model.ExtractedWorkPackage {
	pkg := model.ExtractedWorkPackage{
		PackageID: wp.PackageID,
		Name:      wp.Name,
		Trade:     wp.Trade,
		Classification: model.CSIClassification{
			DivisionCode: wp.DivisionCode,
			DivisionName: wp.DivisionName,
			Section:      wp.Section,
			Confidence:   wp.Confidence,
			Reasoning:    wp.Reasoning,
		},
		Confidence: model.ConfidenceScore{
			Overall:   wp.Confidence,
			Reasoning: wp.Reasoning,
		},
		Metadata: model.ExtractionMetadata{
			ExtractedBy: modelID,
			Confidence:  wp.Confidence,
		},
	}
	pkg.Metadata.StampPass(passNum)

	for i, it := range wp.LineItems {
		pkg.LineItems = append(pkg.LineItems, toLineItem(it, i, passNum, modelID))
	}
	pkg.Recount()
	return pkg
}

func toLineItem(it LineItemPayload, position, passNum int, modelID string) model.ExtractedLineItem {
	item := model.ExtractedLineItem{
		ItemNumber:  it.ItemNumber,
		Description: it.Description,
		Action:      it.Action,
		Quantity:    it.Quantity,
		Unit:        it.Unit,
		UnitPrice:   it.UnitPrice,
		TotalPrice:  it.TotalPrice,
		Notes:       it.Notes,
		Position:    position,
		Metadata: model.ExtractionMetadata{
			ExtractedBy: modelID,
			Confidence:  it.Confidence,
		},
	}
	item.Metadata.StampPass(passNum)
	return item
}

// toObservation converts a payload, coercing unknown categories to the
// risk_flag bucket rather than widening the closed enumeration.
func toObservation(ctx context.Context, o ObservationPayload, passNum int, modelID string) model.AIObservation {
	category := model.ObservationCategory(o.Category)
	if !category.Valid() {
		slog.WarnContext(ctx, "coercing unknown observation category",
			"category", o.Category)
		category = model.CategoryRiskFlag
	}

	severity := model.ObservationSeverity(o.Severity)
	switch severity {
	case model.SeverityCritical, model.SeverityWarning, model.SeverityInfo:
	default:
		severity = model.SeverityInfo
	}

	obs := model.AIObservation{
		ID:                  id.New(),
		Severity:            severity,
		Category:            category,
		Title:               o.Title,
		Insight:             o.Insight,
		AffectedPackageIDs:  o.AffectedPackageIDs,
		AffectedLineItemIDs: o.AffectedItemIDs,
		SuggestedActions:    o.SuggestedActions,
		Metadata: model.ExtractionMetadata{
			ExtractedBy: modelID,
		},
		CreatedAt: time.Now().UTC(),
	}
	obs.Metadata.StampPass(passNum)
	return obs
}
