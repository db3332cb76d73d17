package passes

import (
	"context"
	"testing"

	"github.com/yabrams/precon-demo-sub001/common/id"
	"github.com/yabrams/precon-demo-sub001/internal/model"
)

func TestMain(m *testing.M) {
	if err := id.Init(8); err != nil {
		panic(err)
	}
	m.Run()
}

func sessionWithPackage() *model.ExtractionSession {
	return &model.ExtractionSession{
		ID: 1,
		WorkPackages: []model.ExtractedWorkPackage{
			{
				PackageID: "MEC",
				Name:      "Mechanical",
				Trade:     "Mechanical",
				Classification: model.CSIClassification{
					DivisionCode: "23",
				},
				LineItems: []model.ExtractedLineItem{
					{ItemNumber: "1.01", Description: "Install RTU-1 rooftop unit", Position: 0},
					{ItemNumber: "1.02", Description: "Install supply ductwork", Position: 1},
				},
				ItemCount: 2,
			},
		},
	}
}

func TestApplyExtract(t *testing.T) {
	sess := &model.ExtractionSession{ID: 1}
	resp := ExtractResponse{
		WorkPackages: []WorkPackagePayload{
			{
				PackageID:    "ELE",
				Name:         "Electrical",
				Trade:        "Electrical",
				DivisionCode: "26",
				Confidence:   0.85,
				LineItems: []LineItemPayload{
					{Description: "Install panelboard PB-1"},
					{Description: "Install branch circuits"},
				},
			},
		},
		Observations: []ObservationPayload{
			{Severity: "warning", Category: "quantity_concern", Title: "t", Insight: "i"},
		},
	}

	stats := ApplyExtract(context.Background(), sess, resp, 1, "model-a")

	if stats.PackagesAdded != 1 || stats.ItemsAdded != 2 || stats.ObservationsAdded != 1 {
		t.Errorf("stats = %+v", stats)
	}
	pkg := sess.FindPackage("ELE")
	if pkg == nil {
		t.Fatal("package ELE not installed")
	}
	if pkg.ItemCount != 2 {
		t.Errorf("item count = %d, want 2", pkg.ItemCount)
	}
	if pkg.Complexity != model.ComplexityLow {
		t.Errorf("complexity = %q, want low", pkg.Complexity)
	}
	if len(pkg.Metadata.Passes) != 1 || pkg.Metadata.Passes[0] != 1 {
		t.Errorf("passes = %v, want [1]", pkg.Metadata.Passes)
	}
	if pkg.Metadata.ExtractedBy != "model-a" {
		t.Errorf("extracted by = %q", pkg.Metadata.ExtractedBy)
	}
	if pkg.LineItems[1].Position != 1 {
		t.Errorf("position = %d, want 1", pkg.LineItems[1].Position)
	}
}

func TestApplyReviewAddition(t *testing.T) {
	sess := sessionWithPackage()
	resp := ReviewResponse{
		Additions: []AdditionPayload{
			{
				TargetPackageID: "MEC",
				Item:            LineItemPayload{Description: "Install condensate piping"},
			},
		},
	}

	stats := ApplyReview(context.Background(), sess, resp, 2, "model-a")

	if stats.ItemsAdded != 1 || stats.Dropped != 0 {
		t.Errorf("stats = %+v", stats)
	}
	pkg := sess.FindPackage("MEC")
	if pkg.ItemCount != 3 {
		t.Errorf("item count = %d, want 3", pkg.ItemCount)
	}
	added := pkg.LineItems[2]
	if added.Position != 2 {
		t.Errorf("position = %d, want 2", added.Position)
	}
	if len(added.Metadata.Passes) != 1 || added.Metadata.Passes[0] != 2 {
		t.Errorf("item passes = %v, want [2]", added.Metadata.Passes)
	}
}

func TestApplyReviewUnknownTargetDropped(t *testing.T) {
	sess := sessionWithPackage()
	resp := ReviewResponse{
		Additions: []AdditionPayload{
			{
				TargetPackageID: "XXX",
				Item:            LineItemPayload{Description: "Phantom scope"},
			},
		},
	}

	stats := ApplyReview(context.Background(), sess, resp, 2, "model-a")

	if stats.Dropped != 1 || stats.ItemsAdded != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if len(sess.WorkPackages) != 1 {
		t.Errorf("package count = %d, a package was fabricated", len(sess.WorkPackages))
	}
	if sess.FindPackage("MEC").ItemCount != 2 {
		t.Error("item installed despite unknown target")
	}
}

func TestApplyReviewModificationByItemNumber(t *testing.T) {
	sess := sessionWithPackage()
	four := 4.0
	resp := ReviewResponse{
		Modifications: []ModificationPayload{
			{
				TargetPackageID: "MEC",
				ItemNumber:      "1.01",
				Updates:         ItemUpdates{Quantity: &four},
			},
		},
	}

	stats := ApplyReview(context.Background(), sess, resp, 2, "model-a")

	if stats.ItemsModified != 1 {
		t.Errorf("stats = %+v", stats)
	}
	item := sess.FindPackage("MEC").LineItems[0]
	if item.Quantity == nil || *item.Quantity != 4 {
		t.Errorf("quantity = %v, want 4", item.Quantity)
	}
	// Untouched fields stay.
	if item.Description != "Install RTU-1 rooftop unit" {
		t.Errorf("description changed to %q", item.Description)
	}
}

func TestApplyReviewModificationByDescriptionMatch(t *testing.T) {
	sess := sessionWithPackage()
	notes := "per addendum 2"
	resp := ReviewResponse{
		Modifications: []ModificationPayload{
			{
				TargetPackageID:  "MEC",
				DescriptionMatch: "supply ductwork",
				Updates:          ItemUpdates{Notes: &notes},
			},
		},
	}

	stats := ApplyReview(context.Background(), sess, resp, 3, "model-a")

	if stats.ItemsModified != 1 {
		t.Errorf("stats = %+v", stats)
	}
	item := sess.FindPackage("MEC").LineItems[1]
	if item.Notes != notes {
		t.Errorf("notes = %q, want %q", item.Notes, notes)
	}
}

func TestApplyReviewModificationUnknownItemDropped(t *testing.T) {
	sess := sessionWithPackage()
	desc := "changed"
	resp := ReviewResponse{
		Modifications: []ModificationPayload{
			{
				TargetPackageID: "MEC",
				ItemNumber:      "9.99",
				Updates:         ItemUpdates{Description: &desc},
			},
		},
	}

	stats := ApplyReview(context.Background(), sess, resp, 2, "model-a")
	if stats.Dropped != 1 || stats.ItemsModified != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestApplyReviewNewPackage(t *testing.T) {
	sess := sessionWithPackage()
	resp := ReviewResponse{
		NewPackages: []WorkPackagePayload{
			{
				PackageID:    "PLB",
				Name:         "Plumbing",
				Trade:        "Plumbing",
				DivisionCode: "22",
				LineItems:    []LineItemPayload{{Description: "Install floor drains"}},
			},
		},
	}

	stats := ApplyReview(context.Background(), sess, resp, 2, "model-a")
	if stats.PackagesAdded != 1 || stats.ItemsAdded != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if sess.FindPackage("PLB") == nil {
		t.Error("new package not installed")
	}
}

func TestApplyValidationRefinesConfidence(t *testing.T) {
	sess := sessionWithPackage()
	pkg := sess.FindPackage("MEC")
	pkg.Confidence = model.ConfidenceScore{
		Overall: 0.7,
		Flags:   []model.ConfidenceFlag{{Severity: model.FlagInfo, Code: "EARLY", Message: "from pass 1"}},
	}

	resp := ValidationResponse{
		PackageConfidences: []PackageConfidencePayload{
			{
				PackageID: "MEC",
				Overall:   0.92,
				Reasoning: "schedule cross-checked",
				Components: model.ConfidenceComponents{
					DataCompleteness: 0.9,
					SourceClarity:    0.95,
				},
				Flags: []FlagPayload{
					{Severity: "warning", Code: "QTY_UNVERIFIED", Message: "quantities not takeoff-verified"},
				},
			},
		},
	}

	stats := ApplyValidation(context.Background(), sess, resp, 3, "model-b")

	if stats.ItemsModified != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if pkg.Confidence.Overall != 0.92 {
		t.Errorf("overall = %v, want 0.92", pkg.Confidence.Overall)
	}
	if pkg.Confidence.Components.SourceClarity != 0.95 {
		t.Errorf("components not overwritten: %+v", pkg.Confidence.Components)
	}
	// Flag history only grows.
	if len(pkg.Confidence.Flags) != 2 {
		t.Fatalf("flags = %d, want 2", len(pkg.Confidence.Flags))
	}
	if pkg.Confidence.Flags[0].Code != "EARLY" || pkg.Confidence.Flags[1].Code != "QTY_UNVERIFIED" {
		t.Errorf("flags = %+v", pkg.Confidence.Flags)
	}
}

func TestApplyValidationUnknownPackageDropped(t *testing.T) {
	sess := sessionWithPackage()
	resp := ValidationResponse{
		PackageConfidences: []PackageConfidencePayload{
			{PackageID: "NOPE", Overall: 0.5},
		},
	}

	stats := ApplyValidation(context.Background(), sess, resp, 3, "model-b")
	if stats.Dropped != 1 || stats.ItemsModified != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestApplyValidationNeverAddsScope(t *testing.T) {
	sess := sessionWithPackage()
	before := sess.ItemCount()

	resp := ValidationResponse{
		Observations: []ObservationPayload{
			{Severity: "info", Category: "coordination_required", Title: "t", Insight: "i"},
		},
	}
	_ = ApplyValidation(context.Background(), sess, resp, 3, "model-b")

	if sess.ItemCount() != before {
		t.Errorf("validation changed item count %d -> %d", before, sess.ItemCount())
	}
	if len(sess.Observations) != 1 {
		t.Errorf("observations = %d, want 1", len(sess.Observations))
	}
}
