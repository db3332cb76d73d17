package merge

import (
	"context"
	"testing"

	"github.com/yabrams/precon-demo-sub001/internal/model"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Install RTU-1", "installrtu1"},
		{"  INSTALL rtu-1  ", "installrtu1"},
		{"Provide & install (4) units", "provideinstall4units"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := NormalizeText(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsDuplicate(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{
			name: "identical after normalization",
			a:    "Install RTU-1",
			b:    "install rtu 1",
			want: true,
		},
		{
			name: "containment",
			a:    "Install RTU-1",
			b:    "Provide and install RTU-1 condensing units",
			want: true,
		},
		{
			name: "containment is symmetric",
			a:    "Provide and install RTU-1 condensing units",
			b:    "Install RTU-1",
			want: true,
		},
		{
			// The quantity moves, so neither normalized string contains the
			// other; only character overlap catches this restatement.
			name: "restated with relocated quantity",
			a:    "Install 4 RTU-1",
			b:    "Provide and install RTU-1 condensing units, qty 4",
			want: true,
		},
		{
			name: "distinct scope",
			a:    "Install RTU-1",
			b:    "Demolish existing boiler B-2",
			want: false,
		},
		{
			// Overlap ratio 0.6, well under the threshold.
			name: "partial character overlap stays distinct",
			a:    "Install exhaust fan EF-3",
			b:    "Demolish existing boiler B-2",
			want: false,
		},
		{
			name: "empty never matches",
			a:    "",
			b:    "Install RTU-1",
			want: false,
		},
	}

	m := NewMerger(0.8)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.IsDuplicate(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("IsDuplicate(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestIsDuplicateThresholdDirection(t *testing.T) {
	// Overlap ratio for this pair is 9/11, which sits between the two
	// thresholds: a loose merger folds the items, a strict one keeps both.
	a, b := "Install exhaust fan EF-3", "Install RTU-1"

	if !NewMerger(0.8).IsDuplicate(a, b) {
		t.Errorf("IsDuplicate(%q, %q) = false at threshold 0.8, want true", a, b)
	}
	if NewMerger(0.9).IsDuplicate(a, b) {
		t.Errorf("IsDuplicate(%q, %q) = true at threshold 0.9, want false", a, b)
	}
}

func TestNewMergerInvalidThreshold(t *testing.T) {
	m := NewMerger(0)
	if m.threshold != model.DefaultDedupThreshold {
		t.Errorf("threshold = %v, want default %v", m.threshold, model.DefaultDedupThreshold)
	}
	m = NewMerger(1.5)
	if m.threshold != model.DefaultDedupThreshold {
		t.Errorf("threshold = %v, want default %v", m.threshold, model.DefaultDedupThreshold)
	}
}

func pkg(trade, division string, descriptions ...string) model.ExtractedWorkPackage {
	p := model.ExtractedWorkPackage{
		PackageID: trade[:3],
		Trade:     trade,
		Classification: model.CSIClassification{
			DivisionCode: division,
		},
	}
	for i, d := range descriptions {
		p.LineItems = append(p.LineItems, model.ExtractedLineItem{
			Description: d,
			Position:    i,
		})
	}
	p.Recount()
	return p
}

func TestMergeCombinesMatchingPackages(t *testing.T) {
	m := NewMerger(0.8)
	ctx := context.Background()

	existing := []model.ExtractedWorkPackage{
		pkg("Mechanical", "23", "Install RTU-1", "Provide ductwork for second floor"),
	}
	incoming := []model.ExtractedWorkPackage{
		pkg("Mechanical", "23", "install rtu 1", "Demolish existing boiler B-2"),
	}

	got := m.Merge(ctx, existing, incoming)
	if len(got) != 1 {
		t.Fatalf("got %d packages, want 1", len(got))
	}
	if got[0].ItemCount != 3 {
		t.Errorf("item count = %d, want 3 (duplicate dropped)", got[0].ItemCount)
	}
	last := got[0].LineItems[len(got[0].LineItems)-1]
	if last.Description != "Demolish existing boiler B-2" {
		t.Errorf("appended item = %q", last.Description)
	}
	if last.Position != 2 {
		t.Errorf("appended item position = %d, want 2", last.Position)
	}
}

func TestMergeKeepsDistinctPackages(t *testing.T) {
	m := NewMerger(0.8)
	ctx := context.Background()

	got := m.Merge(ctx,
		[]model.ExtractedWorkPackage{pkg("Mechanical", "23", "Install RTU-1")},
		[]model.ExtractedWorkPackage{pkg("Electrical", "26", "Install panelboard PB-1")},
	)
	if len(got) != 2 {
		t.Fatalf("got %d packages, want 2", len(got))
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	m := NewMerger(0.8)
	ctx := context.Background()

	incoming := []model.ExtractedWorkPackage{
		pkg("Plumbing", "22", "Install water heater WH-1", "Rough-in fixtures level 2"),
	}

	got := m.Merge(ctx, nil, incoming)
	got = m.Merge(ctx, got, incoming)

	if len(got) != 1 {
		t.Fatalf("got %d packages, want 1", len(got))
	}
	if got[0].ItemCount != 2 {
		t.Errorf("item count = %d, want 2 after re-merge", got[0].ItemCount)
	}
}

func TestMergeTakesHigherConfidence(t *testing.T) {
	m := NewMerger(0.8)
	ctx := context.Background()

	existing := pkg("Mechanical", "23", "Install RTU-1")
	existing.Confidence = model.ConfidenceScore{Overall: 0.6, Reasoning: "partial schedule"}
	incoming := pkg("Mechanical", "23", "Install RTU-1")
	incoming.Confidence = model.ConfidenceScore{Overall: 0.9, Reasoning: "full schedule visible"}

	got := m.Merge(ctx,
		[]model.ExtractedWorkPackage{existing},
		[]model.ExtractedWorkPackage{incoming},
	)
	if got[0].Confidence.Overall != 0.9 {
		t.Errorf("confidence = %v, want 0.9", got[0].Confidence.Overall)
	}
	if got[0].Confidence.Reasoning != "full schedule visible" {
		t.Errorf("reasoning = %q", got[0].Confidence.Reasoning)
	}
}

func TestMergeUnionsPassStamps(t *testing.T) {
	m := NewMerger(0.8)
	ctx := context.Background()

	existing := pkg("Mechanical", "23", "Install RTU-1")
	existing.Metadata.StampPass(1)
	incoming := pkg("Mechanical", "23", "Install condensing unit CU-1")
	incoming.Metadata.StampPass(1)

	got := m.Merge(ctx,
		[]model.ExtractedWorkPackage{existing},
		[]model.ExtractedWorkPackage{incoming},
	)
	if len(got[0].Metadata.Passes) != 1 || got[0].Metadata.Passes[0] != 1 {
		t.Errorf("passes = %v, want [1]", got[0].Metadata.Passes)
	}
}
