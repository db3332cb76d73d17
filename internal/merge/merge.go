// Package merge combines independently extracted work packages into one
// deduplicated set. Batches in large-document mode overlap at trade
// boundaries, so the same scope can arrive twice with different wording.
package merge

import (
	"context"
	"log/slog"
	"strings"

	"github.com/yabrams/precon-demo-sub001/internal/model"
)

// NormalizeText lowercases and strips everything but letters and digits, so
// wording and punctuation differences do not defeat duplicate detection.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// overlapRatio is the character-frequency overlap of two normalized strings,
// measured against the shorter one. 1.0 means every character of the shorter
// string is accounted for in the longer.
func overlapRatio(a, b string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	counts := make(map[rune]int)
	for _, r := range a {
		counts[r]++
	}
	shared := 0
	for _, r := range b {
		if counts[r] > 0 {
			counts[r]--
			shared++
		}
	}
	shorter := len(a)
	if len(b) < shorter {
		shorter = len(b)
	}
	return float64(shared) / float64(shorter)
}

// Merger folds batch results into a single package set keyed by
// (trade, division code). It is a pure accumulator with no locking; the
// pipeline serializes merges per session.
type Merger struct {
	threshold float64
}

func NewMerger(threshold float64) *Merger {
	if threshold <= 0 || threshold > 1 {
		threshold = model.DefaultDedupThreshold
	}
	return &Merger{threshold: threshold}
}

// IsDuplicate reports whether two line item descriptions describe the same
// scope: identical after normalization, one containing the other, or a
// character overlap above the threshold.
func (m *Merger) IsDuplicate(a, b string) bool {
	na, nb := NormalizeText(a), NormalizeText(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	return overlapRatio(na, nb) > m.threshold
}

// Merge folds incoming packages into existing ones. Packages sharing a
// (trade, division code) key combine; within a combined package, incoming
// items duplicating an existing item are dropped. Merging the same input
// twice leaves the result unchanged.
func (m *Merger) Merge(ctx context.Context, existing []model.ExtractedWorkPackage, incoming []model.ExtractedWorkPackage) []model.ExtractedWorkPackage {
	byKey := make(map[string]int, len(existing))
	for i := range existing {
		byKey[existing[i].MergeKey()] = i
	}

	for _, in := range incoming {
		idx, found := byKey[in.MergeKey()]
		if !found {
			existing = append(existing, in)
			byKey[in.MergeKey()] = len(existing) - 1
			continue
		}
		m.mergeInto(ctx, &existing[idx], in)
	}
	return existing
}

func (m *Merger) mergeInto(ctx context.Context, dst *model.ExtractedWorkPackage, src model.ExtractedWorkPackage) {
	dropped := 0
	for _, item := range src.LineItems {
		if m.hasDuplicate(dst, item.Description) {
			dropped++
			continue
		}
		item.Position = len(dst.LineItems)
		dst.LineItems = append(dst.LineItems, item)
	}

	if src.Confidence.Overall > dst.Confidence.Overall {
		dst.Confidence.Overall = src.Confidence.Overall
		if src.Confidence.Reasoning != "" {
			dst.Confidence.Reasoning = src.Confidence.Reasoning
		}
	}
	dst.Confidence.Flags = append(dst.Confidence.Flags, src.Confidence.Flags...)
	for _, pass := range src.Metadata.Passes {
		dst.Metadata.StampPass(pass)
	}
	dst.Recount()

	if dropped > 0 {
		slog.DebugContext(ctx, "dropped duplicate line items during merge",
			"trade", dst.Trade,
			"division_code", dst.Classification.DivisionCode,
			"dropped", dropped)
	}
}

func (m *Merger) hasDuplicate(pkg *model.ExtractedWorkPackage, description string) bool {
	for _, existing := range pkg.LineItems {
		if m.IsDuplicate(existing.Description, description) {
			return true
		}
	}
	return false
}
