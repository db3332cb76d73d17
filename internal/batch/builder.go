// Package batch groups classified pages into bounded, trade-scoped work
// units for large-document extraction.
package batch

import (
	"fmt"
	"sort"

	"github.com/yabrams/precon-demo-sub001/common"
	"github.com/yabrams/precon-demo-sub001/internal/model"
)

const (
	// Vision models bill images by 512px tile; this is a conservative
	// per-tile figure for budgeting, not exact billing.
	tokensPerImageTile = 170
	imageTileSize      = 512

	// Fallback when page dimensions are unknown.
	defaultImageTokens = 1500

	// Rough chars-per-token for extracted sheet text.
	charsPerToken = 4
)

// EstimatePageTokens returns the estimated token cost of sending one page:
// an image-tile estimate plus a text-length estimate. The renderer's own
// estimate wins when present.
func EstimatePageTokens(page model.RenderedPage) int {
	if page.EstimatedTokens > 0 {
		return page.EstimatedTokens
	}

	imageTokens := defaultImageTokens
	if page.Width > 0 && page.Height > 0 {
		tilesX := (page.Width + imageTileSize - 1) / imageTileSize
		tilesY := (page.Height + imageTileSize - 1) / imageTileSize
		imageTokens = tilesX * tilesY * tokensPerImageTile
	}

	return imageTokens + len(page.Text)/charsPerToken
}

// Builder produces deterministic batch plans: batches sort by trade name,
// pages keep their document order, and a trade whose pages exceed one token
// budget spans multiple batches. Batches never mix trades.
type Builder struct {
	maxTokens int
}

func NewBuilder(maxTokens int) *Builder {
	if maxTokens <= 0 {
		maxTokens = model.DefaultMaxBatchTokens
	}
	return &Builder{maxTokens: maxTokens}
}

// Build groups classified pages into token-bounded batches per trade.
func (b *Builder) Build(pages []model.ClassifiedPage) []model.ExtractionBatch {
	byTrade := make(map[string][]model.ClassifiedPage)
	for _, p := range pages {
		byTrade[p.Trade] = append(byTrade[p.Trade], p)
	}

	trades := make([]string, 0, len(byTrade))
	for trade := range byTrade {
		trades = append(trades, trade)
	}
	sort.Strings(trades)

	var batches []model.ExtractionBatch
	for _, trade := range trades {
		batches = append(batches, b.buildForTrade(trade, byTrade[trade])...)
	}
	return batches
}

func (b *Builder) buildForTrade(trade string, pages []model.ClassifiedPage) []model.ExtractionBatch {
	var batches []model.ExtractionBatch

	var current []model.ClassifiedPage
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		batches = append(batches, b.newBatch(trade, len(batches)+1, current, currentTokens))
		current = nil
		currentTokens = 0
	}

	for _, page := range pages {
		cost := EstimatePageTokens(page.Page)
		if currentTokens > 0 && currentTokens+cost > b.maxTokens {
			flush()
		}
		current = append(current, page)
		currentTokens += cost
	}
	flush()

	return batches
}

func (b *Builder) newBatch(trade string, seq int, pages []model.ClassifiedPage, tokens int) model.ExtractionBatch {
	slug, err := common.Slugify(trade, "batch")
	if err != nil {
		slug = "batch"
	}

	seen := make(map[string]bool)
	var divisions []string
	for _, p := range pages {
		if p.DivisionCode != "" && !seen[p.DivisionCode] {
			seen[p.DivisionCode] = true
			divisions = append(divisions, p.DivisionCode)
		}
	}
	sort.Strings(divisions)

	return model.ExtractionBatch{
		ID:              fmt.Sprintf("%s-%d", slug, seq),
		Trade:           trade,
		DivisionCodes:   divisions,
		Pages:           pages,
		EstimatedTokens: tokens,
		Status:          model.BatchPending,
	}
}
