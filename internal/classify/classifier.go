// Package classify assigns document pages to construction trades using
// sheet-number prefixes and keyword heuristics. Classification is local and
// deterministic; no model call is involved.
package classify

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yabrams/precon-demo-sub001/internal/model"
)

// discipline maps a sheet-number letter prefix to a trade and CSI division.
type discipline struct {
	Trade        string
	DivisionCode string
	DivisionName string
}

// Two-letter prefixes are checked before single letters so "FP1.0" reads as
// fire protection, not an unknown "F" sheet.
var disciplinePrefixes = map[string]discipline{
	"FP": {"Fire Protection", "21", "Fire Suppression"},
	"FA": {"Fire Alarm", "28", "Electronic Safety and Security"},
	"ME": {"Mechanical", "23", "Heating Ventilating and Air Conditioning"},
	"EL": {"Electrical", "26", "Electrical"},
	"PL": {"Plumbing", "22", "Plumbing"},
	"TC": {"Communications", "27", "Communications"},
	"M":  {"Mechanical", "23", "Heating Ventilating and Air Conditioning"},
	"E":  {"Electrical", "26", "Electrical"},
	"P":  {"Plumbing", "22", "Plumbing"},
	"S":  {"Structural", "05", "Metals"},
	"A":  {"Architectural", "09", "Finishes"},
	"C":  {"Civil", "31", "Earthwork"},
	"T":  {"Communications", "27", "Communications"},
	"D":  {"Demolition", "02", "Existing Conditions"},
	"L":  {"Landscape", "32", "Exterior Improvements"},
	"G":  {"General", "01", "General Requirements"},
}

var tradeKeywords = map[string][]string{
	"Mechanical":      {"hvac", "rooftop unit", "rtu", "air handler", "ahu", "ductwork", "diffuser", "vav", "chiller", "boiler", "condensing unit", "exhaust fan", "mechanical"},
	"Electrical":      {"panelboard", "circuit", "conduit", "receptacle", "lighting", "transformer", "switchgear", "breaker", "one-line", "luminaire", "electrical"},
	"Plumbing":        {"sanitary", "domestic water", "water heater", "fixture", "drain", "vent piping", "cleanout", "plumbing", "sewer"},
	"Fire Protection": {"sprinkler", "standpipe", "fire pump", "fire suppression", "fdc", "nfpa 13"},
	"Structural":      {"rebar", "footing", "steel beam", "column schedule", "shear wall", "foundation", "joist", "structural"},
	"Architectural":   {"floor plan", "partition", "ceiling", "millwork", "storefront", "finish schedule", "door schedule", "architectural"},
	"Civil":           {"grading", "storm drainage", "site plan", "utility plan", "erosion", "paving", "civil"},
	"Communications":  {"data outlet", "telecom", "cable tray", "backbone", "patch panel", "cat6"},
}

var tradeDivisions = map[string]string{
	"Mechanical":      "23",
	"Electrical":      "26",
	"Plumbing":        "22",
	"Fire Protection": "21",
	"Structural":      "05",
	"Architectural":   "09",
	"Civil":           "31",
	"Communications":  "27",
}

// pageTypeCues are checked in order; first hit wins. Page type is inferred
// independently of trade classification.
var pageTypeCues = []struct {
	cue string
	typ model.PageType
}{
	{"table of contents", model.PageTypeIndex},
	{"sheet index", model.PageTypeIndex},
	{"drawing index", model.PageTypeIndex},
	{"cover sheet", model.PageTypeCover},
	{"general notes", model.PageTypeGeneralNotes},
	{"legend", model.PageTypeLegend},
	{"schedule", model.PageTypeSchedule},
	{"riser diagram", model.PageTypeDiagram},
	{"one-line diagram", model.PageTypeDiagram},
	{"diagram", model.PageTypeDiagram},
	{"elevation", model.PageTypeElevation},
	{"section", model.PageTypeSection},
	{"detail", model.PageTypeDetail},
	{"specification", model.PageTypeSpecification},
	{"floor plan", model.PageTypePlan},
	{"plan", model.PageTypePlan},
}

// Sheet numbers look like M2.1, FP-101, E1. One or two leading letters,
// then digits.
var sheetNumberPattern = regexp.MustCompile(`\b([A-Z]{1,2})-?(\d+(?:\.\d+)?)\b`)

const (
	patternConfidenceSingle = 0.90
	patternConfidenceDouble = 0.95
	keywordConfidenceBase   = 0.5
	keywordConfidenceStep   = 0.1
	keywordConfidenceCap    = 0.85
	minKeywordMatches       = 2
	defaultConfidence       = 0.3

	// Pages with this much extracted text and no sheet structure read as
	// specification prose rather than a drawing.
	specTextLength = 2000
)

// Classifier assigns pages to trades. It is stateless and safe for
// concurrent use.
type Classifier struct{}

func New() *Classifier {
	return &Classifier{}
}

// ClassifyPage assigns one rendered page a trade, division, page type,
// confidence, and the method used (for audit). Order: sheet-prefix pattern,
// then keyword scoring, then defaults.
func (c *Classifier) ClassifyPage(page model.RenderedPage) model.ClassifiedPage {
	result := model.ClassifiedPage{
		Page:     page,
		PageType: c.inferPageType(page),
	}

	if d, conf, ok := c.matchSheetPrefix(page); ok {
		result.Trade = d.Trade
		result.DivisionCode = d.DivisionCode
		result.Confidence = conf
		result.Method = model.MethodPattern
		return result
	}

	if trade, matches := c.bestKeywordTrade(page.Text); matches >= minKeywordMatches {
		conf := keywordConfidenceBase + keywordConfidenceStep*float64(matches)
		if conf > keywordConfidenceCap {
			conf = keywordConfidenceCap
		}
		result.Trade = trade
		result.DivisionCode = tradeDivisions[trade]
		result.Confidence = conf
		result.Method = model.MethodKeyword
		return result
	}

	if len(page.Text) >= specTextLength {
		result.Trade = "General"
		result.DivisionCode = "01"
		result.PageType = model.PageTypeSpecification
		result.Confidence = defaultConfidence
		result.Method = model.MethodDefault
		return result
	}

	result.Trade = "Unclassified"
	result.DivisionCode = ""
	result.Confidence = defaultConfidence
	result.Method = model.MethodDefault
	return result
}

// ClassifyPages classifies every page, preserving order.
func (c *Classifier) ClassifyPages(pages []model.RenderedPage) []model.ClassifiedPage {
	out := make([]model.ClassifiedPage, 0, len(pages))
	for _, p := range pages {
		out = append(out, c.ClassifyPage(p))
	}
	return out
}

func (c *Classifier) matchSheetPrefix(page model.RenderedPage) (discipline, float64, bool) {
	token := page.SheetNumber
	if token == "" {
		// Best-effort scan of the title-block text.
		if m := sheetNumberPattern.FindStringSubmatch(page.Text); m != nil {
			token = m[0]
		}
	}
	if token == "" {
		return discipline{}, 0, false
	}

	m := sheetNumberPattern.FindStringSubmatch(strings.ToUpper(token))
	if m == nil {
		return discipline{}, 0, false
	}
	prefix := m[1]

	if len(prefix) == 2 {
		if d, ok := disciplinePrefixes[prefix]; ok {
			return d, patternConfidenceDouble, true
		}
		// Fall back to the first letter: "M2" already stripped to "M" by the
		// pattern, but "MH" style prefixes still carry the discipline letter.
		prefix = prefix[:1]
	}
	if d, ok := disciplinePrefixes[prefix]; ok {
		return d, patternConfidenceSingle, true
	}
	return discipline{}, 0, false
}

// bestKeywordTrade scores the page text against every trade's keyword list
// and returns the trade with the most matches. Ties break alphabetically so
// classification is deterministic.
func (c *Classifier) bestKeywordTrade(text string) (string, int) {
	lower := strings.ToLower(text)

	trades := make([]string, 0, len(tradeKeywords))
	for trade := range tradeKeywords {
		trades = append(trades, trade)
	}
	sort.Strings(trades)

	bestTrade := ""
	bestCount := 0
	for _, trade := range trades {
		count := 0
		for _, kw := range tradeKeywords[trade] {
			if strings.Contains(lower, kw) {
				count++
			}
		}
		if count > bestCount {
			bestTrade = trade
			bestCount = count
		}
	}
	return bestTrade, bestCount
}

func (c *Classifier) inferPageType(page model.RenderedPage) model.PageType {
	lower := strings.ToLower(page.Text)
	for _, cue := range pageTypeCues {
		if strings.Contains(lower, cue.cue) {
			return cue.typ
		}
	}
	return model.PageTypePlan
}
