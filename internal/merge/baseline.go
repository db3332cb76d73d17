package merge

import (
	"fmt"
	"strings"
	"time"

	"github.com/yabrams/precon-demo-sub001/common/id"
	"github.com/yabrams/precon-demo-sub001/internal/model"
)

const lowConfidenceFloor = 0.6

// SynthesizeBaseline derives observations from the extracted data itself,
// used when the final validation pass produced none. A run that surfaces
// zero observations reads as "nothing to flag", which is rarely true for a
// real document set.
func SynthesizeBaseline(packages []model.ExtractedWorkPackage) []model.AIObservation {
	var observations []model.AIObservation
	now := time.Now().UTC()

	missingQty := 0
	var missingQtyPackages []string
	for _, pkg := range packages {
		inPackage := 0
		for _, item := range pkg.LineItems {
			if item.Quantity == nil {
				inPackage++
			}
		}
		if inPackage > 0 {
			missingQty += inPackage
			missingQtyPackages = append(missingQtyPackages, pkg.PackageID)
		}
	}
	if missingQty > 5 {
		observations = append(observations, model.AIObservation{
			ID:       id.New(),
			Severity: model.SeverityWarning,
			Category: model.CategoryMissingInformation,
			Title:    "Quantities not visible for multiple items",
			Insight: fmt.Sprintf(
				"%d line items in packages %s have no quantity visible in the source documents. Takeoff or RFI may be required before pricing.",
				missingQty, strings.Join(missingQtyPackages, ", ")),
			AffectedPackageIDs: missingQtyPackages,
			SuggestedActions: []string{
				"Review items without quantities against the drawings",
				"Issue an RFI for quantities that cannot be taken off",
			},
			CreatedAt: now,
		})
	}

	var lowConfidence []string
	for _, pkg := range packages {
		if pkg.Confidence.Overall > 0 && pkg.Confidence.Overall < lowConfidenceFloor {
			lowConfidence = append(lowConfidence, pkg.PackageID)
		}
	}
	if len(lowConfidence) > 0 {
		observations = append(observations, model.AIObservation{
			ID:       id.New(),
			Severity: model.SeverityInfo,
			Category: model.CategoryMissingInformation,
			Title:    "Low-confidence work packages",
			Insight: fmt.Sprintf(
				"Packages %s were extracted with low confidence and should be reviewed manually.",
				strings.Join(lowConfidence, ", ")),
			AffectedPackageIDs: lowConfidence,
			CreatedAt:          now,
		})
	}

	if hasTrade(packages, "Mechanical") && hasTrade(packages, "Electrical") {
		observations = append(observations, model.AIObservation{
			ID:       id.New(),
			Severity: model.SeverityInfo,
			Category: model.CategoryCoordinationRequired,
			Title:    "Mechanical and electrical coordination",
			Insight:  "Both mechanical and electrical scope are present. Verify power requirements, disconnects, and control wiring responsibility between trades.",
			SuggestedActions: []string{
				"Confirm which trade furnishes disconnects and starters",
				"Cross-check equipment schedules for electrical characteristics",
			},
			CreatedAt: now,
		})
	}

	return observations
}

func hasTrade(packages []model.ExtractedWorkPackage, trade string) bool {
	for _, pkg := range packages {
		if strings.EqualFold(pkg.Trade, trade) {
			return true
		}
	}
	return false
}
