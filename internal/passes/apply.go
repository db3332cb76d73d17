package passes

import (
	"context"
	"log/slog"
	"strings"

	"github.com/yabrams/precon-demo-sub001/internal/model"
)

// ApplyStats summarizes what a pass changed on the session. Dropped counts
// cover response entries that referenced packages or items the session does
// not have; those are discarded rather than guessed at.
type ApplyStats struct {
	ItemsAdded        int
	ItemsModified     int
	PackagesAdded     int
	ObservationsAdded int
	Dropped           int
}

// ApplyExtract installs a pass-1 (or batch) extraction result on the session.
func ApplyExtract(ctx context.Context, session *model.ExtractionSession, resp ExtractResponse, passNum int, modelID string) ApplyStats {
	var stats ApplyStats

	for _, wp := range resp.WorkPackages {
		pkg := toWorkPackage(wp, passNum, modelID)
		session.WorkPackages = append(session.WorkPackages, pkg)
		stats.PackagesAdded++
		stats.ItemsAdded += len(pkg.LineItems)
	}

	stats.ObservationsAdded = appendObservations(ctx, session, resp.Observations, passNum, modelID)
	return stats
}

// ApplyReview installs a pass-2 or pass-3 result: additions to existing
// packages, in-place modifications, and whole new packages. Additions whose
// target package is unknown are dropped and counted; the model sometimes
// invents package ids and inventing a package for them would fabricate scope.
func ApplyReview(ctx context.Context, session *model.ExtractionSession, resp ReviewResponse, passNum int, modelID string) ApplyStats {
	var stats ApplyStats

	for _, add := range resp.Additions {
		pkg := session.FindPackage(add.TargetPackageID)
		if pkg == nil {
			stats.Dropped++
			slog.DebugContext(ctx, "dropping addition for unknown package",
				"target_package_id", add.TargetPackageID,
				"description", add.Item.Description)
			continue
		}
		item := toLineItem(add.Item, len(pkg.LineItems), passNum, modelID)
		pkg.LineItems = append(pkg.LineItems, item)
		pkg.Recount()
		pkg.Metadata.StampPass(passNum)
		stats.ItemsAdded++
	}

	for _, mod := range resp.Modifications {
		pkg := session.FindPackage(mod.TargetPackageID)
		if pkg == nil {
			stats.Dropped++
			slog.DebugContext(ctx, "dropping modification for unknown package",
				"target_package_id", mod.TargetPackageID)
			continue
		}
		item := findItem(pkg, mod.ItemNumber, mod.DescriptionMatch)
		if item == nil {
			stats.Dropped++
			slog.DebugContext(ctx, "dropping modification for unknown item",
				"target_package_id", mod.TargetPackageID,
				"item_number", mod.ItemNumber,
				"description_match", mod.DescriptionMatch)
			continue
		}
		applyUpdates(item, mod.Updates)
		item.Metadata.StampPass(passNum)
		pkg.Metadata.StampPass(passNum)
		stats.ItemsModified++
	}

	for _, wp := range resp.NewPackages {
		pkg := toWorkPackage(wp, passNum, modelID)
		session.WorkPackages = append(session.WorkPackages, pkg)
		stats.PackagesAdded++
		stats.ItemsAdded += len(pkg.LineItems)
	}

	stats.ObservationsAdded = appendObservations(ctx, session, resp.Observations, passNum, modelID)
	return stats
}

// ApplyValidation installs a pass-4 or pass-5 result. Validation passes
// refine confidence and add observations; they never add or remove scope.
func ApplyValidation(ctx context.Context, session *model.ExtractionSession, resp ValidationResponse, passNum int, modelID string) ApplyStats {
	var stats ApplyStats

	for _, pc := range resp.PackageConfidences {
		pkg := session.FindPackage(pc.PackageID)
		if pkg == nil {
			stats.Dropped++
			slog.DebugContext(ctx, "dropping confidence for unknown package",
				"package_id", pc.PackageID)
			continue
		}
		flags := make([]model.ConfidenceFlag, 0, len(pc.Flags))
		for _, f := range pc.Flags {
			flags = append(flags, model.ConfidenceFlag{
				Severity: model.FlagSeverity(f.Severity),
				Code:     f.Code,
				Message:  f.Message,
			})
		}
		pkg.Confidence.Refine(pc.Overall, pc.Reasoning, flags)
		pkg.Confidence.Components = pc.Components
		pkg.Metadata.StampPass(passNum)
		stats.ItemsModified++
	}

	stats.ObservationsAdded = appendObservations(ctx, session, resp.Observations, passNum, modelID)
	return stats
}

func appendObservations(ctx context.Context, session *model.ExtractionSession, payloads []ObservationPayload, passNum int, modelID string) int {
	for _, o := range payloads {
		session.Observations = append(session.Observations, toObservation(ctx, o, passNum, modelID))
	}
	return len(payloads)
}

// findItem locates a line item by exact item number first, then by a
// case-insensitive description substring.
func findItem(pkg *model.ExtractedWorkPackage, itemNumber, descriptionMatch string) *model.ExtractedLineItem {
	if itemNumber != "" {
		for i := range pkg.LineItems {
			if pkg.LineItems[i].ItemNumber == itemNumber {
				return &pkg.LineItems[i]
			}
		}
	}
	if descriptionMatch != "" {
		needle := strings.ToLower(descriptionMatch)
		for i := range pkg.LineItems {
			if strings.Contains(strings.ToLower(pkg.LineItems[i].Description), needle) {
				return &pkg.LineItems[i]
			}
		}
	}
	return nil
}

func applyUpdates(item *model.ExtractedLineItem, u ItemUpdates) {
	if u.Description != nil {
		item.Description = *u.Description
	}
	if u.Action != nil {
		item.Action = *u.Action
	}
	if u.Quantity != nil {
		item.Quantity = u.Quantity
	}
	if u.Unit != nil {
		item.Unit = *u.Unit
	}
	if u.Notes != nil {
		item.Notes = *u.Notes
	}
}
