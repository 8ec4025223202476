package services

import (
	"github.com/arcfolio/folio_api/model"
	"github.com/arcfolio/folio_api/shared"
)

// AggregateVisitStats reduces one result page to its per-page aggregates.
// Stats are computed over the returned page only, never the whole store.
// Each breakdown buckets absent values under "unknown", so breakdown
// counts always sum to TotalRecords.
func AggregateVisitStats(records []model.StoredVisitRecord) model.VisitStats {
	stats := model.VisitStats{
		TotalRecords: len(records),
		ByDeviceType: make(map[string]int),
		ByBrowser:    make(map[string]int),
		ByOS:         make(map[string]int),
	}

	identifiers := make(map[string]struct{})

	for _, r := range records {
		if r.Record.Identifier != "" {
			identifiers[r.Record.Identifier] = struct{}{}
		}

		stats.ByDeviceType[orUnknown(r.Record.DeviceType)]++
		stats.ByBrowser[orUnknown(r.Record.Browser)]++
		stats.ByOS[orUnknown(r.Record.OS)]++
	}

	stats.TotalUniqueUsers = len(identifiers)
	return stats
}

func orUnknown(v string) string {
	if v == "" {
		return shared.Unknown
	}
	return v
}
