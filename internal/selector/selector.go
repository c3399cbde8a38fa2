// Package selector picks the source location for a transfer when the caller does not name one.
package selector

import (
	"sort"

	"stock-sync-service/internal/domain"
)

// Select chooses a source location from candidates.
//
// The target is never returned and locations without stock are ignored. A preferred
// location wins when it holds at least minStockRequired units; otherwise a lone
// remaining candidate is returned, and failing that the one with the most stock.
// Ties on stock keep input order.
func Select(candidates []domain.CandidateLocation, targetID, preferredID string, minStockRequired int) (domain.CandidateLocation, bool) {
	eligible := make([]domain.CandidateLocation, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.ID == targetID || candidate.StockLevel < 1 {
			continue
		}
		eligible = append(eligible, candidate)
	}

	if len(eligible) == 0 {
		return domain.CandidateLocation{}, false
	}

	if preferredID != "" {
		for _, candidate := range eligible {
			if candidate.ID == preferredID && candidate.StockLevel >= minStockRequired {
				return candidate, true
			}
		}
	}

	if len(eligible) == 1 {
		return eligible[0], true
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].StockLevel > eligible[j].StockLevel
	})
	return eligible[0], true
}

// MaxTransferQuantity caps a request at what the source actually holds
func MaxTransferQuantity(selected domain.CandidateLocation, requested int) int {
	return min(requested, selected.StockLevel)
}
