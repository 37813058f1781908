package catalog

import (
	"math"
	"sort"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/model"
)

// Tier windows around the target leverage. A product inside the tight
// window ranks first, slightly under-levered beats slightly over-levered,
// and everything else comes last.
const (
	tierWindow  = 0.5
	belowWindow = 1.0
	aboveWindow = 2.0
)

func leverageTier(leverage, target float64) int {
	switch {
	case math.Abs(leverage-target) <= tierWindow:
		return 0
	case leverage < target && target-leverage <= tierWindow+belowWindow:
		return 1
	case leverage > target && leverage-target <= tierWindow+aboveWindow:
		return 2
	default:
		return 3
	}
}

// RankByLeverage orders products so the first element is the deterministic
// best pick for automated placement: by tier, then by absolute distance to
// the target leverage.
func RankByLeverage(products []model.LeveragedInstrument, target float64) {
	sort.SliceStable(products, func(i, j int) bool {
		ti := leverageTier(products[i].Leverage, target)
		tj := leverageTier(products[j].Leverage, target)
		if ti != tj {
			return ti < tj
		}
		return math.Abs(products[i].Leverage-target) < math.Abs(products[j].Leverage-target)
	})
}
