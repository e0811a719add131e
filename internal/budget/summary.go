package budget

import (
	"slices"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// ComputeSummary derives the allocation totals of a preference set. It never
// fails; an empty set yields a zero total and a full 100% missing.
//
// Overlap is reported, not corrected: a category listed two or more times
// across the set, repeats within one preference included, appears once in
// OverlappingCategories, in order of first claim.
func ComputeSummary(prefs []core.BudgetPreference) core.BudgetSummary {
	total := decimal.Zero
	claims := make(map[core.Category]int)
	order := make([]core.Category, 0)

	for _, p := range prefs {
		total = total.Add(p.Percentage)

		for _, c := range p.Categories {
			if claims[c] == 0 {
				order = append(order, c)
			}
			claims[c]++
		}
	}

	overlapping := make([]core.Category, 0)
	for _, c := range order {
		if claims[c] >= 2 {
			overlapping = append(overlapping, c)
		}
	}

	list := slices.Clone(prefs)
	if list == nil {
		list = []core.BudgetPreference{}
	}

	return core.BudgetSummary{
		Preferences:           list,
		TotalPercentage:       total,
		IsComplete:            total.GreaterThanOrEqual(core.Hundred.Sub(core.Epsilon)),
		MissingPercentage:     remainingPercentage(total),
		OverlappingCategories: overlapping,
	}
}
