package budget

import (
	"strings"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// ValidateMutation checks whether candidate may be committed on top of
// existing. editingID names the preference being replaced, or is empty for a
// create. The first failing rule is reported and nothing is applied.
func ValidateMutation(existing []core.BudgetPreference, candidate core.BudgetPreference, editingID string) error {
	if strings.TrimSpace(candidate.Name) == "" {
		return newValidationError(core.ReasonNameRequired, "")
	}

	p := candidate.Percentage
	if !p.IsPositive() || p.GreaterThan(core.Hundred) {
		return newValidationError(core.ReasonPercentageOutOfRange, "got %s", p.String())
	}

	if len(candidate.Categories) == 0 {
		return newValidationError(core.ReasonCategoriesEmpty, "")
	}

	others := othersTotal(existing, editingID)
	if others.Add(p).GreaterThan(core.Hundred.Add(core.Epsilon)) {
		return newValidationError(core.ReasonPercentageExceedsRemaining,
			"%s%% requested, %s%% remaining", p.String(), remainingPercentage(others).String())
	}

	for _, other := range existing {
		if editingID != "" && other.ID == editingID {
			continue
		}
		for _, c := range candidate.Categories {
			if other.Claims(c) {
				return newValidationError(core.ReasonCategoryAlreadyAssigned,
					"%s is claimed by %q", c, other.Name)
			}
		}
	}
	return nil
}

// othersTotal sums the percentages of every preference except editingID.
func othersTotal(prefs []core.BudgetPreference, editingID string) decimal.Decimal {
	total := decimal.Zero
	for _, p := range prefs {
		if editingID != "" && p.ID == editingID {
			continue
		}
		total = total.Add(p.Percentage)
	}
	return total
}

func remainingPercentage(others decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, core.Hundred.Sub(others))
}
