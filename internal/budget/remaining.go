package budget

import (
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// RemainingFor returns the allocation still free for the preference being
// edited (or for a new one when editingID is empty). It is advisory only;
// ValidateMutation is what enforces the ceiling.
func RemainingFor(prefs []core.BudgetPreference, editingID string, totalBudget decimal.Decimal) core.Remaining {
	pct := remainingPercentage(othersTotal(prefs, editingID))
	return core.Remaining{
		TotalBudget: totalBudget,
		Percentage:  pct,
		Amount:      PercentageToAmount(totalBudget, pct),
	}
}

// PercentageToAmount converts a share of totalBudget into currency.
func PercentageToAmount(totalBudget, percentage decimal.Decimal) decimal.Decimal {
	return core.RoundCurrency(totalBudget.Mul(percentage).Div(core.Hundred))
}

// AmountToPercentage is the inverse of PercentageToAmount on the same basis.
// A zero budget has no meaningful share and converts to 0%.
func AmountToPercentage(totalBudget, amount decimal.Decimal) decimal.Decimal {
	if totalBudget.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(core.Hundred).DivRound(totalBudget, core.PercentagePlaces)
}
