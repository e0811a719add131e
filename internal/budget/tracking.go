package budget

import (
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// progressPlaces keeps the display ratio at basis-point precision.
const progressPlaces = 4

// ComputeSpendTracking compares each preference's share of the period budget
// with the outflows recorded on the primary account in its categories.
// Inflows in a budgeted category are not netted against spend.
func ComputeSpendTracking(prefs []core.BudgetPreference, txs []core.Transaction, period *core.Date, primary core.Account) []core.TrackedPreference {
	total := ComputePeriodBudget(txs, period, primary)
	outflows := scope(txs, period, primary).Where(core.Transaction.IsOutflow).Collect()

	rows := make([]core.TrackedPreference, 0, len(prefs))
	for _, p := range prefs {
		rows = append(rows, track(p, total, outflows))
	}
	return rows
}

func track(p core.BudgetPreference, total decimal.Decimal, outflows []core.Transaction) core.TrackedPreference {
	budgeted := PercentageToAmount(total, p.Percentage)

	spent := decimal.Zero
	for _, tx := range outflows {
		if p.Claims(tx.Category) {
			spent = spent.Add(tx.Amount)
		}
	}
	actual := core.RoundCurrency(spent.Abs())
	variance := budgeted.Sub(actual)

	return core.TrackedPreference{
		Preference:     p,
		BudgetedAmount: budgeted,
		ActualSpend:    actual,
		Variance:       variance,
		Status:         statusOf(actual, budgeted),
		Progress:       progress(actual, budgeted),
	}
}

func statusOf(actual, budgeted decimal.Decimal) core.SpendStatus {
	switch {
	case actual.GreaterThan(budgeted):
		return core.StatusOverBudget
	case budgeted.Sub(actual).IsPositive():
		return core.StatusUnderBudget
	default:
		return core.StatusOnBudget
	}
}

// progress is min(1, actual/budgeted), or 0 when nothing was budgeted.
func progress(actual, budgeted decimal.Decimal) decimal.Decimal {
	if !budgeted.IsPositive() {
		return decimal.Zero
	}
	ratio := actual.DivRound(budgeted, progressPlaces)
	return decimal.Min(ratio, decimal.NewFromInt(1))
}
