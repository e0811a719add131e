package budget

import (
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// scope restricts a ledger to one period and account. A nil period means the
// caller already narrowed the ledger to a single cycle.
func scope(txs []core.Transaction, period *core.Date, primary core.Account) Sequence {
	return FilterTransactions(txs, Criteria{Account: &primary, Period: period})
}

// ComputePeriodBudget returns the allocatable surplus of a period: the sum of
// the per-category net totals on the primary account that are strictly
// positive. Categories that net negative contribute nothing.
func ComputePeriodBudget(txs []core.Transaction, period *core.Date, primary core.Account) decimal.Decimal {
	net := make(map[core.Category]decimal.Decimal)
	for tx := range scope(txs, period, primary) {
		net[tx.Category] = net[tx.Category].Add(tx.Amount)
	}

	total := decimal.Zero
	for _, sum := range net {
		if sum.IsPositive() {
			total = total.Add(sum)
		}
	}
	return core.RoundCurrency(total)
}
