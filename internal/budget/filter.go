// Package budget is the control-period allocation and spend tracking engine.
//
// Every function here is pure: callers hand in already resolved snapshots of
// the ledger and the preference set, plus the period and primary account to
// work on. Nothing reads configuration or talks to a store.
package budget

import (
	"iter"
	"slices"

	"bilancio/internal/core"
)

// Criteria selects ledger entries. Nil fields impose no constraint.
//
// Period is an explicit control-period selector. DefaultPeriod is the
// configured default and only applies when Period is nil.
type Criteria struct {
	Category      *core.Category
	Account       *core.Account
	From          *core.Date
	To            *core.Date
	Period        *core.Date
	DefaultPeriod *core.Date
}

// EffectivePeriod is the control period the criteria scope to, or nil when
// the selection spans every period.
func (c Criteria) EffectivePeriod() *core.Date {
	if c.Period != nil {
		return c.Period
	}
	return c.DefaultPeriod
}

// Match reports whether a single transaction satisfies every present criterion.
func (c Criteria) Match(tx core.Transaction) bool {
	if c.Category != nil && tx.Category != *c.Category {
		return false
	}
	if c.Account != nil && tx.Account != *c.Account {
		return false
	}
	if c.From != nil && tx.Date.Compare(*c.From) < 0 {
		return false
	}
	if c.To != nil && tx.Date.Compare(*c.To) > 0 {
		return false
	}
	if period := c.EffectivePeriod(); period != nil {
		// Entries never assigned to a cycle stay out of period-scoped views.
		if tx.ControlPeriod == nil || !core.SameDate(tx.ControlPeriod, period) {
			return false
		}
	}
	return true
}

// Sequence is a lazy, finite view over ledger entries in arrival order.
// It can be ranged over any number of times.
type Sequence iter.Seq[core.Transaction]

// FromSlice wraps a ledger snapshot without copying it.
func FromSlice(ledger []core.Transaction) Sequence {
	return Sequence(slices.Values(ledger))
}

// FilterTransactions returns the entries of ledger that match criteria.
func FilterTransactions(ledger []core.Transaction, criteria Criteria) Sequence {
	return FromSlice(ledger).Filter(criteria)
}

// Filter narrows the sequence further.
func (s Sequence) Filter(criteria Criteria) Sequence {
	return s.Where(criteria.Match)
}

// Where narrows the sequence by an arbitrary predicate.
func (s Sequence) Where(keep func(core.Transaction) bool) Sequence {
	return func(yield func(core.Transaction) bool) {
		for tx := range s {
			if !keep(tx) {
				continue
			}
			if !yield(tx) {
				return
			}
		}
	}
}

// Collect materialises the sequence. The result is never nil.
func (s Sequence) Collect() []core.Transaction {
	out := make([]core.Transaction, 0)
	for tx := range s {
		out = append(out, tx)
	}
	return out
}

// Count returns the number of entries without materialising them.
func (s Sequence) Count() int {
	n := 0
	for range s {
		n++
	}
	return n
}
