package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind identifies what changed in a user's budget state.
type EventKind string

const (
	EventPreferenceCreated EventKind = "preference.created"
	EventPreferenceUpdated EventKind = "preference.updated"
	EventPreferenceDeleted EventKind = "preference.deleted"
	EventLedgerAppended    EventKind = "ledger.appended"
	EventPeriodChanged     EventKind = "period.changed"
)

// BudgetEvent announces a committed change. Consumers use it to refresh
// derived views such as the tracking report.
type BudgetEvent struct {
	Kind         EventKind `json:"kind"`
	UserID       string    `json:"user_id"`
	PreferenceID string    `json:"preference_id,omitempty"`
	Period       *Date     `json:"period,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// TrackingReport is a point-in-time snapshot of spend tracking for one
// user and period, ready to be exported.
type TrackingReport struct {
	UserID      string              `json:"user_id"`
	Period      *Date               `json:"period,omitempty"`
	TotalBudget decimal.Decimal     `json:"total_budget"`
	Summary     BudgetSummary       `json:"summary"`
	Rows        []TrackedPreference `json:"rows"`
	GeneratedAt time.Time           `json:"generated_at"`
}
