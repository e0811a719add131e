// Package ports declares the collaborators the budget services depend on.
// Every backend in internal/storage implements the store ports.
package ports

import (
	"context"
	"errors"
	"time"

	"bilancio/internal/core"
)

// ErrNotFound is returned by stores when a record does not exist for the user.
var ErrNotFound = errors.New("not found")

// Page bounds a ledger read. A zero Limit means no limit.
type Page struct {
	Offset int
	Limit  int
}

// Ports for outbound adapters.
type (
	// LedgerProvider returns the user's transactions in arrival order.
	LedgerProvider interface {
		ListTransactions(ctx context.Context, userID string, page Page) ([]core.Transaction, error)
	}

	LedgerWriter interface {
		AddTransaction(ctx context.Context, userID string, tx core.Transaction) (core.Transaction, error)
	}

	// PeriodConfigProvider returns the configured default control period,
	// or nil when none is configured.
	PeriodConfigProvider interface {
		DefaultPeriod(ctx context.Context, userID string) (*core.Date, error)
	}

	PeriodConfigWriter interface {
		SetDefaultPeriod(ctx context.Context, userID string, period *core.Date) error
	}

	PreferenceStore interface {
		ListPreferences(ctx context.Context, userID string) ([]core.BudgetPreference, error)
		GetPreference(ctx context.Context, userID, id string) (core.BudgetPreference, error)
		CreatePreference(ctx context.Context, userID string, p core.BudgetPreference) (core.BudgetPreference, error)
		UpdatePreference(ctx context.Context, userID string, p core.BudgetPreference) (core.BudgetPreference, error)
		DeletePreference(ctx context.Context, userID, id string) error
	}

	RecurringStore interface {
		ListRecurring(ctx context.Context, userID string) ([]core.RecurringTransaction, error)
		CreateRecurring(ctx context.Context, userID string, rt core.RecurringTransaction) (core.RecurringTransaction, error)
		DeleteRecurring(ctx context.Context, userID, id string) error
		MarkRecurringExecuted(ctx context.Context, userID, id string, at time.Time) error
	}

	// UserLister enumerates the users that own data, for batch jobs.
	UserLister interface {
		ListUsers(ctx context.Context) ([]string, error)
	}

	EventPublisher interface {
		PublishBudgetEvent(ctx context.Context, evt core.BudgetEvent) error
	}

	// ReportWriter exports a tracking snapshot and returns a reference to it.
	ReportWriter interface {
		WriteTrackingReport(ctx context.Context, report core.TrackingReport) (ref string, err error)
	}
)

// Store bundles every persistence port a backend provides.
type Store interface {
	LedgerProvider
	LedgerWriter
	PeriodConfigProvider
	PeriodConfigWriter
	PreferenceStore
	RecurringStore
	UserLister
	Close() error
}
