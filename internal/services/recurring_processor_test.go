package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/budget"
	"bilancio/internal/core"
	"bilancio/internal/ports"
	"bilancio/internal/storage"
)

func noon(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 12, 0, 0, 0, time.Local)
}

func TestRecurringProcessor_CreateRecurring(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	proc := NewRecurringProcessor(store, svc)

	created, err := proc.CreateRecurring(ctx, "alice", core.RecurringTransaction{
		StartDate:    core.NewDate(2025, 1, 27),
		Every:        core.Monthly,
		Description:  "  salary ",
		Amount:       decimal.RequireFromString("2500.004"),
		Category:     core.CategorySalary,
		Account:      core.AccountChecking,
		LastExecuted: noon(2025, 1, 1),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "salary", created.Description)
	assert.Equal(t, "2500.00", created.Amount.StringFixed(2))
	assert.True(t, created.LastExecuted.IsZero())

	_, err = proc.CreateRecurring(ctx, "alice", core.RecurringTransaction{
		StartDate:   core.NewDate(2025, 1, 27),
		Every:       "fortnightly",
		Description: "x",
		Amount:      decimal.NewFromInt(1),
		Category:    core.CategoryOther,
		Account:     core.AccountCash,
	})
	assert.ErrorIs(t, err, core.ErrInvalidRepetition)

	list, err := proc.ListRecurring(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, proc.DeleteRecurring(ctx, "alice", created.ID))
	assert.ErrorIs(t, proc.DeleteRecurring(ctx, "alice", created.ID), ports.ErrNotFound)
}

func TestRecurringProcessor_ProcessDue(t *testing.T) {
	ctx := context.Background()
	svc, store, events := newTestService(t)
	proc := NewRecurringProcessor(store, svc)
	require.NoError(t, svc.SetDefaultPeriod(ctx, "alice", &september))

	_, err := proc.CreateRecurring(ctx, "alice", core.RecurringTransaction{
		StartDate:   core.NewDate(2025, 1, 27),
		Every:       core.Monthly,
		Description: "salary",
		Amount:      decimal.NewFromInt(2500),
		Category:    core.CategorySalary,
		Account:     core.AccountChecking,
	})
	require.NoError(t, err)
	_, err = proc.CreateRecurring(ctx, "alice", core.RecurringTransaction{
		StartDate:   core.NewDate(2025, 12, 1),
		Every:       core.Daily,
		Description: "not started",
		Amount:      decimal.NewFromInt(-5),
		Category:    core.CategoryFood,
		Account:     core.AccountCash,
	})
	require.NoError(t, err)

	n, err := proc.ProcessDue(ctx, noon(2025, 9, 27))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Same month again: nothing is due.
	n, err = proc.ProcessDue(ctx, noon(2025, 9, 28))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	ledger, err := svc.Transactions(ctx, "alice", budget.Criteria{})
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, "salary", ledger[0].Description)
	assert.Equal(t, "2025-09-27", ledger[0].Date.String())
	require.NotNil(t, ledger[0].ControlPeriod)
	assert.Equal(t, "2025-09-01", ledger[0].ControlPeriod.String())

	list, err := proc.ListRecurring(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "2025-09-27", core.DateOf(list[0].LastExecuted).String())
	assert.True(t, list[1].LastExecuted.IsZero())

	assert.Contains(t, events.kinds(), core.EventLedgerAppended)

	total, err := svc.PeriodBudget(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, "2500.00", total.TotalBudget.StringFixed(2))
}

func TestRecurringProcessor_ProcessDueHonoursCancellation(t *testing.T) {
	svc, store, _ := newTestService(t)
	proc := NewRecurringProcessor(store, svc)
	_, err := proc.CreateRecurring(context.Background(), "alice", core.RecurringTransaction{
		StartDate:   core.NewDate(2025, 1, 1),
		Every:       core.Daily,
		Description: "coffee",
		Amount:      decimal.NewFromInt(-2),
		Category:    core.CategoryFood,
		Account:     core.AccountCash,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := proc.ProcessDue(ctx, noon(2025, 9, 27))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

func TestRecurringProcessor_NotInitialized(t *testing.T) {
	proc := NewRecurringProcessor(nil, nil)
	_, err := proc.ProcessDue(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestRecurringProcessor_DailyRunsOncePerLocalDay(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "bilancio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	svc := NewBudgetService(repo, nil, BudgetOptions{PrimaryAccount: core.AccountChecking})
	proc := NewRecurringProcessor(repo, svc)
	_, err = proc.CreateRecurring(ctx, "alice", core.RecurringTransaction{
		StartDate:   core.NewDate(2025, 9, 1),
		Every:       core.Daily,
		Description: "coffee",
		Amount:      decimal.NewFromInt(-2),
		Category:    core.CategoryFood,
		Account:     core.AccountCash,
	})
	require.NoError(t, err)

	// 01:00 at UTC+2 is still the previous day in UTC.
	cest := time.FixedZone("CEST", 2*60*60)
	n, err := proc.ProcessDue(ctx, time.Date(2025, 9, 27, 1, 0, 0, 0, cest))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = proc.ProcessDue(ctx, time.Date(2025, 9, 27, 10, 0, 0, 0, cest))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = proc.ProcessDue(ctx, time.Date(2025, 9, 28, 1, 0, 0, 0, cest))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ledger, err := svc.Transactions(ctx, "alice", budget.Criteria{})
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, "2025-09-27", ledger[0].Date.String())
	assert.Equal(t, "2025-09-28", ledger[1].Date.String())
}
