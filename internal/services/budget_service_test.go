package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/budget"
	"bilancio/internal/core"
	"bilancio/internal/ports"
	"bilancio/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.BudgetEvent
	err    error
}

func (p *recordingPublisher) PublishBudgetEvent(_ context.Context, evt core.BudgetEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) kinds() []core.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.EventKind, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}

var (
	september = core.NewDate(2025, 9, 1)
	october   = core.NewDate(2025, 10, 1)
)

func newTestService(t *testing.T) (*BudgetService, *memory.Store, *recordingPublisher) {
	t.Helper()
	store := memory.New()
	events := &recordingPublisher{}
	svc := NewBudgetService(store, events, BudgetOptions{
		PrimaryAccount:   core.AccountChecking,
		SummaryCacheSize: 8,
	})
	return svc, store, events
}

func addLedger(t *testing.T, store *memory.Store, userID string) {
	t.Helper()
	ctx := context.Background()
	entries := []core.Transaction{
		{Description: "salary", Amount: decimal.NewFromInt(2000), Date: core.NewDate(2025, 9, 1), ControlPeriod: &september, Category: core.CategorySalary, Account: core.AccountChecking},
		{Description: "side job", Amount: decimal.NewFromInt(300), Date: core.NewDate(2025, 9, 5), ControlPeriod: &september, Category: core.CategoryFreelance, Account: core.AccountChecking},
		{Description: "rent", Amount: decimal.NewFromInt(-800), Date: core.NewDate(2025, 9, 2), ControlPeriod: &september, Category: core.CategoryRent, Account: core.AccountChecking},
		{Description: "groceries", Amount: decimal.NewFromInt(-200), Date: core.NewDate(2025, 9, 3), ControlPeriod: &september, Category: core.CategoryFood, Account: core.AccountChecking},
		{Description: "card dinner", Amount: decimal.NewFromInt(-90), Date: core.NewDate(2025, 9, 4), ControlPeriod: &september, Category: core.CategoryFood, Account: core.AccountCreditCard},
		{Description: "bonus", Amount: decimal.NewFromInt(500), Date: core.NewDate(2025, 9, 6), ControlPeriod: &september, Category: core.CategorySalary, Account: core.AccountSavings},
		{Description: "october salary", Amount: decimal.NewFromInt(999), Date: core.NewDate(2025, 10, 1), ControlPeriod: &october, Category: core.CategorySalary, Account: core.AccountChecking},
		{Description: "unassigned", Amount: decimal.NewFromInt(40), Date: core.NewDate(2025, 9, 7), Category: core.CategoryGifts, Account: core.AccountChecking},
	}
	for _, tx := range entries {
		_, err := store.AddTransaction(ctx, userID, tx)
		require.NoError(t, err)
	}
}

func preference(name, pct string, cats ...core.Category) core.BudgetPreference {
	return core.BudgetPreference{Name: name, Percentage: decimal.RequireFromString(pct), Categories: cats}
}

func TestBudgetService_CreatePreference(t *testing.T) {
	ctx := context.Background()
	svc, _, events := newTestService(t)

	created, err := svc.CreatePreference(ctx, "alice", preference("  Essentials ", "60", core.CategoryFood, core.CategoryRent, core.CategoryFood))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Essentials", created.Name)
	assert.Equal(t, []core.Category{core.CategoryFood, core.CategoryRent}, created.Categories)

	_, err = svc.CreatePreference(ctx, "alice", preference("Fun", "50", core.CategoryTravel))
	assert.ErrorIs(t, err, budget.ErrPercentageExceedsRemaining)

	_, err = svc.CreatePreference(ctx, "alice", preference("Dining", "10", core.CategoryFood))
	assert.ErrorIs(t, err, budget.ErrCategoryAlreadyAssigned)

	_, err = svc.CreatePreference(ctx, "alice", preference("", "10", core.CategoryTravel))
	ve, ok := budget.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, core.ReasonNameRequired, ve.Reason)

	// Rejected mutations leave the set and the event stream untouched.
	summary, err := svc.Summary(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, summary.Preferences, 1)
	assert.Equal(t, []core.EventKind{core.EventPreferenceCreated}, events.kinds())
}

func TestBudgetService_UpdatePreference(t *testing.T) {
	ctx := context.Background()
	svc, _, events := newTestService(t)

	ess, err := svc.CreatePreference(ctx, "alice", preference("Essentials", "60", core.CategoryFood))
	require.NoError(t, err)
	_, err = svc.CreatePreference(ctx, "alice", preference("Travel", "30", core.CategoryTravel))
	require.NoError(t, err)

	// Its own 60% does not count against the edit.
	updated, err := svc.UpdatePreference(ctx, "alice", ess.ID, preference("Essentials", "70", core.CategoryFood, core.CategoryRent))
	require.NoError(t, err)
	assert.Equal(t, ess.ID, updated.ID)

	_, err = svc.UpdatePreference(ctx, "alice", ess.ID, preference("Essentials", "71", core.CategoryFood))
	assert.ErrorIs(t, err, budget.ErrPercentageExceedsRemaining)

	_, err = svc.UpdatePreference(ctx, "alice", ess.ID, preference("Essentials", "50", core.CategoryTravel))
	assert.ErrorIs(t, err, budget.ErrCategoryAlreadyAssigned)

	_, err = svc.UpdatePreference(ctx, "alice", "missing", preference("Ghost", "1", core.CategoryGifts))
	assert.ErrorIs(t, err, ports.ErrNotFound)

	summary, err := svc.Summary(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, summary.TotalPercentage.Equal(decimal.NewFromInt(100)))
	assert.True(t, summary.IsComplete)
	assert.Contains(t, events.kinds(), core.EventPreferenceUpdated)
}

func TestBudgetService_DeletePreferenceReleasesCategories(t *testing.T) {
	ctx := context.Background()
	svc, _, events := newTestService(t)

	ess, err := svc.CreatePreference(ctx, "alice", preference("Essentials", "100", core.CategoryFood))
	require.NoError(t, err)

	require.NoError(t, svc.DeletePreference(ctx, "alice", ess.ID))
	assert.ErrorIs(t, svc.DeletePreference(ctx, "alice", ess.ID), ports.ErrNotFound)

	_, err = svc.CreatePreference(ctx, "alice", preference("Groceries", "100", core.CategoryFood))
	require.NoError(t, err)
	assert.Equal(t, []core.EventKind{
		core.EventPreferenceCreated,
		core.EventPreferenceDeleted,
		core.EventPreferenceCreated,
	}, events.kinds())
}

func TestBudgetService_SummaryReflectsEveryMutation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	empty, err := svc.Summary(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, empty.MissingPercentage.Equal(decimal.NewFromInt(100)))

	// Served from cache the second time, same content.
	again, err := svc.Summary(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, empty, again)

	_, err = svc.CreatePreference(ctx, "alice", preference("Essentials", "40", core.CategoryFood))
	require.NoError(t, err)
	after, err := svc.Summary(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, after.TotalPercentage.Equal(decimal.NewFromInt(40)))
	assert.True(t, after.MissingPercentage.Equal(decimal.NewFromInt(60)))
}

func TestBudgetService_SummaryFlagsStoredOverlap(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	// Seeds bypass validation, so the stored set can already overlap.
	require.NoError(t, store.Load([]byte(`users:
  alice:
    preferences:
      - {id: a, name: Essentials, percentage: "50", categories: [Food, Rent]}
      - {id: b, name: Dining, percentage: "20", categories: [Food]}
`)))

	summary, err := svc.Summary(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []core.Category{core.CategoryFood}, summary.OverlappingCategories)
	assert.Len(t, summary.Preferences, 2)
}

func TestBudgetService_PeriodBudget(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	addLedger(t, store, "alice")

	none, err := svc.PeriodBudget(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Nil(t, none.Period)
	assert.True(t, none.TotalBudget.IsZero())

	sep, err := svc.PeriodBudget(ctx, "alice", &september)
	require.NoError(t, err)
	assert.Equal(t, "2300.00", sep.TotalBudget.StringFixed(2))

	require.NoError(t, svc.SetDefaultPeriod(ctx, "alice", &october))
	def, err := svc.PeriodBudget(ctx, "alice", nil)
	require.NoError(t, err)
	require.NotNil(t, def.Period)
	assert.Equal(t, "2025-10-01", def.Period.String())
	assert.Equal(t, "999.00", def.TotalBudget.StringFixed(2))
}

func TestBudgetService_Transactions(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	addLedger(t, store, "alice")

	all, err := svc.Transactions(ctx, "alice", budget.Criteria{})
	require.NoError(t, err)
	assert.Len(t, all, 8)

	require.NoError(t, svc.SetDefaultPeriod(ctx, "alice", &september))
	food := core.CategoryFood
	got, err := svc.Transactions(ctx, "alice", budget.Criteria{Category: &food})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "groceries", got[0].Description)
	assert.Equal(t, "card dinner", got[1].Description)

	// An explicit period wins over the default.
	oct, err := svc.Transactions(ctx, "alice", budget.Criteria{Period: &october})
	require.NoError(t, err)
	require.Len(t, oct, 1)
	assert.Equal(t, "october salary", oct[0].Description)
}

func TestBudgetService_TrackingAndRemaining(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	addLedger(t, store, "alice")
	require.NoError(t, svc.SetDefaultPeriod(ctx, "alice", &september))

	_, err := svc.CreatePreference(ctx, "alice", preference("Essentials", "50", core.CategoryFood, core.CategoryRent))
	require.NoError(t, err)

	report, err := svc.Tracking(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", report.UserID)
	require.NotNil(t, report.Period)
	assert.Equal(t, "2300.00", report.TotalBudget.StringFixed(2))
	require.Len(t, report.Rows, 1)
	row := report.Rows[0]
	assert.Equal(t, "1150.00", row.BudgetedAmount.StringFixed(2))
	// The credit card dinner is off the primary account.
	assert.Equal(t, "1000.00", row.ActualSpend.StringFixed(2))
	assert.Equal(t, "150.00", row.Variance.StringFixed(2))
	assert.Equal(t, core.StatusUnderBudget, row.Status)
	assert.Equal(t, "0.8696", row.Progress.String())

	remaining, err := svc.Remaining(ctx, "alice", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "50", remaining.Percentage.String())
	assert.Equal(t, "1150.00", remaining.Amount.StringFixed(2))

	dash, err := svc.Dashboard(ctx, "alice", &october)
	require.NoError(t, err)
	assert.Equal(t, "999.00", dash.TotalBudget.StringFixed(2))
	require.Len(t, dash.Tracking, 1)
	assert.True(t, dash.Tracking[0].ActualSpend.IsZero())
	assert.Equal(t, "499.50", dash.Remaining.Amount.StringFixed(2))
}

func TestBudgetService_TrackingWithoutPeriod(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	addLedger(t, store, "alice")
	_, err := svc.CreatePreference(ctx, "alice", preference("Essentials", "50", core.CategoryFood))
	require.NoError(t, err)

	report, err := svc.Tracking(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Nil(t, report.Period)
	require.Len(t, report.Rows, 1)
	assert.True(t, report.Rows[0].BudgetedAmount.IsZero())
	assert.True(t, report.Rows[0].ActualSpend.IsZero())
	assert.Equal(t, core.StatusOnBudget, report.Rows[0].Status)
}

func TestBudgetService_Convert(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	addLedger(t, store, "alice")

	amount := decimal.NewFromInt(230)
	conv, err := svc.Convert(ctx, "alice", &september, &amount, nil)
	require.NoError(t, err)
	assert.Equal(t, "10", conv.Percentage.String())

	pct := decimal.NewFromInt(25)
	conv, err = svc.Convert(ctx, "alice", &september, nil, &pct)
	require.NoError(t, err)
	assert.Equal(t, "575.00", conv.Amount.StringFixed(2))

	_, err = svc.Convert(ctx, "alice", &september, nil, nil)
	assert.ErrorIs(t, err, ErrConversionInput)
	_, err = svc.Convert(ctx, "alice", &september, &amount, &pct)
	assert.ErrorIs(t, err, ErrConversionInput)
}

func TestBudgetService_AddTransaction(t *testing.T) {
	ctx := context.Background()
	svc, _, events := newTestService(t)

	_, err := svc.AddTransaction(ctx, "alice", core.Transaction{
		Description: "pet food", Amount: decimal.NewFromInt(-10), Date: september, Category: "Pets", Account: core.AccountCash,
	})
	assert.ErrorIs(t, err, core.ErrUnknownCategory)
	assert.Empty(t, events.kinds())

	saved, err := svc.AddTransaction(ctx, "alice", core.Transaction{
		Description: " coffee ", Amount: decimal.RequireFromString("-2.505"), Date: september, ControlPeriod: &september,
		Category: core.CategoryFood, Account: core.AccountCash,
	})
	require.NoError(t, err)
	assert.Equal(t, "coffee", saved.Description)
	assert.Equal(t, "-2.51", saved.Amount.StringFixed(2))

	require.Len(t, events.events, 1)
	assert.Equal(t, core.EventLedgerAppended, events.events[0].Kind)
	assert.True(t, core.SameDate(events.events[0].Period, &september))
}

func TestBudgetService_PublishFailureDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()
	svc, _, events := newTestService(t)
	events.err = errors.New("broker down")

	_, err := svc.CreatePreference(ctx, "alice", preference("Essentials", "10", core.CategoryFood))
	require.NoError(t, err)
	require.NoError(t, svc.SetDefaultPeriod(ctx, "alice", &september))
	assert.Equal(t, []core.EventKind{core.EventPreferenceCreated, core.EventPeriodChanged}, events.kinds())
}

func TestBudgetService_ConcurrentCreatesNeverOverAllocate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	cats := core.Categories()

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreatePreference(ctx, "alice", preference("p", "20", cats[i]))
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, accepted)
	summary, err := svc.Summary(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, summary.TotalPercentage.Equal(decimal.NewFromInt(100)))
}

func TestBudgetService_ReadsLedgerBeyondOnePage(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewBudgetService(store, nil, BudgetOptions{
		PrimaryAccount: core.AccountChecking,
		LedgerPageSize: 3,
	})
	august := core.NewDate(2025, 8, 1)

	for day := 1; day <= 3; day++ {
		_, err := svc.AddTransaction(ctx, "alice", core.Transaction{
			Description:   "august pay",
			Amount:        decimal.NewFromInt(100),
			Date:          core.NewDate(2025, 8, day),
			ControlPeriod: &august,
			Category:      core.CategorySalary,
			Account:       core.AccountChecking,
		})
		require.NoError(t, err)
	}
	_, err := svc.AddTransaction(ctx, "alice", core.Transaction{
		Description:   "september pay",
		Amount:        decimal.NewFromInt(1000),
		Date:          core.NewDate(2025, 9, 1),
		ControlPeriod: &september,
		Category:      core.CategorySalary,
		Account:       core.AccountChecking,
	})
	require.NoError(t, err)

	total, err := svc.PeriodBudget(ctx, "alice", &september)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", total.TotalBudget.StringFixed(2))

	all, err := svc.Transactions(ctx, "alice", budget.Criteria{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "september pay", all[3].Description)

	// A ledger that is an exact multiple of the page size.
	for day := 2; day <= 3; day++ {
		_, err := svc.AddTransaction(ctx, "alice", core.Transaction{
			Description:   "september extra",
			Amount:        decimal.NewFromInt(10),
			Date:          core.NewDate(2025, 9, day),
			ControlPeriod: &september,
			Category:      core.CategorySalary,
			Account:       core.AccountChecking,
		})
		require.NoError(t, err)
	}
	dash, err := svc.Dashboard(ctx, "alice", &september)
	require.NoError(t, err)
	assert.Equal(t, "1020.00", dash.TotalBudget.StringFixed(2))
}
