package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ports"
)

// RecurringStore is what the processor needs from a backend.
type RecurringStore interface {
	ports.RecurringStore
	ports.UserLister
	ports.PeriodConfigProvider
}

// RecurringProcessor manages recurring credit and payment templates and
// copies the due ones into the ledger.
type RecurringProcessor struct {
	store  RecurringStore
	ledger *BudgetService
}

func NewRecurringProcessor(store RecurringStore, ledger *BudgetService) *RecurringProcessor {
	return &RecurringProcessor{
		store:  store,
		ledger: ledger,
	}
}

func (p *RecurringProcessor) ListRecurring(ctx context.Context, userID string) ([]core.RecurringTransaction, error) {
	return p.store.ListRecurring(ctx, userID)
}

func (p *RecurringProcessor) CreateRecurring(ctx context.Context, userID string, rt core.RecurringTransaction) (core.RecurringTransaction, error) {
	rt.Description = strings.TrimSpace(rt.Description)
	rt.Amount = core.RoundCurrency(rt.Amount)
	rt.LastExecuted = time.Time{}
	if err := rt.Validate(); err != nil {
		return core.RecurringTransaction{}, err
	}
	created, err := p.store.CreateRecurring(ctx, userID, rt)
	if err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("create recurring: %w", err)
	}
	slog.InfoContext(ctx, "Recurring transaction created",
		"user_id", userID,
		"id", created.ID,
		"every", created.Every,
		"amount", created.Amount.StringFixed(2))
	return created, nil
}

func (p *RecurringProcessor) DeleteRecurring(ctx context.Context, userID, id string) error {
	if err := p.store.DeleteRecurring(ctx, userID, id); err != nil {
		return fmt.Errorf("delete recurring %s: %w", id, err)
	}
	return nil
}

// ProcessDue materialises every template that falls due at now, for every
// user. Each entry is stamped with the user's default control period.
// Failures on one template are logged and do not stop the others.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil || p.ledger == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	users, err := p.store.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	processed := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		n, err := p.processUser(ctx, userID, now)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to process recurring transactions",
				"user_id", userID,
				"error", err)
		}
		processed += n
	}

	slog.InfoContext(ctx, "Recurring transaction processing complete",
		"processed", processed,
		"users", len(users),
		"processing_date", now.Format(core.DateLayout))
	return processed, nil
}

func (p *RecurringProcessor) processUser(ctx context.Context, userID string, now time.Time) (int, error) {
	templates, err := p.store.ListRecurring(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list recurring: %w", err)
	}
	if len(templates) == 0 {
		return 0, nil
	}
	period, err := p.store.DefaultPeriod(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("default period: %w", err)
	}

	today := core.DateOf(now)
	processed := 0
	for _, rt := range templates {
		if !rt.ActiveOn(today) {
			continue
		}
		schedule, err := ScheduleFor(rt.Every)
		if err != nil {
			slog.ErrorContext(ctx, "Skipping recurring template", "id", rt.ID, "error", err)
			continue
		}
		// Stores hand back the last run in UTC; read its calendar day where
		// today was computed.
		lastRun := rt.LastExecuted
		if !lastRun.IsZero() {
			lastRun = lastRun.In(now.Location())
		}
		if !schedule.Due(lastRun, today, rt.StartDate) {
			continue
		}

		tx, err := p.ledger.AddTransaction(ctx, userID, rt.Materialize("", today, period))
		if err != nil {
			slog.ErrorContext(ctx, "Failed to create transaction from recurring template",
				"recurring_id", rt.ID,
				"description", rt.Description,
				"error", err)
			continue
		}

		if err := p.store.MarkRecurringExecuted(ctx, userID, rt.ID, now); err != nil {
			// The entry exists; the next run would duplicate it, so say so loudly.
			slog.ErrorContext(ctx, "Failed to update last execution date",
				"recurring_id", rt.ID,
				"transaction_id", tx.ID,
				"error", err)
		}

		processed++
		slog.InfoContext(ctx, "Created transaction from recurring template",
			"user_id", userID,
			"recurring_id", rt.ID,
			"transaction_id", tx.ID,
			"amount", tx.Amount.StringFixed(2),
			"every", rt.Every,
			"period", periodLabel(period))
	}
	return processed, nil
}

func periodLabel(period *core.Date) string {
	if period == nil {
		return "none"
	}
	return period.String()
}
