package main

import (
	"context"
	"time"

	"bilancio/internal/cli"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentRecurring)
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	res := cli.InitBackend(context.Background(), logger, cfg)

	// Created transactions are published so report workers pick them up.
	budgetSvc := services.NewBudgetService(res.Store, res.Publisher(), services.BudgetOptions{
		PrimaryAccount: cfg.Account(),
		LedgerPageSize: cfg.LedgerPageSize,
		Logger:         logger,
	})
	processor := services.NewRecurringProcessor(res.Store, budgetSvc)

	interval := cfg.RecurringInterval
	logger.Info("Recurring processor configured",
		"interval", interval,
		"backend", cfg.DataBackend)

	stopped := make(chan struct{})
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		<-stopped
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	process := func(now time.Time) {
		count, err := processor.ProcessDue(ctx, now)
		if err != nil {
			logger.Error("Recurring processing failed", applog.FieldError, err)
			return
		}
		logger.Info("Recurring processing complete",
			"transactions_created", count,
			"next_check", now.Add(interval).Format("15:04:05"))
	}

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		process(time.Now())
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				process(now)
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Recurring-worker shutdown complete")
}
