package main

import (
	"context"
	"os"
	"time"

	"bilancio/internal/cli"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
	gsheet "bilancio/internal/sheets/google"
	"bilancio/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting report-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateReporting(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	res := cli.InitBackend(context.Background(), logger, cfg)

	sheets, err := gsheet.New(context.Background(), gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		ReportSheetName: cfg.GoogleReportSheetName,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		_ = res.Cleanup()
		os.Exit(1)
	}

	// The worker only reads, so it never publishes events of its own.
	budgetSvc := services.NewBudgetService(res.Store, nil, services.BudgetOptions{
		PrimaryAccount: cfg.Account(),
		LedgerPageSize: cfg.LedgerPageSize,
		Logger:         logger,
	})
	reports := services.NewReportService(budgetSvc, sheets, res.Store, cfg.ReportBatchSize)

	var source worker.EventSource
	if res.Events != nil {
		source = res.Events
	} else {
		logger.Warn("AMQP disabled, reports refresh on the interval only")
	}

	reportWorker := worker.NewReportWorker(source, reports, worker.ReportWorkerConfig{
		RefreshInterval: cfg.ReportInterval,
		RefreshOnStart:  true,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := reportWorker.Stop(shutdownCtx); err != nil {
			logger.Error("Report worker stop error", applog.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	if err := reportWorker.Start(ctx); err != nil {
		logger.Error("Failed to start report worker", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Report worker running",
		"backend", cfg.DataBackend,
		"refresh_interval", cfg.ReportInterval,
		"batch_size", cfg.ReportBatchSize)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Report-worker shutdown complete")
}
