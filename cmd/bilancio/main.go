package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"bilancio/internal/cli"
	apphttp "bilancio/internal/http"
	applog "bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.InitBackend(context.Background(), logger, cfg)

	budgetSvc := services.NewBudgetService(res.Store, res.Publisher(), services.BudgetOptions{
		PrimaryAccount:   cfg.Account(),
		LedgerPageSize:   cfg.LedgerPageSize,
		SummaryCacheSize: cfg.SummaryCacheSize,
		Logger:           logger,
	})
	recurring := services.NewRecurringProcessor(res.Store, budgetSvc)

	checks := make(map[string]apphttp.ReadinessCheck)
	for name, check := range res.ReadinessChecks() {
		checks[name] = check
	}

	rl := ratelimit.DefaultConfig()
	rl.RequestsPerMinute = cfg.RateLimitPerMinute

	srv := apphttp.NewServer(":"+cfg.Port, budgetSvc, recurring, apphttp.Options{
		DefaultUser:     cfg.DefaultUser,
		RateLimit:       rl,
		TrustedProxies:  cfg.TrustedProxies,
		BlockSuspicious: cfg.BlockSuspicious,
		ReadinessChecks: checks,
		Logger:          logger,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting bilancio server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", res.Events != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
