package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bilancio/internal/core"
)

// EventSource delivers budget events to a handler until ctx is done.
type EventSource interface {
	ConsumeBudgetEvents(ctx context.Context, handler func(context.Context, core.BudgetEvent) error) error
}

// Reporter rewrites tracking reports.
type Reporter interface {
	HandleEvent(ctx context.Context, evt core.BudgetEvent) error
	RefreshAll(ctx context.Context) (int, error)
}

// ReportWorkerConfig holds configuration for the report worker
type ReportWorkerConfig struct {
	// RefreshInterval is how often every user's report is rewritten (default: 1h).
	// Zero disables the periodic refresh.
	RefreshInterval time.Duration

	// RefreshOnStart runs a full refresh before the first tick
	RefreshOnStart bool
}

func DefaultReportWorkerConfig() ReportWorkerConfig {
	return ReportWorkerConfig{
		RefreshInterval: time.Hour,
		RefreshOnStart:  true,
	}
}

// ReportWorker keeps exported tracking reports current: it rewrites the
// report of the user and period named by every budget event, and runs a
// periodic full refresh as a backstop for lost messages.
type ReportWorker struct {
	source   EventSource
	reporter Reporter
	config   ReportWorkerConfig

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// NewReportWorker builds a worker. source may be nil, in which case only
// the periodic refresh runs.
func NewReportWorker(source EventSource, reporter Reporter, config ReportWorkerConfig) *ReportWorker {
	return &ReportWorker{
		source:   source,
		reporter: reporter,
		config:   config,
	}
}

// Start launches the consumer and refresh loops. Returns an error if already running.
func (w *ReportWorker) Start(ctx context.Context) error {
	if w.reporter == nil {
		return fmt.Errorf("report worker not properly initialized")
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("report worker is already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	var wg sync.WaitGroup
	if w.source != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(runCtx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.refreshLoop(runCtx)
	}()
	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	slog.InfoContext(ctx, "Report worker started",
		"refresh_interval", w.config.RefreshInterval,
		"consuming", w.source != nil)
	return nil
}

// Stop cancels both loops and waits for them to return.
func (w *ReportWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.doneCh
	w.mu.Unlock()

	cancel()

	select {
	case <-done:
		slog.InfoContext(ctx, "Report worker stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Report worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

func (w *ReportWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// HandleEvent rewrites the report an event affects.
func (w *ReportWorker) HandleEvent(ctx context.Context, evt core.BudgetEvent) error {
	slog.InfoContext(ctx, "Processing budget event",
		"kind", evt.Kind,
		"user_id", evt.UserID,
		"preference_id", evt.PreferenceID)

	if err := w.reporter.HandleEvent(ctx, evt); err != nil {
		return fmt.Errorf("refresh report for %s: %w", evt.UserID, err)
	}
	return nil
}

func (w *ReportWorker) consume(ctx context.Context) {
	err := w.source.ConsumeBudgetEvents(ctx, w.HandleEvent)
	if err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Event consumer stopped", "error", err)
	}
}

func (w *ReportWorker) refreshLoop(ctx context.Context) {
	if w.config.RefreshOnStart {
		w.refresh(ctx)
	}
	if w.config.RefreshInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(w.config.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *ReportWorker) refresh(ctx context.Context) {
	start := time.Now()
	n, err := w.reporter.RefreshAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.ErrorContext(ctx, "Periodic report refresh failed", "error", err)
		}
		return
	}
	slog.InfoContext(ctx, "Periodic report refresh complete",
		"reports", n,
		"duration", time.Since(start))
}
