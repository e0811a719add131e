package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/core"
	"bilancio/internal/ports"
)

// DefaultReportBatchSize caps how many user reports are written at once.
const DefaultReportBatchSize = 4

// ReportService exports tracking snapshots through a ReportWriter.
type ReportService struct {
	budget    *BudgetService
	writer    ports.ReportWriter
	users     ports.UserLister
	batchSize int
}

func NewReportService(budget *BudgetService, writer ports.ReportWriter, users ports.UserLister, batchSize int) *ReportService {
	if batchSize <= 0 {
		batchSize = DefaultReportBatchSize
	}
	return &ReportService{
		budget:    budget,
		writer:    writer,
		users:     users,
		batchSize: batchSize,
	}
}

// Publish writes the tracking report of one user and period. A nil period
// means the user's configured default.
func (s *ReportService) Publish(ctx context.Context, userID string, period *core.Date) (string, error) {
	report, err := s.budget.Tracking(ctx, userID, period)
	if err != nil {
		return "", fmt.Errorf("build tracking report: %w", err)
	}
	ref, err := s.writer.WriteTrackingReport(ctx, report)
	if err != nil {
		return "", fmt.Errorf("write tracking report: %w", err)
	}
	slog.InfoContext(ctx, "Tracking report written",
		"user_id", userID,
		"period", periodLabel(report.Period),
		"rows", len(report.Rows),
		"report_ref", ref)
	return ref, nil
}

// HandleEvent refreshes the report affected by a budget event.
func (s *ReportService) HandleEvent(ctx context.Context, evt core.BudgetEvent) error {
	_, err := s.Publish(ctx, evt.UserID, evt.Period)
	return err
}

// RefreshAll rewrites the default-period report of every user, at most
// batchSize at a time. It returns how many reports were written; a failing
// user is logged and skipped.
func (s *ReportService) RefreshAll(ctx context.Context) (int, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	var written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchSize)
	for _, userID := range users {
		g.Go(func() error {
			if _, err := s.Publish(gctx, userID, nil); err != nil {
				slog.ErrorContext(gctx, "Failed to refresh tracking report",
					"user_id", userID,
					"error", err)
				return nil
			}
			written.Add(1)
			return nil
		})
	}
	// Workers never fail the group; cancellation is the only error.
	_ = g.Wait()
	return int(written.Load()), ctx.Err()
}
