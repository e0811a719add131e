package log

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

type ContextKey string

const LoggerContextKey ContextKey = "logger"

func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the context, falling back to the
// process default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger provides the budget-specific log events.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP)

	sl.logger.WithComponent(ComponentHTTP).Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogPreferenceMutation records a committed create, update or delete.
func (sl *StructuredLogger) LogPreferenceMutation(ctx context.Context, op, userID string, p core.BudgetPreference) {
	fields := NewFields().
		WithUser(userID).
		WithOperation(op).
		WithPreference(p.ID, p.Name, p.Percentage.String(), categoryNames(p.Categories))

	sl.logger.WithComponent(ComponentBudget).InfoContext(ctx, "Budget preference committed", fields.ToSlice()...)
}

// LogValidationRejected records a mutation refused by the validator.
func (sl *StructuredLogger) LogValidationRejected(ctx context.Context, userID string, p core.BudgetPreference, reason core.ValidationReason, err error) {
	fields := NewFields().
		WithUser(userID).
		WithOperation(OpValidate).
		WithPreference(p.ID, p.Name, p.Percentage.String(), categoryNames(p.Categories)).
		WithError(err)
	fields[FieldReason] = string(reason)

	sl.logger.WithComponent(ComponentBudget).WarnContext(ctx, "Budget preference rejected", fields.ToSlice()...)
}

// LogOverlapDetected flags a stored preference set that claims a category twice.
func (sl *StructuredLogger) LogOverlapDetected(ctx context.Context, userID string, overlapping []core.Category, total decimal.Decimal) {
	fields := NewFields().WithUser(userID)
	fields[FieldOverlapping] = categoryNames(overlapping)
	fields[FieldPercentage] = total.String()

	sl.logger.WithComponent(ComponentBudget).WarnContext(ctx, "Budget preferences share categories", fields.ToSlice()...)
}

func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	fields.WithError(err).WithOperation(operation)
	sl.logger.WithComponent(component).ErrorContext(ctx, msg, fields.ToSlice()...)
}

func categoryNames(cats []core.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}
