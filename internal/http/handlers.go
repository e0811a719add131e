package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"bilancio/internal/budget"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/ports"
	"bilancio/internal/services"
)

// errors a client can fix by changing its input
var inputErrors = []error{
	core.ErrInvalidAmount,
	core.ErrEmptyDescription,
	core.ErrDescriptionTooLong,
	core.ErrUnknownCategory,
	core.ErrUnknownAccount,
	core.ErrZeroDate,
	core.ErrInvalidDay,
	core.ErrInvalidMonth,
	core.ErrInvalidRepetition,
	core.ErrEndBeforeStart,
	services.ErrConversionInput,
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	}).Write(w)
}

// handleReady runs every configured dependency check
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.budget == nil {
		checks["budget"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["budget"] = "ok"
	}

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	NewResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides request protection counters in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	metrics := map[string]int64{
		"bilancio_uptime_seconds":            int64(time.Since(s.started).Seconds()),
		"bilancio_rate_limit_active_clients": int64(s.limiter.ActiveClients()),
		"bilancio_rate_limit_rejected_total": s.limiter.Rejected(),
		"bilancio_suspicious_requests_total": s.detector.Suspicious(),
	}
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s %d\n", name, metrics[name])
	}
	_, _ = w.Write([]byte(b.String()))
}

// requireUser resolves the acting user or answers 400.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := s.userFrom(r)
	if userID == "" {
		BadRequestError("invalid " + HeaderUserID + " header").Write(w)
		return "", false
	}
	return userID, true
}

// parseBody reads a JSON or form body or answers 400.
func parseBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("malformed request body").Write(w)
		return nil, false
	}
	return p, true
}

// writeError maps a service or parse error onto a status code. Unexpected
// errors are logged and answered without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	if ve, ok := budget.AsValidationError(err); ok {
		ValidationErrorResponse(ve.Reason, ve.Error()).Write(w)
		return
	}

	var ie *inputError
	if errors.As(err, &ie) {
		UnprocessableEntityError(ie.Error()).Write(w)
		return
	}
	if errors.Is(err, ports.ErrNotFound) {
		NotFoundError("not found").Write(w)
		return
	}
	for _, target := range inputErrors {
		if errors.Is(err, target) {
			UnprocessableEntityError(err.Error()).Write(w)
			return
		}
	}

	applog.NewStructuredLogger(applog.FromContext(r.Context())).LogError(r.Context(),
		"Request failed", err, applog.ComponentHTTP, operation, applog.NewFields())
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		ServiceUnavailableError("request timed out").Write(w)
		return
	}
	InternalServerError("internal error").Write(w)
}
