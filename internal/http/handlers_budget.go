package http

import (
	"net/http"
	"strings"
)

func (s *Server) handlePeriodBudget(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	period, err := parsePeriod(r.URL.Query())
	if err != nil {
		s.writeError(w, r, "period_budget", err)
		return
	}

	total, err := s.budget.PeriodBudget(r.Context(), userID, period)
	if err != nil {
		s.writeError(w, r, "period_budget", err)
		return
	}
	NewResponse().JSON(total).Write(w)
}

// handleSummary lists the preferences with their derived totals.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	summary, err := s.budget.Summary(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, "summary", err)
		return
	}
	NewResponse().JSON(summary).Write(w)
}

func (s *Server) handleCreatePreference(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	body, ok := parseBody(w, r)
	if !ok {
		return
	}
	candidate, err := parsePreference(body)
	if err != nil {
		s.writeError(w, r, "create_preference", err)
		return
	}

	created, err := s.budget.CreatePreference(r.Context(), userID, candidate)
	if err != nil {
		s.writeError(w, r, "create_preference", err)
		return
	}
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/preferences/"+created.ID).
		TriggerPreferencesChanged().
		JSON(created).
		Write(w)
}

// handleUpdatePreference replaces a preference; the id in the path wins
// over any id in the body.
func (s *Server) handleUpdatePreference(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	body, ok := parseBody(w, r)
	if !ok {
		return
	}
	candidate, err := parsePreference(body)
	if err != nil {
		s.writeError(w, r, "update_preference", err)
		return
	}

	updated, err := s.budget.UpdatePreference(r.Context(), userID, id, candidate)
	if err != nil {
		s.writeError(w, r, "update_preference", err)
		return
	}
	NewResponse().TriggerPreferencesChanged().JSON(updated).Write(w)
}

func (s *Server) handleDeletePreference(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if err := s.budget.DeletePreference(r.Context(), userID, strings.TrimSpace(r.PathValue("id"))); err != nil {
		s.writeError(w, r, "delete_preference", err)
		return
	}
	NewResponse().Status(http.StatusNoContent).TriggerPreferencesChanged().Write(w)
}

// handleRemaining reports the unallocated share. With editing set, the
// named preference's own percentage counts as available.
func (s *Server) handleRemaining(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	period, err := parsePeriod(query)
	if err != nil {
		s.writeError(w, r, "remaining", err)
		return
	}

	remaining, err := s.budget.Remaining(r.Context(), userID, period, strings.TrimSpace(query.Get("editing")))
	if err != nil {
		s.writeError(w, r, "remaining", err)
		return
	}
	NewResponse().JSON(remaining).Write(w)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	period, err := parsePeriod(query)
	if err != nil {
		s.writeError(w, r, "convert", err)
		return
	}
	amount, percentage, err := parseConversion(query)
	if err != nil {
		s.writeError(w, r, "convert", err)
		return
	}

	conv, err := s.budget.Convert(r.Context(), userID, period, amount, percentage)
	if err != nil {
		s.writeError(w, r, "convert", err)
		return
	}
	NewResponse().JSON(conv).Write(w)
}

func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	period, err := parsePeriod(r.URL.Query())
	if err != nil {
		s.writeError(w, r, "tracking", err)
		return
	}

	report, err := s.budget.Tracking(r.Context(), userID, period)
	if err != nil {
		s.writeError(w, r, "tracking", err)
		return
	}
	NewResponse().JSON(report).Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	period, err := parsePeriod(r.URL.Query())
	if err != nil {
		s.writeError(w, r, "dashboard", err)
		return
	}

	dash, err := s.budget.Dashboard(r.Context(), userID, period)
	if err != nil {
		s.writeError(w, r, "dashboard", err)
		return
	}
	NewResponse().JSON(dash).Write(w)
}
