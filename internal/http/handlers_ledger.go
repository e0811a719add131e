package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"bilancio/internal/core"
)

type transactionList struct {
	Transactions []core.Transaction `json:"transactions"`
	Count        int                `json:"count"`
}

type periodBody struct {
	Period *core.Date `json:"period"`
}

type recurringList struct {
	Recurring []core.RecurringTransaction `json:"recurring"`
}

// handleListTransactions filters the ledger. Without a period parameter
// the configured default period applies.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	criteria, err := ParseCriteria(r.URL.Query())
	if err != nil {
		s.writeError(w, r, "list_transactions", err)
		return
	}

	txs, err := s.budget.Transactions(r.Context(), userID, criteria)
	if err != nil {
		s.writeError(w, r, "list_transactions", err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	NewResponse().JSON(transactionList{Transactions: txs, Count: len(txs)}).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	body, ok := parseBody(w, r)
	if !ok {
		return
	}
	tx, err := parseTransaction(body, s.budget.PrimaryAccount(), core.DateOf(time.Now()))
	if err != nil {
		s.writeError(w, r, "create_transaction", err)
		return
	}

	saved, err := s.budget.AddTransaction(r.Context(), userID, tx)
	if err != nil {
		s.writeError(w, r, "create_transaction", err)
		return
	}
	NewResponse().
		Status(http.StatusCreated).
		TriggerLedgerAppended(saved.ControlPeriod).
		JSON(saved).
		Write(w)
}

func (s *Server) handleGetPeriod(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	period, err := s.budget.DefaultPeriod(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, "get_period", err)
		return
	}
	NewResponse().JSON(periodBody{Period: period}).Write(w)
}

// handleSetPeriod configures the default period; an empty or null period
// clears it.
func (s *Server) handleSetPeriod(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	body, ok := parseBody(w, r)
	if !ok {
		return
	}
	if !body.Has("period") {
		s.writeError(w, r, "set_period", invalid("period", errors.New("field is required")))
		return
	}
	period, err := parseOptionalDate("period", body.Get("period"))
	if err != nil {
		s.writeError(w, r, "set_period", err)
		return
	}

	if err := s.budget.SetDefaultPeriod(r.Context(), userID, period); err != nil {
		s.writeError(w, r, "set_period", err)
		return
	}
	NewResponse().TriggerPeriodChanged(period).JSON(periodBody{Period: period}).Write(w)
}

func (s *Server) recurringConfigured(w http.ResponseWriter) bool {
	if s.recurring == nil {
		ServiceUnavailableError("recurring transactions are not configured").Write(w)
		return false
	}
	return true
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok || !s.recurringConfigured(w) {
		return
	}
	items, err := s.recurring.ListRecurring(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, "list_recurring", err)
		return
	}
	if items == nil {
		items = []core.RecurringTransaction{}
	}
	NewResponse().JSON(recurringList{Recurring: items}).Write(w)
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok || !s.recurringConfigured(w) {
		return
	}
	body, ok := parseBody(w, r)
	if !ok {
		return
	}
	rt, err := parseRecurring(body, s.budget.PrimaryAccount(), core.DateOf(time.Now()))
	if err != nil {
		s.writeError(w, r, "create_recurring", err)
		return
	}

	created, err := s.recurring.CreateRecurring(r.Context(), userID, rt)
	if err != nil {
		s.writeError(w, r, "create_recurring", err)
		return
	}
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/recurring/"+created.ID).
		TriggerRecurringChanged().
		JSON(created).
		Write(w)
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok || !s.recurringConfigured(w) {
		return
	}
	if err := s.recurring.DeleteRecurring(r.Context(), userID, strings.TrimSpace(r.PathValue("id"))); err != nil {
		s.writeError(w, r, "delete_recurring", err)
		return
	}
	NewResponse().Status(http.StatusNoContent).TriggerRecurringChanged().Write(w)
}
