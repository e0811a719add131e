// Package memory is an in-process store used for local runs and tests.
// It implements every store port in internal/ports.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/ports"
)

type userData struct {
	ledger      []core.Transaction
	period      *core.Date
	preferences []core.BudgetPreference
	recurring   []core.RecurringTransaction
}

type Store struct {
	mu    sync.Mutex
	users map[string]*userData
	order []string
}

var _ ports.Store = (*Store)(nil)

func New() *Store {
	return &Store{users: make(map[string]*userData)}
}

// user returns the bucket for userID, creating it when missing. Callers hold mu.
func (s *Store) user(userID string) *userData {
	u, ok := s.users[userID]
	if !ok {
		u = &userData{}
		s.users[userID] = u
		s.order = append(s.order, userID)
	}
	return u
}

func (s *Store) Close() error { return nil }

func (s *Store) ListUsers(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order), nil
}

// ListTransactions returns the ledger in arrival order.
func (s *Store) ListTransactions(_ context.Context, userID string, page ports.Page) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ledger := s.user(userID).ledger

	start := min(max(page.Offset, 0), len(ledger))
	end := len(ledger)
	if page.Limit > 0 {
		end = min(start+page.Limit, len(ledger))
	}
	return slices.Clone(ledger[start:end]), nil
}

func (s *Store) AddTransaction(_ context.Context, userID string, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.ledger = append(u.ledger, tx)
	return tx, nil
}

func (s *Store) DefaultPeriod(_ context.Context, userID string) (*core.Date, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.user(userID).period
	if p == nil {
		return nil, nil
	}
	return core.DatePtr(*p), nil
}

func (s *Store) SetDefaultPeriod(_ context.Context, userID string, period *core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if period == nil {
		s.user(userID).period = nil
		return nil
	}
	s.user(userID).period = core.DatePtr(*period)
	return nil
}

func clonePreference(p core.BudgetPreference) core.BudgetPreference {
	p.Categories = slices.Clone(p.Categories)
	return p
}

func (s *Store) ListPreferences(_ context.Context, userID string) ([]core.BudgetPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs := s.user(userID).preferences
	out := make([]core.BudgetPreference, 0, len(prefs))
	for _, p := range prefs {
		out = append(out, clonePreference(p))
	}
	return out, nil
}

func (s *Store) GetPreference(_ context.Context, userID, id string) (core.BudgetPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.user(userID).preferences {
		if p.ID == id {
			return clonePreference(p), nil
		}
	}
	return core.BudgetPreference{}, ports.ErrNotFound
}

func (s *Store) CreatePreference(_ context.Context, userID string, p core.BudgetPreference) (core.BudgetPreference, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p = clonePreference(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.preferences = append(u.preferences, p)
	return clonePreference(p), nil
}

func (s *Store) UpdatePreference(_ context.Context, userID string, p core.BudgetPreference) (core.BudgetPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	i := slices.IndexFunc(u.preferences, func(x core.BudgetPreference) bool { return x.ID == p.ID })
	if i < 0 {
		return core.BudgetPreference{}, ports.ErrNotFound
	}
	u.preferences[i] = clonePreference(p)
	return clonePreference(p), nil
}

func (s *Store) DeletePreference(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	i := slices.IndexFunc(u.preferences, func(x core.BudgetPreference) bool { return x.ID == id })
	if i < 0 {
		return ports.ErrNotFound
	}
	u.preferences = slices.Delete(u.preferences, i, i+1)
	return nil
}

func (s *Store) ListRecurring(_ context.Context, userID string) ([]core.RecurringTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.user(userID).recurring), nil
}

func (s *Store) CreateRecurring(_ context.Context, userID string, rt core.RecurringTransaction) (core.RecurringTransaction, error) {
	if err := rt.Validate(); err != nil {
		return core.RecurringTransaction{}, err
	}
	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.recurring = append(u.recurring, rt)
	return rt, nil
}

func (s *Store) DeleteRecurring(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	i := slices.IndexFunc(u.recurring, func(x core.RecurringTransaction) bool { return x.ID == id })
	if i < 0 {
		return ports.ErrNotFound
	}
	u.recurring = slices.Delete(u.recurring, i, i+1)
	return nil
}

func (s *Store) MarkRecurringExecuted(_ context.Context, userID, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	for i := range u.recurring {
		if u.recurring[i].ID == id {
			u.recurring[i].LastExecuted = at
			return nil
		}
	}
	return ports.ErrNotFound
}
