// Package services orchestrates the budget engine around its collaborators:
// stores, the event publisher and the report writer.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bilancio/internal/budget"
	"bilancio/internal/cache"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/ports"
)

// DefaultLedgerPageSize is how many ledger entries a single store call returns.
const DefaultLedgerPageSize = 5000

var ErrConversionInput = errors.New("exactly one of amount or percentage is required")

// BudgetStore is the slice of a backend the budget service needs.
type BudgetStore interface {
	ports.LedgerProvider
	ports.LedgerWriter
	ports.PeriodConfigProvider
	ports.PeriodConfigWriter
	ports.PreferenceStore
}

type BudgetOptions struct {
	PrimaryAccount core.Account
	LedgerPageSize int
	// SummaryCacheSize bounds the summary cache; zero disables it.
	SummaryCacheSize int
	Logger           *applog.Logger
}

// BudgetService serves the budget views for one user at a time and guards
// preference mutations so that only validated sets are ever committed.
type BudgetService struct {
	store     BudgetStore
	events    ports.EventPublisher
	summaries cache.Cache[core.BudgetSummary]
	audit     *applog.StructuredLogger
	primary   core.Account
	pageSize  int

	// one mutex per user serialises validate-then-persist
	locks sync.Map
}

func NewBudgetService(store BudgetStore, events ports.EventPublisher, opts BudgetOptions) *BudgetService {
	primary := opts.PrimaryAccount
	if primary == "" {
		primary = core.AccountChecking
	}
	pageSize := opts.LedgerPageSize
	if pageSize <= 0 {
		pageSize = DefaultLedgerPageSize
	}
	var summaries cache.Cache[core.BudgetSummary] = cache.Noop[core.BudgetSummary]{}
	if opts.SummaryCacheSize > 0 {
		summaries = cache.NewLRUCache[core.BudgetSummary](opts.SummaryCacheSize)
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	return &BudgetService{
		store:     store,
		events:    events,
		summaries: summaries,
		audit:     applog.NewStructuredLogger(logger.WithComponent(applog.ComponentBudget)),
		primary:   primary,
		pageSize:  pageSize,
	}
}

// PrimaryAccount is the account budgets and tracking are computed on.
func (s *BudgetService) PrimaryAccount() core.Account {
	return s.primary
}

// PeriodTotal is the allocatable budget of one control period.
type PeriodTotal struct {
	Period      *core.Date      `json:"period"`
	TotalBudget decimal.Decimal `json:"total_budget"`
}

// Conversion shows one quantity as both an amount and a share of the budget.
type Conversion struct {
	TotalBudget decimal.Decimal `json:"total_budget"`
	Amount      decimal.Decimal `json:"amount"`
	Percentage  decimal.Decimal `json:"percentage"`
}

// Dashboard bundles every budget view of a period.
type Dashboard struct {
	Period      *core.Date               `json:"period"`
	TotalBudget decimal.Decimal          `json:"total_budget"`
	Summary     core.BudgetSummary       `json:"summary"`
	Tracking    []core.TrackedPreference `json:"tracking"`
	Remaining   core.Remaining           `json:"remaining"`
}

// snapshot is a consistent read of everything a period view needs.
type snapshot struct {
	period *core.Date
	ledger []core.Transaction
	prefs  []core.BudgetPreference
}

func (sn snapshot) total(primary core.Account) decimal.Decimal {
	if sn.period == nil {
		return decimal.Zero
	}
	return budget.ComputePeriodBudget(sn.ledger, sn.period, primary)
}

// load reads the ledger, the preference set and, when no explicit period
// is given, the configured default, concurrently.
func (s *BudgetService) load(ctx context.Context, userID string, period *core.Date) (snapshot, error) {
	sn := snapshot{period: period}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ledger, err := s.readLedger(gctx, userID)
		if err != nil {
			return err
		}
		sn.ledger = ledger
		return nil
	})
	g.Go(func() error {
		prefs, err := s.store.ListPreferences(gctx, userID)
		if err != nil {
			return fmt.Errorf("list preferences: %w", err)
		}
		sn.prefs = prefs
		return nil
	})
	if period == nil {
		g.Go(func() error {
			def, err := s.store.DefaultPeriod(gctx, userID)
			if err != nil {
				return fmt.Errorf("default period: %w", err)
			}
			sn.period = def
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}
	return sn, nil
}

// readLedger reads the user's whole ledger in arrival order, one page of
// pageSize entries at a time.
func (s *BudgetService) readLedger(ctx context.Context, userID string) ([]core.Transaction, error) {
	var ledger []core.Transaction
	for offset := 0; ; offset += s.pageSize {
		page, err := s.store.ListTransactions(ctx, userID, ports.Page{Offset: offset, Limit: s.pageSize})
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		ledger = append(ledger, page...)
		if len(page) < s.pageSize {
			return ledger, nil
		}
	}
}

func (s *BudgetService) resolvePeriod(ctx context.Context, userID string, period *core.Date) (*core.Date, error) {
	if period != nil {
		return period, nil
	}
	def, err := s.store.DefaultPeriod(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("default period: %w", err)
	}
	return def, nil
}

// Transactions returns the ledger entries matching criteria. The
// configured default period is filled in when the caller did not set one.
func (s *BudgetService) Transactions(ctx context.Context, userID string, criteria budget.Criteria) ([]core.Transaction, error) {
	if criteria.Period == nil && criteria.DefaultPeriod == nil {
		def, err := s.store.DefaultPeriod(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("default period: %w", err)
		}
		criteria.DefaultPeriod = def
	}
	ledger, err := s.readLedger(ctx, userID)
	if err != nil {
		return nil, err
	}
	return budget.FilterTransactions(ledger, criteria).Collect(), nil
}

// PeriodBudget computes the allocatable budget. A nil period means the
// configured default; with no default either, the budget is zero.
func (s *BudgetService) PeriodBudget(ctx context.Context, userID string, period *core.Date) (PeriodTotal, error) {
	p, err := s.resolvePeriod(ctx, userID, period)
	if err != nil {
		return PeriodTotal{}, err
	}
	if p == nil {
		return PeriodTotal{TotalBudget: decimal.Zero}, nil
	}
	ledger, err := s.readLedger(ctx, userID)
	if err != nil {
		return PeriodTotal{}, err
	}
	return PeriodTotal{Period: p, TotalBudget: budget.ComputePeriodBudget(ledger, p, s.primary)}, nil
}

// Summary aggregates the user's preference set. Overlap in stored data is
// reported and logged, never corrected.
func (s *BudgetService) Summary(ctx context.Context, userID string) (core.BudgetSummary, error) {
	prefs, err := s.store.ListPreferences(ctx, userID)
	if err != nil {
		return core.BudgetSummary{}, fmt.Errorf("list preferences: %w", err)
	}
	return s.summarize(ctx, userID, prefs), nil
}

func (s *BudgetService) summarize(ctx context.Context, userID string, prefs []core.BudgetPreference) core.BudgetSummary {
	key := summaryKey(userID, prefs)
	if cached, ok := s.summaries.Get(key); ok {
		return cached
	}
	summary := budget.ComputeSummary(prefs)
	if summary.HasOverlap() {
		s.audit.LogOverlapDetected(ctx, userID, summary.OverlappingCategories, summary.TotalPercentage)
	}
	s.summaries.Set(key, summary)
	return summary
}

// summaryKey identifies a preference set by its full content.
func summaryKey(userID string, prefs []core.BudgetPreference) string {
	h := sha256.New()
	for _, p := range prefs {
		fmt.Fprintf(h, "%s\x1f%s\x1f%s", p.ID, p.Name, p.Percentage.String())
		for _, c := range p.Categories {
			fmt.Fprintf(h, "\x1f%s", c)
		}
		h.Write([]byte{0x1e})
	}
	return userID + "|" + hex.EncodeToString(h.Sum(nil))
}

func (s *BudgetService) invalidate(userID string) {
	s.summaries.DeletePrefix(userID + "|")
}

func (s *BudgetService) userLock(userID string) *sync.Mutex {
	m, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

func normalizePreference(p core.BudgetPreference) core.BudgetPreference {
	p.Name = strings.TrimSpace(p.Name)
	p.Percentage = core.RoundPercentage(p.Percentage)
	cats := make([]core.Category, 0, len(p.Categories))
	seen := make(map[core.Category]bool, len(p.Categories))
	for _, c := range p.Categories {
		if !seen[c] {
			seen[c] = true
			cats = append(cats, c)
		}
	}
	p.Categories = cats
	return p
}

// CreatePreference validates candidate against the current set and stores it.
func (s *BudgetService) CreatePreference(ctx context.Context, userID string, candidate core.BudgetPreference) (core.BudgetPreference, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	candidate = normalizePreference(candidate)
	candidate.ID = ""
	existing, err := s.store.ListPreferences(ctx, userID)
	if err != nil {
		return core.BudgetPreference{}, fmt.Errorf("list preferences: %w", err)
	}
	if err := s.validate(ctx, userID, existing, candidate, ""); err != nil {
		return core.BudgetPreference{}, err
	}

	created, err := s.store.CreatePreference(ctx, userID, candidate)
	if err != nil {
		return core.BudgetPreference{}, fmt.Errorf("create preference: %w", err)
	}
	s.invalidate(userID)
	s.audit.LogPreferenceMutation(ctx, applog.OpCreate, userID, created)
	s.publish(ctx, core.BudgetEvent{Kind: core.EventPreferenceCreated, UserID: userID, PreferenceID: created.ID})
	return created, nil
}

// UpdatePreference replaces preference id. The preference's own previous
// percentage and categories do not count against the candidate.
func (s *BudgetService) UpdatePreference(ctx context.Context, userID, id string, candidate core.BudgetPreference) (core.BudgetPreference, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	candidate = normalizePreference(candidate)
	candidate.ID = id
	existing, err := s.store.ListPreferences(ctx, userID)
	if err != nil {
		return core.BudgetPreference{}, fmt.Errorf("list preferences: %w", err)
	}
	found := false
	for _, p := range existing {
		if p.ID == id {
			found = true
			break
		}
	}
	if !found {
		return core.BudgetPreference{}, fmt.Errorf("preference %s: %w", id, ports.ErrNotFound)
	}
	if err := s.validate(ctx, userID, existing, candidate, id); err != nil {
		return core.BudgetPreference{}, err
	}

	updated, err := s.store.UpdatePreference(ctx, userID, candidate)
	if err != nil {
		return core.BudgetPreference{}, fmt.Errorf("update preference: %w", err)
	}
	s.invalidate(userID)
	s.audit.LogPreferenceMutation(ctx, applog.OpUpdate, userID, updated)
	s.publish(ctx, core.BudgetEvent{Kind: core.EventPreferenceUpdated, UserID: userID, PreferenceID: id})
	return updated, nil
}

// DeletePreference removes a preference, releasing its categories and share.
func (s *BudgetService) DeletePreference(ctx context.Context, userID, id string) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.store.GetPreference(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("get preference %s: %w", id, err)
	}
	if err := s.store.DeletePreference(ctx, userID, id); err != nil {
		return fmt.Errorf("delete preference %s: %w", id, err)
	}
	s.invalidate(userID)
	s.audit.LogPreferenceMutation(ctx, applog.OpDelete, userID, existing)
	s.publish(ctx, core.BudgetEvent{Kind: core.EventPreferenceDeleted, UserID: userID, PreferenceID: id})
	return nil
}

func (s *BudgetService) validate(ctx context.Context, userID string, existing []core.BudgetPreference, candidate core.BudgetPreference, editingID string) error {
	err := budget.ValidateMutation(existing, candidate, editingID)
	if err == nil {
		return nil
	}
	if ve, ok := budget.AsValidationError(err); ok {
		s.audit.LogValidationRejected(ctx, userID, candidate, ve.Reason, err)
	}
	return err
}

// Remaining reports the unallocated share for a new preference, or for
// editingID when one is being edited.
func (s *BudgetService) Remaining(ctx context.Context, userID string, period *core.Date, editingID string) (core.Remaining, error) {
	sn, err := s.load(ctx, userID, period)
	if err != nil {
		return core.Remaining{}, err
	}
	return budget.RemainingFor(sn.prefs, editingID, sn.total(s.primary)), nil
}

// Convert turns an amount into a percentage of the period budget or the
// other way round. Exactly one of amount and percentage must be set.
func (s *BudgetService) Convert(ctx context.Context, userID string, period *core.Date, amount, percentage *decimal.Decimal) (Conversion, error) {
	if (amount == nil) == (percentage == nil) {
		return Conversion{}, ErrConversionInput
	}
	total, err := s.PeriodBudget(ctx, userID, period)
	if err != nil {
		return Conversion{}, err
	}
	conv := Conversion{TotalBudget: total.TotalBudget}
	if amount != nil {
		conv.Amount = core.RoundCurrency(*amount)
		conv.Percentage = budget.AmountToPercentage(total.TotalBudget, conv.Amount)
	} else {
		conv.Percentage = core.RoundPercentage(*percentage)
		conv.Amount = budget.PercentageToAmount(total.TotalBudget, conv.Percentage)
	}
	return conv, nil
}

// Tracking builds the spend tracking report for a period. Without any
// period there is nothing to track against: every row has a zero budget
// and zero spend.
func (s *BudgetService) Tracking(ctx context.Context, userID string, period *core.Date) (core.TrackingReport, error) {
	sn, err := s.load(ctx, userID, period)
	if err != nil {
		return core.TrackingReport{}, err
	}
	return core.TrackingReport{
		UserID:      userID,
		Period:      sn.period,
		TotalBudget: sn.total(s.primary),
		Summary:     s.summarize(ctx, userID, sn.prefs),
		Rows:        s.track(sn),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func (s *BudgetService) track(sn snapshot) []core.TrackedPreference {
	ledger := sn.ledger
	if sn.period == nil {
		ledger = nil
	}
	return budget.ComputeSpendTracking(sn.prefs, ledger, sn.period, s.primary)
}

// Dashboard returns budget, summary, tracking and remaining allocation
// computed from a single read of the user's data.
func (s *BudgetService) Dashboard(ctx context.Context, userID string, period *core.Date) (Dashboard, error) {
	sn, err := s.load(ctx, userID, period)
	if err != nil {
		return Dashboard{}, err
	}
	total := sn.total(s.primary)
	return Dashboard{
		Period:      sn.period,
		TotalBudget: total,
		Summary:     s.summarize(ctx, userID, sn.prefs),
		Tracking:    s.track(sn),
		Remaining:   budget.RemainingFor(sn.prefs, "", total),
	}, nil
}

// AddTransaction is the ledger ingestion boundary: enumerations, amount and
// dates are checked here and nowhere downstream.
func (s *BudgetService) AddTransaction(ctx context.Context, userID string, tx core.Transaction) (core.Transaction, error) {
	tx.Description = strings.TrimSpace(tx.Description)
	tx.Amount = core.RoundCurrency(tx.Amount)
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	saved, err := s.store.AddTransaction(ctx, userID, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}
	s.publish(ctx, core.BudgetEvent{Kind: core.EventLedgerAppended, UserID: userID, Period: saved.ControlPeriod})
	return saved, nil
}

func (s *BudgetService) DefaultPeriod(ctx context.Context, userID string) (*core.Date, error) {
	return s.store.DefaultPeriod(ctx, userID)
}

// SetDefaultPeriod configures (or, with nil, clears) the default period.
func (s *BudgetService) SetDefaultPeriod(ctx context.Context, userID string, period *core.Date) error {
	if period != nil {
		if err := period.Validate(); err != nil {
			return fmt.Errorf("invalid period: %w", err)
		}
	}
	if err := s.store.SetDefaultPeriod(ctx, userID, period); err != nil {
		return fmt.Errorf("set default period: %w", err)
	}
	s.publish(ctx, core.BudgetEvent{Kind: core.EventPeriodChanged, UserID: userID, Period: period})
	return nil
}

// publish announces a committed change. Failures are logged only: the
// change is already stored.
func (s *BudgetService) publish(ctx context.Context, evt core.BudgetEvent) {
	if s.events == nil {
		slog.DebugContext(ctx, "Event publisher not configured, skipping event", "kind", evt.Kind)
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if err := s.events.PublishBudgetEvent(ctx, evt); err != nil {
		slog.ErrorContext(ctx, "Failed to publish budget event",
			"kind", evt.Kind,
			"user_id", evt.UserID,
			"error", err)
	}
}
