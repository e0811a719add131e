package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/ports"
	"bilancio/internal/storage/storetest"
)

func TestMemoryStoreLedger(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i, amount := range []string{"10", "-5", "-2.50"} {
		_, err := s.AddTransaction(ctx, "u1", core.Transaction{
			Description: "t",
			Amount:      decimal.RequireFromString(amount),
			Date:        core.NewDate(2025, 9, i+1),
			Category:    core.CategoryFood,
			Account:     core.AccountChecking,
		})
		if err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	all, err := s.ListTransactions(ctx, "u1", ports.Page{})
	if err != nil || len(all) != 3 {
		t.Fatalf("unexpected list: %v err=%v", all, err)
	}
	if all[0].ID == "" {
		t.Fatalf("expected generated id")
	}
	if all[2].Date.Day() != 3 {
		t.Fatalf("expected arrival order, got %v", all)
	}

	page, _ := s.ListTransactions(ctx, "u1", ports.Page{Offset: 1, Limit: 1})
	if len(page) != 1 || !page[0].Amount.Equal(decimal.NewFromInt(-5)) {
		t.Fatalf("unexpected page: %v", page)
	}

	other, _ := s.ListTransactions(ctx, "u2", ports.Page{})
	if len(other) != 0 {
		t.Fatalf("users must not share ledgers")
	}

	_, err = s.AddTransaction(ctx, "u1", core.Transaction{Description: "x", Amount: decimal.NewFromInt(1), Date: core.NewDate(2025, 9, 1), Category: "Nope", Account: core.AccountCash})
	if !errors.Is(err, core.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestMemoryStorePreferences(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.CreatePreference(ctx, "u1", core.BudgetPreference{
		Name: "Essentials", Percentage: decimal.NewFromInt(60), Categories: []core.Category{core.CategoryFood},
	})
	if err != nil || created.ID == "" {
		t.Fatalf("create: %+v err=%v", created, err)
	}

	// Returned values are copies.
	created.Categories[0] = core.CategoryRent
	got, err := s.GetPreference(ctx, "u1", created.ID)
	if err != nil || got.Categories[0] != core.CategoryFood {
		t.Fatalf("store leaked a reference: %+v err=%v", got, err)
	}

	got.Percentage = decimal.NewFromInt(50)
	if _, err := s.UpdatePreference(ctx, "u1", got); err != nil {
		t.Fatalf("update: %v", err)
	}
	list, _ := s.ListPreferences(ctx, "u1")
	if len(list) != 1 || !list[0].Percentage.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected list after update: %+v", list)
	}

	if _, err := s.UpdatePreference(ctx, "u1", core.BudgetPreference{ID: "missing"}); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeletePreference(ctx, "u1", created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeletePreference(ctx, "u1", created.ID); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestMemoryStorePeriodAndRecurring(t *testing.T) {
	ctx := context.Background()
	s := New()

	if p, err := s.DefaultPeriod(ctx, "u1"); err != nil || p != nil {
		t.Fatalf("expected no default period, got %v err=%v", p, err)
	}
	sep := core.NewDate(2025, 9, 1)
	if err := s.SetDefaultPeriod(ctx, "u1", &sep); err != nil {
		t.Fatalf("set period: %v", err)
	}
	p, _ := s.DefaultPeriod(ctx, "u1")
	if p == nil || p.String() != "2025-09-01" {
		t.Fatalf("unexpected period %v", p)
	}

	rt, err := s.CreateRecurring(ctx, "u1", core.RecurringTransaction{
		StartDate: sep, Every: core.Monthly, Description: "rent",
		Amount: decimal.NewFromInt(-800), Category: core.CategoryRent, Account: core.AccountChecking,
	})
	if err != nil {
		t.Fatalf("create recurring: %v", err)
	}
	at := time.Date(2025, 9, 1, 6, 0, 0, 0, time.UTC)
	if err := s.MarkRecurringExecuted(ctx, "u1", rt.ID, at); err != nil {
		t.Fatalf("mark executed: %v", err)
	}
	list, _ := s.ListRecurring(ctx, "u1")
	if len(list) != 1 || !list[0].LastExecuted.Equal(at) {
		t.Fatalf("unexpected recurring list: %+v", list)
	}
	if err := s.DeleteRecurring(ctx, "u1", rt.ID); err != nil {
		t.Fatalf("delete recurring: %v", err)
	}

	users, _ := s.ListUsers(ctx)
	if len(users) != 1 || users[0] != "u1" {
		t.Fatalf("unexpected users %v", users)
	}
}

func TestNewFromFileSeeds(t *testing.T) {
	dir := t.TempDir()

	// Missing file -> empty store
	s, err := NewFromFile(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if users, _ := s.ListUsers(context.Background()); len(users) != 0 {
		t.Fatalf("expected empty store")
	}

	seed := `users:
  alice:
    default_period: "2025-09-01"
    transactions:
      - description: salary
        amount: "2000"
        date: "2025-09-01"
        control_period: "2025-09-01"
        category: salary
        account: checking
      - description: coffee
        amount: "-3,20"
        date: "2025-09-02"
        category: Food
        account: Cash
    preferences:
      - id: ess
        name: Essentials
        percentage: "60"
        categories: [Food, Rent]
      - id: fun
        name: Fun
        percentage: "30"
        categories: [Food]
`
	path := filepath.Join(dir, "seed.yaml")
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	s, err = NewFromFile(path)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	ctx := context.Background()
	txs, _ := s.ListTransactions(ctx, "alice", ports.Page{})
	if len(txs) != 2 || txs[1].ControlPeriod != nil || txs[1].Amount.String() != "-3.2" {
		t.Fatalf("unexpected transactions %+v", txs)
	}
	prefs, _ := s.ListPreferences(ctx, "alice")
	if len(prefs) != 2 || prefs[0].ID != "ess" {
		t.Fatalf("unexpected preferences %+v", prefs)
	}
	p, _ := s.DefaultPeriod(ctx, "alice")
	if p == nil || p.String() != "2025-09-01" {
		t.Fatalf("unexpected default period %v", p)
	}
}

func TestLoadRejectsBadSeed(t *testing.T) {
	cases := map[string]string{
		"unknown field":    "users:\n  a:\n    colour: red\n",
		"unknown category": "users:\n  a:\n    transactions:\n      - {description: x, amount: \"1\", date: \"2025-01-01\", category: Pets, account: Cash}\n",
		"bad date":         "users:\n  a:\n    default_period: yesterday\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if err := New().Load([]byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestMemoryStoreConformance(t *testing.T) {
	storetest.Run(t, New())
}
