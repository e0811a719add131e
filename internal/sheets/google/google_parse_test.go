package google

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

func TestSheetTitle(t *testing.T) {
	sep := core.NewDate(2025, 9, 1)
	tests := []struct {
		name   string
		base   string
		user   string
		period *core.Date
		want   string
	}{
		{"with period", "Tracking", "alice", &sep, "Tracking alice 2025-09"},
		{"without period", "Tracking", "alice", nil, "Tracking alice none"},
		{"strips forbidden characters", "Budget", "a/b:c[1]", &sep, "Budget abc1 2025-09"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sheetTitle(tt.base, tt.user, tt.period); got != tt.want {
				t.Errorf("sheetTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReportRows(t *testing.T) {
	sep := core.NewDate(2025, 9, 1)
	essentials := core.BudgetPreference{
		Name:       "Essentials",
		Percentage: decimal.NewFromInt(50),
		Categories: []core.Category{core.CategoryFood, core.CategoryRent},
	}
	report := core.TrackingReport{
		UserID:      "alice",
		Period:      &sep,
		TotalBudget: decimal.NewFromInt(2300),
		Summary: core.BudgetSummary{
			Preferences:           []core.BudgetPreference{essentials},
			TotalPercentage:       decimal.NewFromInt(50),
			OverlappingCategories: []core.Category{core.CategoryFood},
		},
		Rows: []core.TrackedPreference{{
			Preference:     essentials,
			BudgetedAmount: decimal.NewFromInt(1150),
			ActualSpend:    decimal.NewFromInt(1000),
			Variance:       decimal.NewFromInt(150),
			Status:         core.StatusUnderBudget,
		}},
		GeneratedAt: time.Date(2025, 9, 30, 8, 0, 0, 0, time.UTC),
	}

	rows := reportRows(report)

	// 5 header lines, a blank, the column header, one preference, totals, overlap.
	if len(rows) != 10 {
		t.Fatalf("expected 10 rows, got %d", len(rows))
	}
	if rows[1][1] != "2025-09-01" {
		t.Errorf("period cell = %v", rows[1][1])
	}
	if rows[2][1] != "2300.00" {
		t.Errorf("total budget cell = %v", rows[2][1])
	}
	if rows[4][1] != "2025-09-30T08:00:00Z" {
		t.Errorf("generated cell = %v", rows[4][1])
	}

	pref := rows[7]
	want := []any{"Essentials", "Food, Rent", "50.00", "1150.00", "1000.00", "150.00"}
	for i := range want {
		if pref[i] != want[i] {
			t.Errorf("preference cell %d = %v, want %v", i, pref[i], want[i])
		}
	}

	totals := rows[8]
	if totals[0] != "Total" || totals[3] != "1150.00" || totals[5] != "150.00" {
		t.Errorf("unexpected totals row: %v", totals)
	}
	if rows[9][0] != "Overlapping" || rows[9][1] != "Food" {
		t.Errorf("unexpected overlap row: %v", rows[9])
	}
}

func TestReportRows_NoPeriodNoOverlap(t *testing.T) {
	rows := reportRows(core.TrackingReport{UserID: "bob"})
	if len(rows) != 8 {
		t.Fatalf("expected 8 rows, got %d", len(rows))
	}
	if rows[1][1] != "none" {
		t.Errorf("period cell = %v", rows[1][1])
	}
	if rows[7][3] != "0.00" {
		t.Errorf("totals budgeted = %v", rows[7][3])
	}
}
