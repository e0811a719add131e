package google

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// lastColumn is the rightmost column a report writes.
const lastColumn = "F"

var reportHeader = []any{"Preference", "Categories", "Percentage", "Budgeted", "Actual", "Variance"}

// sheetTitle names the tab of one user's report, e.g. "Tracking alice 2025-09".
// Reports without a period go to "<base> <user> none".
func sheetTitle(base, userID string, period *core.Date) string {
	label := "none"
	if period != nil {
		label = period.Format("2006-01")
	}
	return sanitizeTitle(fmt.Sprintf("%s %s %s", base, userID, label))
}

// sanitizeTitle drops characters Sheets rejects in tab names.
func sanitizeTitle(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', '*', '?', ':', '/', '\\', '\'':
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

func quoteSheet(title string) string {
	return "'" + title + "'"
}

// reportRows lays a tracking report out as a header block, one row per
// preference and a totals row.
func reportRows(r core.TrackingReport) [][]any {
	period := "none"
	if r.Period != nil {
		period = r.Period.String()
	}
	generated := r.GeneratedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}

	rows := [][]any{
		{"User", r.UserID},
		{"Period", period},
		{"Total budget", core.FormatAmount(r.TotalBudget)},
		{"Allocated", r.Summary.TotalPercentage.StringFixed(2) + "%"},
		{"Generated", generated.Format(time.RFC3339)},
		{},
		reportHeader,
	}

	budgeted, actual := decimal.Zero, decimal.Zero
	for _, row := range r.Rows {
		cats := make([]string, len(row.Preference.Categories))
		for i, c := range row.Preference.Categories {
			cats[i] = string(c)
		}
		rows = append(rows, []any{
			row.Preference.Name,
			strings.Join(cats, ", "),
			row.Preference.Percentage.StringFixed(2),
			core.FormatAmount(row.BudgetedAmount),
			core.FormatAmount(row.ActualSpend),
			core.FormatAmount(row.Variance),
		})
		budgeted = budgeted.Add(row.BudgetedAmount)
		actual = actual.Add(row.ActualSpend)
	}

	rows = append(rows, []any{
		"Total", "", r.Summary.TotalPercentage.StringFixed(2),
		core.FormatAmount(budgeted), core.FormatAmount(actual), core.FormatAmount(budgeted.Sub(actual)),
	})
	if r.Summary.HasOverlap() {
		cats := make([]string, len(r.Summary.OverlappingCategories))
		for i, c := range r.Summary.OverlappingCategories {
			cats[i] = string(c)
		}
		rows = append(rows, []any{"Overlapping", strings.Join(cats, ", ")})
	}
	return rows
}
