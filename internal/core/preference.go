package core

import (
	"github.com/shopspring/decimal"
)

// BudgetPreference is a named claim on a percentage of a period's
// allocatable budget, tied to a set of categories.
type BudgetPreference struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Percentage decimal.Decimal `json:"percentage"`
	Categories []Category      `json:"categories"`
}

// Claims reports whether the preference includes the category.
func (p BudgetPreference) Claims(c Category) bool {
	for _, own := range p.Categories {
		if own == c {
			return true
		}
	}
	return false
}

// BudgetSummary is derived from the preference set on every read and never stored.
type BudgetSummary struct {
	Preferences           []BudgetPreference `json:"preferences"`
	TotalPercentage       decimal.Decimal    `json:"total_percentage"`
	IsComplete            bool               `json:"is_complete"`
	MissingPercentage     decimal.Decimal    `json:"missing_percentage"`
	OverlappingCategories []Category         `json:"overlapping_categories"`
}

// HasOverlap reports whether some category is claimed by more than one preference.
func (s BudgetSummary) HasOverlap() bool {
	return len(s.OverlappingCategories) > 0
}

// SpendStatus classifies a preference's actual spend against its budget.
type SpendStatus string

const (
	StatusUnderBudget SpendStatus = "under_budget"
	StatusOnBudget    SpendStatus = "on_budget"
	StatusOverBudget  SpendStatus = "over_budget"
)

// TrackedPreference is the spend tracking row for one preference in one period.
type TrackedPreference struct {
	Preference     BudgetPreference `json:"preference"`
	BudgetedAmount decimal.Decimal  `json:"budgeted_amount"`
	ActualSpend    decimal.Decimal  `json:"actual_spend"`
	Variance       decimal.Decimal  `json:"variance"`
	Status         SpendStatus      `json:"status"`
	Progress       decimal.Decimal  `json:"progress"`
}

// Remaining is the unallocated share of a period's budget, seen both as
// a percentage and as an amount of the same total.
type Remaining struct {
	TotalBudget decimal.Decimal `json:"total_budget"`
	Percentage  decimal.Decimal `json:"percentage"`
	Amount      decimal.Decimal `json:"amount"`
}

// ValidationReason names the rule a rejected preference mutation violated.
type ValidationReason string

const (
	ReasonNameRequired               ValidationReason = "NameRequired"
	ReasonPercentageOutOfRange       ValidationReason = "PercentageOutOfRange"
	ReasonCategoriesEmpty            ValidationReason = "CategoriesEmpty"
	ReasonPercentageExceedsRemaining ValidationReason = "PercentageExceedsRemaining"
	ReasonCategoryAlreadyAssigned    ValidationReason = "CategoryAlreadyAssigned"
)
