package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Category is the closed set of ledger categories. Preferences claim
// values from the same set.
type Category string

const (
	CategorySalary        Category = "Salary"
	CategoryFreelance     Category = "Freelance"
	CategoryFood          Category = "Food"
	CategoryRent          Category = "Rent"
	CategoryUtilities     Category = "Utilities"
	CategoryTransport     Category = "Transport"
	CategoryHealth        Category = "Health"
	CategoryEntertainment Category = "Entertainment"
	CategoryShopping      Category = "Shopping"
	CategoryTravel        Category = "Travel"
	CategoryEducation     Category = "Education"
	CategoryGifts         Category = "Gifts"
	CategoryTaxes         Category = "Taxes"
	CategorySavings       Category = "Savings"
	CategoryInvestments   Category = "Investments"
	CategoryOther         Category = "Other"
)

// Account is the closed set of ledger accounts.
type Account string

const (
	AccountChecking   Account = "Checking"
	AccountSavings    Account = "Savings"
	AccountCreditCard Account = "CreditCard"
	AccountCash       Account = "Cash"
	AccountInvestment Account = "Investment"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrUnknownAccount   = errors.New("unknown account")

	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
)

var allCategories = []Category{
	CategorySalary, CategoryFreelance, CategoryFood, CategoryRent, CategoryUtilities,
	CategoryTransport, CategoryHealth, CategoryEntertainment, CategoryShopping,
	CategoryTravel, CategoryEducation, CategoryGifts, CategoryTaxes,
	CategorySavings, CategoryInvestments, CategoryOther,
}

var allAccounts = []Account{
	AccountChecking, AccountSavings, AccountCreditCard, AccountCash, AccountInvestment,
}

// Categories returns every category in display order.
func Categories() []Category {
	return append([]Category(nil), allCategories...)
}

// Accounts returns every account in display order.
func Accounts() []Account {
	return append([]Account(nil), allAccounts...)
}

// ParseCategory maps user input onto the closed category set, ignoring case.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range allCategories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// ParseAccount maps user input onto the closed account set, ignoring case.
func ParseAccount(s string) (Account, error) {
	s = strings.TrimSpace(s)
	for _, a := range allAccounts {
		if strings.EqualFold(string(a), s) {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAccount, s)
}

// Valid reports whether c is exactly one of the canonical categories.
func (c Category) Valid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

func (a Account) Valid() bool {
	for _, known := range allAccounts {
		if a == known {
			return true
		}
	}
	return false
}

// Transaction is one ledger entry. Amount is signed: inflows are positive,
// outflows negative. ControlPeriod is nil when the entry was never assigned
// to a budgeting cycle.
type Transaction struct {
	ID            string          `json:"id"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Date          Date            `json:"date"`
	ControlPeriod *Date           `json:"control_period,omitempty"`
	Category      Category        `json:"category"`
	Account       Account         `json:"account"`
}

// Validate checks a transaction at the ingestion boundary. Everything
// downstream assumes category and account are members of their enums.
func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	if t.Amount.IsZero() {
		return ErrInvalidAmount
	}
	if t.ControlPeriod != nil {
		if err := t.ControlPeriod.Validate(); err != nil {
			return fmt.Errorf("invalid control period: %w", err)
		}
	}
	if !t.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, t.Category)
	}
	if !t.Account.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAccount, t.Account)
	}
	return nil
}

// IsOutflow reports whether the transaction takes money out of the account.
func (t Transaction) IsOutflow() bool {
	return t.Amount.IsNegative()
}
