package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Monthly RepetitionTypes = "monthly"
	Yearly  RepetitionTypes = "yearly"
	Weekly  RepetitionTypes = "weekly"
	Daily   RepetitionTypes = "daily"
)

// RepetitionTypes is how often a recurring transaction repeats.
type RepetitionTypes string

var (
	ErrInvalidRepetition = errors.New("invalid repetition type")
	ErrEndBeforeStart    = errors.New("end date must be after start date")
)

// RecurringTransaction is a template for a credit (positive amount) or a
// payment (negative amount) that the recurring processor copies into the
// ledger whenever it falls due.
type RecurringTransaction struct {
	ID           string          `json:"id"`
	StartDate    Date            `json:"start_date"`
	EndDate      Date            `json:"end_date"`
	Every        RepetitionTypes `json:"every"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	Category     Category        `json:"category"`
	Account      Account         `json:"account"`
	LastExecuted time.Time       `json:"last_executed,omitempty"`
}

func ParseRepetition(s string) (RepetitionTypes, error) {
	r := RepetitionTypes(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case Daily, Weekly, Monthly, Yearly:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRepetition, s)
}

func (rt RecurringTransaction) Validate() error {
	if err := rt.StartDate.Validate(); err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	if !rt.EndDate.IsEmpty() {
		if err := rt.EndDate.Validate(); err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		if rt.EndDate.Before(rt.StartDate.Time) {
			return ErrEndBeforeStart
		}
	}
	if _, err := ParseRepetition(string(rt.Every)); err != nil {
		return err
	}
	if len(strings.TrimSpace(rt.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(rt.Description) > 200 {
		return ErrDescriptionTooLong
	}
	if rt.Amount.IsZero() {
		return ErrInvalidAmount
	}
	if !rt.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, rt.Category)
	}
	if !rt.Account.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAccount, rt.Account)
	}
	return nil
}

// ActiveOn reports whether the template covers the given day.
func (rt RecurringTransaction) ActiveOn(day Date) bool {
	if day.Before(rt.StartDate.Time) {
		return false
	}
	return rt.EndDate.IsEmpty() || !day.After(rt.EndDate.Time)
}

// Materialize builds the ledger entry for one occurrence.
func (rt RecurringTransaction) Materialize(id string, on Date, period *Date) Transaction {
	return Transaction{
		ID:            id,
		Description:   rt.Description,
		Amount:        rt.Amount,
		Date:          on,
		ControlPeriod: period,
		Category:      rt.Category,
		Account:       rt.Account,
	}
}
