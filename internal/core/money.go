// Package core holds the domain types shared by the budget engine, the
// stores and the transports.
//
// This file contains the decimal helpers used for currency amounts and
// allocation percentages.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// CurrencyPlaces is the number of decimals kept for currency amounts.
	CurrencyPlaces = 2
	// PercentagePlaces is the number of decimals kept for percentages.
	PercentagePlaces = 2
)

var (
	// Hundred is the full allocation, 100%.
	Hundred = decimal.NewFromInt(100)
	// Epsilon is the tolerance applied to percentage totals.
	Epsilon = decimal.RequireFromString("0.001")
)

// ParseAmount converts a decimal string into a signed amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// rounds half-up to two decimals. Zero is rejected: a ledger entry always
// moves money.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("-12,34") -> -12.34
//	ParseAmount("1.005")  -> 1.01
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d = RoundCurrency(d)
	if d.IsZero() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParsePercentage parses a percentage value, keeping two decimals.
// Range checks belong to the budget validator.
func ParsePercentage(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	s = strings.TrimSuffix(s, "%")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid percentage %q: %w", s, err)
	}
	return RoundPercentage(d), nil
}

// RoundCurrency rounds half away from zero to two decimals.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// RoundPercentage keeps two decimals of a percentage.
func RoundPercentage(d decimal.Decimal) decimal.Decimal {
	return d.Round(PercentagePlaces)
}

// FormatAmount renders an amount with exactly two decimals, e.g. "-12.50".
func FormatAmount(d decimal.Decimal) string {
	return RoundCurrency(d).StringFixed(CurrencyPlaces)
}

// FormatEuros renders an amount for display, e.g. "€ 1234.50".
func FormatEuros(d decimal.Decimal) string {
	return "€ " + FormatAmount(d)
}
