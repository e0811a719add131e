// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// request bodies in JSON or form encoding, and the query parameters shared
// by the budget views.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"bilancio/internal/budget"
	"bilancio/internal/core"
)

// maxBodyBytes bounds every request body the API reads.
const maxBodyBytes = 64 << 10

// inputError marks a request the client got wrong before any service ran.
type inputError struct {
	field string
	err   error
}

func (e *inputError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.field, e.err)
}

func (e *inputError) Unwrap() error {
	return e.err
}

func invalid(field string, err error) error {
	return &inputError{field: field, err: err}
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = errors.New("request body too large")
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}

	if body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(body), &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(body)
	return p.err
}

// Has reports whether the body carries the key at all, even as null.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// GetList returns a list value. JSON arrays are taken element by element;
// form values may repeat the key or separate items with commas.
func (p *RequestBodyParser) GetList(key string) []string {
	var raw []string
	switch {
	case p.jsonData != nil:
		switch val := p.jsonData[key].(type) {
		case []any:
			for _, item := range val {
				raw = append(raw, stringValue(item))
			}
		case string:
			raw = strings.Split(val, ",")
		}
	case p.formData != nil:
		for _, v := range p.formData[key] {
			raw = append(raw, strings.Split(v, ",")...)
		}
	}

	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if v = strings.TrimSpace(sanitizeInput(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// parseOptionalDate parses a YYYY-MM-DD value; an empty value is nil.
func parseOptionalDate(field, value string) (*core.Date, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	d, err := core.ParseDate(value)
	if err != nil {
		return nil, invalid(field, err)
	}
	return &d, nil
}

// parsePeriod reads the period query parameter.
func parsePeriod(query url.Values) (*core.Date, error) {
	return parseOptionalDate("period", query.Get("period"))
}

// ParseCriteria builds ledger selection criteria from query parameters.
// Unknown categories and accounts are rejected rather than ignored.
func ParseCriteria(query url.Values) (budget.Criteria, error) {
	var c budget.Criteria
	if v := strings.TrimSpace(query.Get("category")); v != "" {
		cat, err := core.ParseCategory(v)
		if err != nil {
			return c, invalid("category", err)
		}
		c.Category = &cat
	}
	if v := strings.TrimSpace(query.Get("account")); v != "" {
		acc, err := core.ParseAccount(v)
		if err != nil {
			return c, invalid("account", err)
		}
		c.Account = &acc
	}

	var err error
	if c.From, err = parseOptionalDate("from", query.Get("from")); err != nil {
		return c, err
	}
	if c.To, err = parseOptionalDate("to", query.Get("to")); err != nil {
		return c, err
	}
	if c.From != nil && c.To != nil && c.From.Compare(*c.To) > 0 {
		return c, invalid("range", errors.New("from is after to"))
	}
	if c.Period, err = parsePeriod(query); err != nil {
		return c, err
	}
	return c, nil
}

// parseDecimal reads a plain decimal that may use a comma separator.
func parseDecimal(field, value string) (*decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(value, ",", "."))
	if err != nil {
		return nil, invalid(field, err)
	}
	return &d, nil
}

// parseConversion reads the amount and percentage query parameters.
func parseConversion(query url.Values) (amount, percentage *decimal.Decimal, err error) {
	if amount, err = parseDecimal("amount", query.Get("amount")); err != nil {
		return nil, nil, err
	}
	if v := strings.TrimSpace(query.Get("percentage")); v != "" {
		pct, perr := core.ParsePercentage(v)
		if perr != nil {
			return nil, nil, invalid("percentage", perr)
		}
		percentage = &pct
	}
	return amount, percentage, nil
}

// parseTransaction reads a new ledger entry. Date defaults to today and
// account to the primary account; control period stays nil when absent.
func parseTransaction(p *RequestBodyParser, primary core.Account, today core.Date) (core.Transaction, error) {
	tx := core.Transaction{
		Description: p.Get("description"),
		Date:        today,
		Account:     primary,
	}

	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return tx, invalid("amount", err)
	}
	tx.Amount = amount

	if date, err := parseOptionalDate("date", p.Get("date")); err != nil {
		return tx, err
	} else if date != nil {
		tx.Date = *date
	}
	if tx.ControlPeriod, err = parseOptionalDate("control_period", p.Get("control_period")); err != nil {
		return tx, err
	}

	if tx.Category, err = core.ParseCategory(p.Get("category")); err != nil {
		return tx, invalid("category", err)
	}
	if v := p.Get("account"); v != "" {
		if tx.Account, err = core.ParseAccount(v); err != nil {
			return tx, invalid("account", err)
		}
	}
	return tx, nil
}

// parsePreference reads a preference candidate. Range and exclusivity
// checks are left to the budget validator so they report their reason.
func parsePreference(p *RequestBodyParser) (core.BudgetPreference, error) {
	pref := core.BudgetPreference{Name: p.Get("name")}

	if v := p.Get("percentage"); v != "" {
		pct, err := core.ParsePercentage(v)
		if err != nil {
			return pref, invalid("percentage", err)
		}
		pref.Percentage = pct
	}

	for _, name := range p.GetList("categories") {
		cat, err := core.ParseCategory(name)
		if err != nil {
			return pref, invalid("categories", err)
		}
		pref.Categories = append(pref.Categories, cat)
	}
	return pref, nil
}

// parseRecurring reads a recurring template. Start date defaults to today.
func parseRecurring(p *RequestBodyParser, primary core.Account, today core.Date) (core.RecurringTransaction, error) {
	rt := core.RecurringTransaction{
		Description: p.Get("description"),
		StartDate:   today,
		Account:     primary,
	}

	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return rt, invalid("amount", err)
	}
	rt.Amount = amount

	if start, err := parseOptionalDate("start_date", p.Get("start_date")); err != nil {
		return rt, err
	} else if start != nil {
		rt.StartDate = *start
	}
	if end, err := parseOptionalDate("end_date", p.Get("end_date")); err != nil {
		return rt, err
	} else if end != nil {
		rt.EndDate = *end
	}

	if rt.Every, err = core.ParseRepetition(p.Get("every")); err != nil {
		return rt, invalid("every", err)
	}
	if rt.Category, err = core.ParseCategory(p.Get("category")); err != nil {
		return rt, invalid("category", err)
	}
	if v := p.Get("account"); v != "" {
		if rt.Account, err = core.ParseAccount(v); err != nil {
			return rt, invalid("account", err)
		}
	}
	return rt, nil
}
