package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

func newParser(t *testing.T, body string) *RequestBodyParser {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return p
}

func TestRequestBodyParser(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		isJSON   bool
		wantName string
		wantList []string
	}{
		{"json", `{"name":"Home","categories":["Food"," Rent "]}`, true, "Home", []string{"Food", "Rent"}},
		{"form repeated", "name=Home&categories=Food&categories=Rent", false, "Home", []string{"Food", "Rent"}},
		{"form comma separated", "name=+Home+&categories=Food,,Rent", false, "Home", []string{"Food", "Rent"}},
		{"json string list", `{"name":"Home","categories":"Food,Rent"}`, true, "Home", []string{"Food", "Rent"}},
		{"empty body", "", false, "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newParser(t, tt.body)
			if p.IsJSON() != tt.isJSON {
				t.Errorf("IsJSON() = %v", p.IsJSON())
			}
			if got := p.Get("name"); got != tt.wantName {
				t.Errorf("Get(name) = %q, want %q", got, tt.wantName)
			}
			got := p.GetList("categories")
			if strings.Join(got, "|") != strings.Join(tt.wantList, "|") {
				t.Errorf("GetList() = %v, want %v", got, tt.wantList)
			}
		})
	}
}

func TestRequestBodyParser_Errors(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	if err := NewRequestBodyParser(r).Parse(); err == nil {
		t.Error("expected error for malformed JSON")
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", maxBodyBytes+1)))
	if err := NewRequestBodyParser(r).Parse(); err == nil {
		t.Error("expected error for an oversized body")
	}
}

func TestRequestBodyParser_HasAndSanitize(t *testing.T) {
	p := newParser(t, `{"period":null,"description":"a\u0000b","amount":12.5,"flag":true}`)
	if !p.Has("period") || p.Has("missing") {
		t.Error("Has() mismatch")
	}
	if got := p.Get("period"); got != "" {
		t.Errorf("null should read as empty, got %q", got)
	}
	if got := p.Get("description"); got != "ab" {
		t.Errorf("control characters should be stripped, got %q", got)
	}
	if got := p.Get("amount"); got != "12.5" {
		t.Errorf("Get(amount) = %q", got)
	}
	if got := p.Get("flag"); got != "true" {
		t.Errorf("Get(flag) = %q", got)
	}
}

func TestParseCriteria(t *testing.T) {
	c, err := ParseCriteria(url.Values{
		"category": {"food"},
		"account":  {"creditcard"},
		"from":     {"2025-09-01"},
		"to":       {"2025-09-30"},
		"period":   {"2025-09-01"},
	})
	if err != nil {
		t.Fatalf("ParseCriteria() error = %v", err)
	}
	if *c.Category != core.CategoryFood || *c.Account != core.AccountCreditCard {
		t.Errorf("enums = %v %v", *c.Category, *c.Account)
	}
	if c.From.String() != "2025-09-01" || c.To.String() != "2025-09-30" || c.Period.String() != "2025-09-01" {
		t.Errorf("dates = %v %v %v", c.From, c.To, c.Period)
	}

	empty, err := ParseCriteria(url.Values{})
	if err != nil || empty.Category != nil || empty.Account != nil || empty.From != nil || empty.To != nil || empty.Period != nil {
		t.Errorf("empty query should impose nothing: %+v, %v", empty, err)
	}

	bad := []url.Values{
		{"category": {"Nope"}},
		{"account": {"Wallet"}},
		{"from": {"09/01/2025"}},
		{"from": {"2025-09-30"}, "to": {"2025-09-01"}},
		{"period": {"2025-02-30"}},
	}
	for _, q := range bad {
		_, err := ParseCriteria(q)
		var ie *inputError
		if !errors.As(err, &ie) {
			t.Errorf("ParseCriteria(%v) error = %v, want an input error", q, err)
		}
	}
}

func TestParsePreference(t *testing.T) {
	pref, err := parsePreference(newParser(t, `{"name":"Home","percentage":"12,5%","categories":["food","RENT"]}`))
	if err != nil {
		t.Fatalf("parsePreference() error = %v", err)
	}
	if !pref.Percentage.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("percentage = %s", pref.Percentage)
	}
	if len(pref.Categories) != 2 || pref.Categories[0] != core.CategoryFood || pref.Categories[1] != core.CategoryRent {
		t.Errorf("categories = %v", pref.Categories)
	}

	if _, err := parsePreference(newParser(t, `{"name":"x","percentage":"lots"}`)); err == nil {
		t.Error("expected error for a non-numeric percentage")
	}
}

func TestParseTransactionDefaults(t *testing.T) {
	today := core.NewDate(2025, 9, 15)
	tx, err := parseTransaction(newParser(t, "description=Coffee&amount=-2.505&category=Food"), core.AccountCash, today)
	if err != nil {
		t.Fatalf("parseTransaction() error = %v", err)
	}
	if tx.Date != today || tx.Account != core.AccountCash || tx.ControlPeriod != nil {
		t.Errorf("defaults not applied: %+v", tx)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("-2.51")) {
		t.Errorf("amount = %s", tx.Amount)
	}
}

func TestParseRecurring(t *testing.T) {
	today := core.NewDate(2025, 9, 15)
	rt, err := parseRecurring(newParser(t, `{"description":"Gym","amount":"-30","every":"weekly","category":"Health","end_date":"2026-09-15"}`), core.AccountChecking, today)
	if err != nil {
		t.Fatalf("parseRecurring() error = %v", err)
	}
	if rt.StartDate != today || rt.EndDate.String() != "2026-09-15" || rt.Every != core.Weekly {
		t.Errorf("recurring = %+v", rt)
	}

	if _, err := parseRecurring(newParser(t, `{"description":"Gym","amount":"-30","every":"weekly","category":"Health","start_date":"soon"}`), core.AccountChecking, today); err == nil {
		t.Error("expected error for a bad start date")
	}
}
