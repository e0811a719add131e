package memory

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"bilancio/internal/core"
)

type seedFile struct {
	Users map[string]seedUser `yaml:"users"`
}

type seedUser struct {
	DefaultPeriod string           `yaml:"default_period"`
	Transactions  []seedTx         `yaml:"transactions"`
	Preferences   []seedPreference `yaml:"preferences"`
}

type seedTx struct {
	ID            string `yaml:"id"`
	Description   string `yaml:"description"`
	Amount        string `yaml:"amount"`
	Date          string `yaml:"date"`
	ControlPeriod string `yaml:"control_period"`
	Category      string `yaml:"category"`
	Account       string `yaml:"account"`
}

type seedPreference struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Percentage string   `yaml:"percentage"`
	Categories []string `yaml:"categories"`
}

// NewFromFile builds a store seeded from a YAML file. A missing path yields
// an empty store. Preferences are loaded as written, so a seed can contain
// overlapping categories the validated path would have rejected.
func NewFromFile(path string) (*Store, error) {
	s := New()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	if err := s.Load(data); err != nil {
		return nil, fmt.Errorf("load seed %s: %w", path, err)
	}
	return s, nil
}

// Load decodes a YAML seed document into the store.
func (s *Store) Load(data []byte) error {
	var doc seedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}

	ctx := context.Background()
	for userID, u := range doc.Users {
		if u.DefaultPeriod != "" {
			p, err := core.ParseDate(u.DefaultPeriod)
			if err != nil {
				return fmt.Errorf("user %s default period: %w", userID, err)
			}
			_ = s.SetDefaultPeriod(ctx, userID, &p)
		}
		for i, row := range u.Transactions {
			tx, err := row.toTransaction()
			if err != nil {
				return fmt.Errorf("user %s transaction %d: %w", userID, i, err)
			}
			if _, err := s.AddTransaction(ctx, userID, tx); err != nil {
				return fmt.Errorf("user %s transaction %d: %w", userID, i, err)
			}
		}
		for i, row := range u.Preferences {
			p, err := row.toPreference()
			if err != nil {
				return fmt.Errorf("user %s preference %d: %w", userID, i, err)
			}
			_, _ = s.CreatePreference(ctx, userID, p)
		}
	}
	return nil
}

func (r seedTx) toTransaction() (core.Transaction, error) {
	amount, err := core.ParseAmount(r.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := core.ParseDate(r.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	cat, err := core.ParseCategory(r.Category)
	if err != nil {
		return core.Transaction{}, err
	}
	acc, err := core.ParseAccount(r.Account)
	if err != nil {
		return core.Transaction{}, err
	}
	tx := core.Transaction{
		ID:          r.ID,
		Description: r.Description,
		Amount:      amount,
		Date:        date,
		Category:    cat,
		Account:     acc,
	}
	if r.ControlPeriod != "" {
		p, err := core.ParseDate(r.ControlPeriod)
		if err != nil {
			return core.Transaction{}, err
		}
		tx.ControlPeriod = &p
	}
	return tx, nil
}

func (r seedPreference) toPreference() (core.BudgetPreference, error) {
	pct, err := decimal.NewFromString(r.Percentage)
	if err != nil {
		return core.BudgetPreference{}, fmt.Errorf("percentage %q: %w", r.Percentage, err)
	}
	cats := make([]core.Category, 0, len(r.Categories))
	for _, c := range r.Categories {
		cat, err := core.ParseCategory(c)
		if err != nil {
			return core.BudgetPreference{}, err
		}
		cats = append(cats, cat)
	}
	return core.BudgetPreference{ID: r.ID, Name: r.Name, Percentage: pct, Categories: cats}, nil
}
