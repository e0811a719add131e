// Package postgres stores the ledger, settings and preferences in PostgreSQL
// through a pgx connection pool.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"bilancio/internal/core"
	"bilancio/internal/ports"
	"bilancio/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Repository struct {
	pool *pgxpool.Pool
}

var _ ports.Store = (*Repository)(nil)

// Connect opens a pool, checks it and applies pending migrations.
func Connect(ctx context.Context, url string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	cfg.MaxConns = 5
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 2 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := runMigrations(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repository{pool: pool}, nil
}

func runMigrations(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("create pgx migrate driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM transactions
		UNION SELECT user_id FROM budget_preferences
		UNION SELECT user_id FROM user_settings
		UNION SELECT user_id FROM recurring_transactions
		ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *Repository) ListTransactions(ctx context.Context, userID string, page ports.Page) ([]core.Transaction, error) {
	var limit any
	if page.Limit > 0 {
		limit = page.Limit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, description, amount::text, to_char(date, 'YYYY-MM-DD'),
		       to_char(control_period, 'YYYY-MM-DD'), category, account
		FROM transactions
		WHERE user_id = $1
		ORDER BY seq
		LIMIT $2 OFFSET $3`, userID, limit, max(page.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]core.Transaction, 0)
	for rows.Next() {
		var (
			tx                core.Transaction
			amount, date      string
			period            *string
			category, account string
		)
		if err := rows.Scan(&tx.ID, &tx.Description, &amount, &date, &period, &category, &account); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.Amount, err = storage.ParseStoredAmount(amount); err != nil {
			return nil, err
		}
		if tx.Date, err = core.ParseDate(date); err != nil {
			return nil, err
		}
		if period != nil {
			p, err := core.ParseDate(*period)
			if err != nil {
				return nil, err
			}
			tx.ControlPeriod = &p
		}
		tx.Category = core.Category(category)
		tx.Account = core.Account(account)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (r *Repository) AddTransaction(ctx context.Context, userID string, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transactions (id, user_id, description, amount, date, control_period, category, account)
		VALUES ($1, $2, $3, $4::text::numeric, $5::text::date, $6::text::date, $7, $8)`,
		tx.ID, userID, tx.Description, core.FormatAmount(tx.Amount), tx.Date.String(),
		dateParam(tx.ControlPeriod), string(tx.Category), string(tx.Account))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction saved to Postgres", "id", tx.ID, "user_id", userID)
	return tx, nil
}

func (r *Repository) DefaultPeriod(ctx context.Context, userID string) (*core.Date, error) {
	var period *string
	err := r.pool.QueryRow(ctx,
		`SELECT to_char(default_period, 'YYYY-MM-DD') FROM user_settings WHERE user_id = $1`, userID).Scan(&period)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get default period: %w", err)
	}
	if period == nil {
		return nil, nil
	}
	p, err := core.ParseDate(*period)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) SetDefaultPeriod(ctx context.Context, userID string, period *core.Date) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_settings (user_id, default_period, updated_at)
		VALUES ($1, $2::text::date, now())
		ON CONFLICT (user_id) DO UPDATE SET default_period = EXCLUDED.default_period, updated_at = now()`,
		userID, dateParam(period))
	if err != nil {
		return fmt.Errorf("set default period: %w", err)
	}
	return nil
}

func scanPreference(row pgx.Row) (core.BudgetPreference, error) {
	var (
		p    core.BudgetPreference
		pct  string
		cats []string
	)
	if err := row.Scan(&p.ID, &p.Name, &pct, &cats); err != nil {
		return p, err
	}
	var err error
	if p.Percentage, err = storage.ParseStoredAmount(pct); err != nil {
		return p, err
	}
	p.Categories = make([]core.Category, 0, len(cats))
	for _, c := range cats {
		p.Categories = append(p.Categories, core.Category(c))
	}
	return p, nil
}

func (r *Repository) ListPreferences(ctx context.Context, userID string) ([]core.BudgetPreference, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, percentage::text, categories
		FROM budget_preferences WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	prefs := make([]core.BudgetPreference, 0)
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

func (r *Repository) GetPreference(ctx context.Context, userID, id string) (core.BudgetPreference, error) {
	p, err := scanPreference(r.pool.QueryRow(ctx, `
		SELECT id, name, percentage::text, categories
		FROM budget_preferences WHERE user_id = $1 AND id = $2`, userID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.BudgetPreference{}, ports.ErrNotFound
	}
	if err != nil {
		return core.BudgetPreference{}, fmt.Errorf("get preference: %w", err)
	}
	return p, nil
}

func categoryStrings(cats []core.Category) []string {
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		out = append(out, string(c))
	}
	return out
}

func (r *Repository) CreatePreference(ctx context.Context, userID string, p core.BudgetPreference) (core.BudgetPreference, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO budget_preferences (id, user_id, name, percentage, categories)
		VALUES ($1, $2, $3, $4::text::numeric, $5)`,
		p.ID, userID, p.Name, p.Percentage.String(), categoryStrings(p.Categories))
	if err != nil {
		return core.BudgetPreference{}, fmt.Errorf("insert preference: %w", err)
	}
	return p, nil
}

func (r *Repository) UpdatePreference(ctx context.Context, userID string, p core.BudgetPreference) (core.BudgetPreference, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE budget_preferences
		SET name = $1, percentage = $2::text::numeric, categories = $3, updated_at = now()
		WHERE user_id = $4 AND id = $5`,
		p.Name, p.Percentage.String(), categoryStrings(p.Categories), userID, p.ID)
	if err != nil {
		return core.BudgetPreference{}, fmt.Errorf("update preference: %w", err)
	}
	if err := expectOneRow(tag); err != nil {
		return core.BudgetPreference{}, err
	}
	return p, nil
}

func (r *Repository) DeletePreference(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM budget_preferences WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}
	return expectOneRow(tag)
}

func (r *Repository) ListRecurring(ctx context.Context, userID string) ([]core.RecurringTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'), every,
		       description, amount::text, category, account, last_executed
		FROM recurring_transactions WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("list recurring: %w", err)
	}
	defer rows.Close()

	list := make([]core.RecurringTransaction, 0)
	for rows.Next() {
		var (
			rt                   core.RecurringTransaction
			start, every, amount string
			category, account    string
			end                  *string
			lastExecuted         *time.Time
		)
		if err := rows.Scan(&rt.ID, &start, &end, &every, &rt.Description, &amount, &category, &account, &lastExecuted); err != nil {
			return nil, fmt.Errorf("scan recurring: %w", err)
		}
		if rt.StartDate, err = core.ParseDate(start); err != nil {
			return nil, err
		}
		if end != nil {
			if rt.EndDate, err = core.ParseDate(*end); err != nil {
				return nil, err
			}
		}
		if rt.Amount, err = storage.ParseStoredAmount(amount); err != nil {
			return nil, err
		}
		if lastExecuted != nil {
			rt.LastExecuted = lastExecuted.UTC()
		}
		rt.Every = core.RepetitionTypes(every)
		rt.Category = core.Category(category)
		rt.Account = core.Account(account)
		list = append(list, rt)
	}
	return list, rows.Err()
}

func (r *Repository) CreateRecurring(ctx context.Context, userID string, rt core.RecurringTransaction) (core.RecurringTransaction, error) {
	if err := rt.Validate(); err != nil {
		return core.RecurringTransaction{}, err
	}
	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO recurring_transactions
			(id, user_id, start_date, end_date, every, description, amount, category, account, last_executed)
		VALUES ($1, $2, $3::text::date, $4::text::date, $5, $6, $7::text::numeric, $8, $9, $10)`,
		rt.ID, userID, rt.StartDate.String(), dateParam(&rt.EndDate), string(rt.Every),
		rt.Description, core.FormatAmount(rt.Amount), string(rt.Category), string(rt.Account),
		timeParam(rt.LastExecuted))
	if err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("insert recurring: %w", err)
	}
	return rt, nil
}

func (r *Repository) DeleteRecurring(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM recurring_transactions WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("delete recurring: %w", err)
	}
	return expectOneRow(tag)
}

func (r *Repository) MarkRecurringExecuted(ctx context.Context, userID, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE recurring_transactions SET last_executed = $1 WHERE user_id = $2 AND id = $3`,
		timeParam(at), userID, id)
	if err != nil {
		return fmt.Errorf("mark recurring executed: %w", err)
	}
	return expectOneRow(tag)
}

func dateParam(d *core.Date) *string {
	if d == nil || d.IsEmpty() {
		return nil
	}
	s := d.String()
	return &s
}

func timeParam(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func expectOneRow(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}
