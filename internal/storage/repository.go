package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/ports"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

var _ ports.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM transactions
		UNION SELECT user_id FROM budget_preferences
		UNION SELECT user_id FROM user_settings
		UNION SELECT user_id FROM recurring_transactions
		ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListTransactions implements ports.LedgerProvider
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, page ports.Page) ([]core.Transaction, error) {
	limit := int64(-1)
	if page.Limit > 0 {
		limit = int64(page.Limit)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, description, amount, date, control_period, category, account
		FROM transactions
		WHERE user_id = ?
		ORDER BY seq
		LIMIT ? OFFSET ?`, userID, limit, max(page.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]core.Transaction, 0)
	for rows.Next() {
		var (
			tx             core.Transaction
			amount, date   string
			period         sql.NullString
			category, acct string
		)
		if err := rows.Scan(&tx.ID, &tx.Description, &amount, &date, &period, &category, &acct); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.Amount, err = ParseStoredAmount(amount); err != nil {
			return nil, err
		}
		if tx.Date, err = core.ParseDate(date); err != nil {
			return nil, err
		}
		if tx.ControlPeriod, err = ParseNullableDate(period); err != nil {
			return nil, err
		}
		tx.Category = core.Category(category)
		tx.Account = core.Account(acct)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// AddTransaction implements ports.LedgerWriter
func (r *SQLiteRepository) AddTransaction(ctx context.Context, userID string, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, description, amount, date, control_period, category, account)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, userID, tx.Description, core.FormatAmount(tx.Amount), tx.Date.String(),
		NullableDate(tx.ControlPeriod), string(tx.Category), string(tx.Account))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", tx.ID,
		"user_id", userID,
		"amount", tx.Amount.String(),
		"category", tx.Category,
		"control_period", NullableDate(tx.ControlPeriod).String)
	return tx, nil
}

// DefaultPeriod implements ports.PeriodConfigProvider
func (r *SQLiteRepository) DefaultPeriod(ctx context.Context, userID string) (*core.Date, error) {
	var period sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT default_period FROM user_settings WHERE user_id = ?`, userID).Scan(&period)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get default period: %w", err)
	}
	return ParseNullableDate(period)
}

// SetDefaultPeriod implements ports.PeriodConfigWriter
func (r *SQLiteRepository) SetDefaultPeriod(ctx context.Context, userID string, period *core.Date) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, default_period, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET default_period = excluded.default_period, updated_at = CURRENT_TIMESTAMP`,
		userID, NullableDate(period))
	if err != nil {
		return fmt.Errorf("set default period: %w", err)
	}
	return nil
}

func scanPreference(scan func(dest ...any) error) (core.BudgetPreference, error) {
	var (
		p         core.BudgetPreference
		pct, cats string
	)
	if err := scan(&p.ID, &p.Name, &pct, &cats); err != nil {
		return p, err
	}
	var err error
	if p.Percentage, err = ParseStoredAmount(pct); err != nil {
		return p, err
	}
	if p.Categories, err = DecodeCategories(cats); err != nil {
		return p, err
	}
	return p, nil
}

func (r *SQLiteRepository) ListPreferences(ctx context.Context, userID string) ([]core.BudgetPreference, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, percentage, categories
		FROM budget_preferences WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	prefs := make([]core.BudgetPreference, 0)
	for rows.Next() {
		p, err := scanPreference(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

func (r *SQLiteRepository) GetPreference(ctx context.Context, userID, id string) (core.BudgetPreference, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, percentage, categories
		FROM budget_preferences WHERE user_id = ? AND id = ?`, userID, id)
	p, err := scanPreference(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetPreference{}, ports.ErrNotFound
	}
	if err != nil {
		return core.BudgetPreference{}, fmt.Errorf("get preference: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) CreatePreference(ctx context.Context, userID string, p core.BudgetPreference) (core.BudgetPreference, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cats, err := EncodeCategories(p.Categories)
	if err != nil {
		return core.BudgetPreference{}, err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO budget_preferences (id, user_id, name, percentage, categories)
		VALUES (?, ?, ?, ?, ?)`, p.ID, userID, p.Name, p.Percentage.String(), cats)
	if err != nil {
		return core.BudgetPreference{}, fmt.Errorf("insert preference: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) UpdatePreference(ctx context.Context, userID string, p core.BudgetPreference) (core.BudgetPreference, error) {
	cats, err := EncodeCategories(p.Categories)
	if err != nil {
		return core.BudgetPreference{}, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE budget_preferences
		SET name = ?, percentage = ?, categories = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND id = ?`, p.Name, p.Percentage.String(), cats, userID, p.ID)
	if err != nil {
		return core.BudgetPreference{}, fmt.Errorf("update preference: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return core.BudgetPreference{}, err
	}
	return p, nil
}

func (r *SQLiteRepository) DeletePreference(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM budget_preferences WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}
	return expectOneRow(res)
}

func (r *SQLiteRepository) ListRecurring(ctx context.Context, userID string) ([]core.RecurringTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, start_date, end_date, every, description, amount, category, account, last_executed
		FROM recurring_transactions WHERE user_id = ? ORDER BY seq`, userID)
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
			end, lastExecuted    sql.NullString
		)
		if err := rows.Scan(&rt.ID, &start, &end, &every, &rt.Description, &amount, &category, &account, &lastExecuted); err != nil {
			return nil, fmt.Errorf("scan recurring: %w", err)
		}
		if rt.StartDate, err = core.ParseDate(start); err != nil {
			return nil, err
		}
		endDate, err := ParseNullableDate(end)
		if err != nil {
			return nil, err
		}
		if endDate != nil {
			rt.EndDate = *endDate
		}
		if rt.Amount, err = ParseStoredAmount(amount); err != nil {
			return nil, err
		}
		if rt.LastExecuted, err = ParseNullableTime(lastExecuted); err != nil {
			return nil, err
		}
		rt.Every = core.RepetitionTypes(every)
		rt.Category = core.Category(category)
		rt.Account = core.Account(account)
		list = append(list, rt)
	}
	return list, rows.Err()
}

func (r *SQLiteRepository) CreateRecurring(ctx context.Context, userID string, rt core.RecurringTransaction) (core.RecurringTransaction, error) {
	if err := rt.Validate(); err != nil {
		return core.RecurringTransaction{}, err
	}
	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_transactions
			(id, user_id, start_date, end_date, every, description, amount, category, account, last_executed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.ID, userID, rt.StartDate.String(), NullableDate(&rt.EndDate), string(rt.Every),
		rt.Description, core.FormatAmount(rt.Amount), string(rt.Category), string(rt.Account),
		NullableTime(rt.LastExecuted))
	if err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("insert recurring: %w", err)
	}
	slog.InfoContext(ctx, "Recurring transaction saved to SQLite", "id", rt.ID, "every", rt.Every)
	return rt, nil
}

func (r *SQLiteRepository) DeleteRecurring(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM recurring_transactions WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete recurring: %w", err)
	}
	return expectOneRow(res)
}

func (r *SQLiteRepository) MarkRecurringExecuted(ctx context.Context, userID, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_transactions SET last_executed = ? WHERE user_id = ? AND id = ?`,
		NullableTime(at), userID, id)
	if err != nil {
		return fmt.Errorf("mark recurring executed: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}
