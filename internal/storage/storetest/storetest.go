// Package storetest holds the behaviour every ports.Store backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
	"bilancio/internal/ports"
)

// Run exercises a store. Each subtest uses a fresh user so backends that
// share a database between runs stay isolated.
func Run(t *testing.T, store ports.Store) {
	t.Helper()

	t.Run("ledger keeps arrival order", func(t *testing.T) {
		ctx := context.Background()
		user := "storetest-" + uuid.NewString()
		sep := core.NewDate(2025, 9, 1)

		for i, amount := range []string{"100", "-20.50", "-3"} {
			_, err := store.AddTransaction(ctx, user, core.Transaction{
				Description:   "entry",
				Amount:        decimal.RequireFromString(amount),
				Date:          core.NewDate(2025, 9, 10-i),
				ControlPeriod: &sep,
				Category:      core.CategoryFood,
				Account:       core.AccountChecking,
			})
			require.NoError(t, err)
		}

		txs, err := store.ListTransactions(ctx, user, ports.Page{})
		require.NoError(t, err)
		require.Len(t, txs, 3)
		assert.Equal(t, "100.00", txs[0].Amount.StringFixed(2))
		assert.Equal(t, "-20.50", txs[1].Amount.StringFixed(2))
		assert.Equal(t, 8, txs[2].Date.Day())
		require.NotNil(t, txs[2].ControlPeriod)
		assert.Equal(t, "2025-09-01", txs[2].ControlPeriod.String())

		limited, err := store.ListTransactions(ctx, user, ports.Page{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("default period round trip", func(t *testing.T) {
		ctx := context.Background()
		user := "storetest-" + uuid.NewString()

		p, err := store.DefaultPeriod(ctx, user)
		require.NoError(t, err)
		assert.Nil(t, p)

		oct := core.NewDate(2025, 10, 1)
		require.NoError(t, store.SetDefaultPeriod(ctx, user, &oct))
		p, err = store.DefaultPeriod(ctx, user)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "2025-10-01", p.String())
	})

	t.Run("preference lifecycle", func(t *testing.T) {
		ctx := context.Background()
		user := "storetest-" + uuid.NewString()

		created, err := store.CreatePreference(ctx, user, core.BudgetPreference{
			Name:       "Essentials",
			Percentage: decimal.RequireFromString("62.5"),
			Categories: []core.Category{core.CategoryFood, core.CategoryRent},
		})
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)

		created.Percentage = decimal.RequireFromString("12.25")
		created.Categories = []core.Category{core.CategoryTravel}
		_, err = store.UpdatePreference(ctx, user, created)
		require.NoError(t, err)

		got, err := store.GetPreference(ctx, user, created.ID)
		require.NoError(t, err)
		assert.True(t, got.Percentage.Equal(decimal.RequireFromString("12.25")))
		assert.Equal(t, []core.Category{core.CategoryTravel}, got.Categories)

		_, err = store.GetPreference(ctx, "someone-else-"+uuid.NewString(), created.ID)
		assert.ErrorIs(t, err, ports.ErrNotFound)

		require.NoError(t, store.DeletePreference(ctx, user, created.ID))
		assert.ErrorIs(t, store.DeletePreference(ctx, user, created.ID), ports.ErrNotFound)

		list, err := store.ListPreferences(ctx, user)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("recurring lifecycle", func(t *testing.T) {
		ctx := context.Background()
		user := "storetest-" + uuid.NewString()

		rt, err := store.CreateRecurring(ctx, user, core.RecurringTransaction{
			StartDate:   core.NewDate(2025, 1, 31),
			EndDate:     core.NewDate(2025, 12, 31),
			Every:       core.Monthly,
			Description: "gym",
			Amount:      decimal.RequireFromString("-39.90"),
			Category:    core.CategoryHealth,
			Account:     core.AccountCreditCard,
		})
		require.NoError(t, err)

		at := time.Date(2025, 2, 28, 7, 0, 0, 0, time.UTC)
		require.NoError(t, store.MarkRecurringExecuted(ctx, user, rt.ID, at))

		list, err := store.ListRecurring(ctx, user)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "2025-12-31", list[0].EndDate.String())
		assert.Equal(t, "-39.90", list[0].Amount.StringFixed(2))
		assert.True(t, list[0].LastExecuted.Equal(at))

		users, err := store.ListUsers(ctx)
		require.NoError(t, err)
		assert.Contains(t, users, user)

		require.NoError(t, store.DeleteRecurring(ctx, user, rt.ID))
		assert.ErrorIs(t, store.DeleteRecurring(ctx, user, rt.ID), ports.ErrNotFound)
	})
}
