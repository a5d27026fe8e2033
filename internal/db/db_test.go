package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quota-platform/internal/models"
)

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()

	sqlDB, err := Open(SQLite, filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, sqlDB, SQLite))

	store := NewStore(sqlDB, SQLite)
	require.NoError(t, store.Seed(ctx, 100, models.SystemSettings{
		CreditPrice:        decimal.NewFromInt(1),
		QuotaPrice:         decimal.NewFromInt(20),
		DailyPurchaseLimit: 100,
	}))
	return store, sqlDB
}

func insertUser(t *testing.T, store *Store, name string, credit string, quota int64) *models.User {
	t.Helper()
	ctx := context.Background()
	u := &models.User{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "x",
		Role:         models.RoleAgent,
		Status:       models.StatusActive,
	}
	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertUser(ctx, u); err != nil {
			return err
		}
		if _, err := tx.CreditUserCredit(ctx, u.ID, decimal.RequireFromString(credit)); err != nil {
			return err
		}
		_, err := tx.CreditUserQuota(ctx, u.ID, quota)
		return err
	}))
	return u
}

func loadUser(t *testing.T, store *Store, id int64) *models.User {
	t.Helper()
	var u *models.User
	require.NoError(t, store.WithTx(context.Background(), func(tx *Tx) error {
		var err error
		u, err = tx.GetUser(context.Background(), id)
		return err
	}))
	return u
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in     string
		want   Dialect
		driver string
	}{
		{"", MySQL, "mysql"},
		{"MySQL", MySQL, "mysql"},
		{"postgres", Postgres, "pgx"},
		{"postgresql", Postgres, "pgx"},
		{"sqlite", SQLite, "sqlite3"},
	}
	for _, tt := range tests {
		d, err := ParseDialect(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, d)
		assert.Equal(t, tt.driver, d.DriverName())
	}

	_, err := ParseDialect("oracle")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := "UPDATE users SET quota_balance = ? WHERE id = ? AND quota_balance >= ?"
	assert.Equal(t, q, MySQL.Rebind(q))
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t,
		"UPDATE users SET quota_balance = $1 WHERE id = $2 AND quota_balance >= $3",
		Postgres.Rebind(q),
	)
}

func TestDDLPerDialect(t *testing.T) {
	stmt := "CREATE TABLE t (id {{id}}, amount BIGINT, at {{ts}})"
	assert.Equal(t, "CREATE TABLE t (id BIGSERIAL PRIMARY KEY, amount BIGINT, at TIMESTAMPTZ)", Postgres.ddl(stmt))
	assert.Contains(t, MySQL.ddl(stmt), "AUTO_INCREMENT")
	assert.Contains(t, SQLite.ddl(stmt), "AUTOINCREMENT")
	for _, d := range []Dialect{MySQL, Postgres, SQLite} {
		assert.False(t, strings.Contains(d.ddl(stmt), "{{"), d)
	}
}

func TestMigrationsAndSeedAreIdempotent(t *testing.T) {
	store, sqlDB := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, RunMigrations(ctx, sqlDB, SQLite))
	require.NoError(t, store.Seed(ctx, 5000, models.SystemSettings{
		CreditPrice:        decimal.NewFromInt(9),
		QuotaPrice:         decimal.NewFromInt(9),
		DailyPurchaseLimit: 9,
	}))

	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		pool, err := tx.GetPool(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(100), pool.AvailableQuota)

		settings, err := tx.GetSettings(ctx)
		require.NoError(t, err)
		assert.True(t, settings.QuotaPrice.Equal(decimal.NewFromInt(20)))
		assert.Equal(t, int64(100), settings.DailyPurchaseLimit)
		return nil
	}))
}

func TestGuardedUpdatesRefuseOverdraft(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	u := insertUser(t, store, "alice", "10.50", 3)

	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		ok, err := tx.DebitUserQuota(ctx, u.ID, 4)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = tx.DebitUserCredit(ctx, u.ID, decimal.RequireFromString("10.51"))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = tx.DebitPool(ctx, 101)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = tx.DebitUserCredit(ctx, u.ID, decimal.RequireFromString("10.50"))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = tx.DebitUserQuota(ctx, u.ID, 3)
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	}))

	got := loadUser(t, store, u.ID)
	assert.True(t, got.CreditBalance.IsZero(), got.CreditBalance.String())
	assert.Equal(t, int64(0), got.QuotaBalance)
}

func TestCentsArithmeticIsExact(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	u := insertUser(t, store, "erin", "0.3", 0)

	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		for range 3 {
			ok, err := tx.DebitUserCredit(ctx, u.ID, decimal.RequireFromString("0.1"))
			require.NoError(t, err)
			require.True(t, ok)
		}
		ok, err := tx.DebitUserCredit(ctx, u.ID, decimal.RequireFromString("0.01"))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))

	got := loadUser(t, store, u.ID)
	assert.True(t, got.CreditBalance.IsZero(), got.CreditBalance.String())
}

func TestExactCents(t *testing.T) {
	assert.True(t, ExactCents(decimal.RequireFromString("20.50")))
	assert.True(t, ExactCents(decimal.RequireFromString("20.500")))
	assert.True(t, ExactCents(decimal.NewFromInt(7)))
	assert.False(t, ExactCents(decimal.RequireFromString("10.555")))
	assert.Equal(t, int64(1050), cents(decimal.RequireFromString("10.5")))
	assert.Equal(t, "10.5", fromCents(1050).String())
}

func TestApplyPurchaseChecksDailyCounter(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	u := insertUser(t, store, "bob", "100", 0)

	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		ok, err := tx.ApplyPurchase(ctx, u.ID, 2, decimal.NewFromInt(40), 2, 5)
		require.NoError(t, err)
		assert.False(t, ok, "stale daily counter")

		ok, err = tx.ApplyPurchase(ctx, u.ID, 2, decimal.NewFromInt(40), 2, 0)
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	}))

	got := loadUser(t, store, u.ID)
	assert.Equal(t, int64(2), got.QuotaBalance)
	assert.Equal(t, int64(2), got.TodayPurchased)
	assert.True(t, got.CreditBalance.Equal(decimal.NewFromInt(60)))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	u := insertUser(t, store, "carol", "0", 10)

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx *Tx) error {
		ok, err := tx.DebitUserQuota(ctx, u.ID, 10)
		require.NoError(t, err)
		require.True(t, ok)
		_, err = tx.DebitPool(ctx, 50)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, int64(10), loadUser(t, store, u.ID).QuotaBalance)
	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		pool, err := tx.GetPool(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(100), pool.AvailableQuota)
		assert.Equal(t, int64(0), pool.Version)
		return nil
	}))
}

func TestStatusTransitionsAreCompareAndSet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	seller := insertUser(t, store, "dave", "0", 0)

	listing := &models.QuotaListing{
		SellerID:      seller.ID,
		Quantity:      5,
		PricePerQuota: decimal.NewFromInt(2),
		TotalPrice:    decimal.NewFromInt(10),
		Status:        models.ListingActive,
	}
	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertListing(ctx, listing)
	}))

	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		ok, err := tx.TransitionListing(ctx, listing.ID, models.ListingActive, models.ListingCancelled, nil)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = tx.TransitionListing(ctx, listing.ID, models.ListingActive, models.ListingSold, nil)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = tx.SetUserStatus(ctx, seller.ID, models.StatusPending, models.StatusDisabled)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := tx.GetListing(ctx, listing.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ListingCancelled, got.Status)
		assert.Nil(t, got.PurchaseID)

		_, err = tx.GetListing(ctx, listing.ID+100)
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}
