package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"quota-platform/internal/models"
)

// ErrNotFound is returned by single-row reads when the row does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence layer for the ledger. All access goes through a
// unit of work (WithTx); a Tx only exposes guarded, conditional mutations.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside one database transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx, dialect: s.dialect, now: s.now}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Seed creates the pool and settings singletons when they are missing.
// Existing rows are left untouched.
func (s *Store) Seed(ctx context.Context, poolQuota int64, settings models.SystemSettings) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		now := tx.now()

		var n int
		if err := tx.queryRow(ctx, "SELECT COUNT(*) FROM pool WHERE id = ?", models.SingletonID).Scan(&n); err != nil {
			return fmt.Errorf("failed to check pool: %w", err)
		}
		if n == 0 {
			_, err := tx.exec(ctx,
				"INSERT INTO pool (id, available_quota, initial_quota, version, updated_at) VALUES (?, ?, ?, 0, ?)",
				models.SingletonID, poolQuota, poolQuota, now,
			)
			if err != nil {
				return fmt.Errorf("failed to seed pool: %w", err)
			}
		}

		if err := tx.queryRow(ctx, "SELECT COUNT(*) FROM system_settings WHERE id = ?", models.SingletonID).Scan(&n); err != nil {
			return fmt.Errorf("failed to check settings: %w", err)
		}
		if n == 0 {
			_, err := tx.exec(ctx,
				"INSERT INTO system_settings (id, credit_price, quota_price, daily_purchase_limit, updated_at) VALUES (?, ?, ?, ?, ?)",
				models.SingletonID, cents(settings.CreditPrice), cents(settings.QuotaPrice), settings.DailyPurchaseLimit, now,
			)
			if err != nil {
				return fmt.Errorf("failed to seed settings: %w", err)
			}
		}
		return nil
	})
}

// Tx is a transient handle for one unit of work.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
	now     func() time.Time
}

func (t *Tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *Tx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *Tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)
}

// insert executes an INSERT and returns the generated id. pgx has no
// LastInsertId, so postgres uses RETURNING.
func (t *Tx) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if t.dialect == Postgres {
		var id int64
		err := t.queryRow(ctx, query+" RETURNING id", args...).Scan(&id)
		return id, err
	}

	res, err := t.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// guarded executes a conditional UPDATE and reports whether a row matched.
func (t *Tx) guarded(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := t.exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
