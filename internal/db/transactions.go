package db

import (
	"context"
	"database/sql"
	"fmt"

	"quota-platform/internal/models"
)

const transactionColumns = `id, tx_type, quantity, actor_id, counterpart_id, listing_id, credit_cost,
	pool_before, pool_after, actor_quota_before, actor_quota_after,
	actor_credit_before, actor_credit_after, created_at`

func scanTransaction(row scanner) (*models.QuotaTransaction, error) {
	var qt models.QuotaTransaction
	var counterpartID, listingID, poolBefore, poolAfter sql.NullInt64
	err := row.Scan(
		&qt.ID, &qt.Type, &qt.Quantity, &qt.ActorID, &counterpartID, &listingID, money(&qt.CreditCost),
		&poolBefore, &poolAfter, &qt.ActorQuotaBefore, &qt.ActorQuotaAfter,
		money(&qt.ActorCreditBefore), money(&qt.ActorCreditAfter), &qt.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	qt.CounterpartID = int64Ptr(counterpartID)
	qt.ListingID = int64Ptr(listingID)
	qt.PoolBefore = int64Ptr(poolBefore)
	qt.PoolAfter = int64Ptr(poolAfter)
	return &qt, nil
}

// InsertTransaction appends a record to the transaction log. The log has no
// update or delete path.
func (t *Tx) InsertTransaction(ctx context.Context, qt *models.QuotaTransaction) error {
	qt.CreatedAt = t.now()
	id, err := t.insert(ctx,
		`INSERT INTO quota_transactions (tx_type, quantity, actor_id, counterpart_id, listing_id, credit_cost,
			pool_before, pool_after, actor_quota_before, actor_quota_after,
			actor_credit_before, actor_credit_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(qt.Type), qt.Quantity, qt.ActorID, nullable(qt.CounterpartID), nullable(qt.ListingID), cents(qt.CreditCost),
		nullable(qt.PoolBefore), nullable(qt.PoolAfter), qt.ActorQuotaBefore, qt.ActorQuotaAfter,
		cents(qt.ActorCreditBefore), cents(qt.ActorCreditAfter), qt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	qt.ID = id
	return nil
}

func (t *Tx) GetTransaction(ctx context.Context, id int64) (*models.QuotaTransaction, error) {
	return scanTransaction(t.queryRow(ctx, "SELECT "+transactionColumns+" FROM quota_transactions WHERE id = ?", id))
}

// ListUserTransactions returns records where the user is actor or
// counterpart, newest first.
func (t *Tx) ListUserTransactions(ctx context.Context, userID int64, limit, offset int) ([]*models.QuotaTransaction, error) {
	return t.listTransactions(ctx,
		"SELECT "+transactionColumns+` FROM quota_transactions
		WHERE actor_id = ? OR counterpart_id = ?
		ORDER BY id DESC LIMIT ? OFFSET ?`,
		userID, userID, limit, offset,
	)
}

// UserHistory returns every record involving the user in commit order.
func (t *Tx) UserHistory(ctx context.Context, userID int64) ([]*models.QuotaTransaction, error) {
	return t.listTransactions(ctx,
		"SELECT "+transactionColumns+" FROM quota_transactions WHERE actor_id = ? OR counterpart_id = ? ORDER BY id",
		userID, userID,
	)
}

func (t *Tx) listTransactions(ctx context.Context, query string, args ...any) ([]*models.QuotaTransaction, error) {
	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.QuotaTransaction
	for rows.Next() {
		qt, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning transaction: %w", err)
		}
		out = append(out, qt)
	}
	return out, rows.Err()
}

// SumQuantityByType totals logged quantities per transaction type.
func (t *Tx) SumQuantityByType(ctx context.Context) (map[models.TransactionType]int64, error) {
	rows, err := t.query(ctx, "SELECT tx_type, COALESCE(SUM(quantity), 0) FROM quota_transactions GROUP BY tx_type")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sums := make(map[models.TransactionType]int64)
	for rows.Next() {
		var typ models.TransactionType
		var sum int64
		if err := rows.Scan(&typ, &sum); err != nil {
			return nil, fmt.Errorf("error scanning transaction totals: %w", err)
		}
		sums[typ] = sum
	}
	return sums, rows.Err()
}
