package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"quota-platform/internal/models"
)

const creditRequestColumns = `id, requester_id, amount, approved_amount, note, status, resolved_by, created_at, updated_at`

func scanCreditRequest(row scanner) (*models.CreditRequest, error) {
	var r models.CreditRequest
	var approved, resolvedBy sql.NullInt64
	err := row.Scan(
		&r.ID, &r.RequesterID, money(&r.Amount), &approved, &r.Note, &r.Status, &resolvedBy, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	r.ApprovedAmount = centsPtr(approved)
	r.ResolvedBy = int64Ptr(resolvedBy)
	return &r, nil
}

func (t *Tx) InsertCreditRequest(ctx context.Context, r *models.CreditRequest) error {
	now := t.now()
	id, err := t.insert(ctx,
		`INSERT INTO credit_requests (requester_id, amount, approved_amount, note, status, resolved_by, created_at, updated_at)
		VALUES (?, ?, NULL, ?, ?, NULL, ?, ?)`,
		r.RequesterID, cents(r.Amount), r.Note, string(r.Status), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert credit request: %w", err)
	}
	r.ID = id
	r.CreatedAt, r.UpdatedAt = now, now
	return nil
}

func (t *Tx) GetCreditRequest(ctx context.Context, id int64) (*models.CreditRequest, error) {
	return scanCreditRequest(t.queryRow(ctx, "SELECT "+creditRequestColumns+" FROM credit_requests WHERE id = ?", id))
}

func (t *Tx) ListCreditRequests(ctx context.Context, status models.RequestStatus) ([]*models.CreditRequest, error) {
	rows, err := t.query(ctx, "SELECT "+creditRequestColumns+" FROM credit_requests WHERE status = ? ORDER BY id", string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.CreditRequest
	for rows.Next() {
		r, err := scanCreditRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning credit request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *Tx) TransitionCreditRequest(ctx context.Context, id int64, from, to models.RequestStatus, resolvedBy int64, approved *decimal.Decimal) (bool, error) {
	return t.guarded(ctx,
		"UPDATE credit_requests SET status = ?, resolved_by = ?, approved_amount = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), resolvedBy, nullableCents(approved), t.now(), id, string(from),
	)
}

const quotaRequestColumns = `id, requester_id, parent_id, quantity, approved_quantity, note, status, resolved_by, created_at, updated_at`

func scanQuotaRequest(row scanner) (*models.QuotaRequest, error) {
	var r models.QuotaRequest
	var approved, resolvedBy sql.NullInt64
	err := row.Scan(
		&r.ID, &r.RequesterID, &r.ParentID, &r.Quantity, &approved, &r.Note, &r.Status, &resolvedBy, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	r.ApprovedQuantity = int64Ptr(approved)
	r.ResolvedBy = int64Ptr(resolvedBy)
	return &r, nil
}

func (t *Tx) InsertQuotaRequest(ctx context.Context, r *models.QuotaRequest) error {
	now := t.now()
	id, err := t.insert(ctx,
		`INSERT INTO quota_requests (requester_id, parent_id, quantity, approved_quantity, note, status, resolved_by, created_at, updated_at)
		VALUES (?, ?, ?, NULL, ?, ?, NULL, ?, ?)`,
		r.RequesterID, r.ParentID, r.Quantity, r.Note, string(r.Status), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert quota request: %w", err)
	}
	r.ID = id
	r.CreatedAt, r.UpdatedAt = now, now
	return nil
}

func (t *Tx) GetQuotaRequest(ctx context.Context, id int64) (*models.QuotaRequest, error) {
	return scanQuotaRequest(t.queryRow(ctx, "SELECT "+quotaRequestColumns+" FROM quota_requests WHERE id = ?", id))
}

func (t *Tx) ListQuotaRequests(ctx context.Context, parentID int64, status models.RequestStatus) ([]*models.QuotaRequest, error) {
	rows, err := t.query(ctx,
		"SELECT "+quotaRequestColumns+" FROM quota_requests WHERE parent_id = ? AND status = ? ORDER BY id",
		parentID, string(status),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.QuotaRequest
	for rows.Next() {
		r, err := scanQuotaRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning quota request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *Tx) TransitionQuotaRequest(ctx context.Context, id int64, from, to models.RequestStatus, resolvedBy int64, approved *int64) (bool, error) {
	return t.guarded(ctx,
		"UPDATE quota_requests SET status = ?, resolved_by = ?, approved_quantity = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), resolvedBy, nullableCents(approved), t.now(), id, string(from),
	)
}
