package db

import (
	"context"
	"database/sql"
	"fmt"

	"quota-platform/internal/models"
)

const listingColumns = `id, seller_id, quantity, price_per_quota, total_price, status, purchase_id, created_at, updated_at`

func scanListing(row scanner) (*models.QuotaListing, error) {
	var l models.QuotaListing
	var purchaseID sql.NullInt64
	err := row.Scan(
		&l.ID, &l.SellerID, &l.Quantity, money(&l.PricePerQuota), money(&l.TotalPrice),
		&l.Status, &purchaseID, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	l.PurchaseID = int64Ptr(purchaseID)
	return &l, nil
}

func (t *Tx) InsertListing(ctx context.Context, l *models.QuotaListing) error {
	now := t.now()
	id, err := t.insert(ctx,
		`INSERT INTO quota_listings (seller_id, quantity, price_per_quota, total_price, status, purchase_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NULL, ?, ?)`,
		l.SellerID, l.Quantity, cents(l.PricePerQuota), cents(l.TotalPrice), string(l.Status), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	l.ID = id
	l.CreatedAt, l.UpdatedAt = now, now
	return nil
}

func (t *Tx) GetListing(ctx context.Context, id int64) (*models.QuotaListing, error) {
	return scanListing(t.queryRow(ctx, "SELECT "+listingColumns+" FROM quota_listings WHERE id = ?", id))
}

func (t *Tx) ListListings(ctx context.Context, status models.ListingStatus, limit, offset int) ([]*models.QuotaListing, error) {
	rows, err := t.query(ctx,
		"SELECT "+listingColumns+" FROM quota_listings WHERE status = ? ORDER BY id DESC LIMIT ? OFFSET ?",
		string(status), limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.QuotaListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// TransitionListing moves a listing from one status to another and sets its
// purchase reference (nil clears it). It reports false when the listing was
// not in the expected status.
func (t *Tx) TransitionListing(ctx context.Context, id int64, from, to models.ListingStatus, purchaseID *int64) (bool, error) {
	return t.guarded(ctx,
		"UPDATE quota_listings SET status = ?, purchase_id = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), nullable(purchaseID), t.now(), id, string(from),
	)
}

const purchaseColumns = `id, listing_id, buyer_id, seller_id, quantity, price_per_quota, total_price,
	status, resolved_by, created_at, updated_at`

func scanPurchase(row scanner) (*models.QuotaPurchase, error) {
	var p models.QuotaPurchase
	var resolvedBy sql.NullInt64
	err := row.Scan(
		&p.ID, &p.ListingID, &p.BuyerID, &p.SellerID, &p.Quantity, money(&p.PricePerQuota), money(&p.TotalPrice),
		&p.Status, &resolvedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	p.ResolvedBy = int64Ptr(resolvedBy)
	return &p, nil
}

func (t *Tx) InsertPurchase(ctx context.Context, p *models.QuotaPurchase) error {
	now := t.now()
	id, err := t.insert(ctx,
		`INSERT INTO quota_purchases (listing_id, buyer_id, seller_id, quantity, price_per_quota, total_price,
			status, resolved_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		p.ListingID, p.BuyerID, p.SellerID, p.Quantity, cents(p.PricePerQuota), cents(p.TotalPrice), string(p.Status), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	p.ID = id
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

func (t *Tx) GetPurchase(ctx context.Context, id int64) (*models.QuotaPurchase, error) {
	return scanPurchase(t.queryRow(ctx, "SELECT "+purchaseColumns+" FROM quota_purchases WHERE id = ?", id))
}

func (t *Tx) ListPurchases(ctx context.Context, status models.RequestStatus) ([]*models.QuotaPurchase, error) {
	rows, err := t.query(ctx, "SELECT "+purchaseColumns+" FROM quota_purchases WHERE status = ? ORDER BY id", string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.QuotaPurchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning purchase: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *Tx) TransitionPurchase(ctx context.Context, id int64, from, to models.RequestStatus, resolvedBy int64) (bool, error) {
	return t.guarded(ctx,
		"UPDATE quota_purchases SET status = ?, resolved_by = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), resolvedBy, t.now(), id, string(from),
	)
}
