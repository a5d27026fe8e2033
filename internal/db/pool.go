package db

import (
	"context"

	"quota-platform/internal/models"
)

func (t *Tx) GetPool(ctx context.Context) (*models.Pool, error) {
	var p models.Pool
	err := t.queryRow(ctx,
		"SELECT available_quota, initial_quota, version, updated_at FROM pool WHERE id = ?",
		models.SingletonID,
	).Scan(&p.AvailableQuota, &p.InitialQuota, &p.Version, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (t *Tx) DebitPool(ctx context.Context, qty int64) (bool, error) {
	return t.guarded(ctx,
		`UPDATE pool SET available_quota = available_quota - ?, version = version + 1, updated_at = ?
		WHERE id = ? AND available_quota >= ?`,
		qty, t.now(), models.SingletonID, qty,
	)
}

func (t *Tx) CreditPool(ctx context.Context, qty int64) (bool, error) {
	return t.guarded(ctx,
		"UPDATE pool SET available_quota = available_quota + ?, version = version + 1, updated_at = ? WHERE id = ?",
		qty, t.now(), models.SingletonID,
	)
}

func (t *Tx) GetSettings(ctx context.Context) (*models.SystemSettings, error) {
	var s models.SystemSettings
	err := t.queryRow(ctx,
		"SELECT credit_price, quota_price, daily_purchase_limit, updated_at FROM system_settings WHERE id = ?",
		models.SingletonID,
	).Scan(money(&s.CreditPrice), money(&s.QuotaPrice), &s.DailyPurchaseLimit, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (t *Tx) UpdateSettings(ctx context.Context, s *models.SystemSettings) (bool, error) {
	s.UpdatedAt = t.now()
	return t.guarded(ctx,
		"UPDATE system_settings SET credit_price = ?, quota_price = ?, daily_purchase_limit = ?, updated_at = ? WHERE id = ?",
		cents(s.CreditPrice), cents(s.QuotaPrice), s.DailyPurchaseLimit, s.UpdatedAt, models.SingletonID,
	)
}
