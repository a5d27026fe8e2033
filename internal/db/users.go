package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"quota-platform/internal/models"
)

const userColumns = `id, username, email, password_hash, role, status, parent_id,
	credit_balance, quota_balance, today_purchased, created_at, updated_at`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	var parentID sql.NullInt64
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Status, &parentID,
		money(&u.CreditBalance), &u.QuotaBalance, &u.TodayPurchased, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	u.ParentID = int64Ptr(parentID)
	return &u, nil
}

func (t *Tx) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(t.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

func (t *Tx) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(t.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

func (t *Tx) UserExists(ctx context.Context, email, username string) (bool, error) {
	var n int
	err := t.queryRow(ctx, "SELECT COUNT(*) FROM users WHERE email = ? OR username = ?", email, username).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *Tx) InsertUser(ctx context.Context, u *models.User) error {
	now := t.now()
	id, err := t.insert(ctx,
		`INSERT INTO users (username, email, password_hash, role, status, parent_id,
			credit_balance, quota_balance, today_purchased, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, ?, ?)`,
		u.Username, u.Email, u.PasswordHash, string(u.Role), string(u.Status), nullable(u.ParentID), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	u.ID = id
	u.CreditBalance = decimal.Zero
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

func (t *Tx) ListChildren(ctx context.Context, parentID int64) ([]*models.User, error) {
	rows, err := t.query(ctx, "SELECT "+userColumns+" FROM users WHERE parent_id = ? ORDER BY id", parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetUserStatus moves a user between lifecycle states.
func (t *Tx) SetUserStatus(ctx context.Context, id int64, from, to models.UserStatus) (bool, error) {
	return t.guarded(ctx,
		"UPDATE users SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), t.now(), id, string(from),
	)
}

// ApplyPurchase books a quota purchase on the buyer: quota up by qty, credit
// down by cost and the daily counter up by normalQty. It only applies while
// the buyer still covers the cost and nobody else moved today_purchased since
// it was read.
func (t *Tx) ApplyPurchase(ctx context.Context, id, qty int64, cost decimal.Decimal, normalQty, expectedToday int64) (bool, error) {
	return t.guarded(ctx,
		`UPDATE users SET quota_balance = quota_balance + ?, credit_balance = credit_balance - ?,
			today_purchased = today_purchased + ?, updated_at = ?
		WHERE id = ? AND credit_balance >= ? AND today_purchased = ?`,
		qty, cents(cost), normalQty, t.now(), id, cents(cost), expectedToday,
	)
}

func (t *Tx) DebitUserQuota(ctx context.Context, id, qty int64) (bool, error) {
	return t.guarded(ctx,
		"UPDATE users SET quota_balance = quota_balance - ?, updated_at = ? WHERE id = ? AND quota_balance >= ?",
		qty, t.now(), id, qty,
	)
}

func (t *Tx) CreditUserQuota(ctx context.Context, id, qty int64) (bool, error) {
	return t.guarded(ctx,
		"UPDATE users SET quota_balance = quota_balance + ?, updated_at = ? WHERE id = ?",
		qty, t.now(), id,
	)
}

func (t *Tx) DebitUserCredit(ctx context.Context, id int64, amount decimal.Decimal) (bool, error) {
	return t.guarded(ctx,
		"UPDATE users SET credit_balance = credit_balance - ?, updated_at = ? WHERE id = ? AND credit_balance >= ?",
		cents(amount), t.now(), id, cents(amount),
	)
}

func (t *Tx) CreditUserCredit(ctx context.Context, id int64, amount decimal.Decimal) (bool, error) {
	return t.guarded(ctx,
		"UPDATE users SET credit_balance = credit_balance + ?, updated_at = ? WHERE id = ?",
		cents(amount), t.now(), id,
	)
}

// ResetTodayPurchased zeroes every daily purchase counter and returns the
// number of users that had one.
func (t *Tx) ResetTodayPurchased(ctx context.Context) (int64, error) {
	res, err := t.exec(ctx, "UPDATE users SET today_purchased = 0 WHERE today_purchased <> 0")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
