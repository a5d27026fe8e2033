package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quota-platform/internal/models"
)

func TestReconcileAfterMixedActivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setPool(t, 1000)

	admin := env.admin(t)
	seller, buyer := env.agent(t), env.agent(t)
	kid := env.child(t, seller)

	env.fundCredit(t, admin, seller, "5000")
	env.fundCredit(t, admin, buyer, "3000")

	// 100 normal + 20 from the pool.
	_, err := env.ledger.PurchaseQuota(ctx, seller.ID, 120)
	require.NoError(t, err)

	_, err = env.ledger.TransferToChild(ctx, seller.ID, kid.ID, 15)
	require.NoError(t, err)
	_, err = env.ledger.ReturnToPool(ctx, seller.ID, 5)
	require.NoError(t, err)

	listing, err := env.marketplace.CreateListing(ctx, seller.ID, 40, decimal.RequireFromString("12.25"))
	require.NoError(t, err)
	purchase, err := env.marketplace.RequestPurchase(ctx, listing.ID, buyer.ID)
	require.NoError(t, err)
	_, err = env.marketplace.ResolvePurchase(ctx, purchase.ID, admin.ID, models.DecisionApprove)
	require.NoError(t, err)

	cancelled, err := env.marketplace.CreateListing(ctx, seller.ID, 10, decimal.NewFromInt(1))
	require.NoError(t, err)
	require.NoError(t, env.marketplace.CancelListing(ctx, cancelled.ID, seller.ID))

	for _, u := range []*models.User{seller, buyer, kid} {
		rec, err := env.transactions.ReconcileUser(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, rec.Consistent, "user %d: stored %d/%s ledger %d/%s",
			u.ID, rec.StoredQuota, rec.StoredCredit, rec.LedgerQuota, rec.LedgerCredit)
	}

	s := env.user(t, seller.ID)
	assert.Equal(t, int64(120-15-5-40), s.QuotaBalance)
	requireDecimal(t, "3090", s.CreditBalance)

	pool, err := env.transactions.ReconcilePool(ctx)
	require.NoError(t, err)
	assert.True(t, pool.Consistent)
	assert.Equal(t, int64(985), pool.StoredQuota)
}

func TestReconcileDetectsUnloggedChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.admin(t)
	agent := env.agent(t)
	env.fundCredit(t, admin, agent, "100")

	env.setBalances(t, agent.ID, "150", 3, 0)

	rec, err := env.transactions.ReconcileUser(ctx, agent.ID)
	require.NoError(t, err)
	assert.False(t, rec.Consistent)
	assert.Equal(t, int64(3), rec.StoredQuota)
	assert.Equal(t, int64(0), rec.LedgerQuota)
	requireDecimal(t, "100", rec.LedgerCredit)

	_, err = env.transactions.ReconcileUser(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserTransactionsHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	parent := env.agent(t)
	kid := env.child(t, parent)
	env.setBalances(t, parent.ID, "0", 10, 0)

	for range 3 {
		_, err := env.ledger.TransferToChild(ctx, parent.ID, kid.ID, 2)
		require.NoError(t, err)
	}

	parentTxs, err := env.transactions.GetUserTransactions(ctx, parent.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, parentTxs, 3)
	assert.Greater(t, parentTxs[0].ID, parentTxs[2].ID, "newest first")

	kidTxs, err := env.transactions.GetUserTransactions(ctx, kid.ID, 2, 0)
	require.NoError(t, err)
	assert.Len(t, kidTxs, 2)

	qt, err := env.transactions.GetTransactionByID(ctx, parentTxs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionAgentToChild, qt.Type)
	assert.Equal(t, int64(4), qt.ActorQuotaAfter)

	_, err = env.transactions.GetTransactionByID(ctx, 424242)
	assert.ErrorIs(t, err, ErrNotFound)
}
