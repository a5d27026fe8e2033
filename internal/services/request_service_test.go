package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quota-platform/internal/events"
	"quota-platform/internal/models"
)

func TestCreditRequestApprovePartial(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.admin(t)
	agent := env.agent(t)

	req, err := env.requests.CreateCreditRequest(ctx, agent.ID, decimal.NewFromInt(500), "top up")
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)

	pending, err := env.requests.ListPendingCreditRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	approved := decimal.NewFromInt(300)
	resolved, err := env.requests.ResolveCreditRequest(ctx, req.ID, admin.ID, models.DecisionApprove, &approved)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, resolved.Status)
	require.NotNil(t, resolved.ApprovedAmount)
	requireDecimal(t, "300", *resolved.ApprovedAmount)

	requireDecimal(t, "300", env.user(t, agent.ID).CreditBalance)

	txs, err := env.transactions.GetUserTransactions(ctx, agent.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TransactionCreditTopUp, txs[0].Type)
	requireDecimal(t, "300", txs[0].CreditCost)
	requireDecimal(t, "0", txs[0].ActorCreditBefore)
	requireDecimal(t, "300", txs[0].ActorCreditAfter)

	// Second resolution is refused and moves nothing.
	_, err = env.requests.ResolveCreditRequest(ctx, req.ID, admin.ID, models.DecisionApprove, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
	requireDecimal(t, "300", env.user(t, agent.ID).CreditBalance)

	assert.Contains(t, env.emitter.Names(), events.BalanceUpdated)
}

func TestCreditRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.admin(t)
	agent := env.agent(t)

	_, err := env.requests.CreateCreditRequest(ctx, agent.ID, decimal.Zero, "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.requests.CreateCreditRequest(ctx, admin.ID, decimal.NewFromInt(1), "")
	assert.ErrorIs(t, err, ErrValidation)

	req, err := env.requests.CreateCreditRequest(ctx, agent.ID, decimal.NewFromInt(100), "")
	require.NoError(t, err)

	tooMuch := decimal.NewFromInt(101)
	_, err = env.requests.ResolveCreditRequest(ctx, req.ID, admin.ID, models.DecisionApprove, &tooMuch)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.requests.ResolveCreditRequest(ctx, req.ID, agent.ID, models.DecisionApprove, nil)
	assert.ErrorIs(t, err, ErrForbidden)

	resolved, err := env.requests.ResolveCreditRequest(ctx, req.ID, admin.ID, models.DecisionReject, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, resolved.Status)
	requireDecimal(t, "0", env.user(t, agent.ID).CreditBalance)
	assert.Equal(t, 0, env.transactionCount(t))
}

func TestQuotaRequestFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	parent := env.agent(t)
	kid := env.child(t, parent)
	env.setBalances(t, parent.ID, "0", 40, 0)

	req, err := env.requests.CreateQuotaRequest(ctx, kid.ID, 25, "need more")
	require.NoError(t, err)
	assert.Equal(t, parent.ID, req.ParentID)

	pending, err := env.requests.ListPendingQuotaRequests(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	approved := int64(10)
	resolved, err := env.requests.ResolveQuotaRequest(ctx, req.ID, parent.ID, models.DecisionApprove, &approved)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, resolved.Status)
	require.NotNil(t, resolved.ApprovedQuantity)
	assert.Equal(t, int64(10), *resolved.ApprovedQuantity)

	assert.Equal(t, int64(30), env.user(t, parent.ID).QuotaBalance)
	assert.Equal(t, int64(10), env.user(t, kid.ID).QuotaBalance)

	_, err = env.requests.ResolveQuotaRequest(ctx, req.ID, parent.ID, models.DecisionReject, nil)
	assert.ErrorIs(t, err, ErrInvalidState)

	pending, err = env.requests.ListPendingQuotaRequests(ctx, parent.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestQuotaRequestApprovalNeedsParentQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	parent := env.agent(t)
	kid := env.child(t, parent)
	env.setBalances(t, parent.ID, "0", 5, 0)

	req, err := env.requests.CreateQuotaRequest(ctx, kid.ID, 10, "")
	require.NoError(t, err)

	_, err = env.requests.ResolveQuotaRequest(ctx, req.ID, parent.ID, models.DecisionApprove, nil)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// The failed approval rolled back the status change too.
	pending, err := env.requests.ListPendingQuotaRequests(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(5), env.user(t, parent.ID).QuotaBalance)
}

func TestQuotaRequestResolverMustBeParentOrAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.admin(t)
	parent, other := env.agent(t), env.agent(t)
	kid := env.child(t, parent)
	env.setBalances(t, parent.ID, "0", 5, 0)

	_, err := env.requests.CreateQuotaRequest(ctx, parent.ID, 1, "")
	assert.ErrorIs(t, err, ErrValidation)

	req, err := env.requests.CreateQuotaRequest(ctx, kid.ID, 5, "")
	require.NoError(t, err)

	_, err = env.requests.ResolveQuotaRequest(ctx, req.ID, other.ID, models.DecisionApprove, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	resolved, err := env.requests.ResolveQuotaRequest(ctx, req.ID, admin.ID, models.DecisionApprove, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, resolved.Status)
	assert.Equal(t, int64(5), env.user(t, kid.ID).QuotaBalance)
}
