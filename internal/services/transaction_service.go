package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"quota-platform/internal/db"
	"quota-platform/internal/models"
)

// TransactionService reads the transaction log and checks stored balances
// against it.
type TransactionService struct {
	store  *db.Store
	logger zerolog.Logger
}

func NewTransactionService(store *db.Store, logger zerolog.Logger) *TransactionService {
	return &TransactionService{
		store:  store,
		logger: logger,
	}
}

func (s *TransactionService) GetTransactionByID(ctx context.Context, transactionID int64) (*models.QuotaTransaction, error) {
	var qt *models.QuotaTransaction
	err := s.store.WithTx(ctx, func(tx *db.Tx) error {
		var err error
		qt, err = tx.GetTransaction(ctx, transactionID)
		if err != nil {
			return lookupError(err, "transaction", transactionID)
		}
		return nil
	})
	return qt, err
}

func (s *TransactionService) GetUserTransactions(ctx context.Context, userID int64, limit, offset int) ([]*models.QuotaTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var out []*models.QuotaTransaction
	err := s.store.WithTx(ctx, func(tx *db.Tx) error {
		var err error
		out, err = tx.ListUserTransactions(ctx, userID, limit, offset)
		return err
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("Error fetching user transactions")
		return nil, fmt.Errorf("database error: %w", err)
	}
	return out, nil
}

// ReconcileUser replays every log record involving the user and compares the
// result with the stored balances.
func (s *TransactionService) ReconcileUser(ctx context.Context, userID int64) (*models.Reconciliation, error) {
	var user *models.User
	var history []*models.QuotaTransaction
	err := s.store.WithTx(ctx, func(tx *db.Tx) error {
		var err error
		user, err = tx.GetUser(ctx, userID)
		if err != nil {
			return lookupError(err, "user", userID)
		}
		history, err = tx.UserHistory(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	quota, credit := replay(userID, history)
	rec := &models.Reconciliation{
		EntityType:   "user",
		EntityID:     userID,
		StoredQuota:  user.QuotaBalance,
		LedgerQuota:  quota,
		StoredCredit: user.CreditBalance,
		LedgerCredit: credit,
	}
	rec.Consistent = rec.StoredQuota == rec.LedgerQuota && rec.StoredCredit.Equal(rec.LedgerCredit)

	if !rec.Consistent {
		s.logger.Warn().
			Int64("user_id", userID).
			Int64("stored_quota", rec.StoredQuota).
			Int64("ledger_quota", rec.LedgerQuota).
			Str("stored_credit", rec.StoredCredit.String()).
			Str("ledger_credit", rec.LedgerCredit.String()).
			Msg("Balance discrepancy detected")
	}
	return rec, nil
}

// ReconcilePool checks available pool quota against the seed plus returns
// minus extra purchases.
func (s *TransactionService) ReconcilePool(ctx context.Context) (*models.Reconciliation, error) {
	var pool *models.Pool
	var sums map[models.TransactionType]int64
	err := s.store.WithTx(ctx, func(tx *db.Tx) error {
		var err error
		pool, err = tx.GetPool(ctx)
		if err != nil {
			return fmt.Errorf("failed to load pool: %w", err)
		}
		sums, err = tx.SumQuantityByType(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	expected := pool.InitialQuota + sums[models.TransactionLiveToPool] - sums[models.TransactionExtraPool]
	rec := &models.Reconciliation{
		EntityType:   "pool",
		EntityID:     models.SingletonID,
		StoredQuota:  pool.AvailableQuota,
		LedgerQuota:  expected,
		StoredCredit: decimal.Zero,
		LedgerCredit: decimal.Zero,
		Consistent:   pool.AvailableQuota == expected,
	}

	if !rec.Consistent {
		s.logger.Warn().
			Int64("stored_quota", rec.StoredQuota).
			Int64("ledger_quota", rec.LedgerQuota).
			Msg("Pool discrepancy detected")
	}
	return rec, nil
}

// replay folds the user's log records into quota and credit totals. The actor
// side is read from snapshots; counterparts gain quota on transfers and credit
// on marketplace sales.
func replay(userID int64, history []*models.QuotaTransaction) (int64, decimal.Decimal) {
	var quota int64
	credit := decimal.Zero

	for _, qt := range history {
		if qt.ActorID == userID {
			quota += qt.ActorQuotaAfter - qt.ActorQuotaBefore
			credit = credit.Add(qt.ActorCreditAfter.Sub(qt.ActorCreditBefore))
		}
		if qt.CounterpartID == nil || *qt.CounterpartID != userID {
			continue
		}
		switch qt.Type {
		case models.TransactionAgentToChild:
			quota += qt.Quantity
		case models.TransactionMarketplaceSale:
			credit = credit.Add(qt.CreditCost)
		}
	}
	return quota, credit
}
