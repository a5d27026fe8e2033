package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"quota-platform/internal/db"
	"quota-platform/internal/events"
	"quota-platform/internal/metrics"
	"quota-platform/internal/models"
)

// LedgerService moves quota and credit between users and the shared pool.
// Every operation is one database transaction: the guarded balance updates
// and the transaction log records commit together or not at all.
type LedgerService struct {
	unitOfWork
}

func NewLedgerService(store *db.Store, emitter events.Emitter, m metrics.Metrics, logger zerolog.Logger) *LedgerService {
	return &LedgerService{unitOfWork: newUnitOfWork(store, emitter, m, logger)}
}

// PurchaseQuota buys quantity units for the buyer at the current quota price.
// Units within the buyer's remaining daily allowance are normal purchases;
// the rest is drawn from the pool. If the pool cannot cover the extra part
// the whole purchase is rejected.
func (s *LedgerService) PurchaseQuota(ctx context.Context, buyerID, quantity int64) (*models.PurchaseResult, error) {
	if quantity <= 0 {
		return nil, validationError("quantity must be greater than zero")
	}

	var result *models.PurchaseResult
	err := s.run(ctx, "purchase_quota", func(tx *db.Tx, batch *events.Batch) error {
		buyer, err := activeUser(ctx, tx, buyerID)
		if err != nil {
			return err
		}
		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}

		cost := settings.QuotaPrice.Mul(decimal.NewFromInt(quantity))
		if buyer.CreditBalance.LessThan(cost) {
			return insufficientCredit(buyerID, buyer.CreditBalance, cost)
		}

		remaining := max(0, settings.DailyPurchaseLimit-buyer.TodayPurchased)
		normalQty := min(quantity, remaining)
		extraQty := quantity - normalQty

		applied, err := tx.ApplyPurchase(ctx, buyerID, quantity, cost, normalQty, buyer.TodayPurchased)
		if err != nil {
			return fmt.Errorf("failed to update buyer: %w", err)
		}
		if !applied {
			return conflict("buyer %d balance changed during purchase", buyerID)
		}

		var pool *models.Pool
		if extraQty > 0 {
			ok, err := tx.DebitPool(ctx, extraQty)
			if err != nil {
				return fmt.Errorf("failed to debit pool: %w", err)
			}
			pool, err = tx.GetPool(ctx)
			if err != nil {
				return fmt.Errorf("failed to load pool: %w", err)
			}
			if !ok {
				return insufficientPool(pool.AvailableQuota, extraQty)
			}
		}

		after, err := tx.GetUser(ctx, buyerID)
		if err != nil {
			return lookupError(err, "user", buyerID)
		}

		result = &models.PurchaseResult{
			NormalQuantity: normalQty,
			ExtraQuantity:  extraQty,
			CreditCost:     cost,
		}

		quota := after.QuotaBalance - quantity
		credit := after.CreditBalance.Add(cost)

		if normalQty > 0 {
			normalCost := settings.QuotaPrice.Mul(decimal.NewFromInt(normalQty))
			rec := &models.QuotaTransaction{
				Type:              models.TransactionNormal,
				Quantity:          normalQty,
				ActorID:           buyerID,
				CreditCost:        normalCost,
				ActorQuotaBefore:  quota,
				ActorQuotaAfter:   quota + normalQty,
				ActorCreditBefore: credit,
				ActorCreditAfter:  credit.Sub(normalCost),
			}
			if err := tx.InsertTransaction(ctx, rec); err != nil {
				return err
			}
			quota, credit = rec.ActorQuotaAfter, rec.ActorCreditAfter
			result.Transactions = append(result.Transactions, rec)
		}

		if extraQty > 0 {
			extraCost := settings.QuotaPrice.Mul(decimal.NewFromInt(extraQty))
			poolBefore, poolAfter := pool.AvailableQuota+extraQty, pool.AvailableQuota
			rec := &models.QuotaTransaction{
				Type:              models.TransactionExtraPool,
				Quantity:          extraQty,
				ActorID:           buyerID,
				CreditCost:        extraCost,
				PoolBefore:        &poolBefore,
				PoolAfter:         &poolAfter,
				ActorQuotaBefore:  quota,
				ActorQuotaAfter:   quota + extraQty,
				ActorCreditBefore: credit,
				ActorCreditAfter:  credit.Sub(extraCost),
			}
			if err := tx.InsertTransaction(ctx, rec); err != nil {
				return err
			}
			result.Transactions = append(result.Transactions, rec)
			batch.Add(events.Pool(pool.AvailableQuota))
		}

		batch.Add(events.New(events.BalanceUpdated, events.EntityUser, buyerID, map[string]any{
			"quota_balance":   after.QuotaBalance,
			"credit_balance":  after.CreditBalance,
			"today_purchased": after.TodayPurchased,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("buyer_id", buyerID).
		Int64("normal_quantity", result.NormalQuantity).
		Int64("extra_quantity", result.ExtraQuantity).
		Str("credit_cost", result.CreditCost.String()).
		Msg("Quota purchased")

	return result, nil
}

// TransferToChild moves quota from an agent to one of its own children.
func (s *LedgerService) TransferToChild(ctx context.Context, parentID, childID, quantity int64) (*models.QuotaTransaction, error) {
	if quantity <= 0 {
		return nil, validationError("quantity must be greater than zero")
	}
	if parentID == childID {
		return nil, validationError("cannot transfer to the same account")
	}

	var rec *models.QuotaTransaction
	err := s.run(ctx, "transfer_to_child", func(tx *db.Tx, batch *events.Batch) error {
		if _, err := activeUser(ctx, tx, parentID); err != nil {
			return err
		}

		var parent *models.User
		var err error
		rec, parent, err = transferQuotaToChild(ctx, tx, parentID, childID, quantity)
		if err != nil {
			return err
		}

		// Children are not subscribed to live balance updates.
		batch.Add(events.New(events.QuotaUpdated, events.EntityUser, parentID, map[string]any{
			"quota_balance": parent.QuotaBalance,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("parent_id", parentID).
		Int64("child_id", childID).
		Int64("quantity", quantity).
		Msg("Quota transferred to child")

	return rec, nil
}

// ReturnToPool gives an agent's quota back to the shared pool. No credit is
// refunded.
func (s *LedgerService) ReturnToPool(ctx context.Context, agentID, quantity int64) (*models.QuotaTransaction, error) {
	if quantity <= 0 {
		return nil, validationError("quantity must be greater than zero")
	}

	var rec *models.QuotaTransaction
	err := s.run(ctx, "return_to_pool", func(tx *db.Tx, batch *events.Batch) error {
		agent, err := activeUser(ctx, tx, agentID)
		if err != nil {
			return err
		}
		if agent.QuotaBalance < quantity {
			return insufficientQuota(agentID, agent.QuotaBalance, quantity)
		}

		ok, err := tx.DebitUserQuota(ctx, agentID, quantity)
		if err != nil {
			return fmt.Errorf("failed to debit agent: %w", err)
		}
		if !ok {
			return conflict("agent %d quota changed during return", agentID)
		}

		ok, err = tx.CreditPool(ctx, quantity)
		if err != nil {
			return fmt.Errorf("failed to credit pool: %w", err)
		}
		if !ok {
			return fmt.Errorf("pool is not initialized")
		}

		pool, err := tx.GetPool(ctx)
		if err != nil {
			return fmt.Errorf("failed to load pool: %w", err)
		}
		after, err := tx.GetUser(ctx, agentID)
		if err != nil {
			return lookupError(err, "user", agentID)
		}

		poolBefore, poolAfter := pool.AvailableQuota-quantity, pool.AvailableQuota
		rec = &models.QuotaTransaction{
			Type:              models.TransactionLiveToPool,
			Quantity:          quantity,
			ActorID:           agentID,
			CreditCost:        decimal.Zero,
			PoolBefore:        &poolBefore,
			PoolAfter:         &poolAfter,
			ActorQuotaBefore:  after.QuotaBalance + quantity,
			ActorQuotaAfter:   after.QuotaBalance,
			ActorCreditBefore: after.CreditBalance,
			ActorCreditAfter:  after.CreditBalance,
		}
		if err := tx.InsertTransaction(ctx, rec); err != nil {
			return err
		}

		batch.Add(
			events.Pool(pool.AvailableQuota),
			events.New(events.QuotaUpdated, events.EntityUser, agentID, map[string]any{
				"quota_balance": after.QuotaBalance,
			}),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("agent_id", agentID).Int64("quantity", quantity).Msg("Quota returned to pool")
	return rec, nil
}

func (s *LedgerService) GetPool(ctx context.Context) (*models.Pool, error) {
	var pool *models.Pool
	err := s.read(ctx, func(tx *db.Tx) error {
		var err error
		pool, err = tx.GetPool(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load pool: %w", err)
	}
	return pool, nil
}

// transferQuotaToChild debits the parent and credits the child inside tx and
// logs one agent_to_child record. It returns the record and the parent's
// state after the move.
func transferQuotaToChild(ctx context.Context, tx *db.Tx, parentID, childID, quantity int64) (*models.QuotaTransaction, *models.User, error) {
	child, err := tx.GetUser(ctx, childID)
	if err != nil {
		return nil, nil, lookupError(err, "child", childID)
	}
	if child.ParentID == nil || *child.ParentID != parentID {
		return nil, nil, notFound("child", childID)
	}

	parent, err := tx.GetUser(ctx, parentID)
	if err != nil {
		return nil, nil, lookupError(err, "user", parentID)
	}
	if parent.QuotaBalance < quantity {
		return nil, nil, insufficientQuota(parentID, parent.QuotaBalance, quantity)
	}

	ok, err := tx.DebitUserQuota(ctx, parentID, quantity)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to debit parent: %w", err)
	}
	if !ok {
		return nil, nil, conflict("parent %d quota changed during transfer", parentID)
	}

	ok, err = tx.CreditUserQuota(ctx, childID, quantity)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to credit child: %w", err)
	}
	if !ok {
		return nil, nil, notFound("child", childID)
	}

	after, err := tx.GetUser(ctx, parentID)
	if err != nil {
		return nil, nil, lookupError(err, "user", parentID)
	}

	rec := &models.QuotaTransaction{
		Type:              models.TransactionAgentToChild,
		Quantity:          quantity,
		ActorID:           parentID,
		CounterpartID:     &childID,
		CreditCost:        decimal.Zero,
		ActorQuotaBefore:  after.QuotaBalance + quantity,
		ActorQuotaAfter:   after.QuotaBalance,
		ActorCreditBefore: after.CreditBalance,
		ActorCreditAfter:  after.CreditBalance,
	}
	if err := tx.InsertTransaction(ctx, rec); err != nil {
		return nil, nil, err
	}
	return rec, after, nil
}
