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

// RequestService handles credit top-up and child quota requests. Balances
// only move when a request is approved.
type RequestService struct {
	unitOfWork
}

func NewRequestService(store *db.Store, emitter events.Emitter, m metrics.Metrics, logger zerolog.Logger) *RequestService {
	return &RequestService{unitOfWork: newUnitOfWork(store, emitter, m, logger)}
}

func (s *RequestService) CreateCreditRequest(ctx context.Context, requesterID int64, amount decimal.Decimal, note string) (*models.CreditRequest, error) {
	if err := validateAmount("amount", amount); err != nil {
		return nil, err
	}

	var req *models.CreditRequest
	err := s.run(ctx, "create_credit_request", func(tx *db.Tx, batch *events.Batch) error {
		requester, err := activeUser(ctx, tx, requesterID)
		if err != nil {
			return err
		}
		if requester.Role == models.RoleSuperadmin {
			return validationError("administrators cannot request credit")
		}

		req = &models.CreditRequest{
			RequesterID: requesterID,
			Amount:      amount,
			Note:        note,
			Status:      models.RequestPending,
		}
		if err := tx.InsertCreditRequest(ctx, req); err != nil {
			return err
		}

		batch.Add(events.New(events.RequestCreated, events.EntityCreditRequest, req.ID, map[string]any{
			"requester_id": requesterID,
			"amount":       amount,
			"status":       req.Status,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("request_id", req.ID).Int64("requester_id", requesterID).Str("amount", amount.String()).Msg("Credit requested")
	return req, nil
}

// ResolveCreditRequest approves or rejects a pending credit request.
// approvedAmount may lower the credited amount; nil credits the full request.
func (s *RequestService) ResolveCreditRequest(ctx context.Context, requestID, adminID int64, decision models.Decision, approvedAmount *decimal.Decimal) (*models.CreditRequest, error) {
	if !decision.Valid() {
		return nil, validationError("decision must be approve or reject")
	}

	var req *models.CreditRequest
	err := s.run(ctx, "resolve_credit_request", func(tx *db.Tx, batch *events.Batch) error {
		if err := requireSuperadmin(ctx, tx, adminID); err != nil {
			return err
		}

		var err error
		req, err = tx.GetCreditRequest(ctx, requestID)
		if err != nil {
			return lookupError(err, "credit request", requestID)
		}
		if req.Status != models.RequestPending {
			return invalidState("credit request %d is already %s", requestID, req.Status)
		}

		if decision == models.DecisionReject {
			ok, err := tx.TransitionCreditRequest(ctx, requestID, models.RequestPending, models.RequestRejected, adminID, nil)
			if err != nil {
				return fmt.Errorf("failed to reject credit request: %w", err)
			}
			if !ok {
				return invalidState("credit request %d is no longer pending", requestID)
			}
			req.Status = models.RequestRejected
			req.ResolvedBy = &adminID
			batch.Add(requestEvent(events.EntityCreditRequest, req.ID, req.RequesterID, req.Status))
			return nil
		}

		amount := req.Amount
		if approvedAmount != nil {
			if err := validateAmount("approved amount", *approvedAmount); err != nil {
				return err
			}
			if approvedAmount.GreaterThan(req.Amount) {
				return validationError("approved amount must be between 0 and %s", req.Amount)
			}
			amount = *approvedAmount
		}

		ok, err := tx.TransitionCreditRequest(ctx, requestID, models.RequestPending, models.RequestApproved, adminID, &amount)
		if err != nil {
			return fmt.Errorf("failed to approve credit request: %w", err)
		}
		if !ok {
			return invalidState("credit request %d is no longer pending", requestID)
		}

		ok, err = tx.CreditUserCredit(ctx, req.RequesterID, amount)
		if err != nil {
			return fmt.Errorf("failed to credit requester: %w", err)
		}
		if !ok {
			return notFound("user", req.RequesterID)
		}

		after, err := tx.GetUser(ctx, req.RequesterID)
		if err != nil {
			return lookupError(err, "user", req.RequesterID)
		}
		if err := tx.InsertTransaction(ctx, &models.QuotaTransaction{
			Type:              models.TransactionCreditTopUp,
			ActorID:           req.RequesterID,
			CounterpartID:     &adminID,
			CreditCost:        amount,
			ActorQuotaBefore:  after.QuotaBalance,
			ActorQuotaAfter:   after.QuotaBalance,
			ActorCreditBefore: after.CreditBalance.Sub(amount),
			ActorCreditAfter:  after.CreditBalance,
		}); err != nil {
			return err
		}

		req.Status = models.RequestApproved
		req.ApprovedAmount = &amount
		req.ResolvedBy = &adminID
		batch.Add(
			events.New(events.BalanceUpdated, events.EntityUser, after.ID, map[string]any{
				"credit_balance": after.CreditBalance,
			}),
			requestEvent(events.EntityCreditRequest, req.ID, req.RequesterID, req.Status),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("request_id", requestID).
		Int64("admin_id", adminID).
		Str("status", string(req.Status)).
		Msg("Credit request resolved")

	return req, nil
}

// CreateQuotaRequest records a child's ask for quota from its parent agent.
func (s *RequestService) CreateQuotaRequest(ctx context.Context, childID, quantity int64, note string) (*models.QuotaRequest, error) {
	if quantity <= 0 {
		return nil, validationError("quantity must be greater than zero")
	}

	var req *models.QuotaRequest
	err := s.run(ctx, "create_quota_request", func(tx *db.Tx, batch *events.Batch) error {
		child, err := activeUser(ctx, tx, childID)
		if err != nil {
			return err
		}
		if child.Role != models.RoleChild || child.ParentID == nil {
			return validationError("only child accounts can request quota from a parent")
		}

		req = &models.QuotaRequest{
			RequesterID: childID,
			ParentID:    *child.ParentID,
			Quantity:    quantity,
			Note:        note,
			Status:      models.RequestPending,
		}
		if err := tx.InsertQuotaRequest(ctx, req); err != nil {
			return err
		}

		batch.Add(events.New(events.RequestCreated, events.EntityQuotaRequest, req.ID, map[string]any{
			"requester_id": childID,
			"parent_id":    req.ParentID,
			"quantity":     quantity,
			"status":       req.Status,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("request_id", req.ID).Int64("child_id", childID).Int64("quantity", quantity).Msg("Quota requested")
	return req, nil
}

// ResolveQuotaRequest lets the child's parent (or a superadmin) approve or
// reject a pending quota request. Approval moves quota from the parent to
// the child.
func (s *RequestService) ResolveQuotaRequest(ctx context.Context, requestID, resolverID int64, decision models.Decision, approvedQuantity *int64) (*models.QuotaRequest, error) {
	if !decision.Valid() {
		return nil, validationError("decision must be approve or reject")
	}

	var req *models.QuotaRequest
	err := s.run(ctx, "resolve_quota_request", func(tx *db.Tx, batch *events.Batch) error {
		var err error
		req, err = tx.GetQuotaRequest(ctx, requestID)
		if err != nil {
			return lookupError(err, "quota request", requestID)
		}
		resolver, err := activeUser(ctx, tx, resolverID)
		if err != nil {
			return err
		}
		if resolver.ID != req.ParentID && resolver.Role != models.RoleSuperadmin {
			return notFound("quota request", requestID)
		}
		if req.Status != models.RequestPending {
			return invalidState("quota request %d is already %s", requestID, req.Status)
		}

		if decision == models.DecisionReject {
			ok, err := tx.TransitionQuotaRequest(ctx, requestID, models.RequestPending, models.RequestRejected, resolverID, nil)
			if err != nil {
				return fmt.Errorf("failed to reject quota request: %w", err)
			}
			if !ok {
				return invalidState("quota request %d is no longer pending", requestID)
			}
			req.Status = models.RequestRejected
			req.ResolvedBy = &resolverID
			batch.Add(requestEvent(events.EntityQuotaRequest, req.ID, req.RequesterID, req.Status))
			return nil
		}

		quantity := req.Quantity
		if approvedQuantity != nil {
			if *approvedQuantity <= 0 || *approvedQuantity > req.Quantity {
				return validationError("approved quantity must be between 1 and %d", req.Quantity)
			}
			quantity = *approvedQuantity
		}

		ok, err := tx.TransitionQuotaRequest(ctx, requestID, models.RequestPending, models.RequestApproved, resolverID, &quantity)
		if err != nil {
			return fmt.Errorf("failed to approve quota request: %w", err)
		}
		if !ok {
			return invalidState("quota request %d is no longer pending", requestID)
		}

		_, parent, err := transferQuotaToChild(ctx, tx, req.ParentID, req.RequesterID, quantity)
		if err != nil {
			return err
		}

		req.Status = models.RequestApproved
		req.ApprovedQuantity = &quantity
		req.ResolvedBy = &resolverID
		batch.Add(
			events.New(events.QuotaUpdated, events.EntityUser, parent.ID, map[string]any{
				"quota_balance": parent.QuotaBalance,
			}),
			requestEvent(events.EntityQuotaRequest, req.ID, req.RequesterID, req.Status),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("request_id", requestID).
		Int64("resolver_id", resolverID).
		Str("status", string(req.Status)).
		Msg("Quota request resolved")

	return req, nil
}

func (s *RequestService) ListPendingCreditRequests(ctx context.Context) ([]*models.CreditRequest, error) {
	var out []*models.CreditRequest
	err := s.read(ctx, func(tx *db.Tx) error {
		var err error
		out, err = tx.ListCreditRequests(ctx, models.RequestPending)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list credit requests: %w", err)
	}
	return out, nil
}

func (s *RequestService) ListPendingQuotaRequests(ctx context.Context, parentID int64) ([]*models.QuotaRequest, error) {
	var out []*models.QuotaRequest
	err := s.read(ctx, func(tx *db.Tx) error {
		var err error
		out, err = tx.ListQuotaRequests(ctx, parentID, models.RequestPending)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list quota requests: %w", err)
	}
	return out, nil
}

func requestEvent(entity events.EntityType, id, requesterID int64, status models.RequestStatus) events.Event {
	return events.New(events.RequestResolved, entity, id, map[string]any{
		"requester_id": requesterID,
		"status":       status,
	})
}
