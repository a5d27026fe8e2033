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

// MarketplaceService runs the listing and purchase state machines.
//
// Listing: active -> sold (purchase requested) -> active (purchase rejected),
// active -> cancelled. A listing whose purchase was approved stays sold.
// Purchase: pending -> approved | rejected.
type MarketplaceService struct {
	unitOfWork
}

func NewMarketplaceService(store *db.Store, emitter events.Emitter, m metrics.Metrics, logger zerolog.Logger) *MarketplaceService {
	return &MarketplaceService{unitOfWork: newUnitOfWork(store, emitter, m, logger)}
}

// CreateListing moves quantity units from the seller into a new active
// listing.
func (s *MarketplaceService) CreateListing(ctx context.Context, sellerID, quantity int64, pricePerQuota decimal.Decimal) (*models.QuotaListing, error) {
	if quantity <= 0 {
		return nil, validationError("quantity must be greater than zero")
	}
	if err := validateAmount("price per quota", pricePerQuota); err != nil {
		return nil, err
	}

	var listing *models.QuotaListing
	err := s.run(ctx, "create_listing", func(tx *db.Tx, batch *events.Batch) error {
		seller, err := activeUser(ctx, tx, sellerID)
		if err != nil {
			return err
		}
		if seller.QuotaBalance < quantity {
			return insufficientQuota(sellerID, seller.QuotaBalance, quantity)
		}

		ok, err := tx.DebitUserQuota(ctx, sellerID, quantity)
		if err != nil {
			return fmt.Errorf("failed to debit seller: %w", err)
		}
		if !ok {
			return conflict("seller %d quota changed during listing", sellerID)
		}

		listing = &models.QuotaListing{
			SellerID:      sellerID,
			Quantity:      quantity,
			PricePerQuota: pricePerQuota,
			TotalPrice:    pricePerQuota.Mul(decimal.NewFromInt(quantity)),
			Status:        models.ListingActive,
		}
		if err := tx.InsertListing(ctx, listing); err != nil {
			return err
		}

		after, err := tx.GetUser(ctx, sellerID)
		if err != nil {
			return lookupError(err, "user", sellerID)
		}
		if err := tx.InsertTransaction(ctx, &models.QuotaTransaction{
			Type:              models.TransactionListingHold,
			Quantity:          quantity,
			ActorID:           sellerID,
			ListingID:         &listing.ID,
			CreditCost:        decimal.Zero,
			ActorQuotaBefore:  after.QuotaBalance + quantity,
			ActorQuotaAfter:   after.QuotaBalance,
			ActorCreditBefore: after.CreditBalance,
			ActorCreditAfter:  after.CreditBalance,
		}); err != nil {
			return err
		}

		batch.Add(
			events.New(events.QuotaUpdated, events.EntityUser, sellerID, map[string]any{"quota_balance": after.QuotaBalance}),
			listingEvent(events.ListingCreated, listing),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("listing_id", listing.ID).
		Int64("seller_id", sellerID).
		Int64("quantity", quantity).
		Str("price_per_quota", pricePerQuota.String()).
		Msg("Listing created")

	return listing, nil
}

// CancelListing withdraws an active listing and returns its quota to the
// seller. Only the seller can cancel.
func (s *MarketplaceService) CancelListing(ctx context.Context, listingID, callerID int64) error {
	err := s.run(ctx, "cancel_listing", func(tx *db.Tx, batch *events.Batch) error {
		if _, err := activeUser(ctx, tx, callerID); err != nil {
			return err
		}
		listing, err := tx.GetListing(ctx, listingID)
		if err != nil {
			return lookupError(err, "listing", listingID)
		}
		if listing.SellerID != callerID {
			return notFound("listing", listingID)
		}
		if listing.Status != models.ListingActive {
			return invalidState("listing %d is %s", listingID, listing.Status)
		}

		ok, err := tx.TransitionListing(ctx, listingID, models.ListingActive, models.ListingCancelled, nil)
		if err != nil {
			return fmt.Errorf("failed to cancel listing: %w", err)
		}
		if !ok {
			return invalidState("listing %d is no longer active", listingID)
		}

		ok, err = tx.CreditUserQuota(ctx, listing.SellerID, listing.Quantity)
		if err != nil {
			return fmt.Errorf("failed to credit seller: %w", err)
		}
		if !ok {
			return notFound("user", listing.SellerID)
		}

		after, err := tx.GetUser(ctx, listing.SellerID)
		if err != nil {
			return lookupError(err, "user", listing.SellerID)
		}
		if err := tx.InsertTransaction(ctx, &models.QuotaTransaction{
			Type:              models.TransactionListingRelease,
			Quantity:          listing.Quantity,
			ActorID:           listing.SellerID,
			ListingID:         &listing.ID,
			CreditCost:        decimal.Zero,
			ActorQuotaBefore:  after.QuotaBalance - listing.Quantity,
			ActorQuotaAfter:   after.QuotaBalance,
			ActorCreditBefore: after.CreditBalance,
			ActorCreditAfter:  after.CreditBalance,
		}); err != nil {
			return err
		}

		listing.Status = models.ListingCancelled
		batch.Add(
			events.New(events.QuotaUpdated, events.EntityUser, listing.SellerID, map[string]any{"quota_balance": after.QuotaBalance}),
			listingEvent(events.ListingCancelled, listing),
		)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Int64("listing_id", listingID).Int64("seller_id", callerID).Msg("Listing cancelled")
	return nil
}

// RequestPurchase reserves an active listing for the buyer. No balances move
// until an administrator approves the purchase.
func (s *MarketplaceService) RequestPurchase(ctx context.Context, listingID, buyerID int64) (*models.QuotaPurchase, error) {
	var purchase *models.QuotaPurchase
	err := s.run(ctx, "request_purchase", func(tx *db.Tx, batch *events.Batch) error {
		listing, err := tx.GetListing(ctx, listingID)
		if err != nil {
			return lookupError(err, "listing", listingID)
		}
		if listing.Status != models.ListingActive {
			return invalidState("listing %d is %s", listingID, listing.Status)
		}
		if listing.SellerID == buyerID {
			return validationError("cannot buy your own listing")
		}

		buyer, err := activeUser(ctx, tx, buyerID)
		if err != nil {
			return err
		}
		if buyer.CreditBalance.LessThan(listing.TotalPrice) {
			return insufficientCredit(buyerID, buyer.CreditBalance, listing.TotalPrice)
		}

		purchase = &models.QuotaPurchase{
			ListingID:     listing.ID,
			BuyerID:       buyerID,
			SellerID:      listing.SellerID,
			Quantity:      listing.Quantity,
			PricePerQuota: listing.PricePerQuota,
			TotalPrice:    listing.TotalPrice,
			Status:        models.RequestPending,
		}
		if err := tx.InsertPurchase(ctx, purchase); err != nil {
			return err
		}

		ok, err := tx.TransitionListing(ctx, listingID, models.ListingActive, models.ListingSold, &purchase.ID)
		if err != nil {
			return fmt.Errorf("failed to reserve listing: %w", err)
		}
		if !ok {
			return invalidState("listing %d is no longer active", listingID)
		}

		listing.Status = models.ListingSold
		listing.PurchaseID = &purchase.ID
		batch.Add(
			listingEvent(events.ListingPurchased, listing),
			purchaseEvent(events.PurchasePending, purchase),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("purchase_id", purchase.ID).
		Int64("listing_id", listingID).
		Int64("buyer_id", buyerID).
		Msg("Purchase requested")

	return purchase, nil
}

// ResolvePurchase settles or rejects a pending purchase. Approval moves the
// price from buyer to seller and the listed quota to the buyer; rejection
// reopens the listing.
func (s *MarketplaceService) ResolvePurchase(ctx context.Context, purchaseID, adminID int64, decision models.Decision) (*models.QuotaPurchase, error) {
	if !decision.Valid() {
		return nil, validationError("decision must be approve or reject")
	}

	var purchase *models.QuotaPurchase
	err := s.run(ctx, "resolve_purchase", func(tx *db.Tx, batch *events.Batch) error {
		if err := requireSuperadmin(ctx, tx, adminID); err != nil {
			return err
		}

		var err error
		purchase, err = tx.GetPurchase(ctx, purchaseID)
		if err != nil {
			return lookupError(err, "purchase", purchaseID)
		}
		if purchase.Status != models.RequestPending {
			return invalidState("purchase %d is already %s", purchaseID, purchase.Status)
		}

		if decision == models.DecisionReject {
			return s.rejectPurchase(ctx, tx, batch, purchase, adminID)
		}
		return s.approvePurchase(ctx, tx, batch, purchase, adminID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("purchase_id", purchaseID).
		Int64("admin_id", adminID).
		Str("status", string(purchase.Status)).
		Msg("Purchase resolved")

	return purchase, nil
}

func (s *MarketplaceService) approvePurchase(ctx context.Context, tx *db.Tx, batch *events.Batch, p *models.QuotaPurchase, adminID int64) error {
	ok, err := tx.TransitionPurchase(ctx, p.ID, models.RequestPending, models.RequestApproved, adminID)
	if err != nil {
		return fmt.Errorf("failed to approve purchase: %w", err)
	}
	if !ok {
		return invalidState("purchase %d is no longer pending", p.ID)
	}

	ok, err = tx.DebitUserCredit(ctx, p.BuyerID, p.TotalPrice)
	if err != nil {
		return fmt.Errorf("failed to debit buyer: %w", err)
	}
	if !ok {
		buyer, err := tx.GetUser(ctx, p.BuyerID)
		if err != nil {
			return lookupError(err, "user", p.BuyerID)
		}
		return insufficientCredit(p.BuyerID, buyer.CreditBalance, p.TotalPrice)
	}

	ok, err = tx.CreditUserCredit(ctx, p.SellerID, p.TotalPrice)
	if err != nil {
		return fmt.Errorf("failed to credit seller: %w", err)
	}
	if !ok {
		return notFound("user", p.SellerID)
	}

	if _, err := tx.CreditUserQuota(ctx, p.BuyerID, p.Quantity); err != nil {
		return fmt.Errorf("failed to credit buyer quota: %w", err)
	}

	buyer, err := tx.GetUser(ctx, p.BuyerID)
	if err != nil {
		return lookupError(err, "user", p.BuyerID)
	}
	seller, err := tx.GetUser(ctx, p.SellerID)
	if err != nil {
		return lookupError(err, "user", p.SellerID)
	}

	if err := tx.InsertTransaction(ctx, &models.QuotaTransaction{
		Type:              models.TransactionMarketplaceSale,
		Quantity:          p.Quantity,
		ActorID:           p.BuyerID,
		CounterpartID:     &p.SellerID,
		ListingID:         &p.ListingID,
		CreditCost:        p.TotalPrice,
		ActorQuotaBefore:  buyer.QuotaBalance - p.Quantity,
		ActorQuotaAfter:   buyer.QuotaBalance,
		ActorCreditBefore: buyer.CreditBalance.Add(p.TotalPrice),
		ActorCreditAfter:  buyer.CreditBalance,
	}); err != nil {
		return err
	}

	p.Status = models.RequestApproved
	p.ResolvedBy = &adminID
	batch.Add(
		events.New(events.BalanceUpdated, events.EntityUser, buyer.ID, map[string]any{
			"quota_balance":  buyer.QuotaBalance,
			"credit_balance": buyer.CreditBalance,
		}),
		events.New(events.BalanceUpdated, events.EntityUser, seller.ID, map[string]any{
			"credit_balance": seller.CreditBalance,
		}),
		events.New(events.ListingSold, events.EntityMarketplace, p.ListingID, map[string]any{
			"status": models.ListingSold,
		}),
		purchaseEvent(events.PurchaseResolved, p),
	)
	return nil
}

func (s *MarketplaceService) rejectPurchase(ctx context.Context, tx *db.Tx, batch *events.Batch, p *models.QuotaPurchase, adminID int64) error {
	ok, err := tx.TransitionPurchase(ctx, p.ID, models.RequestPending, models.RequestRejected, adminID)
	if err != nil {
		return fmt.Errorf("failed to reject purchase: %w", err)
	}
	if !ok {
		return invalidState("purchase %d is no longer pending", p.ID)
	}

	ok, err = tx.TransitionListing(ctx, p.ListingID, models.ListingSold, models.ListingActive, nil)
	if err != nil {
		return fmt.Errorf("failed to reopen listing: %w", err)
	}
	if !ok {
		return invalidState("listing %d is not reserved", p.ListingID)
	}

	p.Status = models.RequestRejected
	p.ResolvedBy = &adminID
	batch.Add(
		events.New(events.ListingReopened, events.EntityMarketplace, p.ListingID, map[string]any{
			"status": models.ListingActive,
		}),
		purchaseEvent(events.PurchaseResolved, p),
	)
	return nil
}

func (s *MarketplaceService) GetListing(ctx context.Context, listingID int64) (*models.QuotaListing, error) {
	var listing *models.QuotaListing
	err := s.read(ctx, func(tx *db.Tx) error {
		var err error
		listing, err = tx.GetListing(ctx, listingID)
		if err != nil {
			return lookupError(err, "listing", listingID)
		}
		return nil
	})
	return listing, err
}

func (s *MarketplaceService) ListActiveListings(ctx context.Context, limit, offset int) ([]*models.QuotaListing, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset = max(offset, 0)

	var listings []*models.QuotaListing
	err := s.read(ctx, func(tx *db.Tx) error {
		var err error
		listings, err = tx.ListListings(ctx, models.ListingActive, limit, offset)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	return listings, nil
}

func (s *MarketplaceService) ListPendingPurchases(ctx context.Context) ([]*models.QuotaPurchase, error) {
	var purchases []*models.QuotaPurchase
	err := s.read(ctx, func(tx *db.Tx) error {
		var err error
		purchases, err = tx.ListPurchases(ctx, models.RequestPending)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	return purchases, nil
}

// activeUser loads the acting user. Pending and disabled accounts cannot act
// even while they still hold a valid token.
func activeUser(ctx context.Context, tx *db.Tx, userID int64) (*models.User, error) {
	u, err := tx.GetUser(ctx, userID)
	if err != nil {
		return nil, lookupError(err, "user", userID)
	}
	if u.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: account %d is %s", ErrForbidden, userID, u.Status)
	}
	return u, nil
}

func requireSuperadmin(ctx context.Context, tx *db.Tx, userID int64) error {
	u, err := activeUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	if u.Role != models.RoleSuperadmin {
		return fmt.Errorf("%w: user %d is not an administrator", ErrForbidden, userID)
	}
	return nil
}

func listingEvent(name string, l *models.QuotaListing) events.Event {
	values := map[string]any{
		"status":          l.Status,
		"seller_id":       l.SellerID,
		"quantity":        l.Quantity,
		"price_per_quota": l.PricePerQuota,
	}
	if l.PurchaseID != nil {
		values["purchase_id"] = *l.PurchaseID
	}
	return events.New(name, events.EntityMarketplace, l.ID, values)
}

func purchaseEvent(name string, p *models.QuotaPurchase) events.Event {
	return events.New(name, events.EntityPurchase, p.ID, map[string]any{
		"status":     p.Status,
		"listing_id": p.ListingID,
		"buyer_id":   p.BuyerID,
		"quantity":   p.Quantity,
	})
}
