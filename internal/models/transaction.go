package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuotaTransaction is an immutable audit record of one balance mutation.
type QuotaTransaction struct {
	ID                int64           `json:"id"`
	Type              TransactionType `json:"type"`
	Quantity          int64           `json:"quantity"`
	ActorID           int64           `json:"actor_id"`
	CounterpartID     *int64          `json:"counterpart_id,omitempty"`
	ListingID         *int64          `json:"listing_id,omitempty"`
	CreditCost        decimal.Decimal `json:"credit_cost"`
	PoolBefore        *int64          `json:"pool_before,omitempty"`
	PoolAfter         *int64          `json:"pool_after,omitempty"`
	ActorQuotaBefore  int64           `json:"actor_quota_before"`
	ActorQuotaAfter   int64           `json:"actor_quota_after"`
	ActorCreditBefore decimal.Decimal `json:"actor_credit_before"`
	ActorCreditAfter  decimal.Decimal `json:"actor_credit_after"`
	CreatedAt         time.Time       `json:"created_at"`
}

type TransactionType string

const (
	TransactionNormal          TransactionType = "normal"
	TransactionExtraPool       TransactionType = "extra_pool"
	TransactionAgentToChild    TransactionType = "agent_to_child"
	TransactionLiveToPool      TransactionType = "live_to_pool"
	TransactionMarketplaceSale TransactionType = "marketplace_sale"
	TransactionListingHold     TransactionType = "listing_hold"
	TransactionListingRelease  TransactionType = "listing_release"
	TransactionCreditTopUp     TransactionType = "credit_top_up"
)
