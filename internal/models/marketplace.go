package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ListingStatus string

const (
	ListingActive    ListingStatus = "active"
	ListingSold      ListingStatus = "sold"
	ListingCancelled ListingStatus = "cancelled"
)

// QuotaListing holds the listed quota while active; the seller's balance no
// longer includes it.
type QuotaListing struct {
	ID            int64           `json:"id"`
	SellerID      int64           `json:"seller_id"`
	Quantity      int64           `json:"quantity"`
	PricePerQuota decimal.Decimal `json:"price_per_quota"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Status        ListingStatus   `json:"status"`
	PurchaseID    *int64          `json:"purchase_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

type QuotaPurchase struct {
	ID            int64           `json:"id"`
	ListingID     int64           `json:"listing_id"`
	BuyerID       int64           `json:"buyer_id"`
	SellerID      int64           `json:"seller_id"`
	Quantity      int64           `json:"quantity"`
	PricePerQuota decimal.Decimal `json:"price_per_quota"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Status        RequestStatus   `json:"status"`
	ResolvedBy    *int64          `json:"resolved_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type CreateListingRequest struct {
	Quantity      int64           `json:"quantity"`
	PricePerQuota decimal.Decimal `json:"price_per_quota"`
}

type ResolveRequest struct {
	Decision       Decision         `json:"decision"`
	ApprovedAmount *decimal.Decimal `json:"approved_amount,omitempty"`
}
