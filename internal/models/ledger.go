package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SingletonID is the well-known key of the pool and settings rows.
const SingletonID = 1

type Pool struct {
	AvailableQuota int64     `json:"available_quota"`
	InitialQuota   int64     `json:"initial_quota"`
	Version        int64     `json:"version"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type SystemSettings struct {
	CreditPrice        decimal.Decimal `json:"credit_price"`
	QuotaPrice         decimal.Decimal `json:"quota_price"`
	DailyPurchaseLimit int64           `json:"daily_purchase_limit"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type UpdateSettingsRequest struct {
	CreditPrice        *decimal.Decimal `json:"credit_price,omitempty"`
	QuotaPrice         *decimal.Decimal `json:"quota_price,omitempty"`
	DailyPurchaseLimit *int64           `json:"daily_purchase_limit,omitempty"`
}

type PurchaseQuotaRequest struct {
	Quantity int64 `json:"quantity"`
}

type PurchaseResult struct {
	NormalQuantity int64               `json:"normal_quantity"`
	ExtraQuantity  int64               `json:"extra_quantity"`
	CreditCost     decimal.Decimal     `json:"credit_cost"`
	Transactions   []*QuotaTransaction `json:"transactions"`
}

type TransferToChildRequest struct {
	ChildID  int64 `json:"child_id"`
	Quantity int64 `json:"quantity"`
}

type ReturnToPoolRequest struct {
	Quantity int64 `json:"quantity"`
}

// Reconciliation compares stored balances with the totals replayed from the
// transaction log.
type Reconciliation struct {
	EntityType   string          `json:"entity_type"`
	EntityID     int64           `json:"entity_id"`
	StoredQuota  int64           `json:"stored_quota"`
	LedgerQuota  int64           `json:"ledger_quota"`
	StoredCredit decimal.Decimal `json:"stored_credit"`
	LedgerCredit decimal.Decimal `json:"ledger_credit"`
	Consistent   bool            `json:"consistent"`
}
