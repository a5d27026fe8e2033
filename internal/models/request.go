package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreditRequest struct {
	ID             int64            `json:"id"`
	RequesterID    int64            `json:"requester_id"`
	Amount         decimal.Decimal  `json:"amount"`
	ApprovedAmount *decimal.Decimal `json:"approved_amount,omitempty"`
	Note           string           `json:"note,omitempty"`
	Status         RequestStatus    `json:"status"`
	ResolvedBy     *int64           `json:"resolved_by,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// QuotaRequest is a child's ask for quota from its parent agent.
type QuotaRequest struct {
	ID               int64         `json:"id"`
	RequesterID      int64         `json:"requester_id"`
	ParentID         int64         `json:"parent_id"`
	Quantity         int64         `json:"quantity"`
	ApprovedQuantity *int64        `json:"approved_quantity,omitempty"`
	Note             string        `json:"note,omitempty"`
	Status           RequestStatus `json:"status"`
	ResolvedBy       *int64        `json:"resolved_by,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

type CreateCreditRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

type CreateQuotaRequest struct {
	Quantity int64  `json:"quantity"`
	Note     string `json:"note"`
}

type ResolveQuotaRequest struct {
	Decision         Decision `json:"decision"`
	ApprovedQuantity *int64   `json:"approved_quantity,omitempty"`
}
