// Package events defines the balance-changed notification boundary. The
// ledger raises events after a unit of work commits; delivery to clients is
// owned by whatever Emitter is plugged in.
package events

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

type EntityType string

const (
	EntityUser          EntityType = "user"
	EntityPool          EntityType = "pool"
	EntityMarketplace   EntityType = "marketplace"
	EntityPurchase      EntityType = "purchase"
	EntityCreditRequest EntityType = "credit_request"
	EntityQuotaRequest  EntityType = "quota_request"
)

// PoolEntityID addresses the pool singleton.
const PoolEntityID = "singleton"

const (
	QuotaUpdated     = "quota-updated"
	BalanceUpdated   = "balance-updated"
	PoolUpdated      = "pool-updated"
	ListingCreated   = "listing-created"
	ListingCancelled = "listing-cancelled"
	ListingPurchased = "listing-purchased"
	ListingSold      = "listing-sold"
	ListingReopened  = "listing-reopened"
	PurchasePending  = "purchase-pending"
	PurchaseResolved = "purchase-resolved"
	RequestCreated   = "request-created"
	RequestResolved  = "request-resolved"
)

type Event struct {
	Name       string         `json:"name"`
	EntityType EntityType     `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Values     map[string]any `json:"values"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func New(name string, entity EntityType, id int64, values map[string]any) Event {
	return Event{
		Name:       name,
		EntityType: entity,
		EntityID:   strconv.FormatInt(id, 10),
		Values:     values,
		OccurredAt: time.Now().UTC(),
	}
}

func Pool(available int64) Event {
	return Event{
		Name:       PoolUpdated,
		EntityType: EntityPool,
		EntityID:   PoolEntityID,
		Values:     map[string]any{"available_quota": available},
		OccurredAt: time.Now().UTC(),
	}
}

type Emitter interface {
	Emit(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }

// LogEmitter writes events to the structured log.
type LogEmitter struct {
	Logger zerolog.Logger
}

func (l LogEmitter) Emit(_ context.Context, e Event) error {
	l.Logger.Debug().
		Str("event", e.Name).
		Str("entity_type", string(e.EntityType)).
		Str("entity_id", e.EntityID).
		Interface("values", e.Values).
		Msg("Balance event")
	return nil
}

// Multi fans an event out to every emitter and joins their errors.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, e Event) error {
	var errs []error
	for _, em := range m {
		if err := em.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Batch collects events during a unit of work so they can be emitted once
// it has committed.
type Batch struct {
	events []Event
}

func (b *Batch) Add(e ...Event) {
	b.events = append(b.events, e...)
}

func (b *Batch) Events() []Event {
	return b.events
}

// Flush emits every buffered event. Delivery failures are logged, not
// returned: the mutation they describe is already durable.
func (b *Batch) Flush(ctx context.Context, em Emitter, logger zerolog.Logger) {
	for _, e := range b.events {
		if err := em.Emit(ctx, e); err != nil {
			logger.Error().Err(err).Str("event", e.Name).Str("entity_id", e.EntityID).Msg("Failed to emit event")
		}
	}
	b.events = nil
}
