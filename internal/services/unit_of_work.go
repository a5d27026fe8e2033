package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"quota-platform/internal/db"
	"quota-platform/internal/events"
	"quota-platform/internal/metrics"
)

// unitOfWork runs ledger operations: one database transaction per call,
// metrics for every attempt, and events only after a successful commit.
type unitOfWork struct {
	store   *db.Store
	emitter events.Emitter
	metrics metrics.Metrics
	logger  zerolog.Logger
}

func newUnitOfWork(store *db.Store, emitter events.Emitter, m metrics.Metrics, logger zerolog.Logger) unitOfWork {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	return unitOfWork{store: store, emitter: emitter, metrics: m, logger: logger}
}

func (u unitOfWork) run(ctx context.Context, op string, fn func(tx *db.Tx, batch *events.Batch) error) error {
	start := time.Now()
	var batch events.Batch

	err := u.store.WithTx(ctx, func(tx *db.Tx) error {
		return fn(tx, &batch)
	})

	u.metrics.RecordOperation(op, ErrorKind(err), time.Since(start))
	if err != nil {
		if ErrorKind(err) == "internal_error" {
			u.logger.Error().Err(err).Str("operation", op).Msg("Ledger operation failed")
		}
		return err
	}

	for _, e := range batch.Events() {
		if e.EntityType == events.EntityPool {
			if v, ok := e.Values["available_quota"].(int64); ok {
				u.metrics.RecordPoolLevel(v)
			}
		}
	}
	batch.Flush(ctx, u.emitter, u.logger)
	return nil
}

// read runs a read-only query in its own transaction.
func (u unitOfWork) read(ctx context.Context, fn func(tx *db.Tx) error) error {
	return u.store.WithTx(ctx, fn)
}
