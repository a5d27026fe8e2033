package metrics

import "time"

// Metrics records ledger operation outcomes.
type Metrics interface {
	// RecordOperation records one engine operation. outcome is "ok" or the
	// error kind that aborted it.
	RecordOperation(op, outcome string, duration time.Duration)

	// RecordPoolLevel records the pool's available quota after a change.
	RecordPoolLevel(available int64)
}

type NoopMetrics struct{}

func (NoopMetrics) RecordOperation(op, outcome string, duration time.Duration) {}
func (NoopMetrics) RecordPoolLevel(available int64)                            {}
