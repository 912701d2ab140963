// Package jobs contains the Asynq task definitions and worker wiring for
// scheduled maintenance work.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPricingWarmup pre-resolves default selling prices into the cache.
	TaskPricingWarmup = "pricing:warmup"
	// TaskLedgerIntegrity scans the stock ledger for impossible balances.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskIdempotencyCleanup prunes stale idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// PricingWarmupPayload carries scheduling metadata for the warmup run.
type PricingWarmupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewPricingWarmupTask constructs an Asynq task for the pricing warmup.
func NewPricingWarmupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(PricingWarmupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPricingWarmup, body, asynq.Queue(QueueDefault)), nil
}

// LedgerIntegrityPayload carries scheduling metadata for the integrity scan.
type LedgerIntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the ledger scan.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerIntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload sets the retention window for the cleanup run.
type IdempotencyCleanupPayload struct {
	RetainHours int `json:"retain_hours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for the cleanup run.
func NewIdempotencyCleanupTask(retainHours int) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetainHours: retainHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
