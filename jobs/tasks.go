package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity recomputes ledger projections and reports drift.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskIdempotencyCleanup purges request keys past their retention.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskReportWarmup pre-computes dashboards into the report cache.
	TaskReportWarmup = "reports:warmup"
)

// IntegrityPayload selects the company to check; empty means every company.
type IntegrityPayload struct {
	CompanyCode string `json:"company_code,omitempty"`
}

// CleanupPayload overrides the configured retention when positive.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

// WarmupPayload limits the warmup to the listed companies; empty means all.
type WarmupPayload struct {
	Companies []string `json:"companies,omitempty"`
}

// NewIntegrityTask constructs a ledger integrity task.
func NewIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	return newTask(TaskLedgerIntegrity, payload)
}

// NewCleanupTask constructs an idempotency cleanup task.
func NewCleanupTask(payload CleanupPayload) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, payload)
}

// NewWarmupTask constructs a report warmup task.
func NewWarmupTask(payload WarmupPayload) (*asynq.Task, error) {
	return newTask(TaskReportWarmup, payload)
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, data), nil
}

// decode treats an empty payload as the zero value.
func decode(t *asynq.Task, dst any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	return json.Unmarshal(t.Payload(), dst)
}
