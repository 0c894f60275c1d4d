package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries customer-facing sends ahead of housekeeping.
	QueueCritical = "critical"

	// TaskQuoteSend sends a quote on behalf of the system.
	TaskQuoteSend = "quotes:send"
	// TaskReconcileStale settles abandoned send attempts.
	TaskReconcileStale = "quotes:reconcile-stale"
	// TaskPurgeProcessedKeys trims the webhook idempotency table.
	TaskPurgeProcessedKeys = "housekeeping:purge-processed-keys"
)

// QuoteSendPayload describes a queued quote send.
type QuoteSendPayload struct {
	QuoteID       int64            `json:"quote_id"`
	ShippingCost  *decimal.Decimal `json:"shipping_cost,omitempty"`
	ShippingNotes *string          `json:"shipping_notes,omitempty"`
	PreparedBy    *string          `json:"prepared_by,omitempty"`
	CustomMessage string           `json:"custom_message,omitempty"`
}

// NewQuoteSendTask builds a send task. An identical payload queued again
// within a minute is rejected with asynq.ErrDuplicateTask.
func NewQuoteSendTask(payload QuoteSendPayload) (*asynq.Task, error) {
	if payload.QuoteID <= 0 {
		return nil, errors.New("jobs: quote id required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuoteSend, body,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(5),
		asynq.Timeout(2*time.Minute),
		asynq.Unique(time.Minute),
	), nil
}

// ReconcilePayload bounds one reconcile pass.
type ReconcilePayload struct {
	Limit int `json:"limit"`
}

// NewReconcileTask builds a reconcile task.
func NewReconcileTask(limit int) (*asynq.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	body, err := json.Marshal(ReconcilePayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileStale, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

// PurgeKeysPayload sets how long processed keys are kept.
type PurgeKeysPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewPurgeKeysTask builds a housekeeping task.
func NewPurgeKeysTask(retention time.Duration) (*asynq.Task, error) {
	hours := int(retention.Hours())
	if hours <= 0 {
		hours = 24 * 30
	}
	body, err := json.Marshal(PurgeKeysPayload{RetentionHours: hours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPurgeProcessedKeys, body, asynq.Queue(QueueDefault)), nil
}
