package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/redkey-web/DewaterQuote-sub003/internal/jobs"
)

// KeyPurger removes processed idempotency keys older than a retention.
type KeyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// PurgeKeysJob trims processed_keys.
type PurgeKeysJob struct {
	Store   KeyPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPurgeKeysJob constructs the job handler.
func NewPurgeKeysJob(store KeyPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *PurgeKeysJob {
	return &PurgeKeysJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle executes the purge.
func (j *PurgeKeysJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("purge keys: dependencies not configured")
	}
	var payload PurgeKeysPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = 24 * 30
	}

	tracker := j.Metrics.Track(TaskPurgeProcessedKeys)
	defer func() { err = tracker.End(err) }()

	removed, err := j.Store.Cleanup(ctx, time.Duration(payload.RetentionHours)*time.Hour)
	if err != nil {
		return err
	}
	j.Metrics.AddItems(TaskPurgeProcessedKeys, "keys", int(removed))
	if j.Logger != nil && removed > 0 {
		j.Logger.Info("purged processed keys", slog.Int64("removed", removed))
	}
	return nil
}
