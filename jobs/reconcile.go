package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/redkey-web/DewaterQuote-sub003/internal/jobs"
	"github.com/redkey-web/DewaterQuote-sub003/internal/quotes"
)

// Reconciler settles stale send attempts.
type Reconciler interface {
	Reconcile(ctx context.Context, limit int) (quotes.ReconcileResult, error)
}

// ReconcileJob runs reconcile passes on a schedule.
type ReconcileJob struct {
	Service Reconciler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReconcileJob constructs the job handler.
func NewReconcileJob(service Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes one reconcile pass.
func (j *ReconcileJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("reconcile: dependencies not configured")
	}
	payload := ReconcilePayload{Limit: 50}
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err = j.Run(ctx, payload.Limit)
	return err
}

// Run is shared by the worker and the operator CLI.
func (j *ReconcileJob) Run(ctx context.Context, limit int) (res quotes.ReconcileResult, err error) {
	tracker := j.Metrics.Track(TaskReconcileStale)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	res, err = j.Service.Reconcile(ctx, limit)
	if err != nil {
		j.log().Error("reconcile stale sends", slog.Any("error", err))
		return res, err
	}
	j.Metrics.AddItems(TaskReconcileStale, "finalized", res.Finalized)
	j.Metrics.AddItems(TaskReconcileStale, "stalled", res.Stalled)
	if res.Scanned > 0 {
		j.log().Info("reconciled stale sends",
			slog.Int("scanned", res.Scanned),
			slog.Int("finalized", res.Finalized),
			slog.Int("stalled", res.Stalled),
			slog.Int("failed", res.Failed),
			slog.Duration("duration", time.Since(start)),
		)
	}
	return res, nil
}

func (j *ReconcileJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
