package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/redkey-web/DewaterQuote-sub003/internal/jobs"
	"github.com/redkey-web/DewaterQuote-sub003/internal/quotes"
)

// QuoteSender is the slice of quotes.Service the send job needs.
type QuoteSender interface {
	Send(ctx context.Context, auth quotes.Authorization, req quotes.SendRequest) (quotes.SendResult, error)
}

// QuoteSendJob performs queued sends with system authorization.
type QuoteSendJob struct {
	Service QuoteSender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewQuoteSendJob constructs the job handler.
func NewQuoteSendJob(service QuoteSender, logger *slog.Logger, metrics *jobmetrics.Metrics) *QuoteSendJob {
	return &QuoteSendJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes one queued send. Permanent failures skip retries;
// conflicts and provider errors are retried by asynq.
func (j *QuoteSendJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("quote send: dependencies not configured")
	}
	var payload QuoteSendPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("quote send payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskQuoteSend)
	defer func() { err = tracker.End(err) }()

	res, err := j.Service.Send(ctx, quotes.SystemAuthorization{QuoteID: payload.QuoteID}, quotes.SendRequest{
		ShippingCost:  payload.ShippingCost,
		ShippingNotes: payload.ShippingNotes,
		PreparedBy:    payload.PreparedBy,
		CustomMessage: payload.CustomMessage,
	})
	if err != nil {
		logger := j.log().With(slog.Int64("quote_id", payload.QuoteID))
		switch {
		case errors.Is(err, quotes.ErrNotFound),
			errors.Is(err, quotes.ErrValidation),
			errors.Is(err, quotes.ErrInvalidStatus),
			errors.Is(err, quotes.ErrEmailServiceUnavailable):
			logger.Warn("queued send dropped", slog.Any("error", err))
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		default:
			logger.Error("queued send failed", slog.Any("error", err))
			return err
		}
	}
	j.log().Info("queued send delivered", slog.String("quote_number", res.QuoteNumber))
	return nil
}

func (j *QuoteSendJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
