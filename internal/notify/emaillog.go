package notify

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Email log statuses.
const (
	EmailStatusSent   = "sent"
	EmailStatusFailed = "failed"
)

// EmailLog is a row of email_logs.
type EmailLog struct {
	ID           int64     `json:"id"`
	QuoteNumber  string    `json:"quoteNumber,omitempty"`
	Recipient    string    `json:"recipient"`
	Subject      string    `json:"subject"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Route        string    `json:"route"`
	SentAt       time.Time `json:"sentAt"`
}

// EmailLogRepository persists email logs in PostgreSQL.
type EmailLogRepository struct {
	pool *pgxpool.Pool
}

// NewEmailLogRepository constructs the repository.
func NewEmailLogRepository(pool *pgxpool.Pool) *EmailLogRepository {
	return &EmailLogRepository{pool: pool}
}

// Record inserts one log entry.
func (r *EmailLogRepository) Record(ctx context.Context, entry EmailLog) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO email_logs (quote_number, recipient, subject, status, error_message, route, sent_at)
VALUES (NULLIF($1, ''), $2, $3, $4, NULLIF($5, ''), $6, NOW())`,
		entry.QuoteNumber, entry.Recipient, entry.Subject, entry.Status, entry.ErrorMessage, entry.Route)
	return err
}

// ListForQuote returns the newest log entries of a quote.
func (r *EmailLogRepository) ListForQuote(ctx context.Context, quoteNumber string, limit int) ([]EmailLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT id, quote_number, recipient, subject, status, error_message, route, sent_at
FROM email_logs WHERE quote_number = $1 ORDER BY sent_at DESC, id DESC LIMIT $2`, quoteNumber, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (EmailLog, error) {
		var (
			entry  EmailLog
			number pgtype.Text
			errMsg pgtype.Text
		)
		if err := row.Scan(&entry.ID, &number, &entry.Recipient, &entry.Subject, &entry.Status, &errMsg, &entry.Route, &entry.SentAt); err != nil {
			return EmailLog{}, err
		}
		entry.QuoteNumber = number.String
		entry.ErrorMessage = errMsg.String
		return entry, nil
	})
}
