package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/redkey-web/DewaterQuote-sub003/internal/notify"
	"github.com/redkey-web/DewaterQuote-sub003/internal/platform/db"
	"github.com/redkey-web/DewaterQuote-sub003/internal/pricing"
)

// SendProgress is recorded with a step change. Nil fields keep their value.
type SendProgress struct {
	PendingPDFURL     *string
	PendingPDFVersion *int
	Completion        *SendCompletion
}

// Repository is the quote store.
type Repository interface {
	Create(ctx context.Context, in NewQuote) (Quote, error)
	Get(ctx context.Context, id int64) (Quote, error)
	GetByToken(ctx context.Context, token string) (Quote, error)
	List(ctx context.Context, filter ListFilter) ([]Summary, int, error)
	Export(ctx context.Context, filter ListFilter) ([]Quote, error)
	// Update applies admin edits only while the stored status equals expected.
	Update(ctx context.Context, id int64, expected Status, upd QuoteUpdate) error
	ReplaceItems(ctx context.Context, id int64, items []Item, totals StoredTotals, at time.Time) error
	SetApprovalToken(ctx context.Context, id int64, token string, expiresAt, at time.Time) error
	SoftDelete(ctx context.Context, id, actorID int64, at time.Time) error
	Restore(ctx context.Context, id int64, at time.Time) error

	// BeginSend marks an attempt in flight. It fails with
	// ErrConcurrentModification when pdf_version moved or another attempt runs.
	BeginSend(ctx context.Context, id int64, expectedVersion int, attempt uuid.UUID, at time.Time) error
	MarkSendStep(ctx context.Context, id int64, attempt uuid.UUID, step SendStep, progress SendProgress) error
	CompleteSend(ctx context.Context, id int64, attempt uuid.UUID, c SendCompletion) error
	AbortSend(ctx context.Context, id int64, attempt uuid.UUID, abort SendAbort) error
	ListStaleSends(ctx context.Context, startedBefore time.Time, limit int) ([]Quote, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository implements Repository and notify.QuoteLookup on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)
var _ notify.QuoteLookup = (*PGRepository)(nil)

const quoteColumns = `q.id, q.quote_number, q.company_name, q.contact_name, q.email, q.phone,
q.delivery_street, q.delivery_suburb, q.delivery_state, q.delivery_postcode,
q.billing_street, q.billing_suburb, q.billing_state, q.billing_postcode,
q.status, q.priced_total::text, q.savings::text, q.cert_fee::text, q.cert_count,
q.shipping_cost::text, q.shipping_notes, q.has_unpriced_items, q.notes, q.internal_notes, q.prepared_by,
q.pdf_url, q.pdf_generated_at, q.pdf_version, q.approval_token, q.approval_token_expires_at, q.client_ip,
q.is_deleted, q.deleted_at, q.deleted_by, q.created_at, q.updated_at, q.reviewed_at, q.responded_at, q.forwarded_at,
q.send_state, q.send_step, q.send_attempt_id::text, q.send_started_at, q.pending_pdf_url, q.pending_pdf_version,
q.pending_completion, q.last_send_error`

func scanQuote(row pgx.Row) (Quote, error) {
	var (
		q          Quote
		status     string
		priced     pgtype.Text
		savings    pgtype.Text
		certFee    pgtype.Text
		shipping   pgtype.Text
		sendState  string
		sendStep   pgtype.Text
		attempt    pgtype.Text
		completion []byte
	)
	err := row.Scan(
		&q.ID, &q.QuoteNumber, &q.CompanyName, &q.ContactName, &q.Email, &q.Phone,
		&q.Delivery.Street, &q.Delivery.Suburb, &q.Delivery.State, &q.Delivery.Postcode,
		&q.Billing.Street, &q.Billing.Suburb, &q.Billing.State, &q.Billing.Postcode,
		&status, &priced, &savings, &certFee, &q.CertCount,
		&shipping, &q.ShippingNotes, &q.HasUnpricedItems, &q.Notes, &q.InternalNotes, &q.PreparedBy,
		&q.PDFURL, &q.PDFGeneratedAt, &q.PDFVersion, &q.ApprovalToken, &q.ApprovalTokenExpiresAt, &q.ClientIP,
		&q.IsDeleted, &q.DeletedAt, &q.DeletedBy, &q.CreatedAt, &q.UpdatedAt, &q.ReviewedAt, &q.RespondedAt, &q.ForwardedAt,
		&sendState, &sendStep, &attempt, &q.Send.StartedAt, &q.Send.PendingPDFURL, &q.Send.PendingPDFVersion,
		&completion, &q.Send.LastError,
	)
	if err != nil {
		return Quote{}, err
	}
	q.Status = Status(status)
	q.PricedTotal = textAmount(priced)
	q.Savings = textAmount(savings)
	q.CertFee = textAmount(certFee)
	q.ShippingCost = textAmount(shipping)
	q.Send.State = SendState(sendState)
	q.Send.Step = SendStep(sendStep.String)
	if attempt.Valid {
		if id, err := uuid.Parse(attempt.String); err == nil {
			q.Send.AttemptID = &id
		}
	}
	if len(completion) > 0 {
		var c SendCompletion
		if err := json.Unmarshal(completion, &c); err != nil {
			return Quote{}, fmt.Errorf("decode pending completion: %w", err)
		}
		q.Send.Completion = &c
	}
	return q, nil
}

// Create allocates a quote number and inserts the quote with its items.
// The sequence bump runs outside the transaction, so numbers may skip.
func (r *PGRepository) Create(ctx context.Context, in NewQuote) (Quote, error) {
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	period := createdAt.Format("0601")
	var seq int
	if err := r.pool.QueryRow(ctx, `INSERT INTO quote_number_sequences (period, last_value) VALUES ($1, 1)
ON CONFLICT (period) DO UPDATE SET last_value = quote_number_sequences.last_value + 1
RETURNING last_value`, period).Scan(&seq); err != nil {
		return Quote{}, fmt.Errorf("allocate quote number: %w", err)
	}
	number := FormatQuoteNumber(in.QuoteNumberPrefix, period, seq)

	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO quotes (
	quote_number, company_name, contact_name, email, phone,
	delivery_street, delivery_suburb, delivery_state, delivery_postcode,
	billing_street, billing_suburb, billing_state, billing_postcode,
	status, priced_total, savings, cert_fee, cert_count, has_unpriced_items, notes,
	approval_token, approval_token_expires_at, client_ip, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,'pending',$14::numeric,$15::numeric,$16::numeric,$17,$18,$19,$20,$21,$22,$23,$23)
RETURNING id`,
			number, in.CompanyName, in.ContactName, in.Email, in.Phone,
			in.Delivery.Street, in.Delivery.Suburb, in.Delivery.State, in.Delivery.Postcode,
			in.Billing.Street, in.Billing.Suburb, in.Billing.State, in.Billing.Postcode,
			in.Totals.PricedTotal.String(), in.Totals.Savings.String(), in.Totals.CertFee.String(),
			in.Totals.CertCount, in.Totals.HasUnpricedItems, in.Notes,
			in.ApprovalToken, in.ApprovalTokenExpiresAt, in.ClientIP, createdAt,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert quote: %w", err)
		}
		return insertItems(ctx, tx, id, in.Items)
	})
	if err != nil {
		return Quote{}, err
	}
	return r.Get(ctx, id)
}

// FormatQuoteNumber renders PREFIX-YYMM-NNNN.
func FormatQuoteNumber(prefix, period string, seq int) string {
	if prefix == "" {
		prefix = "DQ"
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, period, seq)
}

func insertItems(ctx context.Context, tx pgx.Tx, quoteID int64, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, it := range items {
		order := it.DisplayOrder
		if order == 0 {
			order = i
		}
		batch.Queue(`INSERT INTO quote_items (
	quote_id, sku, variation_sku, name, brand, size, size_label, quantity,
	unit_price, line_total, quoted_price, quoted_notes, material_test_cert, lead_time, display_order
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::numeric,$10::numeric,$11::numeric,$12,$13,$14,$15)`,
			quoteID, it.SKU, it.VariationSKU, it.Name, it.Brand, it.Size, it.SizeLabel, quantityOrOne(it.Quantity),
			decParam(it.UnitPrice), decParam(it.LineTotal), decParam(it.QuotedPrice), it.QuotedNotes,
			it.MaterialTestCert, it.LeadTime, order)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert quote items: %w", err)
	}
	return nil
}

// Get loads a quote with its items, deleted quotes included.
func (r *PGRepository) Get(ctx context.Context, id int64) (Quote, error) {
	return r.getOne(ctx, `SELECT `+quoteColumns+` FROM quotes q WHERE q.id = $1`, id)
}

// GetByToken loads the quote an approval token belongs to.
func (r *PGRepository) GetByToken(ctx context.Context, token string) (Quote, error) {
	return r.getOne(ctx, `SELECT `+quoteColumns+` FROM quotes q WHERE q.approval_token = $1`, token)
}

func (r *PGRepository) getOne(ctx context.Context, sql string, arg any) (Quote, error) {
	q, err := scanQuote(r.pool.QueryRow(ctx, sql, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, ErrNotFound
		}
		return Quote{}, err
	}
	items, err := loadItems(ctx, r.pool, []int64{q.ID})
	if err != nil {
		return Quote{}, err
	}
	q.Items = items[q.ID]
	if q.Items == nil {
		q.Items = []Item{}
	}
	return q, nil
}

func loadItems(ctx context.Context, qr querier, ids []int64) (map[int64][]Item, error) {
	rows, err := qr.Query(ctx, `SELECT quote_id, id, sku, variation_sku, name, brand, size, size_label, quantity,
	unit_price::text, line_total::text, quoted_price::text, quoted_notes, material_test_cert, lead_time, display_order
FROM quote_items WHERE quote_id = ANY($1) ORDER BY quote_id, display_order, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("load quote items: %w", err)
	}
	defer rows.Close()
	out := make(map[int64][]Item, len(ids))
	for rows.Next() {
		var (
			quoteID                 int64
			it                      Item
			unit, lineTotal, quoted *string
		)
		if err := rows.Scan(&quoteID, &it.ID, &it.SKU, &it.VariationSKU, &it.Name, &it.Brand, &it.Size, &it.SizeLabel,
			&it.Quantity, &unit, &lineTotal, &quoted, &it.QuotedNotes, &it.MaterialTestCert, &it.LeadTime, &it.DisplayOrder); err != nil {
			return nil, err
		}
		it.UnitPrice = pricing.NullableAmount(unit)
		it.LineTotal = pricing.NullableAmount(lineTotal)
		it.QuotedPrice = pricing.NullableAmount(quoted)
		out[quoteID] = append(out[quoteID], it)
	}
	return out, rows.Err()
}

func listWhere(filter ListFilter) (string, []any) {
	clauses := []string{"TRUE"}
	args := []any{}
	if !filter.IncludeDeleted {
		clauses = append(clauses, "q.is_deleted = FALSE")
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("q.status = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(q.quote_number ILIKE $%d OR q.company_name ILIKE $%d OR q.contact_name ILIKE $%d OR q.email ILIKE $%d)", n, n, n, n))
	}
	return strings.Join(clauses, " AND "), args
}

// List returns a page of summaries plus the total match count.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Summary, int, error) {
	where, args := listWhere(filter)
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, max(filter.Offset, 0))
	sql := fmt.Sprintf(`SELECT q.id, q.quote_number, q.company_name, q.contact_name, q.email, q.status,
	COALESCE((SELECT SUM(qi.quantity) FROM quote_items qi WHERE qi.quote_id = q.id), 0)::int,
	q.priced_total::text, q.has_unpriced_items, q.delivery_postcode, q.pdf_version, q.send_state,
	q.is_deleted, q.created_at, q.forwarded_at, COUNT(*) OVER()
FROM quotes q WHERE %s ORDER BY q.created_at DESC, q.id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()
	var (
		out   []Summary
		total int
	)
	for rows.Next() {
		var (
			s      Summary
			status string
			priced pgtype.Text
			state  string
		)
		if err := rows.Scan(&s.ID, &s.QuoteNumber, &s.CompanyName, &s.ContactName, &s.Email, &status,
			&s.ItemCount, &priced, &s.HasUnpricedItems, &s.DeliveryPostcode, &s.PDFVersion, &state,
			&s.IsDeleted, &s.CreatedAt, &s.ForwardedAt, &total); err != nil {
			return nil, 0, err
		}
		s.Status = Status(status)
		s.SendState = SendState(state)
		s.PricedTotal = textAmount(priced)
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// Export loads every matching quote with items, newest first.
func (r *PGRepository) Export(ctx context.Context, filter ListFilter) ([]Quote, error) {
	where, args := listWhere(filter)
	sql := `SELECT ` + quoteColumns + ` FROM quotes q WHERE ` + where + ` ORDER BY q.created_at DESC, q.id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return r.queryQuotes(ctx, sql, args...)
}

// ListStaleSends returns in-flight attempts started before the cutoff.
func (r *PGRepository) ListStaleSends(ctx context.Context, startedBefore time.Time, limit int) ([]Quote, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.queryQuotes(ctx, `SELECT `+quoteColumns+` FROM quotes q
WHERE q.send_state = 'in_flight' AND q.send_started_at < $1 ORDER BY q.send_started_at LIMIT $2`, startedBefore, limit)
}

func (r *PGRepository) queryQuotes(ctx context.Context, sql string, args ...any) ([]Quote, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Quote, error) {
		return scanQuote(row)
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return list, nil
	}
	ids := make([]int64, len(list))
	for i, q := range list {
		ids[i] = q.ID
	}
	items, err := loadItems(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Items = items[list[i].ID]
	}
	return list, nil
}

// Update writes admin edits.
func (r *PGRepository) Update(ctx context.Context, id int64, expected Status, upd QuoteUpdate) error {
	var status *string
	if upd.Status != nil {
		s := string(*upd.Status)
		status = &s
	}
	tag, err := r.pool.Exec(ctx, `UPDATE quotes SET
	status = COALESCE($2::text, status),
	reviewed_at = CASE WHEN $2::text = 'reviewed' THEN COALESCE(reviewed_at, $6) ELSE reviewed_at END,
	responded_at = CASE WHEN $2::text IN ('accepted', 'rejected') THEN $6 ELSE responded_at END,
	shipping_cost = COALESCE($3::numeric, shipping_cost),
	shipping_notes = COALESCE($4, shipping_notes),
	internal_notes = COALESCE($5, internal_notes),
	updated_at = $6
WHERE id = $1 AND status = $7 AND is_deleted = FALSE AND send_state <> 'in_flight'`,
		id, status, decParam(upd.ShippingCost), upd.ShippingNotes, upd.InternalNotes, upd.At, string(expected))
	if err != nil {
		return fmt.Errorf("update quote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, id)
	}
	return nil
}

// ReplaceItems swaps every item and the stored totals in one transaction.
func (r *PGRepository) ReplaceItems(ctx context.Context, id int64, items []Item, totals StoredTotals, at time.Time) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE quotes SET priced_total = $2::numeric, savings = $3::numeric, cert_fee = $4::numeric,
	cert_count = $5, has_unpriced_items = $6, updated_at = $7
WHERE id = $1 AND is_deleted = FALSE AND send_state <> 'in_flight'`,
			id, totals.PricedTotal.String(), totals.Savings.String(), totals.CertFee.String(),
			totals.CertCount, totals.HasUnpricedItems, at)
		if err != nil {
			return fmt.Errorf("update quote totals: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.missingOrConflict(ctx, id)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, id); err != nil {
			return fmt.Errorf("delete quote items: %w", err)
		}
		return insertItems(ctx, tx, id, items)
	})
}

// SetApprovalToken replaces the approval token and its expiry.
func (r *PGRepository) SetApprovalToken(ctx context.Context, id int64, token string, expiresAt, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE quotes SET approval_token = $2, approval_token_expires_at = $3, updated_at = $4
WHERE id = $1 AND is_deleted = FALSE`, id, token, expiresAt, at)
	if err != nil {
		return fmt.Errorf("set approval token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete hides a quote from listings and token lookups.
func (r *PGRepository) SoftDelete(ctx context.Context, id, actorID int64, at time.Time) error {
	var by *int64
	if actorID > 0 {
		by = &actorID
	}
	tag, err := r.pool.Exec(ctx, `UPDATE quotes SET is_deleted = TRUE, deleted_at = $2, deleted_by = $3, updated_at = $2
WHERE id = $1 AND is_deleted = FALSE AND send_state <> 'in_flight'`, id, at, by)
	if err != nil {
		return fmt.Errorf("delete quote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, id)
	}
	return nil
}

// Restore undoes SoftDelete.
func (r *PGRepository) Restore(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE quotes SET is_deleted = FALSE, deleted_at = NULL, deleted_by = NULL, updated_at = $2
WHERE id = $1 AND is_deleted = TRUE`, id, at)
	if err != nil {
		return fmt.Errorf("restore quote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) BeginSend(ctx context.Context, id int64, expectedVersion int, attempt uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE quotes SET send_state = 'in_flight', send_step = 'render',
	send_attempt_id = $3::uuid, send_started_at = $4, last_send_error = NULL, updated_at = $4
WHERE id = $1 AND pdf_version = $2 AND send_state <> 'in_flight' AND is_deleted = FALSE
	AND status NOT IN ('accepted', 'rejected')`,
		id, expectedVersion, attempt.String(), at)
	if err != nil {
		return fmt.Errorf("begin send: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, id)
	}
	return nil
}

func (r *PGRepository) MarkSendStep(ctx context.Context, id int64, attempt uuid.UUID, step SendStep, progress SendProgress) error {
	var completion []byte
	if progress.Completion != nil {
		data, err := json.Marshal(progress.Completion)
		if err != nil {
			return fmt.Errorf("encode pending completion: %w", err)
		}
		completion = data
	}
	tag, err := r.pool.Exec(ctx, `UPDATE quotes SET send_step = $3,
	pending_pdf_url = COALESCE($4, pending_pdf_url),
	pending_pdf_version = COALESCE($5, pending_pdf_version),
	pending_completion = COALESCE($6::jsonb, pending_completion)
WHERE id = $1 AND send_attempt_id = $2::uuid AND send_state = 'in_flight'`,
		id, attempt.String(), string(step), progress.PendingPDFURL, progress.PendingPDFVersion, completion)
	if err != nil {
		return fmt.Errorf("mark send step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (r *PGRepository) CompleteSend(ctx context.Context, id int64, attempt uuid.UUID, c SendCompletion) error {
	tag, err := r.pool.Exec(ctx, `UPDATE quotes SET
	status = 'forwarded', forwarded_at = $9,
	shipping_cost = $3::numeric, shipping_notes = $4,
	internal_notes = COALESCE($5, internal_notes), prepared_by = COALESCE($6, prepared_by),
	pdf_url = $7, pdf_version = $8, pdf_generated_at = $9,
	send_state = 'idle', send_step = NULL, send_attempt_id = NULL, send_started_at = NULL,
	pending_pdf_url = NULL, pending_pdf_version = NULL, pending_completion = NULL, last_send_error = NULL,
	updated_at = $9
WHERE id = $1 AND send_attempt_id = $2::uuid AND pdf_version = $8 - 1`,
		id, attempt.String(), c.ShippingCost.String(), c.ShippingNotes, c.InternalNotes, c.PreparedBy,
		c.PDFURL, c.PDFVersion, c.At)
	if err != nil {
		return fmt.Errorf("complete send: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (r *PGRepository) AbortSend(ctx context.Context, id int64, attempt uuid.UUID, abort SendAbort) error {
	state := abort.State
	if state == "" {
		state = SendIdle
	}
	tag, err := r.pool.Exec(ctx, `UPDATE quotes SET send_state = $3, send_step = NULL, send_attempt_id = NULL,
	send_started_at = NULL, pending_completion = NULL,
	pending_pdf_url = $4, pending_pdf_version = $5, last_send_error = NULLIF($6, '')
WHERE id = $1 AND send_attempt_id = $2::uuid`,
		id, attempt.String(), string(state), abort.PendingPDFURL, abort.PendingPDFVersion, abort.Cause)
	if err != nil {
		return fmt.Errorf("abort send: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// missingOrConflict explains why a guarded update matched no row.
func (r *PGRepository) missingOrConflict(ctx context.Context, id int64) error {
	var (
		deleted bool
		raw     string
	)
	err := r.pool.QueryRow(ctx, `SELECT is_deleted, status FROM quotes WHERE id = $1`, id).Scan(&deleted, &raw)
	if errors.Is(err, pgx.ErrNoRows) || deleted {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if status := Status(raw); status.Terminal() {
		return fmt.Errorf("%w: %s is final", ErrInvalidStatus, status)
	}
	return ErrConcurrentModification
}

// QuoteRefByID resolves a webhook custom arg.
func (r *PGRepository) QuoteRefByID(ctx context.Context, id int64) (notify.QuoteRef, bool, error) {
	return r.quoteRef(ctx, `SELECT id, quote_number, COALESCE(company_name, ''), contact_name, email
FROM quotes WHERE id = $1 AND is_deleted = FALSE`, id)
}

// LatestQuoteRefByEmail returns the most recently created quote of a recipient.
func (r *PGRepository) LatestQuoteRefByEmail(ctx context.Context, email string) (notify.QuoteRef, bool, error) {
	return r.quoteRef(ctx, `SELECT id, quote_number, COALESCE(company_name, ''), contact_name, email
FROM quotes WHERE lower(email) = lower($1) AND is_deleted = FALSE ORDER BY created_at DESC, id DESC LIMIT 1`, email)
}

func (r *PGRepository) quoteRef(ctx context.Context, sql string, arg any) (notify.QuoteRef, bool, error) {
	var ref notify.QuoteRef
	err := r.pool.QueryRow(ctx, sql, arg).Scan(&ref.ID, &ref.QuoteNumber, &ref.CompanyName, &ref.ContactName, &ref.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return notify.QuoteRef{}, false, nil
	}
	if err != nil {
		return notify.QuoteRef{}, false, err
	}
	return ref, true, nil
}

func textAmount(t pgtype.Text) decimal.Decimal {
	if !t.Valid {
		return decimal.Zero
	}
	return pricing.Amount(t.String)
}

func decParam(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func quantityOrOne(q int) int {
	if q < 1 {
		return 1
	}
	return q
}
