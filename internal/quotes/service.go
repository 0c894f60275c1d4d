package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/redkey-web/DewaterQuote-sub003/internal/docstore"
	"github.com/redkey-web/DewaterQuote-sub003/internal/document"
	"github.com/redkey-web/DewaterQuote-sub003/internal/notify"
	"github.com/redkey-web/DewaterQuote-sub003/internal/pricing"
	"github.com/redkey-web/DewaterQuote-sub003/internal/shared"
)

// DocumentStorePort publishes versioned quote PDFs.
type DocumentStorePort interface {
	Replace(ctx context.Context, obj docstore.Object, previous ...string) (string, error)
	Delete(ctx context.Context, url string) error
	URLFor(quoteNumber string, version int) string
}

// NotifierPort sends quote emails.
type NotifierPort interface {
	Configured() bool
	SendQuote(ctx context.Context, email notify.QuoteEmail) error
	PreviewQuote(email notify.QuoteEmail) (subject, htmlBody string, err error)
	NotifySubmission(ctx context.Context, email notify.SubmissionEmail) error
}

// LockerPort hands out distributed locks.
type LockerPort interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (shared.Lock, error)
}

// AuditPort records lifecycle actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ObserverPort receives send and reconcile outcomes.
type ObserverPort interface {
	ObserveSend(path, outcome string, d time.Duration)
	ObserveReconcile(outcome string)
}

// Ports groups the collaborators of Service.
type Ports struct {
	Renderer document.Renderer
	Store    DocumentStorePort
	Notifier NotifierPort
	Locker   LockerPort
	Audit    AuditPort
	Observer ObserverPort
}

// ServiceConfig holds quote policy.
type ServiceConfig struct {
	Validity             time.Duration
	TokenTTL             time.Duration
	LockTTL              time.Duration
	StaleAfter           time.Duration
	CertFeePerItem       decimal.Decimal
	RegionalShippingCost decimal.Decimal
	QuoteNumberPrefix    string
	SiteURL              string
	Location             *time.Location
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.Validity <= 0 {
		c.Validity = 30 * 24 * time.Hour
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 7 * 24 * time.Hour
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 10 * time.Minute
	}
	if c.QuoteNumberPrefix == "" {
		c.QuoteNumberPrefix = "DQ"
	}
	if c.SiteURL == "" {
		c.SiteURL = "https://dewaterproducts.com.au"
	}
	c.SiteURL = strings.TrimRight(c.SiteURL, "/")
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Service drives the quote lifecycle.
type Service struct {
	repo   Repository
	calc   *pricing.Calculator
	ports  Ports
	cfg    ServiceConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, ports Ports, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Service{
		repo:   repo,
		calc:   pricing.NewCalculator(cfg.RegionalShippingCost),
		ports:  ports,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// ApprovalURL is the public page where a token holder approves a quote.
func (s *Service) ApprovalURL(token string) string {
	return s.cfg.SiteURL + "/approve-quote/" + url.PathEscape(token)
}

// ============================================================================
// SUBMIT
// ============================================================================

// SubmitInput is a quote request from the cart.
type SubmitInput struct {
	CompanyName *string
	ContactName string
	Email       string
	Phone       *string
	Delivery    Address
	Billing     Address
	Notes       *string
	Items       []Item
	ClientIP    *string
}

// SubmitResult is returned to the submitter.
type SubmitResult struct {
	Success     bool   `json:"success"`
	QuoteID     int64  `json:"-"`
	QuoteNumber string `json:"quoteNumber"`
}

// Submit prices and stores a new quote request, then emails the business
// and the customer. Email failures do not fail the submission.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	if strings.TrimSpace(in.ContactName) == "" || strings.TrimSpace(in.Email) == "" {
		return SubmitResult{}, fmt.Errorf("%w: contact name and email required", ErrValidation)
	}
	items, totals, err := s.normalizeItems(in.Items)
	if err != nil {
		return SubmitResult{}, err
	}
	token, err := NewApprovalToken()
	if err != nil {
		return SubmitResult{}, fmt.Errorf("generate approval token: %w", err)
	}
	now := s.now()
	q, err := s.repo.Create(ctx, NewQuote{
		QuoteNumberPrefix:      s.cfg.QuoteNumberPrefix,
		CompanyName:            trimmed(in.CompanyName),
		ContactName:            strings.TrimSpace(in.ContactName),
		Email:                  strings.TrimSpace(in.Email),
		Phone:                  trimmed(in.Phone),
		Delivery:               in.Delivery,
		Billing:                in.Billing,
		Totals:                 totals,
		Notes:                  trimmed(in.Notes),
		ApprovalToken:          token,
		ApprovalTokenExpiresAt: now.Add(s.cfg.TokenTTL),
		ClientIP:               in.ClientIP,
		Items:                  items,
		CreatedAt:              now,
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("create quote: %w", err)
	}
	s.record(ctx, 0, "quote.submitted", q, map[string]any{"items": len(items)})

	if s.ports.Notifier != nil {
		data := document.Sanitize(s.source(q, s.price(q, SendRequest{}, true), false))
		err := s.ports.Notifier.NotifySubmission(ctx, notify.SubmissionEmail{
			Data:        data,
			Flags:       s.flags(q),
			ApprovalURL: s.ApprovalURL(token),
		})
		if err != nil {
			s.logger.Warn("submission emails incomplete", slog.String("quote_number", q.QuoteNumber), slog.Any("error", err))
		}
	}
	return SubmitResult{Success: true, QuoteID: q.ID, QuoteNumber: q.QuoteNumber}, nil
}

// normalizeItems orders items, fills line totals and derives the stored totals.
func (s *Service) normalizeItems(in []Item) ([]Item, StoredTotals, error) {
	if len(in) == 0 {
		return nil, StoredTotals{}, fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	items := make([]Item, len(in))
	copy(items, in)
	sort.SliceStable(items, func(i, j int) bool { return items[i].DisplayOrder < items[j].DisplayOrder })
	lines := make([]pricing.Line, len(items))
	for i := range items {
		it := &items[i]
		it.SKU = strings.TrimSpace(it.SKU)
		it.Name = strings.TrimSpace(it.Name)
		if it.SKU == "" || it.Name == "" {
			return nil, StoredTotals{}, fmt.Errorf("%w: item %d needs sku and name", ErrValidation, i+1)
		}
		if it.Quantity < 1 {
			return nil, StoredTotals{}, fmt.Errorf("%w: item %s quantity must be at least 1", ErrValidation, it.SKU)
		}
		it.DisplayOrder = i
		lines[i] = pricing.Line{
			Quantity:         it.Quantity,
			UnitPrice:        it.UnitPrice,
			QuotedPrice:      it.QuotedPrice,
			MaterialTestCert: it.MaterialTestCert,
		}
		it.LineTotal = lines[i].LineTotal()
	}
	sum := pricing.Summarize(lines, s.cfg.CertFeePerItem)
	return items, StoredTotals{
		PricedTotal:      sum.PricedTotal,
		Savings:          sum.Savings,
		CertFee:          sum.CertFee,
		CertCount:        sum.CertCount,
		HasUnpricedItems: sum.HasUnpricedItems,
	}, nil
}

// ============================================================================
// SEND
// ============================================================================

// SendRequest carries optional overrides applied by a send.
type SendRequest struct {
	ShippingCost  *decimal.Decimal
	ShippingNotes *string
	InternalNotes *string
	PreparedBy    *string
	CustomMessage string
}

// SendResult is the response of a send.
type SendResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	QuoteNumber string `json:"quoteNumber"`
}

type attempt struct {
	id             uuid.UUID
	quote          Quote
	policy         sendPolicy
	pendingURL     *string
	pendingVersion *int
	emailed        bool
}

// Send renders, stores and emails a quote, then marks it forwarded. The
// authorization decides who may send and how shipping is priced.
func (s *Service) Send(ctx context.Context, auth Authorization, req SendRequest) (SendResult, error) {
	start := s.now()
	if auth == nil {
		return SendResult{}, ErrUnauthorized
	}
	q, policy, err := auth.authorize(ctx, s.repo, start)
	if err != nil {
		s.observeSend(pathOf(auth), "rejected", start)
		return SendResult{}, err
	}
	if q.Status.Terminal() {
		s.observeSend(policy.path, "rejected", start)
		return SendResult{}, fmt.Errorf("%w: %s quotes cannot be sent", ErrInvalidStatus, q.Status)
	}
	if s.ports.Notifier == nil || !s.ports.Notifier.Configured() {
		s.observeSend(policy.path, "unavailable", start)
		return SendResult{}, ErrEmailServiceUnavailable
	}

	lock, err := s.ports.Locker.Obtain(ctx, shared.QuoteSendLockKey(q.ID), s.cfg.LockTTL)
	if err != nil {
		s.observeSend(policy.path, "conflict", start)
		if errors.Is(err, shared.ErrLockNotObtained) {
			return SendResult{}, ErrConcurrentModification
		}
		return SendResult{}, fmt.Errorf("acquire send lock: %w", err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release send lock", slog.Int64("quote_id", q.ID), slog.Any("error", err))
		}
	}()

	a := &attempt{id: uuid.New(), quote: q, policy: policy, pendingURL: q.Send.PendingPDFURL, pendingVersion: q.Send.PendingPDFVersion}
	if err := s.repo.BeginSend(ctx, q.ID, q.PDFVersion, a.id, start); err != nil {
		s.observeSend(policy.path, "conflict", start)
		return SendResult{}, err
	}

	if err := s.runSend(ctx, a, req); err != nil {
		s.failSend(ctx, a, err)
		s.observeSend(policy.path, "failed", start)
		return SendResult{}, err
	}
	s.observeSend(policy.path, "sent", start)

	return SendResult{Success: true, Message: fmt.Sprintf("Quote sent to %s", q.Email), QuoteNumber: q.QuoteNumber}, nil
}

func (s *Service) runSend(ctx context.Context, a *attempt, req SendRequest) error {
	q := a.quote
	totals := s.price(q, req, a.policy.zoneShipping)
	src := s.source(q, totals, false)
	if req.PreparedBy != nil {
		src.PreparedBy = trimmed(req.PreparedBy)
	}
	src.LinkURL = s.cfg.SiteURL
	src.LinkCaption = "Reply to this email or call us to place your order."
	data := document.Sanitize(src)

	pdf, err := s.ports.Renderer.Render(ctx, data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRenderFailure, err)
	}
	if err := s.repo.MarkSendStep(ctx, q.ID, a.id, StepStore, SendProgress{}); err != nil {
		return err
	}

	version := q.PDFVersion + 1
	previous := []string{deref(q.PDFURL), deref(a.pendingURL)}
	pdfURL, err := s.ports.Store.Replace(ctx, docstore.Object{QuoteNumber: q.QuoteNumber, Version: version, Data: pdf}, previous...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	a.pendingURL, a.pendingVersion = &pdfURL, &version

	completion := SendCompletion{
		ShippingCost:  totals.ShippingCost,
		ShippingNotes: nonEmptyPtr(totals.ShippingNotes),
		InternalNotes: trimmed(req.InternalNotes),
		PreparedBy:    trimmed(req.PreparedBy),
		PDFURL:        pdfURL,
		PDFVersion:    version,
	}
	if err := s.repo.MarkSendStep(ctx, q.ID, a.id, StepEmail, SendProgress{
		PendingPDFURL:     &pdfURL,
		PendingPDFVersion: &version,
		Completion:        &completion,
	}); err != nil {
		return err
	}

	err = s.ports.Notifier.SendQuote(ctx, notify.QuoteEmail{
		QuoteID:       q.ID,
		Data:          data,
		PDF:           pdf,
		CustomMessage: req.CustomMessage,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailure, err)
	}
	a.emailed = true

	if err := s.repo.MarkSendStep(ctx, q.ID, a.id, StepFinalize, SendProgress{}); err != nil {
		return err
	}
	completion.At = s.now()
	if err := s.repo.CompleteSend(ctx, q.ID, a.id, completion); err != nil {
		return err
	}

	action := "quote.sent"
	if a.policy.path == PathToken {
		action = "quote.approved"
	}
	s.record(ctx, a.policy.actorID, action, q, map[string]any{
		"path":        a.policy.path,
		"pdf_version": version,
		"recipient":   q.Email,
	})
	s.logger.Info("quote sent",
		slog.String("quote_number", q.QuoteNumber),
		slog.String("path", a.policy.path),
		slog.Int("pdf_version", version),
	)
	return nil
}

// failSend clears the marker of a failed attempt. Once the email left, the
// marker stays in flight so the reconciler can settle it.
func (s *Service) failSend(ctx context.Context, a *attempt, cause error) {
	ctx = context.WithoutCancel(ctx)
	s.logger.Error("send quote",
		slog.String("quote_number", a.quote.QuoteNumber),
		slog.String("path", a.policy.path),
		slog.Any("error", cause),
	)
	if a.emailed {
		return
	}
	err := s.repo.AbortSend(ctx, a.quote.ID, a.id, SendAbort{
		State:             SendIdle,
		Cause:             cause.Error(),
		PendingPDFURL:     a.pendingURL,
		PendingPDFVersion: a.pendingVersion,
	})
	if err != nil {
		s.logger.Error("clear send marker", slog.String("quote_number", a.quote.QuoteNumber), slog.Any("error", err))
	}
}

func pathOf(auth Authorization) string {
	switch auth.(type) {
	case AdminAuthorization, *AdminAuthorization:
		return PathAdmin
	case TokenAuthorization, *TokenAuthorization:
		return PathToken
	default:
		return PathSystem
	}
}

// ============================================================================
// RECONCILE
// ============================================================================

// ReconcileResult counts what a reconcile pass did.
type ReconcileResult struct {
	Scanned   int `json:"scanned"`
	Finalized int `json:"finalized"`
	Stalled   int `json:"stalled"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Reconcile settles send attempts whose marker outlived StaleAfter.
// Attempts whose email the provider accepted are finalized. An attempt
// stuck at the email step has an unknown outcome and is marked stalled
// for an admin to re-send; earlier ones also lose their orphan document.
func (s *Service) Reconcile(ctx context.Context, limit int) (ReconcileResult, error) {
	var res ReconcileResult
	stale, err := s.repo.ListStaleSends(ctx, s.now().Add(-s.cfg.StaleAfter), limit)
	if err != nil {
		return res, fmt.Errorf("list stale sends: %w", err)
	}
	for _, q := range stale {
		res.Scanned++
		outcome, err := s.reconcileOne(ctx, q)
		switch {
		case err != nil:
			res.Failed++
			outcome = "failed"
			s.logger.Error("reconcile send", slog.String("quote_number", q.QuoteNumber), slog.Any("error", err))
		case outcome == "finalized":
			res.Finalized++
		case outcome == "stalled":
			res.Stalled++
		default:
			res.Skipped++
		}
		if s.ports.Observer != nil {
			s.ports.Observer.ObserveReconcile(outcome)
		}
	}
	return res, nil
}

func (s *Service) reconcileOne(ctx context.Context, q Quote) (string, error) {
	if q.Send.AttemptID == nil {
		return "skipped", nil
	}
	lock, err := s.ports.Locker.Obtain(ctx, shared.QuoteSendLockKey(q.ID), s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, shared.ErrLockNotObtained) {
			return "skipped", nil
		}
		return "", err
	}
	defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()

	attemptID := *q.Send.AttemptID
	step := q.Send.Step
	if step == StepFinalize && q.Send.Completion != nil {
		c := *q.Send.Completion
		c.At = s.now()
		if err := s.repo.CompleteSend(ctx, q.ID, attemptID, c); err != nil {
			return "", err
		}
		s.record(ctx, 0, "quote.send_reconciled", q, map[string]any{"outcome": "finalized", "step": string(step)})
		return "finalized", nil
	}

	if step == StepEmail {
		if err := s.repo.AbortSend(ctx, q.ID, attemptID, SendAbort{
			State:             SendStalled,
			Cause:             "email outcome unknown",
			PendingPDFURL:     q.Send.PendingPDFURL,
			PendingPDFVersion: q.Send.PendingPDFVersion,
		}); err != nil {
			return "", err
		}
		s.record(ctx, 0, "quote.send_reconciled", q, map[string]any{"outcome": "stalled", "step": string(step)})
		return "stalled", nil
	}

	orphans := []string{s.ports.Store.URLFor(q.QuoteNumber, q.PDFVersion+1), deref(q.Send.PendingPDFURL)}
	for _, u := range orphans {
		if u == "" || u == deref(q.PDFURL) {
			continue
		}
		if err := s.ports.Store.Delete(ctx, u); err != nil {
			s.logger.Warn("delete orphan quote document", slog.String("url", u), slog.Any("error", err))
		}
	}
	if err := s.repo.AbortSend(ctx, q.ID, attemptID, SendAbort{
		State: SendStalled,
		Cause: fmt.Sprintf("send interrupted at step %s", step),
	}); err != nil {
		return "", err
	}
	s.record(ctx, 0, "quote.send_reconciled", q, map[string]any{"outcome": "stalled", "step": string(step)})
	return "stalled", nil
}

// ============================================================================
// ADMIN
// ============================================================================

// Detail is the admin view of a quote.
type Detail struct {
	Quote
	Totals      pricing.Totals `json:"totals"`
	Flags       pricing.Flags  `json:"flags"`
	FlagNotes   []string       `json:"flagNotes"`
	ApprovalURL string         `json:"approvalUrl,omitempty"`
}

// Get returns a quote with its totals preview and exception flags.
func (s *Service) Get(ctx context.Context, id int64) (Detail, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	flags := s.flags(q)
	d := Detail{Quote: q, Totals: s.price(q, SendRequest{}, true), Flags: flags, FlagNotes: notify.FlagNotes(flags)}
	if q.ApprovalToken != nil && !TokenExpired(q.ApprovalTokenExpiresAt, s.now()) {
		d.ApprovalURL = s.ApprovalURL(*q.ApprovalToken)
	}
	return d, nil
}

// List returns a page of quote summaries.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Summary, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	return s.repo.List(ctx, filter)
}

// Export returns every matching quote with items.
func (s *Service) Export(ctx context.Context, filter ListFilter) ([]Quote, error) {
	return s.repo.Export(ctx, filter)
}

// Calculator exposes the pricing policy used by the service.
func (s *Service) Calculator() *pricing.Calculator {
	return s.calc
}

// Update applies admin edits. Terminal quotes keep their status and a quote
// only becomes forwarded by being sent.
func (s *Service) Update(ctx context.Context, actorID, id int64, upd QuoteUpdate) (Detail, error) {
	q, err := loadQuote(ctx, s.repo, id)
	if err != nil {
		return Detail{}, err
	}
	if upd.Status != nil {
		next := *upd.Status
		if !next.Valid() || next == StatusForwarded {
			return Detail{}, fmt.Errorf("%w: %q", ErrInvalidStatus, next)
		}
		if q.Status.Terminal() && next != q.Status {
			return Detail{}, fmt.Errorf("%w: %s is final", ErrInvalidStatus, q.Status)
		}
	}
	upd.ShippingNotes = trimmedKeepEmpty(upd.ShippingNotes)
	upd.InternalNotes = trimmedKeepEmpty(upd.InternalNotes)
	upd.At = s.now()
	if err := s.repo.Update(ctx, id, q.Status, upd); err != nil {
		return Detail{}, err
	}
	if upd.Status != nil && *upd.Status != q.Status {
		s.record(ctx, actorID, "quote.status_changed", q, map[string]any{"from": string(q.Status), "to": string(*upd.Status)})
	}
	return s.Get(ctx, id)
}

// ReplaceItems swaps every item of a quote and recomputes its stored totals.
func (s *Service) ReplaceItems(ctx context.Context, actorID, id int64, items []Item) (Detail, error) {
	q, err := loadQuote(ctx, s.repo, id)
	if err != nil {
		return Detail{}, err
	}
	if q.Status.Terminal() {
		return Detail{}, fmt.Errorf("%w: %s quotes cannot be edited", ErrInvalidStatus, q.Status)
	}
	normalized, totals, err := s.normalizeItems(items)
	if err != nil {
		return Detail{}, err
	}
	if err := s.repo.ReplaceItems(ctx, id, normalized, totals, s.now()); err != nil {
		return Detail{}, err
	}
	s.record(ctx, actorID, "quote.items_replaced", q, map[string]any{"items": len(normalized)})
	return s.Get(ctx, id)
}

// RegenerateToken issues a fresh approval token valid for TokenTTL.
func (s *Service) RegenerateToken(ctx context.Context, actorID, id int64) (string, time.Time, error) {
	q, err := loadQuote(ctx, s.repo, id)
	if err != nil {
		return "", time.Time{}, err
	}
	token, err := NewApprovalToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate approval token: %w", err)
	}
	now := s.now()
	expires := now.Add(s.cfg.TokenTTL)
	if err := s.repo.SetApprovalToken(ctx, id, token, expires, now); err != nil {
		return "", time.Time{}, err
	}
	s.record(ctx, actorID, "quote.token_regenerated", q, map[string]any{"expires_at": expires})
	return token, expires, nil
}

// Delete soft deletes a quote.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	q, err := loadQuote(ctx, s.repo, id)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id, actorID, s.now()); err != nil {
		return err
	}
	s.record(ctx, actorID, "quote.deleted", q, nil)
	return nil
}

// Restore brings back a soft deleted quote.
func (s *Service) Restore(ctx context.Context, actorID, id int64) error {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Restore(ctx, id, s.now()); err != nil {
		return err
	}
	s.record(ctx, actorID, "quote.restored", q, nil)
	return nil
}

// Preview renders a draft PDF of the quote as it would be sent now.
// Nothing is stored.
func (s *Service) Preview(ctx context.Context, id int64, req SendRequest) ([]byte, string, error) {
	q, err := loadQuote(ctx, s.repo, id)
	if err != nil {
		return nil, "", err
	}
	src := s.source(q, s.price(q, req, true), true)
	src.InternalNotes = q.InternalNotes
	if req.InternalNotes != nil {
		src.InternalNotes = req.InternalNotes
	}
	if req.PreparedBy != nil {
		src.PreparedBy = req.PreparedBy
	}
	if q.ApprovalToken != nil && !TokenExpired(q.ApprovalTokenExpiresAt, s.now()) {
		src.LinkURL = s.ApprovalURL(*q.ApprovalToken)
		src.LinkCaption = "Scan to review and approve this quote."
	}
	pdf, err := s.ports.Renderer.Render(ctx, document.Sanitize(src))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrRenderFailure, err)
	}
	return pdf, q.QuoteNumber, nil
}

// EmailPreview is the customer email a send would produce.
type EmailPreview struct {
	Subject string `json:"subject"`
	To      string `json:"to"`
	HTML    string `json:"html"`
}

// EmailPreview renders the customer email without sending it.
func (s *Service) EmailPreview(ctx context.Context, id int64, req SendRequest) (EmailPreview, error) {
	q, err := loadQuote(ctx, s.repo, id)
	if err != nil {
		return EmailPreview{}, err
	}
	if s.ports.Notifier == nil {
		return EmailPreview{}, ErrEmailServiceUnavailable
	}
	data := document.Sanitize(s.source(q, s.price(q, req, true), false))
	subject, body, err := s.ports.Notifier.PreviewQuote(notify.QuoteEmail{QuoteID: q.ID, Data: data, CustomMessage: req.CustomMessage})
	if err != nil {
		return EmailPreview{}, fmt.Errorf("preview quote email: %w", err)
	}
	return EmailPreview{Subject: subject, To: q.Email, HTML: body}, nil
}

// ============================================================================
// PUBLIC
// ============================================================================

// PublicItem is an item as shown to a token holder.
type PublicItem struct {
	SKU       string           `json:"sku"`
	Name      string           `json:"name"`
	Size      string           `json:"size,omitempty"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unitPrice"`
	LineTotal *decimal.Decimal `json:"lineTotal"`
	LeadTime  string           `json:"leadTime,omitempty"`
}

// PublicQuote is the approval page payload. Internal notes never appear.
type PublicQuote struct {
	QuoteNumber      string         `json:"quoteNumber"`
	Status           Status         `json:"status"`
	CompanyName      string         `json:"companyName,omitempty"`
	ContactName      string         `json:"contactName"`
	Email            string         `json:"email"`
	DeliveryAddress  string         `json:"deliveryAddress"`
	Items            []PublicItem   `json:"items"`
	Totals           pricing.Totals `json:"totals"`
	HasUnpricedItems bool           `json:"hasUnpricedItems"`
	QuoteDate        string         `json:"quoteDate"`
	ValidUntil       string         `json:"validUntil"`
	ExpiresAt        *time.Time     `json:"expiresAt,omitempty"`
	AlreadySent      bool           `json:"alreadySent"`
}

// PublicQuote resolves an approval token to its quote summary.
func (s *Service) PublicQuote(ctx context.Context, token string) (PublicQuote, error) {
	q, err := quoteForToken(ctx, s.repo, token, s.now())
	if err != nil {
		return PublicQuote{}, err
	}
	totals := s.price(q, SendRequest{}, false)
	data := document.Sanitize(s.source(q, totals, false))
	out := PublicQuote{
		QuoteNumber:      q.QuoteNumber,
		Status:           q.Status,
		CompanyName:      data.CompanyName,
		ContactName:      data.ContactName,
		Email:            data.Email,
		DeliveryAddress:  data.DeliveryAddress.String(),
		Items:            make([]PublicItem, 0, len(q.Items)),
		Totals:           totals,
		HasUnpricedItems: q.HasUnpricedItems,
		QuoteDate:        data.QuoteDate,
		ValidUntil:       data.ValidUntil,
		ExpiresAt:        q.ApprovalTokenExpiresAt,
		AlreadySent:      q.Status == StatusForwarded,
	}
	for _, it := range q.Items {
		line := pricing.Line{Quantity: it.Quantity, UnitPrice: it.UnitPrice, QuotedPrice: it.QuotedPrice}
		out.Items = append(out.Items, PublicItem{
			SKU:       it.SKU,
			Name:      it.Name,
			Size:      firstNonEmpty(deref(it.SizeLabel), deref(it.Size)),
			Quantity:  it.Quantity,
			UnitPrice: line.EffectivePrice(),
			LineTotal: line.LineTotal(),
			LeadTime:  deref(it.LeadTime),
		})
	}
	return out, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Service) price(q Quote, req SendRequest, zoneShipping bool) pricing.Totals {
	cost := q.ShippingCost
	if req.ShippingCost != nil {
		cost = *req.ShippingCost
	}
	notes := deref(q.ShippingNotes)
	if req.ShippingNotes != nil {
		notes = strings.TrimSpace(*req.ShippingNotes)
	}
	totals := s.calc.Calculate(pricing.Input{
		PricedTotal:    q.PricedTotal,
		Savings:        q.Savings,
		CertFee:        q.CertFee,
		CertCount:      q.CertCount,
		Postcode:       deref(q.Delivery.Postcode),
		ShippingCost:   cost,
		ShippingNotes:  notes,
		SkipZoneLookup: !zoneShipping,
	})
	// Metro and regional zones have fixed rates.
	if req.ShippingCost != nil && !totals.ShippingCost.Equal(*req.ShippingCost) {
		s.logger.Info("shipping override replaced by zone rate",
			slog.String("quote_number", q.QuoteNumber),
			slog.String("zone", string(totals.Zone)),
			slog.String("requested", req.ShippingCost.StringFixed(2)),
			slog.String("applied", totals.ShippingCost.StringFixed(2)),
		)
	}
	return totals
}

func (s *Service) source(q Quote, totals pricing.Totals, draft bool) document.Source {
	items := make([]document.SourceItem, 0, len(q.Items))
	for _, it := range q.Items {
		items = append(items, document.SourceItem{
			SKU:              it.SKU,
			VariationSKU:     it.VariationSKU,
			Name:             it.Name,
			Brand:            it.Brand,
			Size:             it.Size,
			SizeLabel:        it.SizeLabel,
			Quantity:         it.Quantity,
			UnitPrice:        it.UnitPrice,
			LineTotal:        it.LineTotal,
			QuotedPrice:      it.QuotedPrice,
			QuotedNotes:      it.QuotedNotes,
			MaterialTestCert: it.MaterialTestCert,
			LeadTime:         it.LeadTime,
			DisplayOrder:     it.DisplayOrder,
		})
	}
	return document.Source{
		QuoteNumber:      q.QuoteNumber,
		IssuedAt:         q.CreatedAt,
		Validity:         s.cfg.Validity,
		Location:         s.cfg.Location,
		CompanyName:      q.CompanyName,
		ContactName:      q.ContactName,
		Email:            q.Email,
		Phone:            q.Phone,
		Delivery:         document.SourceAddress(q.Delivery),
		Billing:          document.SourceAddress(q.Billing),
		Items:            items,
		Totals:           totals,
		HasUnpricedItems: q.HasUnpricedItems,
		Notes:            q.Notes,
		PreparedBy:       q.PreparedBy,
		Draft:            draft,
	}
}

func (s *Service) flags(q Quote) pricing.Flags {
	items := make([]pricing.FlagItem, 0, len(q.Items))
	for _, it := range q.Items {
		items = append(items, pricing.FlagItem{Name: it.Name, Quantity: it.Quantity, LeadTime: deref(it.LeadTime)})
	}
	text := strings.Join([]string{
		deref(q.Delivery.Street), deref(q.Delivery.Suburb), deref(q.CompanyName), deref(q.Notes),
	}, " ")
	return pricing.DetectFlags(items, deref(q.Delivery.Postcode), text)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, q Quote, meta map[string]any) {
	if s.ports.Audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["quote_number"] = q.QuoteNumber
	err := s.ports.Audit.Record(context.WithoutCancel(ctx), shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "quote",
		EntityID: strconv.FormatInt(q.ID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("record audit log", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) observeSend(path, outcome string, start time.Time) {
	if s.ports.Observer != nil {
		s.ports.Observer.ObserveSend(path, outcome, s.now().Sub(start))
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	return nonEmptyPtr(*p)
}

// trimmedKeepEmpty trims but keeps an explicit empty string, which clears
// the column.
func trimmedKeepEmpty(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

func nonEmptyPtr(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
