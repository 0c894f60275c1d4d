package quotes

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/redkey-web/DewaterQuote-sub003/internal/docstore"
	"github.com/redkey-web/DewaterQuote-sub003/internal/document"
	"github.com/redkey-web/DewaterQuote-sub003/internal/notify"
	"github.com/redkey-web/DewaterQuote-sub003/internal/shared"
	"github.com/redkey-web/DewaterQuote-sub003/web"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	mu     sync.Mutex
	quotes map[int64]*Quote
	nextID int64
	seq    int

	// failures injected per method name
	errs map[string]error
}

func newMockRepository() *mockRepository {
	return &mockRepository{quotes: map[int64]*Quote{}, errs: map[string]error{}}
}

func (m *mockRepository) fail(method string) error {
	return m.errs[method]
}

func (m *mockRepository) put(q Quote) Quote {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.ID == 0 {
		m.nextID++
		q.ID = m.nextID
	} else if q.ID > m.nextID {
		m.nextID = q.ID
	}
	if q.Send.State == "" {
		q.Send.State = SendIdle
	}
	if q.Status == "" {
		q.Status = StatusPending
	}
	cp := q
	m.quotes[q.ID] = &cp
	return cp
}

func (m *mockRepository) snapshot(id int64) Quote {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := *m.quotes[id]
	q.Items = append([]Item(nil), q.Items...)
	return q
}

func (m *mockRepository) Create(_ context.Context, in NewQuote) (Quote, error) {
	if err := m.fail("Create"); err != nil {
		return Quote{}, err
	}
	m.mu.Lock()
	m.seq++
	number := FormatQuoteNumber(in.QuoteNumberPrefix, in.CreatedAt.Format("0601"), m.seq)
	m.mu.Unlock()
	token := in.ApprovalToken
	expires := in.ApprovalTokenExpiresAt
	return m.put(Quote{
		QuoteNumber:            number,
		CompanyName:            in.CompanyName,
		ContactName:            in.ContactName,
		Email:                  in.Email,
		Phone:                  in.Phone,
		Delivery:               in.Delivery,
		Billing:                in.Billing,
		Status:                 StatusPending,
		PricedTotal:            in.Totals.PricedTotal,
		Savings:                in.Totals.Savings,
		CertFee:                in.Totals.CertFee,
		CertCount:              in.Totals.CertCount,
		HasUnpricedItems:       in.Totals.HasUnpricedItems,
		Notes:                  in.Notes,
		ApprovalToken:          &token,
		ApprovalTokenExpiresAt: &expires,
		ClientIP:               in.ClientIP,
		Items:                  append([]Item(nil), in.Items...),
		CreatedAt:              in.CreatedAt,
		UpdatedAt:              in.CreatedAt,
	}), nil
}

func (m *mockRepository) Get(_ context.Context, id int64) (Quote, error) {
	if err := m.fail("Get"); err != nil {
		return Quote{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return Quote{}, ErrNotFound
	}
	return *q, nil
}

func (m *mockRepository) GetByToken(_ context.Context, token string) (Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.quotes {
		if q.ApprovalToken != nil && *q.ApprovalToken == token {
			return *q, nil
		}
	}
	return Quote{}, ErrNotFound
}

func (m *mockRepository) filtered(filter ListFilter) []Quote {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Quote
	for _, q := range m.quotes {
		if q.IsDeleted && !filter.IncludeDeleted {
			continue
		}
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}
		if s := strings.ToLower(filter.Search); s != "" && !strings.Contains(strings.ToLower(q.QuoteNumber+" "+q.Email+" "+q.ContactName), s) {
			continue
		}
		out = append(out, *q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *mockRepository) List(_ context.Context, filter ListFilter) ([]Summary, int, error) {
	all := m.filtered(filter)
	var out []Summary
	for i, q := range all {
		if i < filter.Offset || (filter.Limit > 0 && len(out) >= filter.Limit) {
			continue
		}
		out = append(out, Summary{ID: q.ID, QuoteNumber: q.QuoteNumber, Status: q.Status, Email: q.Email, SendState: q.Send.State})
	}
	return out, len(all), nil
}

func (m *mockRepository) Export(_ context.Context, filter ListFilter) ([]Quote, error) {
	return m.filtered(filter), nil
}

func (m *mockRepository) Update(_ context.Context, id int64, expected Status, upd QuoteUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok || q.IsDeleted {
		return ErrNotFound
	}
	if q.Status != expected || q.Send.State == SendInFlight {
		return ErrConcurrentModification
	}
	if upd.Status != nil {
		q.Status = *upd.Status
		if q.Status == StatusReviewed && q.ReviewedAt == nil {
			at := upd.At
			q.ReviewedAt = &at
		}
	}
	if upd.ShippingCost != nil {
		q.ShippingCost = *upd.ShippingCost
	}
	if upd.ShippingNotes != nil {
		q.ShippingNotes = upd.ShippingNotes
	}
	if upd.InternalNotes != nil {
		q.InternalNotes = upd.InternalNotes
	}
	q.UpdatedAt = upd.At
	return nil
}

func (m *mockRepository) ReplaceItems(_ context.Context, id int64, items []Item, totals StoredTotals, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok || q.IsDeleted {
		return ErrNotFound
	}
	if q.Send.State == SendInFlight {
		return ErrConcurrentModification
	}
	q.Items = append([]Item(nil), items...)
	q.PricedTotal, q.Savings, q.CertFee = totals.PricedTotal, totals.Savings, totals.CertFee
	q.CertCount, q.HasUnpricedItems = totals.CertCount, totals.HasUnpricedItems
	q.UpdatedAt = at
	return nil
}

func (m *mockRepository) SetApprovalToken(_ context.Context, id int64, token string, expiresAt, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return ErrNotFound
	}
	q.ApprovalToken, q.ApprovalTokenExpiresAt = &token, &expiresAt
	return nil
}

func (m *mockRepository) SoftDelete(_ context.Context, id, actorID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok || q.IsDeleted {
		return ErrNotFound
	}
	q.IsDeleted, q.DeletedAt, q.DeletedBy = true, &at, &actorID
	return nil
}

func (m *mockRepository) Restore(_ context.Context, id int64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok || !q.IsDeleted {
		return ErrNotFound
	}
	q.IsDeleted, q.DeletedAt, q.DeletedBy = false, nil, nil
	return nil
}

func (m *mockRepository) BeginSend(_ context.Context, id int64, expectedVersion int, attempt uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok || q.IsDeleted {
		return ErrNotFound
	}
	if q.Status.Terminal() {
		return ErrInvalidStatus
	}
	if q.PDFVersion != expectedVersion || q.Send.State == SendInFlight {
		return ErrConcurrentModification
	}
	q.Send.State, q.Send.Step, q.Send.AttemptID, q.Send.StartedAt, q.Send.LastError = SendInFlight, StepRender, &attempt, &at, nil
	return nil
}

func (m *mockRepository) owned(id int64, attempt uuid.UUID) (*Quote, error) {
	q, ok := m.quotes[id]
	if !ok || q.Send.AttemptID == nil || *q.Send.AttemptID != attempt {
		return nil, ErrConcurrentModification
	}
	return q, nil
}

func (m *mockRepository) MarkSendStep(_ context.Context, id int64, attempt uuid.UUID, step SendStep, progress SendProgress) error {
	if err := m.fail("MarkSendStep:" + string(step)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	q, err := m.owned(id, attempt)
	if err != nil {
		return err
	}
	q.Send.Step = step
	if progress.PendingPDFURL != nil {
		q.Send.PendingPDFURL = progress.PendingPDFURL
	}
	if progress.PendingPDFVersion != nil {
		q.Send.PendingPDFVersion = progress.PendingPDFVersion
	}
	if progress.Completion != nil {
		c := *progress.Completion
		q.Send.Completion = &c
	}
	return nil
}

func (m *mockRepository) CompleteSend(_ context.Context, id int64, attempt uuid.UUID, c SendCompletion) error {
	if err := m.fail("CompleteSend"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	q, err := m.owned(id, attempt)
	if err != nil {
		return err
	}
	if q.PDFVersion != c.PDFVersion-1 {
		return ErrConcurrentModification
	}
	at := c.At
	q.Status, q.ForwardedAt = StatusForwarded, &at
	q.ShippingCost, q.ShippingNotes = c.ShippingCost, c.ShippingNotes
	if c.InternalNotes != nil {
		q.InternalNotes = c.InternalNotes
	}
	if c.PreparedBy != nil {
		q.PreparedBy = c.PreparedBy
	}
	pdfURL := c.PDFURL
	q.PDFURL, q.PDFVersion, q.PDFGeneratedAt = &pdfURL, c.PDFVersion, &at
	q.Send = SendMarker{State: SendIdle}
	return nil
}

func (m *mockRepository) AbortSend(_ context.Context, id int64, attempt uuid.UUID, abort SendAbort) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, err := m.owned(id, attempt)
	if err != nil {
		return err
	}
	cause := abort.Cause
	q.Send = SendMarker{
		State:             abort.State,
		PendingPDFURL:     abort.PendingPDFURL,
		PendingPDFVersion: abort.PendingPDFVersion,
		LastError:         &cause,
	}
	return nil
}

func (m *mockRepository) ListStaleSends(_ context.Context, startedBefore time.Time, _ int) ([]Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Quote
	for _, q := range m.quotes {
		if q.Send.State == SendInFlight && q.Send.StartedAt != nil && q.Send.StartedAt.Before(startedBefore) {
			out = append(out, *q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ============================================================================
// FAKE COLLABORATORS
// ============================================================================

type fakeRenderer struct {
	mu      sync.Mutex
	err     error
	calls   int
	last    document.QuotePDFData
	started chan struct{}
	release chan struct{}
}

func (r *fakeRenderer) Render(ctx context.Context, data document.QuotePDFData) ([]byte, error) {
	r.mu.Lock()
	r.calls++
	r.last = data
	started, release, err := r.started, r.release, r.err
	r.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte("%PDF-1.4 " + data.QuoteNumber), nil
}

func (r *fakeRenderer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

type recordingObserver struct {
	mu        sync.Mutex
	sends     []string
	reconcile []string
}

func (o *recordingObserver) ObserveSend(path, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sends = append(o.sends, path+":"+outcome)
}

func (o *recordingObserver) ObserveReconcile(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reconcile = append(o.reconcile, outcome)
}

// ============================================================================
// FIXTURE
// ============================================================================

var fixedNow = time.Date(2025, 1, 14, 2, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	repo     *mockRepository
	renderer *fakeRenderer
	backend  *docstore.MemoryBackend
	mailer   *notify.RecordingMailer
	audit    *recordingAudit
	observer *recordingObserver
	redis    *miniredis.Miniredis
	locker   *shared.RedisLocker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	templates, err := notify.ParseTemplates(web.Templates)
	require.NoError(t, err)

	perth, err := time.LoadLocation("Australia/Perth")
	require.NoError(t, err)

	f := &fixture{
		repo:     newMockRepository(),
		renderer: &fakeRenderer{},
		backend:  docstore.NewMemoryBackend(),
		mailer:   &notify.RecordingMailer{},
		audit:    &recordingAudit{},
		observer: &recordingObserver{},
		redis:    mr,
		locker:   shared.NewRedisLocker(rdb),
	}
	dispatcher := notify.NewDispatcher(f.mailer, templates, notify.Config{
		FromEmail:     "noreply@dewaterproducts.com.au",
		FromName:      "Dewater Products",
		BusinessEmail: "sales@dewaterproducts.com.au",
		SystemName:    "Dewater Products Quote System",
		WebsiteURL:    "https://dewaterproducts.com.au",
		AdminURL:      "https://dewaterproducts.com.au/admin",
		Location:      perth,
		Company:       document.DefaultCompany,
	}, nil)
	f.svc = NewService(f.repo, Ports{
		Renderer: f.renderer,
		Store:    docstore.New(f.backend, nil),
		Notifier: dispatcher,
		Locker:   f.locker,
		Audit:    f.audit,
		Observer: f.observer,
	}, ServiceConfig{
		CertFeePerItem:       decimal.RequireFromString("35"),
		RegionalShippingCost: decimal.RequireFromString("50"),
		SiteURL:              "https://dewaterproducts.com.au",
		Location:             perth,
	}, nil)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// seedQuote stores a priced metro quote with a valid approval token.
func (f *fixture) seedQuote(mutators ...func(*Quote)) Quote {
	expires := fixedNow.Add(7 * 24 * time.Hour)
	q := Quote{
		QuoteNumber:            "DQ-2501-0001",
		CompanyName:            strPtr("Acme Mining"),
		ContactName:            "Jane Citizen",
		Email:                  "jane@acme.example",
		Delivery:               Address{Street: strPtr("1 Hay Street"), Suburb: strPtr("Perth"), State: strPtr("WA"), Postcode: strPtr("6000")},
		Status:                 StatusPending,
		PricedTotal:            decimal.RequireFromString("200.00"),
		ApprovalToken:          strPtr("tok-valid"),
		ApprovalTokenExpiresAt: &expires,
		CreatedAt:              fixedNow,
		Items: []Item{{
			SKU:       "FC-100",
			Name:      "Flex Coupling",
			Quantity:  2,
			UnitPrice: decPtr("100.00"),
			LineTotal: decPtr("200.00"),
		}},
	}
	for _, mut := range mutators {
		mut(&q)
	}
	return f.repo.put(q)
}

func (f *fixture) customerEmails() []notify.Message {
	var out []notify.Message
	for _, m := range f.mailer.Messages() {
		if strings.HasPrefix(m.Subject, "Your Quote ") {
			out = append(out, m)
		}
	}
	return out
}

var errBoom = errors.New("boom")
