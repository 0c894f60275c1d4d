package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/redkey-web/DewaterQuote-sub003/internal/notify"
	"github.com/redkey-web/DewaterQuote-sub003/internal/platform/httpx"
	"github.com/redkey-web/DewaterQuote-sub003/internal/shared"
)

// EmailLogReader lists the email audit trail of a quote.
type EmailLogReader interface {
	ListForQuote(ctx context.Context, quoteNumber string, limit int) ([]notify.EmailLog, error)
}

// HistoryReader lists audit entries of a quote.
type HistoryReader interface {
	ListForEntity(ctx context.Context, entity, entityID string, limit int) ([]shared.AuditLog, error)
}

// Handler exposes the quote endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	emails    EmailLogReader
	history   HistoryReader
	validator *validator.Validate
}

// NewHandler constructs a Handler. emails and history may be nil.
func NewHandler(logger *slog.Logger, service *Service, emails EmailLogReader, history HistoryReader) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, emails: emails, history: history, validator: validator.New()}
}

// MountPublic registers customer-facing routes.
func (h *Handler) MountPublic(r chi.Router) {
	r.Post("/quotes", h.submit)
	r.Get("/approve-quote/{token}", h.showApproval)
	r.Post("/approve-quote/{token}", h.approve)
}

// MountAdmin registers back-office routes. Callers guard them with a session.
func (h *Handler) MountAdmin(r chi.Router) {
	r.Get("/quotes", h.list)
	r.Route("/quotes/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/", h.update)
		r.Delete("/", h.delete)
		r.Post("/restore", h.restore)
		r.Put("/items", h.replaceItems)
		r.Post("/send", h.send)
		r.Post("/approval-token", h.regenerateToken)
		r.Get("/preview.pdf", h.preview)
		r.Get("/email-preview", h.emailPreview)
		r.Get("/emails", h.emailLog)
		r.Get("/history", h.historyLog)
	})
}

type addressRequest struct {
	Street   *string `json:"street" validate:"omitempty,max=200"`
	Suburb   *string `json:"suburb" validate:"omitempty,max=100"`
	State    *string `json:"state" validate:"omitempty,max=30"`
	Postcode *string `json:"postcode" validate:"omitempty,max=10"`
}

func (a *addressRequest) toAddress() Address {
	if a == nil {
		return Address{}
	}
	return Address{Street: a.Street, Suburb: a.Suburb, State: a.State, Postcode: a.Postcode}
}

type itemRequest struct {
	SKU              string           `json:"sku" validate:"required,max=100"`
	VariationSKU     *string          `json:"variationSku" validate:"omitempty,max=100"`
	Name             string           `json:"name" validate:"required,max=300"`
	Brand            *string          `json:"brand" validate:"omitempty,max=100"`
	Size             *string          `json:"size" validate:"omitempty,max=100"`
	SizeLabel        *string          `json:"sizeLabel" validate:"omitempty,max=100"`
	Quantity         int              `json:"quantity" validate:"required,min=1,max=100000"`
	UnitPrice        *decimal.Decimal `json:"unitPrice"`
	QuotedPrice      *decimal.Decimal `json:"quotedPrice"`
	QuotedNotes      *string          `json:"quotedNotes" validate:"omitempty,max=1000"`
	MaterialTestCert bool             `json:"materialTestCert"`
	LeadTime         *string          `json:"leadTime" validate:"omitempty,max=100"`
	DisplayOrder     int              `json:"displayOrder"`
}

func toItems(in []itemRequest) []Item {
	items := make([]Item, 0, len(in))
	for _, it := range in {
		items = append(items, Item{
			SKU:              it.SKU,
			VariationSKU:     it.VariationSKU,
			Name:             it.Name,
			Brand:            it.Brand,
			Size:             it.Size,
			SizeLabel:        it.SizeLabel,
			Quantity:         it.Quantity,
			UnitPrice:        it.UnitPrice,
			QuotedPrice:      it.QuotedPrice,
			QuotedNotes:      it.QuotedNotes,
			MaterialTestCert: it.MaterialTestCert,
			LeadTime:         it.LeadTime,
			DisplayOrder:     it.DisplayOrder,
		})
	}
	return items
}

type submitRequest struct {
	CompanyName     *string         `json:"companyName" validate:"omitempty,max=200"`
	ContactName     string          `json:"contactName" validate:"required,max=200"`
	Email           string          `json:"email" validate:"required,email,max=254"`
	Phone           string          `json:"phone" validate:"required,max=50"`
	DeliveryAddress addressRequest  `json:"deliveryAddress"`
	BillingAddress  *addressRequest `json:"billingAddress"`
	Notes           *string         `json:"notes" validate:"omitempty,max=5000"`
	Items           []itemRequest   `json:"items" validate:"required,min=1,max=200,dive"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !h.decode(w, r, &req) {
		return
	}
	phone := req.Phone
	res, err := h.service.Submit(r.Context(), SubmitInput{
		CompanyName: req.CompanyName,
		ContactName: req.ContactName,
		Email:       req.Email,
		Phone:       &phone,
		Delivery:    req.DeliveryAddress.toAddress(),
		Billing:     req.BillingAddress.toAddress(),
		Notes:       req.Notes,
		Items:       toItems(req.Items),
		ClientIP:    clientIP(r),
	})
	if err != nil {
		h.respondError(w, r, err, true)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) showApproval(w http.ResponseWriter, r *http.Request) {
	quote, err := h.service.PublicQuote(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.respondError(w, r, err, true)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

type approveRequest struct {
	ShippingCost  *decimal.Decimal `json:"shippingCost"`
	ShippingNotes *string          `json:"shippingNotes" validate:"omitempty,max=500"`
	PreparedBy    *string          `json:"preparedBy" validate:"omitempty,max=100"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	if req.ShippingCost != nil && req.ShippingCost.IsNegative() {
		h.respondError(w, r, fmt.Errorf("%w: shipping cost cannot be negative", ErrValidation), true)
		return
	}
	res, err := h.service.Send(r.Context(), TokenAuthorization{Token: chi.URLParam(r, "token")}, SendRequest{
		ShippingCost:  req.ShippingCost,
		ShippingNotes: req.ShippingNotes,
		PreparedBy:    req.PreparedBy,
	})
	if err != nil {
		h.respondError(w, r, err, true)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:         Status(strings.TrimSpace(q.Get("status"))),
		Search:         q.Get("q"),
		IncludeDeleted: q.Get("deleted") == "true",
		Limit:          atoiDefault(q.Get("limit"), 50),
		Offset:         atoiDefault(q.Get("offset"), 0),
	}
	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err, false)
		return
	}
	if items == nil {
		items = []Summary{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"quotes":     items,
		"total":      total,
		"limit":      filter.Limit,
		"offset":     filter.Offset,
		"pagination": shared.NewPagination(filter.Limit, filter.Offset, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quoteID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err, false)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

type updateRequest struct {
	Status        *string          `json:"status" validate:"omitempty,oneof=pending reviewed quoted forwarded accepted rejected"`
	ShippingCost  *decimal.Decimal `json:"shippingCost"`
	ShippingNotes *string          `json:"shippingNotes" validate:"omitempty,max=500"`
	InternalNotes *string          `json:"internalNotes" validate:"omitempty,max=5000"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quoteID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if !h.decode(w, r, &req) {
		return
	}
	upd := QuoteUpdate{ShippingCost: req.ShippingCost, ShippingNotes: req.ShippingNotes, InternalNotes: req.InternalNotes}
	if req.Status != nil {
		st := Status(*req.Status)
		upd.Status = &st
	}
	detail, err := h.service.Update(r.Context(), shared.AdminFromContext(r.Context()), id, upd)
	if err != nil {
		h.respondError(w, r, err, false)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quoteID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), shared.AdminFromContext(r.Context()), id); err != nil {
		h.respondError(w, r, err, false)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quoteID(w, r)
	if !ok {
		return
	}
	if err := h.service.Restore(r.Context(), shared.AdminFromContext(r.Context()), id); err != nil {
		h.respondError(w, r, err, false)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

type replaceItemsRequest struct {
	Items []itemRequest `json:"items" validate:"required,min=1,max=200,dive"`
}

func (h *Handler) replaceItems(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quoteID(w, r)
	if !ok {
		return
	}
	var req replaceItemsRequest
	if !h.decode(w, r, &req) {
		return
	}
	detail, err := h.service.ReplaceItems(r.Context(), shared.AdminFromContext(r.Context()), id, toItems(req.Items))
	if err != nil {
		h.respondError(w, r, err, false)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

type sendRequest struct {
	ShippingCost  *decimal.Decimal `json:"shippingCost"`
	ShippingNotes *string          `json:"shippingNotes" validate:"omitempty,max=500"`
	InternalNotes *string          `json:"internalNotes" validate:"omitempty,max=5000"`
	PreparedBy    *string          `json:"preparedBy" validate:"omitempty,max=100"`
	CustomMessage string           `json:"customMessage" validate:"max=5000"`
}

func (r sendRequest) toSendRequest() SendRequest {
	return SendRequest{
		ShippingCost:  r.ShippingCost,
		ShippingNotes: r.ShippingNotes,
		InternalNotes: r.InternalNotes,
		PreparedBy:    r.PreparedBy,
		CustomMessage: r.CustomMessage,
	}
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quoteID(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	auth := AdminAuthorization{UserID: shared.AdminFromContext(r.Context()), QuoteID: id}
	res, err := h.service.Send(r.Context(), auth, req.toSendRequest())
	if err != nil {
		h.respondError(w, r, err, false)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) regenerateToken(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quoteID(w, r)
	if !ok {
		return
	}
	token, expires, err := h.service.RegenerateToken(r.Context(), shared.AdminFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, err, false)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"approvalUrl": h.service.ApprovalURL(token),
		"expiresAt":   expires,
	})
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quoteID(w, r)
	if !ok {
		return
	}
	pdf, number, err := h.service.Preview(r.Context(), id, previewRequest(r))
	if err != nil {
		h.respondError(w, r, err, false)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s-draft.pdf"`, number))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(pdf)
}

func (h *Handler) emailPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quoteID(w, r)
	if !ok {
		return
	}
	preview, err := h.service.EmailPreview(r.Context(), id, previewRequest(r))
	if err != nil {
		h.respondError(w, r, err, false)
		return
	}
	httpx.JSON(w, http.StatusOK, preview)
}

func (h *Handler) emailLog(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quoteID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err, false)
		return
	}
	logs := []notify.EmailLog{}
	if h.emails != nil {
		logs, err = h.emails.ListForQuote(r.Context(), detail.QuoteNumber, atoiDefault(r.URL.Query().Get("limit"), 20))
		if err != nil {
			h.respondError(w, r, err, false)
			return
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"emails": logs})
}

func (h *Handler) historyLog(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quoteID(w, r)
	if !ok {
		return
	}
	if _, err := h.service.Get(r.Context(), id); err != nil {
		h.respondError(w, r, err, false)
		return
	}
	entries := []shared.AuditLog{}
	if h.history != nil {
		found, err := h.history.ListForEntity(r.Context(), "quote", strconv.FormatInt(id, 10), atoiDefault(r.URL.Query().Get("limit"), 50))
		if err != nil {
			h.respondError(w, r, err, false)
			return
		}
		if found != nil {
			entries = found
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": entries})
}

// previewRequest reads send overrides from the query string.
func previewRequest(r *http.Request) SendRequest {
	q := r.URL.Query()
	var req SendRequest
	if v := q.Get("shippingCost"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			req.ShippingCost = &d
		}
	}
	if q.Has("shippingNotes") {
		v := q.Get("shippingNotes")
		req.ShippingNotes = &v
	}
	if q.Has("preparedBy") {
		v := q.Get("preparedBy")
		req.PreparedBy = &v
	}
	req.CustomMessage = q.Get("customMessage")
	return req
}

func (h *Handler) quoteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid quote id", "")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return false
	}
	return h.validate(w, target)
}

// decodeOptional accepts an empty body as the zero request.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, target any) bool {
	if r.ContentLength == 0 {
		return h.validate(w, target)
	}
	return h.decode(w, r, target)
}

func (h *Handler) validate(w http.ResponseWriter, target any) bool {
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make(map[string]string, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields[fe.Namespace()] = fe.Tag()
			}
			httpx.JSON(w, http.StatusBadRequest, map[string]any{
				"title":  "Validation Failed",
				"status": http.StatusBadRequest,
				"errors": fields,
			})
			return false
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

// customerSafeDetail replaces 5xx details on customer-facing routes.
const customerSafeDetail = "Failed to send quote. Please try again."

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error, public bool) {
	status, title, detail := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("quote request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		if public && !errors.Is(err, ErrEmailServiceUnavailable) {
			detail = customerSafeDetail
		}
	}
	httpx.Problem(w, status, title, detail)
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized", "admin session required"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "Not Found", "Quote not found"
	case errors.Is(err, ErrInvalidToken):
		return http.StatusNotFound, "Invalid token", "Invalid token"
	case errors.Is(err, ErrTokenExpired):
		return http.StatusForbidden, "Token expired", "Token expired"
	case errors.Is(err, ErrAlreadySent):
		return http.StatusBadRequest, "Already sent", "Quote already sent to customer"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidStatus):
		return http.StatusBadRequest, "Validation Failed", err.Error()
	case errors.Is(err, ErrConcurrentModification):
		return http.StatusConflict, "Conflict", "Quote is being sent or edited by another request"
	case errors.Is(err, ErrEmailServiceUnavailable):
		return http.StatusInternalServerError, "Email unavailable", "Email service not configured"
	case errors.Is(err, ErrRenderFailure):
		return http.StatusInternalServerError, "Render failed", "Failed to generate quote PDF"
	case errors.Is(err, ErrStoreFailure):
		return http.StatusInternalServerError, "Storage failed", "Failed to store quote PDF"
	case errors.Is(err, ErrSendFailure):
		return http.StatusInternalServerError, "Send failed", "Failed to send quote email"
	default:
		return http.StatusInternalServerError, "Internal Error", ""
	}
}

func clientIP(r *http.Request) *string {
	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" {
		return nil
	}
	return &addr
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
