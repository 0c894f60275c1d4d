// Package quotes owns the quote lifecycle: submission, admin edits and sending.
package quotes

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the workflow state of a quote.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReviewed  Status = "reviewed"
	StatusQuoted    Status = "quoted"
	StatusForwarded Status = "forwarded"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReviewed, StatusQuoted, StatusForwarded, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// SendState is the persisted saga marker of a send attempt.
type SendState string

const (
	SendIdle     SendState = "idle"
	SendInFlight SendState = "in_flight"
	SendStalled  SendState = "stalled"
)

// SendStep is the last step a send attempt reached.
type SendStep string

const (
	StepRender   SendStep = "render"
	StepStore    SendStep = "store"
	StepEmail    SendStep = "email"
	StepFinalize SendStep = "finalize"
)

// Address holds the nullable address columns.
type Address struct {
	Street   *string `json:"street,omitempty"`
	Suburb   *string `json:"suburb,omitempty"`
	State    *string `json:"state,omitempty"`
	Postcode *string `json:"postcode,omitempty"`
}

// SendMarker tracks an in-flight send so crashed attempts can be reconciled.
type SendMarker struct {
	State             SendState  `json:"state"`
	Step              SendStep   `json:"step,omitempty"`
	AttemptID         *uuid.UUID `json:"attemptId,omitempty"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	PendingPDFURL     *string    `json:"pendingPdfUrl,omitempty"`
	PendingPDFVersion *int       `json:"pendingPdfVersion,omitempty"`
	LastError         *string    `json:"lastError,omitempty"`

	// Completion is written once the email step starts so a crashed
	// attempt can be finalized without re-pricing.
	Completion *SendCompletion `json:"-"`
}

// Quote is a stored quote with its items.
type Quote struct {
	ID                     int64           `json:"id"`
	QuoteNumber            string          `json:"quoteNumber"`
	CompanyName            *string         `json:"companyName,omitempty"`
	ContactName            string          `json:"contactName"`
	Email                  string          `json:"email"`
	Phone                  *string         `json:"phone,omitempty"`
	Delivery               Address         `json:"deliveryAddress"`
	Billing                Address         `json:"billingAddress"`
	Status                 Status          `json:"status"`
	PricedTotal            decimal.Decimal `json:"pricedTotal"`
	Savings                decimal.Decimal `json:"savings"`
	CertFee                decimal.Decimal `json:"certFee"`
	CertCount              int             `json:"certCount"`
	ShippingCost           decimal.Decimal `json:"shippingCost"`
	ShippingNotes          *string         `json:"shippingNotes,omitempty"`
	HasUnpricedItems       bool            `json:"hasUnpricedItems"`
	Notes                  *string         `json:"notes,omitempty"`
	InternalNotes          *string         `json:"internalNotes,omitempty"`
	PreparedBy             *string         `json:"preparedBy,omitempty"`
	PDFURL                 *string         `json:"pdfUrl,omitempty"`
	PDFGeneratedAt         *time.Time      `json:"pdfGeneratedAt,omitempty"`
	PDFVersion             int             `json:"pdfVersion"`
	ApprovalToken          *string         `json:"-"`
	ApprovalTokenExpiresAt *time.Time      `json:"approvalTokenExpiresAt,omitempty"`
	ClientIP               *string         `json:"-"`
	IsDeleted              bool            `json:"isDeleted"`
	DeletedAt              *time.Time      `json:"deletedAt,omitempty"`
	DeletedBy              *int64          `json:"deletedBy,omitempty"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`
	ReviewedAt             *time.Time      `json:"reviewedAt,omitempty"`
	RespondedAt            *time.Time      `json:"respondedAt,omitempty"`
	ForwardedAt            *time.Time      `json:"forwardedAt,omitempty"`
	Send                   SendMarker      `json:"send"`
	Items                  []Item          `json:"items"`
}

// Item is a quote line.
type Item struct {
	ID               int64            `json:"id"`
	SKU              string           `json:"sku"`
	VariationSKU     *string          `json:"variationSku,omitempty"`
	Name             string           `json:"name"`
	Brand            *string          `json:"brand,omitempty"`
	Size             *string          `json:"size,omitempty"`
	SizeLabel        *string          `json:"sizeLabel,omitempty"`
	Quantity         int              `json:"quantity"`
	UnitPrice        *decimal.Decimal `json:"unitPrice"`
	LineTotal        *decimal.Decimal `json:"lineTotal"`
	QuotedPrice      *decimal.Decimal `json:"quotedPrice,omitempty"`
	QuotedNotes      *string          `json:"quotedNotes,omitempty"`
	MaterialTestCert bool             `json:"materialTestCert"`
	LeadTime         *string          `json:"leadTime,omitempty"`
	DisplayOrder     int              `json:"displayOrder"`
}

// StoredTotals are the pricing columns persisted on the quote row.
type StoredTotals struct {
	PricedTotal      decimal.Decimal
	Savings          decimal.Decimal
	CertFee          decimal.Decimal
	CertCount        int
	HasUnpricedItems bool
}

// NewQuote is the input of Repository.Create.
type NewQuote struct {
	QuoteNumberPrefix      string
	CompanyName            *string
	ContactName            string
	Email                  string
	Phone                  *string
	Delivery               Address
	Billing                Address
	Totals                 StoredTotals
	Notes                  *string
	ApprovalToken          string
	ApprovalTokenExpiresAt time.Time
	ClientIP               *string
	Items                  []Item
	CreatedAt              time.Time
}

// QuoteUpdate carries optional admin edits to a quote row.
type QuoteUpdate struct {
	Status        *Status
	ShippingCost  *decimal.Decimal
	ShippingNotes *string
	InternalNotes *string
	At            time.Time
}

// SendCompletion is written when a send attempt finishes.
type SendCompletion struct {
	ShippingCost  decimal.Decimal `json:"shippingCost"`
	ShippingNotes *string         `json:"shippingNotes,omitempty"`
	InternalNotes *string         `json:"internalNotes,omitempty"`
	PreparedBy    *string         `json:"preparedBy,omitempty"`
	PDFURL        string          `json:"pdfUrl"`
	PDFVersion    int             `json:"pdfVersion"`
	At            time.Time       `json:"at"`
}

// SendAbort describes how a failed attempt leaves the marker.
type SendAbort struct {
	State             SendState
	Cause             string
	PendingPDFURL     *string
	PendingPDFVersion *int
}

// ListFilter selects quotes for admin listings.
type ListFilter struct {
	Status         Status
	Search         string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// Summary is a listing row.
type Summary struct {
	ID               int64           `json:"id"`
	QuoteNumber      string          `json:"quoteNumber"`
	CompanyName      *string         `json:"companyName,omitempty"`
	ContactName      string          `json:"contactName"`
	Email            string          `json:"email"`
	Status           Status          `json:"status"`
	ItemCount        int             `json:"itemCount"`
	PricedTotal      decimal.Decimal `json:"pricedTotal"`
	HasUnpricedItems bool            `json:"hasUnpricedItems"`
	DeliveryPostcode *string         `json:"deliveryPostcode,omitempty"`
	PDFVersion       int             `json:"pdfVersion"`
	SendState        SendState       `json:"sendState"`
	IsDeleted        bool            `json:"isDeleted"`
	CreatedAt        time.Time       `json:"createdAt"`
	ForwardedAt      *time.Time      `json:"forwardedAt,omitempty"`
}
