package quotes

import "errors"

var (
	ErrUnauthorized            = errors.New("quotes: unauthorized")
	ErrNotFound                = errors.New("quotes: quote not found")
	ErrEmailServiceUnavailable = errors.New("quotes: email service not configured")
	ErrRenderFailure           = errors.New("quotes: failed to render quote document")
	ErrStoreFailure            = errors.New("quotes: failed to store quote document")
	ErrSendFailure             = errors.New("quotes: failed to send quote email")
	ErrInvalidToken            = errors.New("quotes: invalid token")
	ErrTokenExpired            = errors.New("quotes: token expired")
	ErrAlreadySent             = errors.New("quotes: quote already sent to customer")
	ErrConcurrentModification  = errors.New("quotes: quote is being modified concurrently")
	ErrInvalidStatus           = errors.New("quotes: invalid status transition")
	ErrValidation              = errors.New("quotes: validation failed")
)
