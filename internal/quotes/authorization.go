package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Send paths, used in logs, metrics and audit entries.
const (
	PathAdmin  = "admin"
	PathToken  = "token"
	PathSystem = "system"
)

// Authorization is the capability that permits a send. The concrete types
// are AdminAuthorization, TokenAuthorization and SystemAuthorization.
type Authorization interface {
	authorize(ctx context.Context, repo Repository, now time.Time) (Quote, sendPolicy, error)
}

type sendPolicy struct {
	path string
	// actorID is the admin user id, zero for token and system sends.
	actorID int64
	// zoneShipping recomputes shipping from the delivery postcode.
	zoneShipping bool
}

// AdminAuthorization grants a send from an admin session.
type AdminAuthorization struct {
	UserID  int64
	QuoteID int64
}

func (a AdminAuthorization) authorize(ctx context.Context, repo Repository, _ time.Time) (Quote, sendPolicy, error) {
	if a.UserID <= 0 {
		return Quote{}, sendPolicy{}, ErrUnauthorized
	}
	q, err := loadQuote(ctx, repo, a.QuoteID)
	if err != nil {
		return Quote{}, sendPolicy{}, err
	}
	return q, sendPolicy{path: PathAdmin, actorID: a.UserID, zoneShipping: true}, nil
}

// TokenAuthorization grants a send to whoever holds the approval token.
type TokenAuthorization struct {
	Token string
}

func (a TokenAuthorization) authorize(ctx context.Context, repo Repository, now time.Time) (Quote, sendPolicy, error) {
	q, err := quoteForToken(ctx, repo, a.Token, now)
	if err != nil {
		return Quote{}, sendPolicy{}, err
	}
	if q.Status == StatusForwarded {
		return Quote{}, sendPolicy{}, ErrAlreadySent
	}
	return q, sendPolicy{path: PathToken}, nil
}

// SystemAuthorization grants a send to background jobs.
type SystemAuthorization struct {
	QuoteID int64
}

func (a SystemAuthorization) authorize(ctx context.Context, repo Repository, _ time.Time) (Quote, sendPolicy, error) {
	q, err := loadQuote(ctx, repo, a.QuoteID)
	if err != nil {
		return Quote{}, sendPolicy{}, err
	}
	return q, sendPolicy{path: PathSystem, zoneShipping: true}, nil
}

func loadQuote(ctx context.Context, repo Repository, id int64) (Quote, error) {
	if id <= 0 {
		return Quote{}, ErrNotFound
	}
	q, err := repo.Get(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	if q.IsDeleted {
		return Quote{}, ErrNotFound
	}
	return q, nil
}

// quoteForToken resolves a token and checks its expiry. A missing expiry
// counts as expired.
func quoteForToken(ctx context.Context, repo Repository, token string, now time.Time) (Quote, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Quote{}, ErrInvalidToken
	}
	q, err := repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Quote{}, ErrInvalidToken
		}
		return Quote{}, fmt.Errorf("lookup token: %w", err)
	}
	if q.IsDeleted {
		return Quote{}, ErrInvalidToken
	}
	if TokenExpired(q.ApprovalTokenExpiresAt, now) {
		return Quote{}, ErrTokenExpired
	}
	return q, nil
}
