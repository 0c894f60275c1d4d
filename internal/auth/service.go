package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/redkey-web/DewaterQuote-sub003/internal/shared"
)

// MinPasswordLength is enforced when creating or resetting admins.
const MinPasswordLength = 12

// ErrWeakPassword is returned for passwords shorter than MinPasswordLength.
var ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

// dummyHash keeps unknown-email logins as slow as wrong-password ones.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dewater-unknown-admin"), bcrypt.DefaultCost)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
	cost int
	now  func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost, now: time.Now}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*AdminUser, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrAccountDisabled
	}
	if err := s.repo.TouchLogin(ctx, user.ID, s.now().UTC()); err != nil {
		return nil, err
	}
	return user, nil
}

// Lookup loads an admin for the session endpoint.
func (s *Service) Lookup(ctx context.Context, id int64) (*AdminUser, error) {
	return s.repo.FindByID(ctx, id)
}

// CreateAdmin registers an admin account.
func (s *Service) CreateAdmin(ctx context.Context, email, name, password string) (*AdminUser, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid admin email %q", email)
	}
	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, email, strings.TrimSpace(name), hash)
}

// ResetPassword replaces the password of the admin with email.
func (s *Service) ResetPassword(ctx context.Context, email, password string) error {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := s.HashPassword(password)
	if err != nil {
		return err
	}
	return s.repo.SetPassword(ctx, user.ID, hash)
}

// HashPassword bcrypt-hashes password after a length check.
func (s *Service) HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
