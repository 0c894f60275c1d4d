package auth

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no admin matches a lookup.
var ErrNotFound = errors.New("admin user not found")

// ErrEmailTaken is returned when an admin with the same email exists.
var ErrEmailTaken = errors.New("admin email already registered")

// AdminUser is a back-office account allowed to manage quotes.
type AdminUser struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the public view of an admin returned by the API.
type Profile struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Profile strips credentials from the account.
func (u AdminUser) Profile() Profile {
	return Profile{ID: u.ID, Email: u.Email, Name: u.Name}
}
