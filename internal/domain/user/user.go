// Package user manages customer accounts and their credentials.
package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when no user matches a lookup.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when registering an email that is in use.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned when an email/password pair does
	// not match a user.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidation is the base of all input validation errors.
	ErrValidation = errors.New("invalid user")
)

// User is a registered customer.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Repository persists users. Emails are unique ignoring case.
type Repository interface {
	// Create stores a new user, returning ErrEmailTaken on a duplicate email.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	// GetByEmail looks a user up by email, ignoring case.
	GetByEmail(ctx context.Context, email string) (*User, error)
	// Update overwrites the mutable fields of u.
	Update(ctx context.Context, u *User) error
}

// ValidationError describes an invalid field of a user request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
