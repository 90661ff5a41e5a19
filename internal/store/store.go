// Package store defines the persistence interfaces the relay depends on.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// User is an operator account for the administrative HTTP surface.
// Relay peers authenticate with the shared secret, not with users.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// UserStore persists operator accounts.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
}

// Store is the full persistence surface owned by the application.
type Store interface {
	UserStore
	Close() error
}
