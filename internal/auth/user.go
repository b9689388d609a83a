// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Email validation constraints.
const MaxEmailLength = 254

// emailRegex is a pragmatic address check: one @, non-empty local part,
// and a domain with at least one dot. Full RFC 5322 validation is not the
// goal; the address is an opaque login identifier here.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// User represents a registered account.
type User struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser creates a validated User instance.
func NewUser(email, passwordHash string) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ValidateEmail validates an email address used as a login identifier.
// Addresses are compared exactly as stored; no case folding is applied.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	if !emailRegex.MatchString(email) {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email address is malformed")
	}
	return nil
}

// UserRepository manages user persistence.
//
// The query surface is deliberately a closed set of typed operations rather
// than a keyed attribute lookup; there is no way to ask for an unknown
// criterion or mutate an undeclared field.
type UserRepository interface {
	// Create stores a new user. Returns ErrDuplicateEmail if the email is
	// already registered.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID. Returns ErrNotFound if none matches.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by exact email match.
	// Returns ErrNotFound if none matches.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdatePassword replaces the password hash for a user.
	// Returns ErrNotFound if the user does not exist.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error
}
