// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Service provides authentication operations. It holds no mutable state
// and is safe for concurrent use.
type Service struct {
	users      UserRepository
	sessions   SessionRepository
	resets     PasswordResetRepository
	hasher     PasswordHasher
	logger     *slog.Logger
	sessionTTL time.Duration
	resetTTL   time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for non-fatal internal failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithSessionTTL overrides the default session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.sessionTTL = ttl }
}

// WithResetTTL overrides the default reset token lifetime.
func WithResetTTL(ttl time.Duration) Option {
	return func(s *Service) { s.resetTTL = ttl }
}

// NewService creates a new Service.
func NewService(users UserRepository, sessions SessionRepository, resets PasswordResetRepository, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("sessions repository is required")
	}
	if resets == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("resets repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("password hasher is required")
	}

	s := &Service{
		users:      users,
		sessions:   sessions,
		resets:     resets,
		hasher:     hasher,
		logger:     slog.Default(),
		sessionTTL: DefaultSessionTokenExpiry,
		resetTTL:   DefaultResetTokenExpiry,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("logger cannot be nil")
	}
	return s, nil
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Register creates a new user with the given email and password.
// Returns ErrDuplicateEmail (wrapped) if the email is already registered.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(email, passwordHash)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, oops.Code("AUTH_DUPLICATE_EMAIL").
				With("email", email).
				Wrap(err)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "persist user").
			Wrap(err)
	}

	return user, nil
}

// Authenticate verifies a user's credentials and returns the boolean result.
// An unknown email and a wrong password both yield (false, nil): the miss is
// never surfaced as an error, so callers cannot tell the cases apart. A
// dummy hash is verified when the email is unknown to keep both paths at
// the same argon2 cost.
func (s *Service) Authenticate(ctx context.Context, email, password string) (bool, error) {
	user, lookupErr := s.users.GetByEmail(ctx, email)

	targetHash := dummyPasswordHash
	userExists := false

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return false, oops.Code("AUTH_LOOKUP_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	// Always verify, even against the dummy hash.
	valid := s.hasher.Verify(password, targetHash)

	return userExists && valid, nil
}

// CreateSession issues a fresh session token for the user with the given
// email, replacing any prior session. Returns ("", nil, nil) if the email
// is unknown; the miss is not an error at this boundary.
func (s *Service) CreateSession(ctx context.Context, email string) (string, *Session, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, nil
		}
		return "", nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return "", nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	session, err := NewSession(user.ID, tokenHash, time.Now().Add(s.sessionTTL))
	if err != nil {
		return "", nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "create session").
			Wrap(err)
	}

	// Replace is atomic: the user's previous session token (if any) stops
	// resolving the moment the new one is persisted.
	if err := s.sessions.Replace(ctx, session); err != nil {
		return "", nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	return token, session, nil
}

// ResolveSession resolves a session token to its user. Returns (nil, nil)
// for an empty, unknown, or expired token. This is the sole authorization
// check for session-protected operations.
func (s *Service) ResolveSession(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, nil
	}

	tokenHash := HashSessionToken(token)

	session, err := s.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if session.IsExpired() {
		return nil, nil
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Session references a vanished user; treat as unauthenticated.
			return nil, nil
		}
		return nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}

	// Update last seen timestamp (non-blocking, ignore errors)
	if err := s.sessions.UpdateLastSeen(ctx, session.ID, time.Now()); err != nil {
		s.logger.WarnContext(ctx, "failed to update session last seen",
			"session_id", session.ID.String(), "error", err)
	}

	return user, nil
}

// DestroySession clears the session for a user. Idempotent: destroying an
// absent session is not an error.
func (s *Service) DestroySession(ctx context.Context, userID ulid.ULID) error {
	if err := s.sessions.DeleteByUser(ctx, userID); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "delete session").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// IssueResetToken issues a password reset token for the user with the given
// email, replacing any outstanding one. Unlike session lookups, an unknown
// email is a hard error here: the reset path must tell the caller why it
// failed.
func (s *Service) IssueResetToken(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code("AUTH_USER_NOT_FOUND").
				With("email", email).
				Wrap(err)
		}
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	reset, err := NewPasswordReset(user.ID, hash, time.Now().Add(s.resetTTL))
	if err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "create password reset").
			Wrap(err)
	}

	if err := s.resets.Replace(ctx, reset); err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "persist password reset").
			Wrap(err)
	}

	return token, nil
}

// PurgeExpired removes expired sessions and reset tokens. It exists for
// periodic maintenance; expiry is already enforced at read time, so rows
// left behind by a missed sweep are inert.
func (s *Service) PurgeExpired(ctx context.Context) (sessions, resets int64, err error) {
	sessions, err = s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, 0, oops.Code("PURGE_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}

	resets, err = s.resets.DeleteExpired(ctx)
	if err != nil {
		return sessions, 0, oops.Code("PURGE_FAILED").
			With("operation", "delete expired resets").
			Wrap(err)
	}

	return sessions, resets, nil
}

// UpdatePassword redeems a reset token: hashes the new password, replaces
// the user's password hash, and consumes the token. An unknown, expired, or
// already-consumed token fails with RESET_TOKEN_INVALID.
func (s *Service) UpdatePassword(ctx context.Context, resetToken, newPassword string) error {
	if resetToken == "" {
		return oops.Code("RESET_TOKEN_INVALID").Errorf("reset token cannot be empty")
	}
	if newPassword == "" {
		return oops.Code("RESET_PASSWORD_EMPTY").Errorf("new password cannot be empty")
	}

	hash := hashResetToken(resetToken)

	reset, err := s.resets.GetByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("RESET_TOKEN_INVALID").Errorf("reset token not found")
		}
		return oops.Code("RESET_REDEEM_FAILED").
			With("operation", "get reset by token hash").
			Wrap(err)
	}

	if reset.IsExpired() {
		return oops.Code("RESET_TOKEN_INVALID").Errorf("reset token has expired")
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_REDEEM_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	if err := s.users.UpdatePassword(ctx, reset.UserID, passwordHash); err != nil {
		return oops.Code("RESET_REDEEM_FAILED").
			With("operation", "update password").
			Wrap(err)
	}

	// Consume the token. Failure here is logged, not returned: the main
	// operation (the password update) already succeeded.
	if err := s.resets.DeleteByUser(ctx, reset.UserID); err != nil {
		s.logger.WarnContext(ctx, "failed to delete consumed reset token",
			"user_id", reset.UserID.String(), "error", err)
	}

	return nil
}
