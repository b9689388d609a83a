// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return mock
}

func testUser() *auth.User {
	now := time.Now()
	return &auth.User{
		ID:           ulid.Make(),
		Email:        "user@example.com",
		PasswordHash: "$argon2id$hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts user", func(t *testing.T) {
		mock := newMockPool(t)
		user := testUser()
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(user.ID.String(), user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := NewUserRepository(mock)
		require.NoError(t, repo.Create(ctx, user))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation maps to ErrDuplicateEmail", func(t *testing.T) {
		mock := newMockPool(t)
		user := testUser()
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(user.ID.String(), user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		repo := NewUserRepository(mock)
		err := repo.Create(ctx, user)
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
		errutil.AssertErrorCode(t, err, "USER_DUPLICATE_EMAIL")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other database error", func(t *testing.T) {
		mock := newMockPool(t)
		user := testUser()
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(user.ID.String(), user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt).
			WillReturnError(errors.New("connection refused"))

		repo := NewUserRepository(mock)
		err := repo.Create(ctx, user)
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrDuplicateEmail)
		errutil.AssertErrorCode(t, err, "USER_CREATE_FAILED")
	})
}

func TestUserRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("retrieves user", func(t *testing.T) {
		mock := newMockPool(t)
		user := testUser()
		rows := pgxmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}).
			AddRow(user.ID.String(), user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
		mock.ExpectQuery(`SELECT id, email, password_hash, created_at, updated_at\s+FROM users`).
			WithArgs(user.ID.String()).
			WillReturnRows(rows)

		repo := NewUserRepository(mock)
		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, user.Email, got.Email)
		assert.Equal(t, user.PasswordHash, got.PasswordHash)
	})

	t.Run("missing user returns ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		id := ulid.Make()
		mock.ExpectQuery(`SELECT id, email, password_hash, created_at, updated_at\s+FROM users`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}))

		repo := NewUserRepository(mock)
		_, err := repo.GetByID(ctx, id)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
	})

	t.Run("corrupt id in row", func(t *testing.T) {
		mock := newMockPool(t)
		id := ulid.Make()
		rows := pgxmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}).
			AddRow("not-a-ulid", "user@example.com", "hash", time.Now(), time.Now())
		mock.ExpectQuery(`SELECT id, email, password_hash, created_at, updated_at\s+FROM users`).
			WithArgs(id.String()).
			WillReturnRows(rows)

		repo := NewUserRepository(mock)
		_, err := repo.GetByID(ctx, id)
		require.Error(t, err)
	})
}

func TestUserRepository_GetByEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("retrieves user by exact email", func(t *testing.T) {
		mock := newMockPool(t)
		user := testUser()
		rows := pgxmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}).
			AddRow(user.ID.String(), user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
		mock.ExpectQuery(`SELECT id, email, password_hash, created_at, updated_at\s+FROM users`).
			WithArgs(user.Email).
			WillReturnRows(rows)

		repo := NewUserRepository(mock)
		got, err := repo.GetByEmail(ctx, user.Email)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("unknown email returns ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT id, email, password_hash, created_at, updated_at\s+FROM users`).
			WithArgs("ghost@example.com").
			WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}))

		repo := NewUserRepository(mock)
		_, err := repo.GetByEmail(ctx, "ghost@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("updates password hash", func(t *testing.T) {
		mock := newMockPool(t)
		id := ulid.Make()
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs(id.String(), "$argon2id$new", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := NewUserRepository(mock)
		require.NoError(t, repo.UpdatePassword(ctx, id, "$argon2id$new"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing user returns ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		id := ulid.Make()
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs(id.String(), "$argon2id$new", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewUserRepository(mock)
		err := repo.UpdatePassword(ctx, id, "$argon2id$new")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMockPool(t)
		id := ulid.Make()
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs(id.String(), "$argon2id$new", pgxmock.AnyArg()).
			WillReturnError(errors.New("connection refused"))

		repo := NewUserRepository(mock)
		err := repo.UpdatePassword(ctx, id, "$argon2id$new")
		errutil.AssertErrorCode(t, err, "USER_UPDATE_PASSWORD_FAILED")
	})
}
