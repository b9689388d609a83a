// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth implements the Gatehouse authentication core.
//
// # Domain Types
//
// Domain types (User, Session, PasswordReset) should be created using
// their respective constructors:
//   - NewUser - creates a User with a validated email and password hash
//   - NewSession - creates a Session with a validated user and expiry
//   - NewPasswordReset - creates a PasswordReset with a validated user and expiry
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Service
//
// Service coordinates the full account lifecycle: registration, credential
// verification, session issuance/resolution/destruction, and the password
// reset flow. It is created with NewService, which validates dependencies.
//
// Session and reset tokens are opaque random values. Only SHA-256 hashes of
// tokens are ever persisted; the plaintext is returned once to the caller.
package auth
