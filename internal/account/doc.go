// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package account is the Task Crusher account and session core.
//
// # Components
//
// Components are created with New* constructors that validate dependencies:
//   - PasswordHasher - salted, slow one-way hashing (BcryptHasher, Argon2idHasher)
//   - CredentialStore - registration, credential lookup, profile updates
//   - SessionTokenManager - signed session tokens checked against the user's active set
//   - CascadeDeletionCoordinator - deletes a user together with every owned task
//   - AvatarPipeline - validates uploads and stores them as fixed-size PNG squares
//   - Service - the facade a request handler calls; returns PublicUser views only
//
// # Persistence
//
// The package consumes UserRepository, TaskDeleter, Transactor and Locker.
// Every mutation of an existing user runs through CredentialStore.Modify,
// which holds the user's lock inside a transaction for the whole
// read-modify-write sequence.
//
// # Errors
//
// Every returned error wraps one sentinel from errors.go. Use errors.Is or
// KindOf to classify; the oops code and context carry the detail.
package account
