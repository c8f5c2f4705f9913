// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package account implements the account lifecycle: registration, email
// validation, credential and token login, and password reset.
//
// # Components
//
// Leaf components are usable on their own:
//   - PasswordPolicy and EmailFormat - pure input validators returning a Result
//   - Hasher - salted one-way password digests (bcrypt, argon2id verification)
//   - TokenCodec - signed HS256 tokens and bearer header extraction
//
// Collaborators are expressed as interfaces so storage and delivery stay
// outside this package:
//   - UserStore - persistence with a unique email and compare-and-clear
//     consumption of password reset tokens
//   - Notifier - non-blocking hand-off of outbound notifications
//
// # Service
//
// Service composes the above. Every failure it returns is an *Error whose
// Kind is one of the Kind constants; underlying store or codec errors are kept
// as the unexported cause for logging and never surface in Violations.
package account
