// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package httpapi binds the account lifecycle to HTTP.
//
// Every JSON response uses the envelope
//
//	{"feedback": {"success": bool, "errors": [...]}, "user": {...}, "token": "..."}
//
// where errors holds violation codes for validation failures and the failure
// kind otherwise.
package httpapi
