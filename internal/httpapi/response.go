// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/accountd/accountd/internal/account"
	"github.com/accountd/accountd/pkg/errutil"
)

// Feedback reports the outcome of a request.
type Feedback struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
}

// Envelope is the body of every JSON response.
type Envelope struct {
	Feedback Feedback          `json:"feedback"`
	User     *account.SafeUser `json:"user,omitempty"`
	Token    string            `json:"token,omitempty"`
}

// StatusFor maps a failure kind to an HTTP status code.
func StatusFor(kind account.Kind) int {
	switch kind {
	case account.KindValidationFailure,
		account.KindUserExists,
		account.KindInvalidPassword,
		account.KindInvalidToken,
		account.KindAccountNotValidated,
		account.KindEmailRequired,
		account.KindPasswordRequired:
		return http.StatusBadRequest
	case account.KindUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect, nothing left to report
	json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, body Envelope) {
	body.Feedback = Feedback{Success: true}
	writeJSON(w, status, body)
}

// writeFailure projects err into the envelope. Server-side failures are
// logged with their cause; the cause never reaches the client.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	kind := account.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		errutil.LogError(r.Context(), s.logger, "request failed", err,
			"route", r.Pattern,
			"kind", string(kind),
		)
	} else {
		s.logger.DebugContext(r.Context(), "request rejected",
			"route", r.Pattern,
			"kind", string(kind),
			slog.Any("codes", account.Codes(err)),
		)
	}
	writeJSON(w, status, Envelope{Feedback: Feedback{Success: false, Errors: account.Codes(err)}})
}
