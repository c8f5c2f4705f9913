// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package httpapi

import (
	"net/http"

	"github.com/accountd/accountd/internal/account"
)

func (s *Server) record(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(account.KindOf(err))
	}
	s.metrics.RecordOperation(op, outcome)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "register"

	body, err := readFields(w, r, op, fieldPassword, fieldEmail, fieldName)
	if err != nil {
		s.record(op, err)
		s.writeFailure(w, r, err)
		return
	}

	reg, err := s.accounts.Register(r.Context(), body["name"], body["email"], body["password"])
	s.record(op, err)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, Envelope{Token: reg.Token})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	const op = "get_user"

	user, err := s.accounts.GetUser(r.Context(), r.PathValue("id"))
	s.record(op, err)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, Envelope{User: user})
}

func (s *Server) handleValidateAccount(w http.ResponseWriter, r *http.Request) {
	const op = "validate_account"

	err := s.accounts.ValidateAccount(r.Context(), r.PathValue("token"))
	s.record(op, err)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, Envelope{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	const op = "login"

	body, err := readFields(w, r, op, fieldPassword, fieldEmail)
	if err != nil {
		s.record(op, err)
		s.writeFailure(w, r, err)
		return
	}

	session, err := s.accounts.Login(r.Context(), body["email"], body["password"])
	s.record(op, err)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, Envelope{User: &session.User, Token: session.Token})
}

func (s *Server) handleLoginWithToken(w http.ResponseWriter, r *http.Request) {
	const op = "login_with_token"

	user, err := s.accounts.LoginWithToken(r.Context(), r.Header.Get("Authorization"))
	s.record(op, err)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, Envelope{User: user})
}

// handleRequestPasswordReset reads the email from the body, falling back to
// the email query parameter.
func (s *Server) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	const op = "request_password_reset"

	body, err := readFields(w, r, op, fieldEmail)
	if err != nil {
		s.record(op, err)
		s.writeFailure(w, r, err)
		return
	}
	email := body["email"]
	if email == "" {
		email = r.URL.Query().Get("email")
	}

	token, err := s.accounts.RequestPasswordReset(r.Context(), email)
	s.record(op, err)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	resp := Envelope{}
	if s.opts.ExposeResetToken {
		resp.Token = token
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	const op = "reset_password"

	body, err := readFields(w, r, op, fieldPassword)
	if err != nil {
		s.record(op, err)
		s.writeFailure(w, r, err)
		return
	}

	err = s.accounts.ResetPassword(r.Context(), r.Header.Get("Authorization"), body["password"])
	s.record(op, err)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, Envelope{})
}
