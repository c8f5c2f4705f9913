// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package httpapi

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/account"
)

// Accounts is the account lifecycle as seen by the HTTP layer.
type Accounts interface {
	Register(ctx context.Context, name, email, password string) (*account.Registration, error)
	ValidateAccount(ctx context.Context, token string) error
	Login(ctx context.Context, email, password string) (*account.Session, error)
	LoginWithToken(ctx context.Context, header string) (*account.SafeUser, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, tokenOrHeader, newPassword string) error
	GetUser(ctx context.Context, id string) (*account.SafeUser, error)
}

// Metrics records request and operation outcomes.
type Metrics interface {
	ObserveRequest(route string, code int, elapsed time.Duration)
	RecordOperation(operation, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRequest(string, int, time.Duration) {}
func (nopMetrics) RecordOperation(string, string)            {}

// DefaultReadHeaderTimeout bounds reading request headers.
const DefaultReadHeaderTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	// ExposeResetToken includes the reset token in the generate-token response.
	ExposeResetToken bool
	Logger           *slog.Logger
	Metrics          Metrics
}

// Server serves the account API.
type Server struct {
	accounts Accounts
	opts     Options
	logger   *slog.Logger
	metrics  Metrics
	page     *template.Template
	handler  http.Handler

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a Server for accounts.
func NewServer(accounts Accounts, opts Options) (*Server, error) {
	if accounts == nil {
		return nil, oops.Code("HTTPAPI_INVALID").Errorf("accounts service is required")
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}

	page, err := parseUpdatePasswordPage()
	if err != nil {
		return nil, err
	}

	s := &Server{
		accounts: accounts,
		opts:     opts,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		page:     page,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the API handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /user", s.handleRegister)
	mux.HandleFunc("GET /user/{id}", s.handleGetUser)
	mux.HandleFunc("GET /user/validation/{token}", s.handleValidateAccount)
	mux.HandleFunc("GET /user/login", s.handleLogin)
	mux.HandleFunc("GET /user/login/token", s.handleLoginWithToken)
	mux.HandleFunc("GET /user/password/generate-token", s.handleRequestPasswordReset)
	mux.HandleFunc("PUT /user/password/update", s.handleResetPassword)
	mux.HandleFunc("GET /user/pages/update-password/{token}", s.handleUpdatePasswordPage)
	return s.instrument(mux)
}

// Start begins serving on Options.Addr.
// The returned channel receives a serve error, if any, and is closed when the
// server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("HTTPAPI_RUNNING").Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("HTTPAPI_LISTEN_FAILED").With("addr", s.opts.Addr).Wrap(err)
	}

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.mu.Lock()
	s.listener = listener
	s.httpServer = httpSrv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.mu.Lock()
	httpSrv := s.httpServer
	s.mu.Unlock()
	if httpSrv != nil {
		if err := httpSrv.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Running reports whether the listener is bound.
func (s *Server) Running() bool {
	return s.running.Load()
}
