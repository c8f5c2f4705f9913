// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/accountd/accountd/internal/account"
	accountpg "github.com/accountd/accountd/internal/account/postgres"
	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/httpapi"
	"github.com/accountd/accountd/internal/logging"
	"github.com/accountd/accountd/internal/notify"
	"github.com/accountd/accountd/internal/observability"
	"github.com/accountd/accountd/internal/store"
)

// Timeouts used while serving.
const (
	shutdownTimeout  = 10 * time.Second
	readinessTimeout = 2 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account API server",
		Long: `Start the account API server together with the notification
dispatcher and the metrics/health endpoints.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	defaults := config.Defaults()
	cmd.Flags().String("http-addr", defaults["http.addr"].(string), "API listen address")
	cmd.Flags().String("metrics-addr", defaults["metrics.addr"].(string), "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaults["log.format"].(string), "log format (json or text)")
	cmd.Flags().String("log-level", defaults["log.level"].(string), "log level (debug, info, warn or error)")
	cmd.Flags().String("database-driver", defaults["database.driver"].(string), "user store (postgres or memory)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	cmd.Flags().String("mail-driver", defaults["mail.driver"].(string), "notification delivery (smtp or log)")

	return cmd
}

// runServeWithDeps runs the server until a signal arrives, ctx is cancelled
// or a listener fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = withServeDefaults(deps)

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.Setup(serviceName, version, cfg.Log.Format, level, deps.LogOutput)
	slog.SetDefault(logger)

	logger.Info("starting accountd",
		"http_addr", cfg.HTTP.Addr,
		"database_driver", cfg.Database.Driver,
		"mail_driver", cfg.Mail.Driver,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	users, storeReady, closeStore, err := openUserStore(ctx, cfg.Database, deps, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var api APIServer
	var obsServer ObservabilityServer
	var apiMetrics httpapi.Metrics
	dispatcherOpts := []notify.Option{notify.WithLogger(logger)}
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, func() bool {
			return api != nil && api.Running() && storeReady()
		})
		metrics := obsServer.Metrics()
		apiMetrics = metrics
		dispatcherOpts = append(dispatcherOpts, notify.WithRecorder(metrics))
	}

	hasher, err := account.NewHasher(cfg.Account.BcryptCost)
	if err != nil {
		return oops.With("operation", "create password hasher").Wrap(err)
	}
	codec, err := account.NewTokenCodec([]byte(cfg.Token.Secret), account.WithIssuer(cfg.Token.Issuer))
	if err != nil {
		return oops.With("operation", "create token codec").Wrap(err)
	}

	sender, err := deps.SenderFactory(cfg.Mail, logger)
	if err != nil {
		return oops.With("operation", "create notification sender").Wrap(err)
	}
	renderer, err := notify.NewRenderer(serviceName)
	if err != nil {
		return oops.With("operation", "parse notification templates").Wrap(err)
	}
	dispatcher, err := notify.NewDispatcher(sender, renderer, notify.Config{
		Workers:   cfg.Notify.Workers,
		QueueSize: cfg.Notify.QueueSize,
		Timeout:   cfg.Mail.Timeout,
	}, dispatcherOpts...)
	if err != nil {
		return oops.With("operation", "start notification dispatcher").Wrap(err)
	}
	defer stopWithTimeout(logger, "notification dispatcher", dispatcher.Stop)

	svc, err := account.NewServiceWithLogger(users, hasher, codec, dispatcher, account.Config{
		BaseURL:       cfg.Account.BaseURL,
		ValidationTTL: cfg.Token.ValidationTTL,
		ResetTTL:      cfg.Token.ResetTTL,
		SessionTTL:    cfg.Token.SessionTTL,
	}, logger)
	if err != nil {
		return oops.With("operation", "create account service").Wrap(err)
	}

	api, err = deps.APIServerFactory(svc, httpapi.Options{
		Addr:              cfg.HTTP.Addr,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ExposeResetToken:  cfg.HTTP.ExposeResetToken,
		Logger:            logger,
		Metrics:           apiMetrics,
	})
	if err != nil {
		return oops.With("operation", "create api server").Wrap(err)
	}
	apiErrChan, err := api.Start()
	if err != nil {
		return oops.With("operation", "start api server").Wrap(err)
	}
	// Deferred after the dispatcher so the API stops accepting requests first.
	defer stopWithTimeout(logger, "api server", api.Stop)
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("accountd started")
	logger.Info("accountd ready", "api_addr", api.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	stopWithTimeout(logger, "api server", api.Stop)
	stopWithTimeout(logger, "notification dispatcher", dispatcher.Stop)
	if obsServer != nil {
		stopWithTimeout(logger, "observability server", obsServer.Stop)
	}
	logger.Info("shutdown complete")
	return nil
}

func withServeDefaults(deps *ServeDeps) *ServeDeps {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = func(ctx context.Context, url string, retries uint64) (Pool, error) {
			return store.Connect(ctx, url, retries)
		}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if deps.SenderFactory == nil {
		deps.SenderFactory = newSender
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(accounts httpapi.Accounts, opts httpapi.Options) (APIServer, error) {
			return httpapi.NewServer(accounts, opts)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.LogOutput == nil {
		deps.LogOutput = os.Stderr
	}
	return deps
}

// openUserStore returns the configured store, a readiness probe for it and a
// release func that is safe to defer.
func openUserStore(
	ctx context.Context,
	cfg config.DatabaseConfig,
	deps *ServeDeps,
	logger *slog.Logger,
) (account.UserStore, func() bool, func(), error) {
	if cfg.Driver == config.DriverMemory {
		logger.Warn("using in-memory user store, accounts are lost on exit")
		return account.NewMemoryUserStore(), func() bool { return true }, func() {}, nil
	}

	if cfg.AutoMigrate {
		if err := runAutoMigration(deps.MigratorFactory, cfg.URL, logger); err != nil {
			return nil, nil, nil, err
		}
	}

	pool, err := deps.PoolFactory(ctx, cfg.URL, cfg.ConnectRetries)
	if err != nil {
		return nil, nil, nil, oops.With("operation", "connect to database").Wrap(err)
	}
	logger.Info("connected to database")

	closePool := func() {
		pool.Close()
		logger.Info("database pool closed")
	}
	return accountpg.NewUserStore(pool), poolReadiness(pool), closePool, nil
}

// runAutoMigration applies pending migrations. Close failures are logged
// and do not fail startup.
func runAutoMigration(factory func(url string) (AutoMigrator, error), url string, logger *slog.Logger) error {
	migrator, err := factory(url)
	if err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("database schema up to date")
	return nil
}

func poolReadiness(pool Pool) func() bool {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
		defer cancel()
		return pool.Ping(ctx) == nil
	}
}

// newSender creates the sender for the configured mail driver.
func newSender(cfg config.MailConfig, logger *slog.Logger) (notify.Sender, error) {
	if cfg.Driver != config.MailSMTP {
		return notify.NewLogSender(logger), nil
	}
	sender, err := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		SSL:      cfg.SSL,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		FromName: cfg.FromName,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return sender, nil
}

// stopWithTimeout stops a component, logging failures. Stop funcs are
// idempotent, so deferred and explicit calls may both run.
func stopWithTimeout(logger *slog.Logger, name string, stop func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("error stopping component", "component", name, "error", err)
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
