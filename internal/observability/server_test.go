// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountd/accountd/pkg/errutil"
)

func startServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", ready)
	_, err := server.Start()
	require.NoError(t, err, "failed to start server")
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, server *Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + server.Addr() + path)
	require.NoError(t, err, "failed to GET %s", path)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := startServer(t, func() bool { return true })
	require.NotEmpty(t, server.Addr())

	status, body := get(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")

	metrics := server.Metrics()
	metrics.ObserveRequest("POST /user/register", http.StatusCreated, 20*time.Millisecond)
	metrics.RecordOperation("register", "ok")
	metrics.RecordNotification("account_validation", "sent")

	_, body = get(t, server, "/metrics")
	assert.Contains(t, body, `accountd_http_requests_total{code="201",route="POST /user/register"} 1`)
	assert.Contains(t, body, "accountd_http_request_duration_seconds")
	assert.Contains(t, body, `accountd_account_operations_total{operation="register",outcome="ok"} 1`)
	assert.Contains(t, body, `accountd_notifications_total{kind="account_validation",status="sent"} 1`)
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordOperation("login", "INVALID_PASSWORD")
	m.RecordOperation("login", "INVALID_PASSWORD")
	m.RecordNotification("password_reset", "dropped")

	assert.InDelta(t, 2, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("login", "INVALID_PASSWORD")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("password_reset", "dropped")), 0)
}

func TestServer_Liveness(t *testing.T) {
	server := startServer(t, nil)

	status, body := get(t, server, "/healthz/liveness")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", strings.TrimSpace(body))
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		ready      ReadinessChecker
		wantStatus int
		wantBody   string
	}{
		{name: "ready", ready: func() bool { return true }, wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "not ready", ready: func() bool { return false }, wantStatus: http.StatusServiceUnavailable, wantBody: "not ready"},
		{name: "nil checker", ready: nil, wantStatus: http.StatusOK, wantBody: "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, tt.ready)
			status, body := get(t, server, "/healthz/readiness")
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, strings.TrimSpace(body))
		})
	}
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t, nil)

	_, err := server.Start()
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_RUNNING")
}

func TestServer_StopWithoutStart(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Stop(ctx))
}

func TestServer_ListenFailure(t *testing.T) {
	first := startServer(t, nil)

	second := NewServer(first.Addr(), nil)
	_, err := second.Start()
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_LISTEN_FAILED")
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	errCh, err := server.Start()
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	}()

	// Closing the listener makes Serve fail.
	require.NotNil(t, server.listener)
	_ = server.listener.Close()

	select {
	case serveErr := <-errCh:
		assert.Error(t, serveErr)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for serve error")
	}
}

func TestServer_ErrorChannelClosesOnNormalShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	errCh, err := server.Start()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))

	select {
	case err, ok := <-errCh:
		if ok {
			assert.NoError(t, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error channel to close")
	}
}
