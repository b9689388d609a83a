// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package observability

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RegistrationsTotal.WithLabelValues("created").Inc()
	m.LoginsTotal.WithLabelValues("accepted").Add(2)
	m.SessionsIssued.Inc()
	m.SessionsDestroyed.Inc()
	m.ResetsIssued.Inc()
	m.ResetsRedeemed.WithLabelValues("redeemed").Inc()
	m.HTTPRequestsTotal.WithLabelValues("POST", "/users", "200").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RegistrationsTotal.WithLabelValues("created")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.LoginsTotal.WithLabelValues("accepted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsIssued))
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}

func TestServer_StartStop(t *testing.T) {
	srv := NewServer("127.0.0.1:0", func() bool { return true })

	errCh, err := srv.Start()
	require.NoError(t, err)
	require.NotEmpty(t, srv.Addr())

	t.Run("second start fails", func(t *testing.T) {
		_, err := srv.Start()
		assert.Error(t, err)
	})

	t.Run("metrics endpoint serves", func(t *testing.T) {
		resp, err := http.Get("http://" + srv.Addr() + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "go_goroutines")
	})

	t.Run("liveness probe", func(t *testing.T) {
		resp, err := http.Get("http://" + srv.Addr() + "/healthz/liveness")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("readiness probe when ready", func(t *testing.T) {
		resp, err := http.Get("http://" + srv.Addr() + "/healthz/readiness")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	// Error channel closes on graceful shutdown.
	select {
	case err, ok := <-errCh:
		if ok {
			t.Fatalf("unexpected server error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("error channel not closed after stop")
	}

	t.Run("stop is idempotent", func(t *testing.T) {
		assert.NoError(t, srv.Stop(context.Background()))
	})
}

func TestServer_ReadinessNotReady(t *testing.T) {
	srv := NewServer("127.0.0.1:0", func() bool { return false })

	_, err := srv.Start()
	require.NoError(t, err)
	defer srv.Stop(context.Background()) //nolint:errcheck // test cleanup

	resp, err := http.Get("http://" + srv.Addr() + "/healthz/readiness")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
