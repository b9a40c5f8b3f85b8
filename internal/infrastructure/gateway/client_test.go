package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Titi-shop/TiTi/internal/domain/payment"
	"github.com/Titi-shop/TiTi/internal/infra/logging"
	"github.com/Titi-shop/TiTi/internal/infrastructure/gateway"
)

func newTestClient(url string) *gateway.Client {
	c := gateway.NewClient(url, "secret-key", logging.Noop{})
	c.BaseDelay = time.Millisecond
	return c
}

func TestApprove_SendsKeyAuthorization(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.Approve(context.Background(), "P1"))
	require.Equal(t, "/payments/P1/approve", gotPath)
	require.Equal(t, "Key secret-key", gotAuth)
}

func TestComplete_SendsTxidBody(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.Complete(context.Background(), "P1", "tx-abc"))
	require.Equal(t, map[string]string{"txid": "tx-abc"}, body)
}

func TestCancel_Path(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.Cancel(context.Background(), "P1"))
	require.Equal(t, "/payments/P1/cancelled", gotPath)
}

func TestPost_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.Approve(context.Background(), "P1"))
	require.Equal(t, int32(3), calls.Load())
}

func TestPost_ExhaustedRetries_Transient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.Approve(context.Background(), "P1")
	require.Error(t, err)
	require.True(t, payment.IsTransient(err))
	require.Equal(t, int32(3), calls.Load())
}

func TestPost_CredentialRejection_PermanentNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.Approve(context.Background(), "P1")
	require.True(t, payment.IsPermanent(err))
	require.Equal(t, int32(1), calls.Load(), "credential failures must not be retried")
}

func TestPost_ClientError_Permanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"payment already completed"}`, http.StatusConflict)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.Complete(context.Background(), "P1", "tx-abc")
	require.True(t, payment.IsPermanent(err))
	require.Contains(t, err.Error(), "409")
}

func TestPost_RateLimited_Transient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.NoError(t, c.Approve(context.Background(), "P1"))
	require.Equal(t, int32(2), calls.Load())
}

func TestPost_ConnectionRefused_Transient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing is listening anymore

	c := newTestClient(srv.URL)
	err := c.Approve(context.Background(), "P1")
	require.True(t, payment.IsTransient(err))
}

func TestPost_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(srv.URL)
	c.BaseDelay = time.Minute // the cancelled context must win, not the timer

	err := c.Approve(ctx, "P1")
	require.Error(t, err)
	require.True(t, payment.IsTransient(err))
}
