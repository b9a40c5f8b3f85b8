package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Titi-shop/TiTi/internal/application/checkout"
	"github.com/Titi-shop/TiTi/internal/application/reconcile"
	"github.com/Titi-shop/TiTi/internal/domain/event"
	"github.com/Titi-shop/TiTi/internal/infra/clock"
	"github.com/Titi-shop/TiTi/internal/infra/logging"
	"github.com/Titi-shop/TiTi/internal/infra/metrics"
	httpapi "github.com/Titi-shop/TiTi/internal/infrastructure/http"
	"github.com/Titi-shop/TiTi/internal/infrastructure/persistence/inmemory"
)

type stubGateway struct{}

func (stubGateway) Approve(context.Context, string) error          { return nil }
func (stubGateway) Complete(context.Context, string, string) error { return nil }
func (stubGateway) Cancel(context.Context, string) error           { return nil }

type stubRecorder struct{}

func (stubRecorder) Record(event.Event) error { return nil }

type stubScheduler struct{}

func (stubScheduler) Schedule(event.CompletionDeferredPayload) bool { return true }

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	clk := clock.NewFixed(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	orders := inmemory.NewOrderRepository(clk)
	ledgerRepo := inmemory.NewLedgerRepository(clk, orders)

	coordinator := &reconcile.Coordinator{
		Orders:         orders,
		Ledger:         ledgerRepo,
		Gateway:        stubGateway{},
		Recorder:       stubRecorder{},
		Retry:          stubScheduler{},
		Logger:         logging.Noop{},
		Metrics:        &metrics.Counters{},
		Clock:          clk,
		LookupAttempts: 1,
		LookupDelay:    time.Millisecond,
	}
	service := &checkout.Service{Repo: orders, Clock: clk}

	router := httpapi.NewRouter(
		&httpapi.OrderHandler{Service: service},
		&httpapi.PaymentHandler{Coordinator: coordinator},
	)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func createOrder(t *testing.T, srv *httptest.Server, id string) {
	t.Helper()
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/orders",
		`{"id":"`+id+`","buyerId":"buyer-1","items":[{"name":"candle","unitPrice":3.00,"quantity":2}]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestCreateAndGetOrder(t *testing.T) {
	srv := newServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/orders",
		`{"buyerId":"buyer-1","items":[{"name":"candle","unitPrice":3.00,"quantity":2}],"note":"ring twice"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "PENDING_CONFIRMATION", body["status"])
	require.Equal(t, 6.00, body["total"])

	id := body["id"].(string)
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/orders/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ring twice", body["note"])
}

func TestCreateOrder_BadRequests(t *testing.T) {
	srv := newServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/orders", `{"buyerId":"buyer-1","items":[]}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_order", body["code"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/orders", `not json at all`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_request_body", body["code"])

	createOrder(t, srv, "ord-dup")
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/orders",
		`{"id":"ord-dup","buyerId":"buyer-1","items":[{"name":"candle","unitPrice":3.00,"quantity":2}]}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "order_already_exists", body["code"])
}

func TestGetOrder_NotFound(t *testing.T) {
	srv := newServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/orders/nope", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "order_not_found", body["code"])
}

func TestListOrdersByBuyer(t *testing.T) {
	srv := newServer(t)
	createOrder(t, srv, "ord-1")
	createOrder(t, srv, "ord-2")

	resp, err := http.Get(srv.URL + "/orders?buyer=buyer-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 2)

	resp2, body := doJSON(t, http.MethodGet, srv.URL+"/orders", "")
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	require.Equal(t, "missing_required_field", body["code"])
}

func TestApprovalCallback(t *testing.T) {
	srv := newServer(t)
	createOrder(t, srv, "ord-1")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/payments/P1/approve", `{"orderId":"ord-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "OK", body["outcome"])

	// Redelivery answers with the recorded outcome.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/payments/P1/approve", `{"orderId":"ord-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "OK", body["outcome"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/payments/P2/approve", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "missing_required_field", body["code"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/payments/P3/approve", `{"orderId":"ghost"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCompletionCallback(t *testing.T) {
	srv := newServer(t)
	createOrder(t, srv, "ord-1")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/payments/P1/approve", `{"orderId":"ord-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/payments/P1/complete", `{"orderId":"ord-1","txid":"tx-abc"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "OK", body["outcome"])
	require.Equal(t, "tx-abc", body["txid"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/orders/ord-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "PAID", body["status"])
	require.Equal(t, "tx-abc", body["txid"])

	// Missing txid is a client error, not a coordinator call.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/payments/P1/complete", `{"orderId":"ord-1"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "missing_required_field", body["code"])
}

func TestCompletionCallback_BeforeApproval_Accepted(t *testing.T) {
	srv := newServer(t)
	createOrder(t, srv, "ord-1")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/payments/P1/complete", `{"orderId":"ord-1","txid":"tx-abc"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, "PENDING", body["outcome"])
}

func TestCancelCallback(t *testing.T) {
	srv := newServer(t)
	createOrder(t, srv, "ord-1")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/payments/P1/cancel", `{"orderId":"ord-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "cancelled", body["status"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/orders/ord-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "CANCELLED", body["status"])
}

func TestCancelCallback_SettledOrder(t *testing.T) {
	srv := newServer(t)
	createOrder(t, srv, "ord-1")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/payments/P1/approve", `{"orderId":"ord-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/payments/P1/complete", `{"orderId":"ord-1","txid":"tx-abc"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/payments/P1/cancel", `{"orderId":"ord-1"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "order_settled", body["code"])
}

func TestErrorCallback(t *testing.T) {
	srv := newServer(t)
	createOrder(t, srv, "ord-1")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/payments/P1/error",
		`{"orderId":"ord-1","reason":"user rejected the payment"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/orders/ord-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "FAILED", body["status"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/payments/P1/error", `{"orderId":"ord-1"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "missing_required_field", body["code"])
}

func TestShippingAdvance(t *testing.T) {
	srv := newServer(t)
	createOrder(t, srv, "ord-1")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/payments/P1/approve", `{"orderId":"ord-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/payments/P1/complete", `{"orderId":"ord-1","txid":"tx-abc"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/orders/ord-1/shipping", `{"expected":"PAID","next":"SHIPPING"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "SHIPPING", body["status"])

	// Stale expectation after the first advance wins.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/orders/ord-1/shipping", `{"expected":"PAID","next":"SHIPPING"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "transition_conflict", body["code"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/orders/ord-1/shipping", `{"expected":"SHIPPING","next":"DELIVERED"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "unknown_status", body["code"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/orders/ord-1/shipping", `{"expected":"SHIPPING","next":"COMPLETED"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_transition", body["code"])
}

func TestHealth(t *testing.T) {
	srv := newServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
}
