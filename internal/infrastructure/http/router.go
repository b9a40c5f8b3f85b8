package httpapi

import "net/http"

func NewRouter(orders *OrderHandler, payments *PaymentHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /orders", orders.Create)
	mux.HandleFunc("GET /orders", orders.ListByBuyer)
	mux.HandleFunc("GET /orders/{id}", orders.Get)
	mux.HandleFunc("POST /orders/{id}/shipping", orders.AdvanceShipping)

	mux.HandleFunc("POST /payments/{id}/approve", payments.Approve)
	mux.HandleFunc("POST /payments/{id}/complete", payments.Complete)
	mux.HandleFunc("POST /payments/{id}/cancel", payments.Cancel)
	mux.HandleFunc("POST /payments/{id}/error", payments.Error)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}
