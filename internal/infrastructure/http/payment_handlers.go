package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Titi-shop/TiTi/internal/application/reconcile"
	"github.com/Titi-shop/TiTi/internal/domain/ledger"
	"github.com/Titi-shop/TiTi/internal/domain/order"
	"github.com/Titi-shop/TiTi/internal/domain/payment"
)

// PaymentHandler is the callback receiver for the client-side payment SDK.
// Every route is safe to deliver more than once.
type PaymentHandler struct {
	Coordinator *reconcile.Coordinator
}

type callbackRequest struct {
	OrderID string `json:"orderId"`
	Txid    string `json:"txid"`
	Reason  string `json:"reason"`
}

func (h *PaymentHandler) decode(w http.ResponseWriter, r *http.Request) (paymentID string, req callbackRequest, ok bool) {
	paymentID = r.PathValue("id")

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return "", callbackRequest{}, false
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "orderId is required")
		return "", callbackRequest{}, false
	}
	return paymentID, req, true
}

func (h *PaymentHandler) Approve(w http.ResponseWriter, r *http.Request) {
	paymentID, req, ok := h.decode(w, r)
	if !ok {
		return
	}

	outcome, err := h.Coordinator.OnApprovalRequested(r.Context(), paymentID, req.OrderID)
	h.respond(w, outcome, err)
}

func (h *PaymentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	paymentID, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if req.Txid == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "txid is required")
		return
	}

	outcome, err := h.Coordinator.OnCompletionRequested(r.Context(), paymentID, req.OrderID, req.Txid, 1)
	h.respond(w, outcome, err)
}

func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	paymentID, req, ok := h.decode(w, r)
	if !ok {
		return
	}

	err := h.Coordinator.OnCancel(r.Context(), paymentID, req.OrderID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	case errors.Is(err, reconcile.ErrOrderSettled):
		writeError(w, http.StatusConflict, codeOrderSettled, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, codeOrderNotFound, "order not found")
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

func (h *PaymentHandler) Error(w http.ResponseWriter, r *http.Request) {
	paymentID, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "reason is required")
		return
	}

	if err := h.Coordinator.OnError(r.Context(), paymentID, req.OrderID, req.Reason); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

type outcomeResponse struct {
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
	Txid    string `json:"txid,omitempty"`
}

// respond maps coordinator results onto statuses the provider's retry loop
// understands: 2xx stops retries, 5xx asks for another delivery.
func (h *PaymentHandler) respond(w http.ResponseWriter, outcome ledger.Outcome, err error) {
	if err != nil {
		switch {
		case errors.Is(err, reconcile.ErrInFlight):
			writeError(w, http.StatusConflict, codeEventInFlight, "event already being processed")
		case errors.Is(err, order.ErrNotFound):
			writeError(w, http.StatusNotFound, codeOrderNotFound, "order not found")
		case payment.IsTransient(err):
			writeError(w, http.StatusServiceUnavailable, codeGatewayUnavailable, "payment network unavailable, retry")
		default:
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		}
		return
	}

	body := outcomeResponse{Outcome: string(outcome.Code), Detail: outcome.Detail, Txid: outcome.Txid}

	switch outcome.Code {
	case ledger.OutcomeOK:
		writeJSON(w, http.StatusOK, body)
	case ledger.OutcomePending:
		writeJSON(w, http.StatusAccepted, body)
	case ledger.OutcomeFailed:
		writeJSON(w, http.StatusConflict, body)
	case ledger.OutcomeInconsistent:
		writeJSON(w, http.StatusConflict, body)
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "unknown outcome")
	}
}
