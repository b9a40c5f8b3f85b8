package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Titi-shop/TiTi/internal/application/checkout"
	"github.com/Titi-shop/TiTi/internal/domain/order"
)

type OrderHandler struct {
	Service *checkout.Service
}

type orderItemDTO struct {
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
}

type orderDTO struct {
	ID        string         `json:"id"`
	BuyerID   string         `json:"buyerId"`
	Items     []orderItemDTO `json:"items"`
	Total     float64        `json:"total"`
	Status    string         `json:"status"`
	PaymentID string         `json:"paymentId,omitempty"`
	Txid      string         `json:"txid,omitempty"`
	Note      string         `json:"note,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func toDTO(o *order.Order) orderDTO {
	items := make([]orderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemDTO{Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	return orderDTO{
		ID:        o.ID,
		BuyerID:   o.BuyerID,
		Items:     items,
		Total:     o.Total,
		Status:    string(o.Status),
		PaymentID: o.PaymentID,
		Txid:      o.Txid,
		Note:      o.Note,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

type createOrderRequest struct {
	ID      string         `json:"id"`
	BuyerID string         `json:"buyerId"`
	Items   []orderItemDTO `json:"items"`
	Total   float64        `json:"total"`
	Note    string         `json:"note"`
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	items := make([]order.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, order.Item{Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}

	o, err := h.Service.CreateOrder(r.Context(), checkout.CreateOrderInput{
		ID:      req.ID,
		BuyerID: req.BuyerID,
		Items:   items,
		Total:   req.Total,
		Note:    req.Note,
	})
	if err != nil {
		switch {
		case errors.Is(err, order.ErrAlreadyExists):
			writeError(w, http.StatusConflict, codeOrderExists, "order id already in use")
		case errors.Is(err, checkout.ErrBuyerRequired),
			errors.Is(err, checkout.ErrNoItems),
			errors.Is(err, checkout.ErrInvalidItem),
			errors.Is(err, checkout.ErrTotalMismatch):
			writeError(w, http.StatusBadRequest, codeInvalidOrder, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toDTO(o))
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Service.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeOrderNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toDTO(o))
}

func (h *OrderHandler) ListByBuyer(w http.ResponseWriter, r *http.Request) {
	buyer := r.URL.Query().Get("buyer")
	if buyer == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "buyer query parameter is required")
		return
	}

	orders, err := h.Service.GetOrdersByBuyer(r.Context(), buyer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}

	out := make([]orderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, toDTO(o))
	}
	writeJSON(w, http.StatusOK, out)
}

type shippingRequest struct {
	Expected string `json:"expected"`
	Next     string `json:"next"`
}

func (h *OrderHandler) AdvanceShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	expected, err := order.ParseStatus(req.Expected)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeUnknownStatus, "unknown expected status")
		return
	}
	next, err := order.ParseStatus(req.Next)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeUnknownStatus, "unknown next status")
		return
	}

	err = h.Service.AdvanceShippingStatus(r.Context(), r.PathValue("id"), expected, next)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": string(next)})
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, codeOrderNotFound, "order not found")
	case errors.Is(err, checkout.ErrNotShippingStatus), errors.Is(err, checkout.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, codeInvalidTransition, err.Error())
	case errors.Is(err, checkout.ErrTransitionConflict):
		writeError(w, http.StatusConflict, codeTransitionConflict, "order status changed, re-read and retry")
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
