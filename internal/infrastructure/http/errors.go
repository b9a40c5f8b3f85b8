package httpapi

import (
	"encoding/json"
	"net/http"
)

const (
	codeInvalidRequestBody = "invalid_request_body"
	codeMissingField       = "missing_required_field"
	codeOrderNotFound      = "order_not_found"
	codeOrderExists        = "order_already_exists"
	codeUnknownStatus      = "unknown_status"
	codeInvalidOrder       = "invalid_order"
	codeInvalidTransition  = "invalid_transition"
	codeTransitionConflict = "transition_conflict"
	codeEventInFlight      = "event_in_flight"
	codeOrderSettled       = "order_settled"
	codeGatewayUnavailable = "gateway_unavailable"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{Error: msg, Code: code})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
