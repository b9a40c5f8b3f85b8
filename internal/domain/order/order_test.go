package order_test

import (
	"testing"

	"github.com/Titi-shop/TiTi/internal/domain/order"
)

func TestParseStatus(t *testing.T) {
	st, err := order.ParseStatus("WAITING_PICKUP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != order.StatusWaitingPickup {
		t.Errorf("got %s", st)
	}

	if _, err := order.ParseStatus("SHIPPED"); err == nil {
		t.Error("expected unknown status to be rejected")
	}
	if _, err := order.ParseStatus("paid"); err == nil {
		t.Error("status parsing must be case sensitive")
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to order.Status
		ok       bool
	}{
		{order.StatusPendingConfirmation, order.StatusAwaitingApproval, true},
		{order.StatusPendingConfirmation, order.StatusApproved, true},
		{order.StatusApproved, order.StatusPaid, true},
		{order.StatusAwaitingCompletion, order.StatusPaid, true},
		{order.StatusPaid, order.StatusShipping, true},
		{order.StatusShipping, order.StatusWaitingPickup, true},
		{order.StatusWaitingPickup, order.StatusCompleted, true},
		{order.StatusAwaitingApproval, order.StatusCancelled, true},
		{order.StatusPaid, order.StatusFailed, true},
		{order.StatusShipping, order.StatusCancelled, true},
		{order.StatusWaitingPickup, order.StatusFailed, true},

		{order.StatusPaid, order.StatusApproved, false},
		{order.StatusCancelled, order.StatusPaid, false},
		{order.StatusCompleted, order.StatusShipping, false},
		{order.StatusCompleted, order.StatusCancelled, false},
		{order.StatusFailed, order.StatusPendingConfirmation, false},
		{order.StatusPaid, order.StatusCompleted, false},
	}

	for _, tc := range cases {
		if got := order.CanTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, st := range []order.Status{order.StatusCompleted, order.StatusCancelled, order.StatusFailed} {
		if !st.IsTerminal() {
			t.Errorf("%s should be terminal", st)
		}
	}
	if order.StatusPaid.IsTerminal() {
		t.Error("PAID is not terminal")
	}

	if !order.StatusPaid.IsSettled() || !order.StatusShipping.IsSettled() {
		t.Error("post-payment statuses are settled")
	}
	if order.StatusApproved.IsSettled() {
		t.Error("APPROVED is not settled")
	}
	if order.StatusCancelled.IsSettled() {
		t.Error("CANCELLED is not settled")
	}
}
