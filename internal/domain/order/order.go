package order

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPendingConfirmation Status = "PENDING_CONFIRMATION"
	StatusAwaitingApproval    Status = "AWAITING_APPROVAL"
	StatusApproved            Status = "APPROVED"
	StatusAwaitingCompletion  Status = "AWAITING_COMPLETION"
	StatusPaid                Status = "PAID"
	StatusShipping            Status = "SHIPPING"
	StatusWaitingPickup       Status = "WAITING_PICKUP"
	StatusCompleted           Status = "COMPLETED"
	StatusCancelled           Status = "CANCELLED"
	StatusFailed              Status = "FAILED"
)

var ErrUnknownStatus = errors.New("unknown order status")

// ParseStatus rejects anything outside the closed status set.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPendingConfirmation, StatusAwaitingApproval, StatusApproved,
		StatusAwaitingCompletion, StatusPaid, StatusShipping,
		StatusWaitingPickup, StatusCompleted, StatusCancelled, StatusFailed:
		return st, nil
	}
	return "", ErrUnknownStatus
}

// transitions is the only source of truth for the order state machine.
// CANCELLED and FAILED are reachable from every pre-COMPLETED state; the
// shipping lane (PAID onward) is driven by buyer/seller collaborators, and
// cancelling a settled order goes through the returns workflow, which
// reaches these same edges with its own authority.
var transitions = map[Status][]Status{
	StatusPendingConfirmation: {StatusAwaitingApproval, StatusApproved, StatusCancelled, StatusFailed},
	StatusAwaitingApproval:    {StatusApproved, StatusCancelled, StatusFailed},
	StatusApproved:            {StatusAwaitingCompletion, StatusPaid, StatusCancelled, StatusFailed},
	StatusAwaitingCompletion:  {StatusPaid, StatusCancelled, StatusFailed},
	StatusPaid:                {StatusShipping, StatusCancelled, StatusFailed},
	StatusShipping:            {StatusWaitingPickup, StatusCancelled, StatusFailed},
	StatusWaitingPickup:       {StatusCompleted, StatusCancelled, StatusFailed},
}

// CanTransition reports whether from -> to is a valid single step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// IsSettled reports whether payment has been recorded for the status. The
// settled statuses are also the delivery lane: PAID onward, driven by
// seller/buyer actions instead of payment callbacks.
func (s Status) IsSettled() bool {
	switch s {
	case StatusPaid, StatusShipping, StatusWaitingPickup, StatusCompleted:
		return true
	}
	return false
}

type Item struct {
	Name      string
	UnitPrice float64
	Quantity  int
}

type Order struct {
	ID        string
	BuyerID   string
	Items     []Item
	Total     float64
	Status    Status
	PaymentID string
	Txid      string
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
