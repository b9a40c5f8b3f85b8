package ledger

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("ledger entry not found")

// Repository is the durable dedup map for payment events.
type Repository interface {
	// RecordIfAbsent atomically stores outcome for (paymentID, phase) when no
	// entry exists yet. It returns the outcome now on record and whether this
	// call created it; when wasNew is false the caller must not execute the
	// guarded side effect again. orderID ties the entry to the order whose
	// lifecycle governs how long it must be kept.
	RecordIfAbsent(ctx context.Context, paymentID, orderID string, phase Phase, outcome Outcome) (Outcome, bool, error)

	// Fulfill replaces a pending reservation with its final outcome.
	Fulfill(ctx context.Context, paymentID string, phase Phase, outcome Outcome) error

	// Release drops a pending reservation after a transient failure so the
	// provider's retry re-executes the call.
	Release(ctx context.Context, paymentID string, phase Phase) error

	Find(ctx context.Context, paymentID string, phase Phase) (*Entry, error)

	// DeleteOlderThan prunes finalized entries recorded before cutoff whose
	// owning order has reached a terminal status. Entries for live orders
	// stay however old they get: they are still the only thing standing
	// between a late duplicate callback and a second gateway call.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
