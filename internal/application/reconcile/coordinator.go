package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Titi-shop/TiTi/internal/domain/event"
	"github.com/Titi-shop/TiTi/internal/domain/ledger"
	"github.com/Titi-shop/TiTi/internal/domain/order"
	"github.com/Titi-shop/TiTi/internal/domain/payment"
	"github.com/Titi-shop/TiTi/internal/infra/clock"
	"github.com/Titi-shop/TiTi/internal/infra/logging"
	"github.com/Titi-shop/TiTi/internal/infra/metrics"
)

var (
	// ErrInFlight means another delivery of the same event holds the ledger
	// reservation right now. The provider's retry will find the outcome.
	ErrInFlight = errors.New("payment event already in flight")

	// ErrOrderSettled rejects a buyer cancel once payment has settled;
	// settled orders go through the returns workflow instead.
	ErrOrderSettled = errors.New("order already settled, cancel via returns")

	ErrOrderNotFound = order.ErrNotFound
)

type Gateway interface {
	Approve(ctx context.Context, paymentID string) error
	Complete(ctx context.Context, paymentID, txid string) error
	Cancel(ctx context.Context, paymentID string) error
}

type EventRecorder interface {
	Record(event.Event) error
}

// Scheduler re-delivers a deferred completion later. Schedule returns false
// once the attempt budget is spent.
type Scheduler interface {
	Schedule(payload event.CompletionDeferredPayload) bool
}

// Coordinator is the only writer of order payment state. Every operation is
// safe under at-least-once, out-of-order, concurrent callback delivery: the
// ledger's atomic reservation makes gateway calls exactly-once and the order
// store's CAS makes transitions race-free, so no per-key lock is needed.
type Coordinator struct {
	Orders   order.Repository
	Ledger   ledger.Repository
	Gateway  Gateway
	Recorder EventRecorder
	Retry    Scheduler
	Logger   logging.Logger
	Metrics  *metrics.Counters
	Clock    clock.Clock

	// LookupAttempts/LookupDelay bound the wait for an order record that the
	// checkout flow is still writing while the first callback races it.
	LookupAttempts int
	LookupDelay    time.Duration
}

// OnApprovalRequested authorizes the payment network to proceed. Exactly one
// delivery reaches the gateway; every other delivery reads the recorded
// outcome back from the ledger.
func (c *Coordinator) OnApprovalRequested(ctx context.Context, paymentID, orderID string) (ledger.Outcome, error) {
	existing, mine, err := c.Ledger.RecordIfAbsent(ctx, paymentID, orderID, ledger.PhaseApproval, ledger.Outcome{Code: ledger.OutcomePending})
	if err != nil {
		return ledger.Outcome{}, err
	}
	if !mine {
		if existing.Final() {
			c.Metrics.IncDuplicates()
			c.Logger.Info("duplicate approval callback", map[string]any{
				"payment-id": paymentID,
				"order-id":   orderID,
				"outcome":    string(existing.Code),
			})
			return existing, nil
		}
		return ledger.Outcome{}, ErrInFlight
	}

	o, err := c.fetchOrder(ctx, orderID)
	if err != nil {
		// Release so the provider's retry re-runs the whole sequence once
		// the order record has landed.
		_ = c.Ledger.Release(ctx, paymentID, ledger.PhaseApproval)
		return ledger.Outcome{}, err
	}

	if o.Status.IsTerminal() {
		out := ledger.Outcome{Code: ledger.OutcomeFailed, Detail: "order already " + string(o.Status)}
		if err := c.Ledger.Fulfill(ctx, paymentID, ledger.PhaseApproval, out); err != nil {
			return ledger.Outcome{}, err
		}
		c.Logger.Warn("approval rejected, order terminal", map[string]any{
			"payment-id": paymentID,
			"order-id":   orderID,
			"status":     string(o.Status),
		})
		return out, nil
	}

	if err := c.Orders.BindPayment(ctx, orderID, paymentID); err != nil {
		if errors.Is(err, order.ErrPaymentIDRebound) {
			out := c.escalate(o.ID, paymentID, "", "approval for an order bound to a different payment")
			if ferr := c.Ledger.Fulfill(ctx, paymentID, ledger.PhaseApproval, out); ferr != nil {
				return ledger.Outcome{}, ferr
			}
			return out, nil
		}
		_ = c.Ledger.Release(ctx, paymentID, ledger.PhaseApproval)
		return ledger.Outcome{}, err
	}

	if err := c.Gateway.Approve(ctx, paymentID); err != nil {
		if payment.IsTransient(err) {
			_ = c.Ledger.Release(ctx, paymentID, ledger.PhaseApproval)
			c.Logger.Warn("approval deferred to provider retry", map[string]any{
				"payment-id": paymentID,
				"order-id":   orderID,
				"error":      err.Error(),
			})
			return ledger.Outcome{}, err
		}

		c.failOrder(ctx, orderID, paymentID, err.Error())
		out := ledger.Outcome{Code: ledger.OutcomeFailed, Detail: err.Error()}
		if ferr := c.Ledger.Fulfill(ctx, paymentID, ledger.PhaseApproval, out); ferr != nil {
			return ledger.Outcome{}, ferr
		}
		return out, nil
	}

	c.advancePaymentStatus(ctx, orderID, order.StatusApproved)

	out := ledger.Outcome{Code: ledger.OutcomeOK}
	if err := c.Ledger.Fulfill(ctx, paymentID, ledger.PhaseApproval, out); err != nil {
		return ledger.Outcome{}, err
	}

	c.Metrics.IncApprovalsIssued()
	c.Logger.Info("payment approved", map[string]any{
		"payment-id": paymentID,
		"order-id":   orderID,
	})
	return out, nil
}

// OnCompletionRequested settles the payment. A completion whose approval has
// no durably recorded outcome yet is deferred, never applied: applying it
// would mark an unapproved payment as paid.
func (c *Coordinator) OnCompletionRequested(ctx context.Context, paymentID, orderID, txid string, attempt int) (ledger.Outcome, error) {
	approval, err := c.Ledger.Find(ctx, paymentID, ledger.PhaseApproval)
	noApproval := errors.Is(err, ledger.ErrNotFound)
	if err != nil && !noApproval {
		return ledger.Outcome{}, err
	}

	if noApproval || !approval.Outcome.Final() {
		return c.deferCompletion(ctx, paymentID, orderID, txid, attempt)
	}
	if approval.Outcome.Code != ledger.OutcomeOK {
		out := c.escalate(orderID, paymentID, txid, "completion received for a payment whose approval failed")
		_, _, rerr := c.Ledger.RecordIfAbsent(ctx, paymentID, orderID, ledger.PhaseCompletion, out)
		if rerr != nil {
			return ledger.Outcome{}, rerr
		}
		return out, nil
	}

	existing, mine, err := c.Ledger.RecordIfAbsent(ctx, paymentID, orderID, ledger.PhaseCompletion, ledger.Outcome{Code: ledger.OutcomePending})
	if err != nil {
		return ledger.Outcome{}, err
	}
	if !mine {
		if existing.Final() {
			c.Metrics.IncDuplicates()
			c.Logger.Info("duplicate completion callback", map[string]any{
				"payment-id": paymentID,
				"order-id":   orderID,
				"outcome":    string(existing.Code),
			})
			return existing, nil
		}
		return ledger.Outcome{}, ErrInFlight
	}

	o, err := c.fetchOrder(ctx, orderID)
	if err != nil {
		_ = c.Ledger.Release(ctx, paymentID, ledger.PhaseCompletion)
		return ledger.Outcome{}, err
	}

	if o.Status.IsTerminal() {
		// Tie-break: a terminal order is never resurrected by a late
		// completion. Recorded for manual review instead.
		out := c.escalate(o.ID, paymentID, txid,
			fmt.Sprintf("completion for order already %s", o.Status))
		if ferr := c.Ledger.Fulfill(ctx, paymentID, ledger.PhaseCompletion, out); ferr != nil {
			return ledger.Outcome{}, ferr
		}
		return out, nil
	}

	if o.Status != order.StatusApproved && o.Status != order.StatusAwaitingCompletion {
		// The approval outcome is OK but the status write may still be in
		// flight; heal it rather than fail the callback.
		c.advancePaymentStatus(ctx, orderID, order.StatusApproved)
	}

	if err := c.Gateway.Complete(ctx, paymentID, txid); err != nil {
		if payment.IsTransient(err) {
			_ = c.Ledger.Release(ctx, paymentID, ledger.PhaseCompletion)
			return ledger.Outcome{}, err
		}

		c.failOrder(ctx, orderID, paymentID, err.Error())
		out := ledger.Outcome{Code: ledger.OutcomeFailed, Detail: err.Error()}
		if ferr := c.Ledger.Fulfill(ctx, paymentID, ledger.PhaseCompletion, out); ferr != nil {
			return ledger.Outcome{}, ferr
		}
		return out, nil
	}

	if err := c.Orders.SetPaymentOutcome(ctx, orderID, paymentID, txid); err != nil {
		_ = c.Ledger.Release(ctx, paymentID, ledger.PhaseCompletion)
		return ledger.Outcome{}, err
	}

	if !c.advancePaymentStatus(ctx, orderID, order.StatusPaid) {
		// A cancel slipped in between the gateway call and the CAS.
		out := c.escalate(orderID, paymentID, txid, "order reached a terminal state while completion was in flight")
		if ferr := c.Ledger.Fulfill(ctx, paymentID, ledger.PhaseCompletion, out); ferr != nil {
			return ledger.Outcome{}, ferr
		}
		return out, nil
	}

	out := ledger.Outcome{Code: ledger.OutcomeOK, Txid: txid}
	if err := c.Ledger.Fulfill(ctx, paymentID, ledger.PhaseCompletion, out); err != nil {
		return ledger.Outcome{}, err
	}

	c.Metrics.IncCompletionsIssued()
	c.Logger.Info("payment completed", map[string]any{
		"payment-id": paymentID,
		"order-id":   orderID,
		"txid":       txid,
	})

	if rerr := c.Recorder.Record(event.Event{
		Type: event.OrderPaid,
		Payload: event.OrderPaidPayload{
			OrderID:   orderID,
			PaymentID: paymentID,
			Txid:      txid,
		},
	}); rerr != nil {
		c.Logger.Error("record order paid event", map[string]any{
			"order-id": orderID,
			"error":    rerr.Error(),
		})
	}

	return out, nil
}

// OnCancel moves a pre-settlement order to CANCELLED. Repeat deliveries and
// cancels of already-terminal orders are no-ops.
func (c *Coordinator) OnCancel(ctx context.Context, paymentID, orderID string) error {
	o, err := c.fetchOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status.IsTerminal() {
		return nil
	}
	if o.Status.IsSettled() {
		return ErrOrderSettled
	}

	// Best effort: local state is authoritative, the provider only needs to
	// hear about the cancel once and tolerates not hearing it at all.
	if err := c.Gateway.Cancel(ctx, paymentID); err != nil {
		c.Logger.Warn("provider cancel failed", map[string]any{
			"payment-id": paymentID,
			"order-id":   orderID,
			"error":      err.Error(),
		})
	}

	if c.advancePaymentStatus(ctx, orderID, order.StatusCancelled) {
		c.Metrics.IncOrdersCancelled()
		c.Logger.Info("order cancelled", map[string]any{
			"payment-id": paymentID,
			"order-id":   orderID,
		})
	}
	return nil
}

// OnError handles failure reports from the client-side SDK. Transient
// reports change nothing; permanent ones fail the order and surface it.
func (c *Coordinator) OnError(ctx context.Context, paymentID, orderID, reason string) error {
	classified := payment.ClassifyReason(reason)
	if payment.IsTransient(classified) {
		c.Logger.Warn("transient payment error reported", map[string]any{
			"payment-id": paymentID,
			"order-id":   orderID,
			"reason":     reason,
		})
		return nil
	}

	c.failOrder(ctx, orderID, paymentID, reason)
	return nil
}

// HandleDeferred is the bus subscription for completions that were waiting
// on their approval record.
func (c *Coordinator) HandleDeferred(evt event.Event) error {
	if evt.Type != event.CompletionDeferred {
		return nil
	}
	payload, ok := evt.Payload.(event.CompletionDeferredPayload)
	if !ok {
		return errors.New("invalid payload for CompletionDeferred")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := c.OnCompletionRequested(ctx, payload.PaymentID, payload.OrderID, payload.Txid, payload.Attempt)
	if errors.Is(err, ErrInFlight) {
		return nil
	}
	return err
}

func (c *Coordinator) deferCompletion(ctx context.Context, paymentID, orderID, txid string, attempt int) (ledger.Outcome, error) {
	scheduled := c.Retry.Schedule(event.CompletionDeferredPayload{
		PaymentID: paymentID,
		OrderID:   orderID,
		Txid:      txid,
		Attempt:   attempt + 1,
	})
	if !scheduled {
		out := c.escalate(orderID, paymentID, txid, "completion arrived but approval never did")
		_, _, err := c.Ledger.RecordIfAbsent(ctx, paymentID, orderID, ledger.PhaseCompletion, out)
		if err != nil {
			return ledger.Outcome{}, err
		}
		return out, nil
	}

	c.Metrics.IncCompletionsDeferred()
	c.Logger.Warn("completion deferred, approval not yet recorded", map[string]any{
		"payment-id": paymentID,
		"order-id":   orderID,
		"attempt":    attempt,
	})
	return ledger.Outcome{Code: ledger.OutcomePending, Detail: "awaiting approval record"}, nil
}

// escalate writes the durable audit record for a conflict the coordinator
// is not allowed to resolve on its own.
func (c *Coordinator) escalate(orderID, paymentID, txid, detail string) ledger.Outcome {
	auditID := "aud_" + uuid.NewString()

	c.Metrics.IncInconsistencies()
	c.Logger.Error("inconsistent state, escalating for manual review", map[string]any{
		"audit-id":   auditID,
		"payment-id": paymentID,
		"order-id":   orderID,
		"txid":       txid,
		"detail":     detail,
	})

	if err := c.Recorder.Record(event.Event{
		Type: event.InconsistencyFound,
		Payload: event.InconsistencyFoundPayload{
			AuditID:   auditID,
			OrderID:   orderID,
			PaymentID: paymentID,
			Txid:      txid,
			Detail:    detail,
		},
	}); err != nil {
		c.Logger.Error("record audit event", map[string]any{
			"audit-id": auditID,
			"error":    err.Error(),
		})
	}

	return ledger.Outcome{Code: ledger.OutcomeInconsistent, Detail: detail, Txid: txid}
}

func (c *Coordinator) failOrder(ctx context.Context, orderID, paymentID, reason string) {
	if !c.advancePaymentStatus(ctx, orderID, order.StatusFailed) {
		return
	}

	c.Metrics.IncPaymentsFailed()
	c.Logger.Error("order failed", map[string]any{
		"payment-id": paymentID,
		"order-id":   orderID,
		"reason":     reason,
	})

	if err := c.Recorder.Record(event.Event{
		Type: event.OrderFailed,
		Payload: event.OrderFailedPayload{
			OrderID:   orderID,
			PaymentID: paymentID,
			Reason:    reason,
		},
	}); err != nil {
		c.Logger.Error("record order failed event", map[string]any{
			"order-id": orderID,
			"error":    err.Error(),
		})
	}
}

// advancePaymentStatus drives the order toward target through whatever valid
// steps remain, re-reading after every lost CAS. It reports whether the
// order ended at (or beyond) the target rather than in a conflicting state.
func (c *Coordinator) advancePaymentStatus(ctx context.Context, orderID string, target order.Status) bool {
	for {
		o, err := c.Orders.FindByID(ctx, orderID)
		if err != nil {
			return false
		}
		if o.Status == target {
			return true
		}
		if target == order.StatusApproved && o.Status.IsSettled() {
			return true
		}
		if !order.CanTransition(o.Status, target) {
			return false
		}

		swapped, err := c.Orders.CompareAndSwapStatus(ctx, orderID, o.Status, target)
		if err != nil {
			return false
		}
		if swapped {
			return true
		}
		// Lost the race; re-read and decide again.
	}
}

// fetchOrder retries lookups with bounded backoff because the first
// callback can outrun the checkout flow's order insert.
func (c *Coordinator) fetchOrder(ctx context.Context, orderID string) (*order.Order, error) {
	attempts := c.LookupAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := c.LookupDelay

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		o, err := c.Orders.FindByID(ctx, orderID)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, order.ErrNotFound) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}
