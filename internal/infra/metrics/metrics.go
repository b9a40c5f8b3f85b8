package metrics

import "sync/atomic"

// Counters track the reconciliation core's visible behavior. The ones that
// matter for correctness review are ApprovalsIssued and CompletionsIssued:
// for a given payment each must move by exactly one regardless of how many
// times the provider delivers the callback.
type Counters struct {
	ApprovalsIssued         uint64
	CompletionsIssued       uint64
	DuplicatesShortCircuit  uint64
	CompletionsDeferred     uint64
	OrdersCancelled         uint64
	PaymentsFailed          uint64
	InconsistenciesRecorded uint64
}

func (c *Counters) IncApprovalsIssued() {
	atomic.AddUint64(&c.ApprovalsIssued, 1)
}

func (c *Counters) IncCompletionsIssued() {
	atomic.AddUint64(&c.CompletionsIssued, 1)
}

func (c *Counters) IncDuplicates() {
	atomic.AddUint64(&c.DuplicatesShortCircuit, 1)
}

func (c *Counters) IncCompletionsDeferred() {
	atomic.AddUint64(&c.CompletionsDeferred, 1)
}

func (c *Counters) IncOrdersCancelled() {
	atomic.AddUint64(&c.OrdersCancelled, 1)
}

func (c *Counters) IncPaymentsFailed() {
	atomic.AddUint64(&c.PaymentsFailed, 1)
}

func (c *Counters) IncInconsistencies() {
	atomic.AddUint64(&c.InconsistenciesRecorded, 1)
}
