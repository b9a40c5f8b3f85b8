package ledger

import "time"

// Phase identifies which side-effecting gateway call an entry guards.
type Phase string

const (
	PhaseApproval   Phase = "APPROVAL"
	PhaseCompletion Phase = "COMPLETION"
)

type OutcomeCode string

const (
	// OutcomePending reserves the (paymentID, phase) pair while the owning
	// call is in flight, so a concurrent duplicate never reaches the gateway.
	OutcomePending      OutcomeCode = "PENDING"
	OutcomeOK           OutcomeCode = "OK"
	OutcomeFailed       OutcomeCode = "FAILED"
	OutcomeInconsistent OutcomeCode = "INCONSISTENT"
)

type Outcome struct {
	Code   OutcomeCode
	Detail string
	Txid   string
}

// Final reports whether retries may be answered from this outcome.
func (o Outcome) Final() bool {
	return o.Code != OutcomePending
}

type Entry struct {
	PaymentID   string
	OrderID     string
	Phase       Phase
	Outcome     Outcome
	CompletedAt time.Time
}
