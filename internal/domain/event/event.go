package event

type Type string

const (
	// CompletionDeferred re-delivers a completion callback that arrived
	// before its approval outcome was durably recorded.
	CompletionDeferred Type = "COMPLETION_DEFERRED"

	OrderPaid          Type = "ORDER_PAID"
	OrderFailed        Type = "ORDER_FAILED"
	InconsistencyFound Type = "INCONSISTENCY_FOUND"
)

type Event struct {
	Type    Type
	Payload any
}
