package event

type CompletionDeferredPayload struct {
	PaymentID string
	OrderID   string
	Txid      string
	Attempt   int
}

type OrderPaidPayload struct {
	OrderID   string
	PaymentID string
	Txid      string
}

type OrderFailedPayload struct {
	OrderID   string
	PaymentID string
	Reason    string
}

type InconsistencyFoundPayload struct {
	AuditID   string
	OrderID   string
	PaymentID string
	Txid      string
	Detail    string
}
