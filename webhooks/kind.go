package webhooks

// EventKind is the closed set of provider notifications the reconciler acts on.
type EventKind uint8

const (
	KindUnknown EventKind = iota
	PaymentIntentSucceeded
	PaymentIntentFailed
	TransferCompleted
	TransferFailed
	PayoutCompleted
	PayoutFailed
)

var kindNames = map[EventKind]string{
	PaymentIntentSucceeded: "payment_intent.succeeded",
	PaymentIntentFailed:    "payment_intent.failed",
	TransferCompleted:      "transfer.completed",
	TransferFailed:         "transfer.failed",
	PayoutCompleted:        "payout.completed",
	PayoutFailed:           "payout.failed",
}

var kindsByName = func() map[string]EventKind {
	m := make(map[string]EventKind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

func ParseKind(s string) EventKind {
	return kindsByName[s]
}

func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}
