// Package settlement abstracts the external networks that move funds for a
// payment: card/transfer intake, on/off-ramp exchanges and bank payouts.
package settlement

import (
	"context"

	"github.com/shopspring/decimal"
)

type Step string

const (
	StepPaymentIntent Step = "payment_intent"
	StepAwaitIntent   Step = "await_intent"
	StepExchange      Step = "exchange"
	StepPayout        Step = "payout"
)

// Receipt identifies an operation on the external network. ProofHash is empty
// until the operation is confirmed.
type Receipt struct {
	ExternalID string
	ProofHash  string
}

type Destination struct {
	VendorID      string
	BankName      string
	RoutingNumber string
	AccountNumber string
	AccountHolder string
	Currency      string
}

type Provider interface {
	CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string) (Receipt, error)
	// AwaitPaymentIntent blocks until the funds behind externalID are received.
	AwaitPaymentIntent(ctx context.Context, externalID string) (Receipt, error)
	Exchange(ctx context.Context, from, to string, amount decimal.Decimal) (Receipt, error)
	Payout(ctx context.Context, dest Destination, amount decimal.Decimal, currency string) (Receipt, error)
}
