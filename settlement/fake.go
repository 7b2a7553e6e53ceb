package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

var ErrInjected = errors.New("injected settlement failure")

// Call is one recorded invocation of a Fake.
type Call struct {
	Step     Step
	Amount   decimal.Decimal
	Currency string
}

// Fake is a deterministic Provider for tests. Identifiers are sequential and
// failures can be injected per step.
type Fake struct {
	mu    sync.Mutex
	seq   int
	fail  map[Step]error
	calls []Call

	// Hold, when set, is received from before AwaitPaymentIntent returns.
	Hold chan struct{}
}

func NewFake() *Fake {
	return &Fake{fail: make(map[Step]error)}
}

// FailOn makes every call of step return err (ErrInjected when nil).
func (f *Fake) FailOn(step Step, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	f.fail[step] = err
	return f
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *Fake) record(step Step, amount decimal.Decimal, currency string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Step: step, Amount: amount, Currency: currency})
	if err, ok := f.fail[step]; ok {
		return 0, err
	}
	f.seq++
	return f.seq, nil
}

func (f *Fake) CreatePaymentIntent(_ context.Context, amount decimal.Decimal, currency string) (Receipt, error) {
	n, err := f.record(StepPaymentIntent, amount, currency)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{ExternalID: fmt.Sprintf("pi_fake_%d", n)}, nil
}

func (f *Fake) AwaitPaymentIntent(ctx context.Context, externalID string) (Receipt, error) {
	if f.Hold != nil {
		select {
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		case <-f.Hold:
		}
	}
	n, err := f.record(StepAwaitIntent, decimal.Zero, "")
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{ExternalID: externalID, ProofHash: fmt.Sprintf("0xfake%04d", n)}, nil
}

func (f *Fake) Exchange(_ context.Context, from, to string, amount decimal.Decimal) (Receipt, error) {
	n, err := f.record(StepExchange, amount, from)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{ExternalID: fmt.Sprintf("tr_fake_%d", n), ProofHash: fmt.Sprintf("0xfake%04d", n)}, nil
}

func (f *Fake) Payout(_ context.Context, _ Destination, amount decimal.Decimal, currency string) (Receipt, error) {
	n, err := f.record(StepPayout, amount, currency)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{ExternalID: fmt.Sprintf("po_fake_%d", n), ProofHash: fmt.Sprintf("0xfake%04d", n)}, nil
}
