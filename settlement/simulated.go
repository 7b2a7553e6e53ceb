package settlement

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Simulated stands in for the real networks: it issues random identifiers and
// settlement-chain hashes, and confirms intake after a fixed delay.
type Simulated struct {
	ConfirmDelay time.Duration

	log zerolog.Logger
}

func NewSimulated(confirmDelay time.Duration, log zerolog.Logger) *Simulated {
	return &Simulated{
		ConfirmDelay: confirmDelay,
		log:          log.With().Str("component", "settlement.simulated").Logger(),
	}
}

func (s *Simulated) CreatePaymentIntent(_ context.Context, amount decimal.Decimal, currency string) (Receipt, error) {
	id, err := randomID("pi_", 12)
	if err != nil {
		return Receipt{}, err
	}
	s.log.Debug().Str("intent", id).Str("amount", amount.String()).Str("currency", currency).Msg("payment intent created")
	return Receipt{ExternalID: id}, nil
}

func (s *Simulated) AwaitPaymentIntent(ctx context.Context, externalID string) (Receipt, error) {
	if s.ConfirmDelay > 0 {
		timer := time.NewTimer(s.ConfirmDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		case <-timer.C:
		}
	}
	hash, err := proofHash()
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{ExternalID: externalID, ProofHash: hash}, nil
}

func (s *Simulated) Exchange(_ context.Context, from, to string, amount decimal.Decimal) (Receipt, error) {
	id, err := randomID("tr_", 12)
	if err != nil {
		return Receipt{}, err
	}
	hash, err := proofHash()
	if err != nil {
		return Receipt{}, err
	}
	s.log.Debug().Str("transfer", id).Str("pair", from+"/"+to).Str("amount", amount.String()).Msg("exchange settled")
	return Receipt{ExternalID: id, ProofHash: hash}, nil
}

func (s *Simulated) Payout(_ context.Context, dest Destination, amount decimal.Decimal, currency string) (Receipt, error) {
	id, err := randomID("po_", 12)
	if err != nil {
		return Receipt{}, err
	}
	hash, err := proofHash()
	if err != nil {
		return Receipt{}, err
	}
	s.log.Debug().Str("payout", id).Str("vendor", dest.VendorID).Str("amount", amount.String()).Str("currency", currency).Msg("payout sent")
	return Receipt{ExternalID: id, ProofHash: hash}, nil
}

func randomID(prefix string, n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating external id: %w", err)
	}
	return prefix + hex.EncodeToString(b), nil
}

func proofHash() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating proof hash: %w", err)
	}
	return "0x" + hex.EncodeToString(b), nil
}
