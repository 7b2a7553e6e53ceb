package orchestrator

import (
	"strings"

	"github.com/shopspring/decimal"
)

var bpsDivisor = decimal.NewFromInt(10000)

// FeeSchedule holds one proportional fee per priced step, in basis points.
type FeeSchedule struct {
	OnrampBps  int64
	OfframpBps int64
	PayoutBps  int64
}

// Scale is the number of decimal places amounts in currency are kept to.
func Scale(currency string) int32 {
	switch strings.ToUpper(currency) {
	case "USDC", "USDT", "DAI":
		return 6
	case "JPY", "KRW":
		return 0
	default:
		return 2
	}
}

func Round(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.RoundBank(Scale(currency))
}

// Fee is bps of amount, rounded to the currency's scale.
func Fee(amount decimal.Decimal, bps int64, currency string) decimal.Decimal {
	if bps <= 0 {
		return decimal.Zero
	}
	return Round(amount.Mul(decimal.NewFromInt(bps)).Div(bpsDivisor), currency)
}

// Breakdown is the amount flow of one payment through the three priced steps.
type Breakdown struct {
	Onramp     decimal.Decimal // intermediate currency bought
	OnrampFee  decimal.Decimal
	Offramp    decimal.Decimal // destination currency bought with the net onramp
	OfframpFee decimal.Decimal
	Payout     decimal.Decimal // amount sent to the bank
	PayoutFee  decimal.Decimal
	Delivered  decimal.Decimal
}

// Price computes every step amount and fee for source units converted at
// r1 (source to intermediate) and r2 (intermediate to destination).
func (f FeeSchedule) Price(source decimal.Decimal, r1, r2 decimal.Decimal, mid, dst string) Breakdown {
	var b Breakdown
	b.Onramp = Round(source.Mul(r1), mid)
	b.OnrampFee = Fee(b.Onramp, f.OnrampBps, mid)
	b.Offramp = Round(b.Onramp.Sub(b.OnrampFee).Mul(r2), dst)
	b.OfframpFee = Fee(b.Offramp, f.OfframpBps, dst)
	b.Payout = b.Offramp.Sub(b.OfframpFee)
	b.PayoutFee = Fee(b.Payout, f.PayoutBps, dst)
	b.Delivered = b.Payout.Sub(b.PayoutFee)
	return b
}
