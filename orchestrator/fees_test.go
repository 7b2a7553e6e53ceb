package orchestrator

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPriceBreakdown(t *testing.T) {
	fees := FeeSchedule{OnrampBps: 50, OfframpBps: 30, PayoutBps: 10}
	b := fees.Price(d("1000.00"), d("0.74"), d("1.00"), "USDC", "USD")

	want := map[string][2]decimal.Decimal{
		"onramp":      {b.Onramp, d("740")},
		"onramp fee":  {b.OnrampFee, d("3.7")},
		"offramp":     {b.Offramp, d("736.30")},
		"offramp fee": {b.OfframpFee, d("2.21")},
		"payout":      {b.Payout, d("734.09")},
		"payout fee":  {b.PayoutFee, d("0.73")},
		"delivered":   {b.Delivered, d("733.36")},
	}
	for name, pair := range want {
		if !pair[0].Equal(pair[1]) {
			t.Errorf("%s = %s, want %s", name, pair[0], pair[1])
		}
	}
}

func TestPriceWithoutFees(t *testing.T) {
	b := FeeSchedule{}.Price(d("250.5"), d("0.74"), d("1"), "USDC", "USD")
	if !b.Delivered.Equal(d("185.37")) {
		t.Fatalf("delivered = %s", b.Delivered)
	}
	if !b.OnrampFee.IsZero() || !b.OfframpFee.IsZero() || !b.PayoutFee.IsZero() {
		t.Fatal("zero bps must not charge")
	}
}

func TestScale(t *testing.T) {
	cases := map[string]int32{"USD": 2, "sgd": 2, "USDC": 6, "JPY": 0}
	for currency, want := range cases {
		if got := Scale(currency); got != want {
			t.Errorf("Scale(%s) = %d, want %d", currency, got, want)
		}
	}
	if got := Fee(d("100"), 25, "USD"); !got.Equal(d("0.25")) {
		t.Fatalf("fee = %s", got)
	}
}
