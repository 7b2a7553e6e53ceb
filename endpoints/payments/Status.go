package payments

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"git.sr.ht/~aondrejcak/payout-api/kernel"
	"git.sr.ht/~aondrejcak/payout-api/models"
	"git.sr.ht/~aondrejcak/payout-api/orchestrator"
)

type PaymentView struct {
	PaymentID           string               `json:"paymentId"`
	Status              models.PaymentStatus `json:"status"`
	SourceAmount        decimal.Decimal      `json:"sourceAmount"`
	SourceCurrency      string               `json:"sourceCurrency"`
	DestinationAmount   decimal.Decimal      `json:"destinationAmount"`
	DestinationCurrency string               `json:"destinationCurrency"`
	ExchangeRate        decimal.Decimal      `json:"exchangeRate"`
	FailureReason       string               `json:"failureReason,omitempty"`
	CustomerReference   string               `json:"customerReference,omitempty"`
	Description         string               `json:"description,omitempty"`
	IdempotencyKey      string               `json:"idempotencyKey"`

	ExpectedSettlementTime *time.Time `json:"expectedSettlementTime,omitempty"`
	ActualSettlementTime   *time.Time `json:"actualSettlementTime,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`

	Vendor       orchestrator.VendorSummary `json:"vendor"`
	Transactions []models.Transaction       `json:"transactions"`
}

func NewPaymentView(v *orchestrator.StatusView) PaymentView {
	p := v.Payment
	txs := v.Transactions
	if txs == nil {
		txs = []models.Transaction{}
	}
	return PaymentView{
		PaymentID:              p.ID,
		Status:                 p.Status,
		SourceAmount:           p.SourceAmount,
		SourceCurrency:         p.SourceCurrency,
		DestinationAmount:      p.DestinationAmount,
		DestinationCurrency:    p.DestinationCurrency,
		ExchangeRate:           p.ExchangeRate,
		FailureReason:          p.FailureReason,
		CustomerReference:      p.CustomerReference,
		Description:            p.Description,
		IdempotencyKey:         p.IdempotencyKey,
		ExpectedSettlementTime: p.ExpectedSettlementTime,
		ActualSettlementTime:   p.ActualSettlementTime,
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
		Vendor:                 v.Vendor,
		Transactions:           txs,
	}
}

func (ctl *Controller) PaymentStatus(c *gin.Context) {
	rt := kernel.Runtime(c)
	rt.StepInto("payment_status.handler")

	view, err := ctl.payments.GetStatus(rt.SpanContext, c.Param("id"))
	if err != nil {
		rt.Fail(err)
		return
	}

	c.JSON(http.StatusOK, NewPaymentView(view))
	rt.EndBlock()
}

func (ctl *Controller) GenerateIdempotencyKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"idempotencyKey": kernel.IdempotencyKey()})
}
