package payments

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.nhat.io/otelsql/attribute"

	"git.sr.ht/~aondrejcak/payout-api/kernel"
	"git.sr.ht/~aondrejcak/payout-api/models"
	"git.sr.ht/~aondrejcak/payout-api/orchestrator"
)

const IdempotencyHeader = "Idempotency-Key"

type InitPaymentDto struct {
	VendorID          string          `json:"vendorId"`
	AmountSgd         decimal.Decimal `json:"amountSgd"`
	CustomerReference string          `json:"customerReference"`
	Description       string          `json:"description"`
}

type PaymentCreated struct {
	PaymentID              string               `json:"paymentId"`
	Status                 models.PaymentStatus `json:"status"`
	AmountSgd              decimal.Decimal      `json:"amountSgd"`
	EstimatedAmountUsd     *decimal.Decimal     `json:"estimatedAmountUsd,omitempty"`
	ExpectedSettlementTime *time.Time           `json:"expectedSettlementTime,omitempty"`
	IdempotencyKey         string               `json:"idempotencyKey"`
}

func (ctl *Controller) InitializePayment(c *gin.Context) {
	rt := kernel.Runtime(c)
	rt.StepInto("payment_init.handler")

	var dto InitPaymentDto
	if err := rt.BindJSON(&dto); err != nil {
		rt.Fail(err)
		return
	}

	key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
	rt.Span.SetAttributes(
		attribute.KeyValue("payment.vendor_id", dto.VendorID),
		attribute.KeyValue("payment.idempotency_key", key),
	)

	res, err := ctl.payments.Initiate(rt.SpanContext, orchestrator.InitiateRequest{
		VendorID:          dto.VendorID,
		Amount:            dto.AmountSgd,
		CustomerReference: dto.CustomerReference,
		Description:       dto.Description,
		IdempotencyKey:    key,
	})
	if err != nil {
		rt.Fail(err)
		return
	}

	p := res.Payment
	out := PaymentCreated{
		PaymentID:              p.ID,
		Status:                 p.Status,
		AmountSgd:              p.SourceAmount,
		ExpectedSettlementTime: p.ExpectedSettlementTime,
		IdempotencyKey:         res.IdempotencyKey,
	}
	if !p.DestinationAmount.IsZero() {
		out.EstimatedAmountUsd = &p.DestinationAmount
	}

	status := http.StatusCreated
	if !res.Created {
		status = http.StatusOK
	}
	c.Header(IdempotencyHeader, res.IdempotencyKey)
	c.JSON(status, out)
	rt.EndBlock()
}
