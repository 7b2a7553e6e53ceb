package payments

import (
	"github.com/gin-gonic/gin"

	"git.sr.ht/~aondrejcak/payout-api/assert"
	"git.sr.ht/~aondrejcak/payout-api/orchestrator"
)

type Controller struct {
	payments *orchestrator.Service
}

func RegisterController(rg *gin.RouterGroup, svc *orchestrator.Service) {
	assert.NotNil(svc, "payment service != nil")
	ctl := &Controller{payments: svc}

	g := rg.Group("/payments")

	g.POST("", ctl.InitializePayment)
	g.POST("/generate-idempotency-key", ctl.GenerateIdempotencyKey)
	g.GET("/:id", ctl.PaymentStatus)
}
