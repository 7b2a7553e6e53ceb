package vendors

import (
	"github.com/gin-gonic/gin"

	"git.sr.ht/~aondrejcak/payout-api/assert"
	"git.sr.ht/~aondrejcak/payout-api/ledger"
)

const recentPaymentCount = 10

type Controller struct {
	store *ledger.Store
	// currency of newly registered bank accounts when the request names none
	currency string
}

func RegisterController(rg *gin.RouterGroup, store *ledger.Store, payoutCurrency string) {
	assert.NotNil(store, "ledger store != nil")
	ctl := &Controller{store: store, currency: payoutCurrency}

	g := rg.Group("/vendors")

	g.POST("", ctl.CreateVendor)
	g.GET("", ctl.ListVendors)
	g.GET("/:id", ctl.GetVendor)
	g.PATCH("/:id/status", ctl.UpdateStatus)
}
