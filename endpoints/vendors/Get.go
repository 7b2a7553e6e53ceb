package vendors

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"git.sr.ht/~aondrejcak/payout-api/faults"
	"git.sr.ht/~aondrejcak/payout-api/kernel"
	"git.sr.ht/~aondrejcak/payout-api/models"
)

type VendorDetail struct {
	*models.Vendor
	RecentPayments []models.Payment `json:"recentPayments"`
}

func (ctl *Controller) GetVendor(c *gin.Context) {
	rt := kernel.Runtime(c)
	rt.StepInto("vendor_get.handler")

	v, err := ctl.store.FindVendor(rt.SpanContext, c.Param("id"))
	if err != nil {
		rt.Fail(err)
		return
	}

	recent, err := ctl.store.RecentPayments(rt.SpanContext, v.ID, recentPaymentCount)
	if err != nil {
		rt.Fail(err)
		return
	}
	if recent == nil {
		recent = []models.Payment{}
	}

	c.JSON(http.StatusOK, VendorDetail{Vendor: v, RecentPayments: recent})
	rt.EndBlock()
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

func queryInt(c *gin.Context, key string, def, min, max int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, faults.Validationf("%s must be an integer between %d and %d", key, min, max)
	}
	return n, nil
}

func (ctl *Controller) ListVendors(c *gin.Context) {
	rt := kernel.Runtime(c)
	rt.StepInto("vendor_list.handler")

	page, err := queryInt(c, "page", 1, 1, math.MaxInt32)
	if err != nil {
		rt.Fail(err)
		return
	}
	limit, err := queryInt(c, "limit", 20, 1, 100)
	if err != nil {
		rt.Fail(err)
		return
	}

	list, total, err := ctl.store.ListVendors(rt.SpanContext, page, limit)
	if err != nil {
		rt.Fail(err)
		return
	}
	if list == nil {
		list = []models.Vendor{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": list,
		"pagination": Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: int((total + int64(limit) - 1) / int64(limit)),
		},
	})
	rt.EndBlock()
}
