package vendors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"

	"git.sr.ht/~aondrejcak/payout-api/faults"
	"git.sr.ht/~aondrejcak/payout-api/kernel"
	"git.sr.ht/~aondrejcak/payout-api/models"
)

type UpdateStatusDto struct {
	Status models.VendorStatus `json:"status"`
}

func (d UpdateStatusDto) Validate() error {
	allowed := make([]interface{}, len(models.VendorStatusValues))
	for i, s := range models.VendorStatusValues {
		allowed[i] = s
	}
	return validation.ValidateStruct(&d,
		validation.Field(&d.Status, validation.Required, validation.In(allowed...)),
	)
}

func (ctl *Controller) UpdateStatus(c *gin.Context) {
	rt := kernel.Runtime(c)
	rt.StepInto("vendor_status.handler")

	var dto UpdateStatusDto
	if err := rt.BindJSON(&dto); err != nil {
		rt.Fail(err)
		return
	}
	if err := dto.Validate(); err != nil {
		rt.Fail(faults.Validationf("%v (options: %v)", err, models.VendorStatusValues))
		return
	}

	v, err := ctl.store.UpdateVendorStatus(rt.SpanContext, c.Param("id"), dto.Status)
	if err != nil {
		rt.Fail(err)
		return
	}

	rt.Log.Info().Str("vendor_id", v.ID).Str("status", string(v.Status)).Msg("vendor status updated")
	c.JSON(http.StatusOK, v)
	rt.EndBlock()
}
