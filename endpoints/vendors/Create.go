package vendors

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"git.sr.ht/~aondrejcak/payout-api/faults"
	"git.sr.ht/~aondrejcak/payout-api/kernel"
	"git.sr.ht/~aondrejcak/payout-api/models"
)

var (
	accountNumberRe = regexp.MustCompile(`^\d{8,17}$`)
	routingNumberRe = regexp.MustCompile(`^\d{9}$`)
	currencyRe      = regexp.MustCompile(`^[A-Z]{3,4}$`)
)

type BankAccountDto struct {
	AccountNumber string `json:"accountNumber"`
	RoutingNumber string `json:"routingNumber"`
	BankName      string `json:"bankName"`
	AccountHolder string `json:"accountHolder"`
	Currency      string `json:"currency"`
}

func (d BankAccountDto) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.AccountNumber, validation.Required, validation.Match(accountNumberRe).Error("must be 8 to 17 digits")),
		validation.Field(&d.RoutingNumber, validation.Required, validation.Match(routingNumberRe).Error("must be 9 digits")),
		validation.Field(&d.BankName, validation.Required, validation.Length(1, 255)),
		validation.Field(&d.AccountHolder, validation.Required, validation.Length(1, 255)),
		validation.Field(&d.Currency, validation.Match(currencyRe)),
	)
}

type CreateVendorDto struct {
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	BankAccount *BankAccountDto `json:"bankAccount"`
}

func (d CreateVendorDto) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&d.Email, validation.Required, is.Email),
		validation.Field(&d.BankAccount, validation.Required),
	)
}

func (ctl *Controller) CreateVendor(c *gin.Context) {
	rt := kernel.Runtime(c)
	rt.StepInto("vendor_create.handler")

	var dto CreateVendorDto
	if err := rt.BindJSON(&dto); err != nil {
		rt.Fail(err)
		return
	}
	dto.Email = strings.ToLower(strings.TrimSpace(dto.Email))
	if dto.BankAccount != nil {
		dto.BankAccount.Currency = strings.ToUpper(strings.TrimSpace(dto.BankAccount.Currency))
	}
	if err := dto.Validate(); err != nil {
		rt.Fail(faults.Validationf("%v", err))
		return
	}

	currency := dto.BankAccount.Currency
	if currency == "" {
		currency = ctl.currency
	}
	v := &models.Vendor{
		Name:   strings.TrimSpace(dto.Name),
		Email:  dto.Email,
		Status: models.VendorActive,
		BankAccount: &models.BankAccount{
			AccountNumberMasked: models.MaskAccountNumber(dto.BankAccount.AccountNumber),
			RoutingNumber:       dto.BankAccount.RoutingNumber,
			BankName:            dto.BankAccount.BankName,
			AccountHolder:       dto.BankAccount.AccountHolder,
			Currency:            currency,
		},
	}
	if err := ctl.store.CreateVendor(rt.SpanContext, v); err != nil {
		rt.Fail(err)
		return
	}

	rt.Log.Info().Str("vendor_id", v.ID).Msg("vendor registered")
	c.JSON(http.StatusCreated, v)
	rt.EndBlock()
}
