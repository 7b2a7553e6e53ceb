package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

type Payment struct {
	ID             string  `gorm:"primaryKey;size:36" json:"id"`
	IdempotencyKey string  `gorm:"size:36;not null;uniqueIndex" json:"idempotencyKey"`
	VendorID       string  `gorm:"size:36;not null;index" json:"vendorId"`
	Vendor         *Vendor `gorm:"foreignKey:VendorID" json:"-"`

	SourceAmount        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"sourceAmount"`
	SourceCurrency      string          `gorm:"size:8;not null" json:"sourceCurrency"`
	DestinationAmount   decimal.Decimal `gorm:"type:decimal(20,8)" json:"destinationAmount"`
	DestinationCurrency string          `gorm:"size:8;not null" json:"destinationCurrency"`
	ExchangeRate        decimal.Decimal `gorm:"type:decimal(20,10)" json:"exchangeRate"`

	Status        PaymentStatus `gorm:"size:16;not null;index" json:"status"`
	FailureReason string        `gorm:"size:512" json:"failureReason,omitempty"`

	CustomerReference string `gorm:"size:255" json:"customerReference,omitempty"`
	Description       string `gorm:"size:1024" json:"description,omitempty"`

	ExpectedSettlementTime *time.Time `json:"expectedSettlementTime,omitempty"`
	ActualSettlementTime   *time.Time `json:"actualSettlementTime,omitempty"`

	Transactions []Transaction `gorm:"foreignKey:PaymentID" json:"-"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
