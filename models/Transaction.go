package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxPaymentIn    TransactionType = "PAYMENT_IN"
	TxExchangeAToB TransactionType = "EXCHANGE_A_TO_B"
	TxExchangeBToC TransactionType = "EXCHANGE_B_TO_C"
	TxPayout       TransactionType = "PAYOUT"
)

// SettlementSequence is the ordered set of steps of a successful payment.
var SettlementSequence = []TransactionType{
	TxPaymentIn, TxExchangeAToB, TxExchangeBToC, TxPayout,
}

type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxConfirmed TransactionStatus = "CONFIRMED"
	TxFailed    TransactionStatus = "FAILED"
)

// Transaction rows are append-only; only Status, ProofHash and ConfirmedAt
// change after insert.
type Transaction struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	PaymentID string `gorm:"size:36;not null;index:idx_tx_payment_seq,priority:1" json:"paymentId"`
	Sequence  int    `gorm:"not null;index:idx_tx_payment_seq,priority:2" json:"sequence"`

	Type   TransactionType   `gorm:"size:32;not null" json:"type"`
	Status TransactionStatus `gorm:"size:16;not null" json:"status"`

	Amount      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	Currency    string          `gorm:"size:8;not null" json:"currency"`
	FeeAmount   decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"feeAmount"`
	FeeCurrency string          `gorm:"size:8;not null" json:"feeCurrency"`

	ExternalID string          `gorm:"size:128;index" json:"externalId,omitempty"`
	ProofHash  string          `gorm:"size:130" json:"proofHash,omitempty"`
	Metadata   json.RawMessage `gorm:"type:text" json:"metadata,omitempty"`

	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
	CreatedAt   time.Time  `gorm:"index" json:"createdAt"`
}
