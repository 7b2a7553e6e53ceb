package models

import "time"

// BankAccount is the payout destination of exactly one vendor. Only the masked
// account number is ever persisted.
type BankAccount struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	VendorID string `gorm:"size:36;not null;uniqueIndex" json:"-"`

	AccountNumberMasked string `gorm:"size:32;not null" json:"accountNumber"`
	RoutingNumber       string `gorm:"size:9;not null" json:"routingNumber"`
	BankName            string `gorm:"size:255;not null" json:"bankName"`
	AccountHolder       string `gorm:"size:255;not null" json:"accountHolder"`
	Currency            string `gorm:"size:8;not null" json:"currency"`

	CreatedAt time.Time `json:"createdAt"`
}

// MaskAccountNumber keeps the last four digits.
func MaskAccountNumber(number string) string {
	if len(number) <= 4 {
		return "****" + number
	}
	return "****" + number[len(number)-4:]
}
