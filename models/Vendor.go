package models

import "time"

type VendorStatus string

const (
	VendorActive    VendorStatus = "ACTIVE"
	VendorInactive  VendorStatus = "INACTIVE"
	VendorSuspended VendorStatus = "SUSPENDED"
)

var VendorStatusValues = []VendorStatus{
	VendorActive, VendorInactive, VendorSuspended,
}

func (s VendorStatus) Valid() bool {
	for _, v := range VendorStatusValues {
		if s == v {
			return true
		}
	}
	return false
}

type Vendor struct {
	ID     string       `gorm:"primaryKey;size:36" json:"id"`
	Name   string       `gorm:"size:255;not null" json:"name"`
	Email  string       `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Status VendorStatus `gorm:"size:16;not null;index" json:"status"`

	BankAccount *BankAccount `gorm:"foreignKey:VendorID" json:"bankAccount,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Payable reports whether payouts may be sent to the vendor.
func (v *Vendor) Payable() bool {
	return v.Status == VendorActive && v.BankAccount != nil
}
