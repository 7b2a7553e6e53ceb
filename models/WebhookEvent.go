package models

import "time"

type WebhookEvent struct {
	ID              string `gorm:"primaryKey;size:36" json:"id"`
	ExternalEventID string `gorm:"size:191;not null;uniqueIndex" json:"externalEventId"`
	EventType       string `gorm:"size:100;not null;index" json:"eventType"`
	Payload         string `gorm:"type:text;not null" json:"payload"`

	Processed   bool       `gorm:"not null;default:false;index" json:"processed"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`

	PaymentID     *string `gorm:"size:36;index" json:"paymentId,omitempty"`
	TransactionID *string `gorm:"size:36" json:"transactionId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
