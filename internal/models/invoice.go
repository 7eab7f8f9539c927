package models

import (
	"github.com/google/uuid"
)

// Invoice records the billing document issued for a confirmed payment.
// PaymentID is unique: at most one invoice per case. Layout/rendering of
// the document itself happens outside this service.
type Invoice struct {
	BaseModel
	Number    string    `gorm:"uniqueIndex" json:"number"`
	PaymentID uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"payment_id"`
	UserID    uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	OfferID   uuid.UUID `gorm:"type:uuid" json:"offer_id"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Notes     string    `json:"notes"`
}
