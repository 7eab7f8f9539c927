package models

import (
	"time"

	"github.com/google/uuid"
)

// Entitlement is a user's granted access window to a purchased offer.
// SourcePaymentID is unique so the same confirmed payment can never grant
// access twice.
type Entitlement struct {
	BaseModel
	UserID          uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	OfferID         uuid.UUID `gorm:"type:uuid;index" json:"offer_id"`
	SourcePaymentID uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"source_payment_id"`
	StartsAt        time.Time `json:"starts_at"`
	// Nil means unlimited access.
	EndsAt *time.Time `json:"ends_at"`
}

// ActiveAt reports whether the entitlement covers the given instant.
func (e *Entitlement) ActiveAt(t time.Time) bool {
	if t.Before(e.StartsAt) {
		return false
	}
	return e.EndsAt == nil || t.Before(*e.EndsAt)
}
