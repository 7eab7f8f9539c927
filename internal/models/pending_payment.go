package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the lifecycle state of a pending payment case.
type PaymentStatus string

const (
	StatusPending              PaymentStatus = "pending"
	StatusTransactionSubmitted PaymentStatus = "transaction_submitted"
	StatusContacted            PaymentStatus = "contacted"
	StatusConfirmed            PaymentStatus = "confirmed"
	StatusCancelled            PaymentStatus = "cancelled"
)

// Contact methods a user can declare for off-platform follow-up.
const (
	ContactWhatsapp = "whatsapp"
	ContactTelegram = "telegram"
	ContactDiscord  = "discord"
)

// IsTerminal reports whether no further status transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

// CanTransitionTo reports whether the status graph allows moving to next.
// Statuses only move forward; terminal states never change.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case StatusTransactionSubmitted:
		return s == StatusPending
	case StatusContacted:
		return s == StatusPending || s == StatusTransactionSubmitted
	case StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// ValidContactMethod reports whether m is a known contact method.
func ValidContactMethod(m string) bool {
	switch m {
	case ContactWhatsapp, ContactTelegram, ContactDiscord:
		return true
	}
	return false
}

// PendingPayment is one out-of-band payment reconciliation case. The user
// pays off-platform and self-reports a transaction reference; staff verify
// it and confirm or cancel the case.
type PendingPayment struct {
	BaseModel
	UserID  uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	OfferID uuid.UUID `gorm:"type:uuid;index" json:"offer_id"`

	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	ContactMethod string `json:"contact_method"`
	ContactInfo   string `json:"contact_info"`

	// Contact snapshot taken at claim time, used for notification
	// targeting. Immutable after creation.
	UserEmail      string `json:"user_email"`
	TelegramHandle string `json:"telegram_handle"`

	TransactionReference string        `json:"transaction_reference"`
	Status               PaymentStatus `gorm:"index" json:"status"`
	StaffNotes           string        `json:"staff_notes"`

	// Fulfillment saga progress. Each flag moves false->true at most once.
	InvoiceGenerated       bool       `json:"invoice_generated"`
	InvoiceGeneratedAt     *time.Time `json:"invoice_generated_at"`
	EntitlementActivated   bool       `json:"entitlement_activated"`
	EntitlementActivatedAt *time.Time `json:"entitlement_activated_at"`
	NotificationSent       bool       `json:"notification_sent"`
	NotificationSentAt     *time.Time `json:"notification_sent_at"`

	// Optimistic concurrency counter, incremented on every state-changing
	// write. Writes with a stale version are rejected, never merged.
	Version int `json:"version"`
}

// FulfillmentComplete reports whether every saga step has run.
func (p *PendingPayment) FulfillmentComplete() bool {
	return p.InvoiceGenerated && p.EntitlementActivated && p.NotificationSent
}

// PaymentStatusHistory is the append-only audit trail of status changes.
// Rows are never updated or deleted.
type PaymentStatusHistory struct {
	BaseModel
	PaymentID  uuid.UUID     `gorm:"type:uuid;index" json:"payment_id"`
	FromStatus PaymentStatus `json:"from_status"`
	ToStatus   PaymentStatus `json:"to_status"`
	ActorID    string        `json:"actor_id"`
}
