package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/tradevault/internal/models"
)

// InvoiceGenerator creates the invoice record for a confirmed payment.
type InvoiceGenerator interface {
	GenerateForPayment(ctx context.Context, payment *models.PendingPayment) (*models.Invoice, error)
}

// InvoiceService is the GORM-backed InvoiceGenerator. Idempotent per
// payment: the unique payment_id index makes a second generation for the
// same case return the existing invoice instead of creating another.
type InvoiceService struct {
	db *gorm.DB
}

// NewInvoiceService constructs InvoiceService.
func NewInvoiceService(db *gorm.DB) *InvoiceService {
	return &InvoiceService{db: db}
}

// GenerateForPayment creates (or returns the existing) invoice for the case.
func (s *InvoiceService) GenerateForPayment(ctx context.Context, payment *models.PendingPayment) (*models.Invoice, error) {
	var result *models.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Invoice
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("payment_id = ?", payment.ID).
			First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		invoice := models.Invoice{
			Number:    generateInvoiceNumber(),
			PaymentID: payment.ID,
			UserID:    payment.UserID,
			OfferID:   payment.OfferID,
			Amount:    payment.Amount,
			Currency:  payment.Currency,
			Notes:     payment.StaffNotes,
		}
		if err := tx.Create(&invoice).Error; err != nil {
			return err
		}
		result = &invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func generateInvoiceNumber() string {
	return fmt.Sprintf("INV-%d", time.Now().UnixNano()%1000000000000)
}
