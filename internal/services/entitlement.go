package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/tradevault/internal/models"
)

// EntitlementActivator grants or extends a user's access window for a
// purchased offer.
type EntitlementActivator interface {
	Activate(ctx context.Context, userID, offerID, paymentID uuid.UUID) (*models.Entitlement, error)
}

// EntitlementService is the GORM-backed EntitlementActivator. The unique
// source_payment_id index makes a repeated activation for the same payment
// return the existing grant instead of creating a second one.
type EntitlementService struct {
	db *gorm.DB
}

// NewEntitlementService constructs EntitlementService.
func NewEntitlementService(db *gorm.DB) *EntitlementService {
	return &EntitlementService{db: db}
}

// Activate grants access for the offer's configured duration (unlimited if
// none). An existing live window for the same user and offer is extended
// from its current end rather than restarted, so stacked purchases add up.
func (s *EntitlementService) Activate(ctx context.Context, userID, offerID, paymentID uuid.UUID) (*models.Entitlement, error) {
	var result *models.Entitlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Entitlement
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("source_payment_id = ?", paymentID).
			First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var offer models.Offer
		if err := tx.First(&offer, "id = ?", offerID).Error; err != nil {
			return err
		}

		now := time.Now()
		entitlement := models.Entitlement{
			UserID:          userID,
			OfferID:         offerID,
			SourcePaymentID: paymentID,
			StartsAt:        now,
		}

		if offer.DurationDays != nil {
			start := now
			var current models.Entitlement
			err := tx.Where("user_id = ? AND offer_id = ? AND (ends_at IS NULL OR ends_at > ?)", userID, offerID, now).
				Order("ends_at desc").
				First(&current).Error
			if err == nil && current.EndsAt != nil {
				start = *current.EndsAt
			} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			end := start.Add(time.Duration(*offer.DurationDays) * 24 * time.Hour)
			entitlement.StartsAt = start
			entitlement.EndsAt = &end
		}

		if err := tx.Create(&entitlement).Error; err != nil {
			return err
		}
		result = &entitlement
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
