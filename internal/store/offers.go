package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/tradevault/internal/models"
)

// ErrOfferNotFound means no offer exists with the given id.
var ErrOfferNotFound = errors.New("offer not found")

// Offers is the read side of the offer catalog consumed by fulfillment.
type Offers interface {
	OfferByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
}

// GormOffers is the Postgres-backed Offers implementation.
type GormOffers struct {
	db *gorm.DB
}

// NewGormOffers constructs GormOffers.
func NewGormOffers(db *gorm.DB) *GormOffers {
	return &GormOffers{db: db}
}

// OfferByID returns the offer with the given id.
func (s *GormOffers) OfferByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	if err := s.db.WithContext(ctx).First(&offer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOfferNotFound
		}
		return nil, err
	}
	return &offer, nil
}
