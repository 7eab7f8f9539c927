package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/tradevault/internal/models"
	"github.com/example/tradevault/internal/utils"
)

// OfferHandler manages the offer catalog.
type OfferHandler struct {
	db *gorm.DB
}

// NewOfferHandler constructs OfferHandler.
func NewOfferHandler(db *gorm.DB) *OfferHandler {
	return &OfferHandler{db: db}
}

// ListOffers returns paginated offers. Non-staff callers only see active
// ones.
func (h *OfferHandler) ListOffers(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Offer{})

	if c.Query("include_inactive") != "true" {
		query = query.Where("active = ?", true)
	}
	if offerType := c.Query("type"); offerType != "" {
		query = query.Where("offer_type = ?", offerType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var offers []models.Offer
	if err := query.Limit(pg.Limit).Offset(pg.Offset).Order("created_at desc").
		Find(&offers).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    offers,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetOffer returns a single offer by ID.
func (h *OfferHandler) GetOffer(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var offer models.Offer
	if err := h.db.First(&offer, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "offer not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": offer})
}

// CreateOffer persists a new offer.
func (h *OfferHandler) CreateOffer(c *fiber.Ctx) error {
	var payload models.Offer
	if err := c.BodyParser(&payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if !models.ValidOfferType(payload.OfferType) {
		return fiber.NewError(fiber.StatusBadRequest, "invalid offer_type")
	}

	if err := h.db.Create(&payload).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": payload})
}

// UpdateOffer updates an existing offer.
func (h *OfferHandler) UpdateOffer(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var offer models.Offer
	if err := h.db.First(&offer, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "offer not found")
		}
		return err
	}

	var payload models.Offer
	if err := c.BodyParser(&payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if payload.OfferType != "" && !models.ValidOfferType(payload.OfferType) {
		return fiber.NewError(fiber.StatusBadRequest, "invalid offer_type")
	}

	payload.ID = offer.ID
	if err := h.db.Model(&offer).Updates(payload).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": offer})
}

// DeactivateOffer hides an offer from new claims. Offers are never deleted;
// entitlements and invoices keep referencing them.
func (h *OfferHandler) DeactivateOffer(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	res := h.db.Model(&models.Offer{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "offer not found")
	}

	return c.SendStatus(fiber.StatusNoContent)
}
