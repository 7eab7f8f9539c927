package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/tradevault/internal/models"
	"github.com/example/tradevault/internal/utils"
)

// AdminHandler serves the back-office dashboard endpoints.
type AdminHandler struct {
	db *gorm.DB
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{db: db}
}

// DashboardStats returns aggregate reconciliation statistics.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	type statusCount struct {
		Status string `json:"status"`
		Count  int64  `json:"count"`
	}
	var statusCounts []statusCount
	if err := h.db.Model(&models.PendingPayment{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return err
	}

	casesByStatus := make(map[string]int64)
	for _, sc := range statusCounts {
		casesByStatus[sc.Status] = sc.Count
	}

	// Confirmed revenue by currency; amounts are claimed in mixed
	// currencies so a single total would be meaningless.
	type revenueRow struct {
		Currency string  `json:"currency"`
		Total    float64 `json:"total"`
	}
	var revenue []revenueRow
	if err := h.db.Model(&models.PendingPayment{}).
		Where("status = ?", models.StatusConfirmed).
		Select("currency, COALESCE(SUM(amount), 0) as total").
		Group("currency").
		Scan(&revenue).Error; err != nil {
		return err
	}

	var incompleteFulfillment int64
	if err := h.db.Model(&models.PendingPayment{}).
		Where("status = ? AND NOT (invoice_generated AND entitlement_activated AND notification_sent)", models.StatusConfirmed).
		Count(&incompleteFulfillment).Error; err != nil {
		return err
	}

	var oldestOpen *models.PendingPayment
	var oldest models.PendingPayment
	err := h.db.
		Where("status IN ?", []models.PaymentStatus{models.StatusPending, models.StatusTransactionSubmitted, models.StatusContacted}).
		Order("created_at asc").
		First(&oldest).Error
	if err == nil {
		oldestOpen = &oldest
	} else if err != gorm.ErrRecordNotFound {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"cases_by_status":        casesByStatus,
			"confirmed_revenue":      revenue,
			"incomplete_fulfillment": incompleteFulfillment,
			"oldest_open_case":       oldestOpen,
		},
	})
}

// ListIncompleteFulfillment returns confirmed cases whose saga has not
// completed, for the manual follow-up view.
func (h *AdminHandler) ListIncompleteFulfillment(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	query := h.db.Model(&models.PendingPayment{}).
		Where("status = ? AND NOT (invoice_generated AND entitlement_activated AND notification_sent)", models.StatusConfirmed)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var payments []models.PendingPayment
	if err := query.
		Order("updated_at asc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&payments).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    payments,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}
