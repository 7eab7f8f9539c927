package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/tradevault/internal/cache"
	"github.com/example/tradevault/internal/middleware"
	"github.com/example/tradevault/internal/models"
	"github.com/example/tradevault/internal/services"
	"github.com/example/tradevault/internal/store"
	"github.com/example/tradevault/internal/utils"
)

// PaymentHandler is the boundary the back-office UI and the claim form talk
// to. It enforces role checks and idempotent request handling, and
// translates UI calls into orchestrator operations carrying the version the
// UI last observed.
type PaymentHandler struct {
	store        store.PendingPayments
	offers       store.Offers
	orchestrator *services.Orchestrator
	verifier     *services.TransactionVerifier
	replayer     cache.Replayer
}

// NewPaymentHandler constructs PaymentHandler. replayer may be nil; the
// CAS and terminal-state no-ops already make confirm/cancel retry-safe.
func NewPaymentHandler(s store.PendingPayments, offers store.Offers, orchestrator *services.Orchestrator, verifier *services.TransactionVerifier, replayer cache.Replayer) *PaymentHandler {
	return &PaymentHandler{
		store:        s,
		offers:       offers,
		orchestrator: orchestrator,
		verifier:     verifier,
		replayer:     replayer,
	}
}

type createClaimRequest struct {
	OfferID        string  `json:"offer_id"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	ContactMethod  string  `json:"contact_method"`
	ContactInfo    string  `json:"contact_info"`
	UserEmail      string  `json:"user_email"`
	TelegramHandle string  `json:"telegram_handle"`
}

// CreateClaim lets an authenticated user report an out-of-band payment and
// open a reconciliation case.
func (h *PaymentHandler) CreateClaim(c *fiber.Ctx) error {
	actor, ok := middleware.GetCurrentActor(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	offerID, err := uuid.Parse(req.OfferID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid offer_id")
	}
	if req.Amount <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid amount")
	}
	if !models.ValidContactMethod(req.ContactMethod) {
		return fiber.NewError(fiber.StatusBadRequest, "invalid contact_method")
	}

	offer, err := h.offers.OfferByID(c.Context(), offerID)
	if err != nil {
		if errors.Is(err, store.ErrOfferNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "offer not found")
		}
		return err
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = offer.Currency
	}

	payment := models.PendingPayment{
		UserID:         actor.ID,
		OfferID:        offer.ID,
		Amount:         req.Amount,
		Currency:       currency,
		ContactMethod:  req.ContactMethod,
		ContactInfo:    req.ContactInfo,
		UserEmail:      req.UserEmail,
		TelegramHandle: req.TelegramHandle,
	}

	if err := h.store.Create(c.Context(), &payment); err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    payment,
	})
}

type attachReferenceRequest struct {
	TransactionReference string `json:"transaction_reference"`
}

// AttachReference lets the claiming user record the transaction reference
// they paid with.
func (h *PaymentHandler) AttachReference(c *fiber.Ctx) error {
	actor, ok := middleware.GetCurrentActor(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	payment, err := h.store.Get(c.Context(), id)
	if err != nil {
		return mapWorkflowError(err)
	}
	if payment.UserID != actor.ID && !actor.IsStaff() {
		return fiber.NewError(fiber.StatusForbidden, "not your payment")
	}

	var req attachReferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updated, err := h.verifier.AttachUserReference(c.Context(), id, req.TransactionReference)
	if err != nil {
		return mapWorkflowError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": updated})
}

// ListQueue returns the staff reconciliation queue, oldest case first.
func (h *PaymentHandler) ListQueue(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	var statuses []models.PaymentStatus
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, models.PaymentStatus(strings.TrimSpace(s)))
		}
	}

	payments, total, err := h.store.ListByStatus(c.Context(), statuses, pg)
	if err != nil {
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

// GetPayment returns one case with its audit history.
func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	payment, err := h.store.Get(c.Context(), id)
	if err != nil {
		return mapWorkflowError(err)
	}

	history, err := h.store.History(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    payment,
		"history": history,
	})
}

type confirmRequest struct {
	ExpectedVersion      int    `json:"expected_version"`
	Notes                string `json:"notes"`
	TransactionReference string `json:"transaction_reference"`
}

// Confirm applies the staff confirmation. Safe to retry: duplicate clicks
// land on an already-confirmed case and no-op, and an Idempotency-Key
// header replays the first response verbatim.
func (h *PaymentHandler) Confirm(c *fiber.Ctx) error {
	actor, _ := middleware.GetCurrentActor(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req confirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if replayed := h.replay(c); replayed {
		return nil
	}

	payment, err := h.orchestrator.Confirm(c.Context(), services.ConfirmParams{
		PaymentID:            id,
		ExpectedVersion:      req.ExpectedVersion,
		StaffID:              actor.ID.String(),
		Notes:                req.Notes,
		TransactionReference: req.TransactionReference,
	})
	if err != nil {
		return mapWorkflowError(err)
	}

	return h.remember(c, fiber.Map{"success": true, "data": payment})
}

type cancelRequest struct {
	ExpectedVersion int    `json:"expected_version"`
	Reason          string `json:"reason"`
}

// Cancel applies the staff cancellation. The case is retained for audit.
func (h *PaymentHandler) Cancel(c *fiber.Ctx) error {
	actor, _ := middleware.GetCurrentActor(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req cancelRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if replayed := h.replay(c); replayed {
		return nil
	}

	payment, err := h.orchestrator.Cancel(c.Context(), id, req.ExpectedVersion, actor.ID.String(), req.Reason)
	if err != nil {
		return mapWorkflowError(err)
	}

	return h.remember(c, fiber.Map{"success": true, "data": payment})
}

type contactedRequest struct {
	ExpectedVersion int `json:"expected_version"`
}

// MarkContacted records that staff reached the user before confirming.
func (h *PaymentHandler) MarkContacted(c *fiber.Ctx) error {
	actor, _ := middleware.GetCurrentActor(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req contactedRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	payment, err := h.orchestrator.MarkContacted(c.Context(), id, req.ExpectedVersion, actor.ID.String())
	if err != nil {
		return mapWorkflowError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": payment})
}

// ResumeFulfillment re-runs the outstanding fulfillment steps of a
// confirmed case; the manual "retry fulfillment" action.
func (h *PaymentHandler) ResumeFulfillment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	payment, err := h.orchestrator.ResumeFulfillment(c.Context(), id)
	if err != nil {
		var stepErr *services.SagaStepError
		if errors.As(err, &stepErr) {
			// The confirmation stands; report which step is outstanding.
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"success":      false,
				"data":         payment,
				"failed_step":  stepErr.Step,
				"error_detail": stepErr.Cause.Error(),
			})
		}
		return mapWorkflowError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": payment})
}

// replay answers the request from the idempotency cache when possible.
func (h *PaymentHandler) replay(c *fiber.Ctx) bool {
	if h.replayer == nil {
		return false
	}
	key := strings.TrimSpace(c.Get("Idempotency-Key"))
	if key == "" {
		return false
	}
	body, ok := h.replayer.Lookup(c.Context(), key)
	if !ok {
		return false
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	_ = c.Send(body)
	return true
}

// remember sends the response and caches it under the idempotency key.
func (h *PaymentHandler) remember(c *fiber.Ctx, payload fiber.Map) error {
	if err := c.JSON(payload); err != nil {
		return err
	}
	if h.replayer != nil {
		if key := strings.TrimSpace(c.Get("Idempotency-Key")); key != "" {
			body := make([]byte, len(c.Response().Body()))
			copy(body, c.Response().Body())
			h.replayer.Remember(c.Context(), key, body)
		}
	}
	return nil
}

// mapWorkflowError translates store/service errors into HTTP statuses.
func mapWorkflowError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "pending payment not found")
	case errors.Is(err, store.ErrConcurrencyConflict):
		return fiber.NewError(fiber.StatusConflict, "version conflict, refresh and retry")
	case errors.Is(err, services.ErrAlreadyConfirmed):
		return fiber.NewError(fiber.StatusConflict, "payment already confirmed")
	case errors.Is(err, services.ErrAlreadyCancelled):
		return fiber.NewError(fiber.StatusConflict, "payment already cancelled")
	case errors.Is(err, services.ErrMissingTransactionReference):
		return fiber.NewError(fiber.StatusUnprocessableEntity, "no transaction reference on record")
	case errors.Is(err, services.ErrReasonRequired):
		return fiber.NewError(fiber.StatusBadRequest, "cancellation reason is required")
	case errors.Is(err, services.ErrInvalidTransition):
		return fiber.NewError(fiber.StatusConflict, "invalid status transition")
	case errors.Is(err, services.ErrNotConfirmed):
		return fiber.NewError(fiber.StatusConflict, "payment is not confirmed")
	}
	return err
}
