package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/tradevault/internal/models"
	"github.com/example/tradevault/internal/store"
)

// systemActor attributes fulfillment-flag writes in the audit trail.
const systemActor = "system"

// Orchestrator owns the case state machine. It validates transitions,
// serializes concurrent staff action through the store's version CAS, and
// on the first successful transition into confirmed runs the fulfillment
// saga exactly once. Only the CAS winner runs the saga; a caller that
// observes an already-confirmed case never re-runs it.
type Orchestrator struct {
	store        store.PendingPayments
	offers       store.Offers
	invoices     InvoiceGenerator
	entitlements EntitlementActivator
	notifier     NotificationDispatcher
}

// NewOrchestrator constructs Orchestrator.
func NewOrchestrator(s store.PendingPayments, offers store.Offers, invoices InvoiceGenerator, entitlements EntitlementActivator, notifier NotificationDispatcher) *Orchestrator {
	return &Orchestrator{
		store:        s,
		offers:       offers,
		invoices:     invoices,
		entitlements: entitlements,
		notifier:     notifier,
	}
}

// ConfirmParams carries a staff confirmation request.
type ConfirmParams struct {
	PaymentID       uuid.UUID
	ExpectedVersion int
	StaffID         string
	Notes           string
	// Optional staff-supplied reference; takes precedence over the
	// user-supplied one.
	TransactionReference string
}

// Confirm transitions the case to confirmed and runs the fulfillment saga.
// Confirming an already-confirmed case is an idempotent no-op so duplicate
// staff clicks and retried requests are safe. The call succeeds once the
// status transition is durable; saga-step failures after that point are
// logged and left to ResumeFulfillment, never surfaced as confirm errors.
func (o *Orchestrator) Confirm(ctx context.Context, params ConfirmParams) (*models.PendingPayment, error) {
	payment, err := o.store.Get(ctx, params.PaymentID)
	if err != nil {
		return nil, err
	}

	switch payment.Status {
	case models.StatusConfirmed:
		return payment, nil
	case models.StatusCancelled:
		return nil, ErrAlreadyCancelled
	}

	override := strings.TrimSpace(params.TransactionReference)
	if override == "" && strings.TrimSpace(payment.TransactionReference) == "" {
		return nil, ErrMissingTransactionReference
	}

	expected := params.ExpectedVersion
	for attempt := 0; ; attempt++ {
		confirmed, err := o.store.CompareAndSwap(ctx, params.PaymentID, expected, params.StaffID, func(p *models.PendingPayment) error {
			if !p.Status.CanTransitionTo(models.StatusConfirmed) {
				return ErrInvalidTransition
			}
			if override != "" {
				p.TransactionReference = override
			}
			if strings.TrimSpace(p.TransactionReference) == "" {
				return ErrMissingTransactionReference
			}
			if params.Notes != "" {
				p.StaffNotes = appendNotes(p.StaffNotes, params.Notes)
			}
			p.Status = models.StatusConfirmed
			return nil
		})
		if err == nil {
			// This caller won the CAS and owns the saga run.
			if sagaErr := o.runSaga(ctx, confirmed); sagaErr != nil {
				log.Printf("[Fulfillment] saga incomplete for payment %s: %v", confirmed.ID, sagaErr)
			}
			return o.store.Get(ctx, params.PaymentID)
		}
		if !errors.Is(err, store.ErrConcurrencyConflict) {
			return nil, err
		}

		fresh, getErr := o.store.Get(ctx, params.PaymentID)
		if getErr != nil {
			return nil, getErr
		}
		switch fresh.Status {
		case models.StatusConfirmed:
			// Another actor confirmed first; idempotent success, the
			// winner runs the saga.
			return fresh, nil
		case models.StatusCancelled:
			return nil, ErrAlreadyCancelled
		}
		if attempt > 0 {
			return nil, store.ErrConcurrencyConflict
		}
		expected = fresh.Version
	}
}

// Cancel transitions the case to cancelled. A non-empty reason is required;
// cancelling an already-cancelled case is a no-op, cancelling a confirmed
// case fails (reversal after confirmation is a refund process, not a
// transition).
func (o *Orchestrator) Cancel(ctx context.Context, paymentID uuid.UUID, expectedVersion int, staffID, reason string) (*models.PendingPayment, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}

	payment, err := o.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	switch payment.Status {
	case models.StatusCancelled:
		return payment, nil
	case models.StatusConfirmed:
		return nil, ErrAlreadyConfirmed
	}

	expected := expectedVersion
	for attempt := 0; ; attempt++ {
		cancelled, err := o.store.CompareAndSwap(ctx, paymentID, expected, staffID, func(p *models.PendingPayment) error {
			if !p.Status.CanTransitionTo(models.StatusCancelled) {
				return ErrInvalidTransition
			}
			p.StaffNotes = appendNotes(p.StaffNotes, reason)
			p.Status = models.StatusCancelled
			return nil
		})
		if err == nil {
			return cancelled, nil
		}
		if !errors.Is(err, store.ErrConcurrencyConflict) {
			return nil, err
		}

		fresh, getErr := o.store.Get(ctx, paymentID)
		if getErr != nil {
			return nil, getErr
		}
		switch fresh.Status {
		case models.StatusCancelled:
			return fresh, nil
		case models.StatusConfirmed:
			return nil, ErrAlreadyConfirmed
		}
		if attempt > 0 {
			return nil, store.ErrConcurrencyConflict
		}
		expected = fresh.Version
	}
}

// MarkContacted records the optional staff waypoint of having reached the
// user before confirming.
func (o *Orchestrator) MarkContacted(ctx context.Context, paymentID uuid.UUID, expectedVersion int, staffID string) (*models.PendingPayment, error) {
	return o.store.CompareAndSwap(ctx, paymentID, expectedVersion, staffID, func(p *models.PendingPayment) error {
		if !p.Status.CanTransitionTo(models.StatusContacted) {
			return ErrInvalidTransition
		}
		p.Status = models.StatusContacted
		return nil
	})
}

// ResumeFulfillment re-runs only the unmarked saga steps of a confirmed
// case. This is the repair path for a saga interrupted by a crash, timeout
// or downstream failure, triggered manually by staff or by a retry job.
func (o *Orchestrator) ResumeFulfillment(ctx context.Context, paymentID uuid.UUID) (*models.PendingPayment, error) {
	payment, err := o.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.StatusConfirmed {
		return nil, ErrNotConfirmed
	}
	if payment.FulfillmentComplete() {
		return payment, nil
	}

	sagaErr := o.runSaga(ctx, payment)
	latest, err := o.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return latest, sagaErr
}

// runSaga executes the outstanding fulfillment steps in order: invoice,
// entitlement, notification. Entitlement runs before notification so the
// user is never told access exists before it does. Each completed step is
// marked on the record before the next starts, so an interrupted saga
// resumes without duplicating effects.
func (o *Orchestrator) runSaga(ctx context.Context, payment *models.PendingPayment) error {
	if !payment.InvoiceGenerated {
		invoice, err := o.invoices.GenerateForPayment(ctx, payment)
		if err != nil {
			return &SagaStepError{Step: StepInvoice, Cause: err}
		}
		log.Printf("[Fulfillment] invoice %s generated for payment %s", invoice.Number, payment.ID)
		marked, err := o.markStep(ctx, payment.ID, func(p *models.PendingPayment) {
			if !p.InvoiceGenerated {
				now := time.Now()
				p.InvoiceGenerated = true
				p.InvoiceGeneratedAt = &now
			}
		})
		if err != nil {
			return &SagaStepError{Step: StepInvoice, Cause: err}
		}
		payment = marked
	}

	if !payment.EntitlementActivated {
		if _, err := o.entitlements.Activate(ctx, payment.UserID, payment.OfferID, payment.ID); err != nil {
			return &SagaStepError{Step: StepEntitlement, Cause: err}
		}
		log.Printf("[Fulfillment] entitlement activated for payment %s", payment.ID)
		marked, err := o.markStep(ctx, payment.ID, func(p *models.PendingPayment) {
			if !p.EntitlementActivated {
				now := time.Now()
				p.EntitlementActivated = true
				p.EntitlementActivatedAt = &now
			}
		})
		if err != nil {
			return &SagaStepError{Step: StepEntitlement, Cause: err}
		}
		payment = marked
	}

	if !payment.NotificationSent {
		offer, err := o.offers.OfferByID(ctx, payment.OfferID)
		if err != nil {
			log.Printf("[Fulfillment] offer lookup failed for payment %s: %v", payment.ID, err)
			offer = nil
		}
		results, delivered := o.notifier.Send(ctx, payment, offer)
		if !delivered {
			// Best effort: the case stays flagged for manual follow-up,
			// confirmation stands.
			return &SagaStepError{Step: StepNotification, Cause: deliveryError(results)}
		}
		if _, err := o.markStep(ctx, payment.ID, func(p *models.PendingPayment) {
			if !p.NotificationSent {
				now := time.Now()
				p.NotificationSent = true
				p.NotificationSentAt = &now
			}
		}); err != nil {
			return &SagaStepError{Step: StepNotification, Cause: err}
		}
	}

	return nil
}

// markStep persists a fulfillment flag through the version CAS. Conflicts
// here only mean another writer touched the record between read and write,
// so a short retry loop suffices.
func (o *Orchestrator) markStep(ctx context.Context, paymentID uuid.UUID, set func(*models.PendingPayment)) (*models.PendingPayment, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		payment, err := o.store.Get(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		updated, err := o.store.CompareAndSwap(ctx, paymentID, payment.Version, systemActor, func(p *models.PendingPayment) error {
			set(p)
			return nil
		})
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, store.ErrConcurrencyConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func deliveryError(results []DeliveryResult) error {
	for _, r := range results {
		if !r.Delivered {
			return fmt.Errorf("channel %s failed: %s", r.Channel, r.Error)
		}
	}
	return errors.New("delivery failed")
}

func appendNotes(existing, added string) string {
	added = strings.TrimSpace(added)
	if added == "" {
		return existing
	}
	if existing == "" {
		return added
	}
	return existing + "\n" + added
}
