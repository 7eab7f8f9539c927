package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/example/tradevault/internal/models"
	"github.com/example/tradevault/internal/store"
)

// TransactionVerifier records user-supplied transaction references on a
// case. Verification against the external ledger is manual: staff eyeball
// the reference in the confirm dialog. No automated lookup exists here.
type TransactionVerifier struct {
	store store.PendingPayments
}

// NewTransactionVerifier constructs TransactionVerifier.
func NewTransactionVerifier(s store.PendingPayments) *TransactionVerifier {
	return &TransactionVerifier{store: s}
}

// AttachUserReference records the reference the user claims to have paid
// with. Allowed only while the case is in pending or transaction_submitted;
// a re-submission overwrites the previous reference (latest wins) without
// re-triggering notifications.
func (v *TransactionVerifier) AttachUserReference(ctx context.Context, paymentID uuid.UUID, reference string) (*models.PendingPayment, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrMissingTransactionReference
	}

	payment, err := v.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		updated, err := v.store.CompareAndSwap(ctx, paymentID, payment.Version, payment.UserID.String(), func(p *models.PendingPayment) error {
			if p.Status != models.StatusPending && p.Status != models.StatusTransactionSubmitted {
				return ErrInvalidTransition
			}
			p.TransactionReference = reference
			if p.Status == models.StatusPending {
				p.Status = models.StatusTransactionSubmitted
			}
			return nil
		})
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, store.ErrConcurrencyConflict) || attempt > 0 {
			return nil, err
		}
		// One retry against the latest version, then surface the conflict.
		if payment, err = v.store.Get(ctx, paymentID); err != nil {
			return nil, err
		}
	}
}
