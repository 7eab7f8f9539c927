package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/tradevault/internal/models"
	"github.com/example/tradevault/internal/utils"
)

var (
	// ErrNotFound means no payment exists with the given id.
	ErrNotFound = errors.New("pending payment not found")
	// ErrConcurrencyConflict means the stored version no longer matches
	// the version the caller read. The caller must re-read and retry or
	// abort; the write was not applied.
	ErrConcurrencyConflict = errors.New("pending payment version conflict")
)

// PendingPayments is the durable, versioned store of reconciliation cases.
// All mutation goes through CompareAndSwap; nothing else may write a case.
type PendingPayments interface {
	Create(ctx context.Context, payment *models.PendingPayment) error
	Get(ctx context.Context, id uuid.UUID) (*models.PendingPayment, error)
	// CompareAndSwap applies mutate to the stored record only if its
	// version equals expectedVersion, bumping the version on success. A
	// status change appends an immutable history entry attributed to
	// actorID.
	CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int, actorID string, mutate func(*models.PendingPayment) error) (*models.PendingPayment, error)
	// ListByStatus returns cases in the given statuses ordered oldest
	// first, so the staff queue triages FIFO.
	ListByStatus(ctx context.Context, statuses []models.PaymentStatus, pg utils.Pagination) ([]models.PendingPayment, int64, error)
	History(ctx context.Context, id uuid.UUID) ([]models.PaymentStatusHistory, error)
}

// GormStore is the Postgres-backed PendingPayments implementation.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Create inserts a new case with status pending and version 0.
func (s *GormStore) Create(ctx context.Context, payment *models.PendingPayment) error {
	payment.Status = models.StatusPending
	payment.Version = 0
	return s.db.WithContext(ctx).Create(payment).Error
}

// Get returns the latest stored state of a case.
func (s *GormStore) Get(ctx context.Context, id uuid.UUID) (*models.PendingPayment, error) {
	var payment models.PendingPayment
	if err := s.db.WithContext(ctx).First(&payment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// CompareAndSwap implements the optimistic-concurrency write. The guarded
// UPDATE carries the version predicate so a concurrent writer can never be
// silently overwritten.
func (s *GormStore) CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int, actorID string, mutate func(*models.PendingPayment) error) (*models.PendingPayment, error) {
	var result *models.PendingPayment

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.PendingPayment
		if err := tx.First(&payment, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if payment.Version != expectedVersion {
			return ErrConcurrencyConflict
		}

		fromStatus := payment.Status
		if err := mutate(&payment); err != nil {
			return err
		}

		res := tx.Model(&models.PendingPayment{}).
			Where("id = ? AND version = ?", id, expectedVersion).
			Updates(map[string]any{
				"transaction_reference":    payment.TransactionReference,
				"status":                   payment.Status,
				"staff_notes":              payment.StaffNotes,
				"invoice_generated":        payment.InvoiceGenerated,
				"invoice_generated_at":     payment.InvoiceGeneratedAt,
				"entitlement_activated":    payment.EntitlementActivated,
				"entitlement_activated_at": payment.EntitlementActivatedAt,
				"notification_sent":        payment.NotificationSent,
				"notification_sent_at":     payment.NotificationSentAt,
				"version":                  expectedVersion + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrencyConflict
		}

		payment.Version = expectedVersion + 1

		if payment.Status != fromStatus {
			entry := models.PaymentStatusHistory{
				PaymentID:  payment.ID,
				FromStatus: fromStatus,
				ToStatus:   payment.Status,
				ActorID:    actorID,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}

		result = &payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ListByStatus returns the staff queue, oldest first.
func (s *GormStore) ListByStatus(ctx context.Context, statuses []models.PaymentStatus, pg utils.Pagination) ([]models.PendingPayment, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.PendingPayment{})
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []models.PendingPayment
	if err := query.
		Order("created_at asc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&payments).Error; err != nil {
		return nil, 0, err
	}

	return payments, total, nil
}

// History returns the audit trail for a case, oldest entry first.
func (s *GormStore) History(ctx context.Context, id uuid.UUID) ([]models.PaymentStatusHistory, error) {
	var entries []models.PaymentStatusHistory
	if err := s.db.WithContext(ctx).
		Where("payment_id = ?", id).
		Order("created_at asc").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
