package handlers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/tradevault/internal/models"
	"github.com/example/tradevault/internal/services"
	"github.com/example/tradevault/internal/store"
	"github.com/example/tradevault/internal/utils"
)

// memPaymentStore mirrors the Postgres store's CAS semantics in memory.
type memPaymentStore struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*models.PendingPayment
	history  []models.PaymentStatusHistory
}

func newMemPaymentStore() *memPaymentStore {
	return &memPaymentStore{payments: make(map[uuid.UUID]*models.PendingPayment)}
}

func (m *memPaymentStore) Create(ctx context.Context, payment *models.PendingPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	payment.Status = models.StatusPending
	payment.Version = 0
	payment.CreatedAt = time.Now()
	cp := *payment
	m.payments[payment.ID] = &cp
	return nil
}

func (m *memPaymentStore) Get(ctx context.Context, id uuid.UUID) (*models.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPaymentStore) CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int, actorID string, mutate func(*models.PendingPayment) error) (*models.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if p.Version != expectedVersion {
		return nil, store.ErrConcurrencyConflict
	}

	next := *p
	if err := mutate(&next); err != nil {
		return nil, err
	}
	next.Version = expectedVersion + 1

	if next.Status != p.Status {
		m.history = append(m.history, models.PaymentStatusHistory{
			BaseModel:  models.BaseModel{ID: uuid.New(), CreatedAt: time.Now()},
			PaymentID:  id,
			FromStatus: p.Status,
			ToStatus:   next.Status,
			ActorID:    actorID,
		})
	}

	m.payments[id] = &next
	cp := next
	return &cp, nil
}

func (m *memPaymentStore) ListByStatus(ctx context.Context, statuses []models.PaymentStatus, pg utils.Pagination) ([]models.PendingPayment, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[models.PaymentStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var matched []models.PendingPayment
	for _, p := range m.payments {
		if len(wanted) == 0 || wanted[p.Status] {
			matched = append(matched, *p)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, int64(len(matched)), nil
}

func (m *memPaymentStore) History(ctx context.Context, id uuid.UUID) ([]models.PaymentStatusHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []models.PaymentStatusHistory
	for _, e := range m.history {
		if e.PaymentID == id {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// memOffers is an in-memory offer catalog.
type memOffers struct {
	offers map[uuid.UUID]*models.Offer
}

func newMemOffers() *memOffers {
	return &memOffers{offers: make(map[uuid.UUID]*models.Offer)}
}

func (m *memOffers) add(offer *models.Offer) {
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	m.offers[offer.ID] = offer
}

func (m *memOffers) OfferByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	offer, ok := m.offers[id]
	if !ok {
		return nil, store.ErrOfferNotFound
	}
	cp := *offer
	return &cp, nil
}

// stubInvoices always succeeds and counts calls.
type stubInvoices struct {
	mu    sync.Mutex
	count int
}

func (s *stubInvoices) GenerateForPayment(ctx context.Context, payment *models.PendingPayment) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return &models.Invoice{
		BaseModel: models.BaseModel{ID: uuid.New()},
		Number:    fmt.Sprintf("INV-%d", s.count),
		PaymentID: payment.ID,
	}, nil
}

// stubEntitlements always succeeds.
type stubEntitlements struct{}

func (stubEntitlements) Activate(ctx context.Context, userID, offerID, paymentID uuid.UUID) (*models.Entitlement, error) {
	return &models.Entitlement{
		BaseModel:       models.BaseModel{ID: uuid.New()},
		UserID:          userID,
		OfferID:         offerID,
		SourcePaymentID: paymentID,
		StartsAt:        time.Now(),
	}, nil
}

// stubNotifier always delivers.
type stubNotifier struct{}

func (stubNotifier) Send(ctx context.Context, payment *models.PendingPayment, offer *models.Offer) ([]services.DeliveryResult, bool) {
	return []services.DeliveryResult{{Channel: services.ChannelEmail, Delivered: true}}, true
}

// memReplayer is an in-memory idempotency cache.
type memReplayer struct {
	mu     sync.Mutex
	cached map[string][]byte
}

func newMemReplayer() *memReplayer {
	return &memReplayer{cached: make(map[string][]byte)}
}

func (m *memReplayer) Lookup(ctx context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.cached[key]
	return body, ok
}

func (m *memReplayer) Remember(ctx context.Context, key string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached[key] = body
}
