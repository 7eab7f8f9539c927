package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/tradevault/internal/models"
	"github.com/example/tradevault/internal/store"
	"github.com/example/tradevault/internal/utils"
)

// memPaymentStore is an in-memory PendingPayments implementation with the
// same CAS semantics as the Postgres store.
type memPaymentStore struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*models.PendingPayment
	history  []models.PaymentStatusHistory
}

func newMemPaymentStore() *memPaymentStore {
	return &memPaymentStore{payments: make(map[uuid.UUID]*models.PendingPayment)}
}

func clonePayment(p *models.PendingPayment) *models.PendingPayment {
	cp := *p
	return &cp
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
	payment.UpdatedAt = payment.CreatedAt
	m.payments[payment.ID] = clonePayment(payment)
	return nil
}

func (m *memPaymentStore) Get(ctx context.Context, id uuid.UUID) (*models.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clonePayment(p), nil
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

	next := clonePayment(p)
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now()

	if next.Status != p.Status {
		m.history = append(m.history, models.PaymentStatusHistory{
			BaseModel:  models.BaseModel{ID: uuid.New(), CreatedAt: time.Now()},
			PaymentID:  id,
			FromStatus: p.Status,
			ToStatus:   next.Status,
			ActorID:    actorID,
		})
	}

	m.payments[id] = next
	return clonePayment(next), nil
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
			matched = append(matched, *clonePayment(p))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if pg.Offset >= len(matched) {
		return nil, total, nil
	}
	end := pg.Offset + pg.Limit
	if pg.Limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[pg.Offset:end], total, nil
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

// memOffers is an in-memory Offers implementation.
type memOffers struct {
	mu     sync.Mutex
	offers map[uuid.UUID]*models.Offer
}

func newMemOffers() *memOffers {
	return &memOffers{offers: make(map[uuid.UUID]*models.Offer)}
}

func (m *memOffers) add(offer *models.Offer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	m.offers[offer.ID] = offer
}

func (m *memOffers) OfferByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	offer, ok := m.offers[id]
	if !ok {
		return nil, store.ErrOfferNotFound
	}
	cp := *offer
	return &cp, nil
}

// fakeInvoices counts generations and is idempotent per payment, matching
// the real service's unique payment_id behavior.
type fakeInvoices struct {
	mu        sync.Mutex
	generated map[uuid.UUID]*models.Invoice
	failures  int
	calls     int
}

func newFakeInvoices() *fakeInvoices {
	return &fakeInvoices{generated: make(map[uuid.UUID]*models.Invoice)}
}

func (f *fakeInvoices) GenerateForPayment(ctx context.Context, payment *models.PendingPayment) (*models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("invoice backend unavailable")
	}
	if existing, ok := f.generated[payment.ID]; ok {
		return existing, nil
	}
	invoice := &models.Invoice{
		BaseModel: models.BaseModel{ID: uuid.New()},
		Number:    fmt.Sprintf("INV-%d", len(f.generated)+1),
		PaymentID: payment.ID,
		UserID:    payment.UserID,
		OfferID:   payment.OfferID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
	}
	f.generated[payment.ID] = invoice
	return invoice, nil
}

func (f *fakeInvoices) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.generated)
}

// fakeEntitlements mirrors the real activator: idempotent per source
// payment, window length taken from the offer catalog.
type fakeEntitlements struct {
	mu        sync.Mutex
	offers    *memOffers
	activated map[uuid.UUID]*models.Entitlement
	failures  int
	calls     int
}

func newFakeEntitlements(offers *memOffers) *fakeEntitlements {
	return &fakeEntitlements{offers: offers, activated: make(map[uuid.UUID]*models.Entitlement)}
}

func (f *fakeEntitlements) Activate(ctx context.Context, userID, offerID, paymentID uuid.UUID) (*models.Entitlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("entitlement backend unavailable")
	}
	if existing, ok := f.activated[paymentID]; ok {
		return existing, nil
	}

	offer, err := f.offers.OfferByID(ctx, offerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	entitlement := &models.Entitlement{
		BaseModel:       models.BaseModel{ID: uuid.New()},
		UserID:          userID,
		OfferID:         offerID,
		SourcePaymentID: paymentID,
		StartsAt:        now,
	}
	if offer.DurationDays != nil {
		end := now.Add(time.Duration(*offer.DurationDays) * 24 * time.Hour)
		entitlement.EndsAt = &end
	}
	f.activated[paymentID] = entitlement
	return entitlement, nil
}

func (f *fakeEntitlements) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.activated)
}

func (f *fakeEntitlements) byPayment(paymentID uuid.UUID) *models.Entitlement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activated[paymentID]
}

// fakeNotifier records dispatches and can be told to fail.
type fakeNotifier struct {
	mu    sync.Mutex
	sent  []uuid.UUID
	fail  bool
	calls int
}

func (f *fakeNotifier) Send(ctx context.Context, payment *models.PendingPayment, offer *models.Offer) ([]DeliveryResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.fail {
		return []DeliveryResult{{Channel: ChannelEmail, Error: "smtp relay down"}}, false
	}
	f.sent = append(f.sent, payment.ID)
	return []DeliveryResult{{Channel: ChannelEmail, Delivered: true}}, true
}

func (f *fakeNotifier) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeNotifier) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}
