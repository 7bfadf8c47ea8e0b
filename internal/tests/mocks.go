package tests

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"booking/internal/domain"
	"booking/internal/redis"
	"booking/internal/repository"
)

// ──────────────────────────────────────────────
// MEMORY STORE
// ──────────────────────────────────────────────

// MemoryStore is an in-memory repository.Store. WithinTx serialises
// transactions and restores a snapshot when fn fails, which stands in for the
// intent row lock and rollback of the postgres store.
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	intents  map[string]*domain.PaymentIntent
	bookings map[domain.BookingKind]map[string]*domain.Booking
	rides    map[domain.BookingKind]map[string]*domain.Ride

	// Counters for verification
	TxCount            int32
	RollbackCount      int32
	UpdateStatusCount  int32
	DecrementCallCount int32

	// Error injection
	DecrementError    error
	UpdateStatusError error
	ListDueErrors     map[domain.BookingKind]error
}

// NewMemoryStore creates an empty store with every booking kind registered.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		intents:       make(map[string]*domain.PaymentIntent),
		bookings:      make(map[domain.BookingKind]map[string]*domain.Booking),
		rides:         make(map[domain.BookingKind]map[string]*domain.Ride),
		ListDueErrors: make(map[domain.BookingKind]error),
	}
	for _, kind := range domain.BookingKinds {
		s.bookings[kind] = make(map[string]*domain.Booking)
		s.rides[kind] = make(map[string]*domain.Ride)
	}
	return s
}

// AddIntent stores a payment intent.
func (s *MemoryStore) AddIntent(intent *domain.PaymentIntent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *intent
	s.intents[intent.ID] = &stored
}

// AddBooking stores a booking under its kind.
func (s *MemoryStore) AddBooking(booking *domain.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *booking
	s.bookings[booking.Kind][booking.ID] = &stored
}

// AddRide stores a ride under its kind.
func (s *MemoryStore) AddRide(ride *domain.Ride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *ride
	s.rides[ride.Kind][ride.ID] = &stored
}

// GetIntent returns a copy of the intent for test assertions.
func (s *MemoryStore) GetIntent(id string) *domain.PaymentIntent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	intent, ok := s.intents[id]
	if !ok {
		return nil
	}
	stored := *intent
	return &stored
}

// GetBooking returns a copy of the booking for test assertions.
func (s *MemoryStore) GetBooking(kind domain.BookingKind, id string) *domain.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	booking, ok := s.bookings[kind][id]
	if !ok {
		return nil
	}
	stored := *booking
	return &stored
}

// GetRide returns a copy of the ride for test assertions.
func (s *MemoryStore) GetRide(kind domain.BookingKind, id string) *domain.Ride {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ride, ok := s.rides[kind][id]
	if !ok {
		return nil
	}
	stored := *ride
	return &stored
}

func (s *MemoryStore) Payments() repository.PaymentRepository {
	return &memoryPayments{store: s}
}

func (s *MemoryStore) Bookings(kind domain.BookingKind) repository.BookingRepository {
	if _, ok := s.bookings[kind]; !ok {
		return nil
	}
	return &memoryBookings{store: s, kind: kind}
}

func (s *MemoryStore) Rides(kind domain.BookingKind) repository.RideRepository {
	if _, ok := s.rides[kind]; !ok {
		return nil
	}
	return &memoryRides{store: s, kind: kind}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	atomic.AddInt32(&s.TxCount, 1)
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.snapshot()
	if err := fn(&memoryTx{MemoryStore: s}); err != nil {
		atomic.AddInt32(&s.RollbackCount, 1)
		s.restore(snapshot)
		return err
	}
	return nil
}

// memoryTx reuses the open transaction for nested WithinTx calls.
type memoryTx struct {
	*MemoryStore
}

func (t *memoryTx) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return fn(t)
}

type memorySnapshot struct {
	intents  map[string]domain.PaymentIntent
	bookings map[domain.BookingKind]map[string]domain.Booking
	rides    map[domain.BookingKind]map[string]domain.Ride
}

func (s *MemoryStore) snapshot() memorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := memorySnapshot{
		intents:  make(map[string]domain.PaymentIntent, len(s.intents)),
		bookings: make(map[domain.BookingKind]map[string]domain.Booking),
		rides:    make(map[domain.BookingKind]map[string]domain.Ride),
	}
	for id, intent := range s.intents {
		snap.intents[id] = *intent
	}
	for kind, byID := range s.bookings {
		snap.bookings[kind] = make(map[string]domain.Booking, len(byID))
		for id, b := range byID {
			snap.bookings[kind][id] = *b
		}
	}
	for kind, byID := range s.rides {
		snap.rides[kind] = make(map[string]domain.Ride, len(byID))
		for id, r := range byID {
			snap.rides[kind][id] = *r
		}
	}
	return snap
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents = make(map[string]*domain.PaymentIntent, len(snap.intents))
	for id, intent := range snap.intents {
		intent := intent
		s.intents[id] = &intent
	}
	for kind, byID := range snap.bookings {
		s.bookings[kind] = make(map[string]*domain.Booking, len(byID))
		for id, b := range byID {
			b := b
			s.bookings[kind][id] = &b
		}
	}
	for kind, byID := range snap.rides {
		s.rides[kind] = make(map[string]*domain.Ride, len(byID))
		for id, r := range byID {
			r := r
			s.rides[kind][id] = &r
		}
	}
}

// ──────────────────────────────────────────────
// MEMORY PAYMENT REPOSITORY
// ──────────────────────────────────────────────

type memoryPayments struct {
	store *MemoryStore
}

func (r *memoryPayments) Create(ctx context.Context, intent *domain.PaymentIntent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.intents {
		if existing.GatewayReference == intent.GatewayReference {
			return repository.ErrDuplicate
		}
	}
	stored := *intent
	r.store.intents[intent.ID] = &stored
	return nil
}

func (r *memoryPayments) GetByID(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	intent, ok := r.store.intents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	stored := *intent
	return &stored, nil
}

func (r *memoryPayments) GetByGatewayReference(ctx context.Context, reference string) (*domain.PaymentIntent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, intent := range r.store.intents {
		if intent.GatewayReference == reference {
			stored := *intent
			return &stored, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memoryPayments) LockByGatewayReference(ctx context.Context, reference string) (*domain.PaymentIntent, error) {
	return r.GetByGatewayReference(ctx, reference)
}

func (r *memoryPayments) MarkPaid(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.settle(id, func(intent *domain.PaymentIntent) {
		intent.Status = domain.PaymentStatusPaid
		intent.PaidAt = at
		intent.UpdatedAt = at
	})
}

func (r *memoryPayments) MarkFailed(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.settle(id, func(intent *domain.PaymentIntent) {
		intent.Status = domain.PaymentStatusFailed
		intent.FailedAt = at
		intent.UpdatedAt = at
	})
}

func (r *memoryPayments) settle(id string, apply func(*domain.PaymentIntent)) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	intent, ok := r.store.intents[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if intent.Status != domain.PaymentStatusPending {
		return false, nil
	}
	apply(intent)
	return true, nil
}

func (r *memoryPayments) ExpireStale(ctx context.Context, now time.Time, limit int) ([]repository.ExpiredIntent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var due []*domain.PaymentIntent
	for _, intent := range r.store.intents {
		if intent.Status == domain.PaymentStatusPending && !intent.ExpiresAt.IsZero() && !intent.ExpiresAt.After(now) {
			due = append(due, intent)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(due[j].ExpiresAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	expired := make([]repository.ExpiredIntent, 0, len(due))
	for _, intent := range due {
		intent.Status = domain.PaymentStatusExpired
		intent.UpdatedAt = now
		expired = append(expired, repository.ExpiredIntent{ID: intent.ID, GatewayReference: intent.GatewayReference})
	}
	return expired, nil
}

// ──────────────────────────────────────────────
// MEMORY BOOKING REPOSITORY
// ──────────────────────────────────────────────

type memoryBookings struct {
	store *MemoryStore
	kind  domain.BookingKind
}

func (r *memoryBookings) Kind() domain.BookingKind { return r.kind }

func (r *memoryBookings) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	booking, ok := r.store.bookings[r.kind][id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	stored := *booking
	return &stored, nil
}

func (r *memoryBookings) FindByBookingNumber(ctx context.Context, number string) (*domain.Booking, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, booking := range r.store.bookings[r.kind] {
		if booking.BookingNumber == number {
			stored := *booking
			return &stored, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memoryBookings) FindLatestPending(ctx context.Context, rideID, userID string) (*domain.Booking, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var latest *domain.Booking
	for _, booking := range r.store.bookings[r.kind] {
		if booking.RideID != rideID || booking.UserID != userID || booking.Status != domain.BookingStatusPending {
			continue
		}
		if latest == nil || booking.CreatedAt.After(latest.CreatedAt) {
			latest = booking
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	stored := *latest
	return &stored, nil
}

func (r *memoryBookings) UpdateStatus(ctx context.Context, id string, from, to domain.BookingStatus, change repository.StatusChange) error {
	atomic.AddInt32(&r.store.UpdateStatusCount, 1)
	if r.store.UpdateStatusError != nil {
		return r.store.UpdateStatusError
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	booking, ok := r.store.bookings[r.kind][id]
	if !ok {
		return repository.ErrNotFound
	}
	if booking.Status != from {
		return repository.ErrStatusConflict
	}
	booking.Status = to
	booking.UpdatedAt = change.At
	if booking.PaidAt.IsZero() {
		booking.PaidAt = change.PaidAt
	}
	if booking.TripStartedAt.IsZero() {
		booking.TripStartedAt = change.TripStartedAt
	}
	if booking.CompletedAt.IsZero() {
		booking.CompletedAt = change.CompletedAt
	}
	if booking.CancelledAt.IsZero() {
		booking.CancelledAt = change.CancelledAt
	}
	if booking.CancelReason == "" {
		booking.CancelReason = change.CancelReason
	}
	return nil
}

func (r *memoryBookings) StampPaidAt(ctx context.Context, id string, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	booking, ok := r.store.bookings[r.kind][id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if !booking.PaidAt.IsZero() {
		return false, nil
	}
	booking.PaidAt = at
	booking.UpdatedAt = at
	return true, nil
}

func (r *memoryBookings) ClaimCapacity(ctx context.Context, id string, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	booking, ok := r.store.bookings[r.kind][id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if !booking.CapacityAppliedAt.IsZero() {
		return false, nil
	}
	booking.CapacityAppliedAt = at
	return true, nil
}

func (r *memoryBookings) ListDueForStart(ctx context.Context, q repository.DueQuery) ([]*domain.Booking, error) {
	if err := r.store.ListDueErrors[r.kind]; err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	wanted := make(map[domain.BookingStatus]bool, len(q.Statuses))
	for _, s := range q.Statuses {
		wanted[s] = true
	}

	var due []*domain.Booking
	for _, booking := range r.store.bookings[r.kind] {
		if !wanted[booking.Status] || booking.ID <= q.AfterID {
			continue
		}
		ride, ok := r.store.rides[r.kind][booking.RideID]
		if !ok {
			continue
		}
		departure, err := ride.DepartureAt(q.Location)
		if err != nil || departure.After(q.Now) {
			continue
		}
		stored := *booking
		due = append(due, &stored)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	if q.Limit > 0 && len(due) > q.Limit {
		due = due[:q.Limit]
	}
	return due, nil
}

func (r *memoryBookings) UpdateLocation(ctx context.Context, id string, lat, lng float64, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	booking, ok := r.store.bookings[r.kind][id]
	if !ok {
		return repository.ErrNotFound
	}
	booking.LastLat = lat
	booking.LastLng = lng
	booking.LastLocationAt = at
	return nil
}

// ──────────────────────────────────────────────
// MEMORY RIDE REPOSITORY
// ──────────────────────────────────────────────

type memoryRides struct {
	store *MemoryStore
	kind  domain.BookingKind
}

func (r *memoryRides) Kind() domain.BookingKind { return r.kind }

func (r *memoryRides) DecrementCapacity(ctx context.Context, id string, n int) (int, int, error) {
	atomic.AddInt32(&r.store.DecrementCallCount, 1)
	if r.store.DecrementError != nil {
		return 0, 0, r.store.DecrementError
	}
	if !r.kind.HasCapacity() {
		return 0, 0, repository.ErrCapacityNotTracked
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	ride, ok := r.store.rides[r.kind][id]
	if !ok {
		return 0, 0, repository.ErrNotFound
	}
	before := ride.AvailableCapacity
	ride.AvailableCapacity = max(before-n, 0)
	return before, ride.AvailableCapacity, nil
}

// ──────────────────────────────────────────────
// MOCK REFERENCE LOCKER
// ──────────────────────────────────────────────

// MockReferenceLocker is a mock implementation of redis.ReferenceLocker.
type MockReferenceLocker struct {
	mu    sync.Mutex
	locks map[string]string

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error
}

// NewMockReferenceLocker creates a new mock reference locker.
func NewMockReferenceLocker() *MockReferenceLocker {
	return &MockReferenceLocker{locks: make(map[string]string)}
}

func (m *MockReferenceLocker) AcquireReferenceLock(ctx context.Context, reference string, ttl time.Duration) (string, bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return "", false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[reference]; held {
		return "", false, nil
	}
	token := uuid.NewString()
	m.locks[reference] = token
	return token, true, nil
}

func (m *MockReferenceLocker) ReleaseReferenceLock(ctx context.Context, reference, token string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[reference] == token {
		delete(m.locks, reference)
	}
	return nil
}

// Hold marks reference as locked by another instance.
func (m *MockReferenceLocker) Hold(reference string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[reference] = "held-elsewhere"
}

// IsLocked reports whether reference is currently locked.
func (m *MockReferenceLocker) IsLocked(reference string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, held := m.locks[reference]
	return held
}

// ──────────────────────────────────────────────
// MOCK PAYMENT STATUS CACHE
// ──────────────────────────────────────────────

// MockStatusCache is a mock implementation of redis.PaymentStatusCache.
type MockStatusCache struct {
	mu      sync.Mutex
	entries map[string]redis.CachedPaymentStatus

	// Counters
	HitCount        int32
	InvalidateCount int32
}

// NewMockStatusCache creates a new mock status cache.
func NewMockStatusCache() *MockStatusCache {
	return &MockStatusCache{entries: make(map[string]redis.CachedPaymentStatus)}
}

func (m *MockStatusCache) GetPaymentStatus(ctx context.Context, key string) (*redis.CachedPaymentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	atomic.AddInt32(&m.HitCount, 1)
	return &entry, nil
}

func (m *MockStatusCache) SetPaymentStatus(ctx context.Context, status *redis.CachedPaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[status.ID] = *status
	m.entries[status.GatewayReference] = *status
	return nil
}

func (m *MockStatusCache) InvalidatePaymentStatus(ctx context.Context, keys ...string) error {
	atomic.AddInt32(&m.InvalidateCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

// Has reports whether key is cached.
func (m *MockStatusCache) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

// ──────────────────────────────────────────────
// MOCK LOCATION INDEX
// ──────────────────────────────────────────────

// MockLocationIndex is a mock implementation of redis.LocationIndex.
type MockLocationIndex struct {
	mu        sync.RWMutex
	locations map[string]redis.BookingLocation

	// Counters
	UpdateLocationCallCount int32

	// Error injection
	UpdateLocationError error
}

// NewMockLocationIndex creates a new mock location index.
func NewMockLocationIndex() *MockLocationIndex {
	return &MockLocationIndex{locations: make(map[string]redis.BookingLocation)}
}

func (m *MockLocationIndex) UpdateLocation(ctx context.Context, kind, bookingID string, lat, lng float64) error {
	atomic.AddInt32(&m.UpdateLocationCallCount, 1)
	if m.UpdateLocationError != nil {
		return m.UpdateLocationError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[kind+":"+bookingID] = redis.BookingLocation{BookingID: bookingID, Lat: lat, Lng: lng}
	return nil
}

func (m *MockLocationIndex) FindNearby(ctx context.Context, kind string, lat, lng, radiusKm float64) ([]redis.BookingLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// No geo filtering; every location of the kind is returned.
	var result []redis.BookingLocation
	for key, loc := range m.locations {
		if len(key) > len(kind) && key[:len(kind)+1] == kind+":" {
			result = append(result, loc)
		}
	}
	return result, nil
}

func (m *MockLocationIndex) RemoveLocation(ctx context.Context, kind, bookingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locations, kind+":"+bookingID)
	return nil
}

// HasLocation reports whether the booking has an indexed position.
func (m *MockLocationIndex) HasLocation(kind, bookingID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.locations[kind+":"+bookingID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK NOTIFICATION SENDER
// ──────────────────────────────────────────────

// SentNotification is one call recorded by MockSender.
type SentNotification struct {
	UserID   string
	Title    string
	Body     string
	Metadata map[string]any
}

// MockSender records notifications.
type MockSender struct {
	mu   sync.Mutex
	sent []SentNotification

	// Control behavior
	Fail bool
}

// NewMockSender creates a new mock sender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) Send(ctx context.Context, userID, title, body string, metadata map[string]any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentNotification{UserID: userID, Title: title, Body: body, Metadata: metadata})
	return !m.Fail
}

// Sent returns a copy of the recorded notifications.
func (m *MockSender) Sent() []SentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentNotification, len(m.sent))
	copy(out, m.sent)
	return out
}

// Ensure mocks implement interfaces.
var (
	_ repository.Store         = (*MemoryStore)(nil)
	_ redis.ReferenceLocker    = (*MockReferenceLocker)(nil)
	_ redis.PaymentStatusCache = (*MockStatusCache)(nil)
	_ redis.LocationIndex      = (*MockLocationIndex)(nil)
)
