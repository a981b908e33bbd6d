package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the single-process fallback used when Redis is disabled
// and in tests. Expiry is checked lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
}

type memoryRecord struct {
	rec       Record
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord)}
}

func (s *MemoryStore) Begin(_ context.Context, key, fingerprint string, ttl time.Duration) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if entry, ok := s.records[key]; ok && now.Before(entry.expiresAt) {
		existing := entry.rec
		return &existing, false, nil
	}

	rec := Record{
		Key:                key,
		RequestFingerprint: fingerprint,
		Status:             StatusInFlight,
		CreatedAt:          now,
	}
	s.records[key] = memoryRecord{rec: rec, expiresAt: now.Add(ttl)}
	out := rec
	return &out, true, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, transactionID string, status RecordStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.records[key]
	if !ok || !time.Now().UTC().Before(entry.expiresAt) {
		return nil
	}
	entry.rec.TransactionID = transactionID
	entry.rec.Status = status
	s.records[key] = entry
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.records[key]
	if !ok || !time.Now().UTC().Before(entry.expiresAt) {
		return nil, nil
	}
	out := entry.rec
	return &out, nil
}

// MemoryLockStore serializes bookings within one process.
type MemoryLockStore struct {
	mu    sync.Mutex
	locks map[string]time.Time
}

func NewMemoryLockStore() *MemoryLockStore {
	return &MemoryLockStore{locks: make(map[string]time.Time)}
}

func (s *MemoryLockStore) AcquireBookingLock(_ context.Context, bookingID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if expiry, held := s.locks[bookingID]; held && now.Before(expiry) {
		return false, nil
	}
	s.locks[bookingID] = now.Add(ttl)
	return true, nil
}

func (s *MemoryLockStore) ReleaseBookingLock(_ context.Context, bookingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.locks, bookingID)
	return nil
}

// Ensure concrete types implement interfaces.
var (
	_ Store     = (*MemoryStore)(nil)
	_ LockStore = (*MemoryLockStore)(nil)
)
