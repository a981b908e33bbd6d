package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RecordStatus tracks the lifecycle of one idempotent submission.
type RecordStatus string

const (
	StatusInFlight  RecordStatus = "in_flight"
	StatusCompleted RecordStatus = "completed"
	StatusFailed    RecordStatus = "failed"
)

// Record is what a key resolves to inside the dedupe window. The
// fingerprint pins the key to one request body so a reused key with a
// different payload is rejected instead of silently replayed.
type Record struct {
	Key                string       `json:"key"`
	RequestFingerprint string       `json:"request_fingerprint"`
	TransactionID      string       `json:"transaction_id,omitempty"`
	Status             RecordStatus `json:"status"`
	CreatedAt          time.Time    `json:"created_at"`
}

// Store claims and resolves idempotency keys. Implementations must make
// Begin atomic: exactly one caller wins a fresh key, every other caller
// sees the existing record.
type Store interface {
	// Begin claims key for fingerprint. created reports whether this call
	// claimed it; when false the returned record is the existing claim.
	Begin(ctx context.Context, key, fingerprint string, ttl time.Duration) (rec *Record, created bool, err error)
	// Complete stores the terminal outcome under the key, preserving the
	// remaining window.
	Complete(ctx context.Context, key, transactionID string, status RecordStatus) error
	// Release abandons a claim that never reached the provider, so an
	// identical retry may run instead of replaying nothing.
	Release(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (*Record, error)
}

// LockStore serializes submissions per booking so one booking never has
// two transactions in processing at once.
type LockStore interface {
	AcquireBookingLock(ctx context.Context, bookingID string, ttl time.Duration) (bool, error)
	ReleaseBookingLock(ctx context.Context, bookingID string) error
}

// Fingerprint hashes the canonical request payload for mismatch detection.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
