package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// idempotencyRow is the persisted form of Record plus the absolute expiry
// the dedupe window resolves to.
type idempotencyRow struct {
	Key                string    `gorm:"column:key;primaryKey"`
	RequestFingerprint string    `gorm:"column:request_fingerprint;not null"`
	TransactionID      string    `gorm:"column:transaction_id"`
	Status             string    `gorm:"column:status;not null;default:'in_flight'"`
	CreatedAt          time.Time `gorm:"column:created_at"`
	ExpiresAt          time.Time `gorm:"column:expires_at;index"`
}

func (idempotencyRow) TableName() string {
	return "idempotency_records"
}

func (r idempotencyRow) toRecord() *Record {
	return &Record{
		Key:                r.Key,
		RequestFingerprint: r.RequestFingerprint,
		TransactionID:      r.TransactionID,
		Status:             RecordStatus(r.Status),
		CreatedAt:          r.CreatedAt,
	}
}

// PostgresStore keeps idempotency records in the relational store, so
// replay protection survives process restarts without a Redis deployment.
// Claims race through the primary key: the insert either lands or loses.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Begin(ctx context.Context, key, fingerprint string, ttl time.Duration) (*Record, bool, error) {
	now := time.Now().UTC()
	row := idempotencyRow{
		Key:                key,
		RequestFingerprint: fingerprint,
		Status:             string(StatusInFlight),
		CreatedAt:          now,
		ExpiresAt:          now.Add(ttl),
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, false, fmt.Errorf("claim idempotency key: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return row.toRecord(), true, nil
	}

	// The key exists. If its window has lapsed the row is dead weight and
	// this caller may take it over; the expires_at guard lets exactly one
	// writer through.
	res = s.db.WithContext(ctx).Model(&idempotencyRow{}).
		Where("key = ? AND expires_at <= ?", key, now).
		Updates(map[string]interface{}{
			"request_fingerprint": fingerprint,
			"transaction_id":      "",
			"status":              string(StatusInFlight),
			"created_at":          now,
			"expires_at":          now.Add(ttl),
		})
	if res.Error != nil {
		return nil, false, fmt.Errorf("reclaim expired idempotency key: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return row.toRecord(), true, nil
	}

	existing, err := s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// the prior claim was released between insert and read; claim again
		return s.Begin(ctx, key, fingerprint, ttl)
	}
	return existing, false, nil
}

func (s *PostgresStore) Complete(ctx context.Context, key, transactionID string, status RecordStatus) error {
	res := s.db.WithContext(ctx).Model(&idempotencyRow{}).
		Where("key = ? AND expires_at > ?", key, time.Now().UTC()).
		Updates(map[string]interface{}{
			"transaction_id": transactionID,
			"status":         string(status),
		})
	if res.Error != nil {
		return fmt.Errorf("store idempotency outcome: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("idempotency key %s expired before completion", key)
	}
	return nil
}

func (s *PostgresStore) Release(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&idempotencyRow{}).Error; err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Record, error) {
	var row idempotencyRow
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	if !time.Now().UTC().Before(row.ExpiresAt) {
		return nil, nil
	}
	return row.toRecord(), nil
}

// PurgeExpired removes rows whose window has lapsed. The escrow worker
// runs it alongside the release sweep; Begin also reclaims expired rows
// in place, so purging is maintenance, not correctness.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now().UTC()).
		Delete(&idempotencyRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge idempotency records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

var _ Store = (*PostgresStore)(nil)
