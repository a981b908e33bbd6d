package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
	paymentpkg "github.com/tnyamukapa/rentpay/internal/payment"
)

const pgUniqueViolation = "23505"

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) Create(txn *payment.PaymentTransaction) error {
	if err := r.db.Create(txn).Error; err != nil {
		return translateUniqueViolation(err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(id string) (*payment.PaymentTransaction, error) {
	var txn payment.PaymentTransaction
	err := r.db.Where("id = ?", id).First(&txn).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &txn, nil
}

func (r *PaymentRepository) GetByIdempotencyKey(key string) (*payment.PaymentTransaction, error) {
	var txn payment.PaymentTransaction
	err := r.db.Where("idempotency_key = ?", key).First(&txn).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &txn, nil
}

func (r *PaymentRepository) GetByProviderReference(ref string) (*payment.PaymentTransaction, error) {
	var txn payment.PaymentTransaction
	err := r.db.Where("provider_reference = ?", ref).First(&txn).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &txn, nil
}

func (r *PaymentRepository) GetByBookingID(bookingID string) ([]*payment.PaymentTransaction, error) {
	var txns []*payment.PaymentTransaction
	err := r.db.Where("booking_id = ?", bookingID).Order("created_at DESC").Find(&txns).Error
	return txns, err
}

func (r *PaymentRepository) HasCompletedForBooking(bookingID string) (bool, error) {
	var count int64
	err := r.db.Model(&payment.PaymentTransaction{}).
		Where("booking_id = ? AND status = ?", bookingID, payment.StatusCompleted).
		Count(&count).Error
	return count > 0, err
}

// TransitionStatus applies the update only while the row still holds the
// expected status, so racing writers observe exactly one winner.
func (r *PaymentRepository) TransitionStatus(id string, from, to payment.TransactionStatus, update paymentpkg.StatusUpdate) error {
	updates := map[string]interface{}{
		"status": to,
	}
	if update.ProviderReference != nil {
		updates["provider_reference"] = *update.ProviderReference
	}
	if update.NextActionURL != nil {
		updates["next_action_url"] = *update.NextActionURL
	}
	if update.FailureCode != nil {
		updates["failure_code"] = *update.FailureCode
	}
	if update.FailureReason != nil {
		updates["failure_reason"] = *update.FailureReason
	}
	if update.ProcessedAt != nil {
		updates["processed_at"] = *update.ProcessedAt
	}

	res := r.db.Model(&payment.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return paymentpkg.ErrStaleTransition
	}
	return nil
}

func (r *PaymentRepository) AttachProviderAction(id, providerReference, nextActionURL string) error {
	res := r.db.Model(&payment.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, payment.StatusProcessing).
		Updates(map[string]interface{}{
			"provider_reference": providerReference,
			"next_action_url":    nextActionURL,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return paymentpkg.ErrStaleTransition
	}
	return nil
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return paymentpkg.ErrTransactionNotFound
	}
	return err
}

// translateUniqueViolation maps constraint hits onto the sentinels the
// service branches on. Postgres reports the constraint name; the SQLite
// driver used in tests only reports the column in the message.
func translateUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch {
		case strings.Contains(pgErr.ConstraintName, "booking"):
			return paymentpkg.ErrBookingActive
		case strings.Contains(pgErr.ConstraintName, "idempotency"):
			return paymentpkg.ErrKeyReused
		}
		return err
	}

	msg := err.Error()
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(msg, "UNIQUE constraint failed") {
		switch {
		case strings.Contains(msg, "booking_id"):
			return paymentpkg.ErrBookingActive
		case strings.Contains(msg, "idempotency_key"):
			return paymentpkg.ErrKeyReused
		}
	}
	return err
}

var _ paymentpkg.Repository = (*PaymentRepository)(nil)
