package postgres

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/refund"
	refundpkg "github.com/tnyamukapa/rentpay/internal/refund"
)

type RefundRepository struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) *RefundRepository {
	return &RefundRepository{
		db: db,
	}
}

func (r *RefundRepository) Create(ref *refund.Refund) error {
	return r.db.Create(ref).Error
}

func (r *RefundRepository) GetByID(id string) (*refund.Refund, error) {
	var ref refund.Refund
	err := r.db.Where("id = ?", id).First(&ref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, refundpkg.ErrRefundNotFound
		}
		return nil, err
	}
	return &ref, nil
}

func (r *RefundRepository) ListByTransactionID(transactionID string) ([]*refund.Refund, error) {
	var refs []*refund.Refund
	err := r.db.Where("transaction_id = ?", transactionID).Order("created_at DESC").Find(&refs).Error
	return refs, err
}

// Reserve claims amount against the transaction's remaining balance in a
// single guarded update. The predicate re-checks status and balance so
// concurrent refunds serialize on the row: the loser affects zero rows.
func (r *RefundRepository) Reserve(transactionID string, amount decimal.Decimal) error {
	res := r.db.Model(&payment.PaymentTransaction{}).
		Where("id = ? AND status = ? AND refund_amount + ? <= total_amount", transactionID, payment.StatusCompleted, amount).
		Update("refund_amount", gorm.Expr("refund_amount + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return refundpkg.ErrReservationDenied
	}
	return nil
}

// Release hands a reservation back after a provider refusal.
func (r *RefundRepository) Release(transactionID string, amount decimal.Decimal) error {
	res := r.db.Model(&payment.PaymentTransaction{}).
		Where("id = ? AND refund_amount - ? >= 0", transactionID, amount).
		Update("refund_amount", gorm.Expr("refund_amount - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("release would drive refund_amount negative")
	}
	return nil
}

func (r *RefundRepository) MarkCompleted(refundID, providerRefundID string, processedAt time.Time) error {
	return r.db.Model(&refund.Refund{}).
		Where("id = ? AND status = ?", refundID, refund.StatusPending).
		Updates(map[string]interface{}{
			"status":             refund.StatusCompleted,
			"provider_refund_id": providerRefundID,
			"processed_at":       processedAt,
		}).Error
}

func (r *RefundRepository) MarkFailed(refundID, failureReason string) error {
	return r.db.Model(&refund.Refund{}).
		Where("id = ? AND status = ?", refundID, refund.StatusPending).
		Updates(map[string]interface{}{
			"status":         refund.StatusFailed,
			"failure_reason": failureReason,
		}).Error
}

var _ refundpkg.Repository = (*RefundRepository)(nil)
