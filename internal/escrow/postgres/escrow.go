package postgres

import (
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/tnyamukapa/rentpay/internal/core/datamodel/escrow"
	escrowpkg "github.com/tnyamukapa/rentpay/internal/escrow"
)

const pgUniqueViolation = "23505"

type EscrowRepository struct {
	db *gorm.DB
}

func NewEscrowRepository(db *gorm.DB) *EscrowRepository {
	return &EscrowRepository{
		db: db,
	}
}

func (r *EscrowRepository) Create(acct *escrow.EscrowAccount) error {
	if err := r.db.Create(acct).Error; err != nil {
		return translateUniqueViolation(err)
	}
	return nil
}

func (r *EscrowRepository) GetByID(id string) (*escrow.EscrowAccount, error) {
	var acct escrow.EscrowAccount
	err := r.db.Where("id = ?", id).First(&acct).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &acct, nil
}

func (r *EscrowRepository) GetByTransactionID(transactionID string) (*escrow.EscrowAccount, error) {
	var acct escrow.EscrowAccount
	err := r.db.Where("transaction_id = ?", transactionID).First(&acct).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &acct, nil
}

// TransitionStatus applies the update only while the row still holds the
// expected status. Concurrent refund and auto-release resolve here: one
// writer wins, the other sees ErrStaleTransition and reloads.
func (r *EscrowRepository) TransitionStatus(id string, from, to escrow.Status, update escrowpkg.StatusUpdate) error {
	updates := map[string]interface{}{
		"status": to,
	}
	if update.FundedAt != nil {
		updates["funded_at"] = *update.FundedAt
	}
	if update.ReleaseScheduledAt != nil {
		updates["release_scheduled_at"] = *update.ReleaseScheduledAt
	}
	if update.ReleasedAt != nil {
		updates["released_at"] = *update.ReleasedAt
	}
	if update.DisputedAt != nil {
		updates["disputed_at"] = *update.DisputedAt
	}
	if update.RefundedAt != nil {
		updates["refunded_at"] = *update.RefundedAt
	}

	res := r.db.Model(&escrow.EscrowAccount{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return escrowpkg.ErrStaleTransition
	}
	return nil
}

func (r *EscrowRepository) ListDueForRelease(now time.Time, limit int) ([]*escrow.EscrowAccount, error) {
	var accts []*escrow.EscrowAccount
	err := r.db.
		Where("status = ? AND release_scheduled_at IS NOT NULL AND release_scheduled_at <= ?", escrow.StatusFunded, now).
		Order("release_scheduled_at ASC").
		Limit(limit).
		Find(&accts).Error
	return accts, err
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return escrowpkg.ErrEscrowNotFound
	}
	return err
}

func translateUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		if strings.Contains(pgErr.ConstraintName, "transaction") {
			return escrowpkg.ErrDuplicateEscrow
		}
		return err
	}

	msg := err.Error()
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(msg, "UNIQUE constraint failed") {
		if strings.Contains(msg, "transaction_id") {
			return escrowpkg.ErrDuplicateEscrow
		}
	}
	return err
}

var _ escrowpkg.Repository = (*EscrowRepository)(nil)
