package refund

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Refund records one refund execution against a transaction. A failed
// provider call leaves the owning transaction untouched; the row exists
// for audit either way.
type Refund struct {
	ID               string          `json:"id" gorm:"primaryKey"`
	TransactionID    string          `json:"transaction_id" gorm:"column:transaction_id;not null;index"`
	Amount           decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(14,2);not null"`
	Reason           string          `json:"reason" gorm:"column:reason"`
	Status           Status          `json:"status" gorm:"column:status;default:pending"`
	ProviderRefundID *string         `json:"provider_refund_id,omitempty" gorm:"column:provider_refund_id"`
	FailureReason    *string         `json:"failure_reason,omitempty" gorm:"column:failure_reason"`
	CreatedAt        time.Time       `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty" gorm:"column:processed_at"`
}

func (Refund) TableName() string { return "refunds" }
