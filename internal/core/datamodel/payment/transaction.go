package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusCompleted  TransactionStatus = "completed"
	StatusFailed     TransactionStatus = "failed"
	StatusCancelled  TransactionStatus = "cancelled"
)

// transactionTransitions encodes the append-only forward progression: a
// terminal transaction is never resurrected, a retry is a new row.
var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:    {StatusProcessing, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
	StatusCancelled:  {},
}

func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range transactionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s TransactionStatus) IsTerminal() bool {
	return len(transactionTransitions[s]) == 0
}

// PaymentTransaction records one payment attempt. payment_details holds
// only the masked derivative; raw instrument data never reaches this row.
type PaymentTransaction struct {
	ID              string            `json:"id" gorm:"primaryKey"`
	BookingID       string            `json:"booking_id" gorm:"column:booking_id;not null;index"`
	PaymentMethodID string            `json:"payment_method_id" gorm:"column:payment_method_id;not null"`
	Amount          decimal.Decimal   `json:"amount" gorm:"column:amount;type:numeric(14,2);not null"`
	Currency        string            `json:"currency" gorm:"column:currency;not null"`
	ProcessingFee   decimal.Decimal   `json:"processing_fee" gorm:"column:processing_fee;type:numeric(14,2)"`
	TotalAmount     decimal.Decimal   `json:"total_amount" gorm:"column:total_amount;type:numeric(14,2);not null"`
	Status          TransactionStatus `json:"status" gorm:"column:status;default:pending"`
	PaymentDetails  MaskedDetails     `json:"payment_details" gorm:"column:payment_details;serializer:json;type:jsonb"`
	BillingAddress  BillingAddress    `json:"billing_address" gorm:"column:billing_address;serializer:json;type:jsonb"`
	IdempotencyKey  string            `json:"idempotency_key" gorm:"column:idempotency_key;not null;uniqueIndex"`
	TransactionID   *string           `json:"transaction_id,omitempty" gorm:"column:provider_reference"`
	NextActionURL   *string           `json:"next_action_url,omitempty" gorm:"column:next_action_url"`
	FailureCode     *string           `json:"failure_code,omitempty" gorm:"column:failure_code"`
	FailureReason   *string           `json:"failure_reason,omitempty" gorm:"column:failure_reason"`
	RefundAmount    decimal.Decimal   `json:"refund_amount" gorm:"column:refund_amount;type:numeric(14,2);default:0"`
	CreatedAt       time.Time         `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	ProcessedAt     *time.Time        `json:"processed_at,omitempty" gorm:"column:processed_at"`
	UpdatedAt       time.Time         `json:"-" gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

// RemainingBalance is the refundable remainder of a completed transaction.
func (t *PaymentTransaction) RemainingBalance() decimal.Decimal {
	return t.TotalAmount.Sub(t.RefundAmount)
}

func (t *PaymentTransaction) IsRefundable() bool {
	return t.Status == StatusCompleted && t.RemainingBalance().IsPositive()
}
