package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
	EventTypeRefundCompleted  = "refund.completed"
)

type PaymentCompletedEvent struct {
	BaseEvent
	TransactionID     string          `json:"transaction_id"`
	BookingID         string          `json:"booking_id"`
	PaymentMethodID   string          `json:"payment_method_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	ProviderReference string          `json:"provider_reference"`
}

func NewPaymentCompletedEvent(transactionID, bookingID, methodID string, amount decimal.Decimal, currency, providerRef string) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"transaction_id":     transactionID,
				"booking_id":         bookingID,
				"payment_method_id":  methodID,
				"amount":             amount.String(),
				"currency":           currency,
				"provider_reference": providerRef,
			},
		},
		TransactionID:     transactionID,
		BookingID:         bookingID,
		PaymentMethodID:   methodID,
		Amount:            amount,
		Currency:          currency,
		ProviderReference: providerRef,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	TransactionID string          `json:"transaction_id"`
	BookingID     string          `json:"booking_id"`
	Amount        decimal.Decimal `json:"amount"`
	FailureCode   string          `json:"failure_code"`
	FailureReason string          `json:"failure_reason"`
}

func NewPaymentFailedEvent(transactionID, bookingID string, amount decimal.Decimal, failureCode, failureReason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"transaction_id": transactionID,
				"booking_id":     bookingID,
				"amount":         amount.String(),
				"failure_code":   failureCode,
				"failure_reason": failureReason,
			},
		},
		TransactionID: transactionID,
		BookingID:     bookingID,
		Amount:        amount,
		FailureCode:   failureCode,
		FailureReason: failureReason,
	}
}

type RefundCompletedEvent struct {
	BaseEvent
	RefundID      string          `json:"refund_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	FullRefund    bool            `json:"full_refund"`
}

func NewRefundCompletedEvent(refundID, transactionID string, amount decimal.Decimal, fullRefund bool) *RefundCompletedEvent {
	return &RefundCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeRefundCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"refund_id":      refundID,
				"transaction_id": transactionID,
				"amount":         amount.String(),
				"full_refund":    fullRefund,
			},
		},
		RefundID:      refundID,
		TransactionID: transactionID,
		Amount:        amount,
		FullRefund:    fullRefund,
	}
}
