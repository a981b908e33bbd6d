package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypeEscrowFunded   = "escrow.funded"
	EventTypeEscrowReleased = "escrow.released"
	EventTypeEscrowDisputed = "escrow.disputed"
	EventTypeEscrowRefunded = "escrow.refunded"
)

type EscrowEvent struct {
	BaseEvent
	EscrowID      string          `json:"escrow_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
}

func newEscrowEvent(eventType, escrowID, transactionID string, amount decimal.Decimal, status string) *EscrowEvent {
	return &EscrowEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"escrow_id":      escrowID,
				"transaction_id": transactionID,
				"amount":         amount.String(),
				"status":         status,
			},
		},
		EscrowID:      escrowID,
		TransactionID: transactionID,
		Amount:        amount,
		Status:        status,
	}
}

func NewEscrowFundedEvent(escrowID, transactionID string, amount decimal.Decimal) *EscrowEvent {
	return newEscrowEvent(EventTypeEscrowFunded, escrowID, transactionID, amount, "funded")
}

func NewEscrowReleasedEvent(escrowID, transactionID string, amount decimal.Decimal) *EscrowEvent {
	return newEscrowEvent(EventTypeEscrowReleased, escrowID, transactionID, amount, "released")
}

func NewEscrowDisputedEvent(escrowID, transactionID string, amount decimal.Decimal) *EscrowEvent {
	return newEscrowEvent(EventTypeEscrowDisputed, escrowID, transactionID, amount, "disputed")
}

func NewEscrowRefundedEvent(escrowID, transactionID string, amount decimal.Decimal) *EscrowEvent {
	return newEscrowEvent(EventTypeEscrowRefunded, escrowID, transactionID, amount, "refunded")
}
