package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tnyamukapa/rentpay/internal/core/events"
	"github.com/tnyamukapa/rentpay/pkg/logger"
)

// EventHandler writes the payment audit trail off the event bus so the
// settlement path never blocks on it. Per-event lines log through the
// publish-time context, which carries the trace id when the event came
// out of a request; sweeps and other background publishers fall back to
// the process logger.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

func (h *EventHandler) HandlePaymentCompleted(ctx context.Context, event events.Event) error {
	completed, ok := event.(*events.PaymentCompletedEvent)
	if !ok {
		logger.From(ctx).Error("invalid event type for payment completed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentCompletedEvent, got %T", event)
	}

	logger.From(ctx).Info("payment completed",
		"transaction_id", completed.TransactionID,
		"booking_id", completed.BookingID,
		"payment_method_id", completed.PaymentMethodID,
		"amount", completed.Amount.String(),
		"currency", completed.Currency,
		"provider_reference", completed.ProviderReference,
		"event_id", completed.EventID())

	return nil
}

func (h *EventHandler) HandlePaymentFailed(ctx context.Context, event events.Event) error {
	failed, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		logger.From(ctx).Error("invalid event type for payment failed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentFailedEvent, got %T", event)
	}

	logger.From(ctx).Warn("payment failed",
		"transaction_id", failed.TransactionID,
		"booking_id", failed.BookingID,
		"amount", failed.Amount.String(),
		"failure_code", failed.FailureCode,
		"failure_reason", failed.FailureReason,
		"event_id", failed.EventID())

	return nil
}

func (h *EventHandler) HandleRefundCompleted(ctx context.Context, event events.Event) error {
	refund, ok := event.(*events.RefundCompletedEvent)
	if !ok {
		logger.From(ctx).Error("invalid event type for refund completed handler", "event_type", event.EventType())
		return fmt.Errorf("expected RefundCompletedEvent, got %T", event)
	}

	logger.From(ctx).Info("refund completed",
		"refund_id", refund.RefundID,
		"transaction_id", refund.TransactionID,
		"amount", refund.Amount.String(),
		"full_refund", refund.FullRefund,
		"event_id", refund.EventID())

	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentCompleted, h.HandlePaymentCompleted)
	eventBus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentFailed)
	eventBus.Subscribe(events.EventTypeRefundCompleted, h.HandleRefundCompleted)

	h.logger.Info("payment event handlers registered",
		"handlers", []string{
			events.EventTypePaymentCompleted,
			events.EventTypePaymentFailed,
			events.EventTypeRefundCompleted,
		})
}
