package escrow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tnyamukapa/rentpay/internal/core/events"
	"github.com/tnyamukapa/rentpay/pkg/logger"
)

// EventHandler writes the escrow audit trail off the event bus, keeping
// hold lifecycle transitions visible without blocking the state machine.
// Per-event lines log through the publish-time context so trail entries
// stay correlated with the request or sweep that moved the hold.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

func (h *EventHandler) HandleEscrowFunded(ctx context.Context, event events.Event) error {
	funded, ok := event.(*events.EscrowEvent)
	if !ok {
		logger.From(ctx).Error("invalid event type for escrow funded handler", "event_type", event.EventType())
		return fmt.Errorf("expected EscrowEvent, got %T", event)
	}

	logger.From(ctx).Info("escrow funded",
		"escrow_id", funded.EscrowID,
		"transaction_id", funded.TransactionID,
		"amount", funded.Amount.String(),
		"event_id", funded.EventID())

	return nil
}

func (h *EventHandler) HandleEscrowReleased(ctx context.Context, event events.Event) error {
	released, ok := event.(*events.EscrowEvent)
	if !ok {
		logger.From(ctx).Error("invalid event type for escrow released handler", "event_type", event.EventType())
		return fmt.Errorf("expected EscrowEvent, got %T", event)
	}

	logger.From(ctx).Info("escrow released",
		"escrow_id", released.EscrowID,
		"transaction_id", released.TransactionID,
		"amount", released.Amount.String(),
		"event_id", released.EventID())

	return nil
}

func (h *EventHandler) HandleEscrowDisputed(ctx context.Context, event events.Event) error {
	disputed, ok := event.(*events.EscrowEvent)
	if !ok {
		logger.From(ctx).Error("invalid event type for escrow disputed handler", "event_type", event.EventType())
		return fmt.Errorf("expected EscrowEvent, got %T", event)
	}

	logger.From(ctx).Warn("escrow disputed",
		"escrow_id", disputed.EscrowID,
		"transaction_id", disputed.TransactionID,
		"amount", disputed.Amount.String(),
		"event_id", disputed.EventID())

	return nil
}

func (h *EventHandler) HandleEscrowRefunded(ctx context.Context, event events.Event) error {
	refunded, ok := event.(*events.EscrowEvent)
	if !ok {
		logger.From(ctx).Error("invalid event type for escrow refunded handler", "event_type", event.EventType())
		return fmt.Errorf("expected EscrowEvent, got %T", event)
	}

	logger.From(ctx).Info("escrow refunded",
		"escrow_id", refunded.EscrowID,
		"transaction_id", refunded.TransactionID,
		"amount", refunded.Amount.String(),
		"event_id", refunded.EventID())

	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypeEscrowFunded, h.HandleEscrowFunded)
	eventBus.Subscribe(events.EventTypeEscrowReleased, h.HandleEscrowReleased)
	eventBus.Subscribe(events.EventTypeEscrowDisputed, h.HandleEscrowDisputed)
	eventBus.Subscribe(events.EventTypeEscrowRefunded, h.HandleEscrowRefunded)

	h.logger.Info("escrow event handlers registered",
		"handlers", []string{
			events.EventTypeEscrowFunded,
			events.EventTypeEscrowReleased,
			events.EventTypeEscrowDisputed,
			events.EventTypeEscrowRefunded,
		})
}
