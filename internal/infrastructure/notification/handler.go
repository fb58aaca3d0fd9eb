package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"medstock/internal/domain/notify"
	"medstock/internal/infrastructure/storage/postgres"
	"medstock/pkg/logger"
)

// StockoutHandler consumes StockoutDetected outbox messages and hands them
// to the stockout notifier. Unknown event types are acknowledged and
// skipped, so adding new outbox events never wedges the relay.
type StockoutHandler struct {
	notifier *notify.StockoutNotifier
}

// NewStockoutHandler creates the outbox handler for stockout messages.
func NewStockoutHandler(notifier *notify.StockoutNotifier) *StockoutHandler {
	return &StockoutHandler{notifier: notifier}
}

var _ postgres.OutboxHandler = (*StockoutHandler)(nil)

// Handle processes one outbox message.
func (h *StockoutHandler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	if msg.EventType != postgres.EventTypeStockoutDetected {
		logger.Debug(ctx, "skipping unhandled outbox event", "event_type", msg.EventType)
		return nil
	}

	var payload postgres.StockoutPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal stockout payload: %w", err)
	}

	return h.notifier.NotifyStockout(ctx, payload.StockCardID)
}
