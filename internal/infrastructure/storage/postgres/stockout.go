package postgres

import (
	"context"

	"medstock/internal/core/id"
	"medstock/internal/domain/card"
	"medstock/internal/domain/event"
)

// EventTypeStockoutDetected is the outbox event emitted when a card's
// balance reaches zero.
const EventTypeStockoutDetected = "StockoutDetected"

// StockoutPayload is the outbox payload for a stockout signal.
type StockoutPayload struct {
	StockCardID id.ID  `json:"stockCardId"`
	EventID     id.ID  `json:"eventId"`
	ProgramID   id.ID  `json:"programId"`
	FacilityID  id.ID  `json:"facilityId"`
	OrderableID id.ID  `json:"orderableId"`
	LotID       *id.ID `json:"lotId,omitempty"`
}

// StockoutOutbox enqueues stockout signals through the transactional
// outbox, inside the processing transaction. Delivery happens later in the
// relay worker, so a flaky notification channel never fails stock intake.
type StockoutOutbox struct {
	publisher *OutboxPublisher
}

// NewStockoutOutbox creates the stockout publisher.
func NewStockoutOutbox(publisher *OutboxPublisher) *StockoutOutbox {
	return &StockoutOutbox{publisher: publisher}
}

var _ event.StockoutPublisher = (*StockoutOutbox)(nil)

// StockoutDetected writes one outbox message for the stocked-out card.
func (s *StockoutOutbox) StockoutDetected(ctx context.Context, c *card.StockCard, ev *event.StockEvent) error {
	return s.publisher.Publish(ctx, DomainEvent{
		AggregateType: "StockCard",
		AggregateID:   c.ID,
		EventType:     EventTypeStockoutDetected,
		Payload: StockoutPayload{
			StockCardID: c.ID,
			EventID:     ev.ID,
			ProgramID:   c.ProgramID,
			FacilityID:  c.FacilityID,
			OrderableID: c.OrderableID,
			LotID:       c.LotID,
		},
	})
}
