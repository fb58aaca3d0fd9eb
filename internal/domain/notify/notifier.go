// Package notify resolves and delivers stockout notifications. Delivery is
// best effort and fully decoupled from event processing: the processor
// only enqueues a signal, a background worker drives this package.
package notify

import (
	"context"
	"fmt"

	"medstock/internal/core/id"
	"medstock/internal/domain/card"
	"medstock/internal/domain/refdata"
	"medstock/pkg/logger"
)

// Notification is one message to one recipient.
type Notification struct {
	UserID  id.ID
	Email   string
	Subject string
	Body    string
}

// Sink delivers notifications. Implementations must treat delivery as best
// effort; a sink error never fails stock processing.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// StockoutNotifier fans a stockout signal out to the editors supervising
// the card's facility: supervisory node for the program and facility, then
// every user holding the stock-cards-edit right for that node.
type StockoutNotifier struct {
	lookup refdata.Lookup
	cards  card.Repository
	sink   Sink
}

// NewStockoutNotifier creates a stockout notifier.
func NewStockoutNotifier(lookup refdata.Lookup, cards card.Repository, sink Sink) *StockoutNotifier {
	return &StockoutNotifier{lookup: lookup, cards: cards, sink: sink}
}

// NotifyStockout resolves recipients for the card and sends one message
// per user. Missing supervision or an empty recipient list is not an
// error; individual delivery failures are logged and skipped.
func (n *StockoutNotifier) NotifyStockout(ctx context.Context, cardID id.ID) error {
	cards, err := n.cards.FindByIDs(ctx, []id.ID{cardID})
	if err != nil {
		return fmt.Errorf("load stock card: %w", err)
	}
	if len(cards) == 0 {
		logger.Warn(ctx, "stockout notification for unknown stock card", "stock_card_id", cardID)
		return nil
	}
	c := &cards[0]

	right, err := n.lookup.FindRight(ctx, refdata.RightStockCardsEdit)
	if err != nil {
		return err
	}
	if right == nil {
		logger.Warn(ctx, "stock cards edit right not defined, skipping stockout notification")
		return nil
	}

	node, err := n.lookup.FindSupervisoryNode(ctx, c.ProgramID, c.FacilityID)
	if err != nil {
		return err
	}
	if node == nil {
		logger.Debug(ctx, "no supervisory node for facility, skipping stockout notification",
			"program_id", c.ProgramID,
			"facility_id", c.FacilityID,
		)
		return nil
	}

	users, err := n.lookup.FindUsersWithRight(ctx, node.ID, right.ID, c.ProgramID)
	if err != nil {
		return err
	}

	subject, body := composeStockout(c)
	sent := 0
	for _, u := range users {
		if !u.Active || u.Email == "" {
			continue
		}
		err := n.sink.Send(ctx, Notification{
			UserID:  u.ID,
			Email:   u.Email,
			Subject: subject,
			Body:    body,
		})
		if err != nil {
			logger.Warn(ctx, "stockout notification delivery failed",
				"user_id", u.ID,
				"stock_card_id", c.ID,
				"error", err,
			)
			continue
		}
		sent++
	}

	logger.Info(ctx, "stockout notifications sent",
		"stock_card_id", c.ID,
		"recipients", sent,
	)
	return nil
}

func composeStockout(c *card.StockCard) (subject, body string) {
	subject = "Stockout alert"
	body = fmt.Sprintf(
		"Stock on hand reached zero.\n\nProgram: %s\nFacility: %s\nOrderable: %s\n",
		c.ProgramID, c.FacilityID, c.OrderableID,
	)
	if c.LotID != nil {
		body += fmt.Sprintf("Lot: %s\n", *c.LotID)
	}
	body += fmt.Sprintf("\nAs of: %s\n", c.UpdatedAt.Format("2006-01-02 15:04 MST"))
	return subject, body
}
