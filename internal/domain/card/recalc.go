package card

import (
	"context"
	"fmt"
	"time"

	"medstock/internal/core/id"
	"medstock/pkg/logger"
)

// Engine replays ledger history when a line item lands before already
// cached snapshots. Insertions are not always at the end of history (a
// backdated physical inventory, for example), so every snapshot downstream
// of the insertion point is stale and must be regenerated, not appended to.
//
// All methods expect to run inside the caller's transaction, with the
// affected stock card row locked.
type Engine struct {
	cards     Repository
	snapshots SnapshotRepository
}

// NewEngine creates a replay engine over the given repositories.
func NewEngine(cards Repository, snapshots SnapshotRepository) *Engine {
	return &Engine{cards: cards, snapshots: snapshots}
}

// Recalculate applies a new line item to the card and regenerates all
// affected snapshots:
//
//  1. The balance of the last snapshot dated at or before the item is the
//     replay base (zero when none exists).
//  2. Snapshots dated at or after the item are deleted.
//  3. Existing line items dated strictly after the item are replayed,
//     with the new item prepended, in canonical order; one snapshot is
//     written per distinct occurred date.
//  4. The card's denormalized stock on hand becomes the final replayed
//     balance.
//
// The new item is mutated with its computed stock on hand (and, for
// physical counts, its inferred reason and delta). The caller persists it.
func (e *Engine) Recalculate(ctx context.Context, card *StockCard, newItem *LineItem) error {
	date := DateOf(newItem.OccurredDate)
	newItem.OccurredDate = date
	newItem.StockCardID = card.ID

	base, err := e.snapshots.FindLatestAsOf(ctx, card.ID, date)
	if err != nil {
		return fmt.Errorf("find base snapshot: %w", err)
	}
	var previous int32
	if base != nil {
		previous = base.StockOnHand
	}

	if err := e.snapshots.DeleteFrom(ctx, card.ID, date); err != nil {
		return fmt.Errorf("invalidate snapshots: %w", err)
	}

	later, err := e.cards.FindLineItemsAfter(ctx, card.ID, date)
	if err != nil {
		return fmt.Errorf("load downstream line items: %w", err)
	}

	items := make([]LineItem, 0, len(later)+1)
	items = append(items, *newItem)
	items = append(items, later...)
	SortCanonical(items)

	snapshots, final, err := replay(card.ID, previous, items)
	if err != nil {
		return err
	}

	if err := e.snapshots.SaveAll(ctx, snapshots); err != nil {
		return fmt.Errorf("save snapshots: %w", err)
	}

	// Write back recomputed balances on pre-existing downstream items and
	// reflect the mutations on the caller's new item.
	var updated []LineItem
	for i := range items {
		if items[i].ID == newItem.ID {
			*newItem = items[i]
			continue
		}
		updated = append(updated, items[i])
	}
	if len(updated) > 0 {
		if err := e.cards.UpdateLineItemCalculations(ctx, updated); err != nil {
			return fmt.Errorf("update downstream line items: %w", err)
		}
	}

	card.StockOnHand = final
	card.UpdatedAt = time.Now().UTC()
	if err := e.cards.SaveStockOnHand(ctx, card); err != nil {
		return fmt.Errorf("save stock on hand: %w", err)
	}

	logger.Debug(ctx, "replayed stock card",
		"stock_card_id", card.ID,
		"from_date", date.Format("2006-01-02"),
		"replayed_items", len(items),
		"stock_on_hand", final,
	)

	return nil
}

// replay runs items (already in canonical order) through the ledger
// calculator, producing one end-of-day snapshot per distinct occurred date
// and the final balance. Deterministic: identical input always yields
// identical snapshots.
func replay(cardID id.ID, previous int32, items []LineItem) ([]CalculatedStockOnHand, int32, error) {
	running := previous
	var snapshots []CalculatedStockOnHand

	for i := range items {
		next, err := Apply(running, &items[i])
		if err != nil {
			return nil, 0, err
		}
		running = next

		date := items[i].OccurredDate
		if n := len(snapshots); n > 0 && snapshots[n-1].OccurredDate.Equal(date) {
			snapshots[n-1].StockOnHand = running
			continue
		}
		snapshots = append(snapshots, CalculatedStockOnHand{
			ID:           id.New(),
			StockCardID:  cardID,
			OccurredDate: date,
			StockOnHand:  running,
		})
	}

	return snapshots, running, nil
}

// StockOnHandAsOf returns the cached balance of the card as of the end of
// the given date. The second return value is false when no snapshot dated
// at or before the date exists.
func (e *Engine) StockOnHandAsOf(ctx context.Context, cardID id.ID, date time.Time) (int32, bool, error) {
	snapshot, err := e.snapshots.FindLatestAsOf(ctx, cardID, DateOf(date))
	if err != nil {
		return 0, false, fmt.Errorf("find snapshot: %w", err)
	}
	if snapshot == nil {
		return 0, false, nil
	}
	return snapshot.StockOnHand, true, nil
}
