// Package card provides the stock card ledger: durable per-identity
// movement history, the stock-on-hand calculator and the snapshot replay
// engine.
package card

import (
	"sort"
	"time"

	"medstock/internal/core/id"
	"medstock/internal/domain/reason"
)

// Identity keys a stock card: one card per (program, facility, orderable,
// lot-or-none) tuple. Created on first movement, never deleted.
type Identity struct {
	ProgramID   id.ID
	FacilityID  id.ID
	OrderableID id.ID
	LotID       *id.ID
}

// Matches compares two identities, treating absent lots as equal.
func (i Identity) Matches(other Identity) bool {
	return i.ProgramID == other.ProgramID &&
		i.FacilityID == other.FacilityID &&
		i.OrderableID == other.OrderableID &&
		id.PtrEqual(i.LotID, other.LotID)
}

// StockCard is the durable ledger aggregate for one identity.
type StockCard struct {
	ID          id.ID  `db:"id" json:"id"`
	ProgramID   id.ID  `db:"program_id" json:"programId"`
	FacilityID  id.ID  `db:"facility_id" json:"facilityId"`
	OrderableID id.ID  `db:"orderable_id" json:"orderableId"`
	LotID       *id.ID `db:"lot_id" json:"lotId,omitempty"`

	// StockOnHand is the denormalized current balance, maintained by the
	// replay engine. The authoritative value is always derivable from the
	// line items in canonical order.
	StockOnHand int32     `db:"stock_on_hand" json:"stockOnHand"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`

	LineItems []LineItem `db:"-" json:"lineItems,omitempty"`
}

// NewStockCard creates an empty card for the identity.
func NewStockCard(identity Identity) *StockCard {
	return &StockCard{
		ID:          id.New(),
		ProgramID:   identity.ProgramID,
		FacilityID:  identity.FacilityID,
		OrderableID: identity.OrderableID,
		LotID:       identity.LotID,
		UpdatedAt:   time.Now().UTC(),
	}
}

// Identity returns the card's key tuple.
func (c *StockCard) Identity() Identity {
	return Identity{
		ProgramID:   c.ProgramID,
		FacilityID:  c.FacilityID,
		OrderableID: c.OrderableID,
		LotID:       c.LotID,
	}
}

// LineItem is one movement on a stock card. Immutable once calculated,
// except that replay recomputes StockOnHand (and, for physical counts, the
// delta quantity and inferred reason).
type LineItem struct {
	ID          id.ID `db:"id" json:"id"`
	StockCardID id.ID `db:"stock_card_id" json:"stockCardId"`
	EventID     id.ID `db:"event_id" json:"eventId"`

	// OccurredDate is the business date (UTC midnight); ProcessedAt is the
	// wall-clock time the movement was accepted.
	OccurredDate time.Time `db:"occurred_date" json:"occurredDate"`
	ProcessedAt  time.Time `db:"processed_at" json:"processedAt"`

	// Quantity is the movement magnitude. Sign is derived from the reason
	// type (or the source/destination for pure transfers). For physical
	// counts Quantity initially holds the submitted absolute count and is
	// rewritten to the delta by the ledger calculator.
	Quantity int32 `db:"quantity" json:"quantity"`

	ReasonID *id.ID         `db:"reason_id" json:"reasonId,omitempty"`
	Reason   *reason.Reason `db:"-" json:"reason,omitempty"`

	SourceID            *id.ID `db:"source_id" json:"sourceId,omitempty"`
	DestinationID       *id.ID `db:"destination_id" json:"destinationId,omitempty"`
	SourceFreeText      string `db:"source_free_text" json:"sourceFreeText,omitempty"`
	DestinationFreeText string `db:"destination_free_text" json:"destinationFreeText,omitempty"`
	ReasonFreeText      string `db:"reason_free_text" json:"reasonFreeText,omitempty"`

	// IsPhysicalCount marks the quantity as an absolute submitted count to
	// be reconciled against the book balance.
	IsPhysicalCount bool `db:"is_physical_count" json:"isPhysicalCount"`

	// StockOnHand is the balance after applying this item, computed by the
	// ledger calculator and cached.
	StockOnHand int32 `db:"stock_on_hand" json:"stockOnHand"`
}

// IsCredit reports whether the item increases the balance. Pure transfers
// carry no reason; direction then follows from which side is present.
func (li *LineItem) IsCredit() bool {
	if li.Reason != nil {
		return li.Reason.IsCredit()
	}
	return li.SourceID != nil
}

// SignedQuantity returns the delta effect of the item on stock on hand.
// Only meaningful after the ledger calculator resolved the item.
func (li *LineItem) SignedQuantity() int32 {
	if li.Reason != nil {
		switch li.Reason.Type {
		case reason.TypeDebit:
			return -li.Quantity
		case reason.TypeBalanceAdjustment:
			return 0
		}
		return li.Quantity
	}
	if li.DestinationID != nil {
		return -li.Quantity
	}
	return li.Quantity
}

// reasonPriority is the canonical-order tie-break: credits first, then
// balance adjustments, then debits.
func (li *LineItem) reasonPriority() int {
	if li.Reason != nil {
		return li.Reason.Type.Priority()
	}
	if li.SourceID != nil {
		return reason.TypeCredit.Priority()
	}
	if li.DestinationID != nil {
		return reason.TypeDebit.Priority()
	}
	return reason.TypeBalanceAdjustment.Priority()
}

// Less defines the canonical replay order: occurred date ascending, then
// processed time ascending, then reason priority. Deterministic and stable
// across runs because every key is total.
func (li *LineItem) Less(other *LineItem) bool {
	if !li.OccurredDate.Equal(other.OccurredDate) {
		return li.OccurredDate.Before(other.OccurredDate)
	}
	if !li.ProcessedAt.Equal(other.ProcessedAt) {
		return li.ProcessedAt.Before(other.ProcessedAt)
	}
	return li.reasonPriority() < other.reasonPriority()
}

// SortCanonical sorts line items in place into canonical replay order.
func SortCanonical(items []LineItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Less(&items[j])
	})
}

// CalculatedStockOnHand caches the end-of-day balance for one card and
// occurred date. At most one row exists per (card, date); the replay
// engine deletes and regenerates rows when history is corrected.
type CalculatedStockOnHand struct {
	ID           id.ID     `db:"id" json:"id"`
	StockCardID  id.ID     `db:"stock_card_id" json:"stockCardId"`
	OccurredDate time.Time `db:"occurred_date" json:"occurredDate"`
	StockOnHand  int32     `db:"stock_on_hand" json:"stockOnHand"`
}

// DateOf truncates a timestamp to its UTC calendar date. Occurred dates
// are stored and compared at day granularity.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
