package card

import (
	"context"
	"time"

	"medstock/internal/core/id"
)

// Repository persists stock cards and their line items.
// Absence is reported as nil, not an error.
type Repository interface {
	// FindByIdentity returns the card for the identity tuple, without line
	// items, or nil when no movement has ever touched the tuple.
	FindByIdentity(ctx context.Context, identity Identity) (*StockCard, error)

	// FindByIdentityForUpdate is FindByIdentity with a row lock. Concurrent
	// submissions against the same card serialize on this lock because
	// replay rewrites a contiguous range of snapshot rows.
	FindByIdentityForUpdate(ctx context.Context, identity Identity) (*StockCard, error)

	// FindByIDs loads cards with line items and resolved reasons.
	FindByIDs(ctx context.Context, cardIDs []id.ID) ([]StockCard, error)

	// FindActiveIdentities returns the identity of every card under the
	// program/facility pair. Used for physical-inventory coverage checks.
	FindActiveIdentities(ctx context.Context, programID, facilityID id.ID) ([]Identity, error)

	// FindLineItemsAfter returns the card's line items with occurred date
	// strictly after the given date, reasons resolved, in storage order.
	FindLineItemsAfter(ctx context.Context, cardID id.ID, date time.Time) ([]LineItem, error)

	// Create inserts a new card row.
	Create(ctx context.Context, card *StockCard) error

	// SaveStockOnHand updates the denormalized balance and timestamp.
	SaveStockOnHand(ctx context.Context, card *StockCard) error

	// SaveLineItems batch-inserts new line items.
	SaveLineItems(ctx context.Context, items []LineItem) error

	// UpdateLineItemCalculations rewrites quantity, reason and cached
	// balance after replay recomputed them.
	UpdateLineItemCalculations(ctx context.Context, items []LineItem) error
}

// SnapshotRepository persists per-date stock-on-hand snapshots.
type SnapshotRepository interface {
	// FindLatestAsOf returns the snapshot with the greatest occurred date
	// not after the given date, or nil when none exists.
	FindLatestAsOf(ctx context.Context, cardID id.ID, date time.Time) (*CalculatedStockOnHand, error)

	// DeleteFrom removes every snapshot with occurred date >= date.
	DeleteFrom(ctx context.Context, cardID id.ID, date time.Time) error

	// SaveAll inserts regenerated snapshots.
	SaveAll(ctx context.Context, snapshots []CalculatedStockOnHand) error
}
