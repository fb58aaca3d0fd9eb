package card

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medstock/internal/core/id"
)

// memoryLedger is an in-memory Repository + SnapshotRepository pair
// sufficient for driving the replay engine.
type memoryLedger struct {
	cards     map[id.ID]*StockCard
	items     map[id.ID][]LineItem             // by card id
	snapshots map[id.ID][]CalculatedStockOnHand // by card id
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		cards:     make(map[id.ID]*StockCard),
		items:     make(map[id.ID][]LineItem),
		snapshots: make(map[id.ID][]CalculatedStockOnHand),
	}
}

func (m *memoryLedger) FindByIdentity(_ context.Context, identity Identity) (*StockCard, error) {
	for _, c := range m.cards {
		if c.Identity().Matches(identity) {
			return c, nil
		}
	}
	return nil, nil
}

func (m *memoryLedger) FindByIdentityForUpdate(ctx context.Context, identity Identity) (*StockCard, error) {
	return m.FindByIdentity(ctx, identity)
}

func (m *memoryLedger) FindByIDs(_ context.Context, cardIDs []id.ID) ([]StockCard, error) {
	var out []StockCard
	for _, cid := range cardIDs {
		if c, ok := m.cards[cid]; ok {
			withItems := *c
			withItems.LineItems = m.items[cid]
			out = append(out, withItems)
		}
	}
	return out, nil
}

func (m *memoryLedger) FindActiveIdentities(_ context.Context, programID, facilityID id.ID) ([]Identity, error) {
	var out []Identity
	for _, c := range m.cards {
		if c.ProgramID == programID && c.FacilityID == facilityID {
			out = append(out, c.Identity())
		}
	}
	return out, nil
}

func (m *memoryLedger) FindLineItemsAfter(_ context.Context, cardID id.ID, date time.Time) ([]LineItem, error) {
	var out []LineItem
	for _, li := range m.items[cardID] {
		if li.OccurredDate.After(date) {
			out = append(out, li)
		}
	}
	return out, nil
}

func (m *memoryLedger) Create(_ context.Context, card *StockCard) error {
	m.cards[card.ID] = card
	return nil
}

func (m *memoryLedger) SaveStockOnHand(_ context.Context, card *StockCard) error {
	m.cards[card.ID] = card
	return nil
}

func (m *memoryLedger) SaveLineItems(_ context.Context, items []LineItem) error {
	for _, li := range items {
		m.items[li.StockCardID] = append(m.items[li.StockCardID], li)
	}
	return nil
}

func (m *memoryLedger) UpdateLineItemCalculations(_ context.Context, items []LineItem) error {
	for _, updated := range items {
		stored := m.items[updated.StockCardID]
		for i := range stored {
			if stored[i].ID == updated.ID {
				stored[i] = updated
			}
		}
	}
	return nil
}

func (m *memoryLedger) FindLatestAsOf(_ context.Context, cardID id.ID, date time.Time) (*CalculatedStockOnHand, error) {
	var best *CalculatedStockOnHand
	for i := range m.snapshots[cardID] {
		s := m.snapshots[cardID][i]
		if s.OccurredDate.After(date) {
			continue
		}
		if best == nil || s.OccurredDate.After(best.OccurredDate) {
			best = &s
		}
	}
	return best, nil
}

func (m *memoryLedger) DeleteFrom(_ context.Context, cardID id.ID, date time.Time) error {
	var kept []CalculatedStockOnHand
	for _, s := range m.snapshots[cardID] {
		if s.OccurredDate.Before(date) {
			kept = append(kept, s)
		}
	}
	m.snapshots[cardID] = kept
	return nil
}

func (m *memoryLedger) SaveAll(_ context.Context, snapshots []CalculatedStockOnHand) error {
	for _, s := range snapshots {
		m.snapshots[s.StockCardID] = append(m.snapshots[s.StockCardID], s)
	}
	return nil
}

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

func testIdentity() Identity {
	return Identity{ProgramID: id.New(), FacilityID: id.New(), OrderableID: id.New()}
}

// applyMovement drives one movement through the engine the way the event
// processor does: recalculate, then persist the mutated item.
func applyMovement(t *testing.T, ledger *memoryLedger, engine *Engine, c *StockCard, li LineItem) {
	t.Helper()
	li.ID = id.New()
	require.NoError(t, engine.Recalculate(context.Background(), c, &li))
	require.NoError(t, ledger.SaveLineItems(context.Background(), []LineItem{li}))
}

func TestRecalculate_SequentialMovements(t *testing.T) {
	ledger := newMemoryLedger()
	engine := NewEngine(ledger, ledger)

	c := NewStockCard(testIdentity())
	require.NoError(t, ledger.Create(context.Background(), c))

	applyMovement(t, ledger, engine, c, LineItem{
		OccurredDate: day(1), ProcessedAt: day(1).Add(9 * time.Hour),
		Quantity: 100, Reason: creditReason(),
	})
	assert.Equal(t, int32(100), c.StockOnHand)

	applyMovement(t, ledger, engine, c, LineItem{
		OccurredDate: day(3), ProcessedAt: day(3).Add(9 * time.Hour),
		Quantity: 30, Reason: debitReason(),
	})
	assert.Equal(t, int32(70), c.StockOnHand)

	// One snapshot per distinct occurred date.
	assert.Len(t, ledger.snapshots[c.ID], 2)

	asOf, found, err := engine.StockOnHandAsOf(context.Background(), c.ID, day(2))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int32(100), asOf, "day 2 reads the day 1 snapshot")
}

func TestRecalculate_BackdatedMovementReplaysDownstream(t *testing.T) {
	ledger := newMemoryLedger()
	engine := NewEngine(ledger, ledger)

	c := NewStockCard(testIdentity())
	require.NoError(t, ledger.Create(context.Background(), c))

	applyMovement(t, ledger, engine, c, LineItem{
		OccurredDate: day(1), ProcessedAt: day(1).Add(9 * time.Hour),
		Quantity: 100, Reason: creditReason(),
	})
	applyMovement(t, ledger, engine, c, LineItem{
		OccurredDate: day(5), ProcessedAt: day(5).Add(9 * time.Hour),
		Quantity: 40, Reason: debitReason(),
	})
	require.Equal(t, int32(60), c.StockOnHand)

	// A movement lands on day 3, after downstream history already exists.
	applyMovement(t, ledger, engine, c, LineItem{
		OccurredDate: day(3), ProcessedAt: day(6).Add(9 * time.Hour),
		Quantity: 20, Reason: debitReason(),
	})
	assert.Equal(t, int32(40), c.StockOnHand)

	// Snapshots at and after day 3 were regenerated.
	for _, probe := range []struct {
		asOf time.Time
		want int32
	}{
		{day(1), 100},
		{day(3), 80},
		{day(4), 80},
		{day(5), 40},
		{day(9), 40},
	} {
		got, found, err := engine.StockOnHandAsOf(context.Background(), c.ID, probe.asOf)
		require.NoError(t, err)
		require.True(t, found, "as of %s", probe.asOf)
		assert.Equal(t, probe.want, got, "as of %s", probe.asOf)
	}

	// The downstream day 5 item carries its recomputed balance.
	for _, li := range ledger.items[c.ID] {
		if li.OccurredDate.Equal(day(5)) {
			assert.Equal(t, int32(40), li.StockOnHand)
		}
	}
}

func TestRecalculate_BackdatedPhysicalCountRebases(t *testing.T) {
	ledger := newMemoryLedger()
	engine := NewEngine(ledger, ledger)

	c := NewStockCard(testIdentity())
	require.NoError(t, ledger.Create(context.Background(), c))

	applyMovement(t, ledger, engine, c, LineItem{
		OccurredDate: day(1), ProcessedAt: day(1).Add(9 * time.Hour),
		Quantity: 100, Reason: creditReason(),
	})
	applyMovement(t, ledger, engine, c, LineItem{
		OccurredDate: day(5), ProcessedAt: day(5).Add(9 * time.Hour),
		Quantity: 10, Reason: debitReason(),
	})

	// A count of 50 on day 3 resets the base for everything after it.
	count := LineItem{
		ID:           id.New(),
		OccurredDate: day(3), ProcessedAt: day(6).Add(9 * time.Hour),
		Quantity: 50, IsPhysicalCount: true,
	}
	require.NoError(t, engine.Recalculate(context.Background(), c, &count))

	assert.Equal(t, int32(40), c.StockOnHand)
	assert.Equal(t, int32(50), count.StockOnHand)
	assert.Equal(t, int32(50), count.Quantity, "understock delta from 100 to 50")
	require.NotNil(t, count.Reason)
	assert.True(t, count.Reason.IsDebit())
}

func TestRecalculate_NoSnapshotBeforeFirstMovement(t *testing.T) {
	ledger := newMemoryLedger()
	engine := NewEngine(ledger, ledger)

	c := NewStockCard(testIdentity())
	require.NoError(t, ledger.Create(context.Background(), c))

	applyMovement(t, ledger, engine, c, LineItem{
		OccurredDate: day(10), ProcessedAt: day(10).Add(time.Hour),
		Quantity: 5, Reason: creditReason(),
	})

	_, found, err := engine.StockOnHandAsOf(context.Background(), c.ID, day(9))
	require.NoError(t, err)
	assert.False(t, found, "no balance exists before the first movement")
}

func TestService_StockOnHandAsOf_UnknownIdentity(t *testing.T) {
	ledger := newMemoryLedger()
	svc := NewService(ledger, NewEngine(ledger, ledger))

	_, tracked, err := svc.StockOnHandAsOf(context.Background(), testIdentity(), day(1))
	require.NoError(t, err)
	assert.False(t, tracked)
}
