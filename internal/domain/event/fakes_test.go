package event

import (
	"context"
	"sync"
	"time"

	"medstock/internal/core/id"
	"medstock/internal/domain/card"
	"medstock/internal/domain/reason"
	"medstock/internal/domain/refdata"
)

// fakeLookup is an in-memory refdata.Lookup that counts calls per resource.
type fakeLookup struct {
	mu    sync.Mutex
	calls map[string]int

	program      *refdata.Program
	facility     *refdata.Facility
	facilities   map[id.ID]refdata.Facility
	approved     []refdata.ApprovedProduct
	lots         []refdata.Lot
	units        map[id.ID]refdata.OrderableUnit
	constituents map[id.ID][]refdata.KitConstituent

	err error
}

func (f *fakeLookup) record(resource string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[resource]++
}

func (f *fakeLookup) callCount(resource string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[resource]
}

func (f *fakeLookup) FindProgram(_ context.Context, _ id.ID) (*refdata.Program, error) {
	f.record("program")
	return f.program, f.err
}

func (f *fakeLookup) FindFacility(_ context.Context, facilityID id.ID) (*refdata.Facility, error) {
	f.record("facility")
	if fac, ok := f.facilities[facilityID]; ok {
		return &fac, nil
	}
	return f.facility, f.err
}

func (f *fakeLookup) FindApprovedProducts(_ context.Context, _, _ id.ID) ([]refdata.ApprovedProduct, error) {
	f.record("approvedProducts")
	return f.approved, f.err
}

func (f *fakeLookup) FindLots(_ context.Context, _ []id.ID) ([]refdata.Lot, error) {
	f.record("lots")
	return f.lots, f.err
}

func (f *fakeLookup) FindOrderableUnit(_ context.Context, unitID id.ID) (*refdata.OrderableUnit, error) {
	f.record("orderableUnit")
	if u, ok := f.units[unitID]; ok {
		return &u, nil
	}
	return nil, nil
}

func (f *fakeLookup) FindKitConstituents(_ context.Context, kitOrderableID id.ID) ([]refdata.KitConstituent, error) {
	f.record("kitConstituents")
	return f.constituents[kitOrderableID], nil
}

func (f *fakeLookup) FindRight(_ context.Context, _ string) (*refdata.Right, error) {
	f.record("right")
	return nil, nil
}

func (f *fakeLookup) FindSupervisoryNode(_ context.Context, _, _ id.ID) (*refdata.SupervisoryNode, error) {
	f.record("supervisoryNode")
	return nil, nil
}

func (f *fakeLookup) FindUsersWithRight(_ context.Context, _, _, _ id.ID) ([]refdata.User, error) {
	f.record("usersWithRight")
	return nil, nil
}

// fakeReasons is an in-memory reason.Repository.
type fakeReasons struct {
	reasons      map[id.ID]reason.Reason
	assigned     []reason.Reason
	sources      []reason.ValidSourceDestination
	destinations []reason.ValidSourceDestination
	nodes        map[id.ID]reason.Node
}

func (f *fakeReasons) FindByIDs(_ context.Context, ids []id.ID) (map[id.ID]reason.Reason, error) {
	found := reason.PhysicalInventoryReasons()
	for _, rid := range ids {
		if r, ok := f.reasons[rid]; ok {
			found[rid] = r
		}
	}
	return found, nil
}

func (f *fakeReasons) FindAssigned(_ context.Context, _, _ id.ID) ([]reason.Reason, error) {
	return f.assigned, nil
}

func (f *fakeReasons) FindValidSources(_ context.Context, _, _ id.ID) ([]reason.ValidSourceDestination, error) {
	return f.sources, nil
}

func (f *fakeReasons) FindValidDestinations(_ context.Context, _, _ id.ID) ([]reason.ValidSourceDestination, error) {
	return f.destinations, nil
}

func (f *fakeReasons) FindNode(_ context.Context, nodeID id.ID) (*reason.Node, error) {
	if n, ok := f.nodes[nodeID]; ok {
		return &n, nil
	}
	return nil, nil
}

// fakeCards is an in-memory card.Repository covering what the validator
// chain and the processor touch.
type fakeCards struct {
	cards []card.StockCard

	created    []card.StockCard
	savedItems []card.LineItem
}

func (f *fakeCards) FindByIdentity(_ context.Context, identity card.Identity) (*card.StockCard, error) {
	for i := range f.cards {
		if f.cards[i].Identity().Matches(identity) {
			c := f.cards[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeCards) FindByIdentityForUpdate(ctx context.Context, identity card.Identity) (*card.StockCard, error) {
	return f.FindByIdentity(ctx, identity)
}

func (f *fakeCards) FindByIDs(_ context.Context, _ []id.ID) ([]card.StockCard, error) {
	return nil, nil
}

func (f *fakeCards) FindActiveIdentities(_ context.Context, programID, facilityID id.ID) ([]card.Identity, error) {
	var out []card.Identity
	for i := range f.cards {
		if f.cards[i].ProgramID == programID && f.cards[i].FacilityID == facilityID {
			out = append(out, f.cards[i].Identity())
		}
	}
	return out, nil
}

func (f *fakeCards) FindLineItemsAfter(_ context.Context, _ id.ID, _ time.Time) ([]card.LineItem, error) {
	return nil, nil
}

func (f *fakeCards) Create(_ context.Context, c *card.StockCard) error {
	f.cards = append(f.cards, *c)
	f.created = append(f.created, *c)
	return nil
}

func (f *fakeCards) SaveStockOnHand(_ context.Context, c *card.StockCard) error {
	for i := range f.cards {
		if f.cards[i].ID == c.ID {
			f.cards[i] = *c
		}
	}
	return nil
}

func (f *fakeCards) SaveLineItems(_ context.Context, items []card.LineItem) error {
	f.savedItems = append(f.savedItems, items...)
	return nil
}

func (f *fakeCards) UpdateLineItemCalculations(_ context.Context, _ []card.LineItem) error {
	return nil
}

// fakeSnapshots is an in-memory card.SnapshotRepository.
type fakeSnapshots struct {
	snapshots []card.CalculatedStockOnHand
}

func (f *fakeSnapshots) FindLatestAsOf(_ context.Context, cardID id.ID, date time.Time) (*card.CalculatedStockOnHand, error) {
	var best *card.CalculatedStockOnHand
	for i := range f.snapshots {
		s := f.snapshots[i]
		if s.StockCardID != cardID || s.OccurredDate.After(date) {
			continue
		}
		if best == nil || s.OccurredDate.After(best.OccurredDate) {
			best = &s
		}
	}
	return best, nil
}

func (f *fakeSnapshots) DeleteFrom(_ context.Context, cardID id.ID, date time.Time) error {
	var kept []card.CalculatedStockOnHand
	for _, s := range f.snapshots {
		if s.StockCardID != cardID || s.OccurredDate.Before(date) {
			kept = append(kept, s)
		}
	}
	f.snapshots = kept
	return nil
}

func (f *fakeSnapshots) SaveAll(_ context.Context, snapshots []card.CalculatedStockOnHand) error {
	f.snapshots = append(f.snapshots, snapshots...)
	return nil
}
