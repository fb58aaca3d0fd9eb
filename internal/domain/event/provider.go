package event

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	appctx "medstock/internal/core/context"
	"medstock/internal/core/id"
	"medstock/internal/domain/reason"
	"medstock/internal/domain/refdata"
)

const defaultLookupTimeout = 10 * time.Second

// ContextBuilder assembles a ProcessContext with at most one batched call
// per remote resource type, however many line items reference it. The four
// lookups are independent reads with no ordering dependency, so they run
// concurrently under a shared timeout; the first transport failure cancels
// the rest.
type ContextBuilder struct {
	lookup  refdata.Lookup
	timeout time.Duration
}

// NewContextBuilder creates a builder over the reference-data lookup.
func NewContextBuilder(lookup refdata.Lookup, timeout time.Duration) *ContextBuilder {
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return &ContextBuilder{lookup: lookup, timeout: timeout}
}

// Build fetches the event's reference context. Missing references come
// back as nil/absent entries for the validator chain to reject; only
// transport failures (including timeout) return an error.
func (b *ContextBuilder) Build(ctx context.Context, ev *StockEvent) (*ProcessContext, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	// Each fetch writes to its own variable; results are assembled only
	// after every goroutine completed.
	var (
		program  *refdata.Program
		facility *refdata.Facility
		approved []refdata.ApprovedProduct
		lots     []refdata.Lot
	)

	g.Go(func() error {
		var err error
		program, err = b.lookup.FindProgram(gctx, ev.ProgramID)
		return err
	})
	g.Go(func() error {
		var err error
		facility, err = b.lookup.FindFacility(gctx, ev.FacilityID)
		return err
	})
	g.Go(func() error {
		var err error
		approved, err = b.lookup.FindApprovedProducts(gctx, ev.ProgramID, ev.FacilityID)
		return err
	})
	if lotIDs := ev.ReferencedLotIDs(); len(lotIDs) > 0 {
		g.Go(func() error {
			var err error
			lots, err = b.lookup.FindLots(gctx, lotIDs)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	pctx := &ProcessContext{
		Program:          program,
		Facility:         facility,
		ApprovedProducts: make(map[id.ID]refdata.ApprovedProduct, len(approved)),
		Lots:             make(map[id.ID]refdata.Lot, len(lots)),
		UserID:           ev.UserID,
		UnpackReasonID:   reason.UnpackKitReasonID,
	}
	if id.IsNil(pctx.UserID) {
		pctx.UserID = appctx.GetUserID(ctx)
	}
	for _, ap := range approved {
		pctx.ApprovedProducts[ap.Orderable.ID] = ap
	}
	for _, lot := range lots {
		pctx.Lots[lot.ID] = lot
	}

	return pctx, nil
}
