package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medstock/internal/core/apperror"
	"medstock/internal/core/id"
	"medstock/internal/domain/card"
	"medstock/internal/domain/reason"
	"medstock/internal/domain/refdata"
)

// stubValidator records whether it ran and fails on demand.
type stubValidator struct {
	name string
	err  error
	ran  bool
}

func (s *stubValidator) Name() string { return s.name }

func (s *stubValidator) Validate(_ context.Context, _ *StockEvent, _ *ProcessContext) error {
	s.ran = true
	return s.err
}

func TestChain_FailFast(t *testing.T) {
	boom := errors.New("boom")
	first := &stubValidator{name: "first"}
	second := &stubValidator{name: "second", err: boom}
	third := &stubValidator{name: "third"}

	chain := NewChainOf(first, second, third)
	err := chain.Validate(context.Background(), &StockEvent{}, &ProcessContext{})

	require.ErrorIs(t, err, boom)
	assert.True(t, first.ran)
	assert.True(t, second.ran)
	assert.False(t, third.ran, "validators after the failure must not run")
}

func TestChain_Order(t *testing.T) {
	chain := NewChain(ChainDeps{
		Reasons: &fakeReasons{},
		Cards:   &fakeCards{},
		Lookup:  &fakeLookup{},
	})

	assert.Equal(t, []string{
		"mandatoryFields",
		"orderableDuplication",
		"approvedOrderable",
		"lot",
		"unitOfOrderable",
		"reasonExistence",
		"reasonAssignment",
		"receiveIssueReason",
		"adjustmentReason",
		"freeText",
		"sourceDestinationAssignment",
		"geoAffinity",
		"wardFacility",
		"vvmStatus",
		"physicalInventoryAdjustmentReasons",
		"physicalInventoryCoverage",
		"kitUnpacking",
		"quantity",
	}, chain.Names())
}

// --- fixtures ---

func yesterday() time.Time {
	return card.DateOf(time.Now().AddDate(0, 0, -1))
}

func testEvent(lines ...LineItem) *StockEvent {
	return NewStockEvent(id.New(), id.New(), id.New(), yesterday(), lines)
}

func contextFor(ev *StockEvent, orderables ...refdata.Orderable) *ProcessContext {
	pctx := &ProcessContext{
		Program:          &refdata.Program{ID: ev.ProgramID, Active: true},
		Facility:         &refdata.Facility{ID: ev.FacilityID, TypeID: id.New(), TypeCode: "DC"},
		ApprovedProducts: make(map[id.ID]refdata.ApprovedProduct),
		Lots:             make(map[id.ID]refdata.Lot),
		UserID:           ev.UserID,
		UnpackReasonID:   reason.UnpackKitReasonID,
	}
	for _, o := range orderables {
		pctx.ApprovedProducts[o.ID] = refdata.ApprovedProduct{Orderable: o}
	}
	return pctx
}

func ruleOf(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	rule := apperror.Rule(err)
	require.NotEmpty(t, rule, "expected a rule violation, got %v", err)
	return rule
}

// --- mandatory fields ---

func TestMandatoryFieldsValidator(t *testing.T) {
	orderable := refdata.Orderable{ID: id.New()}
	v := &mandatoryFieldsValidator{}

	t.Run("valid event passes", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: orderable.ID, Quantity: 1, SourceID: id.Ptr(id.New())})
		require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev, orderable)))
	})

	t.Run("unknown program", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: orderable.ID, Quantity: 1})
		pctx := contextFor(ev, orderable)
		pctx.Program = nil
		assert.Equal(t, RuleMandatoryFields, ruleOf(t, v.Validate(context.Background(), ev, pctx)))
	})

	t.Run("unknown facility", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: orderable.ID, Quantity: 1})
		pctx := contextFor(ev, orderable)
		pctx.Facility = nil
		assert.Equal(t, RuleMandatoryFields, ruleOf(t, v.Validate(context.Background(), ev, pctx)))
	})

	t.Run("no line items", func(t *testing.T) {
		ev := testEvent()
		assert.Equal(t, RuleMandatoryFields, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev))))
	})

	t.Run("future occurred date", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: orderable.ID, Quantity: 1})
		ev.OccurredDate = card.DateOf(time.Now().AddDate(0, 0, 2))
		assert.Equal(t, RuleMandatoryFields, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev, orderable))))
	})

	t.Run("negative quantity", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: orderable.ID, Quantity: -3})
		assert.Equal(t, RuleMandatoryFields, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev, orderable))))
	})
}

// --- duplication ---

func TestDuplicationValidator(t *testing.T) {
	v := &duplicationValidator{}
	orderableID := id.New()
	lotID := id.New()
	src := id.Ptr(id.New())

	t.Run("duplicate orderable and lot rejected", func(t *testing.T) {
		ev := testEvent(
			LineItem{OrderableID: orderableID, LotID: &lotID, Quantity: 1, SourceID: src},
			LineItem{OrderableID: orderableID, LotID: &lotID, Quantity: 2, SourceID: src},
		)
		assert.Equal(t, RuleOrderableDuplication, ruleOf(t, v.Validate(context.Background(), ev, nil)))
	})

	t.Run("same orderable different lots pass", func(t *testing.T) {
		otherLot := id.New()
		ev := testEvent(
			LineItem{OrderableID: orderableID, LotID: &lotID, Quantity: 1, SourceID: src},
			LineItem{OrderableID: orderableID, LotID: &otherLot, Quantity: 2, SourceID: src},
		)
		require.NoError(t, v.Validate(context.Background(), ev, nil))
	})

	t.Run("physical inventory exempt", func(t *testing.T) {
		ev := testEvent(
			LineItem{OrderableID: orderableID, Quantity: 1},
			LineItem{OrderableID: orderableID, Quantity: 2},
		)
		require.True(t, ev.IsPhysicalInventory())
		require.NoError(t, v.Validate(context.Background(), ev, nil))
	})
}

// --- approved orderable and lot ---

func TestApprovedOrderableValidator(t *testing.T) {
	v := &approvedOrderableValidator{}
	approved := refdata.Orderable{ID: id.New()}

	ev := testEvent(LineItem{OrderableID: approved.ID, Quantity: 1, SourceID: id.Ptr(id.New())})
	require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev, approved)))

	stranger := testEvent(LineItem{OrderableID: id.New(), Quantity: 1})
	assert.Equal(t, RuleApprovedOrderable, ruleOf(t, v.Validate(context.Background(), stranger, contextFor(stranger, approved))))
}

func TestLotValidator(t *testing.T) {
	v := &lotValidator{}
	orderableID := id.New()
	lot := refdata.Lot{ID: id.New(), OrderableID: orderableID, Active: true}

	t.Run("lot of another orderable rejected", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: id.New(), LotID: &lot.ID, Quantity: 1})
		pctx := contextFor(ev)
		pctx.Lots[lot.ID] = lot
		assert.Equal(t, RuleLot, ruleOf(t, v.Validate(context.Background(), ev, pctx)))
	})

	t.Run("unknown lot rejected", func(t *testing.T) {
		unknown := id.New()
		ev := testEvent(LineItem{OrderableID: orderableID, LotID: &unknown, Quantity: 1})
		assert.Equal(t, RuleLot, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev))))
	})

	t.Run("matching lot passes", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: orderableID, LotID: &lot.ID, Quantity: 1})
		pctx := contextFor(ev)
		pctx.Lots[lot.ID] = lot
		require.NoError(t, v.Validate(context.Background(), ev, pctx))
	})
}

// --- vvm ---

func TestVVMValidator(t *testing.T) {
	v := &vvmValidator{}
	vaccine := refdata.Orderable{ID: id.New(), VVMEnabled: true}
	pill := refdata.Orderable{ID: id.New()}

	ev := testEvent(LineItem{OrderableID: vaccine.ID, Quantity: 1, VVMStatus: "STAGE_2"})
	require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev, vaccine)))

	bad := testEvent(LineItem{OrderableID: pill.ID, Quantity: 1, VVMStatus: "STAGE_2"})
	assert.Equal(t, RuleVVMStatus, ruleOf(t, v.Validate(context.Background(), bad, contextFor(bad, pill))))
}

// --- kit unpacking ---

func TestKitUnpackValidator(t *testing.T) {
	kit := refdata.Orderable{ID: id.New(), IsKit: true}
	partA := refdata.Orderable{ID: id.New()}
	partB := refdata.Orderable{ID: id.New()}

	unpackID := reason.UnpackKitReasonID
	creditID := id.New()
	reasons := &fakeReasons{reasons: map[id.ID]reason.Reason{
		unpackID: {ID: unpackID, Type: reason.TypeDebit, Category: reason.CategoryAdjustment},
		creditID: {ID: creditID, Type: reason.TypeCredit, Category: reason.CategoryAdjustment},
	}}
	lookup := &fakeLookup{constituents: map[id.ID][]refdata.KitConstituent{
		kit.ID: {
			{OrderableID: partA.ID, Ratio: 2},
			{OrderableID: partB.ID, Ratio: 5},
		},
	}}
	v := &kitUnpackValidator{reasons: reasons, lookup: lookup}

	t.Run("consistent unpack passes", func(t *testing.T) {
		ev := testEvent(
			LineItem{OrderableID: kit.ID, Quantity: 3, ReasonID: &unpackID},
			LineItem{OrderableID: partA.ID, Quantity: 6, ReasonID: &creditID},
			LineItem{OrderableID: partB.ID, Quantity: 15, ReasonID: &creditID},
		)
		require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev, kit, partA, partB)))
	})

	t.Run("constituent quantity off recipe rejected", func(t *testing.T) {
		ev := testEvent(
			LineItem{OrderableID: kit.ID, Quantity: 3, ReasonID: &unpackID},
			LineItem{OrderableID: partA.ID, Quantity: 6, ReasonID: &creditID},
			LineItem{OrderableID: partB.ID, Quantity: 14, ReasonID: &creditID},
		)
		assert.Equal(t, RuleKitUnpacking, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev, kit, partA, partB))))
	})

	t.Run("unpack reason on non-kit rejected", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: partA.ID, Quantity: 1, ReasonID: &unpackID})
		assert.Equal(t, RuleKitUnpacking, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev, kit, partA))))
	})

	t.Run("kit without recipe rejected", func(t *testing.T) {
		bareKit := refdata.Orderable{ID: id.New(), IsKit: true}
		ev := testEvent(LineItem{OrderableID: bareKit.ID, Quantity: 1, ReasonID: &unpackID})
		assert.Equal(t, RuleKitUnpacking, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev, bareKit))))
	})
}

// --- physical inventory coverage ---

func TestActiveCoverageValidator(t *testing.T) {
	ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 5})
	require.True(t, ev.IsPhysicalInventory())

	tracked := card.NewStockCard(card.Identity{
		ProgramID:   ev.ProgramID,
		FacilityID:  ev.FacilityID,
		OrderableID: id.New(),
	})
	v := &activeCoverageValidator{cards: &fakeCards{cards: []card.StockCard{*tracked}}}

	assert.Equal(t, RuleActiveCoverage, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev))))

	// Counting the tracked tuple as well satisfies coverage.
	covered := testEvent(
		LineItem{OrderableID: ev.LineItems[0].OrderableID, Quantity: 5},
		LineItem{OrderableID: tracked.OrderableID, Quantity: 0},
	)
	covered.ProgramID = ev.ProgramID
	covered.FacilityID = ev.FacilityID
	require.NoError(t, v.Validate(context.Background(), covered, contextFor(covered)))
}

// --- quantity dry run ---

func TestQuantityValidator(t *testing.T) {
	orderable := refdata.Orderable{ID: id.New()}
	debitID := id.New()
	creditID := id.New()
	reasons := &fakeReasons{reasons: map[id.ID]reason.Reason{
		debitID:  {ID: debitID, Type: reason.TypeDebit},
		creditID: {ID: creditID, Type: reason.TypeCredit},
	}}

	newCard := func(ev *StockEvent, soh int32) card.StockCard {
		c := card.NewStockCard(card.Identity{
			ProgramID:   ev.ProgramID,
			FacilityID:  ev.FacilityID,
			OrderableID: orderable.ID,
		})
		c.StockOnHand = soh
		return *c
	}

	t.Run("debit within balance passes", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: orderable.ID, Quantity: 10, ReasonID: &debitID})
		v := &quantityValidator{cards: &fakeCards{cards: []card.StockCard{newCard(ev, 10)}}, reasons: reasons}
		require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev, orderable)))
	})

	t.Run("debit below zero rejected with operands", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: orderable.ID, Quantity: 11, ReasonID: &debitID})
		v := &quantityValidator{cards: &fakeCards{cards: []card.StockCard{newCard(ev, 10)}}, reasons: reasons}

		err := v.Validate(context.Background(), ev, contextFor(ev, orderable))
		assert.Equal(t, RuleQuantity, ruleOf(t, err))
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, int64(10), appErr.Details["stockOnHand"])
		assert.Equal(t, int64(11), appErr.Details["quantity"])
	})

	t.Run("credit earlier in the event funds a later debit", func(t *testing.T) {
		ev := testEvent(
			LineItem{OrderableID: orderable.ID, Quantity: 20, ReasonID: &creditID},
			LineItem{OrderableID: orderable.ID, LotID: nil, Quantity: 15, ReasonID: &debitID},
		)
		// No persisted card at all: the event itself supplies the balance.
		v := &quantityValidator{cards: &fakeCards{}, reasons: reasons}

		// Both lines share the tuple, so duplication would reject this event;
		// the quantity check itself replays them in submission order.
		require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev, orderable)))
	})

	t.Run("physical count resets the running balance", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: orderable.ID, Quantity: 3})
		require.True(t, ev.LineItems[0].IsPhysicalInventory())
		v := &quantityValidator{cards: &fakeCards{cards: []card.StockCard{newCard(ev, 100)}}, reasons: reasons}
		require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev, orderable)))
	})

	t.Run("debit against untracked tuple rejected", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: orderable.ID, Quantity: 1, ReasonID: &debitID})
		v := &quantityValidator{cards: &fakeCards{}, reasons: reasons}
		assert.Equal(t, RuleQuantity, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev, orderable))))
	})

	t.Run("balance adjustment never moves the running balance", func(t *testing.T) {
		balanceID := id.New()
		balanceReasons := &fakeReasons{reasons: map[id.ID]reason.Reason{
			balanceID: {ID: balanceID, Type: reason.TypeBalanceAdjustment},
		}}
		// An untracked tuple sits at zero; a debit of 5 would reject, a
		// balance adjustment of 5 must not.
		ev := testEvent(LineItem{OrderableID: orderable.ID, Quantity: 5, ReasonID: &balanceID})
		v := &quantityValidator{cards: &fakeCards{}, reasons: balanceReasons}
		require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev, orderable)))
	})
}
