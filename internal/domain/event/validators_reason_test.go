package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medstock/internal/core/id"
	"medstock/internal/domain/reason"
	"medstock/internal/domain/refdata"
)

func TestReasonExistenceValidator(t *testing.T) {
	known := reason.Reason{ID: id.New(), Type: reason.TypeDebit, Category: reason.CategoryAdjustment}
	v := &reasonExistenceValidator{reasons: &fakeReasons{reasons: map[id.ID]reason.Reason{known.ID: known}}}

	ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, ReasonID: &known.ID})
	require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev)))

	dangling := id.New()
	bad := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, ReasonID: &dangling})
	assert.Equal(t, RuleReasonExists, ruleOf(t, v.Validate(context.Background(), bad, contextFor(bad))))
}

func TestReasonExistenceValidator_AdjustmentReasonsChecked(t *testing.T) {
	v := &reasonExistenceValidator{reasons: &fakeReasons{}}

	// The dangling reason hides inside a physical count's adjustments.
	ev := testEvent(LineItem{
		OrderableID: id.New(),
		Quantity:    5,
		Adjustments: []Adjustment{{ReasonID: id.New(), Quantity: 2}},
	})
	assert.Equal(t, RuleReasonExists, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev))))
}

func TestReasonAssignmentValidator(t *testing.T) {
	assigned := reason.Reason{ID: id.New(), Type: reason.TypeDebit, Category: reason.CategoryAdjustment}
	other := reason.Reason{ID: id.New(), Type: reason.TypeDebit, Category: reason.CategoryAdjustment}
	repo := &fakeReasons{
		reasons:  map[id.ID]reason.Reason{assigned.ID: assigned, other.ID: other},
		assigned: []reason.Reason{assigned},
	}
	v := &reasonAssignmentValidator{reasons: repo}

	ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, ReasonID: &assigned.ID})
	require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev)))

	bad := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, ReasonID: &other.ID})
	assert.Equal(t, RuleReasonAssignment, ruleOf(t, v.Validate(context.Background(), bad, contextFor(bad))))

	// The kit-unpack reason is globally available, no assignment needed.
	unpackID := reason.UnpackKitReasonID
	unpack := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, ReasonID: &unpackID})
	require.NoError(t, v.Validate(context.Background(), unpack, contextFor(unpack)))
}

func TestReceiveIssueReasonValidator(t *testing.T) {
	creditTransfer := reason.Reason{ID: id.New(), Type: reason.TypeCredit, Category: reason.CategoryTransfer}
	debitTransfer := reason.Reason{ID: id.New(), Type: reason.TypeDebit, Category: reason.CategoryTransfer}
	adjustment := reason.Reason{ID: id.New(), Type: reason.TypeDebit, Category: reason.CategoryAdjustment}
	repo := &fakeReasons{reasons: map[id.ID]reason.Reason{
		creditTransfer.ID: creditTransfer,
		debitTransfer.ID:  debitTransfer,
		adjustment.ID:     adjustment,
	}}
	v := &receiveIssueReasonValidator{reasons: repo}

	src := id.Ptr(id.New())
	dest := id.Ptr(id.New())

	t.Run("receive with credit transfer reason passes", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, SourceID: src, ReasonID: &creditTransfer.ID})
		require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev)))
	})

	t.Run("receive with debit reason rejected", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, SourceID: src, ReasonID: &debitTransfer.ID})
		assert.Equal(t, RuleReceiveReason, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev))))
	})

	t.Run("issue with adjustment-category reason rejected", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, DestinationID: dest, ReasonID: &adjustment.ID})
		assert.Equal(t, RuleIssueReason, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev))))
	})

	t.Run("transfer without reason passes", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, DestinationID: dest})
		require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev)))
	})
}

func TestAdjustmentReasonValidator(t *testing.T) {
	adjustment := reason.Reason{ID: id.New(), Type: reason.TypeDebit, Category: reason.CategoryAdjustment}
	transfer := reason.Reason{ID: id.New(), Type: reason.TypeDebit, Category: reason.CategoryTransfer}
	repo := &fakeReasons{reasons: map[id.ID]reason.Reason{
		adjustment.ID: adjustment,
		transfer.ID:   transfer,
	}}
	v := &adjustmentReasonValidator{reasons: repo}

	ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, ReasonID: &adjustment.ID})
	require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev)))

	bad := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, ReasonID: &transfer.ID})
	assert.Equal(t, RuleAdjustmentReason, ruleOf(t, v.Validate(context.Background(), bad, contextFor(bad))))
}

func TestPhysicalAdjustmentReasonValidator(t *testing.T) {
	assigned := reason.Reason{ID: id.New(), Type: reason.TypeDebit, Category: reason.CategoryAdjustment}
	repo := &fakeReasons{assigned: []reason.Reason{assigned}}
	v := &physicalAdjustmentReasonValidator{reasons: repo}

	t.Run("assigned adjustment reason passes", func(t *testing.T) {
		ev := testEvent(LineItem{
			OrderableID: id.New(),
			Quantity:    5,
			Adjustments: []Adjustment{{ReasonID: assigned.ID, Quantity: 2}},
		})
		require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev)))
	})

	t.Run("unassigned adjustment reason rejected", func(t *testing.T) {
		ev := testEvent(LineItem{
			OrderableID: id.New(),
			Quantity:    5,
			Adjustments: []Adjustment{{ReasonID: id.New(), Quantity: 2}},
		})
		assert.Equal(t, RulePhysicalAdjustmentReasons, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev))))
	})

	t.Run("adjustments on a non-physical line rejected", func(t *testing.T) {
		ev := testEvent(LineItem{
			OrderableID: id.New(),
			Quantity:    5,
			SourceID:    id.Ptr(id.New()),
			Adjustments: []Adjustment{{ReasonID: assigned.ID, Quantity: 2}},
		})
		assert.Equal(t, RulePhysicalAdjustmentReasons, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev))))
	})
}

func TestFreeTextValidator(t *testing.T) {
	chatty := reason.Reason{ID: id.New(), Type: reason.TypeDebit, Category: reason.CategoryAdjustment, FreeTextAllowed: true}
	strict := reason.Reason{ID: id.New(), Type: reason.TypeDebit, Category: reason.CategoryAdjustment}

	orgNode := reason.Node{ID: id.New(), ReferenceID: id.New(), IsRefDataFacility: false, Name: "NGO warehouse"}
	facilityNode := reason.Node{ID: id.New(), ReferenceID: id.New(), IsRefDataFacility: true}

	repo := &fakeReasons{
		reasons: map[id.ID]reason.Reason{chatty.ID: chatty, strict.ID: strict},
		nodes:   map[id.ID]reason.Node{orgNode.ID: orgNode, facilityNode.ID: facilityNode},
	}
	v := &freeTextValidator{reasons: repo}

	t.Run("reason free text allowed", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, ReasonID: &chatty.ID, ReasonFreeText: "damaged in transit"})
		require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev)))
	})

	t.Run("reason free text forbidden", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, ReasonID: &strict.ID, ReasonFreeText: "note"})
		assert.Equal(t, RuleFreeText, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev))))
	})

	t.Run("free text without reason rejected", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, ReasonFreeText: "note"})
		assert.Equal(t, RuleFreeText, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev))))
	})

	t.Run("organization node free text allowed", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, SourceID: &orgNode.ID, SourceFreeText: "donation"})
		require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev)))
	})

	t.Run("facility node free text rejected", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, DestinationID: &facilityNode.ID, DestinationFreeText: "ward 3"})
		assert.Equal(t, RuleFreeText, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev))))
	})

	t.Run("free text on both ends rejected", func(t *testing.T) {
		ev := testEvent(LineItem{
			OrderableID: id.New(), Quantity: 1,
			SourceID: &orgNode.ID, SourceFreeText: "from",
			DestinationFreeText: "to",
		})
		assert.Equal(t, RuleFreeText, ruleOf(t, v.Validate(context.Background(), ev, contextFor(ev))))
	})
}

func TestSourceDestinationAssignmentValidator(t *testing.T) {
	node := reason.Node{ID: id.New(), ReferenceID: id.New(), IsRefDataFacility: true}
	repo := &fakeReasons{
		sources: []reason.ValidSourceDestination{{ID: id.New(), Node: node}},
	}
	v := &sourceDestinationAssignmentValidator{reasons: repo}

	ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, SourceID: &node.ID})
	require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev)))

	stranger := id.Ptr(id.New())
	bad := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, SourceID: stranger})
	assert.Equal(t, RuleSourceAssignment, ruleOf(t, v.Validate(context.Background(), bad, contextFor(bad))))

	// The node is assigned as a source only, not as a destination.
	issue := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, DestinationID: &node.ID})
	assert.Equal(t, RuleDestinationAssignment, ruleOf(t, v.Validate(context.Background(), issue, contextFor(issue))))
}

func TestGeoAffinityValidator(t *testing.T) {
	zoneA := id.New()
	zoneB := id.New()

	peerSame := refdata.Facility{ID: id.New(), GeographicZoneID: zoneA}
	peerOther := refdata.Facility{ID: id.New(), GeographicZoneID: zoneB}

	nodeSame := reason.Node{ID: id.New(), ReferenceID: peerSame.ID, IsRefDataFacility: true}
	nodeOther := reason.Node{ID: id.New(), ReferenceID: peerOther.ID, IsRefDataFacility: true}
	orgNode := reason.Node{ID: id.New(), ReferenceID: id.New(), IsRefDataFacility: false}

	repo := &fakeReasons{nodes: map[id.ID]reason.Node{
		nodeSame.ID:  nodeSame,
		nodeOther.ID: nodeOther,
		orgNode.ID:   orgNode,
	}}
	lookup := &fakeLookup{facilities: map[id.ID]refdata.Facility{
		peerSame.ID:  peerSame,
		peerOther.ID: peerOther,
	}}
	v := &geoAffinityValidator{reasons: repo, lookup: lookup}

	wardContext := func(ev *StockEvent) *ProcessContext {
		pctx := contextFor(ev)
		pctx.Facility.TypeCode = refdata.FacilityTypeWardService
		pctx.Facility.GeographicZoneID = zoneA
		return pctx
	}

	t.Run("non-ward facility unconstrained", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, SourceID: &nodeOther.ID})
		require.NoError(t, v.Validate(context.Background(), ev, contextFor(ev)))
	})

	t.Run("ward receives within its zone", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, SourceID: &nodeSame.ID})
		require.NoError(t, v.Validate(context.Background(), ev, wardContext(ev)))
	})

	t.Run("ward crossing zones rejected", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, SourceID: &nodeOther.ID})
		assert.Equal(t, RuleGeoAffinity, ruleOf(t, v.Validate(context.Background(), ev, wardContext(ev))))
	})

	t.Run("organization nodes carry no zone", func(t *testing.T) {
		ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, SourceID: &orgNode.ID})
		require.NoError(t, v.Validate(context.Background(), ev, wardContext(ev)))
	})
}

func TestWardFacilityValidator(t *testing.T) {
	zoneA := id.New()
	zoneB := id.New()

	ward := refdata.Facility{ID: id.New(), TypeCode: refdata.FacilityTypeWardService, GeographicZoneID: zoneB}
	wardNode := reason.Node{ID: id.New(), ReferenceID: ward.ID, IsRefDataFacility: true}

	repo := &fakeReasons{nodes: map[id.ID]reason.Node{wardNode.ID: wardNode}}
	lookup := &fakeLookup{facilities: map[id.ID]refdata.Facility{ward.ID: ward}}
	v := &wardFacilityValidator{reasons: repo, lookup: lookup}

	ev := testEvent(LineItem{OrderableID: id.New(), Quantity: 1, DestinationID: &wardNode.ID})
	pctx := contextFor(ev)
	pctx.Facility.GeographicZoneID = zoneA

	assert.Equal(t, RuleWardFacility, ruleOf(t, v.Validate(context.Background(), ev, pctx)))

	pctx.Facility.GeographicZoneID = zoneB
	require.NoError(t, v.Validate(context.Background(), ev, pctx))
}
