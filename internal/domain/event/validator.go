package event

import (
	"context"

	"medstock/internal/domain/card"
	"medstock/internal/domain/reason"
	"medstock/internal/domain/refdata"
	"medstock/pkg/logger"
)

// Rule keys carried by RULE_VIOLATION errors. The boundary layer maps them
// to user-facing messages; tests assert on them.
const (
	RuleMandatoryFields           = "event.mandatoryFields"
	RuleOrderableDuplication      = "event.orderableDuplication"
	RuleApprovedOrderable         = "event.orderableNotApproved"
	RuleLot                       = "event.lot"
	RuleUnitOfOrderable           = "event.unitOfOrderable"
	RuleReasonExists              = "event.reasonNotFound"
	RuleReasonAssignment          = "event.reasonAssignment"
	RuleReceiveReason             = "event.receiveReason"
	RuleIssueReason               = "event.issueReason"
	RuleAdjustmentReason          = "event.adjustmentReason"
	RuleFreeText                  = "event.freeText"
	RuleSourceAssignment          = "event.sourceAssignment"
	RuleDestinationAssignment     = "event.destinationAssignment"
	RuleGeoAffinity               = "event.geoAffinity"
	RuleWardFacility              = "event.wardFacility"
	RuleVVMStatus                 = "event.vvmStatus"
	RulePhysicalAdjustmentReasons = "event.physicalInventoryAdjustmentReasons"
	RuleActiveCoverage            = "event.physicalInventoryCoverage"
	RuleKitUnpacking              = "event.kitUnpacking"
	RuleQuantity                  = "event.quantity"
)

// Validator checks exactly one invariant category against the event and
// its prefetched context. Validators are stateless aside from injected
// read-only collaborators.
type Validator interface {
	Name() string
	Validate(ctx context.Context, ev *StockEvent, pctx *ProcessContext) error
}

// ChainDeps holds the read-only collaborators validators may use.
type ChainDeps struct {
	Reasons reason.Repository
	Cards   card.Repository
	Lookup  refdata.Lookup
}

// Chain runs validators strictly sequentially and fails fast: the first
// error aborts the whole event, no later validator runs, nothing is
// partially applied.
type Chain struct {
	validators []Validator
}

// NewChain builds the validator chain. The order below is a program
// invariant, not incidental wiring: cheap structural checks run before
// checks that hit repositories, and the quantity check runs last so its
// balance arithmetic can assume resolvable reasons. Covered by tests.
func NewChain(deps ChainDeps) *Chain {
	return &Chain{validators: []Validator{
		&mandatoryFieldsValidator{},
		&duplicationValidator{},
		&approvedOrderableValidator{},
		&lotValidator{},
		&unitOfOrderableValidator{lookup: deps.Lookup},
		&reasonExistenceValidator{reasons: deps.Reasons},
		&reasonAssignmentValidator{reasons: deps.Reasons},
		&receiveIssueReasonValidator{reasons: deps.Reasons},
		&adjustmentReasonValidator{reasons: deps.Reasons},
		&freeTextValidator{reasons: deps.Reasons},
		&sourceDestinationAssignmentValidator{reasons: deps.Reasons},
		&geoAffinityValidator{reasons: deps.Reasons, lookup: deps.Lookup},
		&wardFacilityValidator{reasons: deps.Reasons, lookup: deps.Lookup},
		&vvmValidator{},
		&physicalAdjustmentReasonValidator{reasons: deps.Reasons},
		&activeCoverageValidator{cards: deps.Cards},
		&kitUnpackValidator{reasons: deps.Reasons, lookup: deps.Lookup},
		&quantityValidator{cards: deps.Cards, reasons: deps.Reasons},
	}}
}

// NewChainOf builds a chain from explicit validators. Used by tests.
func NewChainOf(validators ...Validator) *Chain {
	return &Chain{validators: validators}
}

// Names returns validator names in execution order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.validators))
	for i, v := range c.validators {
		names[i] = v.Name()
	}
	return names
}

// Validate runs the chain against the event. Returns the first validator's
// error unchanged; validation errors are hard stops, never warnings.
func (c *Chain) Validate(ctx context.Context, ev *StockEvent, pctx *ProcessContext) error {
	for _, v := range c.validators {
		if err := v.Validate(ctx, ev, pctx); err != nil {
			logger.Debug(ctx, "stock event rejected",
				"validator", v.Name(),
				"event_id", ev.ID,
				"error", err,
			)
			return err
		}
	}
	return nil
}
