package event

import (
	"context"

	"medstock/internal/core/apperror"
	"medstock/internal/core/id"
	"medstock/internal/domain/reason"
)

// resolveReasons loads every reason the event references in one call.
func resolveReasons(ctx context.Context, repo reason.Repository, ev *StockEvent) (map[id.ID]reason.Reason, error) {
	ids := ev.ReferencedReasonIDs()
	if len(ids) == 0 {
		return map[id.ID]reason.Reason{}, nil
	}
	return repo.FindByIDs(ctx, ids)
}

// assignedReasonSet loads the valid reason assignments for the event's
// program and facility type as a lookup set.
func assignedReasonSet(ctx context.Context, repo reason.Repository, ev *StockEvent, pctx *ProcessContext) (map[id.ID]struct{}, error) {
	assigned, err := repo.FindAssigned(ctx, ev.ProgramID, pctx.Facility.TypeID)
	if err != nil {
		return nil, err
	}
	set := make(map[id.ID]struct{}, len(assigned))
	for i := range assigned {
		set[assigned[i].ID] = struct{}{}
	}
	return set, nil
}

// reasonExistenceValidator checks every referenced reason id, including
// physical-inventory adjustment reasons, resolves to a stored reason.
type reasonExistenceValidator struct {
	reasons reason.Repository
}

func (v *reasonExistenceValidator) Name() string { return "reasonExistence" }

func (v *reasonExistenceValidator) Validate(ctx context.Context, ev *StockEvent, _ *ProcessContext) error {
	found, err := resolveReasons(ctx, v.reasons, ev)
	if err != nil {
		return err
	}
	for _, rid := range ev.ReferencedReasonIDs() {
		if _, ok := found[rid]; !ok {
			return apperror.NewRuleViolation(RuleReasonExists, "reason does not exist").
				WithDetail("reasonId", rid)
		}
	}
	return nil
}

// reasonAssignmentValidator checks every line-item reason is assigned to
// the event's program and facility type. The kit-unpack reason is globally
// available and exempt; adjustment reasons inside physical counts have
// their own check.
type reasonAssignmentValidator struct {
	reasons reason.Repository
}

func (v *reasonAssignmentValidator) Name() string { return "reasonAssignment" }

func (v *reasonAssignmentValidator) Validate(ctx context.Context, ev *StockEvent, pctx *ProcessContext) error {
	set, err := assignedReasonSet(ctx, v.reasons, ev, pctx)
	if err != nil {
		return err
	}
	for i := range ev.LineItems {
		li := &ev.LineItems[i]
		if li.ReasonID == nil || *li.ReasonID == pctx.UnpackReasonID {
			continue
		}
		if _, ok := set[*li.ReasonID]; !ok {
			return apperror.NewRuleViolation(RuleReasonAssignment, "reason is not assigned to this program and facility type").
				WithDetail("reasonId", *li.ReasonID).
				WithDetail("programId", ev.ProgramID).
				WithDetail("facilityTypeId", pctx.Facility.TypeID)
		}
	}
	return nil
}

// receiveIssueReasonValidator ties reason semantics to transfer direction:
// a line with a source (a receive) may only carry a CREDIT reason of a
// transfer category, a line with a destination (an issue) only a DEBIT one.
// Transfers without a reason are fine.
type receiveIssueReasonValidator struct {
	reasons reason.Repository
}

func (v *receiveIssueReasonValidator) Name() string { return "receiveIssueReason" }

func (v *receiveIssueReasonValidator) Validate(ctx context.Context, ev *StockEvent, _ *ProcessContext) error {
	found, err := resolveReasons(ctx, v.reasons, ev)
	if err != nil {
		return err
	}
	transferCategory := func(c reason.Category) bool {
		return c == reason.CategoryTransfer || c == reason.CategoryAdHoc
	}
	for i := range ev.LineItems {
		li := &ev.LineItems[i]
		if li.ReasonID == nil {
			continue
		}
		r, ok := found[*li.ReasonID]
		if !ok {
			continue // existence validator already ran
		}
		if li.SourceID != nil && (r.Type != reason.TypeCredit || !transferCategory(r.Category)) {
			return apperror.NewRuleViolation(RuleReceiveReason, "receive line requires a credit transfer reason").
				WithDetail("reasonId", r.ID).
				WithDetail("reasonType", r.Type).
				WithDetail("reasonCategory", r.Category)
		}
		if li.DestinationID != nil && (r.Type != reason.TypeDebit || !transferCategory(r.Category)) {
			return apperror.NewRuleViolation(RuleIssueReason, "issue line requires a debit transfer reason").
				WithDetail("reasonId", r.ID).
				WithDetail("reasonType", r.Type).
				WithDetail("reasonCategory", r.Category)
		}
	}
	return nil
}

// adjustmentReasonValidator requires plain adjustments (reason present,
// no source or destination) to use an ADJUSTMENT-category reason. The
// kit-unpack reason is exempt; it is validated by the unpacking check.
type adjustmentReasonValidator struct {
	reasons reason.Repository
}

func (v *adjustmentReasonValidator) Name() string { return "adjustmentReason" }

func (v *adjustmentReasonValidator) Validate(ctx context.Context, ev *StockEvent, pctx *ProcessContext) error {
	found, err := resolveReasons(ctx, v.reasons, ev)
	if err != nil {
		return err
	}
	for i := range ev.LineItems {
		li := &ev.LineItems[i]
		if li.ReasonID == nil || li.SourceID != nil || li.DestinationID != nil {
			continue
		}
		if *li.ReasonID == pctx.UnpackReasonID {
			continue
		}
		r, ok := found[*li.ReasonID]
		if !ok {
			continue
		}
		if r.Category != reason.CategoryAdjustment {
			return apperror.NewRuleViolation(RuleAdjustmentReason, "adjustment line requires an adjustment-category reason").
				WithDetail("reasonId", r.ID).
				WithDetail("reasonCategory", r.Category)
		}
	}
	return nil
}

// physicalAdjustmentReasonValidator checks the adjustment reasons nested in
// physical-inventory counts against the program/facility-type assignments.
type physicalAdjustmentReasonValidator struct {
	reasons reason.Repository
}

func (v *physicalAdjustmentReasonValidator) Name() string { return "physicalInventoryAdjustmentReasons" }

func (v *physicalAdjustmentReasonValidator) Validate(ctx context.Context, ev *StockEvent, pctx *ProcessContext) error {
	hasAdjustments := false
	for i := range ev.LineItems {
		if len(ev.LineItems[i].Adjustments) > 0 {
			hasAdjustments = true
			break
		}
	}
	if !hasAdjustments {
		return nil
	}
	set, err := assignedReasonSet(ctx, v.reasons, ev, pctx)
	if err != nil {
		return err
	}
	for i := range ev.LineItems {
		li := &ev.LineItems[i]
		if !li.IsPhysicalInventory() && len(li.Adjustments) > 0 {
			return apperror.NewRuleViolation(RulePhysicalAdjustmentReasons, "stock adjustments are only valid on physical inventory lines").
				WithDetail("orderableId", li.OrderableID)
		}
		for _, adj := range li.Adjustments {
			if _, ok := set[adj.ReasonID]; !ok {
				return apperror.NewRuleViolation(RulePhysicalAdjustmentReasons, "adjustment reason is not assigned to this program and facility type").
					WithDetail("reasonId", adj.ReasonID)
			}
		}
	}
	return nil
}
