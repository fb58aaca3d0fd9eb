package event

import (
	"context"
	"fmt"
	"time"

	"medstock/internal/core/apperror"
	"medstock/internal/core/id"
	"medstock/internal/domain/card"
	"medstock/internal/domain/refdata"
)

// mandatoryFieldsValidator checks structural completeness: resolvable
// program and facility, at least one line item, non-negative quantities
// and an occurred date that is set and not in the future.
type mandatoryFieldsValidator struct{}

func (v *mandatoryFieldsValidator) Name() string { return "mandatoryFields" }

func (v *mandatoryFieldsValidator) Validate(_ context.Context, ev *StockEvent, pctx *ProcessContext) error {
	if pctx.Program == nil {
		return apperror.NewRuleViolation(RuleMandatoryFields, "program does not exist").
			WithDetail("programId", ev.ProgramID)
	}
	if pctx.Facility == nil {
		return apperror.NewRuleViolation(RuleMandatoryFields, "facility does not exist").
			WithDetail("facilityId", ev.FacilityID)
	}
	if len(ev.LineItems) == 0 {
		return apperror.NewRuleViolation(RuleMandatoryFields, "event has no line items")
	}
	if ev.OccurredDate.IsZero() {
		return apperror.NewRuleViolation(RuleMandatoryFields, "occurred date is required")
	}
	if ev.OccurredDate.After(card.DateOf(time.Now())) {
		return apperror.NewRuleViolation(RuleMandatoryFields, "occurred date cannot be in the future").
			WithDetail("occurredDate", ev.OccurredDate)
	}
	for i := range ev.LineItems {
		li := &ev.LineItems[i]
		if id.IsNil(li.OrderableID) {
			return apperror.NewRuleViolation(RuleMandatoryFields, "line item has no orderable").
				WithDetail("lineIndex", i)
		}
		if li.Quantity < 0 {
			return apperror.NewRuleViolation(RuleMandatoryFields, "line item quantity cannot be negative").
				WithDetail("lineIndex", i).
				WithDetail("quantity", li.Quantity)
		}
	}
	return nil
}

// duplicationValidator rejects two non-physical line items targeting the
// same (orderable, lot) tuple. Physical-inventory events are exempt: their
// coverage check already forces one count per tuple.
type duplicationValidator struct{}

func (v *duplicationValidator) Name() string { return "orderableDuplication" }

func (v *duplicationValidator) Validate(_ context.Context, ev *StockEvent, _ *ProcessContext) error {
	if ev.IsPhysicalInventory() {
		return nil
	}
	type key struct {
		orderable id.ID
		lot       id.ID
	}
	seen := make(map[key]struct{}, len(ev.LineItems))
	for i := range ev.LineItems {
		li := &ev.LineItems[i]
		k := key{orderable: li.OrderableID}
		if li.LotID != nil {
			k.lot = *li.LotID
		}
		if _, ok := seen[k]; ok {
			return apperror.NewRuleViolation(RuleOrderableDuplication, "duplicate orderable and lot in event").
				WithDetail("orderableId", li.OrderableID).
				WithDetail("lotId", li.LotID)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// approvedOrderableValidator checks every orderable against the approved
// product list for the event's facility and program.
type approvedOrderableValidator struct{}

func (v *approvedOrderableValidator) Name() string { return "approvedOrderable" }

func (v *approvedOrderableValidator) Validate(_ context.Context, ev *StockEvent, pctx *ProcessContext) error {
	for i := range ev.LineItems {
		orderableID := ev.LineItems[i].OrderableID
		if _, ok := pctx.ApprovedProducts[orderableID]; !ok {
			return apperror.NewRuleViolation(RuleApprovedOrderable, "orderable is not approved for this facility and program").
				WithDetail("orderableId", orderableID)
		}
	}
	return nil
}

// lotValidator checks every referenced lot exists and belongs to the line
// item's orderable.
type lotValidator struct{}

func (v *lotValidator) Name() string { return "lot" }

func (v *lotValidator) Validate(_ context.Context, ev *StockEvent, pctx *ProcessContext) error {
	for i := range ev.LineItems {
		li := &ev.LineItems[i]
		if li.LotID == nil {
			continue
		}
		lot, ok := pctx.Lots[*li.LotID]
		if !ok {
			return apperror.NewRuleViolation(RuleLot, "lot does not exist").
				WithDetail("lotId", *li.LotID)
		}
		if lot.OrderableID != li.OrderableID {
			return apperror.NewRuleViolation(RuleLot, "lot does not belong to the line item's orderable").
				WithDetail("lotId", lot.ID).
				WithDetail("orderableId", li.OrderableID).
				WithDetail("lotOrderableId", lot.OrderableID)
		}
	}
	return nil
}

// unitOfOrderableValidator resolves every referenced unit of orderable.
// Units are rare, so they are resolved here instead of the prefetch.
type unitOfOrderableValidator struct {
	lookup refdata.Lookup
}

func (v *unitOfOrderableValidator) Name() string { return "unitOfOrderable" }

func (v *unitOfOrderableValidator) Validate(ctx context.Context, ev *StockEvent, _ *ProcessContext) error {
	checked := make(map[id.ID]struct{})
	for i := range ev.LineItems {
		li := &ev.LineItems[i]
		if li.UnitOfOrderableID == nil {
			continue
		}
		unitID := *li.UnitOfOrderableID
		if _, ok := checked[unitID]; ok {
			continue
		}
		unit, err := v.lookup.FindOrderableUnit(ctx, unitID)
		if err != nil {
			return err
		}
		if unit == nil {
			return apperror.NewRuleViolation(RuleUnitOfOrderable, "unit of orderable does not exist").
				WithDetail("unitOfOrderableId", unitID)
		}
		checked[unitID] = struct{}{}
	}
	return nil
}

// vvmValidator permits a VVM status only on VVM-enabled orderables. Runs
// after the approved-orderable check, so the orderable is resolvable.
type vvmValidator struct{}

func (v *vvmValidator) Name() string { return "vvmStatus" }

func (v *vvmValidator) Validate(_ context.Context, ev *StockEvent, pctx *ProcessContext) error {
	for i := range ev.LineItems {
		li := &ev.LineItems[i]
		if li.VVMStatus == "" {
			continue
		}
		orderable := pctx.Orderable(li.OrderableID)
		if orderable == nil || !orderable.VVMEnabled {
			return apperror.NewRuleViolation(RuleVVMStatus,
				fmt.Sprintf("orderable does not use vaccine vial monitors, got status %q", li.VVMStatus)).
				WithDetail("orderableId", li.OrderableID).
				WithDetail("vvmStatus", li.VVMStatus)
		}
	}
	return nil
}
