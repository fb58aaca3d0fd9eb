package event

import (
	"context"

	"medstock/internal/core/apperror"
	"medstock/internal/core/id"
	"medstock/internal/domain/card"
	"medstock/internal/domain/reason"
	"medstock/internal/domain/refdata"
)

type identityKey struct {
	orderable id.ID
	lot       id.ID
}

func identityKeyOf(li *LineItem) identityKey {
	k := identityKey{orderable: li.OrderableID}
	if li.LotID != nil {
		k.lot = *li.LotID
	}
	return k
}

// activeCoverageValidator requires a physical-inventory event to count
// every tuple that already has a stock card under the program and facility.
// A partial count would silently freeze the uncounted balances.
type activeCoverageValidator struct {
	cards card.Repository
}

func (v *activeCoverageValidator) Name() string { return "physicalInventoryCoverage" }

func (v *activeCoverageValidator) Validate(ctx context.Context, ev *StockEvent, _ *ProcessContext) error {
	if !ev.IsPhysicalInventory() {
		return nil
	}
	active, err := v.cards.FindActiveIdentities(ctx, ev.ProgramID, ev.FacilityID)
	if err != nil {
		return err
	}
	counted := make(map[identityKey]struct{}, len(ev.LineItems))
	for i := range ev.LineItems {
		counted[identityKeyOf(&ev.LineItems[i])] = struct{}{}
	}
	for _, identity := range active {
		k := identityKey{orderable: identity.OrderableID}
		if identity.LotID != nil {
			k.lot = *identity.LotID
		}
		if _, ok := counted[k]; !ok {
			return apperror.NewRuleViolation(RuleActiveCoverage, "physical inventory must cover every active stock card").
				WithDetail("orderableId", identity.OrderableID).
				WithDetail("lotId", identity.LotID)
		}
	}
	return nil
}

// kitUnpackValidator checks kit-unpacking consistency: the unpack reason
// only on kit orderables, and for each unpacked kit the event must credit
// every constituent with exactly kit quantity times the recipe ratio.
type kitUnpackValidator struct {
	reasons reason.Repository
	lookup  refdata.Lookup
}

func (v *kitUnpackValidator) Name() string { return "kitUnpacking" }

func (v *kitUnpackValidator) Validate(ctx context.Context, ev *StockEvent, pctx *ProcessContext) error {
	// Credited quantity per orderable across the whole event, to match
	// constituents against.
	var credited map[id.ID]int64
	for i := range ev.LineItems {
		li := &ev.LineItems[i]
		if li.ReasonID == nil || *li.ReasonID != pctx.UnpackReasonID {
			continue
		}
		orderable := pctx.Orderable(li.OrderableID)
		if orderable == nil || !orderable.IsKit {
			return apperror.NewRuleViolation(RuleKitUnpacking, "unpack reason is only valid on kit orderables").
				WithDetail("orderableId", li.OrderableID)
		}
		constituents, err := v.lookup.FindKitConstituents(ctx, li.OrderableID)
		if err != nil {
			return err
		}
		if len(constituents) == 0 {
			return apperror.NewRuleViolation(RuleKitUnpacking, "kit has no constituents defined").
				WithDetail("orderableId", li.OrderableID)
		}
		if credited == nil {
			credited = creditedQuantities(ev, pctx)
		}
		for _, c := range constituents {
			want := int64(li.Quantity) * int64(c.Ratio)
			if got := credited[c.OrderableID]; got != want {
				return apperror.NewRuleViolation(RuleKitUnpacking, "unpacked constituent quantity does not match the kit recipe").
					WithDetail("kitOrderableId", li.OrderableID).
					WithDetail("constituentOrderableId", c.OrderableID).
					WithDetail("expectedQuantity", want).
					WithDetail("actualQuantity", got)
			}
		}
	}
	return nil
}

// creditedQuantities sums the event's credit quantities per orderable,
// excluding the kit lines themselves (the unpack reason is a debit).
func creditedQuantities(ev *StockEvent, pctx *ProcessContext) map[id.ID]int64 {
	sums := make(map[id.ID]int64)
	for i := range ev.LineItems {
		li := &ev.LineItems[i]
		if li.ReasonID != nil && *li.ReasonID == pctx.UnpackReasonID {
			continue
		}
		if li.IsPhysicalInventory() {
			continue
		}
		sums[li.OrderableID] += int64(li.Quantity)
	}
	return sums
}

// quantityValidator dry-runs the event against persisted balances: per
// card tuple it replays the event's lines in submission order over the
// current stock on hand and rejects any debit below zero or credit past
// the representable maximum. Runs last so every reason is known resolvable.
type quantityValidator struct {
	cards   card.Repository
	reasons reason.Repository
}

func (v *quantityValidator) Name() string { return "quantity" }

func (v *quantityValidator) Validate(ctx context.Context, ev *StockEvent, _ *ProcessContext) error {
	found, err := resolveReasons(ctx, v.reasons, ev)
	if err != nil {
		return err
	}

	balances := make(map[identityKey]int64)
	for i := range ev.LineItems {
		li := &ev.LineItems[i]
		k := identityKeyOf(li)

		running, ok := balances[k]
		if !ok {
			c, err := v.cards.FindByIdentity(ctx, li.CardIdentity(ev))
			if err != nil {
				return err
			}
			if c != nil {
				running = int64(c.StockOnHand)
			}
		}

		q := int64(li.Quantity)
		switch {
		case li.IsPhysicalInventory():
			running = q
		case isBalanceAdjustmentLine(li, found):
			// annotates the history without moving stock
		case isCreditLine(li, found):
			running += q
			if running > card.MaxStockOnHand {
				return apperror.NewRuleViolation(RuleQuantity, "quantity would overflow stock on hand").
					WithDetail("orderableId", li.OrderableID).
					WithDetail("lotId", li.LotID).
					WithDetail("stockOnHand", running-q).
					WithDetail("quantity", q)
			}
		default:
			running -= q
			if running < 0 {
				return apperror.NewRuleViolation(RuleQuantity, "quantity would drive stock on hand negative").
					WithDetail("orderableId", li.OrderableID).
					WithDetail("lotId", li.LotID).
					WithDetail("stockOnHand", running+q).
					WithDetail("quantity", q)
			}
		}
		balances[k] = running
	}
	return nil
}

// isBalanceAdjustmentLine reports whether the line's reason is a
// balance adjustment, which carries no balance effect.
func isBalanceAdjustmentLine(li *LineItem, found map[id.ID]reason.Reason) bool {
	if li.SourceID != nil || li.DestinationID != nil {
		return false
	}
	if li.ReasonID != nil {
		if r, ok := found[*li.ReasonID]; ok {
			return r.Type == reason.TypeBalanceAdjustment
		}
	}
	return false
}

// isCreditLine mirrors the ledger's balance-effect rule: a source means a
// receive, otherwise the reason type decides.
func isCreditLine(li *LineItem, found map[id.ID]reason.Reason) bool {
	if li.SourceID != nil {
		return true
	}
	if li.DestinationID != nil {
		return false
	}
	if li.ReasonID != nil {
		if r, ok := found[*li.ReasonID]; ok {
			return r.Type == reason.TypeCredit
		}
	}
	return false
}
