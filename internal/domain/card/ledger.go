package card

import (
	"math"

	"medstock/internal/core/apperror"
	"medstock/internal/domain/reason"
)

// MaxStockOnHand is the largest balance the ledger can represent.
const MaxStockOnHand = math.MaxInt32

// Apply computes the next stock on hand from the previous balance and one
// line item, mutating the item with its resolved reason, delta quantity
// and cached balance.
//
// Pure and order-dependent: callers must present items in canonical order
// (SortCanonical). No state outside the given item is touched, and on
// error the item is left unchanged.
//
// Physical counts are reconciled rather than added: the submitted absolute
// count is compared to the previous balance, the appropriate
// physical-inventory reason is inferred (overstock, understock or balance
// adjustment) and the stored quantity is rewritten as the absolute delta.
func Apply(previous int32, li *LineItem) (int32, error) {
	if li.IsPhysicalCount {
		return applyPhysicalCount(previous, li)
	}

	// Balance adjustments annotate the history without moving stock.
	if li.Reason != nil && li.Reason.Type == reason.TypeBalanceAdjustment {
		li.StockOnHand = previous
		return previous, nil
	}

	quantity := int64(li.Quantity)
	if li.IsCredit() {
		next := int64(previous) + quantity
		if next > MaxStockOnHand {
			return 0, apperror.NewLedgerOverflow(int64(previous), quantity)
		}
		li.StockOnHand = int32(next)
		return li.StockOnHand, nil
	}

	next := int64(previous) - quantity
	if next < 0 {
		return 0, apperror.NewNegativeBalance(int64(previous), quantity)
	}
	li.StockOnHand = int32(next)
	return li.StockOnHand, nil
}

func applyPhysicalCount(previous int32, li *LineItem) (int32, error) {
	count := li.Quantity
	inferred := resolvePhysicalReason(previous, count)

	li.ReasonID = &inferred.ID
	li.Reason = &inferred
	li.Quantity = absDiff(count, previous)
	li.StockOnHand = count

	return count, nil
}

func resolvePhysicalReason(previous, count int32) reason.Reason {
	builtins := reason.PhysicalInventoryReasons()
	switch {
	case count > previous:
		return builtins[reason.PhysicalCreditReasonID]
	case count < previous:
		return builtins[reason.PhysicalDebitReasonID]
	default:
		return builtins[reason.PhysicalBalanceReasonID]
	}
}

func absDiff(a, b int32) int32 {
	if a > b {
		return a - b
	}
	return b - a
}
