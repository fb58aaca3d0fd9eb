// Package event provides stock event intake: the submitted movement batch,
// its validation chain and the processing pipeline that turns an accepted
// event into stock card history.
package event

import (
	"time"

	"medstock/internal/core/id"
	"medstock/internal/domain/card"
)

// StockEvent is a submitted batch of movements for one facility and
// program. It represents intent and is immutable once accepted.
type StockEvent struct {
	ID           id.ID     `db:"id" json:"id"`
	ProgramID    id.ID     `db:"program_id" json:"programId"`
	FacilityID   id.ID     `db:"facility_id" json:"facilityId"`
	OccurredDate time.Time `db:"occurred_date" json:"occurredDate"`
	UserID       id.ID     `db:"user_id" json:"userId"`
	ProcessedAt  time.Time `db:"processed_at" json:"processedAt"`

	LineItems []LineItem `db:"-" json:"lineItems"`
}

// LineItem is one movement (or one physical-inventory count) in an event.
type LineItem struct {
	ID      id.ID `db:"id" json:"id"`
	EventID id.ID `db:"event_id" json:"eventId"`

	OrderableID       id.ID  `db:"orderable_id" json:"orderableId"`
	LotID             *id.ID `db:"lot_id" json:"lotId,omitempty"`
	UnitOfOrderableID *id.ID `db:"unit_of_orderable_id" json:"unitOfOrderableId,omitempty"`

	// Quantity is unsigned: the balance effect follows from the reason, or
	// for physical counts the quantity is the absolute counted amount.
	Quantity int32 `db:"quantity" json:"quantity"`

	ReasonID       *id.ID `db:"reason_id" json:"reasonId,omitempty"`
	ReasonFreeText string `db:"reason_free_text" json:"reasonFreeText,omitempty"`

	SourceID            *id.ID `db:"source_id" json:"sourceId,omitempty"`
	SourceFreeText      string `db:"source_free_text" json:"sourceFreeText,omitempty"`
	DestinationID       *id.ID `db:"destination_id" json:"destinationId,omitempty"`
	DestinationFreeText string `db:"destination_free_text" json:"destinationFreeText,omitempty"`

	// VVMStatus is the vaccine-vial-monitor stage, only valid for
	// VVM-enabled orderables.
	VVMStatus string `db:"vvm_status" json:"vvmStatus,omitempty"`

	// Adjustments carry per-reason corrections inside a physical-inventory
	// count (e.g. 3 expired, 2 damaged explaining an understock).
	Adjustments []Adjustment `db:"-" json:"stockAdjustments,omitempty"`
}

// Adjustment is a stock-adjustment sub-entry of a physical-inventory line.
type Adjustment struct {
	ReasonID id.ID `db:"reason_id" json:"reasonId"`
	Quantity int32 `db:"quantity" json:"quantity"`
}

// IsPhysicalInventory reports whether the line is an absolute count: no
// reason, no source and no destination.
func (li *LineItem) IsPhysicalInventory() bool {
	return li.ReasonID == nil && li.SourceID == nil && li.DestinationID == nil
}

// CardIdentity returns the stock card tuple the line item targets.
func (li *LineItem) CardIdentity(ev *StockEvent) card.Identity {
	return card.Identity{
		ProgramID:   ev.ProgramID,
		FacilityID:  ev.FacilityID,
		OrderableID: li.OrderableID,
		LotID:       li.LotID,
	}
}

// IsPhysicalInventory reports whether the whole event is a physical
// inventory submission: it has line items and every one is a count.
func (ev *StockEvent) IsPhysicalInventory() bool {
	if len(ev.LineItems) == 0 {
		return false
	}
	for i := range ev.LineItems {
		if !ev.LineItems[i].IsPhysicalInventory() {
			return false
		}
	}
	return true
}

// ReferencedReasonIDs collects every distinct reason id the event touches,
// including physical-inventory adjustment reasons.
func (ev *StockEvent) ReferencedReasonIDs() []id.ID {
	seen := make(map[id.ID]struct{})
	var ids []id.ID
	add := func(rid id.ID) {
		if _, ok := seen[rid]; ok {
			return
		}
		seen[rid] = struct{}{}
		ids = append(ids, rid)
	}
	for i := range ev.LineItems {
		if ev.LineItems[i].ReasonID != nil {
			add(*ev.LineItems[i].ReasonID)
		}
		for _, adj := range ev.LineItems[i].Adjustments {
			add(adj.ReasonID)
		}
	}
	return ids
}

// ReferencedLotIDs collects every distinct lot id in the event.
func (ev *StockEvent) ReferencedLotIDs() []id.ID {
	seen := make(map[id.ID]struct{})
	var ids []id.ID
	for i := range ev.LineItems {
		if ev.LineItems[i].LotID == nil {
			continue
		}
		lid := *ev.LineItems[i].LotID
		if _, ok := seen[lid]; ok {
			continue
		}
		seen[lid] = struct{}{}
		ids = append(ids, lid)
	}
	return ids
}

// NewStockEvent stamps identity and processing time on a submitted event.
func NewStockEvent(programID, facilityID, userID id.ID, occurred time.Time, lines []LineItem) *StockEvent {
	ev := &StockEvent{
		ID:           id.New(),
		ProgramID:    programID,
		FacilityID:   facilityID,
		OccurredDate: card.DateOf(occurred),
		UserID:       userID,
		ProcessedAt:  time.Now().UTC(),
		LineItems:    lines,
	}
	for i := range ev.LineItems {
		ev.LineItems[i].ID = id.New()
		ev.LineItems[i].EventID = ev.ID
	}
	return ev
}
