package event

import (
	"medstock/internal/core/id"
	"medstock/internal/domain/refdata"
)

// ProcessContext carries everything one event's validation needs from the
// reference-data service, fetched once up front. Ephemeral: built per
// submission, never persisted.
//
// Absent references stay nil/missing here; the validator chain decides
// what absence means. This component only fetches.
type ProcessContext struct {
	Program  *refdata.Program
	Facility *refdata.Facility

	// ApprovedProducts indexes the facility+program approved list by
	// orderable id (full-supply and non-full-supply alike).
	ApprovedProducts map[id.ID]refdata.ApprovedProduct

	// Lots indexes every lot the event references by lot id.
	Lots map[id.ID]refdata.Lot

	// UserID is the acting user.
	UserID id.ID

	// UnpackReasonID identifies the kit-unpacking reason.
	UnpackReasonID id.ID
}

// Orderable resolves an approved orderable from the context, nil when the
// orderable is not on the approved list.
func (c *ProcessContext) Orderable(orderableID id.ID) *refdata.Orderable {
	if ap, ok := c.ApprovedProducts[orderableID]; ok {
		return &ap.Orderable
	}
	return nil
}
