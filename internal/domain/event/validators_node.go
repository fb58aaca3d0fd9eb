package event

import (
	"context"

	"medstock/internal/core/apperror"
	"medstock/internal/core/id"
	"medstock/internal/domain/reason"
	"medstock/internal/domain/refdata"
)

// freeTextValidator enforces the free-text contract: reason free text only
// with a reason that allows it, node free text only with an organization
// node, and never free text on both ends of a transfer at once.
type freeTextValidator struct {
	reasons reason.Repository
}

func (v *freeTextValidator) Name() string { return "freeText" }

func (v *freeTextValidator) Validate(ctx context.Context, ev *StockEvent, _ *ProcessContext) error {
	found, err := resolveReasons(ctx, v.reasons, ev)
	if err != nil {
		return err
	}
	for i := range ev.LineItems {
		li := &ev.LineItems[i]

		if li.SourceFreeText != "" && li.DestinationFreeText != "" {
			return apperror.NewRuleViolation(RuleFreeText, "source and destination free text cannot both be set").
				WithDetail("sourceFreeText", li.SourceFreeText).
				WithDetail("destinationFreeText", li.DestinationFreeText)
		}
		if li.ReasonFreeText != "" {
			if li.ReasonID == nil {
				return apperror.NewRuleViolation(RuleFreeText, "reason free text requires a reason")
			}
			if r, ok := found[*li.ReasonID]; ok && !r.FreeTextAllowed {
				return apperror.NewRuleViolation(RuleFreeText, "reason does not allow free text").
					WithDetail("reasonId", r.ID)
			}
		}
		if err := v.checkNodeFreeText(ctx, li.SourceID, li.SourceFreeText); err != nil {
			return err
		}
		if err := v.checkNodeFreeText(ctx, li.DestinationID, li.DestinationFreeText); err != nil {
			return err
		}
	}
	return nil
}

func (v *freeTextValidator) checkNodeFreeText(ctx context.Context, nodeID *id.ID, freeText string) error {
	if freeText == "" {
		return nil
	}
	if nodeID == nil {
		return apperror.NewRuleViolation(RuleFreeText, "node free text requires a source or destination")
	}
	node, err := v.reasons.FindNode(ctx, *nodeID)
	if err != nil {
		return err
	}
	if node != nil && !node.FreeTextAllowed() {
		return apperror.NewRuleViolation(RuleFreeText, "facility nodes do not allow free text").
			WithDetail("nodeId", node.ID)
	}
	return nil
}

// sourceDestinationAssignmentValidator checks every referenced node is a
// valid source (resp. destination) assignment for the event's program and
// facility type.
type sourceDestinationAssignmentValidator struct {
	reasons reason.Repository
}

func (v *sourceDestinationAssignmentValidator) Name() string { return "sourceDestinationAssignment" }

func (v *sourceDestinationAssignmentValidator) Validate(ctx context.Context, ev *StockEvent, pctx *ProcessContext) error {
	var sources, destinations map[id.ID]struct{}
	for i := range ev.LineItems {
		li := &ev.LineItems[i]
		if li.SourceID != nil {
			if sources == nil {
				assigned, err := v.reasons.FindValidSources(ctx, ev.ProgramID, pctx.Facility.TypeID)
				if err != nil {
					return err
				}
				sources = nodeSet(assigned)
			}
			if _, ok := sources[*li.SourceID]; !ok {
				return apperror.NewRuleViolation(RuleSourceAssignment, "source is not valid for this program and facility type").
					WithDetail("sourceId", *li.SourceID)
			}
		}
		if li.DestinationID != nil {
			if destinations == nil {
				assigned, err := v.reasons.FindValidDestinations(ctx, ev.ProgramID, pctx.Facility.TypeID)
				if err != nil {
					return err
				}
				destinations = nodeSet(assigned)
			}
			if _, ok := destinations[*li.DestinationID]; !ok {
				return apperror.NewRuleViolation(RuleDestinationAssignment, "destination is not valid for this program and facility type").
					WithDetail("destinationId", *li.DestinationID)
			}
		}
	}
	return nil
}

func nodeSet(assigned []reason.ValidSourceDestination) map[id.ID]struct{} {
	set := make(map[id.ID]struct{}, len(assigned))
	for i := range assigned {
		set[assigned[i].Node.ID] = struct{}{}
	}
	return set
}

// geoAffinityValidator confines ward/service facilities to their own
// geographic zone: when the event's facility is a ward/service type, every
// source and destination that resolves to a reference-data facility must
// sit in the same zone.
type geoAffinityValidator struct {
	reasons reason.Repository
	lookup  refdata.Lookup
}

func (v *geoAffinityValidator) Name() string { return "geoAffinity" }

func (v *geoAffinityValidator) Validate(ctx context.Context, ev *StockEvent, pctx *ProcessContext) error {
	if !pctx.Facility.IsWardService() {
		return nil
	}
	for i := range ev.LineItems {
		li := &ev.LineItems[i]
		for _, nodeID := range []*id.ID{li.SourceID, li.DestinationID} {
			if nodeID == nil {
				continue
			}
			peer, err := resolveNodeFacility(ctx, v.reasons, v.lookup, *nodeID)
			if err != nil {
				return err
			}
			if peer != nil && peer.GeographicZoneID != pctx.Facility.GeographicZoneID {
				return apperror.NewRuleViolation(RuleGeoAffinity, "ward/service facility can only exchange stock within its geographic zone").
					WithDetail("nodeId", *nodeID).
					WithDetail("facilityZoneId", pctx.Facility.GeographicZoneID).
					WithDetail("peerZoneId", peer.GeographicZoneID)
			}
		}
	}
	return nil
}

// wardFacilityValidator is the mirror restriction on the receiving end:
// issuing to a ward/service facility is only allowed when that facility is
// in the event facility's geographic zone.
type wardFacilityValidator struct {
	reasons reason.Repository
	lookup  refdata.Lookup
}

func (v *wardFacilityValidator) Name() string { return "wardFacility" }

func (v *wardFacilityValidator) Validate(ctx context.Context, ev *StockEvent, pctx *ProcessContext) error {
	for i := range ev.LineItems {
		li := &ev.LineItems[i]
		if li.DestinationID == nil {
			continue
		}
		peer, err := resolveNodeFacility(ctx, v.reasons, v.lookup, *li.DestinationID)
		if err != nil {
			return err
		}
		if peer == nil || !peer.IsWardService() {
			continue
		}
		if peer.GeographicZoneID != pctx.Facility.GeographicZoneID {
			return apperror.NewRuleViolation(RuleWardFacility, "ward/service destination must be in the event facility's geographic zone").
				WithDetail("destinationId", *li.DestinationID).
				WithDetail("facilityZoneId", pctx.Facility.GeographicZoneID).
				WithDetail("destinationZoneId", peer.GeographicZoneID)
		}
	}
	return nil
}

// resolveNodeFacility maps a node to its reference-data facility. Returns
// nil for organization nodes and for dangling references; assignment
// validation owns those cases.
func resolveNodeFacility(ctx context.Context, reasons reason.Repository, lookup refdata.Lookup, nodeID id.ID) (*refdata.Facility, error) {
	node, err := reasons.FindNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node == nil || !node.IsRefDataFacility {
		return nil, nil
	}
	return lookup.FindFacility(ctx, node.ReferenceID)
}
