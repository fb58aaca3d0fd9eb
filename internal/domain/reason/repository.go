package reason

import (
	"context"

	"medstock/internal/core/id"
)

// Repository defines read operations over locally-owned reasons and nodes.
// All methods report absence with empty results, never errors; validators
// decide what absence means.
type Repository interface {
	// FindByIDs resolves reasons in one round trip. Built-in
	// physical-inventory reasons are always included in the result.
	FindByIDs(ctx context.Context, ids []id.ID) (map[id.ID]Reason, error)

	// FindAssigned returns reasons assigned to the (program, facility type)
	// pair via valid reason assignments.
	FindAssigned(ctx context.Context, programID, facilityTypeID id.ID) ([]Reason, error)

	// FindValidSources returns permitted source nodes for the pair.
	FindValidSources(ctx context.Context, programID, facilityTypeID id.ID) ([]ValidSourceDestination, error)

	// FindValidDestinations returns permitted destination nodes for the pair.
	FindValidDestinations(ctx context.Context, programID, facilityTypeID id.ID) ([]ValidSourceDestination, error)

	// FindNode resolves a source/destination node, nil when absent.
	FindNode(ctx context.Context, nodeID id.ID) (*Node, error)
}
