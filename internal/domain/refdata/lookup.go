package refdata

import (
	"context"

	"medstock/internal/core/id"
)

// Lookup is the synchronous key-based reference-data contract.
//
// Absence of a referenced entity is NOT an error: implementations return a
// nil pointer (or an empty slice) and leave rejection to the validator
// chain. Transport failures and timeouts surface as LOOKUP_FAILURE
// application errors, which the caller may retry.
type Lookup interface {
	FindProgram(ctx context.Context, programID id.ID) (*Program, error)
	FindFacility(ctx context.Context, facilityID id.ID) (*Facility, error)
	FindApprovedProducts(ctx context.Context, programID, facilityID id.ID) ([]ApprovedProduct, error)
	FindLots(ctx context.Context, lotIDs []id.ID) ([]Lot, error)
	FindOrderableUnit(ctx context.Context, unitID id.ID) (*OrderableUnit, error)
	FindKitConstituents(ctx context.Context, kitOrderableID id.ID) ([]KitConstituent, error)
	FindRight(ctx context.Context, name string) (*Right, error)
	FindSupervisoryNode(ctx context.Context, programID, facilityID id.ID) (*SupervisoryNode, error)
	FindUsersWithRight(ctx context.Context, nodeID, rightID, programID id.ID) ([]User, error)
}

// PermissionCheck validates the acting user's rights before any stock
// processing starts. A denied check fails with a FORBIDDEN application
// error carrying the missing right.
type PermissionCheck interface {
	CanSubmitEvent(ctx context.Context, userID, programID, facilityID id.ID) error
}
