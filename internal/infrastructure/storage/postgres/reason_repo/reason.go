// Package reason_repo provides PostgreSQL implementations for reason and
// source/destination node repositories.
package reason_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"medstock/internal/core/id"
	"medstock/internal/domain/reason"
	"medstock/internal/infrastructure/storage/postgres"
)

// reasonSelect joins reasons with their aggregated tags.
const reasonSelect = `
	SELECT r.id, r.name, r.reason_type, r.reason_category, r.free_text_allowed,
	       COALESCE(t.tags, '{}') AS tags
	FROM reasons r
	LEFT JOIN (
		SELECT reason_id, array_agg(tag ORDER BY tag) AS tags
		FROM reason_tags GROUP BY reason_id
	) t ON t.reason_id = r.id
`

// ReasonRepo implements reason.Repository.
type ReasonRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewReasonRepo creates a reason repository.
func NewReasonRepo(txManager *postgres.TxManager) *ReasonRepo {
	return &ReasonRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ reason.Repository = (*ReasonRepo)(nil)

// FindByIDs resolves reasons in one round trip. The built-in
// physical-inventory reasons have no table rows and are merged from code.
func (r *ReasonRepo) FindByIDs(ctx context.Context, ids []id.ID) (map[id.ID]reason.Reason, error) {
	found := make(map[id.ID]reason.Reason, len(ids)+3)
	for rid, builtin := range reason.PhysicalInventoryReasons() {
		found[rid] = builtin
	}
	if len(ids) == 0 {
		return found, nil
	}

	sql := reasonSelect + ` WHERE r.id = ANY($1)`

	var reasons []reason.Reason
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &reasons, sql, ids); err != nil {
		return nil, fmt.Errorf("select reasons: %w", err)
	}
	for i := range reasons {
		found[reasons[i].ID] = reasons[i]
	}
	return found, nil
}

// FindAssigned returns reasons assigned to the (program, facility type)
// pair.
func (r *ReasonRepo) FindAssigned(ctx context.Context, programID, facilityTypeID id.ID) ([]reason.Reason, error) {
	sql := reasonSelect + `
		JOIN valid_reason_assignments a ON a.reason_id = r.id
		WHERE a.program_id = $1 AND a.facility_type_id = $2
		ORDER BY r.name
	`

	var reasons []reason.Reason
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &reasons, sql, programID, facilityTypeID); err != nil {
		return nil, fmt.Errorf("select assigned reasons: %w", err)
	}
	return reasons, nil
}

// FindValidSources returns permitted source assignments for the pair.
func (r *ReasonRepo) FindValidSources(ctx context.Context, programID, facilityTypeID id.ID) ([]reason.ValidSourceDestination, error) {
	return r.findAssignedNodes(ctx, programID, facilityTypeID, "SOURCE")
}

// FindValidDestinations returns permitted destination assignments for the pair.
func (r *ReasonRepo) FindValidDestinations(ctx context.Context, programID, facilityTypeID id.ID) ([]reason.ValidSourceDestination, error) {
	return r.findAssignedNodes(ctx, programID, facilityTypeID, "DESTINATION")
}

type assignmentRow struct {
	ID                id.ID  `db:"id"`
	ProgramID         id.ID  `db:"program_id"`
	FacilityTypeID    id.ID  `db:"facility_type_id"`
	NodeID            id.ID  `db:"node_id"`
	ReferenceID       id.ID  `db:"reference_id"`
	IsRefDataFacility bool   `db:"is_refdata_facility"`
	NodeName          string `db:"node_name"`
}

func (r *ReasonRepo) findAssignedNodes(ctx context.Context, programID, facilityTypeID id.ID, direction string) ([]reason.ValidSourceDestination, error) {
	sql := `
		SELECT a.id, a.program_id, a.facility_type_id,
		       n.id AS node_id, n.reference_id, n.is_refdata_facility,
		       COALESCE(o.name, '') AS node_name
		FROM valid_source_destinations a
		JOIN nodes n ON n.id = a.node_id
		LEFT JOIN organizations o ON o.id = n.reference_id AND NOT n.is_refdata_facility
		WHERE a.program_id = $1 AND a.facility_type_id = $2 AND a.direction = $3
		ORDER BY node_name
	`

	var rows []assignmentRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, programID, facilityTypeID, direction); err != nil {
		return nil, fmt.Errorf("select valid %s assignments: %w", direction, err)
	}

	assignments := make([]reason.ValidSourceDestination, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, reason.ValidSourceDestination{
			ID:             row.ID,
			ProgramID:      row.ProgramID,
			FacilityTypeID: row.FacilityTypeID,
			Node: reason.Node{
				ID:                row.NodeID,
				ReferenceID:       row.ReferenceID,
				IsRefDataFacility: row.IsRefDataFacility,
				Name:              row.NodeName,
			},
		})
	}
	return assignments, nil
}

// FindNode resolves a source/destination node, nil when absent.
func (r *ReasonRepo) FindNode(ctx context.Context, nodeID id.ID) (*reason.Node, error) {
	sql := `
		SELECT n.id, n.reference_id, n.is_refdata_facility,
		       COALESCE(o.name, '') AS name
		FROM nodes n
		LEFT JOIN organizations o ON o.id = n.reference_id AND NOT n.is_refdata_facility
		WHERE n.id = $1
	`

	var node reason.Node
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &node, sql, nodeID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get node: %w", err)
	}
	return &node, nil
}
