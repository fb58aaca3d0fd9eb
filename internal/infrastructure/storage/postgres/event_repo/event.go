// Package event_repo provides the PostgreSQL implementation of the stock
// event repository.
package event_repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"medstock/internal/core/id"
	"medstock/internal/domain/event"
	"medstock/internal/infrastructure/storage/postgres"
)

const (
	eventsTable     = "stock_events"
	eventLinesTable = "stock_event_line_items"
)

// EventRepo implements event.Repository. Events are written once and never
// updated; the ledger owns all derived state.
type EventRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewEventRepo creates a stock event repository.
func NewEventRepo(txManager *postgres.TxManager) *EventRepo {
	return &EventRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ event.Repository = (*EventRepo)(nil)

// Save inserts the event and its line items (adjustments included).
func (r *EventRepo) Save(ctx context.Context, ev *event.StockEvent) error {
	q := r.builder.Insert(eventsTable).
		Columns("id", "program_id", "facility_id", "occurred_date", "user_id", "processed_at").
		Values(ev.ID, ev.ProgramID, ev.FacilityID, ev.OccurredDate, ev.UserID, ev.ProcessedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert stock event: %w", err)
	}

	if len(ev.LineItems) == 0 {
		return nil
	}

	lq := r.builder.Insert(eventLinesTable).Columns(
		"id", "event_id", "orderable_id", "lot_id", "unit_of_orderable_id",
		"quantity", "reason_id", "reason_free_text",
		"source_id", "source_free_text", "destination_id", "destination_free_text",
		"vvm_status", "adjustments",
	)
	for i := range ev.LineItems {
		li := &ev.LineItems[i]
		lq = lq.Values(
			li.ID, ev.ID, li.OrderableID, li.LotID, li.UnitOfOrderableID,
			li.Quantity, li.ReasonID, li.ReasonFreeText,
			li.SourceID, li.SourceFreeText, li.DestinationID, li.DestinationFreeText,
			li.VVMStatus, adjustmentsJSON(li),
		)
	}

	sql, args, err = lq.ToSql()
	if err != nil {
		return fmt.Errorf("build line insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert event line items: %w", err)
	}
	return nil
}

// adjustmentsJSON serializes the nested adjustments into a jsonb column.
// Nil keeps the column NULL.
func adjustmentsJSON(li *event.LineItem) any {
	if len(li.Adjustments) == 0 {
		return nil
	}
	data, err := json.Marshal(li.Adjustments)
	if err != nil {
		return nil
	}
	return data
}

// FindByID loads an event with line items, nil when absent.
func (r *EventRepo) FindByID(ctx context.Context, eventID id.ID) (*event.StockEvent, error) {
	q := r.builder.Select("id", "program_id", "facility_id", "occurred_date", "user_id", "processed_at").
		From(eventsTable).
		Where(squirrel.Eq{"id": eventID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ev event.StockEvent
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &ev, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock event: %w", err)
	}

	lineSQL := `
		SELECT id, event_id, orderable_id, lot_id, unit_of_orderable_id,
		       quantity, reason_id, COALESCE(reason_free_text, '') AS reason_free_text,
		       source_id, COALESCE(source_free_text, '') AS source_free_text,
		       destination_id, COALESCE(destination_free_text, '') AS destination_free_text,
		       COALESCE(vvm_status, '') AS vvm_status, adjustments
		FROM stock_event_line_items
		WHERE event_id = $1
		ORDER BY id
	`
	var rows []lineItemRow
	if err := pgxscan.Select(ctx, querier, &rows, lineSQL, eventID); err != nil {
		return nil, fmt.Errorf("select event line items: %w", err)
	}

	ev.LineItems = make([]event.LineItem, 0, len(rows))
	for i := range rows {
		li, err := rows[i].toLineItem()
		if err != nil {
			return nil, err
		}
		ev.LineItems = append(ev.LineItems, li)
	}
	return &ev, nil
}

// lineItemRow is the scan target for event line items; adjustments come
// back as raw jsonb.
type lineItemRow struct {
	ID                  id.ID  `db:"id"`
	EventID             id.ID  `db:"event_id"`
	OrderableID         id.ID  `db:"orderable_id"`
	LotID               *id.ID `db:"lot_id"`
	UnitOfOrderableID   *id.ID `db:"unit_of_orderable_id"`
	Quantity            int32  `db:"quantity"`
	ReasonID            *id.ID `db:"reason_id"`
	ReasonFreeText      string `db:"reason_free_text"`
	SourceID            *id.ID `db:"source_id"`
	SourceFreeText      string `db:"source_free_text"`
	DestinationID       *id.ID `db:"destination_id"`
	DestinationFreeText string `db:"destination_free_text"`
	VVMStatus           string `db:"vvm_status"`
	Adjustments         []byte `db:"adjustments"`
}

func (row *lineItemRow) toLineItem() (event.LineItem, error) {
	li := event.LineItem{
		ID:                  row.ID,
		EventID:             row.EventID,
		OrderableID:         row.OrderableID,
		LotID:               row.LotID,
		UnitOfOrderableID:   row.UnitOfOrderableID,
		Quantity:            row.Quantity,
		ReasonID:            row.ReasonID,
		ReasonFreeText:      row.ReasonFreeText,
		SourceID:            row.SourceID,
		SourceFreeText:      row.SourceFreeText,
		DestinationID:       row.DestinationID,
		DestinationFreeText: row.DestinationFreeText,
		VVMStatus:           row.VVMStatus,
	}
	if len(row.Adjustments) > 0 {
		if err := json.Unmarshal(row.Adjustments, &li.Adjustments); err != nil {
			return li, fmt.Errorf("unmarshal adjustments: %w", err)
		}
	}
	return li, nil
}
