// Package card_repo provides PostgreSQL implementations for the stock
// card ledger repositories.
package card_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"medstock/internal/core/id"
	"medstock/internal/domain/card"
	"medstock/internal/domain/reason"
	"medstock/internal/infrastructure/storage/postgres"
)

const (
	cardsTable     = "stock_cards"
	lineItemsTable = "stock_card_line_items"
)

// lineItemSelect joins movements with their reason (and aggregated tags)
// so the replay engine never issues per-item reason lookups.
const lineItemSelect = `
	SELECT li.id, li.stock_card_id, li.event_id, li.occurred_date, li.processed_at,
	       li.quantity, li.reason_id, li.source_id, li.destination_id,
	       li.source_free_text, li.destination_free_text, li.reason_free_text,
	       li.is_physical_count, li.stock_on_hand,
	       r.name AS reason_name, r.reason_type, r.reason_category, r.free_text_allowed,
	       COALESCE(t.tags, '{}') AS reason_tags
	FROM stock_card_line_items li
	LEFT JOIN reasons r ON r.id = li.reason_id
	LEFT JOIN (
		SELECT reason_id, array_agg(tag ORDER BY tag) AS tags
		FROM reason_tags GROUP BY reason_id
	) t ON t.reason_id = li.reason_id
`

// lineItemRow is the scan target for lineItemSelect.
type lineItemRow struct {
	ID                  id.ID     `db:"id"`
	StockCardID         id.ID     `db:"stock_card_id"`
	EventID             id.ID     `db:"event_id"`
	OccurredDate        time.Time `db:"occurred_date"`
	ProcessedAt         time.Time `db:"processed_at"`
	Quantity            int32     `db:"quantity"`
	ReasonID            *id.ID    `db:"reason_id"`
	SourceID            *id.ID    `db:"source_id"`
	DestinationID       *id.ID    `db:"destination_id"`
	SourceFreeText      *string   `db:"source_free_text"`
	DestinationFreeText *string   `db:"destination_free_text"`
	ReasonFreeText      *string   `db:"reason_free_text"`
	IsPhysicalCount     bool      `db:"is_physical_count"`
	StockOnHand         int32     `db:"stock_on_hand"`

	ReasonName      *string  `db:"reason_name"`
	ReasonType      *string  `db:"reason_type"`
	ReasonCategory  *string  `db:"reason_category"`
	FreeTextAllowed *bool    `db:"free_text_allowed"`
	ReasonTags      []string `db:"reason_tags"`
}

func (row *lineItemRow) toLineItem() card.LineItem {
	li := card.LineItem{
		ID:              row.ID,
		StockCardID:     row.StockCardID,
		EventID:         row.EventID,
		OccurredDate:    row.OccurredDate,
		ProcessedAt:     row.ProcessedAt,
		Quantity:        row.Quantity,
		ReasonID:        row.ReasonID,
		SourceID:        row.SourceID,
		DestinationID:   row.DestinationID,
		IsPhysicalCount: row.IsPhysicalCount,
		StockOnHand:     row.StockOnHand,
	}
	if row.SourceFreeText != nil {
		li.SourceFreeText = *row.SourceFreeText
	}
	if row.DestinationFreeText != nil {
		li.DestinationFreeText = *row.DestinationFreeText
	}
	if row.ReasonFreeText != nil {
		li.ReasonFreeText = *row.ReasonFreeText
	}
	li.Reason = row.resolveReason()
	return li
}

// resolveReason builds the reason from joined columns; the built-in
// physical-inventory reasons have no table row and resolve from code.
func (row *lineItemRow) resolveReason() *reason.Reason {
	if row.ReasonID == nil {
		return nil
	}
	if row.ReasonName == nil {
		if builtin, ok := reason.PhysicalInventoryReasons()[*row.ReasonID]; ok {
			return &builtin
		}
		return nil
	}
	r := reason.Reason{
		ID:       *row.ReasonID,
		Name:     *row.ReasonName,
		Type:     reason.Type(*row.ReasonType),
		Category: reason.Category(*row.ReasonCategory),
		Tags:     row.ReasonTags,
	}
	if row.FreeTextAllowed != nil {
		r.FreeTextAllowed = *row.FreeTextAllowed
	}
	return &r
}

// CardRepo implements card.Repository.
type CardRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewCardRepo creates a stock card repository.
func NewCardRepo(txManager *postgres.TxManager) *CardRepo {
	return &CardRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ card.Repository = (*CardRepo)(nil)

// FindByIdentity returns the card for the identity tuple, nil when absent.
func (r *CardRepo) FindByIdentity(ctx context.Context, identity card.Identity) (*card.StockCard, error) {
	q := r.builder.Select(
		"id", "program_id", "facility_id", "orderable_id", "lot_id",
		"stock_on_hand", "updated_at",
	).From(cardsTable).
		Where(squirrel.Eq{
			"program_id":   identity.ProgramID,
			"facility_id":  identity.FacilityID,
			"orderable_id": identity.OrderableID,
			"lot_id":       identity.LotID,
		}).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var c card.StockCard
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &c, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock card: %w", err)
	}
	return &c, nil
}

// FindByIdentityForUpdate locks the card row. Concurrent events against
// the same card serialize here.
func (r *CardRepo) FindByIdentityForUpdate(ctx context.Context, identity card.Identity) (*card.StockCard, error) {
	sql := `
		SELECT id, program_id, facility_id, orderable_id, lot_id, stock_on_hand, updated_at
		FROM stock_cards
		WHERE program_id = $1 AND facility_id = $2 AND orderable_id = $3
		  AND lot_id IS NOT DISTINCT FROM $4
		FOR UPDATE
	`

	var c card.StockCard
	querier := r.txManager.GetQuerier(ctx)
	err := pgxscan.Get(ctx, querier, &c, sql,
		identity.ProgramID, identity.FacilityID, identity.OrderableID, identity.LotID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock card for update: %w", err)
	}
	return &c, nil
}

// FindByIDs loads cards with line items and resolved reasons.
func (r *CardRepo) FindByIDs(ctx context.Context, cardIDs []id.ID) ([]card.StockCard, error) {
	if len(cardIDs) == 0 {
		return nil, nil
	}

	q := r.builder.Select(
		"id", "program_id", "facility_id", "orderable_id", "lot_id",
		"stock_on_hand", "updated_at",
	).From(cardsTable).
		Where(squirrel.Eq{"id": cardIDs}).
		OrderBy("updated_at DESC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var cards []card.StockCard
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &cards, sql, args...); err != nil {
		return nil, fmt.Errorf("select stock cards: %w", err)
	}
	if len(cards) == 0 {
		return nil, nil
	}

	itemSQL := lineItemSelect + `
		WHERE li.stock_card_id = ANY($1)
		ORDER BY li.occurred_date, li.processed_at
	`
	var rows []lineItemRow
	if err := pgxscan.Select(ctx, querier, &rows, itemSQL, cardIDs); err != nil {
		return nil, fmt.Errorf("select line items: %w", err)
	}

	byCard := make(map[id.ID][]card.LineItem, len(cards))
	for i := range rows {
		li := rows[i].toLineItem()
		byCard[li.StockCardID] = append(byCard[li.StockCardID], li)
	}
	for i := range cards {
		cards[i].LineItems = byCard[cards[i].ID]
	}
	return cards, nil
}

// FindActiveIdentities returns the identity tuple of every card under the
// program/facility pair.
func (r *CardRepo) FindActiveIdentities(ctx context.Context, programID, facilityID id.ID) ([]card.Identity, error) {
	q := r.builder.Select("program_id", "facility_id", "orderable_id", "lot_id").
		From(cardsTable).
		Where(squirrel.Eq{
			"program_id":  programID,
			"facility_id": facilityID,
		}).
		OrderBy("orderable_id", "lot_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var identities []card.Identity
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &identities, sql, args...); err != nil {
		return nil, fmt.Errorf("select identities: %w", err)
	}
	return identities, nil
}

// FindLineItemsAfter returns line items with occurred date strictly after
// the given date, reasons resolved.
func (r *CardRepo) FindLineItemsAfter(ctx context.Context, cardID id.ID, date time.Time) ([]card.LineItem, error) {
	sql := lineItemSelect + `
		WHERE li.stock_card_id = $1 AND li.occurred_date > $2
		ORDER BY li.occurred_date, li.processed_at
	`

	var rows []lineItemRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, cardID, date); err != nil {
		return nil, fmt.Errorf("select line items: %w", err)
	}

	items := make([]card.LineItem, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].toLineItem())
	}
	return items, nil
}

// Create inserts a new card row.
func (r *CardRepo) Create(ctx context.Context, c *card.StockCard) error {
	q := r.builder.Insert(cardsTable).
		Columns("id", "program_id", "facility_id", "orderable_id", "lot_id", "stock_on_hand", "updated_at").
		Values(c.ID, c.ProgramID, c.FacilityID, c.OrderableID, c.LotID, c.StockOnHand, c.UpdatedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert stock card: %w", err)
	}
	return nil
}

// SaveStockOnHand updates the denormalized balance.
func (r *CardRepo) SaveStockOnHand(ctx context.Context, c *card.StockCard) error {
	q := r.builder.Update(cardsTable).
		Set("stock_on_hand", c.StockOnHand).
		Set("updated_at", c.UpdatedAt).
		Where(squirrel.Eq{"id": c.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update stock on hand: %w", err)
	}
	return nil
}

var lineItemColumns = []string{
	"id", "stock_card_id", "event_id", "occurred_date", "processed_at",
	"quantity", "reason_id", "source_id", "destination_id",
	"source_free_text", "destination_free_text", "reason_free_text",
	"is_physical_count", "stock_on_hand",
}

func lineItemValues(li *card.LineItem) []any {
	return []any{
		li.ID, li.StockCardID, li.EventID, li.OccurredDate, li.ProcessedAt,
		li.Quantity, li.ReasonID, li.SourceID, li.DestinationID,
		li.SourceFreeText, li.DestinationFreeText, li.ReasonFreeText,
		li.IsPhysicalCount, li.StockOnHand,
	}
}

// SaveLineItems batch inserts new line items.
func (r *CardRepo) SaveLineItems(ctx context.Context, items []card.LineItem) error {
	if len(items) == 0 {
		return nil
	}

	// Fast path: COPY when inside a transaction.
	if tx := r.txManager.GetTx(ctx); tx != nil {
		inserter := postgres.NewBatchInserter(r.txManager)
		rows := make([][]any, 0, len(items))
		for i := range items {
			rows = append(rows, lineItemValues(&items[i]))
		}
		if _, err := inserter.CopyFromSlice(ctx, lineItemsTable, lineItemColumns, rows); err != nil {
			return fmt.Errorf("copy line items: %w", err)
		}
		return nil
	}

	q := r.builder.Insert(lineItemsTable).Columns(lineItemColumns...)
	for i := range items {
		q = q.Values(lineItemValues(&items[i])...)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert line items: %w", err)
	}
	return nil
}

// UpdateLineItemCalculations rewrites quantity, reason and cached balance
// after replay, in a single round trip.
func (r *CardRepo) UpdateLineItemCalculations(ctx context.Context, items []card.LineItem) error {
	if len(items) == 0 {
		return nil
	}

	queries := make([]postgres.BatchQuery, 0, len(items))
	for i := range items {
		li := &items[i]
		queries = append(queries, postgres.BatchQuery{
			SQL: `
				UPDATE stock_card_line_items
				SET quantity = $1, reason_id = $2, stock_on_hand = $3
				WHERE id = $4
			`,
			Args: []any{li.Quantity, li.ReasonID, li.StockOnHand, li.ID},
		})
	}

	executor := postgres.NewBatchExecutor(r.txManager)
	if err := executor.ExecuteBatch(ctx, queries); err != nil {
		return fmt.Errorf("update line item calculations: %w", err)
	}
	return nil
}
