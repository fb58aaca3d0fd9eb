package card_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"medstock/internal/core/id"
	"medstock/internal/domain/card"
	"medstock/internal/infrastructure/storage/postgres"
)

const snapshotsTable = "calculated_stocks_on_hand"

// SnapshotRepo implements card.SnapshotRepository.
type SnapshotRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewSnapshotRepo creates a snapshot repository.
func NewSnapshotRepo(txManager *postgres.TxManager) *SnapshotRepo {
	return &SnapshotRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ card.SnapshotRepository = (*SnapshotRepo)(nil)

// FindLatestAsOf returns the newest snapshot dated at or before the given
// date, nil when none exists.
func (r *SnapshotRepo) FindLatestAsOf(ctx context.Context, cardID id.ID, date time.Time) (*card.CalculatedStockOnHand, error) {
	q := r.builder.Select("id", "stock_card_id", "occurred_date", "stock_on_hand").
		From(snapshotsTable).
		Where(squirrel.Eq{"stock_card_id": cardID}).
		Where(squirrel.LtOrEq{"occurred_date": date}).
		OrderBy("occurred_date DESC").
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var snapshot card.CalculatedStockOnHand
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &snapshot, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return &snapshot, nil
}

// DeleteFrom removes every snapshot dated at or after the given date.
func (r *SnapshotRepo) DeleteFrom(ctx context.Context, cardID id.ID, date time.Time) error {
	q := r.builder.Delete(snapshotsTable).
		Where(squirrel.Eq{"stock_card_id": cardID}).
		Where(squirrel.GtOrEq{"occurred_date": date})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}
	return nil
}

// SaveAll inserts regenerated snapshots.
func (r *SnapshotRepo) SaveAll(ctx context.Context, snapshots []card.CalculatedStockOnHand) error {
	if len(snapshots) == 0 {
		return nil
	}

	q := r.builder.Insert(snapshotsTable).
		Columns("id", "stock_card_id", "occurred_date", "stock_on_hand")
	for i := range snapshots {
		s := &snapshots[i]
		q = q.Values(s.ID, s.StockCardID, s.OccurredDate, s.StockOnHand)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert snapshots: %w", err)
	}
	return nil
}
