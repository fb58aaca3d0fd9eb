package event

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"medstock/internal/core/apperror"
	appctx "medstock/internal/core/context"
	"medstock/internal/core/id"
	"medstock/internal/core/tx"
	"medstock/internal/domain/card"
	"medstock/internal/domain/reason"
	"medstock/internal/domain/refdata"
	"medstock/pkg/logger"
)

// Repository persists accepted stock events and their line items.
type Repository interface {
	Save(ctx context.Context, ev *StockEvent) error
	FindByID(ctx context.Context, eventID id.ID) (*StockEvent, error)
}

// Auditor records the accepted event for the audit trail, inside the
// processing transaction.
type Auditor interface {
	EventProcessed(ctx context.Context, ev *StockEvent) error
}

// StockoutPublisher emits a stockout signal for a card whose balance
// reached zero. Implementations enqueue, they do not deliver.
type StockoutPublisher interface {
	StockoutDetected(ctx context.Context, c *card.StockCard, ev *StockEvent) error
}

// Metrics receives processing outcomes. Implementations must be safe for
// concurrent use.
type Metrics interface {
	EventAccepted(lineItems int, duration time.Duration)
	EventRejected(rule string)
}

// Processor runs the full intake pipeline for one submitted event:
// permission check, context prefetch, validation, then an atomic write of
// the event, its card movements and the regenerated snapshots. An event is
// either fully applied or leaves no trace.
type Processor struct {
	permissions refdata.PermissionCheck
	builder     *ContextBuilder
	chain       *Chain
	events      Repository
	cards       card.Repository
	reasons     reason.Repository
	engine      *card.Engine
	txManager   tx.Manager
	audit       Auditor
	stockouts   StockoutPublisher
	metrics     Metrics
	tracer      trace.Tracer
}

// ProcessorDeps wires the processor. Audit, Stockouts and Metrics are
// optional; everything else is required.
type ProcessorDeps struct {
	Permissions refdata.PermissionCheck
	Builder     *ContextBuilder
	Chain       *Chain
	Events      Repository
	Cards       card.Repository
	Reasons     reason.Repository
	Engine      *card.Engine
	TxManager   tx.Manager
	Audit       Auditor
	Stockouts   StockoutPublisher
	Metrics     Metrics
}

// NewProcessor creates the stock event processor.
func NewProcessor(deps ProcessorDeps) *Processor {
	return &Processor{
		permissions: deps.Permissions,
		builder:     deps.Builder,
		chain:       deps.Chain,
		events:      deps.Events,
		cards:       deps.Cards,
		reasons:     deps.Reasons,
		engine:      deps.Engine,
		txManager:   deps.TxManager,
		audit:       deps.Audit,
		stockouts:   deps.Stockouts,
		metrics:     deps.Metrics,
		tracer:      otel.Tracer("medstock/event"),
	}
}

// Process validates and applies a submitted event, returning its id.
// Validation failures reject the whole event; nothing is persisted.
func (p *Processor) Process(ctx context.Context, ev *StockEvent) (id.ID, error) {
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "event.Process",
		trace.WithAttributes(
			attribute.String("program_id", ev.ProgramID.String()),
			attribute.String("facility_id", ev.FacilityID.String()),
			attribute.Int("line_items", len(ev.LineItems)),
		))
	defer span.End()

	userID := ev.UserID
	if id.IsNil(userID) {
		userID = appctx.GetUserID(ctx)
		ev.UserID = userID
	}
	if err := p.permissions.CanSubmitEvent(ctx, userID, ev.ProgramID, ev.FacilityID); err != nil {
		return id.Nil(), err
	}

	pctx, err := p.builder.Build(ctx, ev)
	if err != nil {
		return id.Nil(), err
	}

	if err := p.chain.Validate(ctx, ev, pctx); err != nil {
		p.rejected(err)
		return id.Nil(), err
	}

	resolved, err := p.reasons.FindByIDs(ctx, ev.ReferencedReasonIDs())
	if err != nil {
		return id.Nil(), err
	}

	err = p.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return p.apply(ctx, ev, resolved)
	})
	if err != nil {
		p.rejected(err)
		return id.Nil(), err
	}

	if p.metrics != nil {
		p.metrics.EventAccepted(len(ev.LineItems), time.Since(start))
	}
	logger.Info(ctx, "stock event processed",
		"event_id", ev.ID,
		"program_id", ev.ProgramID,
		"facility_id", ev.FacilityID,
		"line_items", len(ev.LineItems),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ev.ID, nil
}

// apply writes the event inside the caller's transaction: the event rows,
// then per line item a locked card lookup (created on first movement), the
// ledger replay, and finally the movement rows themselves.
func (p *Processor) apply(ctx context.Context, ev *StockEvent, resolved map[id.ID]reason.Reason) error {
	if err := p.events.Save(ctx, ev); err != nil {
		return fmt.Errorf("save stock event: %w", err)
	}

	newItems := make([]card.LineItem, 0, len(ev.LineItems))
	for i := range ev.LineItems {
		li := &ev.LineItems[i]

		identity := li.CardIdentity(ev)
		c, err := p.cards.FindByIdentityForUpdate(ctx, identity)
		if err != nil {
			return fmt.Errorf("lock stock card: %w", err)
		}
		if c == nil {
			c = card.NewStockCard(identity)
			if err := p.cards.Create(ctx, c); err != nil {
				return fmt.Errorf("create stock card: %w", err)
			}
		}

		item := toCardLineItem(ev, li, resolved)
		if err := p.engine.Recalculate(ctx, c, &item); err != nil {
			return err
		}
		newItems = append(newItems, item)

		if c.StockOnHand == 0 && p.stockouts != nil {
			if err := p.stockouts.StockoutDetected(ctx, c, ev); err != nil {
				return fmt.Errorf("publish stockout: %w", err)
			}
		}
	}

	if err := p.cards.SaveLineItems(ctx, newItems); err != nil {
		return fmt.Errorf("save card line items: %w", err)
	}

	if p.audit != nil {
		if err := p.audit.EventProcessed(ctx, ev); err != nil {
			return fmt.Errorf("audit stock event: %w", err)
		}
	}
	return nil
}

// toCardLineItem maps a submitted line to a ledger movement. The ledger
// calculator later rewrites quantity and reason for physical counts.
func toCardLineItem(ev *StockEvent, li *LineItem, resolved map[id.ID]reason.Reason) card.LineItem {
	item := card.LineItem{
		ID:                  li.ID,
		EventID:             ev.ID,
		OccurredDate:        ev.OccurredDate,
		ProcessedAt:         ev.ProcessedAt,
		Quantity:            li.Quantity,
		ReasonID:            li.ReasonID,
		SourceID:            li.SourceID,
		DestinationID:       li.DestinationID,
		SourceFreeText:      li.SourceFreeText,
		DestinationFreeText: li.DestinationFreeText,
		ReasonFreeText:      li.ReasonFreeText,
		IsPhysicalCount:     li.IsPhysicalInventory(),
	}
	if li.ReasonID != nil {
		if r, ok := resolved[*li.ReasonID]; ok {
			item.Reason = &r
		}
	}
	return item
}

func (p *Processor) rejected(err error) {
	if p.metrics == nil {
		return
	}
	p.metrics.EventRejected(rejectionRule(err))
}

// rejectionRule maps an error to the metrics label: the violated rule key
// for rule violations, the error code otherwise.
func rejectionRule(err error) string {
	if rule := apperror.Rule(err); rule != "" {
		return rule
	}
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.Code
	}
	return "other"
}
