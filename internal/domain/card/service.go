package card

import (
	"context"
	"time"
)

// Service answers stock-on-hand queries from cached snapshots without
// re-deriving full history.
type Service struct {
	cards  Repository
	engine *Engine
}

// NewService creates a stock card query service.
func NewService(cards Repository, engine *Engine) *Service {
	return &Service{cards: cards, engine: engine}
}

// StockOnHandAsOf returns the balance for the identity tuple as of the end
// of the given date. The boolean is false when either no card exists for
// the tuple or no movement had occurred by that date.
func (s *Service) StockOnHandAsOf(ctx context.Context, identity Identity, date time.Time) (int32, bool, error) {
	c, err := s.cards.FindByIdentity(ctx, identity)
	if err != nil {
		return 0, false, err
	}
	if c == nil {
		return 0, false, nil
	}
	return s.engine.StockOnHandAsOf(ctx, c.ID, date)
}
