package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"medstock/internal/core/apperror"
	"medstock/internal/core/id"
	"medstock/internal/domain/card"
	"medstock/internal/infrastructure/http/v1/dto"
)

const dateLayout = "2006-01-02"

// StockOnHandHandler answers stock-on-hand queries.
type StockOnHandHandler struct {
	*BaseHandler
	cards *card.Service
}

// NewStockOnHandHandler creates a stock-on-hand handler.
func NewStockOnHandHandler(cards *card.Service) *StockOnHandHandler {
	return &StockOnHandHandler{
		BaseHandler: NewBaseHandler(),
		cards:       cards,
	}
}

// Get handles GET /api/v1/stock-on-hand.
func (h *StockOnHandHandler) Get(c *gin.Context) {
	var query dto.StockOnHandQuery
	if !h.BindQuery(c, &query) {
		return
	}

	identity, asOf, err := parseQuery(&query)
	if err != nil {
		h.Error(c, err)
		return
	}

	soh, tracked, err := h.cards.StockOnHandAsOf(c.Request.Context(), identity, asOf)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.StockOnHandResponse{
		ProgramID:   query.ProgramID,
		FacilityID:  query.FacilityID,
		OrderableID: query.OrderableID,
		AsOfDate:    card.DateOf(asOf).Format(dateLayout),
		StockOnHand: soh,
		Tracked:     tracked,
	}
	if query.LotID != "" {
		resp.LotID = &query.LotID
	}
	h.OK(c, resp)
}

func parseQuery(query *dto.StockOnHandQuery) (card.Identity, time.Time, error) {
	var identity card.Identity
	var err error

	if identity.ProgramID, err = id.Parse(query.ProgramID); err != nil {
		return identity, time.Time{}, apperror.NewValidation("invalid programId")
	}
	if identity.FacilityID, err = id.Parse(query.FacilityID); err != nil {
		return identity, time.Time{}, apperror.NewValidation("invalid facilityId")
	}
	if identity.OrderableID, err = id.Parse(query.OrderableID); err != nil {
		return identity, time.Time{}, apperror.NewValidation("invalid orderableId")
	}
	if query.LotID != "" {
		lotID, err := id.Parse(query.LotID)
		if err != nil {
			return identity, time.Time{}, apperror.NewValidation("invalid lotId")
		}
		identity.LotID = &lotID
	}

	asOf := time.Now().UTC()
	if query.AsOfDate != "" {
		asOf, err = time.Parse(dateLayout, query.AsOfDate)
		if err != nil {
			return identity, time.Time{}, apperror.NewValidation("invalid asOfDate, expected YYYY-MM-DD")
		}
	}
	return identity, asOf, nil
}
