package handlers

import (
	"github.com/gin-gonic/gin"

	"medstock/internal/core/apperror"
	"medstock/internal/core/id"
	"medstock/internal/domain/event"
	"medstock/internal/infrastructure/http/v1/dto"
)

// StockEventHandler serves stock event submission and retrieval.
type StockEventHandler struct {
	*BaseHandler
	processor *event.Processor
	events    event.Repository
}

// NewStockEventHandler creates a stock event handler.
func NewStockEventHandler(processor *event.Processor, events event.Repository) *StockEventHandler {
	return &StockEventHandler{
		BaseHandler: NewBaseHandler(),
		processor:   processor,
		events:      events,
	}
}

// Create handles POST /api/v1/events.
func (h *StockEventHandler) Create(c *gin.Context) {
	var req dto.StockEventRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ev, err := req.ToDomain(h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	eventID, err := h.processor.Process(c.Request.Context(), ev)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, eventID.String())
}

// GetByID handles GET /api/v1/events/:id.
func (h *StockEventHandler) GetByID(c *gin.Context) {
	eventID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid event id"))
		return
	}

	ev, err := h.events.FindByID(c.Request.Context(), eventID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if ev == nil {
		h.Error(c, apperror.NewNotFound("stock event", eventID))
		return
	}

	h.OK(c, dto.FromDomainEvent(ev))
}
