package dto

import (
	"time"

	"medstock/internal/core/apperror"
	"medstock/internal/core/id"
	"medstock/internal/domain/event"
)

const dateLayout = "2006-01-02"

// StockEventRequest is a submitted stock event.
type StockEventRequest struct {
	ProgramID    string                  `json:"programId" binding:"required,uuid"`
	FacilityID   string                  `json:"facilityId" binding:"required,uuid"`
	OccurredDate string                  `json:"occurredDate" binding:"required"`
	LineItems    []StockEventLineRequest `json:"lineItems" binding:"required"`
}

// StockEventLineRequest is one movement or count in the request.
type StockEventLineRequest struct {
	OrderableID         string                   `json:"orderableId" binding:"required,uuid"`
	LotID               *string                  `json:"lotId,omitempty" binding:"omitempty,uuid"`
	UnitOfOrderableID   *string                  `json:"unitOfOrderableId,omitempty" binding:"omitempty,uuid"`
	Quantity            int32                    `json:"quantity"`
	ReasonID            *string                  `json:"reasonId,omitempty" binding:"omitempty,uuid"`
	ReasonFreeText      string                   `json:"reasonFreeText,omitempty"`
	SourceID            *string                  `json:"sourceId,omitempty" binding:"omitempty,uuid"`
	SourceFreeText      string                   `json:"sourceFreeText,omitempty"`
	DestinationID       *string                  `json:"destinationId,omitempty" binding:"omitempty,uuid"`
	DestinationFreeText string                   `json:"destinationFreeText,omitempty"`
	VVMStatus           string                   `json:"vvmStatus,omitempty"`
	Adjustments         []StockAdjustmentRequest `json:"stockAdjustments,omitempty"`
}

// StockAdjustmentRequest is a per-reason correction inside a physical
// count line.
type StockAdjustmentRequest struct {
	ReasonID string `json:"reasonId" binding:"required,uuid"`
	Quantity int32  `json:"quantity"`
}

// ToDomain converts the request to a domain event, stamping identities.
// The acting user comes from the request context, not the body.
func (r *StockEventRequest) ToDomain(userID id.ID) (*event.StockEvent, error) {
	programID, err := id.Parse(r.ProgramID)
	if err != nil {
		return nil, apperror.NewValidation("invalid programId")
	}
	facilityID, err := id.Parse(r.FacilityID)
	if err != nil {
		return nil, apperror.NewValidation("invalid facilityId")
	}
	occurred, err := time.Parse(dateLayout, r.OccurredDate)
	if err != nil {
		return nil, apperror.NewValidation("invalid occurredDate, expected YYYY-MM-DD")
	}

	lines := make([]event.LineItem, 0, len(r.LineItems))
	for i := range r.LineItems {
		line, err := r.LineItems[i].toDomain()
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	return event.NewStockEvent(programID, facilityID, userID, occurred, lines), nil
}

func (r *StockEventLineRequest) toDomain() (event.LineItem, error) {
	li := event.LineItem{
		Quantity:            r.Quantity,
		ReasonFreeText:      r.ReasonFreeText,
		SourceFreeText:      r.SourceFreeText,
		DestinationFreeText: r.DestinationFreeText,
		VVMStatus:           r.VVMStatus,
	}

	var err error
	if li.OrderableID, err = id.Parse(r.OrderableID); err != nil {
		return li, apperror.NewValidation("invalid orderableId")
	}
	if li.LotID, err = parseOptionalID(r.LotID, "lotId"); err != nil {
		return li, err
	}
	if li.UnitOfOrderableID, err = parseOptionalID(r.UnitOfOrderableID, "unitOfOrderableId"); err != nil {
		return li, err
	}
	if li.ReasonID, err = parseOptionalID(r.ReasonID, "reasonId"); err != nil {
		return li, err
	}
	if li.SourceID, err = parseOptionalID(r.SourceID, "sourceId"); err != nil {
		return li, err
	}
	if li.DestinationID, err = parseOptionalID(r.DestinationID, "destinationId"); err != nil {
		return li, err
	}

	for _, adj := range r.Adjustments {
		reasonID, err := id.Parse(adj.ReasonID)
		if err != nil {
			return li, apperror.NewValidation("invalid adjustment reasonId")
		}
		li.Adjustments = append(li.Adjustments, event.Adjustment{
			ReasonID: reasonID,
			Quantity: adj.Quantity,
		})
	}
	return li, nil
}

func parseOptionalID(value *string, field string) (*id.ID, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	parsed, err := id.Parse(*value)
	if err != nil {
		return nil, apperror.NewValidation("invalid " + field)
	}
	return &parsed, nil
}

// StockEventResponse is a persisted stock event.
type StockEventResponse struct {
	ID           string                   `json:"id"`
	ProgramID    string                   `json:"programId"`
	FacilityID   string                   `json:"facilityId"`
	OccurredDate string                   `json:"occurredDate"`
	UserID       string                   `json:"userId"`
	ProcessedAt  time.Time                `json:"processedAt"`
	LineItems    []StockEventLineResponse `json:"lineItems"`
}

// StockEventLineResponse mirrors one persisted event line.
type StockEventLineResponse struct {
	ID          string  `json:"id"`
	OrderableID string  `json:"orderableId"`
	LotID       *string `json:"lotId,omitempty"`
	Quantity    int32   `json:"quantity"`
	ReasonID    *string `json:"reasonId,omitempty"`
	SourceID    *string `json:"sourceId,omitempty"`
	DestID      *string `json:"destinationId,omitempty"`
	VVMStatus   string  `json:"vvmStatus,omitempty"`
}

// FromDomainEvent maps a domain event to its response shape.
func FromDomainEvent(ev *event.StockEvent) StockEventResponse {
	resp := StockEventResponse{
		ID:           ev.ID.String(),
		ProgramID:    ev.ProgramID.String(),
		FacilityID:   ev.FacilityID.String(),
		OccurredDate: ev.OccurredDate.Format(dateLayout),
		UserID:       ev.UserID.String(),
		ProcessedAt:  ev.ProcessedAt,
	}
	for i := range ev.LineItems {
		li := &ev.LineItems[i]
		resp.LineItems = append(resp.LineItems, StockEventLineResponse{
			ID:          li.ID.String(),
			OrderableID: li.OrderableID.String(),
			LotID:       idString(li.LotID),
			Quantity:    li.Quantity,
			ReasonID:    idString(li.ReasonID),
			SourceID:    idString(li.SourceID),
			DestID:      idString(li.DestinationID),
			VVMStatus:   li.VVMStatus,
		})
	}
	return resp
}

func idString(v *id.ID) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}
