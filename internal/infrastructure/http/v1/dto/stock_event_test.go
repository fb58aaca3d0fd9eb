package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medstock/internal/core/apperror"
	"medstock/internal/core/id"
)

func strPtr(s string) *string { return &s }

func TestStockEventRequest_ToDomain(t *testing.T) {
	programID := id.New()
	facilityID := id.New()
	orderableID := id.New()
	lotID := id.New()
	reasonID := id.New()
	userID := id.New()

	req := StockEventRequest{
		ProgramID:    programID.String(),
		FacilityID:   facilityID.String(),
		OccurredDate: "2026-08-15",
		LineItems: []StockEventLineRequest{
			{
				OrderableID: orderableID.String(),
				LotID:       strPtr(lotID.String()),
				Quantity:    25,
				ReasonID:    strPtr(reasonID.String()),
			},
		},
	}

	ev, err := req.ToDomain(userID)
	require.NoError(t, err)

	assert.Equal(t, programID, ev.ProgramID)
	assert.Equal(t, facilityID, ev.FacilityID)
	assert.Equal(t, userID, ev.UserID)
	assert.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), ev.OccurredDate)
	assert.False(t, id.IsNil(ev.ID), "identity stamped on conversion")

	require.Len(t, ev.LineItems, 1)
	li := ev.LineItems[0]
	assert.Equal(t, orderableID, li.OrderableID)
	require.NotNil(t, li.LotID)
	assert.Equal(t, lotID, *li.LotID)
	require.NotNil(t, li.ReasonID)
	assert.Equal(t, reasonID, *li.ReasonID)
	assert.Equal(t, ev.ID, li.EventID)
}

func TestStockEventRequest_ToDomain_Adjustments(t *testing.T) {
	adjReason := id.New()
	req := StockEventRequest{
		ProgramID:    id.New().String(),
		FacilityID:   id.New().String(),
		OccurredDate: "2026-08-15",
		LineItems: []StockEventLineRequest{
			{
				OrderableID: id.New().String(),
				Quantity:    10,
				Adjustments: []StockAdjustmentRequest{
					{ReasonID: adjReason.String(), Quantity: 3},
				},
			},
		},
	}

	ev, err := req.ToDomain(id.New())
	require.NoError(t, err)
	require.Len(t, ev.LineItems[0].Adjustments, 1)
	assert.Equal(t, adjReason, ev.LineItems[0].Adjustments[0].ReasonID)
	assert.Equal(t, int32(3), ev.LineItems[0].Adjustments[0].Quantity)
}

func TestStockEventRequest_ToDomain_Invalid(t *testing.T) {
	valid := func() StockEventRequest {
		return StockEventRequest{
			ProgramID:    id.New().String(),
			FacilityID:   id.New().String(),
			OccurredDate: "2026-08-15",
			LineItems: []StockEventLineRequest{
				{OrderableID: id.New().String(), Quantity: 1},
			},
		}
	}

	t.Run("bad program id", func(t *testing.T) {
		req := valid()
		req.ProgramID = "nope"
		_, err := req.ToDomain(id.New())
		assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	})

	t.Run("bad occurred date", func(t *testing.T) {
		req := valid()
		req.OccurredDate = "15/08/2026"
		_, err := req.ToDomain(id.New())
		assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	})

	t.Run("bad lot id", func(t *testing.T) {
		req := valid()
		req.LineItems[0].LotID = strPtr("nope")
		_, err := req.ToDomain(id.New())
		assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	})

	t.Run("empty optional id treated as absent", func(t *testing.T) {
		req := valid()
		req.LineItems[0].LotID = strPtr("")
		ev, err := req.ToDomain(id.New())
		require.NoError(t, err)
		assert.Nil(t, ev.LineItems[0].LotID)
	})
}
