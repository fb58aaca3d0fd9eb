package dto

// StockOnHandQuery selects one card identity and an as-of date.
type StockOnHandQuery struct {
	ProgramID   string `form:"programId" binding:"required,uuid"`
	FacilityID  string `form:"facilityId" binding:"required,uuid"`
	OrderableID string `form:"orderableId" binding:"required,uuid"`
	LotID       string `form:"lotId" binding:"omitempty,uuid"`
	AsOfDate    string `form:"asOfDate" binding:"omitempty"`
}

// StockOnHandResponse is the balance answer. Tracked distinguishes a zero
// balance from "no movement had occurred by that date".
type StockOnHandResponse struct {
	ProgramID   string  `json:"programId"`
	FacilityID  string  `json:"facilityId"`
	OrderableID string  `json:"orderableId"`
	LotID       *string `json:"lotId,omitempty"`
	AsOfDate    string  `json:"asOfDate"`
	StockOnHand int32   `json:"stockOnHand"`
	Tracked     bool    `json:"tracked"`
}
