// Package refdata defines the reference-data collaborator contracts.
// Programs, facilities, orderables, lots, rights and users are owned by an
// external reference-data service; this package models only what stock
// processing needs from them.
package refdata

import (
	"time"

	"medstock/internal/core/id"
)

// Program is a health program (e.g. essential medicines, vaccines).
type Program struct {
	ID     id.ID  `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// FacilityTypeWardService marks ward/service facilities, which may only
// receive stock from facilities in their own geographic zone.
const FacilityTypeWardService = "WS"

// Facility is a health facility (warehouse, clinic, ward).
type Facility struct {
	ID               id.ID  `json:"id"`
	Code             string `json:"code"`
	Name             string `json:"name"`
	TypeID           id.ID  `json:"typeId"`
	TypeCode         string `json:"typeCode"`
	GeographicZoneID id.ID  `json:"geographicZoneId"`
	Active           bool   `json:"active"`
}

// IsWardService reports whether the facility is a ward/service type.
func (f *Facility) IsWardService() bool {
	return f.TypeCode == FacilityTypeWardService
}

// Orderable is a product that can be ordered and stocked.
type Orderable struct {
	ID              id.ID  `json:"id"`
	Code            string `json:"code"`
	FullProductName string `json:"fullProductName"`
	IsKit           bool   `json:"isKit"`
	VVMEnabled      bool   `json:"vvmEnabled"`
}

// KitConstituent is one child of a kit orderable with its recipe ratio:
// unpacking one kit yields Ratio units of the constituent orderable.
type KitConstituent struct {
	OrderableID id.ID `json:"orderableId"`
	Ratio       int32 `json:"ratio"`
}

// ApprovedProduct is an orderable approved for a facility+program pair.
type ApprovedProduct struct {
	Orderable  Orderable `json:"orderable"`
	FullSupply bool      `json:"fullSupply"`
}

// Lot is a batch of a trade item, tied to exactly one orderable.
type Lot struct {
	ID             id.ID      `json:"id"`
	LotCode        string     `json:"lotCode"`
	OrderableID    id.ID      `json:"orderableId"`
	ExpirationDate *time.Time `json:"expirationDate,omitempty"`
	Active         bool       `json:"active"`
}

// OrderableUnit is a unit-of-orderable definition (e.g. vial, box of 10).
type OrderableUnit struct {
	ID     id.ID  `json:"id"`
	Code   string `json:"code"`
	Factor int32  `json:"factor"`
}

// Right is a named permission in the reference-data service.
type Right struct {
	ID   id.ID  `json:"id"`
	Name string `json:"name"`
}

// SupervisoryNode supervises a set of facilities for a program.
type SupervisoryNode struct {
	ID id.ID `json:"id"`
}

// User is a reference-data user account.
type User struct {
	ID             id.ID  `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	HomeFacilityID *id.ID `json:"homeFacilityId,omitempty"`
	Active         bool   `json:"active"`
}

// RightStockCardsEdit is the right required to submit stock events and the
// right used to resolve stockout notification recipients.
const RightStockCardsEdit = "STOCK_CARDS_EDIT"
