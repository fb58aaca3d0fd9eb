// Package reason provides movement reasons and source/destination nodes.
// Unlike programs and facilities these are owned locally: every stock card
// line item references a reason or a node stored in our own schema.
package reason

import (
	"medstock/internal/core/id"
)

// Type defines the balance effect of a reason.
type Type string

const (
	TypeCredit            Type = "CREDIT"
	TypeDebit             Type = "DEBIT"
	TypeBalanceAdjustment Type = "BALANCE_ADJUSTMENT"
)

// Category groups reasons by the kind of movement they describe.
type Category string

const (
	CategoryTransfer          Category = "TRANSFER"
	CategoryAdjustment        Category = "ADJUSTMENT"
	CategoryPhysicalInventory Category = "PHYSICAL_INVENTORY"
	CategoryAdHoc             Category = "AD_HOC"
)

// Well-known reason IDs. The physical-* reasons are assigned by the ledger
// calculator when it reconciles a submitted count against the book balance;
// the unpack reason drives kit-unpacking validation.
var (
	PhysicalCreditReasonID  = id.MustParse("279d55bd-42e3-438c-a63d-9c021b185dae")
	PhysicalDebitReasonID   = id.MustParse("b7e99f5b-af3e-433c-8157-b50f11e62f8d")
	PhysicalBalanceReasonID = id.MustParse("a389abfc-52ac-45b4-833a-2cdee1aefbcf")
	UnpackKitReasonID       = id.MustParse("9b4b653a-f319-4a1b-bb80-8d6b4dd6cc12")
)

// Reason classifies a stock movement's cause.
type Reason struct {
	ID              id.ID    `db:"id" json:"id"`
	Name            string   `db:"name" json:"name"`
	Type            Type     `db:"reason_type" json:"reasonType"`
	Category        Category `db:"reason_category" json:"reasonCategory"`
	FreeTextAllowed bool     `db:"free_text_allowed" json:"freeTextAllowed"`
	Tags            []string `db:"tags" json:"tags"`
}

// IsCredit reports whether the reason increases stock on hand.
func (r *Reason) IsCredit() bool { return r.Type == TypeCredit }

// IsDebit reports whether the reason decreases stock on hand.
func (r *Reason) IsDebit() bool { return r.Type == TypeDebit }

// HasTag checks whether the reason carries the given reporting tag.
func (r *Reason) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Priority orders reasons deterministically when two line items share both
// occurred and processed dates: credits apply first, then balance
// adjustments, then debits. Replaying credits before debits keeps the
// intermediate balance from dipping negative spuriously.
func (t Type) Priority() int {
	switch t {
	case TypeCredit:
		return 0
	case TypeBalanceAdjustment:
		return 1
	default:
		return 2
	}
}

// PhysicalInventoryReasons returns the built-in reasons the ledger
// calculator resolves for physical counts.
func PhysicalInventoryReasons() map[id.ID]Reason {
	return map[id.ID]Reason{
		PhysicalCreditReasonID: {
			ID:       PhysicalCreditReasonID,
			Name:     "Overstock (physical inventory)",
			Type:     TypeCredit,
			Category: CategoryPhysicalInventory,
		},
		PhysicalDebitReasonID: {
			ID:       PhysicalDebitReasonID,
			Name:     "Understock (physical inventory)",
			Type:     TypeDebit,
			Category: CategoryPhysicalInventory,
		},
		PhysicalBalanceReasonID: {
			ID:       PhysicalBalanceReasonID,
			Name:     "Balance adjustment (physical inventory)",
			Type:     TypeBalanceAdjustment,
			Category: CategoryPhysicalInventory,
		},
	}
}

// Node is a movement source or destination: either a reference-data
// facility or a free-standing organization. Free text is only accepted for
// organizations; facility nodes are fully identified by the reference.
type Node struct {
	ID                id.ID  `db:"id" json:"id"`
	ReferenceID       id.ID  `db:"reference_id" json:"referenceId"`
	IsRefDataFacility bool   `db:"is_refdata_facility" json:"isRefDataFacility"`
	Name              string `db:"name" json:"name"`
}

// FreeTextAllowed reports whether free text may accompany this node.
func (n *Node) FreeTextAllowed() bool {
	return !n.IsRefDataFacility
}

// ValidSourceDestination assigns a node as a permitted source or
// destination for a (program, facility type) pair.
type ValidSourceDestination struct {
	ID             id.ID `db:"id" json:"id"`
	ProgramID      id.ID `db:"program_id" json:"programId"`
	FacilityTypeID id.ID `db:"facility_type_id" json:"facilityTypeId"`
	Node           Node  `db:"-" json:"node"`
}
