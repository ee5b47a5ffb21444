package model

import (
	"time"

	"github.com/google/uuid"
)

// UnitKind is the sellable shape of an inventory unit. Allocation prefers
// kinds in the order they are listed in UnitKinds.
type UnitKind string

const (
	UnitAccount UnitKind = "account"
	UnitSlot    UnitKind = "slot"
	UnitLicense UnitKind = "license"
)

var UnitKinds = []UnitKind{UnitAccount, UnitSlot, UnitLicense}

func (k UnitKind) Valid() bool {
	switch k {
	case UnitAccount, UnitSlot, UnitLicense:
		return true
	}
	return false
}

type UnitStatus string

const (
	UnitAvailable UnitStatus = "available"
	UnitAssigned  UnitStatus = "assigned"
	UnitRevoked   UnitStatus = "revoked"
	// UnitDisabled takes an account and its slots out of allocation.
	UnitDisabled UnitStatus = "disabled"
)

// InventoryUnit is one row of inventory_accounts, inventory_slots or
// inventory_licenses. CredentialRef is an opaque handle issued by the
// credential vault; plaintext credentials never pass through this service.
type InventoryUnit struct {
	ID            uuid.UUID  `json:"id"`
	ProductID     uuid.UUID  `json:"product_id"`
	Kind          UnitKind   `json:"kind"`
	AccountID     *uuid.UUID `json:"account_id,omitempty"`
	TotalSlots    int        `json:"total_slots,omitempty"`
	Label         string     `json:"label,omitempty"`
	CredentialRef string     `json:"credential_ref"`
	Status        UnitStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// UnitHandle identifies the concrete unit bound to a purchase.
type UnitHandle struct {
	Kind      UnitKind   `json:"kind"`
	UnitID    uuid.UUID  `json:"unit_id"`
	AccountID *uuid.UUID `json:"account_id,omitempty"`
	ProductID uuid.UUID  `json:"product_id"`
}

// Stock is the count of available units per kind for a product.
type Stock struct {
	ProductID uuid.UUID        `json:"product_id"`
	Available map[UnitKind]int `json:"available"`
}

func (s Stock) Total() int {
	n := 0
	for _, c := range s.Available {
		n += c
	}
	return n
}

type Product struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Name       string    `json:"name"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}
