package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleCategoryBorrower = "BORROWER"
	RoleCategoryWarranty = "WARRANTY"
)

type DealContractor struct {
	ID           uuid.UUID
	DealID       uuid.UUID
	ContractorID string
	Name         string
	INN          string
	Main         bool

	CreateDate   time.Time
	ModifyDate   *time.Time
	CreateUserID *string
	ModifyUserID *string

	Active bool

	// ContractorModifiedAt is the creation time of the last applied update
	// received from the contractor service.
	ContractorModifiedAt *time.Time
}

type ContractorRole struct {
	ID       string
	Name     string
	Category string
	Active   bool
}

type DealContractorRole struct {
	ID               uuid.UUID
	DealContractorID uuid.UUID
	RoleID           string
	Active           bool
}

type ContractorWithRoles struct {
	DealContractor
	Roles []ContractorRole
}

// ContractorUpdate is a contractor-detail-changed event from the contractor service.
type ContractorUpdate struct {
	ContractorID string
	Name         string
	INN          string
	CreatedAt    time.Time
}
