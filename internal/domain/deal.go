package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusDraft  = "DRAFT"
	StatusActive = "ACTIVE"
	StatusClosed = "CLOSED"
)

const (
	TypeCredit    = "CREDIT"
	TypeOverdraft = "OVERDRAFT"
)

type DealStatus struct {
	ID     string
	Name   string
	Active bool
}

type DealType struct {
	ID     string
	Name   string
	Active bool
}

type Deal struct {
	ID uuid.UUID

	Description      *string
	AgreementNumber  *string
	AgreementDate    *time.Time
	AgreementStartDt *time.Time
	AvailabilityDate *time.Time

	Type   *DealType
	Status *DealStatus

	Sum     *decimal.Decimal
	CloseDt *time.Time

	CreateDate   time.Time
	ModifyDate   *time.Time
	CreateUserID string
	ModifyUserID *string

	Active bool
}

// StatusID returns the status code or an empty string when the deal has no status.
func (d *Deal) StatusID() string {
	if d.Status == nil {
		return ""
	}
	return d.Status.ID
}

type DealWithContractors struct {
	Deal
	Contractors []ContractorWithRoles
}

type Page[T any] struct {
	Content       []T
	Page          int
	Size          int
	TotalElements int
}

func (p Page[T]) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	return (p.TotalElements + p.Size - 1) / p.Size
}
