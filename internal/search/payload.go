// Package search turns a deal search request into a role-scoped SQL filter.
//
// Everything here is pure: caller roles are passed in explicitly and the
// output is a WHERE clause with positional arguments for the deal repository.
package search

import (
	"time"

	"github.com/google/uuid"
)

// Payload holds optional deal search criteria. Nil pointers and empty slices
// mean "not set".
type Payload struct {
	ID              *uuid.UUID
	Description     *string
	AgreementNumber *string

	AgreementDateFrom    *time.Time
	AgreementDateTo      *time.Time
	AvailabilityDateFrom *time.Time
	AvailabilityDateTo   *time.Time

	Types    []string
	Statuses []string

	CloseDtFrom *time.Time
	CloseDtTo   *time.Time

	ContractorSearchValue *string
}

// IsEmpty reports whether no criterion at all is set.
func (p Payload) IsEmpty() bool {
	return !p.hasOtherCriteria() && len(p.Types) == 0 && len(p.Statuses) == 0
}

// hasOtherCriteria reports whether anything besides type and status is set.
func (p Payload) hasOtherCriteria() bool {
	return p.ID != nil ||
		p.Description != nil ||
		p.AgreementNumber != nil ||
		p.AgreementDateFrom != nil ||
		p.AgreementDateTo != nil ||
		p.AvailabilityDateFrom != nil ||
		p.AvailabilityDateTo != nil ||
		p.CloseDtFrom != nil ||
		p.CloseDtTo != nil ||
		p.ContractorSearchValue != nil
}
