package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"deal-service/internal/domain"
	"deal-service/internal/search"
	"deal-service/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	dateLayout     = "02-01-2006"
	dateTimeLayout = "02-01-2006 15:04:05"
)

// Date is a calendar date in dd-MM-yyyy form.
type Date struct{ time.Time }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	return parseLayout(b, dateLayout, &d.Time)
}

// DateTime is a timestamp in dd-MM-yyyy HH:mm:ss form.
type DateTime struct{ time.Time }

func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateTimeLayout))
}

func (d *DateTime) UnmarshalJSON(b []byte) error {
	return parseLayout(b, dateTimeLayout, &d.Time)
}

func parseLayout(b []byte, layout string, dst *time.Time) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return fmt.Errorf("expected %s: %w", layout, err)
	}
	*dst = t
	return nil
}

func datePtr(t *time.Time) *Date {
	if t == nil {
		return nil
	}
	return &Date{*t}
}

func dateTimePtr(t *time.Time) *DateTime {
	if t == nil {
		return nil
	}
	return &DateTime{*t}
}

func (d *Date) timePtr() *time.Time {
	if d == nil {
		return nil
	}
	return &d.Time
}

func (d *DateTime) timePtr() *time.Time {
	if d == nil {
		return nil
	}
	return &d.Time
}

type idRef struct {
	ID string `json:"id" validate:"required"`
}

type SaveDealRequest struct {
	ID               *uuid.UUID       `json:"id"`
	Description      *string          `json:"description"`
	AgreementNumber  *string          `json:"agreement_number"`
	AgreementDate    *Date            `json:"agreement_date"`
	AgreementStartDt *DateTime        `json:"agreement_start_dt"`
	AvailabilityDate *Date            `json:"availability_date"`
	Type             *idRef           `json:"type"`
	Sum              *decimal.Decimal `json:"sum"`
	CloseDt          *DateTime        `json:"close_dt"`
}

func (r SaveDealRequest) toInput() service.SaveDealInput {
	in := service.SaveDealInput{
		ID:               r.ID,
		Description:      r.Description,
		AgreementNumber:  r.AgreementNumber,
		AgreementDate:    r.AgreementDate.timePtr(),
		AgreementStartDt: r.AgreementStartDt.timePtr(),
		AvailabilityDate: r.AvailabilityDate.timePtr(),
		Sum:              r.Sum,
		CloseDt:          r.CloseDt.timePtr(),
	}
	if r.Type != nil {
		in.TypeID = &r.Type.ID
	}
	return in
}

type ChangeStatusRequest struct {
	ID     uuid.UUID `json:"id" validate:"required"`
	Status *idRef    `json:"status" validate:"required"`
}

type SearchDealRequest struct {
	ID              *uuid.UUID `json:"id"`
	Description     *string    `json:"description"`
	AgreementNumber *string    `json:"agreement_number"`

	AgreementDateFrom    *Date `json:"agreement_date_from"`
	AgreementDateTo      *Date `json:"agreement_date_to"`
	AvailabilityDateFrom *Date `json:"availability_date_from"`
	AvailabilityDateTo   *Date `json:"availability_date_to"`

	Type   []string `json:"type"`
	Status []string `json:"status"`

	CloseDtFrom *DateTime `json:"close_dt_from"`
	CloseDtTo   *DateTime `json:"close_dt_to"`

	ContractorSearchValue *string `json:"contractor_search_value"`
}

func (r SearchDealRequest) toPayload() search.Payload {
	return search.Payload{
		ID:                    r.ID,
		Description:           r.Description,
		AgreementNumber:       r.AgreementNumber,
		AgreementDateFrom:     r.AgreementDateFrom.timePtr(),
		AgreementDateTo:       r.AgreementDateTo.timePtr(),
		AvailabilityDateFrom:  r.AvailabilityDateFrom.timePtr(),
		AvailabilityDateTo:    r.AvailabilityDateTo.timePtr(),
		Types:                 r.Type,
		Statuses:              r.Status,
		CloseDtFrom:           r.CloseDtFrom.timePtr(),
		CloseDtTo:             r.CloseDtTo.timePtr(),
		ContractorSearchValue: r.ContractorSearchValue,
	}
}

type ExportDealsRequest struct {
	SearchDealRequest
	Columns []string `json:"columns"`
}

type SaveContractorRequest struct {
	ID           *uuid.UUID `json:"id"`
	DealID       uuid.UUID  `json:"deal_id" validate:"required"`
	ContractorID string     `json:"contractor_id" validate:"required,max=255"`
	Name         string     `json:"name" validate:"required,max=255"`
	INN          string     `json:"inn" validate:"required,max=12"`
	Main         bool       `json:"main"`
}

func (r SaveContractorRequest) toInput() service.SaveContractorInput {
	return service.SaveContractorInput{
		DealID:       r.DealID,
		ContractorID: r.ContractorID,
		Name:         r.Name,
		INN:          r.INN,
		Main:         r.Main,
	}
}

type RoleRequest struct {
	ID string `json:"id" validate:"required"`
}

type lookupResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"is_active"`
}

type DealResponse struct {
	ID               uuid.UUID        `json:"id"`
	Description      *string          `json:"description"`
	AgreementNumber  *string          `json:"agreement_number"`
	AgreementDate    *Date            `json:"agreement_date"`
	AgreementStartDt *DateTime        `json:"agreement_start_dt"`
	AvailabilityDate *Date            `json:"availability_date"`
	Type             *lookupResponse  `json:"type"`
	Status           *lookupResponse  `json:"status"`
	Sum              *decimal.Decimal `json:"sum"`
	CloseDt          *DateTime        `json:"close_dt"`

	Contractors []ContractorResponse `json:"contractors,omitempty"`
}

func newDealResponse(d *domain.Deal) DealResponse {
	resp := DealResponse{
		ID:               d.ID,
		Description:      d.Description,
		AgreementNumber:  d.AgreementNumber,
		AgreementDate:    datePtr(d.AgreementDate),
		AgreementStartDt: dateTimePtr(d.AgreementStartDt),
		AvailabilityDate: datePtr(d.AvailabilityDate),
		Sum:              d.Sum,
		CloseDt:          dateTimePtr(d.CloseDt),
	}
	if d.Type != nil {
		resp.Type = &lookupResponse{ID: d.Type.ID, Name: d.Type.Name, Active: d.Type.Active}
	}
	if d.Status != nil {
		resp.Status = &lookupResponse{ID: d.Status.ID, Name: d.Status.Name, Active: d.Status.Active}
	}
	return resp
}

func newDealWithContractorsResponse(d *domain.DealWithContractors) DealResponse {
	resp := newDealResponse(&d.Deal)
	resp.Contractors = make([]ContractorResponse, 0, len(d.Contractors))
	for i := range d.Contractors {
		c := newContractorResponse(&d.Contractors[i])
		c.DealID = nil
		resp.Contractors = append(resp.Contractors, c)
	}
	return resp
}

type RoleResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type ContractorResponse struct {
	ID           uuid.UUID      `json:"id"`
	DealID       *uuid.UUID     `json:"deal_id,omitempty"`
	ContractorID string         `json:"contractor_id"`
	Name         string         `json:"name"`
	INN          string         `json:"inn"`
	Main         bool           `json:"main"`
	Roles        []RoleResponse `json:"roles"`
}

func newContractorResponse(c *domain.ContractorWithRoles) ContractorResponse {
	dealID := c.DealID
	resp := ContractorResponse{
		ID:           c.ID,
		DealID:       &dealID,
		ContractorID: c.ContractorID,
		Name:         c.Name,
		INN:          c.INN,
		Main:         c.Main,
		Roles:        make([]RoleResponse, 0, len(c.Roles)),
	}
	for _, r := range c.Roles {
		resp.Roles = append(resp.Roles, RoleResponse{ID: r.ID, Name: r.Name, Category: r.Category})
	}
	return resp
}

type PageResponse[T any] struct {
	Content       []T `json:"content"`
	Page          int `json:"page"`
	Size          int `json:"size"`
	TotalElements int `json:"total_elements"`
	TotalPages    int `json:"total_pages"`
}
