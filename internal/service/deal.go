package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deal-service/internal/domain"
	"deal-service/internal/search"
	"deal-service/internal/security"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 10
	maxPageSize     = 1000
)

type SaveDealInput struct {
	ID               *uuid.UUID
	Description      *string
	AgreementNumber  *string
	AgreementDate    *time.Time
	AgreementStartDt *time.Time
	AvailabilityDate *time.Time
	TypeID           *string
	Sum              *decimal.Decimal
	CloseDt          *time.Time
}

type DealService struct {
	tx          Transactor
	deals       DealStore
	contractors ContractorStore
	roles       RoleStore
	lookups     LookupStore
	outbox      MainBorrowerOutbox
	log         *zap.Logger
	now         func() time.Time
}

func NewDealService(
	tx Transactor,
	deals DealStore,
	contractors ContractorStore,
	roles RoleStore,
	lookups LookupStore,
	outbox MainBorrowerOutbox,
	log *zap.Logger,
) *DealService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DealService{
		tx:          tx,
		deals:       deals,
		contractors: contractors,
		roles:       roles,
		lookups:     lookups,
		outbox:      outbox,
		log:         log.Named("deal"),
		now:         time.Now,
	}
}

// SaveDeal creates a deal, or updates the deal with in.ID when it exists.
// Both paths leave the deal in DRAFT. An unknown id creates a new deal
// under a fresh id.
func (s *DealService) SaveDeal(ctx context.Context, in SaveDealInput) (*domain.Deal, error) {
	var saved *domain.Deal

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		dealType, err := s.resolveType(ctx, in.TypeID)
		if err != nil {
			return err
		}

		draft, err := s.lookups.FindStatus(ctx, domain.StatusDraft)
		if err != nil {
			return fmt.Errorf("resolve draft status: %w", err)
		}

		if in.ID != nil {
			existing, err := s.deals.FindByID(ctx, *in.ID)
			switch {
			case err == nil:
				applyDealInput(existing, in, dealType)
				existing.Status = draft
				now := s.now()
				user := security.UserID(ctx)
				existing.ModifyDate = &now
				existing.ModifyUserID = &user
				if err := s.deals.Update(ctx, existing); err != nil {
					return err
				}
				saved = existing
				return nil
			case !errors.Is(err, domain.ErrNotFound):
				return err
			}
		}

		d := &domain.Deal{
			ID:           uuid.New(),
			Status:       draft,
			CreateDate:   s.now(),
			CreateUserID: security.UserID(ctx),
		}
		applyDealInput(d, in, dealType)
		if err := s.deals.Insert(ctx, d); err != nil {
			return err
		}
		saved = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("deal saved", zap.Stringer("deal_id", saved.ID), zap.String("user_id", security.UserID(ctx)))
	return saved, nil
}

func (s *DealService) resolveType(ctx context.Context, typeID *string) (*domain.DealType, error) {
	if typeID == nil || *typeID == "" {
		return nil, nil
	}
	t, err := s.lookups.FindType(ctx, *typeID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown deal type %q", domain.ErrValidation, *typeID)
	}
	return t, err
}

func applyDealInput(d *domain.Deal, in SaveDealInput, t *domain.DealType) {
	d.Description = in.Description
	d.AgreementNumber = in.AgreementNumber
	d.AgreementDate = in.AgreementDate
	d.AgreementStartDt = in.AgreementStartDt
	d.AvailabilityDate = in.AvailabilityDate
	d.Type = t
	d.Sum = in.Sum
	d.CloseDt = in.CloseDt
	d.Active = true
}

// transitionEffect describes the main borrower update caused by a status change:
// the flag to send, the trigger, and the number of the contractor's ACTIVE
// deals (after the change) at which it applies.
func transitionEffect(from, to string) (hasMainDeals bool, trigger domain.Trigger, activeDeals int, ok bool) {
	switch {
	case from == domain.StatusDraft && to == domain.StatusActive:
		return true, domain.TriggerOnUpdateStatusActive, 1, true
	case from == domain.StatusActive && to == domain.StatusClosed:
		return false, domain.TriggerOnUpdateStatusClosed, 0, true
	default:
		return false, "", 0, false
	}
}

// ChangeStatus moves a deal to statusCode. Activation of a contractor's only
// active deal and closure of its last one are propagated to the contractor
// service for main contractors; propagation failures do not fail the change.
func (s *DealService) ChangeStatus(ctx context.Context, id uuid.UUID, statusCode string) (*domain.Deal, error) {
	var (
		deal    *domain.Deal
		pending []*PendingUpdate
	)

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		status, err := s.lookups.FindStatus(ctx, statusCode)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: unknown status %q", domain.ErrValidation, statusCode)
		}
		if err != nil {
			return err
		}

		deal, err = s.deals.FindByID(ctx, id)
		if err != nil {
			return err
		}

		from := deal.StatusID()
		now := s.now()
		user := security.UserID(ctx)
		deal.Status = status
		deal.ModifyDate = &now
		deal.ModifyUserID = &user
		if err := s.deals.Update(ctx, deal); err != nil {
			return err
		}

		hasMain, trigger, want, ok := transitionEffect(from, status.ID)
		if !ok {
			return nil
		}

		contractors, err := s.contractors.FindActiveByDealID(ctx, deal.ID)
		if err != nil {
			return err
		}
		for _, c := range contractors {
			if !c.Main {
				continue
			}
			n, err := s.contractors.CountDealsWithStatus(ctx, c.ContractorID, domain.StatusActive)
			if err != nil {
				return err
			}
			if n != want {
				continue
			}
			p, err := s.outbox.Enqueue(ctx, c.ContractorID, hasMain, trigger)
			if err != nil {
				return err
			}
			pending = append(pending, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.deliver(ctx, pending)

	s.log.Info("deal status changed",
		zap.Stringer("deal_id", deal.ID),
		zap.String("status", deal.StatusID()),
		zap.Int("propagated", len(pending)),
	)
	return deal, nil
}

func (s *DealService) deliver(ctx context.Context, pending []*PendingUpdate) {
	for _, p := range pending {
		if err := s.outbox.Deliver(ctx, p); err != nil {
			s.log.Error("deliver main borrower update", zap.Error(err))
		}
	}
}

func (s *DealService) GetDealWithContractors(ctx context.Context, id uuid.UUID) (*domain.DealWithContractors, error) {
	deal, err := s.deals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	contractors, err := s.contractorsWithRoles(ctx, deal.ID, false)
	if err != nil {
		return nil, err
	}
	return &domain.DealWithContractors{Deal: *deal, Contractors: contractors}, nil
}

// SearchDeals returns one page of active deals visible to roles. A payload
// the roles may not run yields an empty page. Contractors without active
// roles are left out of each deal.
func (s *DealService) SearchDeals(ctx context.Context, p search.Payload, roles security.Roles, page, size int) (domain.Page[domain.DealWithContractors], error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	result := domain.Page[domain.DealWithContractors]{Page: page, Size: size}

	filter := search.Deny()
	if scoped, ok := search.Scope(p, roles); ok {
		filter = search.Build(scoped)
	}

	deals, total, err := s.deals.Search(ctx, filter, size, page*size)
	if err != nil {
		return result, err
	}
	result.TotalElements = total
	result.Content = make([]domain.DealWithContractors, 0, len(deals))

	for _, d := range deals {
		contractors, err := s.contractorsWithRoles(ctx, d.ID, true)
		if err != nil {
			return result, err
		}
		result.Content = append(result.Content, domain.DealWithContractors{Deal: d, Contractors: contractors})
	}
	return result, nil
}

func (s *DealService) contractorsWithRoles(ctx context.Context, dealID uuid.UUID, skipRoleless bool) ([]domain.ContractorWithRoles, error) {
	contractors, err := s.contractors.FindActiveByDealID(ctx, dealID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ContractorWithRoles, 0, len(contractors))
	for _, c := range contractors {
		roles, err := s.roles.FindActiveRoles(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if skipRoleless && len(roles) == 0 {
			continue
		}
		out = append(out, domain.ContractorWithRoles{DealContractor: c, Roles: roles})
	}
	return out, nil
}
