package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deal-service/internal/domain"
	"deal-service/internal/security"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SaveContractorInput struct {
	DealID       uuid.UUID
	ContractorID string
	Name         string
	INN          string
	Main         bool
}

type ContractorService struct {
	tx          Transactor
	deals       DealStore
	contractors ContractorStore
	roles       RoleStore
	outbox      MainBorrowerOutbox
	log         *zap.Logger
	now         func() time.Time
}

func NewContractorService(
	tx Transactor,
	deals DealStore,
	contractors ContractorStore,
	roles RoleStore,
	outbox MainBorrowerOutbox,
	log *zap.Logger,
) *ContractorService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContractorService{
		tx:          tx,
		deals:       deals,
		contractors: contractors,
		roles:       roles,
		outbox:      outbox,
		log:         log.Named("contractor"),
		now:         time.Now,
	}
}

// SaveContractor upserts the contractor keyed by deal and external id.
// A deal holds at most one active main contractor.
func (s *ContractorService) SaveContractor(ctx context.Context, in SaveContractorInput) (*domain.ContractorWithRoles, error) {
	var saved *domain.DealContractor

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.deals.FindByID(ctx, in.DealID); err != nil {
			return err
		}

		existing, err := s.contractors.FindByDealAndContractorID(ctx, in.DealID, in.ContractorID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		if in.Main {
			exclude := uuid.Nil
			if existing != nil {
				exclude = existing.ID
			}
			taken, err := s.contractors.ExistsOtherActiveMain(ctx, in.DealID, exclude)
			if err != nil {
				return err
			}
			if taken {
				return domain.ErrMainBorrowerExists
			}
		}

		user := security.UserID(ctx)
		now := s.now()

		if existing != nil {
			existing.Name = in.Name
			existing.INN = in.INN
			existing.Main = in.Main
			existing.Active = true
			existing.ModifyDate = &now
			existing.ModifyUserID = &user
			if err := s.contractors.Update(ctx, existing); err != nil {
				return err
			}
			saved = existing
			return nil
		}

		c := &domain.DealContractor{
			ID:           uuid.New(),
			DealID:       in.DealID,
			ContractorID: in.ContractorID,
			Name:         in.Name,
			INN:          in.INN,
			Main:         in.Main,
			CreateDate:   now,
			CreateUserID: &user,
			Active:       true,
		}
		if err := s.contractors.Insert(ctx, c); err != nil {
			return err
		}
		saved = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.withRoles(ctx, saved)
}

// DeleteContractor soft-deletes a contractor. When it was main and is still
// main on another active deal, the contractor service is told it has no
// main deals.
func (s *ContractorService) DeleteContractor(ctx context.Context, id uuid.UUID) error {
	var pending *PendingUpdate

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.contractors.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !c.Active {
			return fmt.Errorf("contractor %s: %w", id, domain.ErrNotActive)
		}

		now := s.now()
		user := security.UserID(ctx)
		c.Active = false
		c.ModifyDate = &now
		c.ModifyUserID = &user
		if err := s.contractors.Update(ctx, c); err != nil {
			return err
		}

		if !c.Main {
			return nil
		}
		n, err := s.contractors.CountOtherMainDeals(ctx, c.ContractorID, c.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		pending, err = s.outbox.Enqueue(ctx, c.ContractorID, false, domain.TriggerOnDelete)
		return err
	})
	if err != nil {
		return err
	}

	if pending != nil {
		if err := s.outbox.Deliver(ctx, pending); err != nil {
			s.log.Error("deliver main borrower update", zap.Error(err))
		}
	}
	s.log.Info("contractor deleted", zap.Stringer("id", id), zap.String("user_id", security.UserID(ctx)))
	return nil
}

func (s *ContractorService) AddRole(ctx context.Context, dealContractorID uuid.UUID, roleID string) (*domain.ContractorWithRoles, error) {
	var c *domain.DealContractor

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.contractors.FindByID(ctx, dealContractorID)
		if err != nil {
			return err
		}
		role, err := s.roles.FindRole(ctx, roleID)
		if err != nil {
			return err
		}
		return s.roles.InsertContractorRole(ctx, &domain.DealContractorRole{
			ID:               uuid.New(),
			DealContractorID: c.ID,
			RoleID:           role.ID,
			Active:           true,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.withRoles(ctx, c)
}

func (s *ContractorService) DeleteRole(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		cr, err := s.roles.FindContractorRole(ctx, id)
		if err != nil {
			return err
		}
		cr.Active = false
		return s.roles.UpdateContractorRole(ctx, cr)
	})
}

// UpdateContractorByReceivedMessage applies name and tax id from the contractor
// service to every local row of that contractor, unless the row already holds
// data at least as recent as the event. It returns the number of rows changed.
func (s *ContractorService) UpdateContractorByReceivedMessage(ctx context.Context, ev domain.ContractorUpdate) (int, error) {
	applied := 0

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		rows, err := s.contractors.FindAllByContractorID(ctx, ev.ContractorID)
		if err != nil {
			return err
		}

		now := s.now()
		user := security.UserID(ctx)
		for i := range rows {
			c := &rows[i]
			if c.ContractorModifiedAt != nil && !ev.CreatedAt.After(*c.ContractorModifiedAt) {
				continue
			}
			created := ev.CreatedAt
			c.Name = ev.Name
			c.INN = ev.INN
			c.ContractorModifiedAt = &created
			c.ModifyDate = &now
			c.ModifyUserID = &user
			if err := s.contractors.Update(ctx, c); err != nil {
				return err
			}
			applied++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Debug("contractor update applied",
		zap.String("contractor_id", ev.ContractorID),
		zap.Int("rows", applied),
	)
	return applied, nil
}

func (s *ContractorService) withRoles(ctx context.Context, c *domain.DealContractor) (*domain.ContractorWithRoles, error) {
	roles, err := s.roles.FindActiveRoles(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &domain.ContractorWithRoles{DealContractor: *c, Roles: roles}, nil
}
