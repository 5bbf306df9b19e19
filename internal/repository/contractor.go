package repository

import (
	"context"
	"database/sql"
	"fmt"

	"deal-service/internal/domain"

	"github.com/google/uuid"
)

const contractorSelect = `
	SELECT
		dc.id,
		dc.deal_id,
		dc.contractor_id,
		dc.name,
		dc.inn,
		dc.main,
		dc.create_date,
		dc.modify_date,
		dc.create_user_id,
		dc.modify_user_id,
		dc.is_active,
		dc.contractor_modify_date
	FROM deal_contractor dc`

type ContractorRepository struct {
	db *sql.DB
}

func NewContractorRepository(db *sql.DB) *ContractorRepository {
	return &ContractorRepository{db: db}
}

func (r *ContractorRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.DealContractor, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx, contractorSelect+` WHERE dc.id = $1`, id)
	c, err := scanContractor(row)
	if err != nil {
		return nil, fmt.Errorf("find contractor %s: %w", id, mapError(err))
	}
	return c, nil
}

// FindByDealAndContractorID looks up the row keyed by deal and external contractor id,
// regardless of its active flag.
func (r *ContractorRepository) FindByDealAndContractorID(ctx context.Context, dealID uuid.UUID, contractorID string) (*domain.DealContractor, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx,
		contractorSelect+` WHERE dc.deal_id = $1 AND dc.contractor_id = $2
		ORDER BY dc.is_active DESC, dc.create_date DESC
		LIMIT 1`,
		dealID, contractorID,
	)
	c, err := scanContractor(row)
	if err != nil {
		return nil, fmt.Errorf("find contractor %s on deal %s: %w", contractorID, dealID, mapError(err))
	}
	return c, nil
}

func (r *ContractorRepository) FindActiveByDealID(ctx context.Context, dealID uuid.UUID) ([]domain.DealContractor, error) {
	return r.list(ctx, contractorSelect+` WHERE dc.deal_id = $1 AND dc.is_active = true ORDER BY dc.create_date, dc.id`, dealID)
}

// FindAllByContractorID returns every local row for an external contractor id, active or not.
func (r *ContractorRepository) FindAllByContractorID(ctx context.Context, contractorID string) ([]domain.DealContractor, error) {
	return r.list(ctx, contractorSelect+` WHERE dc.contractor_id = $1 ORDER BY dc.create_date, dc.id`, contractorID)
}

func (r *ContractorRepository) list(ctx context.Context, query string, args ...any) ([]domain.DealContractor, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contractors: %w", err)
	}
	defer rows.Close()

	var out []domain.DealContractor
	for rows.Next() {
		c, err := scanContractor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contractor: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *ContractorRepository) Insert(ctx context.Context, c *domain.DealContractor) error {
	_, err := executor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO deal_contractor (
			id, deal_id, contractor_id, name, inn, main,
			create_date, create_user_id, is_active, contractor_modify_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.DealID, c.ContractorID, c.Name, c.INN, c.Main,
		c.CreateDate, c.CreateUserID, c.Active, c.ContractorModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("insert contractor: %w", mapError(err))
	}
	return nil
}

func (r *ContractorRepository) Update(ctx context.Context, c *domain.DealContractor) error {
	res, err := executor(ctx, r.db).ExecContext(ctx, `
		UPDATE deal_contractor SET
			name                   = $2,
			inn                    = $3,
			main                   = $4,
			modify_date            = $5,
			modify_user_id         = $6,
			is_active              = $7,
			contractor_modify_date = $8
		WHERE id = $1`,
		c.ID, c.Name, c.INN, c.Main,
		c.ModifyDate, c.ModifyUserID, c.Active, c.ContractorModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("update contractor: %w", mapError(err))
	}
	return expectAffected(res, "contractor", c.ID)
}

// ExistsOtherActiveMain reports whether the deal has an active main contractor other than excludeID.
// Pass uuid.Nil to consider every row.
func (r *ContractorRepository) ExistsOtherActiveMain(ctx context.Context, dealID, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := executor(ctx, r.db).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM deal_contractor
			WHERE deal_id = $1 AND main = true AND is_active = true AND id <> $2
		)`, dealID, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check main contractor: %w", err)
	}
	return exists, nil
}

// CountDealsWithStatus counts active deals in the given status where the contractor is attached.
func (r *ContractorRepository) CountDealsWithStatus(ctx context.Context, contractorID, status string) (int, error) {
	var n int
	err := executor(ctx, r.db).QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT d.id)
		FROM deal d
		JOIN deal_contractor dc ON dc.deal_id = d.id
		WHERE dc.contractor_id = $1
		  AND dc.is_active = true
		  AND d.is_active = true
		  AND d.status = $2`, contractorID, status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s deals: %w", status, err)
	}
	return n, nil
}

// CountOtherMainDeals counts active deals, other than the one behind excludeID,
// where the contractor is an active main participant.
func (r *ContractorRepository) CountOtherMainDeals(ctx context.Context, contractorID string, excludeID uuid.UUID) (int, error) {
	var n int
	err := executor(ctx, r.db).QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT d.id)
		FROM deal d
		JOIN deal_contractor dc ON dc.deal_id = d.id
		WHERE dc.contractor_id = $1
		  AND dc.id <> $2
		  AND dc.main = true
		  AND dc.is_active = true
		  AND d.is_active = true`, contractorID, excludeID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count main deals: %w", err)
	}
	return n, nil
}

func scanContractor(s scanner) (*domain.DealContractor, error) {
	var c domain.DealContractor
	err := s.Scan(
		&c.ID,
		&c.DealID,
		&c.ContractorID,
		&c.Name,
		&c.INN,
		&c.Main,
		&c.CreateDate,
		&c.ModifyDate,
		&c.CreateUserID,
		&c.ModifyUserID,
		&c.Active,
		&c.ContractorModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
