package repository

import (
	"context"
	"database/sql"
	"fmt"

	"deal-service/internal/domain"
	"deal-service/internal/search"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const dealSelect = `
	SELECT
		d.id,
		d.description,
		d.agreement_number,
		d.agreement_date,
		d.agreement_start_dt,
		d.availability_date,
		d.sum,
		d.close_dt,
		d.create_date,
		d.modify_date,
		d.create_user_id,
		d.modify_user_id,
		d.is_active,

		dt.id,
		dt.name,
		dt.is_active,

		ds.id,
		ds.name,
		ds.is_active
	FROM deal d
	LEFT JOIN deal_type   dt ON dt.id = d.type
	LEFT JOIN deal_status ds ON ds.id = d.status`

type DealRepository struct {
	db *sql.DB
}

func NewDealRepository(db *sql.DB) *DealRepository {
	return &DealRepository{db: db}
}

func (r *DealRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Deal, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx, dealSelect+` WHERE d.id = $1`, id)
	d, err := scanDeal(row)
	if err != nil {
		return nil, fmt.Errorf("find deal %s: %w", id, mapError(err))
	}
	return d, nil
}

func (r *DealRepository) Insert(ctx context.Context, d *domain.Deal) error {
	_, err := executor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO deal (
			id, description, agreement_number, agreement_date, agreement_start_dt,
			availability_date, type, status, sum, close_dt,
			create_date, create_user_id, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		d.ID, d.Description, d.AgreementNumber, d.AgreementDate, d.AgreementStartDt,
		d.AvailabilityDate, typeID(d), d.StatusID(), nullDecimal(d.Sum), d.CloseDt,
		d.CreateDate, d.CreateUserID, d.Active,
	)
	if err != nil {
		return fmt.Errorf("insert deal: %w", mapError(err))
	}
	return nil
}

func (r *DealRepository) Update(ctx context.Context, d *domain.Deal) error {
	res, err := executor(ctx, r.db).ExecContext(ctx, `
		UPDATE deal SET
			description        = $2,
			agreement_number   = $3,
			agreement_date     = $4,
			agreement_start_dt = $5,
			availability_date  = $6,
			type               = $7,
			status             = $8,
			sum                = $9,
			close_dt           = $10,
			modify_date        = $11,
			modify_user_id     = $12,
			is_active          = $13
		WHERE id = $1`,
		d.ID, d.Description, d.AgreementNumber, d.AgreementDate, d.AgreementStartDt,
		d.AvailabilityDate, typeID(d), d.StatusID(), nullDecimal(d.Sum), d.CloseDt,
		d.ModifyDate, d.ModifyUserID, d.Active,
	)
	if err != nil {
		return fmt.Errorf("update deal: %w", mapError(err))
	}
	return expectAffected(res, "deal", d.ID)
}

// Search returns one page of deals matching f and the total match count.
func (r *DealRepository) Search(ctx context.Context, f search.Filter, limit, offset int) ([]domain.Deal, int, error) {
	if f.Denied() {
		return nil, 0, nil
	}

	db := executor(ctx, r.db)

	var total int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deal d WHERE `+f.Where, f.Args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deals: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	n := len(f.Args)
	query := fmt.Sprintf("%s WHERE %s ORDER BY d.create_date DESC, d.id LIMIT $%d OFFSET $%d",
		dealSelect, f.Where, n+1, n+2)
	args := append(append([]any{}, f.Args...), limit, offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search deals: %w", err)
	}
	defer rows.Close()

	var out []domain.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan deal: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func scanDeal(s scanner) (*domain.Deal, error) {
	var (
		d                    domain.Deal
		sum                  decimal.NullDecimal
		typeID, typeName     sql.NullString
		typeActive           sql.NullBool
		statusID, statusName sql.NullString
		statusActive         sql.NullBool
	)

	err := s.Scan(
		&d.ID,
		&d.Description,
		&d.AgreementNumber,
		&d.AgreementDate,
		&d.AgreementStartDt,
		&d.AvailabilityDate,
		&sum,
		&d.CloseDt,
		&d.CreateDate,
		&d.ModifyDate,
		&d.CreateUserID,
		&d.ModifyUserID,
		&d.Active,
		&typeID, &typeName, &typeActive,
		&statusID, &statusName, &statusActive,
	)
	if err != nil {
		return nil, err
	}

	if sum.Valid {
		v := sum.Decimal
		d.Sum = &v
	}
	if typeID.Valid {
		d.Type = &domain.DealType{ID: typeID.String, Name: typeName.String, Active: typeActive.Bool}
	}
	if statusID.Valid {
		d.Status = &domain.DealStatus{ID: statusID.String, Name: statusName.String, Active: statusActive.Bool}
	}
	return &d, nil
}

func typeID(d *domain.Deal) *string {
	if d.Type == nil {
		return nil
	}
	return &d.Type.ID
}

func nullDecimal(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *v, Valid: true}
}

func expectAffected(res sql.Result, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", entity, id, domain.ErrNotFound)
	}
	return nil
}
