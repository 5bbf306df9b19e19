package repository

import (
	"context"
	"database/sql"
	"fmt"

	"deal-service/internal/domain"

	"github.com/google/uuid"
)

type RoleRepository struct {
	db *sql.DB
}

func NewRoleRepository(db *sql.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) FindRole(ctx context.Context, id string) (*domain.ContractorRole, error) {
	var role domain.ContractorRole
	err := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, name, category, is_active FROM contractor_role WHERE id = $1`, id,
	).Scan(&role.ID, &role.Name, &role.Category, &role.Active)
	if err != nil {
		return nil, fmt.Errorf("find role %q: %w", id, mapError(err))
	}
	return &role, nil
}

// FindActiveRoles returns the roles of a deal contractor through active join rows only.
func (r *RoleRepository) FindActiveRoles(ctx context.Context, dealContractorID uuid.UUID) ([]domain.ContractorRole, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, `
		SELECT cr.id, cr.name, cr.category, cr.is_active
		FROM deal_contractor_role dcr
		JOIN contractor_role cr ON cr.id = dcr.contractor_role_id
		WHERE dcr.deal_contractor_id = $1
		  AND dcr.is_active = true
		ORDER BY cr.id`, dealContractorID,
	)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var out []domain.ContractorRole
	for rows.Next() {
		var role domain.ContractorRole
		if err := rows.Scan(&role.ID, &role.Name, &role.Category, &role.Active); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func (r *RoleRepository) FindContractorRole(ctx context.Context, id uuid.UUID) (*domain.DealContractorRole, error) {
	var cr domain.DealContractorRole
	err := executor(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, deal_contractor_id, contractor_role_id, is_active
		FROM deal_contractor_role
		WHERE id = $1`, id,
	).Scan(&cr.ID, &cr.DealContractorID, &cr.RoleID, &cr.Active)
	if err != nil {
		return nil, fmt.Errorf("find contractor role %s: %w", id, mapError(err))
	}
	return &cr, nil
}

func (r *RoleRepository) InsertContractorRole(ctx context.Context, cr *domain.DealContractorRole) error {
	_, err := executor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO deal_contractor_role (id, deal_contractor_id, contractor_role_id, is_active)
		VALUES ($1, $2, $3, $4)`,
		cr.ID, cr.DealContractorID, cr.RoleID, cr.Active,
	)
	if err != nil {
		return fmt.Errorf("insert contractor role: %w", mapError(err))
	}
	return nil
}

func (r *RoleRepository) UpdateContractorRole(ctx context.Context, cr *domain.DealContractorRole) error {
	res, err := executor(ctx, r.db).ExecContext(ctx,
		`UPDATE deal_contractor_role SET is_active = $2 WHERE id = $1`, cr.ID, cr.Active,
	)
	if err != nil {
		return fmt.Errorf("update contractor role: %w", mapError(err))
	}
	return expectAffected(res, "contractor role", cr.ID)
}
