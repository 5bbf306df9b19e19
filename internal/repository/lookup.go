package repository

import (
	"context"
	"database/sql"
	"fmt"

	"deal-service/internal/domain"
)

// LookupRepository reads deal status and type reference data.
type LookupRepository struct {
	db *sql.DB
}

func NewLookupRepository(db *sql.DB) *LookupRepository {
	return &LookupRepository{db: db}
}

func (r *LookupRepository) FindStatus(ctx context.Context, id string) (*domain.DealStatus, error) {
	var s domain.DealStatus
	err := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, name, is_active FROM deal_status WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.Active)
	if err != nil {
		return nil, fmt.Errorf("find status %q: %w", id, mapError(err))
	}
	return &s, nil
}

func (r *LookupRepository) FindType(ctx context.Context, id string) (*domain.DealType, error) {
	var t domain.DealType
	err := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, name, is_active FROM deal_type WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Active)
	if err != nil {
		return nil, fmt.Errorf("find type %q: %w", id, mapError(err))
	}
	return &t, nil
}
