package repository

import (
	"context"
	"database/sql"
	"fmt"

	"deal-service/internal/domain"
)

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Insert(ctx context.Context, m *domain.OutboxMessage) error {
	err := executor(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO contractor_outbox_message (
			content, contractor_id, active_main_borrower, status, sent, exception, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		m.Content, m.ContractorID, m.ActiveMainBorrower, string(m.Status), m.Sent, m.Exception, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

func (r *OutboxRepository) Update(ctx context.Context, m *domain.OutboxMessage) error {
	res, err := executor(ctx, r.db).ExecContext(ctx, `
		UPDATE contractor_outbox_message SET
			content   = $2,
			status    = $3,
			sent      = $4,
			exception = $5
		WHERE id = $1`,
		m.ID, m.Content, string(m.Status), m.Sent, m.Exception,
	)
	if err != nil {
		return fmt.Errorf("update outbox message: %w", err)
	}
	return expectAffected(res, "outbox message", m.ID)
}

// FindUnsent returns messages with sent = false, newest first.
func (r *OutboxRepository) FindUnsent(ctx context.Context) ([]domain.OutboxMessage, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, `
		SELECT id, content, contractor_id, active_main_borrower, status, sent, exception, created_at
		FROM contractor_outbox_message
		WHERE sent = false
		ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list unsent messages: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboxMessage
	for rows.Next() {
		var (
			m      domain.OutboxMessage
			status string
		)
		if err := rows.Scan(
			&m.ID, &m.Content, &m.ContractorID, &m.ActiveMainBorrower,
			&status, &m.Sent, &m.Exception, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		m.Status = domain.MessageStatus(status)
		out = append(out, m)
	}
	return out, rows.Err()
}

// FindCurrentDeal returns the most recently modified active deal the contractor is attached to.
func (r *OutboxRepository) FindCurrentDeal(ctx context.Context, contractorID string) (*domain.Deal, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx, dealSelect+`
		JOIN deal_contractor dc ON dc.deal_id = d.id
		WHERE dc.contractor_id = $1
		  AND dc.is_active = true
		  AND d.is_active = true
		ORDER BY COALESCE(d.modify_date, d.create_date) DESC
		LIMIT 1`, contractorID,
	)
	d, err := scanDeal(row)
	if err != nil {
		return nil, fmt.Errorf("find deal for contractor %s: %w", contractorID, mapError(err))
	}
	return d, nil
}
