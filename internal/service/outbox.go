package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"deal-service/internal/domain"

	"go.uber.org/zap"
)

// PendingUpdate is an outbox row written but not yet delivered.
type PendingUpdate struct {
	msg     *domain.OutboxMessage
	trigger domain.Trigger
}

func (p *PendingUpdate) Message() *domain.OutboxMessage {
	return p.msg
}

type ResendSummary struct {
	Resent  int
	Skipped int
	Failed  int
}

type OutboxService struct {
	store  OutboxStore
	client MainBorrowerClient
	log    *zap.Logger
	now    func() time.Time
}

func NewOutboxService(store OutboxStore, client MainBorrowerClient, log *zap.Logger) *OutboxService {
	if log == nil {
		log = zap.NewNop()
	}
	return &OutboxService{
		store:  store,
		client: client,
		log:    log.Named("outbox"),
		now:    time.Now,
	}
}

// UpdateMainBorrower calls the contractor service and records the outcome
// as exactly one outbox row. Delivery failures are kept in the row, only
// storage failures are returned.
func (s *OutboxService) UpdateMainBorrower(ctx context.Context, contractorID string, hasMainDeals bool, trigger domain.Trigger) error {
	p, err := s.Enqueue(ctx, contractorID, hasMainDeals, trigger)
	if err != nil {
		return err
	}
	return s.Deliver(ctx, p)
}

// Enqueue stores an undelivered row. Run it in the same transaction as the
// state change that triggered it.
func (s *OutboxService) Enqueue(ctx context.Context, contractorID string, hasMainDeals bool, trigger domain.Trigger) (*PendingUpdate, error) {
	m := &domain.OutboxMessage{
		Content:            domain.OutboxContent(contractorID, hasMainDeals, trigger, 0),
		ContractorID:       contractorID,
		ActiveMainBorrower: hasMainDeals,
		Status:             domain.MessageFailed,
		CreatedAt:          s.now(),
	}
	if err := s.store.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("enqueue main borrower update: %w", err)
	}
	return &PendingUpdate{msg: m, trigger: trigger}, nil
}

func (s *OutboxService) Deliver(ctx context.Context, p *PendingUpdate) error {
	m := p.msg

	code, callErr := s.client.UpdateMainBorrower(ctx, m.ContractorID, m.ActiveMainBorrower)
	m.Content = domain.OutboxContent(m.ContractorID, m.ActiveMainBorrower, p.trigger, code)
	if callErr != nil {
		m.MarkFailed(callErr.Error())
		s.log.Warn("main borrower update failed",
			zap.Int64("message_id", m.ID),
			zap.String("contractor_id", m.ContractorID),
			zap.String("trigger", string(p.trigger)),
			zap.Int("status_code", code),
			zap.Error(callErr),
		)
	} else {
		m.MarkSent()
		s.log.Info("main borrower updated",
			zap.Int64("message_id", m.ID),
			zap.String("contractor_id", m.ContractorID),
			zap.Bool("has_main_deals", m.ActiveMainBorrower),
			zap.String("trigger", string(p.trigger)),
		)
	}

	if err := s.store.Update(ctx, m); err != nil {
		return fmt.Errorf("record main borrower update: %w", err)
	}
	return nil
}

// ResendFailedMessages retries every unsent row, newest first. Activation
// updates whose contractor deal has since been closed are marked sent
// without a call.
func (s *OutboxService) ResendFailedMessages(ctx context.Context) (ResendSummary, error) {
	var sum ResendSummary

	msgs, err := s.store.FindUnsent(ctx)
	if err != nil {
		return sum, fmt.Errorf("load unsent messages: %w", err)
	}

	for i := range msgs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		m := &msgs[i]

		resend, err := s.shouldResend(ctx, m)
		if err != nil {
			sum.Failed++
			s.log.Error("resend check failed", zap.Int64("message_id", m.ID), zap.Error(err))
			continue
		}

		if !resend {
			m.MarkSent()
			sum.Skipped++
		} else if _, callErr := s.client.UpdateMainBorrower(ctx, m.ContractorID, m.ActiveMainBorrower); callErr != nil {
			m.MarkFailed(callErr.Error())
			sum.Failed++
		} else {
			m.MarkSent()
			sum.Resent++
		}

		if err := s.store.Update(ctx, m); err != nil {
			s.log.Error("update outbox message", zap.Int64("message_id", m.ID), zap.Error(err))
		}
	}

	if len(msgs) > 0 {
		s.log.Info("resend finished",
			zap.Int("resent", sum.Resent),
			zap.Int("skipped", sum.Skipped),
			zap.Int("failed", sum.Failed),
		)
	}
	return sum, nil
}

func (s *OutboxService) shouldResend(ctx context.Context, m *domain.OutboxMessage) (bool, error) {
	deal, err := s.store.FindCurrentDeal(ctx, m.ContractorID)
	if errors.Is(err, domain.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if deal.StatusID() == domain.StatusClosed &&
		strings.Contains(m.Content, string(domain.TriggerOnUpdateStatusActive)) {
		return false, nil
	}
	return true, nil
}
