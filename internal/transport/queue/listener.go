package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"deal-service/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const timestampHeader = "timestamp"

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ContractorUpdater interface {
	UpdateContractorByReceivedMessage(ctx context.Context, ev domain.ContractorUpdate) (int, error)
}

type contractorEvent struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
	INN  string `json:"inn" validate:"required"`
}

// Listener consumes contractor detail updates. A message is committed only
// after it was applied or parked in the dead letter topic.
type Listener struct {
	reader   Reader
	dlq      Writer
	updater  ContractorUpdater
	validate *validator.Validate
	logger   *zap.Logger

	retryDelay time.Duration
}

func NewListener(reader Reader, dlq Writer, updater ContractorUpdater, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		reader:     reader,
		dlq:        dlq,
		updater:    updater,
		validate:   validator.New(),
		logger:     logger.Named("contractor-listener"),
		retryDelay: time.Second,
	}
}

// Run blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("listener started")
	for {
		msg, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("listener stopped")
				return nil
			}
			l.logger.Warn("fetch message", zap.Error(err))
			if !sleep(ctx, l.retryDelay) {
				return nil
			}
			continue
		}

		if err := l.handle(ctx, msg); err != nil {
			// neither applied nor parked, leave uncommitted for redelivery
			l.logger.Error("message left uncommitted",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			if !sleep(ctx, l.retryDelay) {
				return nil
			}
			continue
		}

		if err := l.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			l.logger.Warn("commit message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (l *Listener) handle(ctx context.Context, msg kafka.Message) error {
	ev, err := l.decode(msg)
	if err != nil {
		return l.deadLetter(ctx, msg, err)
	}

	updated, err := l.updater.UpdateContractorByReceivedMessage(ctx, ev)
	if err != nil {
		return l.deadLetter(ctx, msg, err)
	}

	l.logger.Debug("contractor update applied",
		zap.String("contractor_id", ev.ContractorID),
		zap.Int("rows", updated),
	)
	return nil
}

func (l *Listener) decode(msg kafka.Message) (domain.ContractorUpdate, error) {
	var ev contractorEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return domain.ContractorUpdate{}, fmt.Errorf("%w: decode payload: %v", domain.ErrValidation, err)
	}
	if err := l.validate.Struct(ev); err != nil {
		return domain.ContractorUpdate{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	return domain.ContractorUpdate{
		ContractorID: ev.ID,
		Name:         ev.Name,
		INN:          ev.INN,
		CreatedAt:    messageTime(msg),
	}, nil
}

func (l *Listener) deadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	l.logger.Warn("sending message to dead letter topic",
		zap.Int64("offset", msg.Offset),
		zap.Error(cause),
	)
	if l.dlq == nil {
		return nil
	}

	headers := append([]kafka.Header{}, msg.Headers...)
	headers = append(headers, kafka.Header{Key: "error", Value: []byte(cause.Error())})

	err := l.dlq.WriteMessages(ctx, kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("dead letter: %w", err)
	}
	return nil
}

// messageTime reads the producer timestamp header in epoch millis and falls
// back to the broker time.
func messageTime(msg kafka.Message) time.Time {
	for _, h := range msg.Headers {
		if h.Key != timestampHeader {
			continue
		}
		if ms, err := strconv.ParseInt(string(h.Value), 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	}
	if msg.Time.IsZero() {
		return time.Now().UTC()
	}
	return msg.Time.UTC()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
