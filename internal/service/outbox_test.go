package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"deal-service/internal/clients"
	"deal-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func failedMessage(t *testing.T, e *env, contractorID string, trigger domain.Trigger, has bool) domain.OutboxMessage {
	t.Helper()
	m := domain.OutboxMessage{
		Content:            domain.OutboxContent(contractorID, has, trigger, 503),
		ContractorID:       contractorID,
		ActiveMainBorrower: has,
		CreatedAt:          time.Now(),
	}
	m.MarkFailed("service unavailable")
	require.NoError(t, e.outboxStore.Insert(context.Background(), &m))
	return m
}

func TestUpdateMainBorrower_WritesOneRow(t *testing.T) {
	e := newEnv()
	e.client.On("UpdateMainBorrower", mock.Anything, "c-1", true).
		Return(404, &clients.StatusError{Code: 404, Body: "no such contractor"}).Once()

	require.NoError(t, e.outbox.UpdateMainBorrower(context.Background(), "c-1", true, domain.TriggerOnUpdateStatusActive))

	msgs := e.db.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MessageFailed, msgs[0].Status)
	assert.False(t, msgs[0].Sent)
	assert.Equal(t, "Update main borrower: Contractor ID c-1 Has main deals true ON_UPDATE_STATUS_ACTIVE Status code 404", msgs[0].Content)
	require.NotNil(t, msgs[0].Exception)
	assert.Contains(t, *msgs[0].Exception, "no such contractor")
}

func TestResend_ClosedDealSkipsActivation(t *testing.T) {
	e := newEnv()
	m := failedMessage(t, e, "c-1", domain.TriggerOnUpdateStatusActive, true)
	e.outboxStore.current["c-1"] = &domain.Deal{Status: &domain.DealStatus{ID: domain.StatusClosed}}

	sum, err := e.outbox.ResendFailedMessages(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ResendSummary{Skipped: 1}, sum)
	got := e.db.messages()[0]
	assert.Equal(t, m.ID, got.ID)
	assert.True(t, got.Sent)
	assert.Equal(t, domain.MessageSuccess, got.Status)
	assert.Nil(t, got.Exception)
	e.client.AssertNotCalled(t, "UpdateMainBorrower", mock.Anything, mock.Anything, mock.Anything)
}

func TestResend_ActiveDealRetriesSuccessfully(t *testing.T) {
	e := newEnv()
	failedMessage(t, e, "c-1", domain.TriggerOnUpdateStatusActive, true)
	e.outboxStore.current["c-1"] = &domain.Deal{Status: &domain.DealStatus{ID: domain.StatusActive}}
	e.client.On("UpdateMainBorrower", mock.Anything, "c-1", true).Return(200, nil).Once()

	sum, err := e.outbox.ResendFailedMessages(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ResendSummary{Resent: 1}, sum)
	got := e.db.messages()[0]
	assert.True(t, got.Sent)
	assert.Equal(t, domain.MessageSuccess, got.Status)
	assert.Nil(t, got.Exception)
	e.client.AssertExpectations(t)
}

func TestResend_ActiveDealRetryFails(t *testing.T) {
	e := newEnv()
	failedMessage(t, e, "c-1", domain.TriggerOnUpdateStatusActive, true)
	e.outboxStore.current["c-1"] = &domain.Deal{Status: &domain.DealStatus{ID: domain.StatusActive}}
	e.client.On("UpdateMainBorrower", mock.Anything, "c-1", true).Return(0, errors.New("i/o timeout")).Once()

	sum, err := e.outbox.ResendFailedMessages(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ResendSummary{Failed: 1}, sum)
	got := e.db.messages()[0]
	assert.False(t, got.Sent)
	assert.Equal(t, domain.MessageFailed, got.Status)
	require.NotNil(t, got.Exception)
	assert.Equal(t, "i/o timeout", *got.Exception)
}

func TestResend_ClosedDealStillSendsClosure(t *testing.T) {
	e := newEnv()
	failedMessage(t, e, "c-1", domain.TriggerOnUpdateStatusClosed, false)
	e.outboxStore.current["c-1"] = &domain.Deal{Status: &domain.DealStatus{ID: domain.StatusClosed}}
	e.client.On("UpdateMainBorrower", mock.Anything, "c-1", false).Return(200, nil).Once()

	sum, err := e.outbox.ResendFailedMessages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Resent)
	e.client.AssertExpectations(t)
}

func TestResend_NoCurrentDealResends(t *testing.T) {
	e := newEnv()
	failedMessage(t, e, "c-9", domain.TriggerOnDelete, false)
	e.client.On("UpdateMainBorrower", mock.Anything, "c-9", false).Return(200, nil).Once()

	sum, err := e.outbox.ResendFailedMessages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Resent)
}

func TestResend_NewestFirst(t *testing.T) {
	e := newEnv()
	failedMessage(t, e, "c-1", domain.TriggerOnDelete, false)
	failedMessage(t, e, "c-2", domain.TriggerOnDelete, false)

	var order []string
	e.client.On("UpdateMainBorrower", mock.Anything, mock.AnythingOfType("string"), false).
		Run(func(args mock.Arguments) { order = append(order, args.String(1)) }).
		Return(200, nil)

	_, err := e.outbox.ResendFailedMessages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c-2", "c-1"}, order)
}

func TestResend_SentMessagesIgnored(t *testing.T) {
	e := newEnv()
	e.client.On("UpdateMainBorrower", mock.Anything, "c-1", true).Return(200, nil).Once()
	require.NoError(t, e.outbox.UpdateMainBorrower(context.Background(), "c-1", true, domain.TriggerOnUpdateStatusActive))

	sum, err := e.outbox.ResendFailedMessages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResendSummary{}, sum)
	e.client.AssertNumberOfCalls(t, "UpdateMainBorrower", 1)
}
