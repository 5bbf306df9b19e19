package domain

import (
	"fmt"
	"time"
)

type MessageStatus string

const (
	MessageSuccess MessageStatus = "SUCCESS"
	MessageFailed  MessageStatus = "FAILED"
)

// Trigger names the lifecycle event that caused a main borrower update.
type Trigger string

const (
	TriggerOnDelete             Trigger = "ON_DELETE"
	TriggerOnUpdateStatusActive Trigger = "ON_UPDATE_STATUS_ACTIVE"
	TriggerOnUpdateStatusClosed Trigger = "ON_UPDATE_STATUS_CLOSED"
)

type OutboxMessage struct {
	ID                 int64
	Content            string
	ContractorID       string
	ActiveMainBorrower bool
	Status             MessageStatus
	Sent               bool
	Exception          *string
	CreatedAt          time.Time
}

func (m *OutboxMessage) MarkSent() {
	m.Status = MessageSuccess
	m.Sent = true
	m.Exception = nil
}

func (m *OutboxMessage) MarkFailed(reason string) {
	m.Status = MessageFailed
	m.Sent = false
	if reason == "" {
		m.Exception = nil
		return
	}
	m.Exception = &reason
}

// OutboxContent renders the audit line stored with every main borrower update.
// A zero status code means no response was received.
func OutboxContent(contractorID string, hasMainDeals bool, trigger Trigger, statusCode int) string {
	return fmt.Sprintf("Update main borrower: Contractor ID %s Has main deals %t %s Status code %d",
		contractorID, hasMainDeals, trigger, statusCode)
}
