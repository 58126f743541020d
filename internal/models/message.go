package models

import (
	"database/sql"
	"time"
)

type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusRead      MessageStatus = "read"
)

// Terminal reports whether no further automatic transition applies.
func (s MessageStatus) Terminal() bool {
	return s == MessageStatusDelivered || s == MessageStatusFailed || s == MessageStatusRead
}

// validTransitions holds the only edges the dispatch state machine may take.
// read is reachable only through a provider status callback, never through
// the dispatch loop itself.
var validTransitions = map[MessageStatus][]MessageStatus{
	MessageStatusPending:   {MessageStatusSent, MessageStatusFailed},
	MessageStatusSent:      {MessageStatusDelivered, MessageStatusFailed},
	MessageStatusDelivered: {MessageStatusRead},
}

// CanTransition reports whether from -> to is a legal status edge.
func CanTransition(from, to MessageStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Message is one (campaign, contact) delivery record. The phone number and
// template are snapshotted at enqueue time so later contact edits cannot
// change what was sent.
type Message struct {
	ID                int64          `db:"id" json:"id"`
	CampaignID        int64          `db:"campaign_id" json:"campaign_id"`
	ContactID         int64          `db:"contact_id" json:"contact_id"`
	PhoneNumber       string         `db:"phone_number" json:"phone_number"`
	TemplateName      string         `db:"template_name" json:"template_name"`
	TemplateLanguage  string         `db:"template_language" json:"template_language"`
	Variables         string         `db:"variables" json:"variables"`
	Status            MessageStatus  `db:"status" json:"status"`
	ProviderMessageID sql.NullString `db:"provider_message_id" json:"provider_message_id,omitempty"`
	Error             sql.NullString `db:"error" json:"error,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	SentAt            sql.NullTime   `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt       sql.NullTime   `db:"delivered_at" json:"delivered_at,omitempty"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}
