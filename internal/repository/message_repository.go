package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/develper21/kyvro/internal/models"
)

type messageRepository struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

// CreateMessage inserts a new message record and returns its id.
func (r *messageRepository) CreateMessage(msg *models.Message) (int64, error) {
	query := `
		INSERT INTO messages (campaign_id, contact_id, phone_number,
		                      template_name, template_language, variables,
		                      status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	now := time.Now()
	status := msg.Status
	if status == "" {
		status = models.MessageStatusPending
	}

	var id int64
	err := r.db.QueryRow(query,
		msg.CampaignID, msg.ContactID, msg.PhoneNumber,
		msg.TemplateName, msg.TemplateLanguage, msg.Variables,
		status, now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create message: %w", err)
	}

	return id, nil
}

// GetMessage retrieves one message by id.
func (r *messageRepository) GetMessage(id int64) (*models.Message, error) {
	query := `
		SELECT id, campaign_id, contact_id, phone_number,
		       template_name, template_language, variables, status,
		       provider_message_id, error, created_at, sent_at,
		       delivered_at, updated_at
		FROM messages
		WHERE id = $1
	`

	var msg models.Message
	err := r.db.Get(&msg, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return &msg, nil
}

// UpdateMessageStatus updates the status of a message, stamping sent_at or
// delivered_at when the new status warrants it.
func (r *messageRepository) UpdateMessageStatus(id int64, status models.MessageStatus, providerMessageID *string, errorMsg *string) error {
	query := `
		UPDATE messages
		SET status = $2,
		    provider_message_id = COALESCE($3, provider_message_id),
		    error = $4,
		    sent_at = COALESCE($5, sent_at),
		    delivered_at = COALESCE($6, delivered_at),
		    updated_at = $7
		WHERE id = $1
	`

	now := time.Now()

	var sentAt, deliveredAt sql.NullTime
	switch status {
	case models.MessageStatusSent:
		sentAt = sql.NullTime{Time: now, Valid: true}
	case models.MessageStatusDelivered:
		deliveredAt = sql.NullTime{Time: now, Valid: true}
	}

	var providerID sql.NullString
	if providerMessageID != nil {
		providerID = sql.NullString{String: *providerMessageID, Valid: true}
	}

	var errMsg sql.NullString
	if errorMsg != nil {
		errMsg = sql.NullString{String: *errorMsg, Valid: true}
	}

	result, err := r.db.Exec(query, id, status, providerID, errMsg, sentAt, deliveredAt, now)
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}
	if rows, rowsErr := result.RowsAffected(); rowsErr == nil && rows == 0 {
		return ErrNotFound
	}

	return nil
}

// GetMessagesByCampaign retrieves every message for a campaign.
func (r *messageRepository) GetMessagesByCampaign(campaignID int64) ([]*models.Message, error) {
	query := `
		SELECT id, campaign_id, contact_id, phone_number,
		       template_name, template_language, variables, status,
		       provider_message_id, error, created_at, sent_at,
		       delivered_at, updated_at
		FROM messages
		WHERE campaign_id = $1
		ORDER BY id ASC
	`

	var messages []*models.Message
	err := r.db.Select(&messages, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for campaign: %w", err)
	}

	return messages, nil
}

// ListMessages retrieves one page of a campaign's messages plus the total
// row count for pagination.
func (r *messageRepository) ListMessages(campaignID int64, limit, offset int) ([]*models.Message, int, error) {
	countQuery := `SELECT COUNT(*) FROM messages WHERE campaign_id = $1`

	var total int
	if err := r.db.Get(&total, countQuery, campaignID); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	query := `
		SELECT id, campaign_id, contact_id, phone_number,
		       template_name, template_language, variables, status,
		       provider_message_id, error, created_at, sent_at,
		       delivered_at, updated_at
		FROM messages
		WHERE campaign_id = $1
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`

	var messages []*models.Message
	if err := r.db.Select(&messages, query, campaignID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}

	return messages, total, nil
}

// GetPendingMessages retrieves the messages still awaiting dispatch.
func (r *messageRepository) GetPendingMessages(campaignID int64) ([]*models.Message, error) {
	query := `
		SELECT id, campaign_id, contact_id, phone_number,
		       template_name, template_language, variables, status,
		       provider_message_id, error, created_at, sent_at,
		       delivered_at, updated_at
		FROM messages
		WHERE campaign_id = $1 AND status = $2
		ORDER BY id ASC
	`

	var messages []*models.Message
	err := r.db.Select(&messages, query, campaignID, models.MessageStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending messages: %w", err)
	}

	return messages, nil
}

// GetSentWithoutDelivery lists messages that were sent before the cutoff
// and are still waiting for a delivery callback. The reconciliation loop
// expires these as failed once the delivery timeout passes.
func (r *messageRepository) GetSentWithoutDelivery(sentBefore time.Time) ([]*models.Message, error) {
	query := `
		SELECT id, campaign_id, contact_id, phone_number,
		       template_name, template_language, variables, status,
		       provider_message_id, error, created_at, sent_at,
		       delivered_at, updated_at
		FROM messages
		WHERE status = $1 AND sent_at IS NOT NULL AND sent_at < $2
		ORDER BY sent_at ASC
	`

	var messages []*models.Message
	err := r.db.Select(&messages, query, models.MessageStatusSent, sentBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to get undelivered sent messages: %w", err)
	}

	return messages, nil
}

// GetMessageByProviderID resolves a message from the provider-assigned id
// carried by delivery status callbacks.
func (r *messageRepository) GetMessageByProviderID(providerMessageID string) (*models.Message, error) {
	query := `
		SELECT id, campaign_id, contact_id, phone_number,
		       template_name, template_language, variables, status,
		       provider_message_id, error, created_at, sent_at,
		       delivered_at, updated_at
		FROM messages
		WHERE provider_message_id = $1
	`

	var msg models.Message
	err := r.db.Get(&msg, query, providerMessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message by provider id: %w", err)
	}

	return &msg, nil
}
