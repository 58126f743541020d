package repository_test

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/develper21/kyvro/internal/models"
)

func insertTestCampaign(db *sqlx.DB, name string, status models.CampaignStatus) (int64, error) {
	var id int64
	query := `
		INSERT INTO campaigns (name, template_name, template_language, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	now := time.Now()
	err := db.QueryRow(query, name, "order_update", "en_US", status, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert test campaign: %w", err)
	}

	return id, nil
}

func insertTestContact(db *sqlx.DB, campaignID int64, name, phoneNumber string) (int64, error) {
	var id int64
	err := db.QueryRow(`
		INSERT INTO contacts (name, phone_number, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, name, phoneNumber, time.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert test contact: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO campaign_contacts (campaign_id, contact_id)
		VALUES ($1, $2)
	`, campaignID, id)
	if err != nil {
		return 0, fmt.Errorf("failed to attach test contact: %w", err)
	}

	return id, nil
}

func insertTestMessage(db *sqlx.DB, campaignID, contactID int64, status models.MessageStatus, providerMessageID *string, sentAt *time.Time) (int64, error) {
	var id int64
	query := `
		INSERT INTO messages (campaign_id, contact_id, phone_number, template_name,
		                      template_language, variables, status, provider_message_id,
		                      sent_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	now := time.Now()
	err := db.QueryRow(query, campaignID, contactID, "15551230000", "order_update",
		"en_US", `["Test"]`, status, providerMessageID, sentAt, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert test message: %w", err)
	}

	return id, nil
}
