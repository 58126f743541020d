package repository

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/develper21/kyvro/internal/models"
)

type contactRepository struct {
	db *sqlx.DB
}

func NewContactRepository(db *sqlx.DB) ContactRepository {
	return &contactRepository{
		db: db,
	}
}

// GetContactsByCampaign retrieves the contact list attached to a campaign
// through the campaign_contacts join table.
func (r *contactRepository) GetContactsByCampaign(campaignID int64) ([]*models.Contact, error) {
	query := `
		SELECT c.id, c.name, c.phone_number, c.email, c.tags, c.created_at
		FROM contacts c
		JOIN campaign_contacts cc ON cc.contact_id = c.id
		WHERE cc.campaign_id = $1
		ORDER BY c.id ASC
	`

	var contacts []*models.Contact
	err := r.db.Select(&contacts, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to get contacts for campaign: %w", err)
	}

	return contacts, nil
}
