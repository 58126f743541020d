package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/develper21/kyvro/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("repository: record not found")

type campaignRepository struct {
	db *sqlx.DB
}

func NewCampaignRepository(db *sqlx.DB) CampaignRepository {
	return &campaignRepository{
		db: db,
	}
}

// GetCampaign retrieves a campaign by id.
func (r *campaignRepository) GetCampaign(id int64) (*models.Campaign, error) {
	query := `
		SELECT id, name, template_name, template_language, status,
		       total_contacts, sent_count, delivered_count, failed_count,
		       scheduled_at, created_at, updated_at
		FROM campaigns
		WHERE id = $1
	`

	var campaign models.Campaign
	err := r.db.Get(&campaign, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return &campaign, nil
}

// UpdateCampaignStatus updates only a campaign's lifecycle status.
func (r *campaignRepository) UpdateCampaignStatus(id int64, status models.CampaignStatus) error {
	query := `
		UPDATE campaigns
		SET status = $2,
		    updated_at = $3
		WHERE id = $1
	`

	result, err := r.db.Exec(query, id, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}
	if rows, rowsErr := result.RowsAffected(); rowsErr == nil && rows == 0 {
		return ErrNotFound
	}

	return nil
}

// IncrementCampaignCounts applies counter deltas with an in-place update
// so concurrent completions from different queue tasks cannot lose writes.
func (r *campaignRepository) IncrementCampaignCounts(id int64, sentDelta, deliveredDelta, failedDelta int) error {
	query := `
		UPDATE campaigns
		SET sent_count      = sent_count + $2,
		    delivered_count = delivered_count + $3,
		    failed_count    = failed_count + $4,
		    updated_at      = $5
		WHERE id = $1
	`

	_, err := r.db.Exec(query, id, sentDelta, deliveredDelta, failedDelta, time.Now())
	if err != nil {
		return fmt.Errorf("failed to increment campaign counts: %w", err)
	}

	return nil
}

// SetTotalContacts records the campaign's contact-list size at dispatch start.
func (r *campaignRepository) SetTotalContacts(id int64, total int) error {
	query := `
		UPDATE campaigns
		SET total_contacts = $2,
		    updated_at = $3
		WHERE id = $1
	`

	_, err := r.db.Exec(query, id, total, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set total contacts: %w", err)
	}

	return nil
}

// ListCampaignsByStatus retrieves all campaigns in the given status,
// oldest first.
func (r *campaignRepository) ListCampaignsByStatus(status models.CampaignStatus) ([]*models.Campaign, error) {
	query := `
		SELECT id, name, template_name, template_language, status,
		       total_contacts, sent_count, delivered_count, failed_count,
		       scheduled_at, created_at, updated_at
		FROM campaigns
		WHERE status = $1
		ORDER BY created_at ASC
	`

	var campaigns []*models.Campaign
	err := r.db.Select(&campaigns, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns by status: %w", err)
	}

	return campaigns, nil
}
