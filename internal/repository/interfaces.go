package repository

import (
	"time"

	"github.com/develper21/kyvro/internal/models"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mock_repository.go -package=mocks

// Repository interface defines all state-store operations.
type Repository interface {
	// Ping checks database connectivity
	Ping() error

	// Campaign returns the campaign repository
	Campaign() CampaignRepository

	// Contact returns the contact repository
	Contact() ContactRepository

	// Message returns the message repository
	Message() MessageRepository
}

// CampaignRepository owns campaign records and their aggregate counters.
type CampaignRepository interface {
	GetCampaign(id int64) (*models.Campaign, error)
	UpdateCampaignStatus(id int64, status models.CampaignStatus) error
	// IncrementCampaignCounts applies counter deltas in-place so
	// concurrent task completions never lose updates.
	IncrementCampaignCounts(id int64, sentDelta, deliveredDelta, failedDelta int) error
	SetTotalContacts(id int64, total int) error
	ListCampaignsByStatus(status models.CampaignStatus) ([]*models.Campaign, error)
}

// ContactRepository reads the contact list attached to a campaign.
type ContactRepository interface {
	GetContactsByCampaign(campaignID int64) ([]*models.Contact, error)
}

// MessageRepository owns per-message delivery state.
type MessageRepository interface {
	CreateMessage(msg *models.Message) (int64, error)
	GetMessage(id int64) (*models.Message, error)
	UpdateMessageStatus(id int64, status models.MessageStatus, providerMessageID *string, errorMsg *string) error
	GetMessagesByCampaign(campaignID int64) ([]*models.Message, error)
	ListMessages(campaignID int64, limit, offset int) ([]*models.Message, int, error)
	GetPendingMessages(campaignID int64) ([]*models.Message, error)
	GetMessageByProviderID(providerMessageID string) (*models.Message, error)
	// GetSentWithoutDelivery lists messages sent before the cutoff that
	// never received a delivery callback.
	GetSentWithoutDelivery(sentBefore time.Time) ([]*models.Message, error)
}
