package service

import (
	"fmt"

	"github.com/develper21/kyvro/internal/api"
	"github.com/develper21/kyvro/internal/models"
	"github.com/develper21/kyvro/internal/repository"
)

type campaignService struct {
	repo repository.Repository
}

func NewCampaignService(repo repository.Repository) CampaignService {
	return &campaignService{repo: repo}
}

// GetCampaign returns one campaign with its counters and the dispatch
// progress derived from them.
func (s *campaignService) GetCampaign(id int64) (*api.CampaignResponse, error) {
	campaign, err := s.repo.Campaign().GetCampaign(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	resp := &api.CampaignResponse{
		ID:               campaign.ID,
		Name:             campaign.Name,
		TemplateName:     campaign.TemplateName,
		TemplateLanguage: campaign.TemplateLanguage,
		Status:           string(campaign.Status),
		TotalContacts:    campaign.TotalContacts,
		SentCount:        campaign.SentCount,
		DeliveredCount:   campaign.DeliveredCount,
		FailedCount:      campaign.FailedCount,
		ProgressPercent:  progressPercent(campaign),
		CreatedAt:        campaign.CreatedAt,
		UpdatedAt:        campaign.UpdatedAt,
	}
	if campaign.ScheduledAt.Valid {
		resp.ScheduledAt = &campaign.ScheduledAt.Time
	}

	return resp, nil
}

// GetMessages returns one page of a campaign's messages.
func (s *campaignService) GetMessages(campaignID int64, page, limit int) (*api.MessageListResponse, error) {
	if _, err := s.repo.Campaign().GetCampaign(campaignID); err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	offset := (page - 1) * limit
	messages, total, err := s.repo.Message().ListMessages(campaignID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	totalPages := total / limit
	if total%limit > 0 {
		totalPages++
	}

	resp := &api.MessageListResponse{
		Messages: make([]api.MessageResponse, 0, len(messages)),
		Pagination: api.Pagination{
			CurrentPage:  page,
			TotalPages:   totalPages,
			TotalItems:   total,
			ItemsPerPage: limit,
		},
	}

	for _, msg := range messages {
		item := api.MessageResponse{
			ID:          msg.ID,
			CampaignID:  msg.CampaignID,
			ContactID:   msg.ContactID,
			PhoneNumber: msg.PhoneNumber,
			Status:      string(msg.Status),
		}
		if msg.ProviderMessageID.Valid {
			item.ProviderMessageID = &msg.ProviderMessageID.String
		}
		if msg.Error.Valid {
			item.Error = &msg.Error.String
		}
		if msg.SentAt.Valid {
			item.SentAt = &msg.SentAt.Time
		}
		if msg.DeliveredAt.Valid {
			item.DeliveredAt = &msg.DeliveredAt.Time
		}
		resp.Messages = append(resp.Messages, item)
	}

	return resp, nil
}

// progressPercent is the share of contacts whose message reached a settled
// send outcome.
func progressPercent(campaign *models.Campaign) int {
	if campaign.TotalContacts == 0 {
		return 0
	}
	processed := campaign.SentCount + campaign.FailedCount
	if processed > campaign.TotalContacts {
		processed = campaign.TotalContacts
	}
	return processed * 100 / campaign.TotalContacts
}
