// Package models defines data structures used throughout the application.
package models

import (
	"database/sql"
	"time"
)

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// Campaign represents a bulk-send operation targeting a contact list
// with one message template. Counters are maintained by the dispatcher:
// sent_count <= total_contacts and delivered_count + failed_count <= sent_count.
type Campaign struct {
	ID               int64          `db:"id" json:"id"`
	Name             string         `db:"name" json:"name"`
	TemplateName     string         `db:"template_name" json:"template_name"`
	TemplateLanguage string         `db:"template_language" json:"template_language"`
	Status           CampaignStatus `db:"status" json:"status"`
	TotalContacts    int            `db:"total_contacts" json:"total_contacts"`
	SentCount        int            `db:"sent_count" json:"sent_count"`
	DeliveredCount   int            `db:"delivered_count" json:"delivered_count"`
	FailedCount      int            `db:"failed_count" json:"failed_count"`
	ScheduledAt      sql.NullTime   `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// Dispatchable reports whether a dispatch run may be started for the campaign.
func (c *Campaign) Dispatchable() bool {
	return c.Status == CampaignStatusDraft || c.Status == CampaignStatusPaused
}
