package service

import (
	"context"

	"github.com/develper21/kyvro/internal/api"
	"github.com/develper21/kyvro/internal/whatsapp"
)

// CampaignService reads campaign state for the HTTP surface.
type CampaignService interface {
	GetCampaign(id int64) (*api.CampaignResponse, error)
	GetMessages(campaignID int64, page, limit int) (*api.MessageListResponse, error)
}

// DispatchService controls campaign dispatch runs.
type DispatchService interface {
	Start(ctx context.Context, campaignID int64) error
	Pause(campaignID int64) error
	Resume(ctx context.Context, campaignID int64) error
	Stats(campaignID int64) (*api.DispatchStatsResponse, error)
	ActiveStats() *api.DispatchStatsListResponse
	BreakerStatus() (state string, requests, failures uint32)
}

// StatusService applies provider delivery callbacks and owns the
// reconciliation loop that flags messages stuck in the sent state.
type StatusService interface {
	ApplyStatusUpdate(ctx context.Context, update *api.StatusUpdateRequest) (*api.StatusUpdateResponse, error)
	Reconcile(ctx context.Context) error
	StartReconciler(ctx context.Context) error
	StopReconciler() error
	ReconcilerRunning() bool
}

// TemplateService lists the account's approved message templates.
type TemplateService interface {
	ListTemplates(ctx context.Context) (*api.TemplateListResponse, error)
}

// TemplateLister is the slice of the provider client the template service
// needs.
type TemplateLister interface {
	ListTemplates(ctx context.Context) ([]whatsapp.Template, error)
}

// HealthService aggregates component health.
type HealthService interface {
	GetHealth() *api.HealthResponse
}
