// Package api holds the HTTP request and response types for the service.
package api

import "time"

// Health status values.
const (
	Healthy   = "healthy"
	Degraded  = "degraded"
	Unhealthy = "unhealthy"

	ComponentConnected    = "connected"
	ComponentDisconnected = "disconnected"
	ReconcilerRunning     = "running"
	ReconcilerStopped     = "stopped"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse reports per-component health.
type HealthResponse struct {
	Status               string    `json:"status"`
	DatabaseStatus       string    `json:"database_status"`
	RedisStatus          string    `json:"redis_status,omitempty"`
	ReconcilerStatus     string    `json:"reconciler_status"`
	CircuitBreakerState  string    `json:"circuit_breaker_state,omitempty"`
	CircuitBreakerCounts string    `json:"circuit_breaker_counts,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

// CampaignResponse is one campaign with its aggregate counters and
// computed dispatch progress.
type CampaignResponse struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	TemplateName     string     `json:"template_name"`
	TemplateLanguage string     `json:"template_language"`
	Status           string     `json:"status"`
	TotalContacts    int        `json:"total_contacts"`
	SentCount        int        `json:"sent_count"`
	DeliveredCount   int        `json:"delivered_count"`
	FailedCount      int        `json:"failed_count"`
	ProgressPercent  int        `json:"progress_percent"`
	ScheduledAt      *time.Time `json:"scheduled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CampaignActionResponse acknowledges a start, pause or resume request.
type CampaignActionResponse struct {
	CampaignID int64  `json:"campaign_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// MessageResponse is one message's delivery state.
type MessageResponse struct {
	ID                int64      `json:"id"`
	CampaignID        int64      `json:"campaign_id"`
	ContactID         int64      `json:"contact_id"`
	PhoneNumber       string     `json:"phone_number"`
	Status            string     `json:"status"`
	ProviderMessageID *string    `json:"provider_message_id,omitempty"`
	Error             *string    `json:"error,omitempty"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
}

// Pagination describes one page of a list response.
type Pagination struct {
	CurrentPage  int `json:"current_page"`
	TotalPages   int `json:"total_pages"`
	TotalItems   int `json:"total_items"`
	ItemsPerPage int `json:"items_per_page"`
}

// MessageListResponse is a page of campaign messages.
type MessageListResponse struct {
	Messages   []MessageResponse `json:"messages"`
	Pagination Pagination        `json:"pagination"`
}

// DispatchStatsResponse reports one active campaign's queue statistics.
type DispatchStatsResponse struct {
	CampaignID    int64 `json:"campaign_id"`
	Depth         int   `json:"depth"`
	Delayed       int   `json:"delayed"`
	Running       int   `json:"running"`
	Concurrency   int   `json:"concurrency"`
	RatePerSecond int   `json:"rate_per_second"`
	WindowStarts  int   `json:"window_starts"`
	Paused        bool  `json:"paused"`
}

// DispatchStatsListResponse covers every active campaign.
type DispatchStatsListResponse struct {
	Active []DispatchStatsResponse `json:"active"`
}

// TemplateResponse is one approved message template.
type TemplateResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Status   string `json:"status"`
	Category string `json:"category"`
}

// TemplateListResponse lists the account's approved templates.
type TemplateListResponse struct {
	Templates []TemplateResponse `json:"templates"`
}

// StatusUpdateRequest is a provider delivery callback: the provider's
// message id plus the status it reached.
type StatusUpdateRequest struct {
	ProviderMessageID string `json:"provider_message_id"`
	Status            string `json:"status"`
	Timestamp         *int64 `json:"timestamp,omitempty"`
}

// StatusUpdateResponse acknowledges an applied callback.
type StatusUpdateResponse struct {
	MessageID int64  `json:"message_id"`
	Status    string `json:"status"`
}
