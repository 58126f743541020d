// Package handler provides the HTTP request handlers for the application.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/develper21/kyvro/internal/api"
	"github.com/develper21/kyvro/internal/dispatcher"
	"github.com/develper21/kyvro/internal/middleware"
	"github.com/develper21/kyvro/internal/repository"
	"github.com/develper21/kyvro/internal/service"
)

const (
	errorCodeNotFound            = "NOT_FOUND"
	errorCodeInvalidRequest      = "INVALID_REQUEST"
	errorCodeNotDispatchable     = "CAMPAIGN_NOT_DISPATCHABLE"
	errorCodeDispatchInProgress  = "DISPATCH_IN_PROGRESS"
	errorCodeCampaignNotActive   = "CAMPAIGN_NOT_ACTIVE"
	errorCodeNoCredential        = "NO_CREDENTIAL"
	errorCodeInvalidTransition   = "INVALID_STATUS_TRANSITION"
	errorCodeUnknownStatus       = "UNKNOWN_STATUS"
	errorMessageFailedToRetrieve = "Failed to retrieve data"
)

type Handler struct {
	service *service.Service
	logger  *zap.Logger
}

func NewHandler(service *service.Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Routes mounts every endpoint on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Route("/campaigns/{id}", func(r chi.Router) {
			r.Get("/", h.GetCampaign)
			r.Get("/messages", h.GetCampaignMessages)
			r.Post("/start", h.StartCampaign)
			r.Post("/pause", h.PauseCampaign)
			r.Post("/resume", h.ResumeCampaign)
		})
		r.Get("/dispatch/stats", h.GetDispatchStats)
		r.Get("/templates", h.ListTemplates)
	})
	r.Post("/webhooks/status", h.StatusWebhook)
	r.Get("/health", h.HealthCheck)

	return r
}

// GetCampaign returns one campaign with counters and progress.
func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}

	campaign, err := h.service.Campaign.GetCampaign(id)
	if err != nil {
		h.handleError(w, r, err, "Failed to get campaign")
		return
	}

	render.JSON(w, r, campaign)
}

// GetCampaignMessages returns one page of a campaign's messages.
func (h *Handler) GetCampaignMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}

	page := 1
	limit := 20
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v >= 1 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v >= 1 && v <= 100 {
		limit = v
	}

	messages, err := h.service.Campaign.GetMessages(id, page, limit)
	if err != nil {
		h.handleError(w, r, err, "Failed to list campaign messages")
		return
	}

	render.JSON(w, r, messages)
}

// StartCampaign begins dispatch for a draft or paused campaign.
func (h *Handler) StartCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}

	if err := h.service.Dispatch.Start(r.Context(), id); err != nil {
		h.handleError(w, r, err, "Failed to start campaign")
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, api.CampaignActionResponse{
		CampaignID: id,
		Status:     "sending",
		Message:    "Campaign dispatch started",
	})
}

// PauseCampaign halts an active dispatch, keeping unsent messages pending.
func (h *Handler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}

	if err := h.service.Dispatch.Pause(id); err != nil {
		h.handleError(w, r, err, "Failed to pause campaign")
		return
	}

	render.JSON(w, r, api.CampaignActionResponse{
		CampaignID: id,
		Status:     "paused",
		Message:    "Campaign dispatch paused",
	})
}

// ResumeCampaign re-enters dispatch for a paused campaign.
func (h *Handler) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}

	if err := h.service.Dispatch.Resume(r.Context(), id); err != nil {
		h.handleError(w, r, err, "Failed to resume campaign")
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, api.CampaignActionResponse{
		CampaignID: id,
		Status:     "sending",
		Message:    "Campaign dispatch resumed",
	})
}

// GetDispatchStats reports queue statistics, for one campaign when
// campaign_id is given, otherwise for every active dispatch.
func (h *Handler) GetDispatchStats(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("campaign_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidRequest, "campaign_id must be an integer")
			return
		}
		stats, err := h.service.Dispatch.Stats(id)
		if err != nil {
			h.handleError(w, r, err, "Failed to get dispatch stats")
			return
		}
		render.JSON(w, r, stats)
		return
	}

	render.JSON(w, r, h.service.Dispatch.ActiveStats())
}

// ListTemplates returns the account's message templates.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.Template.ListTemplates(r.Context())
	if err != nil {
		h.handleError(w, r, err, "Failed to list templates")
		return
	}

	render.JSON(w, r, templates)
}

// StatusWebhook applies a provider delivery callback.
func (h *Handler) StatusWebhook(w http.ResponseWriter, r *http.Request) {
	var update api.StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidRequest, "Malformed JSON body")
		return
	}
	if update.ProviderMessageID == "" {
		h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidRequest, "provider_message_id is required")
		return
	}

	resp, err := h.service.Status.ApplyStatusUpdate(r.Context(), &update)
	if err != nil {
		h.handleError(w, r, err, "Failed to apply status update")
		return
	}

	render.JSON(w, r, resp)
}

// HealthCheck reports component health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := h.service.Health.GetHealth()
	if health.Status == api.Unhealthy {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, health)
}

func (h *Handler) campaignID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidRequest, "Campaign id must be a positive integer")
		return 0, false
	}
	return id, true
}

// handleError maps domain errors onto HTTP statuses; anything unmapped is
// a logged 500.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, logMessage string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.sendError(w, r, http.StatusNotFound, errorCodeNotFound, "Resource not found")
	case errors.Is(err, dispatcher.ErrCampaignNotDispatchable):
		h.sendError(w, r, http.StatusConflict, errorCodeNotDispatchable, "Campaign is not in a dispatchable state")
	case errors.Is(err, dispatcher.ErrDispatchInProgress):
		h.sendError(w, r, http.StatusConflict, errorCodeDispatchInProgress, "Campaign dispatch is already running")
	case errors.Is(err, dispatcher.ErrCampaignNotActive):
		h.sendError(w, r, http.StatusConflict, errorCodeCampaignNotActive, "Campaign has no active dispatch")
	case errors.Is(err, dispatcher.ErrNoCredential):
		h.sendError(w, r, http.StatusUnprocessableEntity, errorCodeNoCredential, "No messaging credential is configured")
	case errors.Is(err, service.ErrUnknownStatus):
		h.sendError(w, r, http.StatusBadRequest, errorCodeUnknownStatus, "Unknown delivery status")
	case errors.Is(err, service.ErrInvalidTransition):
		h.sendError(w, r, http.StatusConflict, errorCodeInvalidTransition, "Status transition not allowed")
	default:
		h.logger.Error(logMessage,
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, errorMessageFailedToRetrieve)
	}
}

func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	render.Status(r, statusCode)
	render.JSON(w, r, api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		Timestamp: time.Now(),
	})
}
