package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/develper21/kyvro/internal/api"
	"github.com/develper21/kyvro/internal/config"
	"github.com/develper21/kyvro/internal/models"
	"github.com/develper21/kyvro/internal/repository"
	"github.com/develper21/kyvro/internal/scheduler"
)

const deliveryTimeoutError = "no delivery confirmation within the reconciliation window"

type statusService struct {
	cfg         *config.Config
	repo        repository.Repository
	redisClient *redis.Client
	reconciler  *scheduler.Scheduler
	logger      *zap.Logger
}

func NewStatusService(
	cfg *config.Config,
	repo repository.Repository,
	redisClient *redis.Client,
	logger *zap.Logger,
) StatusService {
	s := &statusService{
		cfg:         cfg,
		repo:        repo,
		redisClient: redisClient,
		logger:      logger,
	}
	interval := time.Duration(cfg.Reconcile.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	s.reconciler = scheduler.New("reconcile", interval, s.Reconcile, logger)
	return s
}

// ApplyStatusUpdate advances one message along the delivery state machine
// in response to a provider callback. A callback for a status the message
// already passed is rejected as an invalid transition, which keeps
// re-delivered webhooks idempotent.
func (s *statusService) ApplyStatusUpdate(ctx context.Context, update *api.StatusUpdateRequest) (*api.StatusUpdateResponse, error) {
	target := models.MessageStatus(update.Status)
	switch target {
	case models.MessageStatusDelivered, models.MessageStatusRead, models.MessageStatusFailed:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, update.Status)
	}

	msg, err := s.resolveMessage(ctx, update.ProviderMessageID)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(msg.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, msg.Status, target)
	}

	var errText *string
	if target == models.MessageStatusFailed {
		text := "provider reported delivery failure"
		errText = &text
	}
	if err := s.repo.Message().UpdateMessageStatus(msg.ID, target, nil, errText); err != nil {
		return nil, fmt.Errorf("failed to apply status update: %w", err)
	}

	switch target {
	case models.MessageStatusDelivered:
		err = s.repo.Campaign().IncrementCampaignCounts(msg.CampaignID, 0, 1, 0)
	case models.MessageStatusFailed:
		err = s.repo.Campaign().IncrementCampaignCounts(msg.CampaignID, 0, 0, 1)
	}
	if err != nil {
		s.logger.Error("Failed to update campaign counters from callback",
			zap.Int64("campaign_id", msg.CampaignID),
			zap.Error(err))
	}

	s.logger.Info("Applied delivery status update",
		zap.Int64("message_id", msg.ID),
		zap.String("from", string(msg.Status)),
		zap.String("to", string(target)))

	return &api.StatusUpdateResponse{MessageID: msg.ID, Status: string(target)}, nil
}

// resolveMessage maps a provider message id to our record, preferring the
// redis cache over the provider-id index scan.
func (s *statusService) resolveMessage(ctx context.Context, providerMessageID string) (*models.Message, error) {
	if s.redisClient != nil {
		cached, err := s.redisClient.Get(ctx, "wamid:"+providerMessageID).Result()
		if err == nil {
			if id, parseErr := strconv.ParseInt(cached, 10, 64); parseErr == nil {
				if msg, getErr := s.repo.Message().GetMessage(id); getErr == nil {
					return msg, nil
				}
			}
		}
	}

	msg, err := s.repo.Message().GetMessageByProviderID(providerMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve provider message id: %w", err)
	}
	return msg, nil
}

// Reconcile fails messages that have sat in the sent state past the
// delivery window without a callback.
func (s *statusService) Reconcile(ctx context.Context) error {
	timeout := time.Duration(s.cfg.Reconcile.DeliveryTimeoutHours) * time.Hour
	cutoff := time.Now().Add(-timeout)

	stale, err := s.repo.Message().GetSentWithoutDelivery(cutoff)
	if err != nil {
		return fmt.Errorf("failed to list undelivered messages: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	var failed int
	for _, msg := range stale {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		text := deliveryTimeoutError
		if err := s.repo.Message().UpdateMessageStatus(msg.ID, models.MessageStatusFailed, nil, &text); err != nil {
			s.logger.Error("Failed to expire undelivered message",
				zap.Int64("message_id", msg.ID),
				zap.Error(err))
			continue
		}
		if err := s.repo.Campaign().IncrementCampaignCounts(msg.CampaignID, 0, 0, 1); err != nil {
			s.logger.Error("Failed to count expired message",
				zap.Int64("campaign_id", msg.CampaignID),
				zap.Error(err))
		}
		failed++
	}

	s.logger.Info("Reconciliation pass finished",
		zap.Int("stale", len(stale)),
		zap.Int("expired", failed))
	return nil
}

func (s *statusService) StartReconciler(ctx context.Context) error {
	return s.reconciler.Start(ctx)
}

func (s *statusService) StopReconciler() error {
	return s.reconciler.Stop()
}

func (s *statusService) ReconcilerRunning() bool {
	return s.reconciler.IsRunning()
}
