package service

import (
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/develper21/kyvro/internal/config"
	"github.com/develper21/kyvro/internal/dispatcher"
	"github.com/develper21/kyvro/internal/repository"
)

type Service struct {
	Campaign CampaignService
	Dispatch DispatchService
	Status   StatusService
	Template TemplateService
	Health   HealthService
}

func NewService(
	cfg *config.Config,
	repo repository.Repository,
	redisClient *redis.Client,
	disp *dispatcher.Dispatcher,
	templates TemplateLister,
	logger *zap.Logger,
) *Service {
	campaignService := NewCampaignService(repo)
	dispatchService := NewDispatchService(disp)
	statusService := NewStatusService(cfg, repo, redisClient, logger)
	templateService := NewTemplateService(templates)
	healthService := NewHealthService(repo, redisClient, statusService, dispatchService)

	return &Service{
		Campaign: campaignService,
		Dispatch: dispatchService,
		Status:   statusService,
		Template: templateService,
		Health:   healthService,
	}
}
