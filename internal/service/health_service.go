package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/develper21/kyvro/internal/api"
	"github.com/develper21/kyvro/internal/repository"
)

type healthService struct {
	repo        repository.Repository
	redisClient *redis.Client
	status      StatusService
	dispatch    DispatchService
}

func NewHealthService(
	repo repository.Repository,
	redisClient *redis.Client,
	status StatusService,
	dispatch DispatchService,
) HealthService {
	return &healthService{
		repo:        repo,
		redisClient: redisClient,
		status:      status,
		dispatch:    dispatch,
	}
}

// GetHealth probes each component. A lost database or redis makes the
// service unhealthy; an open provider circuit breaker only degrades it.
func (s *healthService) GetHealth() *api.HealthResponse {
	resp := &api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
	}

	resp.DatabaseStatus = api.ComponentConnected
	if err := s.repo.Ping(); err != nil {
		resp.DatabaseStatus = api.ComponentDisconnected
		resp.Status = api.Unhealthy
	}

	if s.redisClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		resp.RedisStatus = api.ComponentConnected
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			resp.RedisStatus = api.ComponentDisconnected
			resp.Status = api.Unhealthy
		}
		cancel()
	}

	resp.ReconcilerStatus = api.ReconcilerStopped
	if s.status.ReconcilerRunning() {
		resp.ReconcilerStatus = api.ReconcilerRunning
	}

	state, requests, failures := s.dispatch.BreakerStatus()
	resp.CircuitBreakerState = state
	if requests > 0 {
		rate := float64(failures) / float64(requests) * 100
		resp.CircuitBreakerCounts = fmt.Sprintf("requests: %d, failures: %d (%.1f%%)", requests, failures, rate)
	}
	if state == "open" && resp.Status == api.Healthy {
		resp.Status = api.Degraded
	}

	return resp
}
