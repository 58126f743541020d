package service

import (
	"context"

	"github.com/develper21/kyvro/internal/api"
	"github.com/develper21/kyvro/internal/dispatcher"
	"github.com/develper21/kyvro/internal/queue"
)

type dispatchService struct {
	dispatcher *dispatcher.Dispatcher
}

func NewDispatchService(disp *dispatcher.Dispatcher) DispatchService {
	return &dispatchService{dispatcher: disp}
}

func (s *dispatchService) Start(ctx context.Context, campaignID int64) error {
	return s.dispatcher.Start(ctx, campaignID)
}

func (s *dispatchService) Pause(campaignID int64) error {
	return s.dispatcher.Pause(campaignID)
}

func (s *dispatchService) Resume(ctx context.Context, campaignID int64) error {
	return s.dispatcher.Resume(ctx, campaignID)
}

func (s *dispatchService) Stats(campaignID int64) (*api.DispatchStatsResponse, error) {
	stats, err := s.dispatcher.Stats(campaignID)
	if err != nil {
		return nil, err
	}
	resp := statsResponse(campaignID, stats)
	return &resp, nil
}

// ActiveStats reports queue statistics for every campaign currently being
// dispatched. A campaign finishing between the listing and the per-id
// lookup is simply skipped.
func (s *dispatchService) ActiveStats() *api.DispatchStatsListResponse {
	resp := &api.DispatchStatsListResponse{Active: []api.DispatchStatsResponse{}}
	for _, id := range s.dispatcher.ActiveCampaigns() {
		stats, err := s.dispatcher.Stats(id)
		if err != nil {
			continue
		}
		resp.Active = append(resp.Active, statsResponse(id, stats))
	}
	return resp
}

func (s *dispatchService) BreakerStatus() (string, uint32, uint32) {
	return s.dispatcher.BreakerState()
}

func statsResponse(campaignID int64, stats queue.Stats) api.DispatchStatsResponse {
	return api.DispatchStatsResponse{
		CampaignID:    campaignID,
		Depth:         stats.Depth,
		Delayed:       stats.Delayed,
		Running:       stats.Running,
		Concurrency:   stats.Concurrency,
		RatePerSecond: stats.RatePerSecond,
		WindowStarts:  stats.WindowStarts,
		Paused:        stats.Paused,
	}
}
