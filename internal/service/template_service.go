package service

import (
	"context"
	"fmt"

	"github.com/develper21/kyvro/internal/api"
)

type templateService struct {
	provider TemplateLister
}

func NewTemplateService(provider TemplateLister) TemplateService {
	return &templateService{provider: provider}
}

func (s *templateService) ListTemplates(ctx context.Context) (*api.TemplateListResponse, error) {
	templates, err := s.provider.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	resp := &api.TemplateListResponse{Templates: make([]api.TemplateResponse, 0, len(templates))}
	for _, tpl := range templates {
		resp.Templates = append(resp.Templates, api.TemplateResponse{
			ID:       tpl.ID,
			Name:     tpl.Name,
			Language: tpl.Language,
			Status:   tpl.Status,
			Category: tpl.Category,
		})
	}
	return resp, nil
}
