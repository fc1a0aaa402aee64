package services

import (
	"context"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/endpoint"
	"github.com/unhackeddev/nfury/modules/loadtest/domain/project"
	"github.com/unhackeddev/nfury/pkg/eventbus"
)

type EndpointService struct {
	repo      endpoint.Repository
	projects  project.Repository
	publisher eventbus.EventBus
}

func NewEndpointService(repo endpoint.Repository, projects project.Repository, publisher eventbus.EventBus) *EndpointService {
	return &EndpointService{
		repo:      repo,
		projects:  projects,
		publisher: publisher,
	}
}

func (s *EndpointService) GetByID(ctx context.Context, id int64) (*endpoint.Endpoint, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *EndpointService) ListByProject(ctx context.Context, projectID int64) ([]*endpoint.Endpoint, error) {
	// Listing for an unknown project is a 404, not an empty page.
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListByProject(ctx, projectID)
}

func (s *EndpointService) Create(ctx context.Context, e *endpoint.Endpoint) (*endpoint.Endpoint, error) {
	if _, err := s.projects.GetByID(ctx, e.ProjectID); err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, e)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(endpoint.CreatedEvent{Result: created})
	return created, nil
}

func (s *EndpointService) Update(ctx context.Context, e *endpoint.Endpoint) (*endpoint.Endpoint, error) {
	existing, err := s.repo.GetByID(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	// Endpoints never move between projects.
	e.ProjectID = existing.ProjectID

	updated, err := s.repo.Update(ctx, e)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(endpoint.UpdatedEvent{Result: updated})
	return updated, nil
}

func (s *EndpointService) Delete(ctx context.Context, id int64) error {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.publisher.Publish(endpoint.DeletedEvent{ID: id, ProjectID: e.ProjectID})
	return nil
}
