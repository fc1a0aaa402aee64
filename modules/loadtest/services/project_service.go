package services

import (
	"context"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/project"
	"github.com/unhackeddev/nfury/pkg/eventbus"
)

type ProjectService struct {
	repo      project.Repository
	publisher eventbus.EventBus
}

func NewProjectService(repo project.Repository, publisher eventbus.EventBus) *ProjectService {
	return &ProjectService{
		repo:      repo,
		publisher: publisher,
	}
}

func (s *ProjectService) GetByID(ctx context.Context, id int64) (*project.Project, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ProjectService) List(ctx context.Context) ([]*project.Project, error) {
	return s.repo.List(ctx)
}

func (s *ProjectService) Create(ctx context.Context, p *project.Project) (*project.Project, error) {
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(project.CreatedEvent{Result: created})
	return created, nil
}

func (s *ProjectService) Update(ctx context.Context, p *project.Project) (*project.Project, error) {
	updated, err := s.repo.Update(ctx, p)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(project.UpdatedEvent{Result: updated})
	return updated, nil
}

func (s *ProjectService) SetAuth(ctx context.Context, id int64, spec *project.AuthSpec) (*project.Project, error) {
	if err := s.repo.SetAuth(ctx, id, spec); err != nil {
		return nil, err
	}
	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(project.UpdatedEvent{Result: updated})
	return updated, nil
}

func (s *ProjectService) ClearAuth(ctx context.Context, id int64) (*project.Project, error) {
	if err := s.repo.ClearAuth(ctx, id); err != nil {
		return nil, err
	}
	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(project.UpdatedEvent{Result: updated})
	return updated, nil
}

func (s *ProjectService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.publisher.Publish(project.DeletedEvent{ID: id})
	return nil
}
