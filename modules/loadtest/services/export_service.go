package services

import (
	"context"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/project"
	"github.com/unhackeddev/nfury/modules/loadtest/infrastructure/persistence"
	"github.com/unhackeddev/nfury/pkg/eventbus"
)

type ExportService struct {
	archives  *persistence.ExportRepository
	projects  project.Repository
	publisher eventbus.EventBus
}

func NewExportService(archives *persistence.ExportRepository, projects project.Repository, publisher eventbus.EventBus) *ExportService {
	return &ExportService{
		archives:  archives,
		projects:  projects,
		publisher: publisher,
	}
}

func (s *ExportService) Export(ctx context.Context, projectID int64) (*persistence.Bundle, error) {
	return s.archives.Export(ctx, projectID)
}

// Import materializes an archive as a fresh project and returns it.
func (s *ExportService) Import(ctx context.Context, raw []byte) (*project.Project, error) {
	id, err := s.archives.Import(ctx, raw)
	if err != nil {
		return nil, err
	}
	imported, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(project.ImportedEvent{Result: imported})
	return imported, nil
}
