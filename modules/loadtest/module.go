// Package loadtest is the load generator module: a persistent catalog of
// projects and endpoints, a single-slot run lifecycle, and the REST and
// WebSocket surface over both.
package loadtest

import (
	"github.com/unhackeddev/nfury/modules/loadtest/handlers"
	"github.com/unhackeddev/nfury/modules/loadtest/infrastructure/persistence"
	"github.com/unhackeddev/nfury/modules/loadtest/presentation/controllers"
	"github.com/unhackeddev/nfury/modules/loadtest/services"
	"github.com/unhackeddev/nfury/modules/loadtest/stream"
	"github.com/unhackeddev/nfury/modules/loadtest/tokenfetch"
	"github.com/unhackeddev/nfury/pkg/application"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct {
}

func (m *Module) Register(app application.Application) error {
	db := app.DB()
	logger := app.Logger()

	projects := persistence.NewProjectRepository(db)
	endpoints := persistence.NewEndpointRepository(db)
	runs := persistence.NewRunRepository(db)
	archives := persistence.NewExportRepository(db)

	hub := stream.NewHub(logger)
	fetcher := tokenfetch.New(logger)

	app.RegisterServices(
		services.NewProjectService(projects, app.EventPublisher()),
		services.NewEndpointService(endpoints, projects, app.EventPublisher()),
		services.NewExportService(archives, projects, app.EventPublisher()),
		services.NewRunService(runs, endpoints, projects, hub, fetcher, app.EventPublisher(), logger),
	)
	app.RegisterControllers(
		controllers.NewLoadController(app),
		controllers.NewAuthController(app),
		controllers.NewProjectsController(app),
		controllers.NewEndpointsController(app),
		controllers.NewRunsController(app),
		controllers.NewStreamController(app),
		controllers.NewHealthController(app),
	)
	handlers.RegisterAuditHandlers(app)
	return nil
}

func (m *Module) Name() string {
	return "loadtest"
}
