// Package handlers subscribes to the module's domain events and writes
// the audit trail through the application logger.
package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/endpoint"
	"github.com/unhackeddev/nfury/modules/loadtest/domain/project"
	"github.com/unhackeddev/nfury/modules/loadtest/domain/run"
	"github.com/unhackeddev/nfury/pkg/application"
)

type AuditHandler struct {
	logger *logrus.Logger
}

func RegisterAuditHandlers(app application.Application) {
	handler := &AuditHandler{logger: app.Logger()}
	bus := app.EventPublisher()
	bus.Subscribe(handler.onProjectCreated)
	bus.Subscribe(handler.onProjectUpdated)
	bus.Subscribe(handler.onProjectDeleted)
	bus.Subscribe(handler.onProjectImported)
	bus.Subscribe(handler.onEndpointCreated)
	bus.Subscribe(handler.onEndpointUpdated)
	bus.Subscribe(handler.onEndpointDeleted)
	bus.Subscribe(handler.onRunStarted)
	bus.Subscribe(handler.onRunFinished)
	bus.Subscribe(handler.onRunDeleted)
}

func (h *AuditHandler) onProjectCreated(event project.CreatedEvent) {
	h.logger.WithFields(logrus.Fields{
		"project": event.Result.ID,
		"name":    event.Result.Name,
	}).Info("project created")
}

func (h *AuditHandler) onProjectUpdated(event project.UpdatedEvent) {
	h.logger.WithFields(logrus.Fields{
		"project": event.Result.ID,
		"name":    event.Result.Name,
	}).Info("project updated")
}

func (h *AuditHandler) onProjectDeleted(event project.DeletedEvent) {
	h.logger.WithField("project", event.ID).Info("project deleted")
}

func (h *AuditHandler) onProjectImported(event project.ImportedEvent) {
	h.logger.WithFields(logrus.Fields{
		"project": event.Result.ID,
		"name":    event.Result.Name,
	}).Info("project imported")
}

func (h *AuditHandler) onEndpointCreated(event endpoint.CreatedEvent) {
	h.logger.WithFields(logrus.Fields{
		"endpoint": event.Result.ID,
		"project":  event.Result.ProjectID,
		"name":     event.Result.Name,
	}).Info("endpoint created")
}

func (h *AuditHandler) onEndpointUpdated(event endpoint.UpdatedEvent) {
	h.logger.WithFields(logrus.Fields{
		"endpoint": event.Result.ID,
		"project":  event.Result.ProjectID,
		"name":     event.Result.Name,
	}).Info("endpoint updated")
}

func (h *AuditHandler) onEndpointDeleted(event endpoint.DeletedEvent) {
	h.logger.WithFields(logrus.Fields{
		"endpoint": event.ID,
		"project":  event.ProjectID,
	}).Info("endpoint deleted")
}

func (h *AuditHandler) onRunStarted(event run.StartedEvent) {
	h.logger.WithFields(logrus.Fields{
		"token":  event.Result.Token,
		"url":    event.Result.URL,
		"method": event.Result.Method,
		"users":  event.Result.Users,
	}).Info("run started")
}

func (h *AuditHandler) onRunFinished(event run.FinishedEvent) {
	h.logger.WithFields(logrus.Fields{
		"token":  event.Token,
		"status": string(event.Status),
	}).Info("run finished")
}

func (h *AuditHandler) onRunDeleted(event run.DeletedEvent) {
	h.logger.WithField("run", event.ID).Info("run deleted")
}
