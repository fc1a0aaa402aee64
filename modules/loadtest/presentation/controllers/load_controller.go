package controllers

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/gorilla/mux"

	"github.com/unhackeddev/nfury/modules/loadtest/services"
	"github.com/unhackeddev/nfury/pkg/application"
)

// LoadController drives the single run slot: starting ad-hoc and
// endpoint runs, stopping, and reporting the slot state.
type LoadController struct {
	app       application.Application
	runs      *services.RunService
	apiPrefix string
}

func NewLoadController(app application.Application) application.Controller {
	return &LoadController{
		app:       app,
		runs:      app.Service(services.RunService{}).(*services.RunService),
		apiPrefix: "/api/load",
	}
}

func (c *LoadController) Key() string {
	return c.apiPrefix
}

func (c *LoadController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("/start", c.StartAdHoc).Methods(http.MethodPost)
	api.HandleFunc("/endpoints/{id}/start", c.StartEndpoint).Methods(http.MethodPost)
	api.HandleFunc("/stop", c.Stop).Methods(http.MethodPost)
	api.HandleFunc("/status", c.Status).Methods(http.MethodGet)
}

func (c *LoadController) StartAdHoc(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	var req startRunRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_BODY", "invalid json body")
		return
	}
	req.normalize()
	if fields := validateStruct(&req); len(fields) > 0 {
		writeValidationError(w, requestID, fields)
		return
	}

	started, err := c.runs.StartAdHocRun(r.Context(), req.toServiceRequest())
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, runFromDomain(started))
}

func (c *LoadController) StartEndpoint(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	id, err := parsePathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_PATH", err.Error())
		return
	}

	// The body is optional: absent or empty means no user override.
	var req startEndpointRunRequest
	if err := decodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_BODY", "invalid json body")
		return
	}
	if fields := validateStruct(&req); len(fields) > 0 {
		writeValidationError(w, requestID, fields)
		return
	}

	started, err := c.runs.StartEndpointRun(r.Context(), id, req.Users)
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, runFromDomain(started))
}

func (c *LoadController) Stop(w http.ResponseWriter, r *http.Request) {
	stopped := c.runs.Stop()
	writeJSON(w, http.StatusOK, stopRunResponse{Stopped: stopped})
}

func (c *LoadController) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, loadStatusFromService(c.runs.Status()))
}
