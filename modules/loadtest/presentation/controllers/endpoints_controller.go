package controllers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/unhackeddev/nfury/modules/loadtest/services"
	"github.com/unhackeddev/nfury/pkg/application"
)

// EndpointsController serves single-endpoint operations. The collection
// routes live under the owning project in ProjectsController.
type EndpointsController struct {
	app       application.Application
	endpoints *services.EndpointService
	apiPrefix string
}

func NewEndpointsController(app application.Application) application.Controller {
	return &EndpointsController{
		app:       app,
		endpoints: app.Service(services.EndpointService{}).(*services.EndpointService),
		apiPrefix: "/api/endpoints",
	}
}

func (c *EndpointsController) Key() string {
	return c.apiPrefix
}

func (c *EndpointsController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("/{id}", c.Get).Methods(http.MethodGet)
	api.HandleFunc("/{id}", c.Update).Methods(http.MethodPut)
	api.HandleFunc("/{id}", c.Delete).Methods(http.MethodDelete)
}

func (c *EndpointsController) Get(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	id, err := parsePathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_PATH", err.Error())
		return
	}
	e, err := c.endpoints.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, endpointFromDomain(e))
}

func (c *EndpointsController) Update(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	id, err := parsePathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_PATH", err.Error())
		return
	}

	var req endpointRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_BODY", "invalid json body")
		return
	}
	req.normalize()
	if fields := validateStruct(&req); len(fields) > 0 {
		writeValidationError(w, requestID, fields)
		return
	}
	if req.Requests != nil && req.DurationSec != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "VALIDATION_FAILED", "requests and durationSec are mutually exclusive")
		return
	}

	// The owning project comes from the stored row, not the request.
	e := req.toDomain(0)
	e.ID = id
	updated, err := c.endpoints.Update(r.Context(), e)
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, endpointFromDomain(updated))
}

func (c *EndpointsController) Delete(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	id, err := parsePathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_PATH", err.Error())
		return
	}
	if err := c.endpoints.Delete(r.Context(), id); err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
