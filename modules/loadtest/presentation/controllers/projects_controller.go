package controllers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/unhackeddev/nfury/modules/loadtest/services"
	"github.com/unhackeddev/nfury/pkg/application"
)

// ProjectsController owns the /api/projects namespace: project CRUD, the
// project auth spec, archive export/import, and the project's endpoint
// collection.
type ProjectsController struct {
	app       application.Application
	projects  *services.ProjectService
	endpoints *services.EndpointService
	archives  *services.ExportService
	apiPrefix string
}

func NewProjectsController(app application.Application) application.Controller {
	return &ProjectsController{
		app:       app,
		projects:  app.Service(services.ProjectService{}).(*services.ProjectService),
		endpoints: app.Service(services.EndpointService{}).(*services.EndpointService),
		archives:  app.Service(services.ExportService{}).(*services.ExportService),
		apiPrefix: "/api/projects",
	}
}

func (c *ProjectsController) Key() string {
	return c.apiPrefix
}

func (c *ProjectsController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	// "import" must be bound before the {id} routes so it is not
	// swallowed by the id pattern.
	api.HandleFunc("/import", c.Import).Methods(http.MethodPost)

	api.HandleFunc("", c.List).Methods(http.MethodGet)
	api.HandleFunc("", c.Create).Methods(http.MethodPost)
	api.HandleFunc("/{id}", c.Get).Methods(http.MethodGet)
	api.HandleFunc("/{id}", c.Update).Methods(http.MethodPut)
	api.HandleFunc("/{id}", c.Delete).Methods(http.MethodDelete)

	api.HandleFunc("/{id}/auth", c.SetAuth).Methods(http.MethodPut)
	api.HandleFunc("/{id}/auth", c.ClearAuth).Methods(http.MethodDelete)

	api.HandleFunc("/{id}/export", c.Export).Methods(http.MethodGet)

	api.HandleFunc("/{id}/endpoints", c.ListEndpoints).Methods(http.MethodGet)
	api.HandleFunc("/{id}/endpoints", c.CreateEndpoint).Methods(http.MethodPost)
}

func (c *ProjectsController) List(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	items, err := c.projects.List(r.Context())
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, projectsFromDomain(items))
}

func (c *ProjectsController) Get(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	id, err := parsePathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_PATH", err.Error())
		return
	}
	p, err := c.projects.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, projectFromDomain(p))
}

func (c *ProjectsController) Create(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	var req projectRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_BODY", "invalid json body")
		return
	}
	req.normalize()
	if fields := validateStruct(&req); len(fields) > 0 {
		writeValidationError(w, requestID, fields)
		return
	}

	created, err := c.projects.Create(r.Context(), req.toDomain())
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectFromDomain(created))
}

func (c *ProjectsController) Update(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	id, err := parsePathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_PATH", err.Error())
		return
	}

	var req projectRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_BODY", "invalid json body")
		return
	}
	req.normalize()
	if fields := validateStruct(&req); len(fields) > 0 {
		writeValidationError(w, requestID, fields)
		return
	}

	p := req.toDomain()
	p.ID = id
	updated, err := c.projects.Update(r.Context(), p)
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, projectFromDomain(updated))
}

func (c *ProjectsController) Delete(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	id, err := parsePathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_PATH", err.Error())
		return
	}
	if err := c.projects.Delete(r.Context(), id); err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *ProjectsController) SetAuth(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	id, err := parsePathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_PATH", err.Error())
		return
	}

	var req authSpecDTO
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_BODY", "invalid json body")
		return
	}
	req.normalize()
	if fields := validateStruct(&req); len(fields) > 0 {
		writeValidationError(w, requestID, fields)
		return
	}

	updated, err := c.projects.SetAuth(r.Context(), id, req.toDomain())
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, projectFromDomain(updated))
}

func (c *ProjectsController) ClearAuth(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	id, err := parsePathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_PATH", err.Error())
		return
	}
	updated, err := c.projects.ClearAuth(r.Context(), id)
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, projectFromDomain(updated))
}

func (c *ProjectsController) Export(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	id, err := parsePathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_PATH", err.Error())
		return
	}
	bundle, err := c.archives.Export(r.Context(), id)
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("project-%d-export.json", id)))
	writeJSON(w, http.StatusOK, bundle)
}

func (c *ProjectsController) Import(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	raw, err := io.ReadAll(r.Body)
	defer func() { _ = r.Body.Close() }()
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_BODY", "unreadable request body")
		return
	}

	imported, err := c.archives.Import(r.Context(), raw)
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectFromDomain(imported))
}

func (c *ProjectsController) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	id, err := parsePathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_PATH", err.Error())
		return
	}
	items, err := c.endpoints.ListByProject(r.Context(), id)
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, endpointsFromDomain(items))
}

func (c *ProjectsController) CreateEndpoint(w http.ResponseWriter, r *http.Request) {
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

	created, err := c.endpoints.Create(r.Context(), req.toDomain(id))
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, endpointFromDomain(created))
}
