package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/gorilla/mux"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/run"
	"github.com/unhackeddev/nfury/modules/loadtest/services"
	"github.com/unhackeddev/nfury/pkg/application"
	"github.com/unhackeddev/nfury/pkg/configuration"
)

const defaultRecentLimit = 10

// RunsController serves the run history: search, recent, statistics,
// single runs with their persisted timeline, and deletion.
type RunsController struct {
	app       application.Application
	runs      *services.RunService
	apiPrefix string
}

func NewRunsController(app application.Application) application.Controller {
	return &RunsController{
		app:       app,
		runs:      app.Service(services.RunService{}).(*services.RunService),
		apiPrefix: "/api/runs",
	}
}

func (c *RunsController) Key() string {
	return c.apiPrefix
}

func (c *RunsController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	// Literal segments must be bound before the {id} pattern.
	api.HandleFunc("/recent", c.Recent).Methods(http.MethodGet)
	api.HandleFunc("/stats", c.Statistics).Methods(http.MethodGet)

	api.HandleFunc("", c.Search).Methods(http.MethodGet)
	api.HandleFunc("/{id}", c.Get).Methods(http.MethodGet)
	api.HandleFunc("/{id}/timeline", c.Timeline).Methods(http.MethodGet)
	api.HandleFunc("/{id}", c.Delete).Methods(http.MethodDelete)
}

func (c *RunsController) Search(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	params, err := parseRunSearchQuery(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_QUERY", err.Error())
		return
	}
	items, total, err := c.runs.Search(r.Context(), params)
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, runListResponse{
		Runs:  runsFromDomain(items),
		Total: total,
	})
}

func (c *RunsController) Recent(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_QUERY", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if max := configuration.Use().MaxPageSize; limit > max {
		limit = max
	}

	items, err := c.runs.ListRecent(r.Context(), limit)
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, runsFromDomain(items))
}

func (c *RunsController) Statistics(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	projectID, err := parseOptionalIDParam(r, "projectId")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_QUERY", err.Error())
		return
	}
	endpointID, err := parseOptionalIDParam(r, "endpointId")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_QUERY", err.Error())
		return
	}

	st, err := c.runs.Statistics(r.Context(), projectID, endpointID)
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, statisticsFromDomain(st))
}

func (c *RunsController) Get(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	id, err := parsePathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_PATH", err.Error())
		return
	}
	item, err := c.runs.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, runFromDomain(item))
}

func (c *RunsController) Timeline(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	id, err := parsePathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_PATH", err.Error())
		return
	}
	item, snapshots, err := c.runs.Timeline(r.Context(), id)
	if err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, runTimelineResponse{
		Run:       runFromDomain(item),
		Snapshots: snapshotsFromDomain(snapshots),
	})
}

func (c *RunsController) Delete(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	id, err := parsePathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_PATH", err.Error())
		return
	}
	if err := c.runs.Delete(r.Context(), id); err != nil {
		writeDomainError(w, requestID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseRunSearchQuery(r *http.Request) (*run.FindParams, error) {
	conf := configuration.Use()
	params := &run.FindParams{Limit: conf.PageSize}

	var err error
	if params.EndpointID, err = parseOptionalIDParam(r, "endpointId"); err != nil {
		return nil, err
	}
	if params.ProjectID, err = parseOptionalIDParam(r, "projectId"); err != nil {
		return nil, err
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := run.Status(raw)
		if !status.Valid() {
			return nil, errors.Errorf("unknown status %q", raw)
		}
		params.Status = &status
	}

	if params.From, err = parseTimeParam(r, "from"); err != nil {
		return nil, err
	}
	if params.To, err = parseTimeParam(r, "to"); err != nil {
		return nil, err
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return nil, errors.New("limit must be a positive integer")
		}
		params.Limit = limit
	}
	if params.Limit > conf.MaxPageSize {
		params.Limit = conf.MaxPageSize
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return nil, errors.New("offset must be a non-negative integer")
		}
		params.Offset = offset
	}
	return params, nil
}

func parseOptionalIDParam(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return nil, errors.Errorf("%s must be a positive integer", name)
	}
	return &id, nil
}

// parseTimeParam accepts RFC3339 or a bare date; bare dates are read as
// midnight UTC.
func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, errors.Errorf("%s must be RFC3339 or YYYY-MM-DD", name)
	}
	t = t.UTC()
	return &t, nil
}
