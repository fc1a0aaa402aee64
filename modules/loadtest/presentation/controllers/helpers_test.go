package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/run"
	"github.com/unhackeddev/nfury/modules/loadtest/infrastructure/persistence"
	"github.com/unhackeddev/nfury/modules/loadtest/services"
	"github.com/unhackeddev/nfury/modules/loadtest/stream"
	"github.com/unhackeddev/nfury/modules/loadtest/tokenfetch"
	"github.com/unhackeddev/nfury/pkg/application"
	"github.com/unhackeddev/nfury/pkg/eventbus"
	"github.com/unhackeddev/nfury/pkg/httpapi"
)

// env serves the full API surface against a throwaway sqlite catalog,
// mirroring the wiring the module does at startup.
type env struct {
	ts      *httptest.Server
	app     application.Application
	runs    *services.RunService
	runRepo run.Repository
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	bus := eventbus.NewEventPublisher(logger)
	app := application.New(&application.ApplicationOptions{
		DB:       db,
		EventBus: bus,
		Logger:   logger,
	})

	projects := persistence.NewProjectRepository(db)
	endpoints := persistence.NewEndpointRepository(db)
	runs := persistence.NewRunRepository(db)
	archives := persistence.NewExportRepository(db)
	hub := stream.NewHub(logger)

	runSvc := services.NewRunService(
		runs, endpoints, projects,
		hub, tokenfetch.New(logger), bus, logger,
	)
	app.RegisterServices(
		services.NewProjectService(projects, bus),
		services.NewEndpointService(endpoints, projects, bus),
		services.NewExportService(archives, projects, bus),
		runSvc,
	)

	r := mux.NewRouter()
	for _, c := range []application.Controller{
		NewLoadController(app),
		NewAuthController(app),
		NewProjectsController(app),
		NewEndpointsController(app),
		NewRunsController(app),
		NewStreamController(app),
		NewHealthController(app),
	} {
		c.Register(r)
	}
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return &env{ts: ts, app: app, runs: runSvc, runRepo: runs}
}

// request sends body as JSON when non-nil and returns the status code
// with the raw response body.
func (e *env) request(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, raw
}

func readBody(t *testing.T, res *http.Response) []byte {
	t.Helper()
	defer func() { _ = res.Body.Close() }()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return raw
}

func decodeBody(t *testing.T, raw []byte, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, dst), string(raw))
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var envlp httpapi.ErrorEnvelope
	decodeBody(t, raw, &envlp)
	return envlp.Code
}

// createProject seeds a project over the API and returns its id.
func (e *env) createProject(t *testing.T, name string) int64 {
	t.Helper()
	status, raw := e.request(t, http.MethodPost, "/api/projects", map[string]any{
		"name": name,
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var res struct {
		ID int64 `json:"id"`
	}
	decodeBody(t, raw, &res)
	return res.ID
}

// createEndpoint seeds an endpoint under the project and returns its id.
func (e *env) createEndpoint(t *testing.T, projectID int64, name, url string) int64 {
	t.Helper()
	status, raw := e.request(t, http.MethodPost, projectPath(projectID)+"/endpoints", map[string]any{
		"name": name,
		"url":  url,
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var res struct {
		ID int64 `json:"id"`
	}
	decodeBody(t, raw, &res)
	return res.ID
}

// seedFinishedRun inserts a terminal run row directly, bypassing the
// engine, for search and statistics tests.
func (e *env) seedFinishedRun(t *testing.T, token string, endpointID *int64, status run.Status, startedAt time.Time) *run.Run {
	t.Helper()
	_, err := e.runRepo.Create(context.Background(), &run.Run{
		Token:      token,
		EndpointID: endpointID,
		URL:        "http://seeded.test/",
		Method:     "GET",
		Users:      2,
		StartedAt:  startedAt,
	})
	require.NoError(t, err)

	agg := run.Aggregate{
		TotalRequests:       10,
		SuccessfulRequests:  9,
		FailedRequests:      1,
		RequestsPerSecond:   5,
		AverageResponseTime: 12,
		MinResponseTime:     4,
		MaxResponseTime:     30,
		P50:                 10, P75: 15, P90: 20, P95: 25, P99: 29,
		TotalElapsedMs: 2000,
	}
	switch status {
	case run.StatusCompleted:
		require.NoError(t, e.runRepo.Complete(context.Background(), token, agg))
	case run.StatusFailed:
		require.NoError(t, e.runRepo.Fail(context.Background(), token, "seeded failure", agg))
	case run.StatusCancelled:
		require.NoError(t, e.runRepo.Cancel(context.Background(), token, agg))
	case run.StatusRunning:
	}
	got, err := e.runRepo.GetByToken(context.Background(), token)
	require.NoError(t, err)
	return got
}

func projectPath(id int64) string {
	return "/api/projects/" + strconv.FormatInt(id, 10)
}

func endpointPath(id int64) string {
	return "/api/endpoints/" + strconv.FormatInt(id, 10)
}

func runPath(id int64) string {
	return "/api/runs/" + strconv.FormatInt(id, 10)
}

func loadEndpointStartPath(id int64) string {
	return "/api/load/endpoints/" + strconv.FormatInt(id, 10) + "/start"
}
