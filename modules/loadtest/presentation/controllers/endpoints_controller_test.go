package controllers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEndpointsController_CreateAppliesDefaults(t *testing.T) {
	e := newEnv(t)
	projectID := e.createProject(t, "Defaults")

	status, raw := e.request(t, http.MethodPost, projectPath(projectID)+"/endpoints", map[string]any{
		"name": "bare",
		"url":  "http://bare.test/",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var ep endpointResponse
	decodeBody(t, raw, &ep)
	require.Equal(t, projectID, ep.ProjectID)
	require.Equal(t, "GET", ep.Method)
	require.Equal(t, defaultUsers, ep.Users)
	require.Nil(t, ep.Requests)
	require.Nil(t, ep.DurationSec)
}

func TestEndpointsController_CreateRejectsBothCriteria(t *testing.T) {
	e := newEnv(t)
	projectID := e.createProject(t, "Greedy")

	status, raw := e.request(t, http.MethodPost, projectPath(projectID)+"/endpoints", map[string]any{
		"name":        "both",
		"url":         "http://both.test/",
		"requests":    100,
		"durationSec": 30,
	})
	require.Equal(t, http.StatusBadRequest, status, string(raw))
	require.Equal(t, "VALIDATION_FAILED", errorCode(t, raw))
}

func TestEndpointsController_CreateUnderUnknownProjectIs404(t *testing.T) {
	e := newEnv(t)

	status, raw := e.request(t, http.MethodPost, "/api/projects/77/endpoints", map[string]any{
		"name": "orphan",
		"url":  "http://orphan.test/",
	})
	require.Equal(t, http.StatusNotFound, status, string(raw))
	require.Equal(t, "NOT_FOUND", errorCode(t, raw))

	status, raw = e.request(t, http.MethodGet, "/api/projects/77/endpoints", nil)
	require.Equal(t, http.StatusNotFound, status, string(raw))
}

func TestEndpointsController_UpdateKeepsOwnerAndReplacesState(t *testing.T) {
	e := newEnv(t)
	projectID := e.createProject(t, "Owner")
	id := e.createEndpoint(t, projectID, "orders", "http://orders.test/")

	status, raw := e.request(t, http.MethodPut, endpointPath(id), map[string]any{
		"name":        "orders v2",
		"url":         "https://orders.test/v2",
		"method":      "put",
		"users":       20,
		"durationSec": 15,
		"insecure":    true,
		"auth": map[string]any{
			"url":       "https://auth.test/token",
			"tokenPath": "token",
		},
	})
	require.Equal(t, http.StatusOK, status, string(raw))
	var updated endpointResponse
	decodeBody(t, raw, &updated)
	require.Equal(t, projectID, updated.ProjectID)
	require.Equal(t, "orders v2", updated.Name)
	require.Equal(t, "PUT", updated.Method)
	require.Equal(t, 20, updated.Users)
	require.Nil(t, updated.Requests)
	require.NotNil(t, updated.DurationSec)
	require.Equal(t, 15, *updated.DurationSec)
	require.True(t, updated.Insecure)
	require.NotNil(t, updated.Auth)
	require.Equal(t, "token", updated.Auth.TokenPath)

	// A later update without auth clears the override.
	status, raw = e.request(t, http.MethodPut, endpointPath(id), map[string]any{
		"name": "orders v3",
		"url":  "https://orders.test/v3",
	})
	require.Equal(t, http.StatusOK, status, string(raw))
	var cleared endpointResponse
	decodeBody(t, raw, &cleared)
	require.Nil(t, cleared.Auth)
	require.Nil(t, cleared.DurationSec)
}

func TestEndpointsController_DeleteKeepsRunHistory(t *testing.T) {
	e := newEnv(t)
	projectID := e.createProject(t, "History")
	id := e.createEndpoint(t, projectID, "legacy", "http://legacy.test/")

	seeded := e.seedFinishedRun(t, "run-history-1", &id, "Completed", time.Now().UTC())

	status, raw := e.request(t, http.MethodDelete, endpointPath(id), nil)
	require.Equal(t, http.StatusNoContent, status, string(raw))

	status, raw = e.request(t, http.MethodGet, endpointPath(id), nil)
	require.Equal(t, http.StatusNotFound, status, string(raw))

	// The run survives with its endpoint link cleared.
	status, raw = e.request(t, http.MethodGet, runPath(seeded.ID), nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var kept runResponse
	decodeBody(t, raw, &kept)
	require.Equal(t, "run-history-1", kept.Token)
	require.Nil(t, kept.EndpointID)
}

func TestEndpointsController_MethodIsValidated(t *testing.T) {
	e := newEnv(t)
	projectID := e.createProject(t, "Methods")

	status, raw := e.request(t, http.MethodPost, projectPath(projectID)+"/endpoints", map[string]any{
		"name":   "bad verb",
		"url":    "http://verbs.test/",
		"method": "FETCH",
	})
	require.Equal(t, http.StatusBadRequest, status, string(raw))
	require.Equal(t, "VALIDATION_FAILED", errorCode(t, raw))
}
