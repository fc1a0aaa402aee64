package controllers

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/run"
)

func TestRunsController_SearchFilters(t *testing.T) {
	e := newEnv(t)
	projectID := e.createProject(t, "Search")
	epA := e.createEndpoint(t, projectID, "alpha", "http://alpha.test/")
	epB := e.createEndpoint(t, projectID, "beta", "http://beta.test/")

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	e.seedFinishedRun(t, "run-q-1", &epA, run.StatusCompleted, base)
	e.seedFinishedRun(t, "run-q-2", &epA, run.StatusFailed, base.Add(1*time.Hour))
	e.seedFinishedRun(t, "run-q-3", &epB, run.StatusCancelled, base.Add(2*time.Hour))
	e.seedFinishedRun(t, "run-q-4", nil, run.StatusCompleted, base.Add(3*time.Hour))

	// Unfiltered, newest first.
	status, raw := e.request(t, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var all runListResponse
	decodeBody(t, raw, &all)
	require.Equal(t, int64(4), all.Total)
	require.Len(t, all.Runs, 4)
	require.Equal(t, "run-q-4", all.Runs[0].Token)
	require.Equal(t, "run-q-1", all.Runs[3].Token)

	// By endpoint.
	status, raw = e.request(t, http.MethodGet, fmt.Sprintf("/api/runs?endpointId=%d", epA), nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var byEndpoint runListResponse
	decodeBody(t, raw, &byEndpoint)
	require.Equal(t, int64(2), byEndpoint.Total)

	// By project: the ad-hoc run has no project and drops out.
	status, raw = e.request(t, http.MethodGet, fmt.Sprintf("/api/runs?projectId=%d", projectID), nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var byProject runListResponse
	decodeBody(t, raw, &byProject)
	require.Equal(t, int64(3), byProject.Total)

	// By status.
	status, raw = e.request(t, http.MethodGet, "/api/runs?status=Failed", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var failed runListResponse
	decodeBody(t, raw, &failed)
	require.Equal(t, int64(1), failed.Total)
	require.Equal(t, "run-q-2", failed.Runs[0].Token)

	// By window.
	status, raw = e.request(t, http.MethodGet, "/api/runs?from=2026-08-20T11%3A30%3A00Z", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var windowed runListResponse
	decodeBody(t, raw, &windowed)
	require.Equal(t, int64(2), windowed.Total)

	// Paging: total stays the full count.
	status, raw = e.request(t, http.MethodGet, "/api/runs?limit=2&offset=3", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var paged runListResponse
	decodeBody(t, raw, &paged)
	require.Equal(t, int64(4), paged.Total)
	require.Len(t, paged.Runs, 1)
	require.Equal(t, "run-q-1", paged.Runs[0].Token)
}

func TestRunsController_SearchRejectsBadQuery(t *testing.T) {
	e := newEnv(t)

	for _, q := range []string{
		"status=Borked",
		"endpointId=-2",
		"limit=0",
		"offset=-1",
		"from=yesterday",
	} {
		status, raw := e.request(t, http.MethodGet, "/api/runs?"+q, nil)
		require.Equal(t, http.StatusBadRequest, status, "query %s: %s", q, string(raw))
		require.Equal(t, "INVALID_QUERY", errorCode(t, raw))
	}
}

func TestRunsController_RecentHonorsLimit(t *testing.T) {
	e := newEnv(t)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		e.seedFinishedRun(t, fmt.Sprintf("run-r-%d", i), nil, run.StatusCompleted, base.Add(time.Duration(i)*time.Minute))
	}

	status, raw := e.request(t, http.MethodGet, "/api/runs/recent?limit=3", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var recent []runResponse
	decodeBody(t, raw, &recent)
	require.Len(t, recent, 3)
	require.Equal(t, "run-r-4", recent[0].Token)
}

func TestRunsController_Statistics(t *testing.T) {
	e := newEnv(t)
	projectID := e.createProject(t, "Stats")
	ep := e.createEndpoint(t, projectID, "tracked", "http://tracked.test/")

	base := time.Now().UTC().Add(-time.Hour)
	e.seedFinishedRun(t, "run-st-1", &ep, run.StatusCompleted, base)
	e.seedFinishedRun(t, "run-st-2", &ep, run.StatusFailed, base.Add(time.Minute))
	e.seedFinishedRun(t, "run-st-3", nil, run.StatusCancelled, base.Add(2*time.Minute))

	status, raw := e.request(t, http.MethodGet, "/api/runs/stats", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var overall runStatisticsResponse
	decodeBody(t, raw, &overall)
	require.Equal(t, int64(3), overall.TotalRuns)
	require.Equal(t, int64(1), overall.CompletedRuns)
	require.Equal(t, int64(1), overall.FailedRuns)
	require.Equal(t, int64(1), overall.CancelledRuns)

	status, raw = e.request(t, http.MethodGet, fmt.Sprintf("/api/runs/stats?projectId=%d", projectID), nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var scoped runStatisticsResponse
	decodeBody(t, raw, &scoped)
	require.Equal(t, int64(2), scoped.TotalRuns)
	require.Equal(t, int64(0), scoped.CancelledRuns)
}

func TestRunsController_TimelineReturnsPersistedSnapshots(t *testing.T) {
	e := newEnv(t)
	seeded := e.seedFinishedRun(t, "run-t-1", nil, run.StatusCompleted, time.Now().UTC().Add(-time.Minute))

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, e.runRepo.AppendSnapshot(ctx, "run-t-1", run.Snapshot{
			RequestID:           int64(i * 10),
			Timestamp:           time.Now().UTC(),
			ResponseTimeMs:      int64(10 * i),
			StatusCode:          200,
			Success:             true,
			TotalRequests:       int64(i * 10),
			SuccessfulRequests:  int64(i * 10),
			CurrentRPS:          float64(i),
			AverageResponseTime: 10,
		}))
	}

	status, raw := e.request(t, http.MethodGet, runPath(seeded.ID)+"/timeline", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var timeline runTimelineResponse
	decodeBody(t, raw, &timeline)
	require.Equal(t, "run-t-1", timeline.Run.Token)
	require.Len(t, timeline.Snapshots, 3)
	require.Equal(t, int64(10), timeline.Snapshots[0].RequestID)
	require.Equal(t, int64(30), timeline.Snapshots[2].RequestID)
	require.True(t, timeline.Snapshots[2].IsSuccess)
}

func TestRunsController_GetAndDelete(t *testing.T) {
	e := newEnv(t)
	seeded := e.seedFinishedRun(t, "run-d-1", nil, run.StatusCompleted, time.Now().UTC())

	status, raw := e.request(t, http.MethodGet, runPath(seeded.ID), nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var got runResponse
	decodeBody(t, raw, &got)
	require.Equal(t, "run-d-1", got.Token)
	require.Equal(t, "Completed", got.Status)
	require.Equal(t, int64(10), got.TotalRequests)

	status, raw = e.request(t, http.MethodDelete, runPath(seeded.ID), nil)
	require.Equal(t, http.StatusNoContent, status, string(raw))

	status, raw = e.request(t, http.MethodGet, runPath(seeded.ID), nil)
	require.Equal(t, http.StatusNotFound, status, string(raw))
	require.Equal(t, "NOT_FOUND", errorCode(t, raw))

	status, raw = e.request(t, http.MethodDelete, "/api/runs/4242", nil)
	require.Equal(t, http.StatusNotFound, status, string(raw))
}
