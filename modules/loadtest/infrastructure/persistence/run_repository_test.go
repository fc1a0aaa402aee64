package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/run"
	"github.com/unhackeddev/nfury/modules/loadtest/stats"
)

func seedRun(t *testing.T, db *sqlx.DB, endpointID *int64, token string, startedAt time.Time) *run.Run {
	t.Helper()
	rn, err := NewRunRepository(db).Create(context.Background(), &run.Run{
		Token:      token,
		EndpointID: endpointID,
		URL:        "http://orders.internal/v1/orders",
		Method:     "GET",
		Users:      5,
		StartedAt:  startedAt,
	})
	require.NoError(t, err)
	return rn
}

func sampleAggregate() run.Aggregate {
	return run.Aggregate{
		TotalRequests:       100,
		SuccessfulRequests:  90,
		FailedRequests:      10,
		RequestsPerSecond:   42.5,
		AverageResponseTime: 12.25,
		MinResponseTime:     3,
		MaxResponseTime:     87,
		P50:                 11,
		P75:                 15,
		P90:                 24,
		P95:                 40,
		P99:                 80,
		TotalElapsedMs:      2400,
		StatusCodes: map[int]stats.Summary{
			200: {Count: 90, Sum: 945, Avg: 10.5, Min: 3, Max: 60, P50: 10, P75: 13, P90: 20, P95: 33, P99: 55},
			503: {Count: 10, Sum: 280, Avg: 28, Min: 12, Max: 87, P50: 25, P75: 40, P90: 60, P95: 75, P99: 87},
		},
	}
}

func TestRunRepository_CreateDefaults(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	before := time.Now().UTC()
	created, err := repo.Create(ctx, &run.Run{
		Token:  "run-defaults",
		URL:    "http://orders.internal/v1/orders",
		Method: "GET",
		Users:  5,
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, run.StatusRunning, created.Status)
	require.WithinDuration(t, before, created.StartedAt, 2*time.Second)
	require.Nil(t, created.CompletedAt)
	require.Nil(t, created.EndpointID)
}

func TestRunRepository_CreateJoinsEndpointAndProject(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p := seedProject(t, db, "orders")
	e := seedEndpoint(t, db, p.ID, "list orders")
	created := seedRun(t, db, &e.ID, "run-joined", time.Now().UTC())

	require.NotNil(t, created.EndpointID)
	require.Equal(t, e.ID, *created.EndpointID)
	require.Equal(t, "list orders", created.EndpointName)
	require.NotNil(t, created.ProjectID)
	require.Equal(t, p.ID, *created.ProjectID)
	require.Equal(t, "orders", created.ProjectName)

	got, err := NewRunRepository(db).GetByToken(ctx, "run-joined")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
}

func TestRunRepository_CompleteStoresAggregate(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	seedRun(t, db, nil, "run-complete", time.Now().UTC())
	agg := sampleAggregate()
	require.NoError(t, repo.Complete(ctx, "run-complete", agg))

	got, err := repo.GetByToken(ctx, "run-complete")
	require.NoError(t, err)
	require.Equal(t, run.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.Equal(t, agg.TotalRequests, got.Aggregate.TotalRequests)
	require.Equal(t, agg.SuccessfulRequests, got.Aggregate.SuccessfulRequests)
	require.Equal(t, agg.FailedRequests, got.Aggregate.FailedRequests)
	require.Equal(t, agg.RequestsPerSecond, got.Aggregate.RequestsPerSecond)
	require.Equal(t, agg.P99, got.Aggregate.P99)
	require.Equal(t, agg.TotalElapsedMs, got.Aggregate.TotalElapsedMs)
	require.Equal(t, agg.StatusCodes, got.Aggregate.StatusCodes)
}

func TestRunRepository_FailStoresErrorMessage(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	seedRun(t, db, nil, "run-fail", time.Now().UTC())
	require.NoError(t, repo.Fail(ctx, "run-fail", "authentication failed: 401", run.Aggregate{}))

	got, err := repo.GetByToken(ctx, "run-fail")
	require.NoError(t, err)
	require.Equal(t, run.StatusFailed, got.Status)
	require.Equal(t, "authentication failed: 401", got.ErrorMessage)
}

func TestRunRepository_CancelKeepsPartialAggregate(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	seedRun(t, db, nil, "run-cancel", time.Now().UTC())
	partial := run.Aggregate{TotalRequests: 37, SuccessfulRequests: 37}
	require.NoError(t, repo.Cancel(ctx, "run-cancel", partial))

	got, err := repo.GetByToken(ctx, "run-cancel")
	require.NoError(t, err)
	require.Equal(t, run.StatusCancelled, got.Status)
	require.Equal(t, int64(37), got.Aggregate.TotalRequests)
	require.Empty(t, got.ErrorMessage)
}

func TestRunRepository_FinalizeUnknownToken(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	require.ErrorIs(t, repo.Complete(ctx, "ghost", run.Aggregate{}), run.ErrNotFound)
	require.ErrorIs(t, repo.Fail(ctx, "ghost", "boom", run.Aggregate{}), run.ErrNotFound)
	require.ErrorIs(t, repo.Cancel(ctx, "ghost", run.Aggregate{}), run.ErrNotFound)
}

func TestRunRepository_EndpointDeleteClearsLink(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	p := seedProject(t, db, "orders")
	e := seedEndpoint(t, db, p.ID, "list orders")
	seedRun(t, db, &e.ID, "run-orphan", time.Now().UTC())

	require.NoError(t, NewEndpointRepository(db).Delete(ctx, e.ID))

	got, err := repo.GetByToken(ctx, "run-orphan")
	require.NoError(t, err)
	require.Nil(t, got.EndpointID)
	require.Empty(t, got.EndpointName)
	require.Nil(t, got.ProjectID)
}

func TestRunRepository_ProjectDeleteKeepsRuns(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p := seedProject(t, db, "orders")
	e := seedEndpoint(t, db, p.ID, "list orders")
	seedRun(t, db, &e.ID, "run-survivor", time.Now().UTC())

	require.NoError(t, NewProjectRepository(db).Delete(ctx, p.ID))

	got, err := NewRunRepository(db).GetByToken(ctx, "run-survivor")
	require.NoError(t, err)
	require.Nil(t, got.EndpointID)
}

func TestRunRepository_SnapshotsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	rn := seedRun(t, db, nil, "run-snaps", time.Now().UTC())
	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.AppendSnapshot(ctx, "run-snaps", run.Snapshot{
			RequestID:           int64(i * 10),
			Timestamp:           time.Now().UTC(),
			ResponseTimeMs:      int64(i * 7),
			StatusCode:          200,
			Success:             true,
			TotalRequests:       int64(i * 10),
			SuccessfulRequests:  int64(i * 10),
			CurrentRPS:          float64(i),
			AverageResponseTime: float64(i * 7),
		}))
	}

	snapshots, err := repo.ListSnapshots(ctx, rn.ID)
	require.NoError(t, err)
	require.Len(t, snapshots, 3)
	require.Equal(t, int64(10), snapshots[0].RequestID)
	require.Equal(t, int64(30), snapshots[2].RequestID)
	require.Equal(t, int64(21), snapshots[2].ResponseTimeMs)
	require.True(t, snapshots[0].Success)

	gotRun, gotSnaps, err := repo.GetWithSnapshots(ctx, rn.ID)
	require.NoError(t, err)
	require.Equal(t, rn.ID, gotRun.ID)
	require.Len(t, gotSnaps, 3)
}

func TestRunRepository_AppendSnapshotUnknownTokenIsNoOp(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	rn := seedRun(t, db, nil, "run-real", time.Now().UTC())
	require.NoError(t, repo.AppendSnapshot(ctx, "ghost", run.Snapshot{
		RequestID: 1, Timestamp: time.Now().UTC(), StatusCode: 200, Success: true,
	}))

	snapshots, err := repo.ListSnapshots(ctx, rn.ID)
	require.NoError(t, err)
	require.Empty(t, snapshots)
}

func TestRunRepository_DeleteCascadesSnapshots(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	rn := seedRun(t, db, nil, "run-doomed", time.Now().UTC())
	require.NoError(t, repo.AppendSnapshot(ctx, "run-doomed", run.Snapshot{
		RequestID: 1, Timestamp: time.Now().UTC(), StatusCode: 200, Success: true,
	}))

	require.NoError(t, repo.Delete(ctx, rn.ID))
	_, err := repo.GetByID(ctx, rn.ID)
	require.ErrorIs(t, err, run.ErrNotFound)

	snapshots, err := repo.ListSnapshots(ctx, rn.ID)
	require.NoError(t, err)
	require.Empty(t, snapshots)

	require.ErrorIs(t, repo.Delete(ctx, rn.ID), run.ErrNotFound)
}

func TestRunRepository_ListRecent(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 12; i++ {
		seedRun(t, db, nil, "run-"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
	}

	recent, err := repo.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, "run-l", recent[0].Token)
	require.Equal(t, "run-k", recent[1].Token)
	require.Equal(t, "run-j", recent[2].Token)

	defaulted, err := repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, defaulted, 10)
}

func TestRunRepository_SearchFilters(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	p1 := seedProject(t, db, "orders")
	p2 := seedProject(t, db, "payments")
	e1 := seedEndpoint(t, db, p1.ID, "list orders")
	e2 := seedEndpoint(t, db, p2.ID, "charge card")

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	seedRun(t, db, &e1.ID, "run-1", base)
	seedRun(t, db, &e1.ID, "run-2", base.Add(10*time.Minute))
	seedRun(t, db, &e2.ID, "run-3", base.Add(20*time.Minute))
	seedRun(t, db, nil, "run-4", base.Add(30*time.Minute))
	require.NoError(t, repo.Complete(ctx, "run-2", run.Aggregate{}))

	byEndpoint, total, err := repo.Search(ctx, &run.FindParams{EndpointID: &e1.ID})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, byEndpoint, 2)
	require.Equal(t, "run-2", byEndpoint[0].Token)

	byProject, total, err := repo.Search(ctx, &run.FindParams{ProjectID: &p2.ID})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "run-3", byProject[0].Token)

	completed := run.StatusCompleted
	byStatus, total, err := repo.Search(ctx, &run.FindParams{Status: &completed})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "run-2", byStatus[0].Token)

	from := base.Add(5 * time.Minute)
	to := base.Add(25 * time.Minute)
	byWindow, total, err := repo.Search(ctx, &run.FindParams{From: &from, To: &to})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Equal(t, "run-3", byWindow[0].Token)
	require.Equal(t, "run-2", byWindow[1].Token)

	page, total, err := repo.Search(ctx, &run.FindParams{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Equal(t, int64(4), total)
	require.Len(t, page, 2)
	require.Equal(t, "run-3", page[0].Token)
	require.Equal(t, "run-2", page[1].Token)
}

func TestRunRepository_Statistics(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	p := seedProject(t, db, "orders")
	e := seedEndpoint(t, db, p.ID, "list orders")
	now := time.Now().UTC()

	seedRun(t, db, &e.ID, "stat-1", now)
	require.NoError(t, repo.Complete(ctx, "stat-1", run.Aggregate{
		TotalRequests: 100, AverageResponseTime: 10, RequestsPerSecond: 50,
	}))
	seedRun(t, db, &e.ID, "stat-2", now)
	require.NoError(t, repo.Complete(ctx, "stat-2", run.Aggregate{
		TotalRequests: 200, AverageResponseTime: 30, RequestsPerSecond: 150,
	}))
	seedRun(t, db, &e.ID, "stat-3", now)
	require.NoError(t, repo.Fail(ctx, "stat-3", "boom", run.Aggregate{
		TotalRequests: 50, AverageResponseTime: 999, RequestsPerSecond: 999,
	}))
	seedRun(t, db, nil, "stat-4", now)

	s, err := repo.Statistics(ctx, nil, nil)
	require.NoError(t, err)
	require.Equal(t, int64(4), s.TotalRuns)
	require.Equal(t, int64(2), s.CompletedRuns)
	require.Equal(t, int64(1), s.FailedRuns)
	require.Equal(t, int64(0), s.CancelledRuns)
	require.Equal(t, int64(1), s.RunningRuns)
	require.Equal(t, int64(350), s.TotalRequests)
	require.InDelta(t, 20.0, s.AvgResponseTime, 0.001)
	require.InDelta(t, 100.0, s.AvgRequestsPerSecond, 0.001)

	scoped, err := repo.Statistics(ctx, &p.ID, nil)
	require.NoError(t, err)
	require.Equal(t, int64(3), scoped.TotalRuns)

	byEndpoint, err := repo.Statistics(ctx, nil, &e.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), byEndpoint.TotalRuns)
}

func TestRunRepository_ListByEndpoint(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	p := seedProject(t, db, "orders")
	e := seedEndpoint(t, db, p.ID, "list orders")
	base := time.Now().UTC().Add(-time.Hour)
	seedRun(t, db, &e.ID, "hist-1", base)
	seedRun(t, db, &e.ID, "hist-2", base.Add(time.Minute))
	seedRun(t, db, nil, "hist-3", base.Add(2*time.Minute))

	runs, err := repo.ListByEndpoint(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "hist-2", runs[0].Token)
	require.Equal(t, "hist-1", runs[1].Token)
}
