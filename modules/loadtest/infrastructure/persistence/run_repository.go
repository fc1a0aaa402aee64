package persistence

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/run"
	"github.com/unhackeddev/nfury/modules/loadtest/infrastructure/persistence/models"
)

const (
	runColumns = `r.id, r.token, r.endpoint_id, r.url, r.method, r.users, r.target_requests,
		r.target_duration_sec, r.started_at, r.completed_at, r.status, r.error_message,
		r.total_requests, r.successful_requests, r.failed_requests, r.requests_per_second,
		r.average_response_time, r.min_response_time, r.max_response_time,
		r.p50, r.p75, r.p90, r.p95, r.p99, r.total_elapsed_ms, r.status_codes,
		e.name AS endpoint_name, p.id AS project_id, p.name AS project_name`

	runJoins = `
		FROM runs r
		LEFT JOIN endpoints e ON e.id = r.endpoint_id
		LEFT JOIN projects p ON p.id = e.project_id`

	selectRunBase = `SELECT ` + runColumns + runJoins

	insertRunQuery = `
		INSERT INTO runs (
			token, endpoint_id, url, method, users, target_requests, target_duration_sec,
			started_at, status, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	finalizeRunQuery = `
		UPDATE runs SET
			status = ?, completed_at = ?, error_message = ?,
			total_requests = ?, successful_requests = ?, failed_requests = ?,
			requests_per_second = ?, average_response_time = ?, min_response_time = ?,
			max_response_time = ?, p50 = ?, p75 = ?, p90 = ?, p95 = ?, p99 = ?,
			total_elapsed_ms = ?, status_codes = ?
		WHERE token = ?`

	deleteRunQuery = `DELETE FROM runs WHERE id = ?`

	// The joined SELECT makes an unknown token a zero-row insert rather
	// than an error.
	insertSnapshotQuery = `
		INSERT INTO run_snapshots (
			run_id, request_id, timestamp, response_time_ms, status_code, success,
			total_requests, successful_requests, failed_requests, current_rps, average_response_time
		)
		SELECT r.id, ?, ?, ?, ?, ?, ?, ?, ?, ?, ? FROM runs r WHERE r.token = ?`

	snapshotColumns = `id, run_id, request_id, timestamp, response_time_ms, status_code, success,
		total_requests, successful_requests, failed_requests, current_rps, average_response_time`

	selectSnapshotsQuery = `
		SELECT ` + snapshotColumns + ` FROM run_snapshots WHERE run_id = ? ORDER BY id ASC`

	runStatisticsQuery = `
		SELECT
			COUNT(*) AS total_runs,
			COALESCE(SUM(CASE WHEN r.status = 'Completed' THEN 1 ELSE 0 END), 0) AS completed_runs,
			COALESCE(SUM(CASE WHEN r.status = 'Failed' THEN 1 ELSE 0 END), 0) AS failed_runs,
			COALESCE(SUM(CASE WHEN r.status = 'Cancelled' THEN 1 ELSE 0 END), 0) AS cancelled_runs,
			COALESCE(SUM(CASE WHEN r.status = 'Running' THEN 1 ELSE 0 END), 0) AS running_runs,
			COALESCE(SUM(r.total_requests), 0) AS total_requests,
			COALESCE(AVG(CASE WHEN r.status = 'Completed' THEN r.average_response_time END), 0) AS avg_response_time,
			COALESCE(AVG(CASE WHEN r.status = 'Completed' THEN r.requests_per_second END), 0) AS avg_requests_per_second` + runJoins
)

type RunRepository struct {
	db *sqlx.DB
}

func NewRunRepository(db *sqlx.DB) run.Repository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Create(ctx context.Context, rn *run.Run) (*run.Run, error) {
	startedAt := rn.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	status := rn.Status
	if status == "" {
		status = run.StatusRunning
	}
	res, err := r.db.ExecContext(ctx, insertRunQuery,
		rn.Token, nullableInt64(rn.EndpointID), rn.URL, rn.Method, rn.Users,
		nullableInt(rn.TargetRequests), nullableInt(rn.TargetDurationSec),
		startedAt, string(status), rn.ErrorMessage,
	)
	if err != nil {
		return nil, errors.Wrap(err, "create run")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "create run: last insert id")
	}
	return r.GetByID(ctx, id)
}

func (r *RunRepository) GetByToken(ctx context.Context, token string) (*run.Run, error) {
	var row models.Run
	if err := r.db.GetContext(ctx, &row, selectRunBase+` WHERE r.token = ?`, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, run.ErrNotFound
		}
		return nil, errors.Wrap(err, "get run by token")
	}
	return toDomainRun(&row)
}

func (r *RunRepository) GetByID(ctx context.Context, id int64) (*run.Run, error) {
	var row models.Run
	if err := r.db.GetContext(ctx, &row, selectRunBase+` WHERE r.id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, run.ErrNotFound
		}
		return nil, errors.Wrap(err, "get run")
	}
	return toDomainRun(&row)
}

func (r *RunRepository) GetWithSnapshots(ctx context.Context, id int64) (*run.Run, []run.Snapshot, error) {
	rn, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	snapshots, err := r.ListSnapshots(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return rn, snapshots, nil
}

func (r *RunRepository) Complete(ctx context.Context, token string, agg run.Aggregate) error {
	return r.finalize(ctx, token, run.StatusCompleted, "", agg)
}

func (r *RunRepository) Fail(ctx context.Context, token string, errMsg string, agg run.Aggregate) error {
	return r.finalize(ctx, token, run.StatusFailed, errMsg, agg)
}

func (r *RunRepository) Cancel(ctx context.Context, token string, agg run.Aggregate) error {
	return r.finalize(ctx, token, run.StatusCancelled, "", agg)
}

func (r *RunRepository) finalize(ctx context.Context, token string, status run.Status, errMsg string, agg run.Aggregate) error {
	statusCodes, err := encodeStatusCodes(agg.StatusCodes)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, finalizeRunQuery,
		string(status), time.Now().UTC(), errMsg,
		agg.TotalRequests, agg.SuccessfulRequests, agg.FailedRequests,
		agg.RequestsPerSecond, agg.AverageResponseTime, agg.MinResponseTime,
		agg.MaxResponseTime, agg.P50, agg.P75, agg.P90, agg.P95, agg.P99,
		agg.TotalElapsedMs, statusCodes,
		token,
	)
	if err != nil {
		return errors.Wrapf(err, "finalize run as %s", status)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "finalize run: rows affected")
	}
	if affected == 0 {
		return run.ErrNotFound
	}
	return nil
}

func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]*run.Run, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.selectRuns(ctx, selectRunBase+` ORDER BY r.started_at DESC, r.id DESC LIMIT ?`, limit)
}

func (r *RunRepository) Search(ctx context.Context, params *run.FindParams) ([]*run.Run, int64, error) {
	where, args := buildRunFilters(params)
	query := selectRunBase
	countQuery := `SELECT COUNT(*)` + runJoins
	if len(where) > 0 {
		clause := ` WHERE ` + strings.Join(where, " AND ")
		query += clause
		countQuery += clause
	}
	query += ` ORDER BY r.started_at DESC, r.id DESC`

	var total int64
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, errors.Wrap(err, "count runs")
	}

	if params != nil && params.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, params.Limit, params.Offset)
	}
	runs, err := r.selectRuns(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

func (r *RunRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deleteRunQuery, id)
	if err != nil {
		return errors.Wrap(err, "delete run")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete run: rows affected")
	}
	if affected == 0 {
		return run.ErrNotFound
	}
	return nil
}

func (r *RunRepository) AppendSnapshot(ctx context.Context, token string, snap run.Snapshot) error {
	_, err := r.db.ExecContext(ctx, insertSnapshotQuery,
		snap.RequestID, snap.Timestamp, snap.ResponseTimeMs, snap.StatusCode, snap.Success,
		snap.TotalRequests, snap.SuccessfulRequests, snap.FailedRequests,
		snap.CurrentRPS, snap.AverageResponseTime,
		token,
	)
	if err != nil {
		return errors.Wrap(err, "append snapshot")
	}
	return nil
}

func (r *RunRepository) ListSnapshots(ctx context.Context, runID int64) ([]run.Snapshot, error) {
	var rows []models.RunSnapshot
	if err := r.db.SelectContext(ctx, &rows, selectSnapshotsQuery, runID); err != nil {
		return nil, errors.Wrap(err, "list snapshots")
	}
	snapshots := make([]run.Snapshot, 0, len(rows))
	for i := range rows {
		snapshots = append(snapshots, toDomainSnapshot(&rows[i]))
	}
	return snapshots, nil
}

func (r *RunRepository) Statistics(ctx context.Context, projectID, endpointID *int64) (*run.Statistics, error) {
	query := runStatisticsQuery
	var (
		where []string
		args  []interface{}
	)
	if projectID != nil {
		where = append(where, `p.id = ?`)
		args = append(args, *projectID)
	}
	if endpointID != nil {
		where = append(where, `r.endpoint_id = ?`)
		args = append(args, *endpointID)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	row := r.db.QueryRowxContext(ctx, query, args...)
	var s run.Statistics
	if err := row.Scan(
		&s.TotalRuns, &s.CompletedRuns, &s.FailedRuns, &s.CancelledRuns, &s.RunningRuns,
		&s.TotalRequests, &s.AvgResponseTime, &s.AvgRequestsPerSecond,
	); err != nil {
		return nil, errors.Wrap(err, "run statistics")
	}
	return &s, nil
}

func (r *RunRepository) ListByEndpoint(ctx context.Context, endpointID int64) ([]*run.Run, error) {
	return r.selectRuns(ctx, selectRunBase+` WHERE r.endpoint_id = ? ORDER BY r.started_at DESC, r.id DESC`, endpointID)
}

func (r *RunRepository) selectRuns(ctx context.Context, query string, args ...interface{}) ([]*run.Run, error) {
	var rows []models.Run
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "select runs")
	}
	runs := make([]*run.Run, 0, len(rows))
	for i := range rows {
		rn, err := toDomainRun(&rows[i])
		if err != nil {
			return nil, err
		}
		runs = append(runs, rn)
	}
	return runs, nil
}

func buildRunFilters(params *run.FindParams) ([]string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if params == nil {
		return where, args
	}
	if params.EndpointID != nil {
		where = append(where, `r.endpoint_id = ?`)
		args = append(args, *params.EndpointID)
	}
	if params.ProjectID != nil {
		where = append(where, `p.id = ?`)
		args = append(args, *params.ProjectID)
	}
	if params.Status != nil {
		where = append(where, `r.status = ?`)
		args = append(args, string(*params.Status))
	}
	if params.From != nil && !params.From.IsZero() {
		where = append(where, `r.started_at >= ?`)
		args = append(args, *params.From)
	}
	if params.To != nil && !params.To.IsZero() {
		where = append(where, `r.started_at <= ?`)
		args = append(args, *params.To)
	}
	return where, args
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
