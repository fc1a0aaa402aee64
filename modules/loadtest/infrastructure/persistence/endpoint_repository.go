package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/endpoint"
	"github.com/unhackeddev/nfury/modules/loadtest/infrastructure/persistence/models"
)

const (
	endpointColumns = `id, project_id, name, description, url, method, users, requests, duration_sec,
		content_type, body, headers, insecure, requires_auth, auth_spec, created_at, updated_at`

	selectEndpointByIDQuery = `SELECT ` + endpointColumns + ` FROM endpoints WHERE id = ?`

	selectEndpointsByProjectQuery = `
		SELECT ` + endpointColumns + ` FROM endpoints WHERE project_id = ? ORDER BY name ASC`

	insertEndpointQuery = `
		INSERT INTO endpoints (
			project_id, name, description, url, method, users, requests, duration_sec,
			content_type, body, headers, insecure, requires_auth, auth_spec, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	updateEndpointQuery = `
		UPDATE endpoints SET
			name = ?, description = ?, url = ?, method = ?, users = ?, requests = ?,
			duration_sec = ?, content_type = ?, body = ?, headers = ?, insecure = ?,
			requires_auth = ?, auth_spec = ?, updated_at = ?
		WHERE id = ?`

	deleteEndpointQuery = `DELETE FROM endpoints WHERE id = ?`

	touchProjectQuery = `UPDATE projects SET updated_at = ? WHERE id = ?`
)

type EndpointRepository struct {
	db *sqlx.DB
}

func NewEndpointRepository(db *sqlx.DB) endpoint.Repository {
	return &EndpointRepository{db: db}
}

func (r *EndpointRepository) Create(ctx context.Context, e *endpoint.Endpoint) (*endpoint.Endpoint, error) {
	headers, err := encodeHeaders(e.Headers)
	if err != nil {
		return nil, err
	}
	auth, err := encodeAuthSpec(e.Auth)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create endpoint: begin")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, insertEndpointQuery,
		e.ProjectID, e.Name, e.Description, e.URL, e.Method, e.Users,
		nullableInt(e.Requests), nullableInt(e.DurationSec),
		e.ContentType, e.Body, headers, e.Insecure, e.RequiresAuth, auth, now, now,
	)
	if err != nil {
		return nil, errors.Wrap(err, "create endpoint")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "create endpoint: last insert id")
	}
	// A changed catalog bubbles up to the owning project's updatedAt.
	if _, err := tx.ExecContext(ctx, touchProjectQuery, now, e.ProjectID); err != nil {
		return nil, errors.Wrap(err, "create endpoint: touch project")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "create endpoint: commit")
	}
	return r.GetByID(ctx, id)
}

func (r *EndpointRepository) GetByID(ctx context.Context, id int64) (*endpoint.Endpoint, error) {
	var row models.Endpoint
	if err := r.db.GetContext(ctx, &row, selectEndpointByIDQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, endpoint.ErrNotFound
		}
		return nil, errors.Wrap(err, "get endpoint")
	}
	return toDomainEndpoint(&row)
}

func (r *EndpointRepository) ListByProject(ctx context.Context, projectID int64) ([]*endpoint.Endpoint, error) {
	var rows []models.Endpoint
	if err := r.db.SelectContext(ctx, &rows, selectEndpointsByProjectQuery, projectID); err != nil {
		return nil, errors.Wrap(err, "list endpoints")
	}
	endpoints := make([]*endpoint.Endpoint, 0, len(rows))
	for i := range rows {
		e, err := toDomainEndpoint(&rows[i])
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, nil
}

func (r *EndpointRepository) Update(ctx context.Context, e *endpoint.Endpoint) (*endpoint.Endpoint, error) {
	headers, err := encodeHeaders(e.Headers)
	if err != nil {
		return nil, err
	}
	auth, err := encodeAuthSpec(e.Auth)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "update endpoint: begin")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, updateEndpointQuery,
		e.Name, e.Description, e.URL, e.Method, e.Users,
		nullableInt(e.Requests), nullableInt(e.DurationSec),
		e.ContentType, e.Body, headers, e.Insecure, e.RequiresAuth, auth, now, e.ID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "update endpoint")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "update endpoint: rows affected")
	}
	if affected == 0 {
		return nil, endpoint.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, touchProjectQuery, now, e.ProjectID); err != nil {
		return nil, errors.Wrap(err, "update endpoint: touch project")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "update endpoint: commit")
	}
	return r.GetByID(ctx, e.ID)
}

func (r *EndpointRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deleteEndpointQuery, id)
	if err != nil {
		return errors.Wrap(err, "delete endpoint")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete endpoint: rows affected")
	}
	if affected == 0 {
		return endpoint.ErrNotFound
	}
	return nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
