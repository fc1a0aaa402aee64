package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/project"
	"github.com/unhackeddev/nfury/modules/loadtest/infrastructure/persistence/models"
)

const (
	projectColumns = `id, name, description, auth_spec, created_at, updated_at`

	selectProjectByIDQuery = `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`

	selectProjectsQuery = `SELECT ` + projectColumns + ` FROM projects ORDER BY updated_at DESC, id DESC`

	insertProjectQuery = `
		INSERT INTO projects (name, description, auth_spec, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`

	updateProjectQuery = `UPDATE projects SET name = ?, description = ?, updated_at = ? WHERE id = ?`

	updateProjectAuthQuery = `UPDATE projects SET auth_spec = ?, updated_at = ? WHERE id = ?`

	deleteProjectQuery = `DELETE FROM projects WHERE id = ?`
)

type ProjectRepository struct {
	db *sqlx.DB
}

func NewProjectRepository(db *sqlx.DB) project.Repository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, p *project.Project) (*project.Project, error) {
	auth, err := encodeAuthSpec(p.Auth)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, insertProjectQuery, p.Name, p.Description, auth, now, now)
	if err != nil {
		return nil, errors.Wrap(err, "create project")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "create project: last insert id")
	}
	return r.GetByID(ctx, id)
}

func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*project.Project, error) {
	var row models.Project
	if err := r.db.GetContext(ctx, &row, selectProjectByIDQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, project.ErrNotFound
		}
		return nil, errors.Wrap(err, "get project")
	}
	return toDomainProject(&row)
}

func (r *ProjectRepository) List(ctx context.Context) ([]*project.Project, error) {
	var rows []models.Project
	if err := r.db.SelectContext(ctx, &rows, selectProjectsQuery); err != nil {
		return nil, errors.Wrap(err, "list projects")
	}
	projects := make([]*project.Project, 0, len(rows))
	for i := range rows {
		p, err := toDomainProject(&rows[i])
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}

func (r *ProjectRepository) Update(ctx context.Context, p *project.Project) (*project.Project, error) {
	res, err := r.db.ExecContext(ctx, updateProjectQuery, p.Name, p.Description, time.Now().UTC(), p.ID)
	if err != nil {
		return nil, errors.Wrap(err, "update project")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "update project: rows affected")
	}
	if affected == 0 {
		return nil, project.ErrNotFound
	}
	return r.GetByID(ctx, p.ID)
}

func (r *ProjectRepository) SetAuth(ctx context.Context, id int64, spec *project.AuthSpec) error {
	auth, err := encodeAuthSpec(spec)
	if err != nil {
		return err
	}
	return r.updateAuth(ctx, id, auth)
}

func (r *ProjectRepository) ClearAuth(ctx context.Context, id int64) error {
	return r.updateAuth(ctx, id, sql.NullString{})
}

func (r *ProjectRepository) updateAuth(ctx context.Context, id int64, auth sql.NullString) error {
	res, err := r.db.ExecContext(ctx, updateProjectAuthQuery, auth, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "update project auth")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update project auth: rows affected")
	}
	if affected == 0 {
		return project.ErrNotFound
	}
	return nil
}

func (r *ProjectRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deleteProjectQuery, id)
	if err != nil {
		return errors.Wrap(err, "delete project")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete project: rows affected")
	}
	if affected == 0 {
		return project.ErrNotFound
	}
	return nil
}
