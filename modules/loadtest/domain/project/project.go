// Package project holds the catalog root: a project groups endpoints and
// optionally carries the auth spec its endpoints inherit.
package project

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a project lookup misses.
var ErrNotFound = errors.New("project not found")

// AuthSpec describes how to acquire a bearer token before a run: one HTTP
// call whose JSON response holds the token at TokenPath (dot-separated
// object keys). The resulting header value is HeaderPrefix + token.
type AuthSpec struct {
	URL          string
	Method       string
	ContentType  string
	Body         string
	Headers      map[string]string
	TokenPath    string
	HeaderName   string
	HeaderPrefix string
}

type Project struct {
	ID          int64
	Name        string
	Description string
	Auth        *AuthSpec
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Repository interface {
	Create(ctx context.Context, p *Project) (*Project, error)
	GetByID(ctx context.Context, id int64) (*Project, error)
	// List returns all projects ordered by most recent update first.
	List(ctx context.Context) ([]*Project, error)
	Update(ctx context.Context, p *Project) (*Project, error)
	SetAuth(ctx context.Context, id int64, spec *AuthSpec) error
	ClearAuth(ctx context.Context, id int64) error
	// Delete cascades to the project's endpoints; runs recorded against
	// those endpoints survive with their endpoint link cleared.
	Delete(ctx context.Context, id int64) error
}
