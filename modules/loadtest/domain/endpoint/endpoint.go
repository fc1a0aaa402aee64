// Package endpoint holds the reusable target definitions a project owns.
// An endpoint captures everything a run needs: target URL, method, load
// shape and optional auth override.
package endpoint

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/project"
)

// ErrNotFound is returned when an endpoint lookup misses.
var ErrNotFound = errors.New("endpoint not found")

// Endpoint is one load-test target. Requests and DurationSec shape the
// load: at most one of them holds a value; when neither does the engine
// falls back to its request-count default. Auth, when set, overrides the
// owning project's auth spec. RequiresAuth marks the endpoint as needing a
// token even when the auth spec comes from the project.
type Endpoint struct {
	ID           int64
	ProjectID    int64
	Name         string
	Description  string
	URL          string
	Method       string
	Users        int
	Requests     *int
	DurationSec  *int
	ContentType  string
	Body         string
	Headers      map[string]string
	Insecure     bool
	RequiresAuth bool
	Auth         *project.AuthSpec
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EffectiveAuth picks the auth spec a run of this endpoint should use: the
// endpoint's own override when present, otherwise the owning project's.
func (e *Endpoint) EffectiveAuth(owner *project.Project) *project.AuthSpec {
	if e.Auth != nil {
		return e.Auth
	}
	if owner != nil {
		return owner.Auth
	}
	return nil
}

type Repository interface {
	Create(ctx context.Context, e *Endpoint) (*Endpoint, error)
	GetByID(ctx context.Context, id int64) (*Endpoint, error)
	// ListByProject returns the project's endpoints ordered by name.
	ListByProject(ctx context.Context, projectID int64) ([]*Endpoint, error)
	Update(ctx context.Context, e *Endpoint) (*Endpoint, error)
	// Delete removes the endpoint and clears the endpoint link on runs
	// recorded against it; the runs themselves survive.
	Delete(ctx context.Context, id int64) error
}
