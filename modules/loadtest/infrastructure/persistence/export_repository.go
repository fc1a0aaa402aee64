package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/project"
	"github.com/unhackeddev/nfury/modules/loadtest/domain/run"
	"github.com/unhackeddev/nfury/modules/loadtest/infrastructure/persistence/models"
	"github.com/unhackeddev/nfury/modules/loadtest/stats"
)

// ExportVersion is the archive format version stamped into every bundle.
const ExportVersion = "1.0"

// importedNameSuffix marks a project created from an archive.
const importedNameSuffix = " (Imported)"

// ErrMissingProjectName is returned when an archive has no project name.
var ErrMissingProjectName = errors.New("import: project name is required")

// ErrMalformedArchive is returned when an archive is not a JSON document.
var ErrMalformedArchive = errors.New("import: malformed archive")

// Bundle is the archive of one project: its endpoints and, per endpoint,
// every historical run with full aggregates. Snapshots are ephemeral
// telemetry and stay out of archives.
type Bundle struct {
	Version    string        `json:"version"`
	ExportedAt time.Time     `json:"exportedAt"`
	Project    BundleProject `json:"project"`
}

type BundleProject struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Auth        *BundleAuthSpec  `json:"auth,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	Endpoints   []BundleEndpoint `json:"endpoints"`
}

type BundleAuthSpec struct {
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	ContentType  string            `json:"contentType,omitempty"`
	Body         string            `json:"body,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	TokenPath    string            `json:"tokenPath"`
	HeaderName   string            `json:"headerName"`
	HeaderPrefix string            `json:"headerPrefix"`
}

type BundleEndpoint struct {
	ID           int64             `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	Users        int               `json:"users"`
	Requests     *int              `json:"requests,omitempty"`
	DurationSec  *int              `json:"durationSec,omitempty"`
	ContentType  string            `json:"contentType,omitempty"`
	Body         string            `json:"body,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Insecure     bool              `json:"insecure"`
	RequiresAuth bool              `json:"requiresAuth"`
	Auth         *BundleAuthSpec   `json:"auth,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	Executions   []BundleRun       `json:"executions"`
}

type BundleRun struct {
	Token               string                      `json:"token"`
	URL                 string                      `json:"url"`
	Method              string                      `json:"method"`
	Users               int                         `json:"users"`
	TargetRequests      *int                        `json:"targetRequests,omitempty"`
	TargetDurationSec   *int                        `json:"targetDurationSec,omitempty"`
	StartedAt           time.Time                   `json:"startedAt"`
	CompletedAt         *time.Time                  `json:"completedAt,omitempty"`
	Status              string                      `json:"status"`
	ErrorMessage        string                      `json:"errorMessage,omitempty"`
	TotalRequests       int64                       `json:"totalRequests"`
	SuccessfulRequests  int64                       `json:"successfulRequests"`
	FailedRequests      int64                       `json:"failedRequests"`
	RequestsPerSecond   float64                     `json:"requestsPerSecond"`
	AverageResponseTime float64                     `json:"averageResponseTime"`
	MinResponseTime     float64                     `json:"minResponseTime"`
	MaxResponseTime     float64                     `json:"maxResponseTime"`
	Percentile50        float64                     `json:"percentile50"`
	Percentile75        float64                     `json:"percentile75"`
	Percentile90        float64                     `json:"percentile90"`
	Percentile95        float64                     `json:"percentile95"`
	Percentile99        float64                     `json:"percentile99"`
	TotalElapsedTime    int64                       `json:"totalElapsedTime"`
	StatusCodes         map[int]BundleStatusSummary `json:"statusCodes,omitempty"`
}

type BundleStatusSummary struct {
	Count               int64   `json:"count"`
	MinResponseTime     float64 `json:"minResponseTime"`
	AverageResponseTime float64 `json:"averageResponseTime"`
	MaxResponseTime     float64 `json:"maxResponseTime"`
	Percentile50        float64 `json:"percentile50"`
	Percentile75        float64 `json:"percentile75"`
	Percentile90        float64 `json:"percentile90"`
	Percentile95        float64 `json:"percentile95"`
	Percentile99        float64 `json:"percentile99"`
}

type ExportRepository struct {
	db *sqlx.DB
}

func NewExportRepository(db *sqlx.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// Export assembles the archive for one project.
func (r *ExportRepository) Export(ctx context.Context, projectID int64) (*Bundle, error) {
	var projectRow models.Project
	if err := r.db.GetContext(ctx, &projectRow, selectProjectByIDQuery, projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, project.ErrNotFound
		}
		return nil, errors.Wrap(err, "export: get project")
	}
	projectAuth, err := decodeAuthSpec(projectRow.AuthSpec)
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		Project: BundleProject{
			ID:          projectRow.ID,
			Name:        projectRow.Name,
			Description: projectRow.Description,
			Auth:        toBundleAuth(projectAuth),
			CreatedAt:   projectRow.CreatedAt,
			UpdatedAt:   projectRow.UpdatedAt,
			Endpoints:   []BundleEndpoint{},
		},
	}

	var endpointRows []models.Endpoint
	if err := r.db.SelectContext(ctx, &endpointRows, selectEndpointsByProjectQuery, projectID); err != nil {
		return nil, errors.Wrap(err, "export: list endpoints")
	}
	runs := NewRunRepository(r.db)
	for i := range endpointRows {
		e, err := toDomainEndpoint(&endpointRows[i])
		if err != nil {
			return nil, err
		}
		be := BundleEndpoint{
			ID:           e.ID,
			Name:         e.Name,
			Description:  e.Description,
			URL:          e.URL,
			Method:       e.Method,
			Users:        e.Users,
			Requests:     e.Requests,
			DurationSec:  e.DurationSec,
			ContentType:  e.ContentType,
			Body:         e.Body,
			Headers:      e.Headers,
			Insecure:     e.Insecure,
			RequiresAuth: e.RequiresAuth,
			Auth:         toBundleAuth(e.Auth),
			CreatedAt:    e.CreatedAt,
			UpdatedAt:    e.UpdatedAt,
			Executions:   []BundleRun{},
		}

		executions, err := runs.ListByEndpoint(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		for _, rn := range executions {
			statusCodes := make(map[int]BundleStatusSummary, len(rn.Aggregate.StatusCodes))
			for code, s := range rn.Aggregate.StatusCodes {
				statusCodes[code] = BundleStatusSummary{
					Count:               s.Count,
					MinResponseTime:     s.Min,
					AverageResponseTime: s.Avg,
					MaxResponseTime:     s.Max,
					Percentile50:        s.P50,
					Percentile75:        s.P75,
					Percentile90:        s.P90,
					Percentile95:        s.P95,
					Percentile99:        s.P99,
				}
			}
			be.Executions = append(be.Executions, BundleRun{
				Token:               rn.Token,
				URL:                 rn.URL,
				Method:              rn.Method,
				Users:               rn.Users,
				TargetRequests:      rn.TargetRequests,
				TargetDurationSec:   rn.TargetDurationSec,
				StartedAt:           rn.StartedAt,
				CompletedAt:         rn.CompletedAt,
				Status:              string(rn.Status),
				ErrorMessage:        rn.ErrorMessage,
				TotalRequests:       rn.Aggregate.TotalRequests,
				SuccessfulRequests:  rn.Aggregate.SuccessfulRequests,
				FailedRequests:      rn.Aggregate.FailedRequests,
				RequestsPerSecond:   rn.Aggregate.RequestsPerSecond,
				AverageResponseTime: rn.Aggregate.AverageResponseTime,
				MinResponseTime:     rn.Aggregate.MinResponseTime,
				MaxResponseTime:     rn.Aggregate.MaxResponseTime,
				Percentile50:        rn.Aggregate.P50,
				Percentile75:        rn.Aggregate.P75,
				Percentile90:        rn.Aggregate.P90,
				Percentile95:        rn.Aggregate.P95,
				Percentile99:        rn.Aggregate.P99,
				TotalElapsedTime:    rn.Aggregate.TotalElapsedMs,
				StatusCodes:         statusCodes,
			})
		}
		bundle.Project.Endpoints = append(bundle.Project.Endpoints, be)
	}
	return bundle, nil
}

// Import materializes an archive as a new project in one transaction.
// Unknown JSON fields were already dropped during decoding; run tokens are
// re-minted with an imported- prefix so archives can be loaded repeatedly.
func (r *ExportRepository) Import(ctx context.Context, raw []byte) (int64, error) {
	var bundle Bundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return 0, errors.Wrapf(ErrMalformedArchive, "%v", err)
	}
	if bundle.Project.Name == "" {
		return 0, ErrMissingProjectName
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "import: begin")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	projectAuth, err := encodeAuthSpec(fromBundleAuth(bundle.Project.Auth))
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, insertProjectQuery,
		bundle.Project.Name+importedNameSuffix, bundle.Project.Description, projectAuth, now, now)
	if err != nil {
		return 0, errors.Wrap(err, "import: create project")
	}
	projectID, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "import: project id")
	}

	for _, be := range bundle.Project.Endpoints {
		headers, err := encodeHeaders(be.Headers)
		if err != nil {
			return 0, err
		}
		endpointAuth, err := encodeAuthSpec(fromBundleAuth(be.Auth))
		if err != nil {
			return 0, err
		}
		createdAt := be.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		updatedAt := be.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		res, err := tx.ExecContext(ctx, insertEndpointQuery,
			projectID, be.Name, be.Description, be.URL, be.Method, be.Users,
			nullableInt(be.Requests), nullableInt(be.DurationSec),
			be.ContentType, be.Body, headers, be.Insecure, be.RequiresAuth, endpointAuth,
			createdAt, updatedAt,
		)
		if err != nil {
			return 0, errors.Wrapf(err, "import: create endpoint %q", be.Name)
		}
		endpointID, err := res.LastInsertId()
		if err != nil {
			return 0, errors.Wrap(err, "import: endpoint id")
		}

		for _, br := range be.Executions {
			if err := r.importRun(ctx, tx, endpointID, &br, now); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "import: commit")
	}
	return projectID, nil
}

func (r *ExportRepository) importRun(ctx context.Context, tx *sqlx.Tx, endpointID int64, br *BundleRun, now time.Time) error {
	startedAt := br.StartedAt
	if startedAt.IsZero() {
		startedAt = now
	}
	status := br.Status
	if status == "" {
		status = string(run.StatusCompleted)
	}
	token := "imported-" + uuid.New().String()
	_, err := tx.ExecContext(ctx, insertRunQuery,
		token, sql.NullInt64{Int64: endpointID, Valid: true}, br.URL, br.Method, br.Users,
		nullableInt(br.TargetRequests), nullableInt(br.TargetDurationSec),
		startedAt, status, br.ErrorMessage,
	)
	if err != nil {
		return errors.Wrap(err, "import: create run")
	}

	statusCodes := make(map[int]stats.Summary, len(br.StatusCodes))
	for code, s := range br.StatusCodes {
		statusCodes[code] = stats.Summary{
			Count: s.Count,
			Sum:   s.AverageResponseTime * float64(s.Count),
			Avg:   s.AverageResponseTime,
			Min:   s.MinResponseTime,
			Max:   s.MaxResponseTime,
			P50:   s.Percentile50,
			P75:   s.Percentile75,
			P90:   s.Percentile90,
			P95:   s.Percentile95,
			P99:   s.Percentile99,
		}
	}
	statusColumn, err := encodeStatusCodes(statusCodes)
	if err != nil {
		return err
	}

	completedAt := sql.NullTime{}
	if br.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *br.CompletedAt, Valid: true}
	}
	_, err = tx.ExecContext(ctx, finalizeRunQuery,
		status, completedAt, br.ErrorMessage,
		br.TotalRequests, br.SuccessfulRequests, br.FailedRequests,
		br.RequestsPerSecond, br.AverageResponseTime, br.MinResponseTime, br.MaxResponseTime,
		br.Percentile50, br.Percentile75, br.Percentile90, br.Percentile95, br.Percentile99,
		br.TotalElapsedTime, statusColumn,
		token,
	)
	if err != nil {
		return errors.Wrap(err, "import: store aggregates")
	}
	return nil
}

func toBundleAuth(spec *project.AuthSpec) *BundleAuthSpec {
	if spec == nil {
		return nil
	}
	return &BundleAuthSpec{
		URL:          spec.URL,
		Method:       spec.Method,
		ContentType:  spec.ContentType,
		Body:         spec.Body,
		Headers:      spec.Headers,
		TokenPath:    spec.TokenPath,
		HeaderName:   spec.HeaderName,
		HeaderPrefix: spec.HeaderPrefix,
	}
}

func fromBundleAuth(spec *BundleAuthSpec) *project.AuthSpec {
	if spec == nil {
		return nil
	}
	return &project.AuthSpec{
		URL:          spec.URL,
		Method:       spec.Method,
		ContentType:  spec.ContentType,
		Body:         spec.Body,
		Headers:      spec.Headers,
		TokenPath:    spec.TokenPath,
		HeaderName:   spec.HeaderName,
		HeaderPrefix: spec.HeaderPrefix,
	}
}
