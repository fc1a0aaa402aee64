package persistence

import (
	"database/sql"
	"encoding/json"
	"strconv"

	"github.com/go-faster/errors"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/endpoint"
	"github.com/unhackeddev/nfury/modules/loadtest/domain/project"
	"github.com/unhackeddev/nfury/modules/loadtest/domain/run"
	"github.com/unhackeddev/nfury/modules/loadtest/infrastructure/persistence/models"
	"github.com/unhackeddev/nfury/modules/loadtest/stats"
)

// Column JSON shapes. These are storage formats, pinned here so domain
// struct renames cannot silently change what is on disk.

type authSpecJSON struct {
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	ContentType  string            `json:"contentType,omitempty"`
	Body         string            `json:"body,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	TokenPath    string            `json:"tokenPath"`
	HeaderName   string            `json:"headerName"`
	HeaderPrefix string            `json:"headerPrefix"`
}

type statusSummaryJSON struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

func encodeAuthSpec(spec *project.AuthSpec) (sql.NullString, error) {
	if spec == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(authSpecJSON{
		URL:          spec.URL,
		Method:       spec.Method,
		ContentType:  spec.ContentType,
		Body:         spec.Body,
		Headers:      spec.Headers,
		TokenPath:    spec.TokenPath,
		HeaderName:   spec.HeaderName,
		HeaderPrefix: spec.HeaderPrefix,
	})
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "encode auth spec")
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodeAuthSpec(column sql.NullString) (*project.AuthSpec, error) {
	if !column.Valid || column.String == "" {
		return nil, nil
	}
	var stored authSpecJSON
	if err := json.Unmarshal([]byte(column.String), &stored); err != nil {
		return nil, errors.Wrap(err, "decode auth spec")
	}
	return &project.AuthSpec{
		URL:          stored.URL,
		Method:       stored.Method,
		ContentType:  stored.ContentType,
		Body:         stored.Body,
		Headers:      stored.Headers,
		TokenPath:    stored.TokenPath,
		HeaderName:   stored.HeaderName,
		HeaderPrefix: stored.HeaderPrefix,
	}, nil
}

func encodeHeaders(headers map[string]string) (sql.NullString, error) {
	if len(headers) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(headers)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "encode headers")
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodeHeaders(column sql.NullString) (map[string]string, error) {
	if !column.Valid || column.String == "" {
		return nil, nil
	}
	var headers map[string]string
	if err := json.Unmarshal([]byte(column.String), &headers); err != nil {
		return nil, errors.Wrap(err, "decode headers")
	}
	return headers, nil
}

func encodeStatusCodes(codes map[int]stats.Summary) (sql.NullString, error) {
	if len(codes) == 0 {
		return sql.NullString{}, nil
	}
	stored := make(map[string]statusSummaryJSON, len(codes))
	for code, s := range codes {
		stored[strconv.Itoa(code)] = statusSummaryJSON{
			Count: s.Count,
			Sum:   s.Sum,
			Avg:   s.Avg,
			Min:   s.Min,
			Max:   s.Max,
			P50:   s.P50,
			P75:   s.P75,
			P90:   s.P90,
			P95:   s.P95,
			P99:   s.P99,
		}
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "encode status codes")
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodeStatusCodes(column sql.NullString) (map[int]stats.Summary, error) {
	out := map[int]stats.Summary{}
	if !column.Valid || column.String == "" {
		return out, nil
	}
	var stored map[string]statusSummaryJSON
	if err := json.Unmarshal([]byte(column.String), &stored); err != nil {
		return nil, errors.Wrap(err, "decode status codes")
	}
	for key, s := range stored {
		code, err := strconv.Atoi(key)
		if err != nil {
			return nil, errors.Wrapf(err, "status code key %q", key)
		}
		out[code] = stats.Summary{
			Count: s.Count,
			Sum:   s.Sum,
			Avg:   s.Avg,
			Min:   s.Min,
			Max:   s.Max,
			P50:   s.P50,
			P75:   s.P75,
			P90:   s.P90,
			P95:   s.P95,
			P99:   s.P99,
		}
	}
	return out, nil
}

func toDomainProject(row *models.Project) (*project.Project, error) {
	auth, err := decodeAuthSpec(row.AuthSpec)
	if err != nil {
		return nil, err
	}
	return &project.Project{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Auth:        auth,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

func toDomainEndpoint(row *models.Endpoint) (*endpoint.Endpoint, error) {
	headers, err := decodeHeaders(row.Headers)
	if err != nil {
		return nil, err
	}
	auth, err := decodeAuthSpec(row.AuthSpec)
	if err != nil {
		return nil, err
	}
	e := &endpoint.Endpoint{
		ID:           row.ID,
		ProjectID:    row.ProjectID,
		Name:         row.Name,
		Description:  row.Description,
		URL:          row.URL,
		Method:       row.Method,
		Users:        row.Users,
		ContentType:  row.ContentType,
		Body:         row.Body,
		Headers:      headers,
		Insecure:     row.Insecure,
		RequiresAuth: row.RequiresAuth,
		Auth:         auth,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if row.Requests.Valid {
		v := int(row.Requests.Int64)
		e.Requests = &v
	}
	if row.DurationSec.Valid {
		v := int(row.DurationSec.Int64)
		e.DurationSec = &v
	}
	return e, nil
}

func toDomainRun(row *models.Run) (*run.Run, error) {
	statusCodes, err := decodeStatusCodes(row.StatusCodes)
	if err != nil {
		return nil, err
	}
	r := &run.Run{
		ID:           row.ID,
		Token:        row.Token,
		URL:          row.URL,
		Method:       row.Method,
		Users:        row.Users,
		StartedAt:    row.StartedAt,
		Status:       run.Status(row.Status),
		ErrorMessage: row.ErrorMessage,
		Aggregate: run.Aggregate{
			TotalRequests:       row.TotalRequests,
			SuccessfulRequests:  row.SuccessfulRequests,
			FailedRequests:      row.FailedRequests,
			RequestsPerSecond:   row.RequestsPerSecond,
			AverageResponseTime: row.AverageResponseTime,
			MinResponseTime:     row.MinResponseTime,
			MaxResponseTime:     row.MaxResponseTime,
			P50:                 row.P50,
			P75:                 row.P75,
			P90:                 row.P90,
			P95:                 row.P95,
			P99:                 row.P99,
			TotalElapsedMs:      row.TotalElapsedMs,
			StatusCodes:         statusCodes,
		},
	}
	if row.EndpointID.Valid {
		v := row.EndpointID.Int64
		r.EndpointID = &v
	}
	if row.TargetRequests.Valid {
		v := int(row.TargetRequests.Int64)
		r.TargetRequests = &v
	}
	if row.TargetDurationSec.Valid {
		v := int(row.TargetDurationSec.Int64)
		r.TargetDurationSec = &v
	}
	if row.CompletedAt.Valid {
		v := row.CompletedAt.Time
		r.CompletedAt = &v
	}
	if row.EndpointName.Valid {
		r.EndpointName = row.EndpointName.String
	}
	if row.ProjectID.Valid {
		v := row.ProjectID.Int64
		r.ProjectID = &v
	}
	if row.ProjectName.Valid {
		r.ProjectName = row.ProjectName.String
	}
	return r, nil
}

func toDomainSnapshot(row *models.RunSnapshot) run.Snapshot {
	return run.Snapshot{
		ID:                  row.ID,
		RunID:               row.RunID,
		RequestID:           row.RequestID,
		Timestamp:           row.Timestamp,
		ResponseTimeMs:      row.ResponseTimeMs,
		StatusCode:          row.StatusCode,
		Success:             row.Success,
		TotalRequests:       row.TotalRequests,
		SuccessfulRequests:  row.SuccessfulRequests,
		FailedRequests:      row.FailedRequests,
		CurrentRPS:          row.CurrentRPS,
		AverageResponseTime: row.AverageResponseTime,
	}
}
