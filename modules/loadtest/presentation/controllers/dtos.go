package controllers

import (
	"strings"
	"time"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/endpoint"
	"github.com/unhackeddev/nfury/modules/loadtest/domain/project"
	"github.com/unhackeddev/nfury/modules/loadtest/domain/run"
	"github.com/unhackeddev/nfury/modules/loadtest/services"
	"github.com/unhackeddev/nfury/modules/loadtest/stats"
	"github.com/unhackeddev/nfury/modules/loadtest/stream"
)

// defaultUsers applies when a request or endpoint leaves the user count
// unset. Matches the CLI default.
const defaultUsers = 10

type authSpecDTO struct {
	URL          string            `json:"url" validate:"required"`
	Method       string            `json:"method" validate:"omitempty,oneof=GET POST PUT DELETE PATCH HEAD OPTIONS"`
	ContentType  string            `json:"contentType"`
	Body         string            `json:"body"`
	Headers      map[string]string `json:"headers"`
	TokenPath    string            `json:"tokenPath" validate:"required"`
	HeaderName   string            `json:"headerName"`
	HeaderPrefix string            `json:"headerPrefix"`
}

func (d *authSpecDTO) normalize() {
	d.URL = strings.TrimSpace(d.URL)
	d.Method = strings.ToUpper(strings.TrimSpace(d.Method))
	d.TokenPath = strings.TrimSpace(d.TokenPath)
}

func (d *authSpecDTO) toDomain() *project.AuthSpec {
	if d == nil {
		return nil
	}
	return &project.AuthSpec{
		URL:          d.URL,
		Method:       d.Method,
		ContentType:  d.ContentType,
		Body:         d.Body,
		Headers:      d.Headers,
		TokenPath:    d.TokenPath,
		HeaderName:   d.HeaderName,
		HeaderPrefix: d.HeaderPrefix,
	}
}

func authSpecFromDomain(spec *project.AuthSpec) *authSpecDTO {
	if spec == nil {
		return nil
	}
	return &authSpecDTO{
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

type startRunRequest struct {
	URL         string            `json:"url" validate:"required"`
	Method      string            `json:"method" validate:"omitempty,oneof=GET POST PUT DELETE PATCH HEAD OPTIONS"`
	Users       int               `json:"users" validate:"omitempty,gte=1"`
	Requests    *int              `json:"requests" validate:"omitempty,gte=1"`
	DurationSec *int              `json:"durationSec" validate:"omitempty,gte=1"`
	Body        string            `json:"body"`
	ContentType string            `json:"contentType"`
	Headers     map[string]string `json:"headers"`
	Insecure    bool              `json:"insecure"`
	Auth        *authSpecDTO      `json:"auth"`
}

func (d *startRunRequest) normalize() {
	d.URL = strings.TrimSpace(d.URL)
	d.Method = strings.ToUpper(strings.TrimSpace(d.Method))
	if d.Users == 0 {
		d.Users = defaultUsers
	}
	if d.Auth != nil {
		d.Auth.normalize()
	}
}

func (d *startRunRequest) toServiceRequest() *services.RunRequest {
	return &services.RunRequest{
		URL:         d.URL,
		Method:      d.Method,
		Users:       d.Users,
		Requests:    d.Requests,
		DurationSec: d.DurationSec,
		Body:        d.Body,
		ContentType: d.ContentType,
		Headers:     d.Headers,
		Insecure:    d.Insecure,
		Auth:        d.Auth.toDomain(),
	}
}

type startEndpointRunRequest struct {
	Users *int `json:"users" validate:"omitempty,gte=1"`
}

type testAuthRequest struct {
	Auth     authSpecDTO `json:"auth" validate:"required"`
	Insecure bool        `json:"insecure"`
}

type testAuthResponse struct {
	OK    bool   `json:"ok"`
	Token string `json:"token"`
}

type stopRunResponse struct {
	Stopped bool `json:"stopped"`
}

type loadStatusResponse struct {
	Running   bool       `json:"running"`
	Token     string     `json:"token,omitempty"`
	URL       string     `json:"url,omitempty"`
	Method    string     `json:"method,omitempty"`
	Users     int        `json:"users,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

func loadStatusFromService(st services.RunStatus) loadStatusResponse {
	resp := loadStatusResponse{
		Running: st.Running,
		Token:   st.Token,
		URL:     st.URL,
		Method:  st.Method,
		Users:   st.Users,
	}
	if st.Running {
		startedAt := st.StartedAt
		resp.StartedAt = &startedAt
	}
	return resp
}

type projectRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (d *projectRequest) normalize() {
	d.Name = strings.TrimSpace(d.Name)
}

func (d *projectRequest) toDomain() *project.Project {
	return &project.Project{
		Name:        d.Name,
		Description: d.Description,
	}
}

type projectResponse struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Auth        *authSpecDTO `json:"auth,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func projectFromDomain(p *project.Project) projectResponse {
	return projectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Auth:        authSpecFromDomain(p.Auth),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func projectsFromDomain(items []*project.Project) []projectResponse {
	out := make([]projectResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectFromDomain(p))
	}
	return out
}

type endpointRequest struct {
	Name         string            `json:"name" validate:"required"`
	Description  string            `json:"description"`
	URL          string            `json:"url" validate:"required"`
	Method       string            `json:"method" validate:"omitempty,oneof=GET POST PUT DELETE PATCH HEAD OPTIONS"`
	Users        int               `json:"users" validate:"omitempty,gte=1"`
	Requests     *int              `json:"requests" validate:"omitempty,gte=1"`
	DurationSec  *int              `json:"durationSec" validate:"omitempty,gte=1"`
	ContentType  string            `json:"contentType"`
	Body         string            `json:"body"`
	Headers      map[string]string `json:"headers"`
	Insecure     bool              `json:"insecure"`
	RequiresAuth bool              `json:"requiresAuth"`
	Auth         *authSpecDTO      `json:"auth"`
}

func (d *endpointRequest) normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.URL = strings.TrimSpace(d.URL)
	d.Method = strings.ToUpper(strings.TrimSpace(d.Method))
	if d.Method == "" {
		d.Method = "GET"
	}
	if d.Users == 0 {
		d.Users = defaultUsers
	}
	if d.Auth != nil {
		d.Auth.normalize()
	}
}

func (d *endpointRequest) toDomain(projectID int64) *endpoint.Endpoint {
	return &endpoint.Endpoint{
		ProjectID:    projectID,
		Name:         d.Name,
		Description:  d.Description,
		URL:          d.URL,
		Method:       d.Method,
		Users:        d.Users,
		Requests:     d.Requests,
		DurationSec:  d.DurationSec,
		ContentType:  d.ContentType,
		Body:         d.Body,
		Headers:      d.Headers,
		Insecure:     d.Insecure,
		RequiresAuth: d.RequiresAuth,
		Auth:         d.Auth.toDomain(),
	}
}

type endpointResponse struct {
	ID           int64             `json:"id"`
	ProjectID    int64             `json:"projectId"`
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
	Auth         *authSpecDTO      `json:"auth,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

func endpointFromDomain(e *endpoint.Endpoint) endpointResponse {
	return endpointResponse{
		ID:           e.ID,
		ProjectID:    e.ProjectID,
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
		Auth:         authSpecFromDomain(e.Auth),
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func endpointsFromDomain(items []*endpoint.Endpoint) []endpointResponse {
	out := make([]endpointResponse, 0, len(items))
	for _, e := range items {
		out = append(out, endpointFromDomain(e))
	}
	return out
}

type runResponse struct {
	ID                  int64                          `json:"id"`
	Token               string                         `json:"token"`
	EndpointID          *int64                         `json:"endpointId,omitempty"`
	EndpointName        string                         `json:"endpointName,omitempty"`
	ProjectID           *int64                         `json:"projectId,omitempty"`
	ProjectName         string                         `json:"projectName,omitempty"`
	URL                 string                         `json:"url"`
	Method              string                         `json:"method"`
	Users               int                            `json:"users"`
	TargetRequests      *int                           `json:"targetRequests,omitempty"`
	TargetDurationSec   *int                           `json:"targetDurationSec,omitempty"`
	StartedAt           time.Time                      `json:"startedAt"`
	CompletedAt         *time.Time                     `json:"completedAt,omitempty"`
	Status              string                         `json:"status"`
	ErrorMessage        string                         `json:"errorMessage,omitempty"`
	TotalRequests       int64                          `json:"totalRequests"`
	SuccessfulRequests  int64                          `json:"successfulRequests"`
	FailedRequests      int64                          `json:"failedRequests"`
	RequestsPerSecond   float64                        `json:"requestsPerSecond"`
	AverageResponseTime float64                        `json:"averageResponseTime"`
	MinResponseTime     float64                        `json:"minResponseTime"`
	MaxResponseTime     float64                        `json:"maxResponseTime"`
	Percentile50        float64                        `json:"percentile50"`
	Percentile75        float64                        `json:"percentile75"`
	Percentile90        float64                        `json:"percentile90"`
	Percentile95        float64                        `json:"percentile95"`
	Percentile99        float64                        `json:"percentile99"`
	TotalElapsedTime    int64                          `json:"totalElapsedTime"`
	StatusCodes         map[int]stream.StatusAggregate `json:"statusCodes,omitempty"`
}

func runFromDomain(r *run.Run) runResponse {
	return runResponse{
		ID:                  r.ID,
		Token:               r.Token,
		EndpointID:          r.EndpointID,
		EndpointName:        r.EndpointName,
		ProjectID:           r.ProjectID,
		ProjectName:         r.ProjectName,
		URL:                 r.URL,
		Method:              r.Method,
		Users:               r.Users,
		TargetRequests:      r.TargetRequests,
		TargetDurationSec:   r.TargetDurationSec,
		StartedAt:           r.StartedAt,
		CompletedAt:         r.CompletedAt,
		Status:              string(r.Status),
		ErrorMessage:        r.ErrorMessage,
		TotalRequests:       r.Aggregate.TotalRequests,
		SuccessfulRequests:  r.Aggregate.SuccessfulRequests,
		FailedRequests:      r.Aggregate.FailedRequests,
		RequestsPerSecond:   r.Aggregate.RequestsPerSecond,
		AverageResponseTime: r.Aggregate.AverageResponseTime,
		MinResponseTime:     r.Aggregate.MinResponseTime,
		MaxResponseTime:     r.Aggregate.MaxResponseTime,
		Percentile50:        r.Aggregate.P50,
		Percentile75:        r.Aggregate.P75,
		Percentile90:        r.Aggregate.P90,
		Percentile95:        r.Aggregate.P95,
		Percentile99:        r.Aggregate.P99,
		TotalElapsedTime:    r.Aggregate.TotalElapsedMs,
		StatusCodes:         statusCodesToWire(r.Aggregate.StatusCodes),
	}
}

func runsFromDomain(items []*run.Run) []runResponse {
	out := make([]runResponse, 0, len(items))
	for _, r := range items {
		out = append(out, runFromDomain(r))
	}
	return out
}

func statusCodesToWire(codes map[int]stats.Summary) map[int]stream.StatusAggregate {
	if len(codes) == 0 {
		return nil
	}
	out := make(map[int]stream.StatusAggregate, len(codes))
	for code, s := range codes {
		out[code] = stream.StatusAggregate{
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
	return out
}

type snapshotResponse struct {
	ID                  int64     `json:"id"`
	RequestID           int64     `json:"requestId"`
	Timestamp           time.Time `json:"timestamp"`
	ResponseTimeMs      int64     `json:"responseTimeMs"`
	StatusCode          int       `json:"statusCode"`
	IsSuccess           bool      `json:"isSuccess"`
	TotalRequests       int64     `json:"totalRequests"`
	SuccessfulRequests  int64     `json:"successfulRequests"`
	FailedRequests      int64     `json:"failedRequests"`
	CurrentRps          float64   `json:"currentRps"`
	AverageResponseTime float64   `json:"averageResponseTime"`
}

func snapshotFromDomain(s run.Snapshot) snapshotResponse {
	return snapshotResponse{
		ID:                  s.ID,
		RequestID:           s.RequestID,
		Timestamp:           s.Timestamp,
		ResponseTimeMs:      s.ResponseTimeMs,
		StatusCode:          s.StatusCode,
		IsSuccess:           s.Success,
		TotalRequests:       s.TotalRequests,
		SuccessfulRequests:  s.SuccessfulRequests,
		FailedRequests:      s.FailedRequests,
		CurrentRps:          s.CurrentRPS,
		AverageResponseTime: s.AverageResponseTime,
	}
}

func snapshotsFromDomain(items []run.Snapshot) []snapshotResponse {
	out := make([]snapshotResponse, 0, len(items))
	for _, s := range items {
		out = append(out, snapshotFromDomain(s))
	}
	return out
}

type runTimelineResponse struct {
	Run       runResponse        `json:"run"`
	Snapshots []snapshotResponse `json:"snapshots"`
}

type runListResponse struct {
	Runs  []runResponse `json:"runs"`
	Total int64         `json:"total"`
}

type runStatisticsResponse struct {
	TotalRuns            int64   `json:"totalRuns"`
	CompletedRuns        int64   `json:"completedRuns"`
	FailedRuns           int64   `json:"failedRuns"`
	CancelledRuns        int64   `json:"cancelledRuns"`
	RunningRuns          int64   `json:"runningRuns"`
	TotalRequests        int64   `json:"totalRequests"`
	AvgResponseTime      float64 `json:"avgResponseTime"`
	AvgRequestsPerSecond float64 `json:"avgRequestsPerSecond"`
}

func statisticsFromDomain(st *run.Statistics) runStatisticsResponse {
	return runStatisticsResponse{
		TotalRuns:            st.TotalRuns,
		CompletedRuns:        st.CompletedRuns,
		FailedRuns:           st.FailedRuns,
		CancelledRuns:        st.CancelledRuns,
		RunningRuns:          st.RunningRuns,
		TotalRequests:        st.TotalRequests,
		AvgResponseTime:      st.AvgResponseTime,
		AvgRequestsPerSecond: st.AvgRequestsPerSecond,
	}
}
