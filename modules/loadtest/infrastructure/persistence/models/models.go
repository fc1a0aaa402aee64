package models

import (
	"database/sql"
	"time"
)

type Project struct {
	ID          int64          `db:"id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	AuthSpec    sql.NullString `db:"auth_spec"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

type Endpoint struct {
	ID           int64          `db:"id"`
	ProjectID    int64          `db:"project_id"`
	Name         string         `db:"name"`
	Description  string         `db:"description"`
	URL          string         `db:"url"`
	Method       string         `db:"method"`
	Users        int            `db:"users"`
	Requests     sql.NullInt64  `db:"requests"`
	DurationSec  sql.NullInt64  `db:"duration_sec"`
	ContentType  string         `db:"content_type"`
	Body         string         `db:"body"`
	Headers      sql.NullString `db:"headers"`
	Insecure     bool           `db:"insecure"`
	RequiresAuth bool           `db:"requires_auth"`
	AuthSpec     sql.NullString `db:"auth_spec"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// Run carries the stored row plus the endpoint and project names resolved
// by the repository's joins.
type Run struct {
	ID                  int64          `db:"id"`
	Token               string         `db:"token"`
	EndpointID          sql.NullInt64  `db:"endpoint_id"`
	URL                 string         `db:"url"`
	Method              string         `db:"method"`
	Users               int            `db:"users"`
	TargetRequests      sql.NullInt64  `db:"target_requests"`
	TargetDurationSec   sql.NullInt64  `db:"target_duration_sec"`
	StartedAt           time.Time      `db:"started_at"`
	CompletedAt         sql.NullTime   `db:"completed_at"`
	Status              string         `db:"status"`
	ErrorMessage        string         `db:"error_message"`
	TotalRequests       int64          `db:"total_requests"`
	SuccessfulRequests  int64          `db:"successful_requests"`
	FailedRequests      int64          `db:"failed_requests"`
	RequestsPerSecond   float64        `db:"requests_per_second"`
	AverageResponseTime float64        `db:"average_response_time"`
	MinResponseTime     float64        `db:"min_response_time"`
	MaxResponseTime     float64        `db:"max_response_time"`
	P50                 float64        `db:"p50"`
	P75                 float64        `db:"p75"`
	P90                 float64        `db:"p90"`
	P95                 float64        `db:"p95"`
	P99                 float64        `db:"p99"`
	TotalElapsedMs      int64          `db:"total_elapsed_ms"`
	StatusCodes         sql.NullString `db:"status_codes"`
	EndpointName        sql.NullString `db:"endpoint_name"`
	ProjectID           sql.NullInt64  `db:"project_id"`
	ProjectName         sql.NullString `db:"project_name"`
}

type RunSnapshot struct {
	ID                  int64     `db:"id"`
	RunID               int64     `db:"run_id"`
	RequestID           int64     `db:"request_id"`
	Timestamp           time.Time `db:"timestamp"`
	ResponseTimeMs      int64     `db:"response_time_ms"`
	StatusCode          int       `db:"status_code"`
	Success             bool      `db:"success"`
	TotalRequests       int64     `db:"total_requests"`
	SuccessfulRequests  int64     `db:"successful_requests"`
	FailedRequests      int64     `db:"failed_requests"`
	CurrentRPS          float64   `db:"current_rps"`
	AverageResponseTime float64   `db:"average_response_time"`
}
