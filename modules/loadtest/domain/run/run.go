package run

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/unhackeddev/nfury/modules/loadtest/stats"
)

// ErrNotFound is returned when a run lookup by id or token misses.
var ErrNotFound = errors.New("run not found")

// Status is the closed set of run states. A run is Running from creation
// until exactly one terminal transition.
type Status string

const (
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusCancelled Status = "Cancelled"
)

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Run records one load test execution. URL, method, user count and targets
// are captured at creation time so later edits of the source endpoint do
// not rewrite history. EndpointID is a weak link: deleting the endpoint
// clears it but keeps the run.
type Run struct {
	ID                int64
	Token             string
	EndpointID        *int64
	EndpointName      string
	ProjectID         *int64
	ProjectName       string
	URL               string
	Method            string
	Users             int
	TargetRequests    *int
	TargetDurationSec *int
	StartedAt         time.Time
	CompletedAt       *time.Time
	Status            Status
	ErrorMessage      string
	Aggregate         Aggregate
}

// Aggregate is the final result of a run. RequestsPerSecond carries the
// peak 1-second windowed rate observed during the run, not an average.
type Aggregate struct {
	TotalRequests       int64
	SuccessfulRequests  int64
	FailedRequests      int64
	RequestsPerSecond   float64
	AverageResponseTime float64
	MinResponseTime     float64
	MaxResponseTime     float64
	P50                 float64
	P75                 float64
	P90                 float64
	P95                 float64
	P99                 float64
	TotalElapsedMs      int64
	StatusCodes         map[int]stats.Summary
}

// Snapshot is one point of a run's live timeline: the response that
// produced it plus the running totals at that moment. Every snapshot is
// streamed; one in ten is persisted.
type Snapshot struct {
	ID                  int64
	RunID               int64
	RequestID           int64
	Timestamp           time.Time
	ResponseTimeMs      int64
	StatusCode          int
	Success             bool
	TotalRequests       int64
	SuccessfulRequests  int64
	FailedRequests      int64
	CurrentRPS          float64
	AverageResponseTime float64
}

// FindParams filters run searches. Nil fields match everything.
type FindParams struct {
	EndpointID *int64
	ProjectID  *int64
	Status     *Status
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// Statistics is the cross-run rollup: counts per terminal status plus
// averages over completed runs.
type Statistics struct {
	TotalRuns            int64
	CompletedRuns        int64
	FailedRuns           int64
	CancelledRuns        int64
	RunningRuns          int64
	TotalRequests        int64
	AvgResponseTime      float64
	AvgRequestsPerSecond float64
}

type Repository interface {
	Create(ctx context.Context, r *Run) (*Run, error)
	GetByToken(ctx context.Context, token string) (*Run, error)
	GetByID(ctx context.Context, id int64) (*Run, error)
	GetWithSnapshots(ctx context.Context, id int64) (*Run, []Snapshot, error)
	Complete(ctx context.Context, token string, agg Aggregate) error
	Fail(ctx context.Context, token string, errMsg string, agg Aggregate) error
	Cancel(ctx context.Context, token string, agg Aggregate) error
	ListRecent(ctx context.Context, limit int) ([]*Run, error)
	Search(ctx context.Context, params *FindParams) ([]*Run, int64, error)
	Delete(ctx context.Context, id int64) error
	// AppendSnapshot resolves the owning run by token and inserts the
	// snapshot. An unknown token is a silent no-op: the engine may emit
	// before the run row is visible, and telemetry must never fail a run.
	AppendSnapshot(ctx context.Context, token string, snap Snapshot) error
	ListSnapshots(ctx context.Context, runID int64) ([]Snapshot, error)
	Statistics(ctx context.Context, projectID, endpointID *int64) (*Statistics, error)
	ListByEndpoint(ctx context.Context, endpointID int64) ([]*Run, error)
}
