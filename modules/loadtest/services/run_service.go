package services

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/endpoint"
	"github.com/unhackeddev/nfury/modules/loadtest/domain/project"
	"github.com/unhackeddev/nfury/modules/loadtest/domain/run"
	"github.com/unhackeddev/nfury/modules/loadtest/engine"
	"github.com/unhackeddev/nfury/modules/loadtest/stream"
	"github.com/unhackeddev/nfury/modules/loadtest/tokenfetch"
	"github.com/unhackeddev/nfury/pkg/eventbus"
	"github.com/unhackeddev/nfury/pkg/metrics"
)

// ErrRunInProgress rejects a start while another run holds the slot.
var ErrRunInProgress = errors.New("a load test is already running")

// RunRequest is an inline run description, used by the ad-hoc API and the
// CLI. Auth, when present, is fetched before the engine starts.
type RunRequest struct {
	URL         string
	Method      string
	Users       int
	Requests    *int
	DurationSec *int
	Body        string
	ContentType string
	Headers     map[string]string
	Insecure    bool
	Auth        *project.AuthSpec
}

// RunStatus describes the active slot.
type RunStatus struct {
	Running   bool
	Token     string
	URL       string
	Method    string
	Users     int
	StartedAt time.Time
}

type activeRun struct {
	token     string
	url       string
	method    string
	users     int
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// RunService owns the single run slot: it admits one run at a time,
// drives authentication and the engine, and persists the terminal state
// before the terminal stream event goes out.
type RunService struct {
	runs      run.Repository
	endpoints endpoint.Repository
	projects  project.Repository
	hub       *stream.Hub
	fetcher   *tokenfetch.Fetcher
	publisher eventbus.EventBus
	logger    *logrus.Logger

	mu     sync.Mutex
	active *activeRun
}

func NewRunService(
	runs run.Repository,
	endpoints endpoint.Repository,
	projects project.Repository,
	hub *stream.Hub,
	fetcher *tokenfetch.Fetcher,
	publisher eventbus.EventBus,
	logger *logrus.Logger,
) *RunService {
	return &RunService{
		runs:      runs,
		endpoints: endpoints,
		projects:  projects,
		hub:       hub,
		fetcher:   fetcher,
		publisher: publisher,
		logger:    logger,
	}
}

// StartAdHocRun launches a run from an inline request.
func (s *RunService) StartAdHocRun(ctx context.Context, req *RunRequest) (*run.Run, error) {
	cfg := engine.Config{
		URL:         req.URL,
		Method:      req.Method,
		Users:       req.Users,
		Requests:    req.Requests,
		DurationSec: req.DurationSec,
		Body:        req.Body,
		ContentType: req.ContentType,
		Headers:     req.Headers,
		Insecure:    req.Insecure,
	}
	return s.start(ctx, cfg, req.Auth, nil)
}

// StartEndpointRun launches a run from a stored endpoint. The endpoint's
// auth override wins over the owning project's spec; users can be
// overridden per start.
func (s *RunService) StartEndpointRun(ctx context.Context, endpointID int64, usersOverride *int) (*run.Run, error) {
	e, err := s.endpoints.GetByID(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	owner, err := s.projects.GetByID(ctx, e.ProjectID)
	if err != nil {
		return nil, err
	}

	users := e.Users
	if usersOverride != nil && *usersOverride > 0 {
		users = *usersOverride
	}
	cfg := engine.Config{
		URL:         e.URL,
		Method:      e.Method,
		Users:       users,
		Requests:    e.Requests,
		DurationSec: e.DurationSec,
		Body:        e.Body,
		ContentType: e.ContentType,
		Headers:     e.Headers,
		Insecure:    e.Insecure,
	}

	var auth *project.AuthSpec
	if e.RequiresAuth {
		auth = e.EffectiveAuth(owner)
		if auth == nil {
			s.logger.WithField("endpoint", e.ID).Warn("endpoint requires auth but no spec is configured, skipping authentication")
		}
	}
	return s.start(ctx, cfg, auth, &e.ID)
}

func (s *RunService) start(ctx context.Context, cfg engine.Config, auth *project.AuthSpec, endpointID *int64) (*run.Run, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return nil, ErrRunInProgress
	}
	// The run outlives the start request: it stops through Stop(), not
	// through the caller's context.
	runCtx, cancel := context.WithCancel(context.Background())
	act := &activeRun{
		token:     uuid.New().String(),
		url:       cfg.URL,
		method:    cfg.Method,
		users:     cfg.Users,
		startedAt: time.Now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.active = act
	s.mu.Unlock()

	cfg.RunToken = act.token
	created, err := s.runs.Create(ctx, &run.Run{
		Token:             act.token,
		EndpointID:        endpointID,
		URL:               cfg.URL,
		Method:            cfg.Method,
		Users:             cfg.Users,
		TargetRequests:    cfg.Requests,
		TargetDurationSec: cfg.DurationSec,
		StartedAt:         act.startedAt,
		Status:            run.StatusRunning,
	})
	if err != nil {
		cancel()
		s.mu.Lock()
		s.active = nil
		s.mu.Unlock()
		close(act.done)
		return nil, errors.Wrap(err, "start run")
	}

	metrics.RecordRunStarted()
	s.publisher.Publish(run.StartedEvent{Result: created})
	go s.execute(runCtx, act, cfg, auth)
	return created, nil
}

func (s *RunService) execute(ctx context.Context, act *activeRun, cfg engine.Config, auth *project.AuthSpec) {
	defer func() {
		s.mu.Lock()
		if s.active == act {
			s.active = nil
		}
		s.mu.Unlock()
		close(act.done)
	}()

	log := s.logger.WithField("run", act.token)
	// Terminal writes must land even when the run context is long gone.
	persistCtx := context.Background()

	if auth != nil {
		s.hub.AuthStarted(act.token)
		token, err := s.fetcher.Fetch(ctx, auth, cfg.Insecure)
		if err != nil {
			log.WithError(err).Error("authentication failed, run aborted")
			if perr := s.runs.Fail(persistCtx, act.token, "authentication failed: "+err.Error(), run.Aggregate{}); perr != nil {
				log.WithError(perr).Error("failed to persist failed run")
			}
			metrics.RecordRunFinished(string(run.StatusFailed))
			s.publisher.Publish(run.FinishedEvent{Token: act.token, Status: run.StatusFailed})
			s.hub.AuthFailed(act.token, err)
			s.hub.RunFailed(act.token, err)
			return
		}
		cfg.AuthToken = token
		cfg.AuthHeader = auth.HeaderName
		s.hub.AuthSucceeded(act.token)
	}

	eng := engine.New(s.logger, engine.Sinks{
		Stream: s.hub.Metric,
		Persist: func(snap run.Snapshot) {
			if err := s.runs.AppendSnapshot(context.Background(), act.token, snap); err != nil {
				log.WithError(err).Debug("snapshot append failed")
			}
		},
	})
	agg, err := eng.Run(ctx, cfg)

	switch {
	case ctx.Err() != nil:
		// Stopped. The partial aggregate is persisted; the stream stays
		// silent so subscribers cannot mistake the stop for a result.
		if perr := s.runs.Cancel(persistCtx, act.token, agg); perr != nil {
			log.WithError(perr).Error("failed to persist cancelled run")
		}
		metrics.RecordRunFinished(string(run.StatusCancelled))
		s.publisher.Publish(run.FinishedEvent{Token: act.token, Status: run.StatusCancelled})
		log.WithField("requests", agg.TotalRequests).Info("run cancelled")
	case err != nil:
		if perr := s.runs.Fail(persistCtx, act.token, err.Error(), agg); perr != nil {
			log.WithError(perr).Error("failed to persist failed run")
		}
		metrics.RecordRunFinished(string(run.StatusFailed))
		s.publisher.Publish(run.FinishedEvent{Token: act.token, Status: run.StatusFailed})
		s.hub.RunFailed(act.token, err)
		log.WithError(err).Error("run failed")
	default:
		if perr := s.runs.Complete(persistCtx, act.token, agg); perr != nil {
			log.WithError(perr).Error("failed to persist completed run")
		}
		metrics.RecordRunFinished(string(run.StatusCompleted))
		s.publisher.Publish(run.FinishedEvent{Token: act.token, Status: run.StatusCompleted})
		s.hub.Completed(resultFromAggregate(act.token, agg))
		log.WithFields(logrus.Fields{
			"requests": agg.TotalRequests,
			"rps":      agg.RequestsPerSecond,
		}).Info("run completed")
	}
}

// Stop cancels the active run. It reports whether there was one; the run
// transitions to Cancelled asynchronously.
func (s *RunService) Stop() bool {
	s.mu.Lock()
	act := s.active
	s.mu.Unlock()
	if act == nil {
		return false
	}
	act.cancel()
	return true
}

func (s *RunService) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

func (s *RunService) Status() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return RunStatus{}
	}
	return RunStatus{
		Running:   true,
		Token:     s.active.token,
		URL:       s.active.url,
		Method:    s.active.method,
		Users:     s.active.users,
		StartedAt: s.active.startedAt,
	}
}

// Done returns a channel closed once the run with the given token has
// fully finished, terminal state persisted and stream notified. For an
// unknown or already finished token the channel is already closed.
func (s *RunService) Done(token string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.token == token {
		return s.active.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// TestAuth exercises an auth spec without starting a run.
func (s *RunService) TestAuth(ctx context.Context, spec *project.AuthSpec, insecure bool) (string, error) {
	return s.fetcher.Fetch(ctx, spec, insecure)
}

// Subscribe attaches a metric stream subscriber.
func (s *RunService) Subscribe() *stream.Subscription {
	return s.hub.Subscribe()
}

func (s *RunService) Unsubscribe(id string) {
	s.hub.Unsubscribe(id)
}

func (s *RunService) GetByID(ctx context.Context, id int64) (*run.Run, error) {
	return s.runs.GetByID(ctx, id)
}

func (s *RunService) GetByToken(ctx context.Context, token string) (*run.Run, error) {
	return s.runs.GetByToken(ctx, token)
}

// Timeline returns a run with its persisted snapshots in insert order.
func (s *RunService) Timeline(ctx context.Context, id int64) (*run.Run, []run.Snapshot, error) {
	return s.runs.GetWithSnapshots(ctx, id)
}

func (s *RunService) ListRecent(ctx context.Context, limit int) ([]*run.Run, error) {
	return s.runs.ListRecent(ctx, limit)
}

func (s *RunService) Search(ctx context.Context, params *run.FindParams) ([]*run.Run, int64, error) {
	return s.runs.Search(ctx, params)
}

func (s *RunService) Statistics(ctx context.Context, projectID, endpointID *int64) (*run.Statistics, error) {
	return s.runs.Statistics(ctx, projectID, endpointID)
}

func (s *RunService) Delete(ctx context.Context, id int64) error {
	if err := s.runs.Delete(ctx, id); err != nil {
		return err
	}
	s.publisher.Publish(run.DeletedEvent{ID: id})
	return nil
}

func resultFromAggregate(token string, agg run.Aggregate) stream.Result {
	statusCodes := make(map[int]stream.StatusAggregate, len(agg.StatusCodes))
	for code, s := range agg.StatusCodes {
		statusCodes[code] = stream.StatusAggregate{
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
	return stream.Result{
		RunToken:            token,
		TotalRequests:       agg.TotalRequests,
		SuccessfulRequests:  agg.SuccessfulRequests,
		FailedRequests:      agg.FailedRequests,
		RequestsPerSecond:   agg.RequestsPerSecond,
		AverageResponseTime: agg.AverageResponseTime,
		MinResponseTime:     agg.MinResponseTime,
		MaxResponseTime:     agg.MaxResponseTime,
		Percentile50:        agg.P50,
		Percentile75:        agg.P75,
		Percentile90:        agg.P90,
		Percentile95:        agg.P95,
		Percentile99:        agg.P99,
		TotalElapsedTime:    agg.TotalElapsedMs,
		StatusCodes:         statusCodes,
	}
}
