package engine

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/run"
	"github.com/unhackeddev/nfury/modules/loadtest/stats"
	"github.com/unhackeddev/nfury/modules/loadtest/stream"
	"github.com/unhackeddev/nfury/pkg/metrics"
)

const (
	clientTimeout = 30 * time.Second

	// persistEvery thins the persisted timeline: one snapshot per this
	// many responses. The stream still sees every response.
	persistEvery     = 10
	persistQueueSize = 1024
)

// Sinks receives run telemetry. Stream is invoked synchronously for every
// sample and must not block. Persist receives every tenth sample on a
// dedicated writer goroutine so workers never wait on storage; Run drains
// the writer before returning.
type Sinks struct {
	Stream  func(stream.Sample)
	Persist func(run.Snapshot)
}

type Engine struct {
	logger *logrus.Logger
	sinks  Sinks
}

func New(logger *logrus.Logger, sinks Sinks) *Engine {
	return &Engine{logger: logger, sinks: sinks}
}

// Run executes the configured load and returns the final aggregate. It
// returns once every worker has exited and all queued snapshots are
// written. A cancelled context stops workers before their next request
// and aborts the in-flight one; the aggregate then covers the samples
// recorded up to that moment.
func (e *Engine) Run(ctx context.Context, cfg Config) (run.Aggregate, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return run.Aggregate{}, err
	}

	client := newClient(&cfg)
	defer client.CloseIdleConnections()

	col := newCollector()
	start := time.Now()

	var persistQueue chan run.Snapshot
	var writerDone chan struct{}
	if e.sinks.Persist != nil {
		persistQueue = make(chan run.Snapshot, persistQueueSize)
		writerDone = make(chan struct{})
		go func() {
			defer close(writerDone)
			for snap := range persistQueue {
				e.sinks.Persist(snap)
			}
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fatalOnce sync.Once
	var fatalErr error

	var wg sync.WaitGroup
	for i := 0; i < cfg.Users; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if recovered := recover(); recovered != nil {
					fatalOnce.Do(func() {
						fatalErr = errors.Errorf("worker panic: %v", recovered)
						cancel()
					})
				}
			}()
			e.worker(runCtx, client, &cfg, col, persistQueue, start)
		}()
	}
	wg.Wait()

	if persistQueue != nil {
		close(persistQueue)
		<-writerDone
	}

	agg := buildAggregate(col, time.Since(start))
	if fatalErr != nil {
		return agg, fatalErr
	}
	return agg, nil
}

// worker is one virtual user. Budget mode issues floor(R/U) requests;
// stragglers from R mod U are deliberately not redistributed, keeping
// workers symmetric. Duration mode loops until the deadline; the request
// in flight at the deadline is allowed to finish.
func (e *Engine) worker(
	ctx context.Context,
	client *http.Client,
	cfg *Config,
	col *collector,
	persistQueue chan<- run.Snapshot,
	start time.Time,
) {
	if cfg.Requests != nil {
		perWorker := *cfg.Requests / cfg.Users
		for i := 0; i < perWorker; i++ {
			if ctx.Err() != nil {
				return
			}
			e.doRequest(ctx, client, cfg, col, persistQueue)
		}
		return
	}

	deadline := start.Add(time.Duration(*cfg.DurationSec) * time.Second)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		e.doRequest(ctx, client, cfg, col, persistQueue)
	}
}

func (e *Engine) doRequest(
	ctx context.Context,
	client *http.Client,
	cfg *Config,
	col *collector,
	persistQueue chan<- run.Snapshot,
) {
	var body io.Reader
	if cfg.Body != "" {
		body = strings.NewReader(cfg.Body)
	}
	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, body)
	if err != nil {
		e.emit(cfg, col.record(http.StatusServiceUnavailable, 0, time.Now()), persistQueue)
		return
	}
	if cfg.ContentType != "" {
		req.Header.Set("Content-Type", cfg.ContentType)
	}
	for name, value := range cfg.Headers {
		req.Header.Set(name, value)
	}
	if cfg.AuthToken != "" {
		req.Header.Set(cfg.AuthHeader, cfg.AuthToken)
	}

	begin := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(begin).Milliseconds()

	var statusCode int
	if err != nil {
		if ctx.Err() != nil {
			// Aborted by cancellation, not refused by the target.
			return
		}
		statusCode = http.StatusServiceUnavailable
	} else {
		statusCode = resp.StatusCode
		// Headers only: close without draining so transfer time does not
		// inflate the latency measurement.
		resp.Body.Close()
	}

	e.emit(cfg, col.record(statusCode, elapsed, time.Now()), persistQueue)
}

func (e *Engine) emit(cfg *Config, p point, persistQueue chan<- run.Snapshot) {
	metrics.RecordRequest(p.statusCode, time.Duration(p.elapsedMs)*time.Millisecond)

	if e.sinks.Stream != nil {
		e.sinks.Stream(stream.Sample{
			RunToken:            cfg.RunToken,
			Timestamp:           p.timestamp,
			ResponseTimeMs:      p.elapsedMs,
			StatusCode:          p.statusCode,
			IsSuccess:           p.success,
			TotalRequests:       p.total,
			SuccessfulRequests:  p.successful,
			FailedRequests:      p.failed,
			CurrentRps:          p.currentRPS,
			AverageResponseTime: p.averageMs,
		})
	}

	if persistQueue == nil || p.requestID%persistEvery != 0 {
		return
	}
	snap := run.Snapshot{
		RequestID:           p.requestID,
		Timestamp:           p.timestamp,
		ResponseTimeMs:      p.elapsedMs,
		StatusCode:          p.statusCode,
		Success:             p.success,
		TotalRequests:       p.total,
		SuccessfulRequests:  p.successful,
		FailedRequests:      p.failed,
		CurrentRPS:          p.currentRPS,
		AverageResponseTime: p.averageMs,
	}
	select {
	case persistQueue <- snap:
	default:
		e.logger.WithField("request", p.requestID).Debug("snapshot queue full, dropping sample")
	}
}

func newClient(cfg *Config) *http.Client {
	return &http.Client{
		Timeout: clientTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Users,
			MaxIdleConnsPerHost: cfg.Users,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.Insecure},
		},
	}
}

func buildAggregate(col *collector, elapsed time.Duration) run.Aggregate {
	total, successful, failed, peak, samples := col.results()

	agg := run.Aggregate{
		TotalRequests:      total,
		SuccessfulRequests: successful,
		FailedRequests:     failed,
		RequestsPerSecond:  peak,
		TotalElapsedMs:     elapsed.Milliseconds(),
		StatusCodes:        map[int]stats.Summary{},
	}
	if total == 0 {
		return agg
	}

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Milliseconds
	}
	summary := stats.Summarize(values)
	agg.AverageResponseTime = summary.Avg
	agg.MinResponseTime = summary.Min
	agg.MaxResponseTime = summary.Max
	agg.P50 = summary.P50
	agg.P75 = summary.P75
	agg.P90 = summary.P90
	agg.P95 = summary.P95
	agg.P99 = summary.P99
	agg.StatusCodes = stats.GroupByStatus(samples)
	return agg
}
