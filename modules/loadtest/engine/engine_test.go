package engine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/run"
	"github.com/unhackeddev/nfury/modules/loadtest/stream"
)

func newTestEngine(sinks Sinks) *Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(logger, sinks)
}

func intPtr(v int) *int {
	return &v
}

// sinkRecorder collects everything the engine fans out.
type sinkRecorder struct {
	mu        sync.Mutex
	samples   []stream.Sample
	snapshots []run.Snapshot
}

func (r *sinkRecorder) sinks() Sinks {
	return Sinks{
		Stream: func(s stream.Sample) {
			r.mu.Lock()
			r.samples = append(r.samples, s)
			r.mu.Unlock()
		},
		Persist: func(s run.Snapshot) {
			r.mu.Lock()
			r.snapshots = append(r.snapshots, s)
			r.mu.Unlock()
		},
	}
}

func (r *sinkRecorder) sampleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func (r *sinkRecorder) snapshotCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func TestRun_BudgetModeHitsExactTotals(t *testing.T) {
	const delay = 20 * time.Millisecond
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := &sinkRecorder{}
	agg, err := newTestEngine(rec.sinks()).Run(context.Background(), Config{
		RunToken: "tok",
		URL:      srv.URL,
		Method:   http.MethodGet,
		Users:    4,
		Requests: intPtr(100),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(100), agg.TotalRequests)
	assert.Equal(t, int64(100), agg.SuccessfulRequests)
	assert.Equal(t, int64(0), agg.FailedRequests)
	assert.Equal(t, agg.TotalRequests, agg.SuccessfulRequests+agg.FailedRequests)
	assert.Greater(t, agg.RequestsPerSecond, float64(0))

	// Latency floor is the handler's sleep; headers-only reads keep the
	// ceiling near it.
	assert.GreaterOrEqual(t, agg.MinResponseTime, float64(delay.Milliseconds()))
	assert.GreaterOrEqual(t, agg.AverageResponseTime, agg.MinResponseTime)
	assert.LessOrEqual(t, agg.MinResponseTime, agg.P50)
	assert.LessOrEqual(t, agg.P50, agg.P75)
	assert.LessOrEqual(t, agg.P75, agg.P90)
	assert.LessOrEqual(t, agg.P90, agg.P95)
	assert.LessOrEqual(t, agg.P95, agg.P99)
	assert.LessOrEqual(t, agg.P99, agg.MaxResponseTime)

	require.Contains(t, agg.StatusCodes, http.StatusOK)
	assert.Equal(t, int64(100), agg.StatusCodes[http.StatusOK].Count)

	assert.Equal(t, 100, rec.sampleCount())
}

func TestRun_BudgetFloorsPerWorker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// floor(10/4) = 2 per worker; the 2 stragglers are not redistributed.
	agg, err := newTestEngine(Sinks{}).Run(context.Background(), Config{
		URL:      srv.URL,
		Users:    4,
		Requests: intPtr(10),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), agg.TotalRequests)
}

func TestRun_MoreUsersThanRequestsYieldsZeroSamples(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	agg, err := newTestEngine(Sinks{}).Run(context.Background(), Config{
		URL:      srv.URL,
		Users:    10,
		Requests: intPtr(5),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), agg.TotalRequests)
	assert.Equal(t, int64(0), hits.Load())
	assert.Equal(t, float64(0), agg.RequestsPerSecond)
	assert.Empty(t, agg.StatusCodes)
}

func TestRun_DefaultsToHundredRequests(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	agg, err := newTestEngine(Sinks{}).Run(context.Background(), Config{
		URL:   srv.URL,
		Users: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), agg.TotalRequests)
	assert.Equal(t, int64(100), hits.Load())
}

func TestRun_DurationModeRunsToDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	started := time.Now()
	rec := &sinkRecorder{}
	agg, err := newTestEngine(rec.sinks()).Run(context.Background(), Config{
		RunToken:    "tok",
		URL:         srv.URL,
		Users:       2,
		DurationSec: intPtr(2),
	})
	require.NoError(t, err)
	completed := time.Now()

	assert.Greater(t, agg.TotalRequests, int64(0))
	assert.GreaterOrEqual(t, agg.TotalElapsedMs, int64(2000))
	assert.LessOrEqual(t, agg.TotalElapsedMs, int64(2500))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, snap := range rec.snapshots {
		assert.False(t, snap.Timestamp.Before(started))
		assert.False(t, snap.Timestamp.After(completed))
	}
}

func TestRun_CancellationStopsPromptly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()

	started := time.Now()
	agg, err := newTestEngine(Sinks{}).Run(ctx, Config{
		URL:         srv.URL,
		Users:       2,
		DurationSec: intPtr(10),
	})
	require.NoError(t, err)

	// Nowhere near the 10s deadline.
	assert.Less(t, time.Since(started), 2*time.Second)
	assert.Greater(t, agg.TotalRequests, int64(0))
	assert.Equal(t, agg.TotalRequests, agg.SuccessfulRequests+agg.FailedRequests)
}

func TestRun_TransportFailureRecordsServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := srv.URL
	srv.Close()

	agg, err := newTestEngine(Sinks{}).Run(context.Background(), Config{
		URL:      deadURL,
		Users:    1,
		Requests: intPtr(2),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), agg.TotalRequests)
	assert.Equal(t, int64(0), agg.SuccessfulRequests)
	assert.Equal(t, int64(2), agg.FailedRequests)
	require.Contains(t, agg.StatusCodes, http.StatusServiceUnavailable)
	assert.Equal(t, int64(2), agg.StatusCodes[http.StatusServiceUnavailable].Count)
}

func TestRun_RequestCarriesHeadersBodyAndBearer(t *testing.T) {
	type seen struct {
		method, contentType, auth, custom, body string
	}
	var mu sync.Mutex
	var first *seen
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := io.ReadAll(r.Body)
		mu.Lock()
		if first == nil {
			first = &seen{
				method:      r.Method,
				contentType: r.Header.Get("Content-Type"),
				auth:        r.Header.Get("Authorization"),
				custom:      r.Header.Get("X-Trace"),
				body:        string(payload),
			}
		}
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	agg, err := newTestEngine(Sinks{}).Run(context.Background(), Config{
		URL:         srv.URL,
		Method:      "post",
		Users:       1,
		Requests:    intPtr(3),
		Body:        `{"k":"v"}`,
		ContentType: "application/json",
		Headers:     map[string]string{"X-Trace": "t-1"},
		AuthToken:   "Bearer abc",
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, first)
	assert.Equal(t, http.MethodPost, first.method)
	assert.Equal(t, "application/json", first.contentType)
	assert.Equal(t, "Bearer abc", first.auth)
	assert.Equal(t, "t-1", first.custom)
	assert.Equal(t, `{"k":"v"}`, first.body)

	// 201 is a success.
	assert.Equal(t, int64(3), agg.SuccessfulRequests)
}

func TestRun_PersistsEveryTenthSample(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := &sinkRecorder{}
	agg, err := newTestEngine(rec.sinks()).Run(context.Background(), Config{
		RunToken: "tok",
		URL:      srv.URL,
		Users:    2,
		Requests: intPtr(20),
	})
	require.NoError(t, err)
	require.Equal(t, int64(20), agg.TotalRequests)

	assert.Equal(t, 20, rec.sampleCount())
	require.Equal(t, 2, rec.snapshotCount())
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, snap := range rec.snapshots {
		assert.Zero(t, snap.RequestID%10)
	}
}

func TestRun_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"missing url", Config{Users: 1}, ErrMissingURL},
		{"zero users", Config{URL: "http://localhost:1"}, ErrInvalidUsers},
		{"negative users", Config{URL: "http://localhost:1", Users: -3}, ErrInvalidUsers},
		{
			"both criteria",
			Config{URL: "http://localhost:1", Users: 1, Requests: intPtr(10), DurationSec: intPtr(5)},
			ErrBothCriteria,
		},
		{
			"zero budget",
			Config{URL: "http://localhost:1", Users: 1, Requests: intPtr(0)},
			ErrInvalidRequests,
		},
		{
			"zero duration",
			Config{URL: "http://localhost:1", Users: 1, DurationSec: intPtr(0)},
			ErrInvalidDuration,
		},
		{
			"unknown method",
			Config{URL: "http://localhost:1", Users: 1, Method: "FROB", Requests: intPtr(1)},
			ErrUnknownMethod,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestEngine(Sinks{}).Run(context.Background(), tt.cfg)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestCollector_WindowedRPSEvictsStaleEntries(t *testing.T) {
	col := newCollector()
	base := time.Now()

	for i := 0; i < 5; i++ {
		col.record(http.StatusOK, 1, base.Add(time.Duration(i)*time.Millisecond))
	}
	p := col.record(http.StatusOK, 1, base.Add(10*time.Millisecond))
	assert.Equal(t, float64(6), p.currentRPS)

	// Two seconds later the window holds only the new arrival, while the
	// peak remembers the burst.
	p = col.record(http.StatusOK, 1, base.Add(2*time.Second))
	assert.Equal(t, float64(1), p.currentRPS)

	_, _, _, peak, _ := col.results()
	assert.Equal(t, float64(6), peak)
}

func TestCollector_ReportedRateIsPeakNotAverage(t *testing.T) {
	col := newCollector()
	base := time.Now()

	// Burst of 10 in the first 100ms, then a sparse tail: the average over
	// the whole span is far below the burst rate.
	for i := 0; i < 10; i++ {
		col.record(http.StatusOK, 1, base.Add(time.Duration(i)*10*time.Millisecond))
	}
	for i := 0; i < 4; i++ {
		col.record(http.StatusOK, 1, base.Add(3*time.Second).Add(time.Duration(i)*900*time.Millisecond))
	}

	_, _, _, peak, samples := col.results()
	assert.Len(t, samples, 14)
	assert.GreaterOrEqual(t, peak, float64(10))
}
