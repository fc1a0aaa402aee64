package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/run"
	"github.com/unhackeddev/nfury/modules/loadtest/stats"
)

func TestANSIResultWriter_RendersAggregate(t *testing.T) {
	var buf bytes.Buffer
	w := newANSIResultWriter(&buf)

	w.WriteResults(run.Aggregate{
		TotalRequests:       100,
		SuccessfulRequests:  98,
		FailedRequests:      2,
		RequestsPerSecond:   41.5,
		AverageResponseTime: 12,
		MinResponseTime:     3,
		MaxResponseTime:     88,
		P50:                 12, P75: 18, P90: 30, P95: 45, P99: 80,
		TotalElapsedMs: 2400,
		StatusCodes: map[int]stats.Summary{
			200: {Count: 98, Avg: 11},
			500: {Count: 2, Avg: 60},
		},
	})

	out := buf.String()
	require.Contains(t, out, "Results")
	require.Contains(t, out, "100 (98 ok, 2 failed)")
	require.Contains(t, out, "41.50 req/s peak over 2.4s")
	require.Contains(t, out, "avg 12.0 ms, min 3.0 ms, max 88.0 ms")
	require.Contains(t, out, "p50 12.0  p75 18.0  p90 30.0  p95 45.0  p99 80.0")
	require.Contains(t, out, "200  98 hits, avg 11.0 ms")
	require.Contains(t, out, "500  2 hits, avg 60.0 ms")
}

func TestANSIResultWriter_RendersOutcome(t *testing.T) {
	var buf bytes.Buffer
	w := newANSIResultWriter(&buf)

	startedAt := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	completedAt := startedAt.Add(90 * time.Second)
	w.WriteOutcome(&run.Run{
		Status:       run.StatusFailed,
		StartedAt:    startedAt,
		CompletedAt:  &completedAt,
		ErrorMessage: "authentication failed: auth endpoint returned status 401",
	})

	out := buf.String()
	require.Contains(t, out, "Failed in 1m30s")
	require.Contains(t, out, "authentication failed")
}
