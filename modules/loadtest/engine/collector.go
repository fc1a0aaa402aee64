package engine

import (
	"sync"
	"time"

	"github.com/unhackeddev/nfury/modules/loadtest/stats"
)

// rpsWindow is the sliding window over which current RPS is measured.
const rpsWindow = time.Second

// point is one recorded response together with the running totals at the
// moment it was recorded.
type point struct {
	requestID  int64
	timestamp  time.Time
	elapsedMs  int64
	statusCode int
	success    bool
	total      int64
	successful int64
	failed     int64
	currentRPS float64
	averageMs  float64
}

// collector is the engine-local accumulator: an append-only sample log
// shared by all workers plus the 1-second timestamp window that yields
// current and peak RPS. One mutex guards everything; workers hold it only
// between requests, never across I/O.
type collector struct {
	mu         sync.Mutex
	samples    []stats.Observation
	total      int64
	successful int64
	failed     int64
	sumElapsed int64
	window     []time.Time
	peakRPS    float64
}

func newCollector() *collector {
	return &collector{}
}

// record appends one response. Entries older than the window are evicted
// lazily here, so current RPS is simply the window length.
func (c *collector) record(statusCode int, elapsedMs int64, now time.Time) point {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	success := statusCode >= 200 && statusCode < 300
	if success {
		c.successful++
	} else {
		c.failed++
	}
	c.samples = append(c.samples, stats.Observation{
		StatusCode:   statusCode,
		Milliseconds: float64(elapsedMs),
	})
	c.sumElapsed += elapsedMs

	cutoff := now.Add(-rpsWindow)
	evict := 0
	for evict < len(c.window) && c.window[evict].Before(cutoff) {
		evict++
	}
	if evict > 0 {
		c.window = append(c.window[:0], c.window[evict:]...)
	}
	c.window = append(c.window, now)

	rps := float64(len(c.window))
	if rps > c.peakRPS {
		c.peakRPS = rps
	}

	return point{
		requestID:  c.total,
		timestamp:  now,
		elapsedMs:  elapsedMs,
		statusCode: statusCode,
		success:    success,
		total:      c.total,
		successful: c.successful,
		failed:     c.failed,
		currentRPS: rps,
		averageMs:  float64(c.sumElapsed) / float64(c.total),
	}
}

// results returns the totals and the full sample log. Callers must not
// invoke it while workers are still recording.
func (c *collector) results() (total, successful, failed int64, peakRPS float64, samples []stats.Observation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total, c.successful, c.failed, c.peakRPS, c.samples
}
