// Package stats computes latency aggregates for load test runs.
package stats

import (
	"math"
	"sort"

	"github.com/go-faster/errors"
)

var (
	// ErrNoValues is returned when a percentile is requested over an empty sample set.
	ErrNoValues = errors.New("stats: no values")
	// ErrPercentileRange is returned when p lies outside [0, 100].
	ErrPercentileRange = errors.New("stats: percentile out of range")
)

// Summary holds the aggregate view of a latency sample set. A Summary over
// zero samples is the zero value; requesting one is not an error.
type Summary struct {
	Count int64
	Sum   float64
	Avg   float64
	Min   float64
	Max   float64
	P50   float64
	P75   float64
	P90   float64
	P95   float64
	P99   float64
}

// Observation is one response as seen by the aggregator.
type Observation struct {
	StatusCode   int
	Milliseconds float64
}

// Percentile computes the p-th percentile of values using interpolated rank:
// position = (n+1)*p/100, index = position-1; the fractional part of the
// index interpolates linearly between the two neighbouring sorted values.
// Values below the first rank clamp to the minimum, above the last rank to
// the maximum.
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrNoValues
	}
	if p < 0 || p > 100 {
		return 0, errors.Wrapf(ErrPercentileRange, "p=%v", p)
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	position := float64(n+1) * p / 100
	index := position - 1
	k := int(math.Floor(index))
	f := index - math.Floor(index)

	switch {
	case k < 0:
		return sorted[0], nil
	case k >= n-1:
		return sorted[n-1], nil
	default:
		return sorted[k] + f*(sorted[k+1]-sorted[k]), nil
	}
}

// Summarize aggregates a latency sample set. Zero samples yield the zero
// Summary.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	s := Summary{
		Count: int64(len(values)),
		Min:   values[0],
		Max:   values[0],
	}
	for _, v := range values {
		s.Sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Avg = s.Sum / float64(s.Count)

	// Percentile cannot fail here: the set is non-empty and p is fixed.
	s.P50, _ = Percentile(values, 50)
	s.P75, _ = Percentile(values, 75)
	s.P90, _ = Percentile(values, 90)
	s.P95, _ = Percentile(values, 95)
	s.P99, _ = Percentile(values, 99)
	return s
}

// GroupByStatus summarizes observations per HTTP status code.
func GroupByStatus(observations []Observation) map[int]Summary {
	grouped := make(map[int][]float64)
	for _, o := range observations {
		grouped[o.StatusCode] = append(grouped[o.StatusCode], o.Milliseconds)
	}

	out := make(map[int]Summary, len(grouped))
	for code, values := range grouped {
		out[code] = Summarize(values)
	}
	return out
}
