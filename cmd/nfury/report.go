package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/run"
)

// ResultWriter renders run progress and the final aggregate for a
// terminal user.
type ResultWriter interface {
	WriteStart(r *run.Run)
	WriteOutcome(r *run.Run)
	WriteResults(agg run.Aggregate)
}

type ansiResultWriter struct {
	out io.Writer
}

func newANSIResultWriter(out io.Writer) ResultWriter {
	return &ansiResultWriter{out: out}
}

func (w *ansiResultWriter) WriteStart(r *run.Run) {
	head := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(w.out, "%s %s %s\n", head("nfury"), r.Method, r.URL)
	switch {
	case r.TargetDurationSec != nil:
		fmt.Fprintf(w.out, "  %d users for %ds\n", r.Users, *r.TargetDurationSec)
	case r.TargetRequests != nil:
		fmt.Fprintf(w.out, "  %d users, %d requests\n", r.Users, *r.TargetRequests)
	default:
		fmt.Fprintf(w.out, "  %d users\n", r.Users)
	}
}

func (w *ansiResultWriter) WriteOutcome(r *run.Run) {
	status := statusSprint(r.Status)
	if r.CompletedAt != nil {
		elapsed := r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond)
		fmt.Fprintf(w.out, "\n%s in %s\n", status(string(r.Status)), elapsed)
	} else {
		fmt.Fprintf(w.out, "\n%s\n", status(string(r.Status)))
	}
	if r.ErrorMessage != "" {
		fmt.Fprintf(w.out, "  %s\n", color.RedString(r.ErrorMessage))
	}
}

func (w *ansiResultWriter) WriteResults(agg run.Aggregate) {
	label := color.New(color.Faint).SprintFunc()
	elapsed := time.Duration(agg.TotalElapsedMs) * time.Millisecond
	fmt.Fprintf(w.out, "\n%s\n", color.New(color.Bold).Sprint("Results"))
	fmt.Fprintf(w.out, "  %s  %d (%d ok, %d failed)\n",
		label("requests"), agg.TotalRequests, agg.SuccessfulRequests, agg.FailedRequests)
	fmt.Fprintf(w.out, "  %s  %.2f req/s peak over %s\n",
		label("throughput"), agg.RequestsPerSecond, elapsed)
	fmt.Fprintf(w.out, "  %s  avg %.1f ms, min %.1f ms, max %.1f ms\n",
		label("latency"), agg.AverageResponseTime, agg.MinResponseTime, agg.MaxResponseTime)
	fmt.Fprintf(w.out, "  %s  p50 %.1f  p75 %.1f  p90 %.1f  p95 %.1f  p99 %.1f\n",
		label("percentiles"), agg.P50, agg.P75, agg.P90, agg.P95, agg.P99)

	if len(agg.StatusCodes) == 0 {
		return
	}
	codes := make([]int, 0, len(agg.StatusCodes))
	for code := range agg.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	fmt.Fprintf(w.out, "  %s\n", label("status codes"))
	for _, code := range codes {
		s := agg.StatusCodes[code]
		fmt.Fprintf(w.out, "    %s  %d hits, avg %.1f ms\n",
			codeSprint(code)(fmt.Sprintf("%3d", code)), s.Count, s.Avg)
	}
}

func statusSprint(s run.Status) func(a ...interface{}) string {
	switch s {
	case run.StatusCompleted:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	case run.StatusCancelled:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

// codeSprint picks a color per status class.
func codeSprint(code int) func(a ...interface{}) string {
	switch {
	case code < 100:
		return color.New(color.FgRed).SprintFunc()
	case code < 400:
		return color.New(color.FgGreen).SprintFunc()
	case code < 500:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgRed).SprintFunc()
	}
}
