package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"time"
)

// Stats aggregates request outcomes per query kind.
type Stats struct {
	mu        sync.Mutex
	latencies map[string][]time.Duration
	status    map[int]int64
	errors    int64
	total     int64
}

func NewStats() *Stats {
	return &Stats{
		latencies: make(map[string][]time.Duration),
		status:    make(map[int]int64),
	}
}

// Record adds one request. A transport error carries status 0.
func (s *Stats) Record(kind string, d time.Duration, status int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if err != nil {
		s.errors++
		return
	}
	s.status[status]++
	if status < 200 || status >= 300 {
		s.errors++
		return
	}
	s.latencies[kind] = append(s.latencies[kind], d)
}

// Summary is the latency distribution of one query kind.
type Summary struct {
	Count         int
	Min, Avg, Max time.Duration
	P50, P90, P99 time.Duration
	StdDev        time.Duration
}

func summarize(latencies []time.Duration) Summary {
	if len(latencies) == 0 {
		return Summary{}
	}
	sorted := slices.Clone(latencies)
	slices.Sort(sorted)
	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	avg := sum / time.Duration(len(sorted))
	var sq float64
	for _, l := range sorted {
		diff := float64(l - avg)
		sq += diff * diff
	}
	return Summary{
		Count:  len(sorted),
		Min:    sorted[0],
		Avg:    avg,
		Max:    sorted[len(sorted)-1],
		P50:    percentile(sorted, 50),
		P90:    percentile(sorted, 90),
		P99:    percentile(sorted, 99),
		StdDev: time.Duration(math.Sqrt(sq / float64(len(sorted)))),
	}
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

// Report writes the results and returns the number of completed requests.
func (s *Stats) Report(w io.Writer, elapsed time.Duration) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", s.total)
	fmt.Fprintf(w, "Errors:          %d\n", s.errors)
	if s.total > 0 && elapsed > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(s.errors)/float64(s.total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(s.total)/elapsed.Seconds())
	}

	kinds := make([]string, 0, len(s.latencies))
	for kind := range s.latencies {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	for _, kind := range kinds {
		sum := summarize(s.latencies[kind])
		fmt.Fprintf(w, "\n=== %s latency (%d ok) ===\n", kind, sum.Count)
		fmt.Fprintf(w, "Min %s  Avg %s  P50 %s  P90 %s  P99 %s  Max %s  StdDev %s\n",
			sum.Min, sum.Avg, sum.P50, sum.P90, sum.P99, sum.Max, sum.StdDev)
	}

	codes := make([]int, 0, len(s.status))
	for code := range s.status {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	fmt.Fprintln(w, "\n=== Status Codes ===")
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, s.status[code])
	}
	return s.total
}
