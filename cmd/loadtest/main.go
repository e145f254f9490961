package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Query is one request template.
type Query struct {
	Kind string
	Text string
}

var defaultQueries = []Query{
	{"vector", "search engine"},
	{"vector", "inverted index construction"},
	{"vector", "document frequency weighting"},
	{"vector", "cosine similarity ranking"},
	{"vector", "running dogs chasing cats"},
	{"boolean", "search AND engine"},
	{"boolean", "index OR catalog"},
	{"boolean", "(query OR search) AND NOT cache"},
	{"boolean", "document AND (vector OR boolean)"},
	{"boolean", "NOT stop"},
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	rps := flag.Float64("rps", 0, "overall request rate limit, 0 for unlimited")
	queriesFile := flag.String("queries", "", "file of \"<boolean|vector> <query>\" lines")
	flag.Parse()

	queries := defaultQueries
	if *queriesFile != "" {
		f, err := os.Open(*queriesFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "opening queries: %v\n", err)
			os.Exit(1)
		}
		queries, err = readQueries(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("=== Search Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Queries:     %d unique\n\n", len(queries))

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()
	start := time.Now()
	stats := run(ctx, *baseURL, *concurrency, *rps, queries)
	if stats.Report(os.Stdout, time.Since(start)) == 0 {
		fmt.Println("\nWARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

// readQueries parses "<kind> <query text>" lines; blank lines and lines
// starting with # are skipped.
func readQueries(r io.Reader) ([]Query, error) {
	var queries []Query
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		kind, q, ok := strings.Cut(text, " ")
		if !ok || (kind != "boolean" && kind != "vector") {
			return nil, fmt.Errorf("line %d: want \"<boolean|vector> <query>\"", line)
		}
		queries = append(queries, Query{Kind: kind, Text: strings.TrimSpace(q)})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no queries")
	}
	return queries, nil
}

func searchURL(base string, q Query) string {
	return fmt.Sprintf("%s/api/v1/search/%s?q=%s", strings.TrimRight(base, "/"), q.Kind, url.QueryEscape(q.Text))
}

func run(ctx context.Context, baseURL string, concurrency int, rps float64, queries []Query) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(next int) {
			defer wg.Done()
			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				q := queries[next%len(queries)]
				next++
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL(baseURL, q), nil)
				if err != nil {
					stats.Record(q.Kind, 0, 0, err)
					continue
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					stats.Record(q.Kind, elapsed, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.Record(q.Kind, elapsed, resp.StatusCode, nil)
			}
		}(w)
	}
	wg.Wait()
	return stats
}
