// Command loadgen fires concurrent synthetic visits at a running visitor
// service and checks that no write was lost: every receipt must carry a
// distinct visitor number and the final count must account for all of them.
//
// Usage:
//
//	go run ./cmd/loadgen [-url http://localhost:8080] [-visits 1000] [-concurrency 20]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/visitor-insights/internal/visitors"
	"golang.org/x/sync/errgroup"
)

var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
		"Opera/9.80 (Windows NT 6.1) Presto/2.12.388 Version/12.16",
		"curl/8.5.0",
	}
	resolutions = []string{"1920x1080", "1366x768", "2560x1440", "390x844"}
	languages   = []string{"en-US", "en-GB", "de-DE", "fr-FR", "ja-JP"}
	timezones   = []string{"America/New_York", "Europe/London", "Europe/Berlin", "Asia/Tokyo"}
)

type Stats struct {
	successCount atomic.Int64
	errorCount   atomic.Int64
	latencies    []time.Duration
	counts       []int
	mu           sync.Mutex
}

func (s *Stats) RecordVisit(duration time.Duration, visitorCount int, err error) {
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	s.successCount.Add(1)
	s.mu.Lock()
	s.latencies = append(s.latencies, duration)
	s.counts = append(s.counts, visitorCount)
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the visitor service")
	visits := flag.Int("visits", 1000, "number of visits to send")
	concurrency := flag.Int("concurrency", 20, "number of concurrent workers")
	flag.Parse()

	fmt.Println("=== Visitor Service Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Visits:      %d\n", *visits)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Println()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        *concurrency * 2,
			MaxIdleConnsPerHost: *concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx := context.Background()
	endpoint := *baseURL + "/api/log"

	before, err := fetchCount(ctx, client, endpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading initial count: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	stats := run(ctx, client, endpoint, *visits, *concurrency)
	elapsed := time.Since(start)

	after, err := fetchCount(ctx, client, endpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading final count: %v\n", err)
		os.Exit(1)
	}

	printReport(stats, elapsed)
	if err := verify(stats.counts, before, after); err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK: %d visits recorded (%d -> %d), no lost writes\n", len(stats.counts), before, after)
}

func run(ctx context.Context, client *http.Client, endpoint string, visits, concurrency int) *Stats {
	stats := &Stats{
		latencies: make([]time.Duration, 0, visits),
		counts:    make([]int, 0, visits),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < visits; i++ {
		i := i
		g.Go(func() error {
			started := time.Now()
			count, err := postVisit(gctx, client, endpoint, i)
			stats.RecordVisit(time.Since(started), count, err)
			return nil
		})
	}
	g.Wait()
	return stats
}

func syntheticVisit(i int) map[string]string {
	return map[string]string{
		visitors.FieldUserAgent:        userAgents[i%len(userAgents)],
		visitors.FieldScreenResolution: resolutions[i%len(resolutions)],
		visitors.FieldLanguage:         languages[i%len(languages)],
		visitors.FieldTimezone:         timezones[i%len(timezones)],
		visitors.FieldIPAddress:        fmt.Sprintf("198.51.100.%d", i%254+1),
		visitors.FieldPlatform:         "loadgen",
	}
}

func postVisit(ctx context.Context, client *http.Client, endpoint string, i int) (int, error) {
	visit := syntheticVisit(i)
	body, err := json.Marshal(visit)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", visit[visitors.FieldUserAgent])

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var receipt visitors.Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return 0, err
	}
	return receipt.VisitorCount, nil
}

func fetchCount(ctx context.Context, client *http.Client, endpoint string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	var summary visitors.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return 0, err
	}
	return summary.VisitorCount, nil
}

// verify checks that the receipts are exactly before+1..before+n. It assumes
// no other client wrote during the run.
func verify(counts []int, before, after int) error {
	sorted := append([]int(nil), counts...)
	sort.Ints(sorted)
	for i, c := range sorted {
		if want := before + i + 1; c != want {
			return fmt.Errorf("receipt %d has visitor number %d, want %d", i, c, want)
		}
	}
	if after != before+len(counts) {
		return fmt.Errorf("final count %d, want %d", after, before+len(counts))
	}
	return nil
}

func printReport(stats *Stats, elapsed time.Duration) {
	success := stats.successCount.Load()
	errs := stats.errorCount.Load()
	total := success + errs

	fmt.Println("=== Results ===")
	fmt.Printf("Total Visits:    %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errs)
	if total > 0 {
		fmt.Printf("Visits/sec:      %.2f\n", float64(total)/elapsed.Seconds())
	}

	stats.mu.Lock()
	latencies := append([]time.Duration(nil), stats.latencies...)
	stats.mu.Unlock()
	if len(latencies) == 0 {
		return
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Println()
	fmt.Println("=== Latency ===")
	fmt.Printf("Min:    %s\n", latencies[0])
	fmt.Printf("P50:    %s\n", percentile(latencies, 50))
	fmt.Printf("P95:    %s\n", percentile(latencies, 95))
	fmt.Printf("P99:    %s\n", percentile(latencies, 99))
	fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	fmt.Println()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
