package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/visitor-insights/internal/visitors"
)

func TestVerify(t *testing.T) {
	if err := verify([]int{12, 11, 13}, 10, 13); err != nil {
		t.Errorf("valid run rejected: %v", err)
	}
	if err := verify([]int{11, 11, 13}, 10, 13); err == nil {
		t.Error("duplicate visitor number accepted")
	}
	if err := verify([]int{11, 12}, 10, 13); err == nil {
		t.Error("unaccounted write accepted")
	}
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(sorted, 50); got != 5 {
		t.Errorf("p50 = %v", got)
	}
	if got := percentile(sorted, 99); got != 10 {
		t.Errorf("p99 = %v", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("empty = %v", got)
	}
}

func TestRunAgainstAggregator(t *testing.T) {
	agg := visitors.NewAggregator()
	h := visitors.NewHandler(agg)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/log", h.Log)
	mux.HandleFunc("GET /api/log", h.Stats)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	endpoint := srv.URL + "/api/log"
	stats := run(ctx, srv.Client(), endpoint, 60, 8)
	if stats.errorCount.Load() != 0 {
		t.Fatalf("errors = %d", stats.errorCount.Load())
	}
	after, err := fetchCount(ctx, srv.Client(), endpoint)
	if err != nil {
		t.Fatalf("fetchCount: %v", err)
	}
	if err := verify(stats.counts, 0, after); err != nil {
		t.Error(err)
	}
	if got := agg.Stats().Browsers[visitors.BrowserChrome]; got != "16.7%" {
		t.Errorf("chrome share = %q", got)
	}
}
