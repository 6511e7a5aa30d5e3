package visitors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/kafka"
)

func newTestServer(t *testing.T, agg *Aggregator) *httptest.Server {
	t.Helper()
	h := NewHandler(agg)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/log", h.Log)
	mux.HandleFunc("GET /api/log", h.Stats)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postVisitor(t *testing.T, url, payload string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/api/log", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /api/log: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandlerLogAndStats(t *testing.T) {
	agg := NewAggregator()
	srv := newTestServer(t, agg)

	agents := []string{uaChrome, uaFirefox, uaEdge}
	for i, ua := range agents {
		resp := postVisitor(t, srv.URL, `{"screenResolution":"1920x1080","language":"en-US","timezone":"UTC"}`, map[string]string{"User-Agent": ua})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var receipt map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
			t.Fatalf("decoding receipt: %v", err)
		}
		if receipt["status"] != "logged" {
			t.Errorf("status = %v", receipt["status"])
		}
		if receipt["visitorCount"] != float64(i+1) {
			t.Errorf("visitorCount = %v, want %d", receipt["visitorCount"], i+1)
		}
	}

	resp, err := http.Get(srv.URL + "/api/log")
	if err != nil {
		t.Fatalf("GET /api/log: %v", err)
	}
	defer resp.Body.Close()

	var stats struct {
		VisitorCount int               `json:"visitorCount"`
		Browsers     map[string]string `json:"browsers"`
		Resolutions  map[string]int    `json:"resolutions"`
		Languages    map[string]int    `json:"languages"`
		Locations    map[string]int    `json:"locations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats.VisitorCount != 3 {
		t.Errorf("visitorCount = %d", stats.VisitorCount)
	}
	if stats.Browsers["Edge"] != "33.3%" || stats.Browsers["Chrome"] != "33.3%" || stats.Browsers["Firefox"] != "33.3%" {
		t.Errorf("browsers = %v", stats.Browsers)
	}
	if stats.Resolutions["1920x1080"] != 3 || stats.Languages["en-US"] != 3 || stats.Locations["UTC"] != 3 {
		t.Errorf("unexpected breakdowns %+v", stats)
	}
}

func TestHandlerStatsEmpty(t *testing.T) {
	srv := newTestServer(t, NewAggregator())

	resp, err := http.Get(srv.URL + "/api/log")
	if err != nil {
		t.Fatalf("GET /api/log: %v", err)
	}
	defer resp.Body.Close()

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if string(raw["visitorCount"]) != "0" {
		t.Errorf("visitorCount = %s", raw["visitorCount"])
	}
	for _, key := range []string{"browsers", "resolutions", "languages", "locations"} {
		if string(raw[key]) != "{}" {
			t.Errorf("%s = %s, want {}", key, raw[key])
		}
	}
	if _, ok := raw["ipAddresses"]; ok {
		t.Error("ip breakdown must not be exposed")
	}
}

func TestHandlerMalformedBody(t *testing.T) {
	agg := NewAggregator()
	srv := newTestServer(t, agg)

	resp := postVisitor(t, srv.URL, `{not json`, nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body["error"] != FailureMessage {
		t.Errorf("error = %q", body["error"])
	}
	if agg.Count() != 0 {
		t.Errorf("count = %d after malformed write", agg.Count())
	}
}

func TestHandlerRecordsForwardedFor(t *testing.T) {
	tracker := &recordingTracker{}
	srv := newTestServer(t, NewAggregator(WithTracker(tracker)))

	postVisitor(t, srv.URL, `{"userAgent":"payload-agent"}`, map[string]string{
		"X-Forwarded-For": "198.51.100.23",
		"User-Agent":      "",
	})
	tracked := tracker.all()
	if len(tracked) != 1 {
		t.Fatalf("expected one record, got %d", len(tracked))
	}
	rec := tracked[0]
	if rec[FieldSourceIP] != "198.51.100.23" {
		t.Errorf("ip = %q", rec[FieldSourceIP])
	}
	if rec[FieldPath] != "/api/log" {
		t.Errorf("path = %q", rec[FieldPath])
	}
	// An explicitly empty User-Agent is not sent, so the payload value is used.
	if rec[FieldUserAgent] != "payload-agent" {
		t.Errorf("userAgent = %q, want payload fallback", rec[FieldUserAgent])
	}
}

func TestHandleMessage(t *testing.T) {
	tracker := &recordingTracker{}
	agg := NewAggregator(WithTracker(tracker))
	handle := HandleMessage(agg)

	if err := handle(context.Background(), kafka.Message{Topic: "visitor-ingest", Value: []byte(`{"userAgent":"Firefox/90"}`)}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := handle(context.Background(), kafka.Message{Topic: "visitor-ingest", Value: []byte(`garbage`)}); err != nil {
		t.Fatalf("malformed message should be skipped, got %v", err)
	}
	if agg.Count() != 1 {
		t.Fatalf("count = %d, want 1", agg.Count())
	}
	rec := tracker.all()[0]
	if rec[FieldPath] != "visitor-ingest" || rec[FieldSourceIP] != "unknown" || rec[FieldUserAgent] != "Firefox/90" {
		t.Errorf("unexpected record %v", rec)
	}
}
