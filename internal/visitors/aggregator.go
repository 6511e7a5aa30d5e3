package visitors

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/metrics"
)

// FailureMessage is the client-facing error for any rejected write.
const FailureMessage = "Failed to log visitor data"

// Receipt is returned for every accepted write.
type Receipt struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	VisitorCount int    `json:"visitorCount"`
}

// Tracker receives every appended record for asynchronous delivery.
type Tracker interface {
	Track(rec Record)
}

// Aggregator owns the append-only visitor list for the life of the process.
// Appends are serialized, so the k-th accepted write always reports k.
type Aggregator struct {
	mu      sync.Mutex
	records []Record

	reporter *Reporter
	tracker  Tracker
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Aggregator)

// WithReporter prints the console report after every write and read.
func WithReporter(r *Reporter) Option {
	return func(a *Aggregator) { a.reporter = r }
}

// WithTracker hands each appended record to t.
func WithTracker(t Tracker) Option {
	return func(a *Aggregator) { a.tracker = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithClock overrides the server timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		records: make([]Record, 0, 1024),
		now:     time.Now,
		logger:  slog.Default().With("component", "visitor-aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record decodes body, enriches it with meta, appends it, and reports the
// updated statistics before returning. Bodies that are not a JSON object are
// rejected with a generic server error.
func (a *Aggregator) Record(ctx context.Context, body []byte, meta Meta) (Receipt, error) {
	log := logger.FromContext(ctx)

	rec, err := DecodeRecord(body)
	if err != nil {
		if a.metrics != nil {
			a.metrics.RecordFailures.Inc()
		}
		log.Error("error logging visitor data", "error", err, "path", meta.Path)
		return Receipt{}, apperrors.Wrap(apperrors.ErrInvalidInput, http.StatusInternalServerError, FailureMessage, err)
	}
	rec = enrich(rec, meta, a.now())

	a.mu.Lock()
	a.records = append(a.records, rec)
	count := len(a.records)
	// Records below count are immutable, so the prefix is safe to read
	// after the lock is released.
	prefix := a.records[:count:count]
	a.mu.Unlock()

	browser := Classify(rec.Get(FieldUserAgent))
	if a.metrics != nil {
		a.metrics.VisitorsRecorded.Inc()
		a.metrics.VisitorsStored.Set(float64(count))
		a.metrics.VisitorBrowsers.WithLabelValues(browser).Inc()
	}

	log.Info("new visitor",
		"ip", rec.Get(FieldIPAddress),
		"browser", truncateUserAgent(rec.Get(FieldUserAgent)),
		"time", rec.Get(FieldTimestamp),
		"visitor_count", count,
	)

	a.report(Summarize(prefix))

	if a.tracker != nil {
		a.tracker.Track(rec)
	}

	return Receipt{
		Status:       "logged",
		Message:      "Visitor data logged successfully",
		VisitorCount: count,
	}, nil
}

// Summarize computes the current breakdowns and prints the console report.
func (a *Aggregator) Summarize() Summary {
	s := Summarize(a.snapshot())
	a.report(s)
	return s
}

// Stats computes the current breakdowns without reporting.
func (a *Aggregator) Stats() Summary {
	return Summarize(a.snapshot())
}

// Count returns the number of stored records.
func (a *Aggregator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

func (a *Aggregator) snapshot() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.records)
	return a.records[:n:n]
}

func (a *Aggregator) report(s Summary) {
	if a.reporter != nil {
		a.reporter.Report(s)
	}
}

// truncateUserAgent keeps the first 50 bytes of a user agent for log lines.
func truncateUserAgent(ua string) string {
	const limit = 50
	if len(ua) > limit {
		ua = ua[:limit]
	}
	return ua + "..."
}
