package visitors

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSink struct {
	name string
	err  error

	mu       sync.Mutex
	received []Record
	block    chan struct{}
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Forward(ctx context.Context, rec Record) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.received = append(s.received, rec)
	s.mu.Unlock()
	return s.err
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func TestForwarderDeliversToEverySink(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)
	ok := &fakeSink{name: "ok"}
	failing := &fakeSink{name: "failing", err: errors.New("broker down")}

	f := NewForwarder(16, m, ok, failing)
	f.Start(context.Background())
	for i := 0; i < 5; i++ {
		f.Track(Record{FieldUserAgent: uaChrome})
	}
	f.Close()

	if ok.count() != 5 || failing.count() != 5 {
		t.Fatalf("expected 5 deliveries per sink, got ok=%d failing=%d", ok.count(), failing.count())
	}
	if got := testutil.ToFloat64(m.ForwardTotal.WithLabelValues("ok", "ok")); got != 5 {
		t.Errorf("ok deliveries = %v", got)
	}
	if got := testutil.ToFloat64(m.ForwardTotal.WithLabelValues("failing", "error")); got != 5 {
		t.Errorf("failed deliveries = %v", got)
	}
}

func TestForwarderDropsWhenFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)
	sink := &fakeSink{name: "slow", block: make(chan struct{})}

	f := NewForwarder(1, m, sink)
	f.Start(context.Background())

	// The first record is picked up and blocks in the sink, the second fills
	// the buffer, the rest are dropped.
	f.Track(Record{})
	deadline := time.Now().Add(2 * time.Second)
	for len(f.recordCh) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	f.Track(Record{})
	f.Track(Record{})
	f.Track(Record{})

	if got := testutil.ToFloat64(m.ForwardDropped); got != 2 {
		t.Errorf("dropped = %v, want 2", got)
	}
	close(sink.block)
	f.Close()
	if sink.count() != 2 {
		t.Errorf("delivered = %d, want 2", sink.count())
	}
}

func TestForwarderDrainsOnCancel(t *testing.T) {
	sink := &fakeSink{name: "sink"}
	f := NewForwarder(8, nil, sink)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 3; i++ {
		f.Track(Record{})
	}
	f.Start(ctx)
	f.Close()

	if sink.count() != 3 {
		t.Errorf("expected buffered records to be delivered, got %d", sink.count())
	}
}

func TestForwarderTrackAfterCloseIsIgnored(t *testing.T) {
	f := NewForwarder(1, nil)
	f.Close()
	f.Track(Record{})
	f.Close()
}

func TestGuardSkipsFailingSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)
	down := &fakeSink{name: "down", err: errors.New("connection refused")}

	f := NewForwarder(16, m, Guard(down, resilience.BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour}))
	f.Start(context.Background())
	for i := 0; i < 5; i++ {
		f.Track(Record{})
	}
	f.Close()

	if down.count() != 2 {
		t.Errorf("sink called %d times, want 2 before the circuit opened", down.count())
	}
	if got := testutil.ToFloat64(m.ForwardTotal.WithLabelValues("down", "skipped")); got != 3 {
		t.Errorf("skipped = %v, want 3", got)
	}
}
