package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/visitor-insights/internal/visitors"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/kafka"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (w *fakeWriter) PublishBatch(_ context.Context, events []kafka.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, events)
	return nil
}

func (w *fakeWriter) published() [][]kafka.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]kafka.Event(nil), w.batches...)
}

const firefoxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"

func TestForwardFlushesFullBatch(t *testing.T) {
	w := &fakeWriter{}
	bp := NewBatchPublisher(w, 2, time.Hour)

	ctx := context.Background()
	if err := bp.Forward(ctx, visitors.Record{visitors.FieldUserAgent: firefoxUA}); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(w.published()) != 0 {
		t.Fatal("flushed before batch was full")
	}
	if err := bp.Forward(ctx, visitors.Record{visitors.FieldUserAgent: "curl/8.0"}); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	batches := w.published()
	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Fatalf("expected one batch of two events, got %v", batches)
	}
	first := batches[0][0]
	if first.Key != "Firefox" {
		t.Errorf("key = %q, want Firefox", first.Key)
	}
	event, ok := first.Value.(VisitorEvent)
	if !ok {
		t.Fatalf("value has type %T", first.Value)
	}
	if event.Browser != "Firefox" || event.Visitor[visitors.FieldUserAgent] != firefoxUA {
		t.Errorf("unexpected event %+v", event)
	}
	if batches[0][1].Key != visitors.Unknown {
		t.Errorf("unclassified agent keyed as %q", batches[0][1].Key)
	}
	if bp.BufferLen() != 0 {
		t.Errorf("buffer len = %d after flush", bp.BufferLen())
	}
}

func TestFailedFlushRequeues(t *testing.T) {
	w := &fakeWriter{err: errors.New("no brokers")}
	bp := NewBatchPublisher(w, 1, time.Hour)

	for i := 0; i < 5; i++ {
		if err := bp.Forward(context.Background(), visitors.Record{}); err == nil {
			t.Fatal("expected publish error")
		}
	}
	// Re-queued events are capped at three batches.
	if got := bp.BufferLen(); got != 3 {
		t.Errorf("buffer len = %d, want 3", got)
	}
}

func TestStartFlushesOnShutdown(t *testing.T) {
	w := &fakeWriter{}
	bp := NewBatchPublisher(w, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bp.Start(ctx)

	for i := 0; i < 3; i++ {
		if err := bp.Forward(ctx, visitors.Record{}); err != nil {
			t.Fatalf("Forward: %v", err)
		}
	}
	cancel()
	bp.Close()

	batches := w.published()
	if len(batches) != 1 || len(batches[0]) != 3 {
		t.Fatalf("expected final flush of three events, got %v", batches)
	}
}
