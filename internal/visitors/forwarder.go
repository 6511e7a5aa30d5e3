package visitors

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/resilience"
	"golang.org/x/sync/errgroup"
)

// Sink receives recorded visitors outside the write path.
type Sink interface {
	Name() string
	Forward(ctx context.Context, rec Record) error
}

// Guard wraps sink in a circuit breaker. While the circuit is open, Forward
// fails fast with resilience.ErrCircuitOpen and the sink is not called.
func Guard(sink Sink, cfg resilience.BreakerConfig) Sink {
	return &guardedSink{Sink: sink, breaker: resilience.NewCircuitBreaker(sink.Name(), cfg)}
}

type guardedSink struct {
	Sink
	breaker *resilience.CircuitBreaker
}

func (g *guardedSink) Forward(ctx context.Context, rec Record) error {
	return g.breaker.Execute(func() error { return g.Sink.Forward(ctx, rec) })
}

// Forwarder buffers appended records and delivers each one to every sink.
// A full buffer drops the record; sink failures are logged and counted but
// never reach the writer.
type Forwarder struct {
	sinks    []Sink
	recordCh chan Record
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	done    chan struct{}
}

func NewForwarder(bufferSize int, m *metrics.Metrics, sinks ...Sink) *Forwarder {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Forwarder{
		sinks:    sinks,
		recordCh: make(chan Record, bufferSize),
		metrics:  m,
		logger:   slog.Default().With("component", "visitor-forwarder"),
		done:     make(chan struct{}),
	}
}

// Start launches the delivery loop. When ctx is cancelled the loop delivers
// what is already buffered and exits.
func (f *Forwarder) Start(ctx context.Context) {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()

	go func() {
		defer close(f.done)
		for {
			select {
			case rec, ok := <-f.recordCh:
				if !ok {
					return
				}
				f.deliver(ctx, rec)
			case <-ctx.Done():
				f.drainRemaining()
				return
			}
		}
	}()
	f.logger.Info("visitor forwarder started", "buffer_size", cap(f.recordCh), "sinks", len(f.sinks))
}

// Track enqueues rec without blocking.
func (f *Forwarder) Track(rec Record) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	select {
	case f.recordCh <- rec:
	default:
		if f.metrics != nil {
			f.metrics.ForwardDropped.Inc()
		}
		f.logger.Warn("visitor forward dropped (buffer full)")
	}
}

// Close stops accepting records and waits for buffered ones to be delivered.
func (f *Forwarder) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	started := f.started
	close(f.recordCh)
	f.mu.Unlock()

	if started {
		<-f.done
	}
}

func (f *Forwarder) deliver(ctx context.Context, rec Record) {
	var g errgroup.Group
	for _, sink := range f.sinks {
		sink := sink
		g.Go(func() error {
			status := "ok"
			if err := sink.Forward(ctx, rec); err != nil {
				if errors.Is(err, resilience.ErrCircuitOpen) {
					status = "skipped"
					f.logger.Debug("sink circuit open", "sink", sink.Name())
				} else {
					status = "error"
					f.logger.Error("failed to forward visitor", "sink", sink.Name(), "error", err)
				}
			}
			if f.metrics != nil {
				f.metrics.ForwardTotal.WithLabelValues(sink.Name(), status).Inc()
			}
			return nil
		})
	}
	g.Wait()
}

func (f *Forwarder) drainRemaining() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case rec, ok := <-f.recordCh:
			if !ok {
				return
			}
			f.deliver(ctx, rec)
		default:
			return
		}
	}
}
