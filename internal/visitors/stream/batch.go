// Package stream publishes recorded visitors to Kafka in batches. It
// accumulates events in memory and flushes them when the batch is full or on
// a timer.
package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/visitor-insights/internal/visitors"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/kafka"
)

// VisitorEvent is the Kafka payload for one recorded visitor. It is keyed by
// browser family.
type VisitorEvent struct {
	Browser    string          `json:"browser"`
	Visitor    visitors.Record `json:"visitor"`
	RecordedAt time.Time       `json:"recordedAt"`
}

// BatchWriter is implemented by *kafka.Producer.
type BatchWriter interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// BatchPublisher buffers visitor events and writes them with one Kafka call
// per batch.
type BatchPublisher struct {
	writer        BatchWriter
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
}

// NewBatchPublisher creates a BatchPublisher that flushes when the buffer
// reaches batchSize events or after flushInterval, whichever comes first.
func NewBatchPublisher(writer BatchWriter, batchSize int, flushInterval time.Duration) *BatchPublisher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchPublisher{
		writer:        writer,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "visitor-stream"),
		done:          make(chan struct{}),
	}
}

// Name identifies the sink in logs and metrics.
func (bp *BatchPublisher) Name() string { return "kafka" }

// Forward buffers rec. A full buffer triggers an immediate flush.
func (bp *BatchPublisher) Forward(ctx context.Context, rec visitors.Record) error {
	browser := visitors.Classify(rec.Get(visitors.FieldUserAgent))
	event := kafka.Event{
		Key: browser,
		Value: VisitorEvent{
			Browser:    browser,
			Visitor:    rec,
			RecordedAt: time.Now().UTC(),
		},
	}

	bp.mu.Lock()
	bp.buffer = append(bp.buffer, event)
	shouldFlush := len(bp.buffer) >= bp.batchSize
	bp.mu.Unlock()

	if shouldFlush {
		return bp.flush(ctx)
	}
	return nil
}

// Start launches the background flush loop. The loop exits after a final
// flush once ctx is cancelled.
func (bp *BatchPublisher) Start(ctx context.Context) {
	go func() {
		defer close(bp.done)
		ticker := time.NewTicker(bp.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := bp.flush(ctx); err != nil {
					bp.logger.Error("periodic flush failed", "error", err)
				}
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := bp.flush(flushCtx); err != nil {
					bp.logger.Error("final flush failed", "error", err)
				}
				cancel()
				return
			}
		}
	}()
	bp.logger.Info("visitor stream started",
		"batch_size", bp.batchSize,
		"flush_interval", bp.flushInterval,
	)
}

// Close waits for the background flush loop to finish.
func (bp *BatchPublisher) Close() {
	<-bp.done
}

// BufferLen returns the current number of buffered events.
func (bp *BatchPublisher) BufferLen() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}

func (bp *BatchPublisher) flush(ctx context.Context) error {
	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return nil
	}
	batch := bp.buffer
	bp.buffer = make([]kafka.Event, 0, bp.batchSize)
	bp.mu.Unlock()

	if err := bp.writer.PublishBatch(ctx, batch); err != nil {
		// Re-queue ahead of newer events, capped at three batches.
		bp.mu.Lock()
		bp.buffer = append(batch, bp.buffer...)
		if limit := bp.batchSize * 3; len(bp.buffer) > limit {
			dropped := len(bp.buffer) - limit
			bp.buffer = bp.buffer[:limit]
			bp.logger.Warn("buffer overflow, events dropped", "dropped", dropped)
		}
		bp.mu.Unlock()
		return err
	}

	bp.logger.Debug("batch flushed", "events", len(batch))
	return nil
}
