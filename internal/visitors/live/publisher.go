// Package live fans recorded visitors out to Redis pub/sub subscribers, for
// dashboards that want a feed of arrivals instead of polling the stats
// endpoint.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/visitor-insights/internal/visitors"
)

// Notifier is implemented by *redis.Client.
type Notifier interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
}

// Arrival is the message published for each recorded visitor.
type Arrival struct {
	Browser string          `json:"browser"`
	Visitor visitors.Record `json:"visitor"`
}

type Publisher struct {
	notifier Notifier
	channel  string
	logger   *slog.Logger
}

func NewPublisher(n Notifier, channel string) *Publisher {
	return &Publisher{
		notifier: n,
		channel:  channel,
		logger:   slog.Default().With("component", "visitor-live", "channel", channel),
	}
}

func (p *Publisher) Name() string { return "redis" }

// Forward publishes rec as an Arrival. Having no subscribers is not an error.
func (p *Publisher) Forward(ctx context.Context, rec visitors.Record) error {
	payload, err := encode(rec)
	if err != nil {
		return err
	}
	receivers, err := p.notifier.Publish(ctx, p.channel, payload)
	if err != nil {
		return err
	}
	p.logger.Debug("arrival published", "receivers", receivers)
	return nil
}

func encode(rec visitors.Record) ([]byte, error) {
	payload, err := json.Marshal(Arrival{
		Browser: visitors.Classify(rec.Get(visitors.FieldUserAgent)),
		Visitor: rec,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling arrival: %w", err)
	}
	return payload, nil
}
