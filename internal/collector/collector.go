package collector

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/visitor-insights/internal/visitors"
)

// Resolver reports the host's public address.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Submitter delivers a snapshot to the aggregation service.
type Submitter interface {
	Submit(ctx context.Context, s Snapshot) (visitors.Receipt, error)
}

// Collector runs one visit: gather, resolve, submit.
type Collector struct {
	env       Env
	resolver  Resolver
	submitter Submitter
	logger    *slog.Logger
}

func New(env Env, resolver Resolver, submitter Submitter) *Collector {
	return &Collector{
		env:       env,
		resolver:  resolver,
		submitter: submitter,
		logger:    slog.Default().With("component", "collector"),
	}
}

// Run gathers the snapshot and submits it. A failed address lookup is logged
// and replaced by a placeholder; the submit is still attempted. The snapshot
// is returned even when the submit fails so callers can still display it.
func (c *Collector) Run(ctx context.Context) (Snapshot, visitors.Receipt, error) {
	snap := Gather(c.env)

	ip, err := c.resolver.Resolve(ctx)
	if err != nil {
		c.logger.Error("error fetching ip", "error", err)
		ip = CouldNotResolve
	}
	snap.IPAddress = ip

	receipt, err := c.submitter.Submit(ctx, snap)
	if err != nil {
		c.logger.Error("error logging visit", "error", err)
		return snap, visitors.Receipt{}, err
	}
	c.logger.Info("visit logged", "visitor_count", receipt.VisitorCount)
	return snap, receipt, nil
}
