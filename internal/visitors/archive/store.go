// Package archive keeps a write-only audit trail of visitors and periodic
// summary snapshots in PostgreSQL. Nothing here is read back at startup: the
// live aggregator always begins empty.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/visitor-insights/internal/visitors"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS visitor_log (
    id          BIGSERIAL PRIMARY KEY,
    browser     TEXT NOT NULL,
    data        JSONB NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS visitor_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    data        JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// Snapshot is the archived form of a summary. Unlike the HTTP response it
// keeps the per-address breakdown.
type Snapshot struct {
	VisitorCount int               `json:"visitorCount"`
	Browsers     map[string]string `json:"browsers"`
	Resolutions  map[string]int    `json:"resolutions"`
	Languages    map[string]int    `json:"languages"`
	Locations    map[string]int    `json:"locations"`
	IPAddresses  map[string]int    `json:"ipAddresses"`
}

func newSnapshot(s visitors.Summary) Snapshot {
	return Snapshot{
		VisitorCount: s.VisitorCount,
		Browsers:     s.Browsers,
		Resolutions:  s.Resolutions,
		Languages:    s.Languages,
		Locations:    s.Locations,
		IPAddresses:  s.IPAddresses,
	}
}

// StatsSource is implemented by *visitors.Aggregator.
type StatsSource interface {
	Stats() visitors.Summary
}

// Store writes visitors and snapshots to PostgreSQL.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "visitor-archive"),
	}
}

// EnsureSchema creates the archive tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("creating archive tables: %w", err)
		}
		return nil
	})
}

func (s *Store) Name() string { return "postgres" }

// Forward appends rec to visitor_log.
func (s *Store) Forward(ctx context.Context, rec visitors.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling visitor: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO visitor_log (browser, data, recorded_at) VALUES ($1, $2, $3)`,
		visitors.Classify(rec.Get(visitors.FieldUserAgent)), data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("archiving visitor: %w", err)
	}
	return nil
}

// SaveSnapshot persists the summary to visitor_snapshots.
func (s *Store) SaveSnapshot(ctx context.Context, summary visitors.Summary) error {
	data, err := json.Marshal(newSnapshot(summary))
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO visitor_snapshots (data, captured_at) VALUES ($1, $2)`,
		data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving visitor snapshot: %w", err)
	}

	s.logger.Info("visitor snapshot saved", "visitor_count", summary.VisitorCount)
	return nil
}

// RunPeriodicSave snapshots src every interval until ctx is cancelled, then
// writes one final snapshot.
func (s *Store) RunPeriodicSave(ctx context.Context, src StatsSource, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("periodic snapshot started", "interval", interval)

	for {
		select {
		case <-ticker.C:
			if err := s.SaveSnapshot(ctx, src.Stats()); err != nil {
				s.logger.Error("periodic snapshot failed", "error", err)
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.SaveSnapshot(shutdownCtx, src.Stats()); err != nil {
				s.logger.Error("final snapshot failed", "error", err)
			}
			return nil
		}
	}
}
