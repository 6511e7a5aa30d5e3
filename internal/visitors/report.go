package visitors

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Reporter prints the human-readable analytics report. Reports from
// concurrent requests never interleave.
type Reporter struct {
	mu     sync.Mutex
	out    io.Writer
	logger *slog.Logger
}

func NewReporter(out io.Writer) *Reporter {
	return &Reporter{
		out:    out,
		logger: slog.Default().With("component", "visitor-report"),
	}
}

// Report writes the multi-section report for s and logs a one-line summary.
func (r *Reporter) Report(s Summary) {
	text := Render(s)

	r.mu.Lock()
	_, err := io.WriteString(r.out, text)
	r.mu.Unlock()
	if err != nil {
		r.logger.Error("failed to write analytics report", "error", err)
	}

	r.logger.Info("visitor analytics",
		"total_visitors", s.VisitorCount,
		"browsers", len(s.Browsers),
		"distinct_ips", len(s.IPAddresses),
	)
}

// Render formats s as the console report.
func Render(s Summary) string {
	var b strings.Builder
	b.WriteString("\n===== VISITOR ANALYTICS =====\n")
	fmt.Fprintf(&b, "Total Visitors: %d\n", s.VisitorCount)

	b.WriteString("\n--- Browser Usage ---\n")
	for _, e := range ranked(s.browserCounts) {
		fmt.Fprintf(&b, "%s: %s\n", e.Key, s.Browsers[e.Key])
	}

	section(&b, "IP Addresses", s.IPAddresses, "visits")
	section(&b, "Screen Resolutions", s.Resolutions, "visitors")
	section(&b, "Languages", s.Languages, "visitors")
	section(&b, "Locations (Timezones)", s.Locations, "visitors")

	b.WriteString("\n============================\n")
	return b.String()
}

func section(b *strings.Builder, title string, counts map[string]int, unit string) {
	fmt.Fprintf(b, "\n--- %s ---\n", title)
	for _, e := range ranked(counts) {
		fmt.Fprintf(b, "%s: %d %s\n", e.Key, e.Count, unit)
	}
}
