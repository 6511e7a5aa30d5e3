package archive

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/visitor-insights/internal/visitors"
)

func TestSnapshotKeepsAddresses(t *testing.T) {
	summary := visitors.Summarize([]visitors.Record{
		{visitors.FieldUserAgent: "Firefox/120.0", visitors.FieldIPAddress: "203.0.113.5"},
		{visitors.FieldUserAgent: "Firefox/120.0", visitors.FieldIPAddress: "203.0.113.5"},
	})

	data, err := json.Marshal(newSnapshot(summary))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.VisitorCount != 2 {
		t.Errorf("visitorCount = %d", got.VisitorCount)
	}
	if got.IPAddresses["203.0.113.5"] != 2 {
		t.Errorf("ipAddresses = %v", got.IPAddresses)
	}
	if got.Browsers["Firefox"] != "100.0%" {
		t.Errorf("browsers = %v", got.Browsers)
	}
}

func TestSchemaCreatesBothTables(t *testing.T) {
	for _, table := range []string{"visitor_log", "visitor_snapshots"} {
		if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("schema missing %s", table)
		}
	}
}

