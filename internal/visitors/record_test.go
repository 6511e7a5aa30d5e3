package visitors

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeRecord(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{
		"userAgent": "Firefox/90",
		"screenResolution": "1280x720",
		"width": 1280,
		"touch": false,
		"plugins": ["pdf", "flash"],
		"referrer": null
	}`))
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	checks := map[string]string{
		"userAgent":        "Firefox/90",
		"screenResolution": "1280x720",
		"width":            "1280",
		"touch":            "false",
		"plugins":          `["pdf","flash"]`,
	}
	for k, want := range checks {
		if rec[k] != want {
			t.Errorf("rec[%q] = %q, want %q", k, rec[k], want)
		}
	}
	if _, ok := rec["referrer"]; ok {
		t.Error("null field should be dropped")
	}
}

func TestDecodeRecordAcceptsEmptyObject(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{}`))
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if len(rec) != 0 {
		t.Errorf("expected empty record, got %v", rec)
	}
}

func TestDecodeRecordRejects(t *testing.T) {
	bodies := map[string]string{
		"malformed":     `{"userAgent": `,
		"empty":         ``,
		"array":         `[1,2]`,
		"string":        `"visitor"`,
		"null":          `null`,
		"trailing data": `{"a":"b"} {"c":"d"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeRecord([]byte(body)); err == nil {
				t.Errorf("expected error for %q", body)
			}
		})
	}
	if _, err := DecodeRecord([]byte(`null`)); !errors.Is(err, ErrNotObject) {
		t.Errorf("expected ErrNotObject for null, got %v", err)
	}
}

func TestEnrich(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 45, 123_000_000, time.FixedZone("CET", 3600))

	tests := []struct {
		name   string
		rec    Record
		meta   Meta
		wantUA string
		wantIP string
	}{
		{
			name:   "header user agent wins",
			rec:    Record{FieldUserAgent: "payload-ua"},
			meta:   Meta{UserAgent: "header-ua", ForwardedFor: "198.51.100.1, 10.0.0.1", Path: "/api/log"},
			wantUA: "header-ua",
			wantIP: "198.51.100.1, 10.0.0.1",
		},
		{
			name:   "payload user agent fallback",
			rec:    Record{FieldUserAgent: "payload-ua"},
			meta:   Meta{Path: "/api/log"},
			wantUA: "payload-ua",
			wantIP: "unknown",
		},
		{
			name:   "unknown user agent",
			rec:    Record{},
			meta:   Meta{Path: "/api/log"},
			wantUA: "unknown",
			wantIP: "unknown",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := enrich(tt.rec, tt.meta, now)
			if got[FieldUserAgent] != tt.wantUA {
				t.Errorf("userAgent = %q, want %q", got[FieldUserAgent], tt.wantUA)
			}
			if got[FieldSourceIP] != tt.wantIP {
				t.Errorf("ip = %q, want %q", got[FieldSourceIP], tt.wantIP)
			}
			if got[FieldPath] != "/api/log" {
				t.Errorf("path = %q", got[FieldPath])
			}
			if got[FieldTimestamp] != "2024-03-01T11:30:45.123Z" {
				t.Errorf("timestamp = %q", got[FieldTimestamp])
			}
		})
	}
}

func TestEnrichOverwritesClientServerFields(t *testing.T) {
	rec := enrich(Record{FieldTimestamp: "client-time", FieldSourceIP: "spoofed"}, Meta{Path: "/api/log"}, time.Unix(0, 0))
	if rec[FieldTimestamp] == "client-time" || rec[FieldSourceIP] != "unknown" {
		t.Errorf("server fields not applied: %v", rec)
	}
}
