// Package visitors holds the visitor aggregation service: the open visitor
// record, browser classification, breakdown computation, the console report,
// and the HTTP and Kafka entry points that append to the in-memory store.
package visitors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Client-reported fields.
const (
	FieldUserAgent        = "userAgent"
	FieldLanguage         = "language"
	FieldScreenResolution = "screenResolution"
	FieldReferrer         = "referrer"
	FieldDateTime         = "dateTime"
	FieldCookies          = "cookies"
	FieldTimezone         = "timezone"
	FieldPlatform         = "platform"
	FieldIPAddress        = "ipAddress"
)

// Server-enriched fields. They overwrite client values of the same name.
const (
	FieldTimestamp = "timestamp"
	FieldSourceIP  = "ip"
	FieldPath      = "path"
)

const (
	// Unknown buckets records whose field is missing or empty.
	Unknown = "Unknown"

	unknownSource = "unknown"

	// timestampLayout matches JavaScript's Date.toISOString.
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// ErrNotObject is returned when a body parses as JSON but is not an object.
var ErrNotObject = errors.New("visitor payload must be a JSON object")

// Record is one visitor snapshot: an open set of string attributes. No field
// is required. A Record is never mutated after it is appended.
type Record map[string]string

// Get returns the value of field, or "" when absent.
func (r Record) Get(field string) string {
	return r[field]
}

// Meta describes the request a record arrived on.
type Meta struct {
	ForwardedFor string
	UserAgent    string
	Path         string
}

// DecodeRecord parses body as a JSON object. String values are kept verbatim,
// null values are dropped, and any other value is kept as its compact JSON
// text.
func DecodeRecord(body []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding visitor payload: %w", err)
	}
	if raw == nil {
		return nil, ErrNotObject
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decoding visitor payload: trailing data after object")
	}

	rec := make(Record, len(raw)+3)
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
		case string:
			rec[key] = v
		case json.Number:
			rec[key] = v.String()
		case bool:
			rec[key] = strconv.FormatBool(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encoding field %q: %w", key, err)
			}
			rec[key] = string(encoded)
		}
	}
	return rec, nil
}

// enrich adds the server-side fields. The user agent prefers the request
// header, then the payload's own field, then "unknown".
func enrich(rec Record, meta Meta, now time.Time) Record {
	rec[FieldTimestamp] = now.UTC().Format(timestampLayout)
	rec[FieldSourceIP] = firstNonEmpty(meta.ForwardedFor, unknownSource)
	rec[FieldPath] = meta.Path
	rec[FieldUserAgent] = firstNonEmpty(meta.UserAgent, rec[FieldUserAgent], unknownSource)
	return rec
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
