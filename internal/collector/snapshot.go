// Package collector is the client side of visitor insights. It gathers the
// attributes a host exposes, resolves its public address, submits the record
// to the aggregation service and counts interactions while it stays open.
package collector

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

// Placeholders reported when an attribute is unavailable on the host.
const (
	NotAvailable    = "Not available"
	DirectVisit     = "Direct visit"
	NoCookies       = "No cookies found"
	UnknownValue    = "Unknown"
	CouldNotResolve = "Could not retrieve"
)

// dateTimeLayout renders capture time the way an en-US locale would.
const dateTimeLayout = "1/2/2006, 3:04:05 PM"

// Env is the raw attribute source. Empty fields are replaced by placeholders
// in Gather.
type Env struct {
	UserAgent        string
	Language         string
	ScreenResolution string
	Referrer         string
	Cookies          string
	Timezone         string
	Platform         string
	Now              time.Time
}

// HostEnv reads what the local process can observe about its host.
func HostEnv() Env {
	return Env{
		UserAgent: fmt.Sprintf("visitor-insights-collector/1.0 (%s; %s) %s", runtime.GOOS, runtime.GOARCH, runtime.Version()),
		Language:  hostLanguage(),
		Timezone:  hostTimezone(),
		Platform:  runtime.GOOS + " " + runtime.GOARCH,
		Now:       time.Now(),
	}
}

// Snapshot is the record a collector submits. Server-enriched fields are not
// part of it.
type Snapshot struct {
	UserAgent        string `json:"userAgent"`
	Language         string `json:"language"`
	ScreenResolution string `json:"screenResolution"`
	Referrer         string `json:"referrer"`
	DateTime         string `json:"dateTime"`
	Cookies          string `json:"cookies"`
	Timezone         string `json:"timezone"`
	Platform         string `json:"platform"`
	IPAddress        string `json:"ipAddress"`
}

// Gather builds a Snapshot from env. The address is left empty for the
// resolver to fill in.
func Gather(env Env) Snapshot {
	now := env.Now
	if now.IsZero() {
		now = time.Now()
	}
	return Snapshot{
		UserAgent:        orDefault(env.UserAgent, UnknownValue),
		Language:         orDefault(env.Language, NotAvailable),
		ScreenResolution: orDefault(env.ScreenResolution, NotAvailable),
		Referrer:         orDefault(env.Referrer, DirectVisit),
		DateTime:         now.Format(dateTimeLayout),
		Cookies:          orDefault(env.Cookies, NoCookies),
		Timezone:         orDefault(env.Timezone, UnknownValue),
		Platform:         orDefault(env.Platform, UnknownValue),
	}
}

// Fields lists the snapshot as label/value pairs in display order.
func (s Snapshot) Fields() [][2]string {
	return [][2]string{
		{"IP Address", s.IPAddress},
		{"Browser & OS", s.UserAgent},
		{"Platform", s.Platform},
		{"Screen Resolution", s.ScreenResolution},
		{"Language", s.Language},
		{"Timezone", s.Timezone},
		{"Referrer", s.Referrer},
		{"Date & Time", s.DateTime},
		{"Cookies", s.Cookies},
	}
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// hostLanguage converts a POSIX locale such as "en_US.UTF-8" to a language
// tag such as "en-US".
func hostLanguage() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := os.Getenv(key)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		return strings.ReplaceAll(v, "_", "-")
	}
	return ""
}

func hostTimezone() string {
	if tz := os.Getenv("TZ"); tz != "" {
		return strings.TrimPrefix(tz, ":")
	}
	if name := time.Local.String(); name != "Local" {
		return name
	}
	return ""
}
