package visitors

import "strings"

// Browser families reported in the breakdown.
const (
	BrowserChrome  = "Chrome"
	BrowserFirefox = "Firefox"
	BrowserSafari  = "Safari"
	BrowserEdge    = "Edge"
	BrowserOpera   = "Opera"
)

// Classify maps a user-agent string to a browser family. The checks run in a
// fixed order and the first match wins: Edge and Opera user agents embed
// "Chrome", and Chrome embeds "Safari".
func Classify(userAgent string) string {
	has := func(token string) bool { return strings.Contains(userAgent, token) }

	switch {
	case has("Chrome") && !has("Edg"):
		return BrowserChrome
	case has("Firefox"):
		return BrowserFirefox
	case has("Safari") && !has("Chrome"):
		return BrowserSafari
	case has("Edg"):
		return BrowserEdge
	case has("Opera") || has("OPR"):
		return BrowserOpera
	default:
		return Unknown
	}
}
