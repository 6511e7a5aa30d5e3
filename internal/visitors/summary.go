package visitors

import (
	"fmt"
	"sort"
)

// Summary is the breakdown of a record set. It is computed on demand and
// never stored.
type Summary struct {
	VisitorCount int               `json:"visitorCount"`
	Browsers     map[string]string `json:"browsers"`
	Resolutions  map[string]int    `json:"resolutions"`
	Languages    map[string]int    `json:"languages"`
	Locations    map[string]int    `json:"locations"`

	// IPAddresses feeds the console report and archive snapshots; the HTTP
	// response leaves it out.
	IPAddresses map[string]int `json:"-"`

	browserCounts map[string]int
}

// Summarize computes every breakdown over records.
func Summarize(records []Record) Summary {
	counts := browserCounts(records)
	return Summary{
		VisitorCount:  len(records),
		Browsers:      shareOf(counts, len(records)),
		Resolutions:   CountBy(records, FieldScreenResolution),
		Languages:     CountBy(records, FieldLanguage),
		Locations:     CountBy(records, FieldTimezone),
		IPAddresses:   CountBy(records, FieldIPAddress),
		browserCounts: counts,
	}
}

// BrowserShare returns each browser family's share of records formatted with
// one decimal place and a "%" suffix. An empty set yields an empty map.
func BrowserShare(records []Record) map[string]string {
	return shareOf(browserCounts(records), len(records))
}

// CountBy counts occurrences of each distinct value of field. Missing or empty
// values are counted under Unknown.
func CountBy(records []Record, field string) map[string]int {
	counts := make(map[string]int)
	for _, rec := range records {
		value := rec.Get(field)
		if value == "" {
			value = Unknown
		}
		counts[value]++
	}
	return counts
}

func browserCounts(records []Record) map[string]int {
	counts := make(map[string]int)
	for _, rec := range records {
		counts[Classify(rec.Get(FieldUserAgent))]++
	}
	return counts
}

func shareOf(counts map[string]int, total int) map[string]string {
	shares := make(map[string]string, len(counts))
	if total == 0 {
		return shares
	}
	for name, n := range counts {
		shares[name] = fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
	}
	return shares
}

// entry is one line of a breakdown.
type entry struct {
	Key   string
	Count int
}

// ranked orders a breakdown by count descending, then key.
func ranked(counts map[string]int) []entry {
	entries := make([]entry, 0, len(counts))
	for k, n := range counts {
		entries = append(entries, entry{Key: k, Count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	return entries
}
