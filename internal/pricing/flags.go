package pricing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// leadTimeOrder ranks the lead time phrases used on product pages.
var leadTimeOrder = []string{
	"In Stock",
	"1 week",
	"1-2 weeks",
	"2-3 weeks",
	"2-4 weeks",
	"3-4 weeks",
	"4-6 weeks",
	"6-8 weeks",
	"8+ weeks",
}

// longLeadTimeRank is the index of "4-6 weeks" in leadTimeOrder.
const longLeadTimeRank = 6

// LargeOrderThreshold is the total quantity above which orders are flagged.
const LargeOrderThreshold = 10

var remoteKeywords = []string{"mine", "mining", "quarry", "pit", "camp", "site", "station", "pastoral", "remote"}

// FlagItem is the subset of an item needed for exception detection.
type FlagItem struct {
	Name     string
	Quantity int
	LeadTime string
}

// Flags highlight quotes that need manual handling before they are sent.
type Flags struct {
	NonMetro          bool     `json:"nonMetro"`
	Remote            bool     `json:"remote"`
	LargeOrder        bool     `json:"largeOrder"`
	LongLeadTime      bool     `json:"longLeadTime"`
	LongLeadTimeItems []string `json:"longLeadTimeItems,omitempty"`
	TotalQuantity     int      `json:"totalQuantity"`
	Zone              Zone     `json:"zone"`
}

// Standard reports whether no special handling is required.
func (f Flags) Standard() bool {
	return !f.NonMetro && !f.LargeOrder && !f.LongLeadTime
}

// IsRemoteAddress detects mine sites and remote stations by keyword.
func IsRemoteAddress(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range remoteKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// weeksPattern captures the week counts of free-form lead times.
var weeksPattern = regexp.MustCompile(`(\d+)\s*\+?\s*weeks?`)

// weekBuckets maps the upper bound of a lead time in weeks to its rank.
var weekBuckets = []struct{ maxWeeks, rank int }{
	{1, 1}, {2, 2}, {3, 3}, {4, 5}, {6, 6}, {8, 7},
}

// LeadTimeRank returns the position of a lead time phrase, or -1.
// Phrases outside leadTimeOrder are ranked by their largest week count.
func LeadTimeRank(leadTime string) int {
	lower := strings.ToLower(strings.TrimSpace(leadTime))
	if lower == "" {
		return -1
	}
	for i := len(leadTimeOrder) - 1; i >= 0; i-- {
		if containsPhrase(lower, strings.ToLower(leadTimeOrder[i])) {
			return i
		}
	}
	weeks := -1
	for _, m := range weeksPattern.FindAllStringSubmatch(lower, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > weeks {
			weeks = n
		}
	}
	if weeks < 0 {
		return -1
	}
	for _, b := range weekBuckets {
		if weeks <= b.maxWeeks {
			return b.rank
		}
	}
	return len(leadTimeOrder) - 1
}

// containsPhrase reports whether phrase occurs in s without being the tail
// of a longer number or range.
func containsPhrase(s, phrase string) bool {
	for from := 0; ; {
		idx := strings.Index(s[from:], phrase)
		if idx < 0 {
			return false
		}
		at := from + idx
		if at == 0 || !strings.ContainsRune("0123456789-+", rune(s[at-1])) {
			return true
		}
		from = at + 1
	}
}

// LongestLeadTime picks the highest ranked lead time of the items.
func LongestLeadTime(leadTimes []string) string {
	best, bestRank := "", -1
	for _, lt := range leadTimes {
		if rank := LeadTimeRank(lt); rank > bestRank {
			best, bestRank = lt, rank
		}
	}
	return best
}

// DetectFlags evaluates the exception rules for a quote.
func DetectFlags(items []FlagItem, postcode, addressText string) Flags {
	f := Flags{Zone: Classify(postcode).Zone}
	for _, item := range items {
		f.TotalQuantity += quantityOrOne(item.Quantity)
		if LeadTimeRank(item.LeadTime) >= longLeadTimeRank {
			f.LongLeadTimeItems = append(f.LongLeadTimeItems, fmt.Sprintf("%s (%s)", item.Name, item.LeadTime))
		}
	}
	f.Remote = IsRemoteAddress(addressText)
	f.NonMetro = f.Remote || f.Zone != ZoneMetro
	f.LargeOrder = f.TotalQuantity > LargeOrderThreshold
	f.LongLeadTime = len(f.LongLeadTimeItems) > 0
	return f
}
