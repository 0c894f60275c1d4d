package pricing

import (
	"strconv"
	"strings"
)

// Zone is the shipping classification of a delivery postcode.
type Zone string

const (
	ZoneMetro         Zone = "metro"
	ZoneMajorRegional Zone = "major_regional"
	ZoneOther         Zone = "other"
)

// MetroShippingNote is the note attached to every metro delivery.
const MetroShippingNote = "Free metro delivery"

// Classification is the result of a postcode lookup.
type Classification struct {
	Zone     Zone
	Region   string
	State    string
	Postcode int
}

type postcodeRange struct {
	from, to int
	region   string
	state    string
}

// metroRanges are matched in order; the first hit names the region.
var metroRanges = []postcodeRange{
	{6000, 6199, "Perth", "WA"},
	{6200, 6214, "Perth", "WA"},
	{6230, 6239, "Bunbury", "WA"},
	{2000, 2249, "Sydney", "NSW"},
	{2555, 2574, "Sydney", "NSW"},
	{2740, 2786, "Sydney", "NSW"},
	{2280, 2330, "Newcastle", "NSW"},
	{2500, 2535, "Wollongong", "NSW"},
	{3000, 3210, "Melbourne", "VIC"},
	{3335, 3341, "Melbourne", "VIC"},
	{3427, 3442, "Melbourne", "VIC"},
	{3750, 3810, "Melbourne", "VIC"},
	{3910, 3978, "Melbourne", "VIC"},
	{3211, 3227, "Geelong", "VIC"},
	{4000, 4209, "Brisbane", "QLD"},
	{4300, 4306, "Brisbane", "QLD"},
	{4500, 4521, "Brisbane", "QLD"},
	// Overlaps Brisbane at 4207-4209, which stay Brisbane.
	{4207, 4230, "Gold Coast", "QLD"},
	{5000, 5199, "Adelaide", "SA"},
	{2600, 2620, "Canberra", "ACT"},
	{2900, 2920, "Canberra", "ACT"},
	{7000, 7099, "Hobart", "TAS"},
	{7170, 7179, "Hobart", "TAS"},
	{800, 899, "Darwin", "NT"},
}

var regionalRanges = []postcodeRange{
	{6530, 6532, "Geraldton", "WA"},
	{6430, 6433, "Kalgoorlie", "WA"},
	{6330, 6333, "Albany", "WA"},
	{6714, 6714, "Karratha", "WA"},
	{6721, 6722, "Port Hedland", "WA"},
	{2830, 2832, "Dubbo", "NSW"},
	{2650, 2652, "Wagga Wagga", "NSW"},
	{2640, 2641, "Albury", "NSW"},
	{2340, 2341, "Tamworth", "NSW"},
	{2800, 2800, "Orange", "NSW"},
	{2795, 2795, "Bathurst", "NSW"},
	{2450, 2452, "Coffs Harbour", "NSW"},
	{2480, 2480, "Lismore", "NSW"},
	{2444, 2446, "Port Macquarie", "NSW"},
	{3350, 3356, "Ballarat", "VIC"},
	{3550, 3556, "Bendigo", "VIC"},
	{3630, 3632, "Shepparton", "VIC"},
	{3690, 3691, "Wodonga", "VIC"},
	{3280, 3282, "Warrnambool", "VIC"},
	{3840, 3844, "Traralgon", "VIC"},
	{4810, 4818, "Townsville", "QLD"},
	{4868, 4881, "Cairns", "QLD"},
	{4700, 4703, "Rockhampton", "QLD"},
	{4740, 4741, "Mackay", "QLD"},
	{4350, 4352, "Toowoomba", "QLD"},
	{4670, 4671, "Bundaberg", "QLD"},
	{4680, 4680, "Gladstone", "QLD"},
	{4550, 4575, "Sunshine Coast", "QLD"},
	{5290, 5291, "Mount Gambier", "SA"},
	{5700, 5701, "Port Augusta", "SA"},
	{5600, 5601, "Whyalla", "SA"},
	{7248, 7258, "Launceston", "TAS"},
	{7310, 7310, "Devonport", "TAS"},
	{7320, 7321, "Burnie", "TAS"},
	{870, 872, "Alice Springs", "NT"},
}

// ParsePostcode validates an Australian postcode. Three digit NT codes are accepted.
func ParsePostcode(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if len(s) < 3 || len(s) > 4 {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 200 || n > 9999 {
		return 0, false
	}
	return n, true
}

// Classify looks a postcode up in the metro and regional depot tables.
func Classify(postcode string) Classification {
	n, ok := ParsePostcode(postcode)
	if !ok {
		return Classification{Zone: ZoneOther}
	}
	// Regional depots sit inside some metro blocks (Alice Springs within 08xx).
	if r, ok := lookup(regionalRanges, n); ok {
		return Classification{Zone: ZoneMajorRegional, Region: r.region, State: r.state, Postcode: n}
	}
	if r, ok := lookup(metroRanges, n); ok {
		return Classification{Zone: ZoneMetro, Region: r.region, State: r.state, Postcode: n}
	}
	return Classification{Zone: ZoneOther, Postcode: n}
}

// IsMetro reports whether the postcode qualifies for free metro delivery.
func IsMetro(postcode string) bool {
	return Classify(postcode).Zone == ZoneMetro
}

func lookup(ranges []postcodeRange, n int) (postcodeRange, bool) {
	for _, r := range ranges {
		if n >= r.from && n <= r.to {
			return r, true
		}
	}
	return postcodeRange{}, false
}
