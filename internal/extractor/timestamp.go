package extractor

import (
	"strings"
	"sync/atomic"
	"time"
)

// CompactLayout upstream alarm system stamp, e.g. 20250808:090430
const CompactLayout = "20060102:150405"

var timestampLayouts = []string{
	CompactLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"02/01/2006 15:04:05",
}

var shipZone atomic.Pointer[time.Location]

// SetShipZone sets the zone of zone-less upstream stamps; nil means UTC
func SetShipZone(loc *time.Location) {
	shipZone.Store(loc)
}

// ShipZone zone used by NormalizeTimestamp
func ShipZone() *time.Location {
	if loc := shipZone.Load(); loc != nil {
		return loc
	}
	return time.UTC
}

// NormalizeTimestamp parses any known upstream stamp in the ship zone.
// ok is false for empty or unrecognised input.
func NormalizeTimestamp(s string) (time.Time, bool) {
	return NormalizeTimestampIn(s, ShipZone())
}

// NormalizeTimestampIn parses zone-less layouts in loc
func NormalizeTimestampIn(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp returns the RFC3339 form of a recognised stamp and the
// input unchanged otherwise, so display never loses information.
func FormatTimestamp(s string) string {
	if t, ok := NormalizeTimestamp(s); ok {
		return t.Format(time.RFC3339)
	}
	return strings.TrimSpace(s)
}
