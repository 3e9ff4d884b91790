// Package timefmt normalizes the timestamp formats that flow through the
// inbox: RFC3339 strings from provider records, RFC1123 strings from raw
// provider payloads, legacy "h:mm AM/PM" strings, and already-rendered
// relative phrases. Everything funnels into an epoch-millisecond value so
// messages from different channels stay comparable.
package timefmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTimezone is the display timezone used when none is configured.
const DefaultTimezone = "Asia/Karachi"

var parseLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05",
}

var clockRe = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*(AM|PM|am|pm)?`)

// LoadLocation resolves a timezone name, falling back to DefaultTimezone
// and finally UTC if neither can be loaded.
func LoadLocation(name string) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}

// IsRelative reports whether value is an already-rendered relative phrase
// ("5 min ago", "Yesterday", "Just now") that carries no absolute instant.
func IsRelative(value string) bool {
	lower := strings.ToLower(strings.TrimSpace(value))
	return strings.Contains(lower, "ago") || lower == "yesterday" || lower == "just now"
}

// ToEpochMillis converts value to epoch milliseconds. Absolute layouts are
// tried first; a bare "h:mm AM/PM" clock is interpreted as today in loc,
// relative to now. Relative phrases and unparsable input return 0, so all
// unconvertible values sort before all convertible ones.
func ToEpochMillis(value string, now time.Time, loc *time.Location) int64 {
	value = strings.TrimSpace(value)
	if value == "" || IsRelative(value) {
		return 0
	}

	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UnixMilli()
		}
	}

	if m := clockRe.FindStringSubmatch(value); m != nil {
		hours, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		period := strings.ToUpper(m[3])
		if period == "PM" && hours != 12 {
			hours += 12
		}
		if period == "AM" && hours == 12 {
			hours = 0
		}
		if hours > 23 || mins > 59 {
			return 0
		}
		local := now.In(loc)
		return time.Date(local.Year(), local.Month(), local.Day(), hours, mins, 0, 0, loc).UnixMilli()
	}

	return 0
}

// FormatTime renders the clock portion of t in loc, e.g. "2:30 PM".
func FormatTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("3:04 PM")
}

// FormatDateTime renders t as a short date plus clock, e.g. "Jan 10, 2:30 PM".
func FormatDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Jan 2, 3:04 PM")
}

// FormatRelative renders t relative to now: "Just now", "5 min ago",
// "3 hours ago", "Yesterday", "4 days ago", then FormatDateTime beyond a
// week. Deterministic given the same t and now.
func FormatRelative(t, now time.Time, loc *time.Location) string {
	diff := now.Sub(t)
	mins := int(diff.Minutes())
	hours := int(diff.Hours())
	days := int(diff.Hours() / 24)

	switch {
	case mins < 1:
		return "Just now"
	case mins < 60:
		return fmt.Sprintf("%d min ago", mins)
	case hours < 24:
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case days == 1:
		return "Yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	default:
		return FormatDateTime(t, loc)
	}
}

// ParseAndFormat renders value for a message row: relative phrases pass
// through, today's timestamps show the clock only, older ones show date
// plus clock, and anything unparsable is returned as-is.
func ParseAndFormat(value string, now time.Time, loc *time.Location) string {
	if value == "" {
		return "Unknown"
	}
	if IsRelative(value) {
		return value
	}
	ms := ToEpochMillis(value, now, loc)
	if ms == 0 {
		return value
	}
	t := time.UnixMilli(ms)
	local, nowLocal := t.In(loc), now.In(loc)
	if local.Year() == nowLocal.Year() && local.YearDay() == nowLocal.YearDay() {
		return FormatTime(t, loc)
	}
	return FormatDateTime(t, loc)
}

// FormatConversationTime renders value for the conversation list: relative
// phrases pass through, parsable instants become relative, the rest is
// returned unchanged.
func FormatConversationTime(value string, now time.Time, loc *time.Location) string {
	if value == "" {
		return "Unknown"
	}
	if IsRelative(value) {
		return value
	}
	ms := ToEpochMillis(value, now, loc)
	if ms == 0 {
		return value
	}
	return FormatRelative(time.UnixMilli(ms), now, loc)
}
