package inbox

import "strings"

// DevicePrefix marks provider addresses that belong to the operator's own
// softphone leg rather than a real counterparty.
const DevicePrefix = "client:"

// NormalizePhone strips every non-digit character. The result is the join
// key across contacts, conversations and provider records.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsDeviceAddress reports whether addr names a softphone client leg.
func IsDeviceAddress(addr string) bool {
	return strings.HasPrefix(addr, DevicePrefix)
}
