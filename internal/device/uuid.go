package device

import (
	"strings"

	"github.com/google/uuid"
)

// BaseUUIDSuffix is the Bluetooth SIG base UUID tail used to expand short identifiers.
const BaseUUIDSuffix = "-0000-1000-8000-00805f9b34fb"

// Well-known identifiers used by the composite reads.
var (
	BatteryService      = CanonicalUUID("180f")
	BatteryLevel        = CanonicalUUID("2a19")
	DeviceInformation   = CanonicalUUID("180a")
	GenericAccess       = CanonicalUUID("1800")
	SystemIDChar        = CanonicalUUID("2a23")
	PnPIDChar           = CanonicalUUID("2a50")
	ManufacturerNameStr = CanonicalUUID("2a29")
)

// CanonicalUUID converts an identifier to the lowercase, dashed 128-bit form.
//
// 16-bit ("180f", "0x180F") and 32-bit ("0000180f") short forms are expanded with the
// Bluetooth SIG base UUID. Anything that is not a UUID (for example a symbolic name)
// is returned trimmed and lowercased.
func CanonicalUUID(id string) string {
	s := strings.ToLower(strings.TrimSpace(id))
	s = strings.TrimPrefix(s, "0x")

	switch len(s) {
	case 4:
		if isHex(s) {
			return "0000" + s + BaseUUIDSuffix
		}
	case 8:
		if isHex(s) {
			return s + BaseUUIDSuffix
		}
	}

	parsed, err := uuid.Parse(s)
	if err != nil {
		return s
	}
	return parsed.String()
}

// SameUUID compares two identifiers in any accepted form.
func SameUUID(a, b string) bool {
	return CanonicalUUID(a) == CanonicalUUID(b)
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
// Returns the first eight characters for long UUIDs and short UUIDs by themselves.
func ShortenUUID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func isHex(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
