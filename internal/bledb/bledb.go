// Package bledb resolves Bluetooth SIG service and characteristic identifiers to
// human-readable names.
//
// Lookups never fail: an identifier with no table entry resolves to itself.
package bledb

import (
	"strings"
)

type entry struct {
	uuid string
	name string
}

// Resolver is an immutable name table built once at construction.
type Resolver struct {
	services        map[string]string
	characteristics map[string]string
}

// New builds a Resolver from the static service and characteristic tables.
func New() *Resolver {
	return &Resolver{
		services:        index(serviceTable),
		characteristics: index(characteristicTable),
	}
}

func index(table []entry) map[string]string {
	m := make(map[string]string, len(table))
	for _, e := range table {
		m[NormalizeUUID(e.uuid)] = e.name
	}
	return m
}

// ServiceName returns the standard name of a service, or id unchanged.
func (r *Resolver) ServiceName(id string) string {
	if name, ok := r.services[NormalizeUUID(id)]; ok {
		return name
	}
	return id
}

// CharacteristicName returns the standard name of a characteristic, or id unchanged.
func (r *Resolver) CharacteristicName(id string) string {
	if name, ok := r.characteristics[NormalizeUUID(id)]; ok {
		return name
	}
	return id
}

// LookupService reports whether id names a known standard service.
func (r *Resolver) LookupService(id string) (string, bool) {
	name, ok := r.services[NormalizeUUID(id)]
	return name, ok
}

// LookupCharacteristic reports whether id names a known standard characteristic.
func (r *Resolver) LookupCharacteristic(id string) (string, bool) {
	name, ok := r.characteristics[NormalizeUUID(id)]
	return name, ok
}

// NormalizeUUID converts an identifier to its lookup key: the segment before the
// first '-' (or the whole identifier), upper-cased.
//
// Braces and a 0x prefix are stripped, and a 16-bit short form is widened to 32 bits
// so that "180f", "0000180F" and "0000180f-0000-1000-8000-00805f9b34fb" share a key.
func NormalizeUUID(id string) string {
	s := strings.TrimSpace(id)
	s = strings.Trim(s, "{}")
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}

	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = s[:i]
	}
	s = strings.ToUpper(s)

	if len(s) == 4 && isHex(s) {
		s = "0000" + s
	}
	return s
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
