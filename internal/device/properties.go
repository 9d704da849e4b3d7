package device

import (
	"strings"
)

// Properties is the capability bit set of a characteristic.
// Bit values follow the GATT characteristic properties field.
type Properties uint8

const (
	PropBroadcast                 Properties = 0x01
	PropRead                      Properties = 0x02
	PropWriteWithoutResponse      Properties = 0x04
	PropWrite                     Properties = 0x08
	PropNotify                    Properties = 0x10
	PropIndicate                  Properties = 0x20
	PropAuthenticatedSignedWrites Properties = 0x40
	PropExtendedProperties        Properties = 0x80
)

var propertyNames = []struct {
	prop Properties
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteWithoutResponse, "writeWithoutResponse"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropAuthenticatedSignedWrites, "authenticatedSignedWrites"},
	{PropExtendedProperties, "extendedProperties"},
}

func (p Properties) Has(flag Properties) bool { return p&flag == flag }

func (p Properties) CanRead() bool   { return p.Has(PropRead) }
func (p Properties) CanNotify() bool { return p.Has(PropNotify) }

// CanWrite reports either write flavor.
func (p Properties) CanWrite() bool {
	return p&(PropWrite|PropWriteWithoutResponse) != 0
}

// Names returns the set flag names in bit order.
func (p Properties) Names() []string {
	names := make([]string, 0, 8)
	for _, pn := range propertyNames {
		if p.Has(pn.prop) {
			names = append(names, pn.name)
		}
	}
	return names
}

func (p Properties) String() string {
	return strings.Join(p.Names(), ",")
}

// ParseProperties parses a comma separated list such as "read,notify".
// Unknown names are ignored.
func ParseProperties(s string) Properties {
	var p Properties
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		for _, pn := range propertyNames {
			if strings.EqualFold(part, pn.name) {
				p |= pn.prop
			}
		}
		// short aliases used in config files and tests
		switch strings.ToLower(part) {
		case "writenr", "write-without-response":
			p |= PropWriteWithoutResponse
		case "extended":
			p |= PropExtendedProperties
		case "signed":
			p |= PropAuthenticatedSignedWrites
		}
	}
	return p
}
