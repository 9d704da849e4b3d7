package device

import (
	"time"
)

// State is the lifecycle position of a device as seen by the manager.
type State int

const (
	StateUnknown State = iota
	StateDiscovered
	StateConnecting
	StateConnected
	StateDisconnecting
	StateDisconnected
	StateRemoved
)

var stateNames = map[State]string{
	StateUnknown:       "unknown",
	StateDiscovered:    "discovered",
	StateConnecting:    "connecting",
	StateConnected:     "connected",
	StateDisconnecting: "disconnecting",
	StateDisconnected:  "disconnected",
	StateRemoved:       "removed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Characteristic is a discovered GATT characteristic together with its last known value.
type Characteristic struct {
	UUID        string     `json:"uuid" yaml:"uuid" cbor:"uuid"`
	Name        string     `json:"name" yaml:"name" cbor:"name"`
	Properties  Properties `json:"properties" yaml:"properties" cbor:"properties"`
	Value       []byte     `json:"value,omitempty" yaml:"value,omitempty" cbor:"value,omitempty"`
	LastUpdated time.Time  `json:"last_updated,omitempty" yaml:"last_updated,omitempty" cbor:"last_updated,omitempty"`
}

// Clone returns a copy that does not share the value buffer.
func (c Characteristic) Clone() Characteristic {
	c.Value = cloneBytes(c.Value)
	return c
}

// Service is a discovered GATT service.
type Service struct {
	UUID            string           `json:"uuid" yaml:"uuid" cbor:"uuid"`
	Name            string           `json:"name" yaml:"name" cbor:"name"`
	Characteristics []Characteristic `json:"characteristics,omitempty" yaml:"characteristics,omitempty" cbor:"characteristics,omitempty"`
}

// Clone returns a deep copy of the service.
func (s Service) Clone() Service {
	if s.Characteristics != nil {
		chars := make([]Characteristic, len(s.Characteristics))
		for i, c := range s.Characteristics {
			chars[i] = c.Clone()
		}
		s.Characteristics = chars
	}
	return s
}

// FindCharacteristic returns the index of the characteristic with the given UUID, or -1.
func (s *Service) FindCharacteristic(uuid string) int {
	for i := range s.Characteristics {
		if SameUUID(s.Characteristics[i].UUID, uuid) {
			return i
		}
	}
	return -1
}

// Information is the composite Device Information Service record.
// Custom holds values of registered custom characteristics by their logical key.
type Information struct {
	ManufacturerName string            `json:"manufacturer_name,omitempty" yaml:"manufacturer_name,omitempty" cbor:"manufacturer_name,omitempty"`
	ModelNumber      string            `json:"model_number,omitempty" yaml:"model_number,omitempty" cbor:"model_number,omitempty"`
	SerialNumber     string            `json:"serial_number,omitempty" yaml:"serial_number,omitempty" cbor:"serial_number,omitempty"`
	HardwareRevision string            `json:"hardware_revision,omitempty" yaml:"hardware_revision,omitempty" cbor:"hardware_revision,omitempty"`
	FirmwareRevision string            `json:"firmware_revision,omitempty" yaml:"firmware_revision,omitempty" cbor:"firmware_revision,omitempty"`
	SoftwareRevision string            `json:"software_revision,omitempty" yaml:"software_revision,omitempty" cbor:"software_revision,omitempty"`
	SystemID         string            `json:"system_id,omitempty" yaml:"system_id,omitempty" cbor:"system_id,omitempty"`
	IEEE11073        string            `json:"ieee_11073,omitempty" yaml:"ieee_11073,omitempty" cbor:"ieee_11073,omitempty"`
	PnPID            string            `json:"pnp_id,omitempty" yaml:"pnp_id,omitempty" cbor:"pnp_id,omitempty"`
	Custom           map[string]string `json:"custom,omitempty" yaml:"custom,omitempty" cbor:"custom,omitempty"`
}

// Set assigns a value by logical key. Unknown keys land in Custom.
func (i *Information) Set(key, value string) {
	switch key {
	case "manufacturerName":
		i.ManufacturerName = value
	case "modelNumber":
		i.ModelNumber = value
	case "serialNumber":
		i.SerialNumber = value
	case "hardwareRevision":
		i.HardwareRevision = value
	case "firmwareRevision":
		i.FirmwareRevision = value
	case "softwareRevision":
		i.SoftwareRevision = value
	case "systemId":
		i.SystemID = value
	case "ieee11073":
		i.IEEE11073 = value
	case "pnpId":
		i.PnPID = value
	default:
		if i.Custom == nil {
			i.Custom = make(map[string]string)
		}
		i.Custom[key] = value
	}
}

// Clone returns a deep copy, nil-safe.
func (i *Information) Clone() *Information {
	if i == nil {
		return nil
	}
	out := *i
	if i.Custom != nil {
		out.Custom = make(map[string]string, len(i.Custom))
		for k, v := range i.Custom {
			out.Custom[k] = v
		}
	}
	return &out
}

// Device is a known peripheral. Session is present iff the device is connected
// and is never serialized.
type Device struct {
	ID        string       `json:"id" yaml:"id" cbor:"id"`
	Name      string       `json:"name,omitempty" yaml:"name,omitempty" cbor:"name,omitempty"`
	Connected bool         `json:"is_connected" yaml:"is_connected" cbor:"is_connected"`
	Paired    bool         `json:"is_paired,omitempty" yaml:"is_paired,omitempty" cbor:"is_paired,omitempty"`
	LastSeen  time.Time    `json:"last_seen" yaml:"last_seen" cbor:"last_seen"`
	Services  []Service    `json:"services,omitempty" yaml:"services,omitempty" cbor:"services,omitempty"`
	Info      *Information `json:"device_info,omitempty" yaml:"device_info,omitempty" cbor:"device_info,omitempty"`
	Battery   *int         `json:"battery_level,omitempty" yaml:"battery_level,omitempty" cbor:"battery_level,omitempty"`

	Session Session `json:"-" yaml:"-" cbor:"-"`
}

// DisplayName returns the name, falling back to the ID.
func (d Device) DisplayName() string {
	if d.Name == "" {
		return d.ID
	}
	return d.Name
}

// Clone returns a deep copy. Only the session handle is shared.
func (d Device) Clone() Device {
	if d.Services != nil {
		svcs := make([]Service, len(d.Services))
		for i, s := range d.Services {
			svcs[i] = s.Clone()
		}
		d.Services = svcs
	}
	d.Info = d.Info.Clone()
	if d.Battery != nil {
		level := *d.Battery
		d.Battery = &level
	}
	return d
}

// FindService returns a pointer into d.Services for the given UUID, or nil.
func (d *Device) FindService(uuid string) *Service {
	for i := range d.Services {
		if SameUUID(d.Services[i].UUID, uuid) {
			return &d.Services[i]
		}
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
