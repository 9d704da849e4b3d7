// Package events is the typed publish/subscribe bus used by the manager to announce
// state changes and failures.
//
// The set of events is closed: every payload is one of the concrete types in this
// file and is identified by its Kind.
package events

import (
	"github.com/srg/blemgr/internal/device"
)

// Kind identifies an event type.
type Kind string

const (
	KindDevicesChanged      Kind = "devicesChanged"
	KindDeviceConnected     Kind = "deviceConnected"
	KindDeviceDisconnected  Kind = "deviceDisconnected"
	KindError               Kind = "error"
	KindScanError           Kind = "scanError"
	KindConnectError        Kind = "connectError"
	KindDisconnectError     Kind = "disconnectError"
	KindRemoveError         Kind = "removeError"
	KindServiceDiscovered   Kind = "serviceDiscovered"
	KindCharacteristicRead  Kind = "characteristicRead"
	KindCharacteristicWrite Kind = "characteristicWrite"
	KindDevicePaired        Kind = "devicePaired"
)

// Kinds lists every event kind in declaration order.
var Kinds = []Kind{
	KindDevicesChanged,
	KindDeviceConnected,
	KindDeviceDisconnected,
	KindError,
	KindScanError,
	KindConnectError,
	KindDisconnectError,
	KindRemoveError,
	KindServiceDiscovered,
	KindCharacteristicRead,
	KindCharacteristicWrite,
	KindDevicePaired,
}

// Event is implemented only by the payload types of this package.
type Event interface {
	Kind() Kind
	event()
}

// DevicesChanged carries a snapshot of the full device list.
type DevicesChanged struct {
	Devices []device.Device
}

type DeviceConnected struct {
	Device device.Device
}

type DeviceDisconnected struct {
	Device device.Device
}

type DevicePaired struct {
	Device device.Device
}

// Error is the generic failure event, used when no specific kind applies.
type Error struct {
	Err error
}

type ScanError struct {
	Err error
}

type ConnectError struct {
	DeviceID string
	Err      error
}

type DisconnectError struct {
	DeviceID string
	Err      error
}

type RemoveError struct {
	DeviceID string
	Err      error
}

type ServiceDiscovered struct {
	DeviceID string
	Service  device.Service
}

// CharacteristicRead is published for every successful read and every notification.
type CharacteristicRead struct {
	DeviceID       string
	ServiceUUID    string
	Characteristic device.Characteristic
}

type CharacteristicWrite struct {
	DeviceID       string
	ServiceUUID    string
	Characteristic device.Characteristic
}

func (DevicesChanged) Kind() Kind      { return KindDevicesChanged }
func (DeviceConnected) Kind() Kind     { return KindDeviceConnected }
func (DeviceDisconnected) Kind() Kind  { return KindDeviceDisconnected }
func (DevicePaired) Kind() Kind        { return KindDevicePaired }
func (Error) Kind() Kind               { return KindError }
func (ScanError) Kind() Kind           { return KindScanError }
func (ConnectError) Kind() Kind        { return KindConnectError }
func (DisconnectError) Kind() Kind     { return KindDisconnectError }
func (RemoveError) Kind() Kind         { return KindRemoveError }
func (ServiceDiscovered) Kind() Kind   { return KindServiceDiscovered }
func (CharacteristicRead) Kind() Kind  { return KindCharacteristicRead }
func (CharacteristicWrite) Kind() Kind { return KindCharacteristicWrite }

func (DevicesChanged) event()      {}
func (DeviceConnected) event()     {}
func (DeviceDisconnected) event()  {}
func (DevicePaired) event()        {}
func (Error) event()               {}
func (ScanError) event()           {}
func (ConnectError) event()        {}
func (DisconnectError) event()     {}
func (RemoveError) event()         {}
func (ServiceDiscovered) event()   {}
func (CharacteristicRead) event()  {}
func (CharacteristicWrite) event() {}

// ErrorOf returns the error carried by failure events, or nil.
func ErrorOf(e Event) error {
	switch ev := e.(type) {
	case Error:
		return ev.Err
	case ScanError:
		return ev.Err
	case ConnectError:
		return ev.Err
	case DisconnectError:
		return ev.Err
	case RemoveError:
		return ev.Err
	}
	return nil
}
