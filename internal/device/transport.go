package device

import (
	"context"
)

// RemoteService is a service handle obtained from a live session.
type RemoteService interface {
	UUID() string
}

// RemoteCharacteristic is a characteristic handle obtained from a live session.
type RemoteCharacteristic interface {
	UUID() string
	Properties() Properties
}

// NotificationHandler receives change notifications for one characteristic.
// The data slice is owned by the handler.
type NotificationHandler func(charUUID string, data []byte)

// Session is an established connection to a peripheral.
//
// Implementations may reject overlapping operations with ErrBusy and report a
// dropped link with ErrSessionClosed; the manager retries both.
type Session interface {
	// ID returns the identity of the connected peripheral.
	ID() string

	PrimaryServices(ctx context.Context) ([]RemoteService, error)
	PrimaryService(ctx context.Context, uuid string) (RemoteService, error)
	Characteristics(ctx context.Context, svc RemoteService) ([]RemoteCharacteristic, error)
	Characteristic(ctx context.Context, svc RemoteService, uuid string) (RemoteCharacteristic, error)

	ReadValue(ctx context.Context, c RemoteCharacteristic) ([]byte, error)
	WriteValue(ctx context.Context, c RemoteCharacteristic, data []byte, withResponse bool) error

	StartNotifications(ctx context.Context, c RemoteCharacteristic, handler NotificationHandler) error
	StopNotifications(ctx context.Context, c RemoteCharacteristic) error

	Close() error
}

// DisconnectNotifier is implemented by sessions that can report a link drop.
type DisconnectNotifier interface {
	Disconnected() <-chan struct{}
}

// Transport is the radio backend: device selection and session establishment.
type Transport interface {
	// Available reports whether a usable adapter is present on this host.
	Available() bool

	// RequestDevice runs the device-selection primitive and returns the chosen
	// peripheral as a bare Device (ID and Name set).
	RequestDevice(ctx context.Context) (Device, error)

	// Connect opens a session to the peripheral with the given ID.
	Connect(ctx context.Context, id string) (Session, error)
}
