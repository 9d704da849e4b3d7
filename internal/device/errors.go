package device

import (
	"errors"
	"fmt"
)

// NotFoundError represents an error when a GATT resource is not found on a session
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	IdentityMismatch ConnectionState = "identity_mismatch"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// TransientKind names a retryable failure.
type TransientKind string

const (
	TransientBusy          TransientKind = "operation_in_progress"
	TransientSessionClosed TransientKind = "session_closed"
)

// TransientError is a failure expected to clear up on its own.
type TransientError struct {
	Kind TransientKind
	Msg  string
}

func (e *TransientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is compares TransientError values by Kind
func (e *TransientError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*TransientError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// OperationError wraps an underlying transport failure with the failing operation.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Predefined sentinel errors
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrIdentityMismatch = &ConnectionError{State: IdentityMismatch}

	ErrBusy          = &TransientError{Kind: TransientBusy}
	ErrSessionClosed = &TransientError{Kind: TransientSessionClosed}

	ErrUnavailable    = errors.New("bluetooth is not available")
	ErrDeviceNotFound = errors.New("device not found")
	ErrUnsupported    = errors.New("unsupported")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var terr *TransientError
	return errors.As(err, &terr)
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// IsNotFound reports whether err is a missing service or characteristic.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
