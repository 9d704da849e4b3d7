package goble

import (
	"fmt"
	"strings"

	"github.com/srg/blemgr/internal/device"
)

// NormalizeError maps known go-ble error strings to the device error taxonomy.
// The original error stays in the chain so callers can still log it.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", device.ErrUnavailable, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", device.ErrUnavailable, err)
	case containsIgnoreCase(msg, "operation in progress"), containsIgnoreCase(msg, "busy"):
		return fmt.Errorf("%w: %v", device.ErrBusy, err)
	case containsIgnoreCase(msg, "device not connected"), containsIgnoreCase(msg, "not connected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", device.ErrSessionClosed, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", device.ErrAlreadyConnected, err)
	default:
		return err
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
